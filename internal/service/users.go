// Package service provides user account business logic,
// delegating persistence to a UserRepository.
package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/atinyakov/safeplay/internal/models"
	"github.com/atinyakov/safeplay/internal/password"
)

// ErrInvalidInput is returned when registration input fails validation.
var ErrInvalidInput = errors.New("invalid input")

const (
	maxUsernameLen    = 50
	maxDisplayNameLen = 100
	maxEmailLen       = 100
	minPasswordLen    = 8
	maxPasswordLen    = 256
)

// UserRepository defines the persistence operations
// required by the user service.
type UserRepository interface {
	// Save inserts or fully overwrites the record keyed by user.Username.
	Save(ctx context.Context, user models.User) (*models.User, error)
	// Create inserts a new record or returns models.ErrUserExists.
	Create(ctx context.Context, user models.User) error
	// Exists returns true if a user with the given username exists.
	Exists(ctx context.Context, username string) (bool, error)
	// ExistsBy checks a field from the lookup allow-list or returns models.ErrUnknownField.
	ExistsBy(ctx context.Context, field models.LookupField, value string) (bool, error)
	// FindByUsername returns the record or models.ErrUserNotFound.
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	// FindByDisplayName returns one matching record or models.ErrUserNotFound.
	FindByDisplayName(ctx context.Context, displayName string) (*models.User, error)
	// TouchLastLogin records a successful login.
	TouchLastLogin(ctx context.Context, username string, at time.Time) error
	// SetDisabled enables or disables login, or returns models.ErrUserNotFound.
	SetDisabled(ctx context.Context, username string, disabled bool) error
}

// Registration is the input of Register. An empty Role registers a player.
type Registration struct {
	Username    string
	DisplayName string
	Email       string
	Password    string
	Role        models.Role
}

// PasswordHasher hashes and verifies credentials.
type PasswordHasher interface {
	Hash(password string) (string, error)
	// Verify returns nil on match and password.ErrMismatch otherwise.
	Verify(password, encoded string) error
	NeedsRehash(encoded string) bool
}

// UserService implements user operations on top of a UserRepository.
type UserService struct {
	repo   UserRepository
	hasher PasswordHasher
	log    *zap.Logger
	now    func() time.Time
}

// NewUserService constructs a UserService. A nil logger disables diagnostics.
func NewUserService(repo UserRepository, hasher PasswordHasher, logger *zap.Logger) *UserService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UserService{
		repo:   repo,
		hasher: hasher,
		log:    logger,
		now:    time.Now,
	}
}

// SaveUser persists user as given. PasswordHash must already be encoded.
func (s *UserService) SaveUser(ctx context.Context, user models.User) (*models.User, error) {
	return s.repo.Save(ctx, user)
}

// UserExists reports whether a user with the given username exists.
func (s *UserService) UserExists(ctx context.Context, username string) (bool, error) {
	return s.repo.Exists(ctx, username)
}

// UserExistsBy reports whether a user with field = value exists.
// Only fields in the lookup allow-list are accepted.
func (s *UserService) UserExistsBy(ctx context.Context, field models.LookupField, value string) (bool, error) {
	if !field.Valid() {
		return false, fmt.Errorf("%w: %w", ErrInvalidInput, models.ErrUnknownField)
	}
	return s.repo.ExistsBy(ctx, field, value)
}

// SetUserDisabled enables or disables login for username. It returns
// models.ErrUserNotFound for unknown users.
func (s *UserService) SetUserDisabled(ctx context.Context, username string, disabled bool) error {
	if err := s.repo.SetDisabled(ctx, username, disabled); err != nil {
		return err
	}
	s.log.Info("user login status changed", zap.String("username", username), zap.Bool("disabled", disabled))
	return nil
}

// FindByDisplayName returns a user with the given display name.
// It returns (nil, nil) when nobody uses that name.
func (s *UserService) FindByDisplayName(ctx context.Context, displayName string) (*models.User, error) {
	u, err := s.repo.FindByDisplayName(ctx, displayName)
	if errors.Is(err, models.ErrUserNotFound) {
		return nil, nil
	}
	return u, err
}

// Register hashes the password and creates a new user.
// The username is stored exactly as given; surrounding or inner whitespace
// is rejected rather than trimmed so that every operation uses the same key.
// It returns models.ErrUserExists if the username or email is taken.
func (s *UserService) Register(ctx context.Context, reg Registration) (*models.User, error) {
	displayName := strings.TrimSpace(reg.DisplayName)
	if displayName == "" {
		displayName = reg.Username
	}
	email := strings.TrimSpace(reg.Email)
	role := reg.Role.OrDefault()
	if err := validateRegistration(reg.Username, displayName, email, role, reg.Password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(reg.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := models.User{
		Username:     reg.Username,
		DisplayName:  displayName,
		Email:        email,
		Role:         role,
		PasswordHash: hash,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	s.log.Info("user registered", zap.String("username", user.Username), zap.String("role", string(role)))

	created, err := s.repo.FindByUsername(ctx, user.Username)
	if err != nil {
		return nil, fmt.Errorf("load registered user: %w", err)
	}
	return created, nil
}

// ValidateUser checks the credentials of username. It returns the user on
// success and (nil, nil) when the user is unknown, disabled or the password
// is wrong; the cases are indistinguishable to the caller. Errors are
// returned only for persistence failures.
func (s *UserService) ValidateUser(ctx context.Context, username, pass string) (*models.User, error) {
	return s.validate(ctx, username, pass, "")
}

// ValidateUserWithRole is ValidateUser restricted to accounts of role.
// Accounts of another role get (nil, nil).
func (s *UserService) ValidateUserWithRole(ctx context.Context, username, pass string, role models.Role) (*models.User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	}
	return s.validate(ctx, username, pass, role)
}

// validate checks the password before role and status so that every
// rejection costs one hash verification.
func (s *UserService) validate(ctx context.Context, username, pass string, role models.Role) (*models.User, error) {
	user, err := s.repo.FindByUsername(ctx, username)
	if errors.Is(err, models.ErrUserNotFound) {
		_ = s.hasher.Verify(pass, password.DummyHash)
		s.log.Debug("login: no such user", zap.String("username", username))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.hasher.Verify(pass, user.PasswordHash); err != nil {
		if !errors.Is(err, password.ErrMismatch) {
			s.log.Warn("login: stored hash unusable", zap.String("username", username), zap.Error(err))
		}
		s.log.Debug("login: credential mismatch", zap.String("username", username))
		return nil, nil
	}
	if !user.Active() {
		s.log.Debug("login: account disabled", zap.String("username", username))
		return nil, nil
	}
	if role != "" && user.Role.OrDefault() != role {
		s.log.Debug("login: role not allowed", zap.String("username", username), zap.String("role", string(role)))
		return nil, nil
	}

	if s.hasher.NeedsRehash(user.PasswordHash) {
		s.upgradeHash(ctx, user, pass)
	}

	at := s.now().UTC()
	if err := s.repo.TouchLastLogin(ctx, user.Username, at); err != nil {
		return nil, err
	}
	user.LastLoginAt = &at
	return user, nil
}

// upgradeHash replaces a legacy or outdated hash. Failures are logged and
// do not fail the login.
func (s *UserService) upgradeHash(ctx context.Context, user *models.User, pass string) {
	hash, err := s.hasher.Hash(pass)
	if err != nil {
		s.log.Warn("login: rehash failed", zap.String("username", user.Username), zap.Error(err))
		return
	}
	upgraded := *user
	upgraded.PasswordHash = hash
	saved, err := s.repo.Save(ctx, upgraded)
	if err != nil {
		s.log.Warn("login: saving rehashed password failed", zap.String("username", user.Username), zap.Error(err))
		return
	}
	*user = *saved
	s.log.Info("login: password hash upgraded", zap.String("username", user.Username))
}

func validateRegistration(username, displayName, email string, role models.Role, pass string) error {
	switch {
	case username == "":
		return fmt.Errorf("%w: username is required", ErrInvalidInput)
	case utf8.RuneCountInString(username) > maxUsernameLen:
		return fmt.Errorf("%w: username longer than %d characters", ErrInvalidInput, maxUsernameLen)
	case strings.ContainsFunc(username, unicode.IsSpace):
		return fmt.Errorf("%w: username must not contain whitespace", ErrInvalidInput)
	case utf8.RuneCountInString(displayName) > maxDisplayNameLen:
		return fmt.Errorf("%w: display name longer than %d characters", ErrInvalidInput, maxDisplayNameLen)
	case !role.Valid():
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, role)
	case len(pass) < minPasswordLen:
		return fmt.Errorf("%w: password shorter than %d characters", ErrInvalidInput, minPasswordLen)
	case len(pass) > maxPasswordLen:
		return fmt.Errorf("%w: password longer than %d characters", ErrInvalidInput, maxPasswordLen)
	}
	if email != "" {
		addr, err := mail.ParseAddress(email)
		if err != nil || addr.Address != email || len(email) > maxEmailLen {
			return fmt.Errorf("%w: malformed email", ErrInvalidInput)
		}
	}
	return nil
}
