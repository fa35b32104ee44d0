package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/atinyakov/safeplay/internal/models"
)

// MemoryUserRepository keeps users in process memory. It is used when no
// database DSN is configured and in tests.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	users map[string]models.User
	now   func() time.Time
}

// NewMemoryUserRepository returns an empty in-memory repository.
func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{
		users: make(map[string]models.User),
		now:   time.Now,
	}
}

// Save inserts or fully overwrites the user, keeping the original CreatedAt.
// It returns models.ErrUserExists if another user holds the email.
func (r *MemoryUserRepository) Save(_ context.Context, user models.User) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.emailTaken(user.Email, user.Username) {
		return nil, models.ErrUserExists
	}
	user.Role = user.Role.OrDefault()
	if prev, ok := r.users[user.Username]; ok {
		user.CreatedAt = prev.CreatedAt
	} else {
		user.CreatedAt = r.now().UTC()
	}
	user.LastLoginAt = copyTime(user.LastLoginAt)
	r.users[user.Username] = user
	return clone(user), nil
}

// Create inserts a new user or returns models.ErrUserExists.
func (r *MemoryUserRepository) Create(_ context.Context, user models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.users[user.Username]; ok {
		return models.ErrUserExists
	}
	if r.emailTaken(user.Email, user.Username) {
		return models.ErrUserExists
	}
	user.Role = user.Role.OrDefault()
	user.CreatedAt = r.now().UTC()
	user.LastLoginAt = nil
	r.users[user.Username] = user
	return nil
}

// Exists reports whether username is stored.
func (r *MemoryUserRepository) Exists(_ context.Context, username string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.users[username]
	return ok, nil
}

// ExistsBy reports whether a user with field = value is stored.
func (r *MemoryUserRepository) ExistsBy(_ context.Context, field models.LookupField, value string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch field {
	case models.FieldUsername:
		_, ok := r.users[value]
		return ok, nil
	case models.FieldEmail:
		return r.emailTaken(value, ""), nil
	default:
		return false, models.ErrUnknownField
	}
}

// SetDisabled enables or disables login for username.
func (r *MemoryUserRepository) SetDisabled(_ context.Context, username string, disabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[username]
	if !ok {
		return models.ErrUserNotFound
	}
	u.Disabled = disabled
	r.users[username] = u
	return nil
}

// FindByUsername returns the user or models.ErrUserNotFound.
func (r *MemoryUserRepository) FindByUsername(_ context.Context, username string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.users[username]
	if !ok {
		return nil, models.ErrUserNotFound
	}
	return clone(u), nil
}

// FindByDisplayName returns the matching user with the smallest username,
// or models.ErrUserNotFound.
func (r *MemoryUserRepository) FindByDisplayName(_ context.Context, displayName string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matches []string
	for name, u := range r.users {
		if u.DisplayName == displayName {
			matches = append(matches, name)
		}
	}
	if len(matches) == 0 {
		return nil, models.ErrUserNotFound
	}
	sort.Strings(matches)
	return clone(r.users[matches[0]]), nil
}

// TouchLastLogin sets the last login time of an existing user.
func (r *MemoryUserRepository) TouchLastLogin(_ context.Context, username string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[username]
	if !ok {
		return models.ErrUserNotFound
	}
	at = at.UTC()
	u.LastLoginAt = &at
	r.users[username] = u
	return nil
}

// emailTaken reports whether a user other than owner holds email.
// Callers hold r.mu.
func (r *MemoryUserRepository) emailTaken(email, owner string) bool {
	if email == "" {
		return false
	}
	for name, u := range r.users {
		if name != owner && u.Email == email {
			return true
		}
	}
	return false
}

func clone(u models.User) *models.User {
	u.LastLoginAt = copyTime(u.LastLoginAt)
	return &u
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
