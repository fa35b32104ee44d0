// Package repository provides persistence implementations for SafePlay users.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/atinyakov/safeplay/internal/models"
)

const userColumns = `username, display_name, email, role, disabled, password_hash, created_at, last_login_at`

// PostgresUserRepository implements user persistence using a PostgreSQL database.
type PostgresUserRepository struct {
	// DB is the database handle for executing queries.
	DB *sql.DB
}

// NewPostgresUserRepository creates a new PostgresUserRepository with the given database connection.
// db must be a valid *sql.DB connected to a PostgreSQL instance.
func NewPostgresUserRepository(db *sql.DB) *PostgresUserRepository {
	return &PostgresUserRepository{DB: db}
}

// Save inserts the user or fully overwrites the record with the same username.
// created_at is kept from the first insert. The stored record is returned.
func (r *PostgresUserRepository) Save(ctx context.Context, user models.User) (*models.User, error) {
	row := r.DB.QueryRowContext(ctx, `
		INSERT INTO users (username, display_name, email, role, disabled, password_hash, last_login_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (username) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			email = EXCLUDED.email,
			role = EXCLUDED.role,
			disabled = EXCLUDED.disabled,
			password_hash = EXCLUDED.password_hash,
			last_login_at = EXCLUDED.last_login_at
		RETURNING `+userColumns,
		user.Username, user.DisplayName, nullString(user.Email), string(user.Role.OrDefault()),
		user.Disabled, user.PasswordHash, user.LastLoginAt,
	)
	saved, err := scanUser(row)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, models.ErrUserExists
		}
		return nil, fmt.Errorf("save user: %w", err)
	}
	return saved, nil
}

// Create inserts a new user. It returns models.ErrUserExists if the
// username or the email is already taken.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	res, err := r.DB.ExecContext(ctx,
		`INSERT INTO users (username, display_name, email, role, disabled, password_hash)
		VALUES ($1, $2, $3, $4, $5, $6) ON CONFLICT DO NOTHING`,
		user.Username, user.DisplayName, nullString(user.Email), string(user.Role.OrDefault()),
		user.Disabled, user.PasswordHash,
	)
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("create user: %w", err)
	}
	if n == 0 {
		return models.ErrUserExists
	}
	return nil
}

// Exists checks whether a user with the specified username exists in the database.
func (r *PostgresUserRepository) Exists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := r.DB.QueryRowContext(
		ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`,
		username,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

// ExistsBy checks whether a user with field = value exists. field must be
// in the lookup allow-list; the column name is never taken from input.
func (r *PostgresUserRepository) ExistsBy(ctx context.Context, field models.LookupField, value string) (bool, error) {
	var query string
	switch field {
	case models.FieldUsername:
		query = `SELECT EXISTS(SELECT 1 FROM users WHERE username = $1)`
	case models.FieldEmail:
		query = `SELECT EXISTS(SELECT 1 FROM users WHERE email = $1)`
	default:
		return false, models.ErrUnknownField
	}

	var exists bool
	if err := r.DB.QueryRowContext(ctx, query, value).Scan(&exists); err != nil {
		return false, fmt.Errorf("check user exists by %s: %w", field, err)
	}
	return exists, nil
}

// SetDisabled enables or disables login for username.
func (r *PostgresUserRepository) SetDisabled(ctx context.Context, username string, disabled bool) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET disabled = $2 WHERE username = $1`,
		username, disabled,
	)
	if err != nil {
		return fmt.Errorf("set disabled: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("set disabled: %w", err)
	}
	if n == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

// FindByUsername returns the user with the given primary key,
// or models.ErrUserNotFound.
func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`,
		username,
	)
	u, err := scanUser(row)
	if err != nil {
		return nil, lookupErr("find user by username", err)
	}
	return u, nil
}

// FindByDisplayName returns a user whose display name matches, or
// models.ErrUserNotFound. Display names are not unique; when several users
// share one, the smallest username is returned.
func (r *PostgresUserRepository) FindByDisplayName(ctx context.Context, displayName string) (*models.User, error) {
	row := r.DB.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE display_name = $1 ORDER BY username LIMIT 1`,
		displayName,
	)
	u, err := scanUser(row)
	if err != nil {
		return nil, lookupErr("find user by display name", err)
	}
	return u, nil
}

// TouchLastLogin records a successful login at the given time.
func (r *PostgresUserRepository) TouchLastLogin(ctx context.Context, username string, at time.Time) error {
	res, err := r.DB.ExecContext(ctx,
		`UPDATE users SET last_login_at = $2 WHERE username = $1`,
		username, at,
	)
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch last login: %w", err)
	}
	if n == 0 {
		return models.ErrUserNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*models.User, error) {
	var (
		u         models.User
		email     sql.NullString
		role      string
		lastLogin sql.NullTime
	)
	if err := row.Scan(&u.Username, &u.DisplayName, &email, &role, &u.Disabled,
		&u.PasswordHash, &u.CreatedAt, &lastLogin); err != nil {
		return nil, err
	}
	u.Email = email.String
	u.Role = models.Role(role)
	if lastLogin.Valid {
		t := lastLogin.Time
		u.LastLoginAt = &t
	}
	return &u, nil
}

// nullString stores an empty email as NULL so that UNIQUE ignores it.
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// isUniqueViolation matches SQLSTATE 23505, which Save can hit on the email column.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func lookupErr(op string, err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return models.ErrUserNotFound
	}
	return fmt.Errorf("%s: %w", op, err)
}
