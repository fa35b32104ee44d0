// Package models defines the core data structures for SafePlay users.
package models

import (
	"errors"
	"time"
)

var (
	// ErrUserNotFound is returned by stores when no record matches a lookup.
	ErrUserNotFound = errors.New("user not found")
	// ErrUserExists is returned when creating a user whose username or email is taken.
	ErrUserExists = errors.New("user already exists")
	// ErrUnknownField is returned for a lookup field outside the allow-list.
	ErrUnknownField = errors.New("field not allowed for lookup")
)

// Role is the account kind. Supervisors watch over players.
type Role string

const (
	RolePlayer     Role = "player"
	RoleSupervisor Role = "supervisor"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RolePlayer || r == RoleSupervisor
}

// LookupField names a unique column that existence checks may query.
type LookupField string

const (
	FieldUsername LookupField = "username"
	FieldEmail    LookupField = "email"
)

// Valid reports whether f is in the lookup allow-list.
func (f LookupField) Valid() bool {
	return f == FieldUsername || f == FieldEmail
}

// OrDefault returns r, or RolePlayer when r is empty.
func (r Role) OrDefault() Role {
	if r == "" {
		return RolePlayer
	}
	return r
}

// User represents a SafePlay account.
type User struct {
	// Username is the primary key and the login identity.
	Username string `json:"username"`
	// DisplayName is a non-unique name shown to other players.
	DisplayName string `json:"displayName"`
	// Email is optional and unique when set.
	Email string `json:"email,omitempty"`
	// Role defaults to RolePlayer when empty.
	Role Role `json:"role"`
	// Disabled accounts cannot log in. The zero value is an active account.
	Disabled bool `json:"disabled"`
	// PasswordHash is the encoded password hash. It is never serialized.
	PasswordHash string `json:"-"`
	// CreatedAt is set by the store on first insert.
	CreatedAt time.Time `json:"createdAt"`
	// LastLoginAt is the time of the last successful credential validation.
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// Active reports whether the account may log in.
func (u User) Active() bool { return !u.Disabled }
