// Package http provides HTTP handlers for user registration, login
// and lookups.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/atinyakov/safeplay/internal/models"
	"github.com/atinyakov/safeplay/internal/service"
)

// maxBodyBytes bounds JSON request bodies.
const maxBodyBytes = 1 << 20

// UserService defines the user operations required by the HTTP handlers.
type UserService interface {
	// Register creates a user with a hashed password.
	Register(ctx context.Context, reg service.Registration) (*models.User, error)
	// ValidateUser returns the user for valid credentials and nil otherwise.
	ValidateUser(ctx context.Context, username, password string) (*models.User, error)
	// ValidateUserWithRole is ValidateUser limited to one role.
	ValidateUserWithRole(ctx context.Context, username, password string, role models.Role) (*models.User, error)
	// UserExistsBy checks an allow-listed field such as username or email.
	UserExistsBy(ctx context.Context, field models.LookupField, value string) (bool, error)
	// FindByDisplayName returns a user with that display name or nil.
	FindByDisplayName(ctx context.Context, displayName string) (*models.User, error)
}

// AuthHandler handles HTTP requests for user registration, login and lookups.
type AuthHandler struct {
	// UserService performs the underlying user operations.
	UserService UserService
	// Logger records internal errors. A nil Logger discards them.
	Logger *zap.Logger
}

// RegisterRequest represents the JSON payload for user registration.
type RegisterRequest struct {
	Username    string      `json:"username"`
	DisplayName string      `json:"displayName"`
	Email       string      `json:"email,omitempty"`
	Password    string      `json:"password"`
	Role        models.Role `json:"role,omitempty"`
}

// LoginRequest represents the JSON payload for login. A non-empty Role
// only admits accounts of that role.
type LoginRequest struct {
	Username string      `json:"username"`
	Password string      `json:"password"`
	Role     models.Role `json:"role,omitempty"`
}

// Register handles POST /api/register.
// It answers 201 with the created user, 400 for invalid input and 409
// when the username or email is taken.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Username == "" || req.Password == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	user, err := h.UserService.Register(r.Context(), service.Registration{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Email:       req.Email,
		Password:    req.Password,
		Role:        req.Role,
	})
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, models.ErrUserExists):
		http.Error(w, "user already exists", http.StatusConflict)
		return
	case err != nil:
		h.internalError(w, "register failed", err)
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Login handles POST /api/login.
// Unknown users, wrong passwords, disabled accounts and role mismatches
// all yield 401 "invalid credentials".
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(w, r, &req); err != nil || req.Username == "" {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	var (
		user *models.User
		err  error
	)
	if req.Role != "" {
		user, err = h.UserService.ValidateUserWithRole(r.Context(), req.Username, req.Password, req.Role)
	} else {
		user, err = h.UserService.ValidateUser(r.Context(), req.Username, req.Password)
	}
	if errors.Is(err, service.ErrInvalidInput) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		h.internalError(w, "login failed", err)
		return
	}
	if user == nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"user":   user,
	})
}

// Exists handles GET /api/users/exists?username=... or ?email=...
// Exactly one of the two must be given. The value is used verbatim.
func (h *AuthHandler) Exists(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	username, email := q.Get("username"), q.Get("email")

	var (
		field models.LookupField
		value string
	)
	switch {
	case username != "" && email == "":
		field, value = models.FieldUsername, username
	case email != "" && username == "":
		field, value = models.FieldEmail, email
	default:
		http.Error(w, "username or email is required", http.StatusBadRequest)
		return
	}

	exists, err := h.UserService.UserExistsBy(r.Context(), field, value)
	if err != nil {
		h.internalError(w, "exists check failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"exists": exists})
}

// ByDisplayName handles GET /api/users/by-display-name/{displayName}.
func (h *AuthHandler) ByDisplayName(w http.ResponseWriter, r *http.Request) {
	displayName := chi.URLParam(r, "displayName")
	if displayName == "" {
		http.Error(w, "display name is required", http.StatusBadRequest)
		return
	}

	user, err := h.UserService.FindByDisplayName(r.Context(), displayName)
	if err != nil {
		h.internalError(w, "display name lookup failed", err)
		return
	}
	if user == nil {
		http.Error(w, "user not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

func (h *AuthHandler) internalError(w http.ResponseWriter, msg string, err error) {
	if h.Logger != nil {
		h.Logger.Error(msg, zap.Error(err))
	}
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
