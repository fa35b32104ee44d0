// Package client is an HTTP client for the SafePlay accounts API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atinyakov/safeplay/internal/models"
)

const (
	apiRegister = "/api/register"
	apiLogin    = "/api/login"
	apiExists   = "/api/users/exists"
)

var (
	// ErrInvalidCredentials is returned by Login on 401.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned by Register on 409.
	ErrUserExists = errors.New("user already exists")
)

// StatusError carries an unexpected HTTP status and the response text.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Client talks to a SafePlay server.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a Client for baseURL. A nil httpClient gets a 10s timeout default.
func New(baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

// Registration is the register payload. Empty fields take server defaults.
type Registration struct {
	Username    string      `json:"username"`
	DisplayName string      `json:"displayName,omitempty"`
	Email       string      `json:"email,omitempty"`
	Password    string      `json:"password"`
	Role        models.Role `json:"role,omitempty"`
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, reg Registration) (*models.User, error) {
	var user models.User
	err := c.postJSON(ctx, apiRegister, reg, http.StatusCreated, &user)
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Login validates credentials and returns the account.
func (c *Client) Login(ctx context.Context, username, password string) (*models.User, error) {
	return c.LoginAs(ctx, username, password, "")
}

// LoginAs is Login restricted to accounts of role. An empty role admits any.
func (c *Client) LoginAs(ctx context.Context, username, password string, role models.Role) (*models.User, error) {
	body := map[string]string{"username": username, "password": password}
	if role != "" {
		body["role"] = string(role)
	}
	var resp struct {
		Status string      `json:"status"`
		User   models.User `json:"user"`
	}
	if err := c.postJSON(ctx, apiLogin, body, http.StatusOK, &resp); err != nil {
		return nil, err
	}
	return &resp.User, nil
}

// Exists reports whether username is registered.
func (c *Client) Exists(ctx context.Context, username string) (bool, error) {
	u := c.baseURL + apiExists + "?" + url.Values{"username": {username}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}
	var resp struct {
		Exists bool `json:"exists"`
	}
	if err := c.do(req, http.StatusOK, &resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}

func (c *Client) postJSON(ctx context.Context, path string, in any, want int, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, want, out)
}

func (c *Client) do(req *http.Request, want int, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == want:
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return ErrInvalidCredentials
	case resp.StatusCode == http.StatusConflict:
		return ErrUserExists
	default:
		text, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(text))}
	}
}
