package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/atinyakov/safeplay/internal/models"
)

func TestClient_Register(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/register", r.URL.Path)
		require.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		if body["username"] == "taken" {
			http.Error(w, "user already exists", http.StatusConflict)
			return
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"username":"` + body["username"] + `","displayName":"` + body["displayName"] +
			`","email":"` + body["email"] + `","role":"` + body["role"] + `"}`))
	}))
	defer srv.Close()

	c := New(srv.URL+"/", nil)
	u, err := c.Register(context.Background(), Registration{
		Username: "alice", DisplayName: "Alice", Email: "a@example.com",
		Password: "correct horse", Role: models.RoleSupervisor,
	})
	require.NoError(t, err)
	require.Equal(t, "alice", u.Username)
	require.Equal(t, "Alice", u.DisplayName)
	require.Equal(t, "a@example.com", u.Email)
	require.Equal(t, models.RoleSupervisor, u.Role)

	_, err = c.Register(context.Background(), Registration{Username: "taken", Password: "correct horse"})
	require.ErrorIs(t, err, ErrUserExists)
}

func TestClient_Login(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		_ = json.NewDecoder(r.Body).Decode(&body)
		if body["role"] != "" && body["role"] != "supervisor" {
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
			return
		}
		switch body["password"] {
		case "right":
			_, _ = w.Write([]byte(`{"status":"ok","user":{"username":"alice"}}`))
		case "boom":
			http.Error(w, "internal error", http.StatusInternalServerError)
		default:
			http.Error(w, "invalid credentials", http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	c := New(srv.URL, srv.Client())
	u, err := c.Login(context.Background(), "alice", "right")
	require.NoError(t, err)
	require.Equal(t, "alice", u.Username)

	u, err = c.LoginAs(context.Background(), "alice", "right", models.RoleSupervisor)
	require.NoError(t, err)
	require.Equal(t, "alice", u.Username)
	_, err = c.LoginAs(context.Background(), "alice", "right", models.RolePlayer)
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = c.Login(context.Background(), "alice", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = c.Login(context.Background(), "alice", "boom")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	require.Equal(t, http.StatusInternalServerError, se.Code)
	require.Equal(t, "internal error", se.Body)
}

func TestClient_Exists(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/users/exists", r.URL.Path)
		exists := r.URL.Query().Get("username") == "alice smith"
		_ = json.NewEncoder(w).Encode(map[string]bool{"exists": exists})
	}))
	defer srv.Close()

	c := New(srv.URL, nil)
	ok, err := c.Exists(context.Background(), "alice smith")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = c.Exists(context.Background(), "bob")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestClient_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := New(url, nil).Exists(context.Background(), "alice")
	require.Error(t, err)
}
