package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// dummyHandler records if it was called and the context it received.
type dummyHandler struct {
	called bool
	ctx    context.Context
	status int
}

func (d *dummyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	d.called = true
	d.ctx = r.Context()
	if d.status != 0 {
		w.WriteHeader(d.status)
	}
	_, _ = w.Write([]byte("ok"))
}

func TestWithRequestLogging_GeneratesRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	dummy := &dummyHandler{status: http.StatusCreated}
	h := WithRequestLogging(zap.New(core))(dummy)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/api/register", nil)
	h.ServeHTTP(rec, req)

	require.True(t, dummy.called)
	reqID := rec.Header().Get(RequestIDHeader)
	require.NotEmpty(t, reqID)
	require.Equal(t, reqID, GetRequestIDFromContext(dummy.ctx))

	entries := logs.FilterMessage("request").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "POST", fields["method"])
	require.Equal(t, "/api/register", fields["path"])
	require.EqualValues(t, http.StatusCreated, fields["status"])
	require.EqualValues(t, 2, fields["bytes"])
	require.Equal(t, reqID, fields["request_id"])
}

func TestWithRequestLogging_KeepsIncomingRequestID(t *testing.T) {
	dummy := &dummyHandler{}
	h := WithRequestLogging(zap.NewNop())(dummy)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	h.ServeHTTP(rec, req)

	require.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
	require.Equal(t, "abc-123", GetRequestIDFromContext(dummy.ctx))
}

func TestWithRequestLogging_ReplacesUntrustedRequestID(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	h := WithRequestLogging(zap.New(core))(&dummyHandler{})

	for _, incoming := range []string{
		strings.Repeat("a", 65),
		"abc 123",
		"abc\x00def",
		"<script>alert(1)</script>",
		"ab\u00e9",
	} {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/health", nil)
		req.Header.Set(RequestIDHeader, incoming)
		h.ServeHTTP(rec, req)

		got := rec.Header().Get(RequestIDHeader)
		require.NotEqual(t, incoming, got)
		_, err := uuid.Parse(got)
		require.NoError(t, err, "expected a generated UUID for %q", incoming)
	}

	for _, entry := range logs.FilterMessage("request").All() {
		require.LessOrEqual(t, len(entry.ContextMap()["request_id"].(string)), maxRequestIDLen)
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	longest := strings.Repeat("7", maxRequestIDLen)
	req.Header.Set(RequestIDHeader, longest)
	h.ServeHTTP(rec, req)
	require.Equal(t, longest, rec.Header().Get(RequestIDHeader))
}

func TestGetRequestIDFromContext_Missing(t *testing.T) {
	require.Empty(t, GetRequestIDFromContext(context.Background()))
}
