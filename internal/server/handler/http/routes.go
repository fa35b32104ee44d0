// Package http provides HTTP routing and middleware configuration
// for the SafePlay service.
package http

import (
	"net"
	"net/http"

	"github.com/atinyakov/safeplay/internal/middleware"
	"go.uber.org/zap"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// RouterOptions configures the optional parts of the router.
type RouterOptions struct {
	// IPLimiter limits register and login per client address.
	IPLimiter *middleware.RateLimiter
	// UsernameLimiter limits login attempts per submitted username.
	UsernameLimiter *middleware.RateLimiter
	// TrustedProxies may set the client address through X-Forwarded-For
	// or X-Real-IP. Empty means the socket peer is always the client.
	TrustedProxies []*net.IPNet
}

// NewRouter constructs and returns an HTTP handler that serves
// the SafePlay API.
//
// Routes:
//
//	GET  /health                                  → "OK"
//	POST /api/register                            → authHandler.Register (rate limited)
//	POST /api/login                               → authHandler.Login (rate limited)
//	GET  /api/users/exists?username=|email=       → authHandler.Exists
//	GET  /api/users/by-display-name/{displayName} → authHandler.ByDisplayName
//
// Middleware chain (applied in order):
//  1. TrustedRealIP(opts.TrustedProxies) — client address, from headers only via trusted proxies
//  2. WithRequestLogging(logger)         — request id and access log
//  3. Recoverer                          — turns panics into 500
//  4. AllowContentType on POST routes    — rejects non-JSON bodies
//  5. opts.IPLimiter on auth routes      — per-address token bucket
//  6. opts.UsernameLimiter on login      — per-username token bucket
func NewRouter(
	authHandler *AuthHandler,
	opts RouterOptions,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.TrustedRealIP(opts.TrustedProxies))
	r.Use(middleware.WithRequestLogging(logger))
	r.Use(chiMiddleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("OK"))
	})

	r.Route("/api", func(r chi.Router) {
		// Credential endpoints: JSON only, rate limited
		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.AllowContentType("application/json"))
			if opts.IPLimiter != nil {
				r.Use(opts.IPLimiter.Middleware(middleware.ByClientIP))
			}
			r.Post("/register", authHandler.Register)

			login := http.HandlerFunc(authHandler.Login)
			if opts.UsernameLimiter != nil {
				r.With(opts.UsernameLimiter.Middleware(middleware.ByJSONField("username", maxBodyBytes))).
					Post("/login", login)
			} else {
				r.Post("/login", login)
			}
		})

		r.Get("/users/exists", authHandler.Exists)
		r.Get("/users/by-display-name/{displayName}", authHandler.ByDisplayName)
	})

	return r
}
