// Package main initializes and starts the SafePlay accounts server,
// setting up configuration, logging, the user store, services, handlers,
// and optional TLS.
package main

import (
	"cmp"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	nethttp "net/http"

	"github.com/atinyakov/safeplay/internal/config"
	"github.com/atinyakov/safeplay/internal/db"
	"github.com/atinyakov/safeplay/internal/logger"
	"github.com/atinyakov/safeplay/internal/middleware"
	"github.com/atinyakov/safeplay/internal/password"
	"github.com/atinyakov/safeplay/internal/repository"
	"github.com/atinyakov/safeplay/internal/server/handler/http"
	"github.com/atinyakov/safeplay/internal/service"
	"go.uber.org/zap"
)

var (
	// version holds the build version set via ldflags.
	version string
	// buildDate holds the build timestamp set via ldflags.
	buildDate string
)

func main() {
	// Parse command-line and environment configuration.
	options := config.Parse()
	addr := options.Port

	// Print build metadata (or "N/A" if unset).
	fmt.Printf("Build version: %s\n", cmp.Or(version, "N/A"))
	fmt.Printf("Build date: %s\n", cmp.Or(buildDate, "N/A"))

	// Initialize structured logging.
	log := logger.New()
	defer func() { _ = log.Log.Sync() }()
	if err := log.Init(options.LogLevel); err != nil {
		fmt.Fprintf(os.Stderr, "failed to init logger: %v\n", err)
		os.Exit(1)
	}
	zapLogger := log.Log

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Pick the user store: PostgreSQL when a DSN is configured, memory otherwise.
	var userRepo service.UserRepository
	if options.DatabaseDSN != "" {
		postgresDB, err := db.InitPostgres(options.DatabaseDSN)
		if err != nil {
			zapLogger.Fatal("cannot init database", zap.Error(err))
		}
		defer postgresDB.Close()
		userRepo = repository.NewPostgresUserRepository(postgresDB)
	} else {
		zapLogger.Warn("no database DSN configured, users are kept in memory")
		userRepo = repository.NewMemoryUserRepository()
	}

	// Initialize business-logic services.
	userService := service.NewUserService(userRepo, password.Hasher{}, zapLogger)

	// Per-address and per-username limiters for credential endpoints.
	trusted, err := middleware.ParseTrustedProxies(options.TrustedProxies)
	if err != nil {
		zapLogger.Fatal("invalid trusted proxies", zap.Error(err))
	}
	ipLimiter := middleware.NewRateLimiter(options.LoginRatePerMinute, options.LoginRateBurst)
	ipLimiter.StartEvictor(ctx, time.Minute, 10*time.Minute, zapLogger)
	userLimiter := middleware.NewRateLimiter(options.UsernameRatePerMinute, options.UsernameRateBurst)
	userLimiter.StartEvictor(ctx, time.Minute, 10*time.Minute, zapLogger)

	// Create HTTP handlers and the router.
	authHandler := &http.AuthHandler{UserService: userService, Logger: zapLogger}
	router := http.NewRouter(authHandler, http.RouterOptions{
		IPLimiter:       ipLimiter,
		UsernameLimiter: userLimiter,
		TrustedProxies:  trusted,
	}, zapLogger)

	server := &nethttp.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       time.Minute,
	}

	useTLS := options.TLSCert != ""
	if useTLS {
		server.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	errCh := make(chan error, 1)
	go func() {
		zapLogger.Info("starting server", zap.String("addr", addr), zap.Bool("tls", useTLS))
		var err error
		if useTLS {
			err = server.ListenAndServeTLS(options.TLSCert, options.TLSKey)
		} else {
			err = server.ListenAndServe()
		}
		if !errors.Is(err, nethttp.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			zapLogger.Fatal("server failed", zap.Error(err))
		}
	case <-ctx.Done():
	}

	zapLogger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("graceful shutdown failed", zap.Error(err))
	}
}
