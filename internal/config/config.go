// Package config provides functionality for managing configuration options
// for the application using command-line flags, a JSON file and environment
// variables.
package config

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/atinyakov/safeplay/internal/middleware"
)

// Options holds the configuration values for the application.
type Options struct {
	// Port defines the server's listening address (ip:port).
	Port string `json:"port"`

	// DatabaseDSN holds the database connection string. Empty selects the
	// in-memory user store.
	DatabaseDSN string `json:"database_dsn"`

	// Config is the path to the Config file.
	Config string `json:"-"`

	// LogLevel is the zap level name.
	LogLevel string `json:"log_level"`

	// TLSCert and TLSKey enable HTTPS when both are set.
	TLSCert string `json:"tls_cert"`
	TLSKey  string `json:"tls_key"`

	// LoginRatePerMinute and LoginRateBurst limit register/login calls per client IP.
	LoginRatePerMinute int `json:"login_rate_per_minute"`
	LoginRateBurst     int `json:"login_rate_burst"`

	// UsernameRatePerMinute and UsernameRateBurst limit login attempts per
	// submitted username, whatever address they come from.
	UsernameRatePerMinute int `json:"username_rate_per_minute"`
	UsernameRateBurst     int `json:"username_rate_burst"`

	// TrustedProxies lists IPs or CIDRs allowed to set X-Forwarded-For and
	// X-Real-IP. Empty means forwarding headers are ignored.
	TrustedProxies []string `json:"trusted_proxies"`
}

// Parse parses the command-line flags and environment variables to set
// configuration values. It exits the process on malformed input.
func Parse() *Options {
	options, err := Load(os.Args[1:], os.Getenv)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	return options
}

// Load builds Options from args, then the JSON config file if it exists,
// then environment variables read through getenv.
func Load(args []string, getenv func(string) string) (*Options, error) {
	options := &Options{}

	fs := flag.NewFlagSet("safeplay", flag.ContinueOnError)
	fs.StringVar(&options.Port, "a", "localhost:8080", "run on ip:port server")
	fs.StringVar(&options.DatabaseDSN, "d", "", "db address")
	fs.StringVar(&options.Config, "config", "config.json", "path to config file")
	fs.StringVar(&options.Config, "c", "config.json", "path to config file (shorthand)")
	fs.StringVar(&options.LogLevel, "l", "info", "log level")
	fs.StringVar(&options.TLSCert, "tls-cert", "", "path to TLS certificate")
	fs.StringVar(&options.TLSKey, "tls-key", "", "path to TLS key")
	fs.IntVar(&options.LoginRatePerMinute, "login-rate", 10, "register/login requests per minute per client")
	fs.IntVar(&options.LoginRateBurst, "login-burst", 5, "register/login burst per client")
	fs.IntVar(&options.UsernameRatePerMinute, "username-rate", 5, "login attempts per minute per username")
	fs.IntVar(&options.UsernameRateBurst, "username-burst", 5, "login burst per username")
	fs.Func("trusted-proxies", "comma-separated IPs or CIDRs of trusted reverse proxies", func(v string) error {
		options.TrustedProxies = splitList(v)
		return nil
	})
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// Override flags with environment variables if set
	if configPath := getenv("CONFIG"); configPath != "" {
		options.Config = configPath
	}

	if options.Config != "" {
		if _, err := os.Stat(options.Config); err == nil {
			data, err := os.ReadFile(options.Config)
			if err != nil {
				return nil, fmt.Errorf("error while reading config file: %w", err)
			}
			if err := json.Unmarshal(data, options); err != nil {
				return nil, fmt.Errorf("error while parsing config file: %w", err)
			}
		}
	}

	if serverAddress := getenv("SERVER_ADDRESS"); serverAddress != "" {
		options.Port = serverAddress
	}
	if dsn := getenv("DATABASE_DSN"); dsn != "" {
		options.DatabaseDSN = dsn
	}
	if level := getenv("LOG_LEVEL"); level != "" {
		options.LogLevel = level
	}
	if cert := getenv("TLS_CERT"); cert != "" {
		options.TLSCert = cert
	}
	if key := getenv("TLS_KEY"); key != "" {
		options.TLSKey = key
	}
	if err := envInt(getenv, "LOGIN_RATE_PER_MIN", &options.LoginRatePerMinute); err != nil {
		return nil, err
	}
	if err := envInt(getenv, "LOGIN_RATE_BURST", &options.LoginRateBurst); err != nil {
		return nil, err
	}

	if err := envInt(getenv, "USERNAME_RATE_PER_MIN", &options.UsernameRatePerMinute); err != nil {
		return nil, err
	}
	if err := envInt(getenv, "USERNAME_RATE_BURST", &options.UsernameRateBurst); err != nil {
		return nil, err
	}
	if proxies := getenv("TRUSTED_PROXIES"); proxies != "" {
		options.TrustedProxies = splitList(proxies)
	}

	if (options.TLSCert == "") != (options.TLSKey == "") {
		return nil, fmt.Errorf("tls cert and key must be set together")
	}
	if options.LoginRatePerMinute <= 0 || options.LoginRateBurst <= 0 {
		return nil, fmt.Errorf("login rate and burst must be positive")
	}
	if options.UsernameRatePerMinute <= 0 || options.UsernameRateBurst <= 0 {
		return nil, fmt.Errorf("username rate and burst must be positive")
	}
	if _, err := middleware.ParseTrustedProxies(options.TrustedProxies); err != nil {
		return nil, err
	}

	return options, nil
}

func envInt(getenv func(string) string, name string, dst *int) error {
	v := getenv(name)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	*dst = n
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
