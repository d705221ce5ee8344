// Package config handles application configuration.
//
// It provides:
//   - Flag parsing with CLI arguments
//   - Environment variable support (with CLI override)
//   - Optional .env file loading
//   - Configuration validation
//   - Precedence: CLI flags > environment variables > .env file > defaults
//
// Supported environment variables:
//   - RISE_ENTRY_PATH: Path to the account entry file (credentials and refresh token)
//   - RISE_USERNAME: Rise Gardens account email
//   - RISE_PASSWORD: Rise Gardens account password
//   - RISE_PORT: HTTP server port
//   - RISE_POLL_INTERVAL: Polling interval (seconds)
//   - RISE_LOG_LEVEL: Logging level (debug, info, warn, error)
//   - RISE_LOG_FORMAT: Log output format (json, text)
//   - RISE_API_BASE: Garden API base URL
//   - RISE_AUTH_DOMAIN: Auth0 domain of the identity provider
//   - RISE_BREAKER_FAILURES: Consecutive poll failures before the circuit opens (0 disables)
//   - RISE_SCHEDULE_CACHE_TTL: How long light and pump schedules are cached (seconds)
//
// Example usage:
//
//	_ = config.LoadDotEnv()
//	cfg := config.Load()
//	if err := cfg.Validate(); err != nil {
//		log.Fatal(err)
//	}
package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/andreweacott/risegarden-exporter/pkg/auth"
	"github.com/andreweacott/risegarden-exporter/pkg/garden"
	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	// Account entry
	EntryPath string
	Username  string
	Password  string

	// Server configuration
	Port int

	// Rise Gardens API configuration
	APIBase         string
	AuthDomain      string
	PollInterval    int
	BreakerFailures int
	ScheduleTTL     int

	// Logging
	LogLevel  string
	LogFormat string
}

// LoadDotEnv loads variables from the given .env files (".env" when none
// are given) without overriding variables that are already set. Missing
// files are ignored.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if err := godotenv.Load(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", p, err)
		}
	}
	return nil
}

// Load parses environment variables and command-line flags and returns a Config
// Precedence: CLI flags > environment variables > defaults
func Load() *Config {
	return LoadWithArgs(os.Args[1:])
}

// LoadWithArgs loads configuration with explicit arguments (useful for testing)
func LoadWithArgs(args []string) *Config {
	cfg := &Config{}

	homeDir := os.Getenv("HOME")
	if homeDir == "" {
		homeDir = "/root"
	}
	defaultEntryPath := filepath.Join(homeDir, ".risegarden-exporter", "entry.yaml")

	fs := flag.NewFlagSet("config", flag.ContinueOnError)

	fs.StringVar(&cfg.EntryPath, "entry-path", envOr("RISE_ENTRY_PATH", defaultEntryPath), "Path of the account entry file (env: RISE_ENTRY_PATH)")
	fs.StringVar(&cfg.Username, "username", os.Getenv("RISE_USERNAME"), "Rise Gardens account email (env: RISE_USERNAME)")
	fs.StringVar(&cfg.Password, "password", os.Getenv("RISE_PASSWORD"), "Rise Gardens account password (env: RISE_PASSWORD)")

	// Server configuration
	fs.IntVar(&cfg.Port, "port", parseEnvInt(os.Getenv("RISE_PORT"), 9100), "HTTP server listen port (env: RISE_PORT)")

	// API configuration
	fs.StringVar(&cfg.APIBase, "api-base", envOr("RISE_API_BASE", garden.DefaultBaseURL), "Garden API base URL (env: RISE_API_BASE)")
	fs.StringVar(&cfg.AuthDomain, "auth-domain", envOr("RISE_AUTH_DOMAIN", auth.DefaultAuthDomain), "Auth0 domain (env: RISE_AUTH_DOMAIN)")
	fs.IntVar(&cfg.PollInterval, "poll-interval", parseEnvInt(os.Getenv("RISE_POLL_INTERVAL"), 60), "Polling interval in seconds (env: RISE_POLL_INTERVAL)")
	fs.IntVar(&cfg.BreakerFailures, "breaker-failures", parseEnvInt(os.Getenv("RISE_BREAKER_FAILURES"), 0), "Consecutive failures before the circuit breaker opens, 0 disables (env: RISE_BREAKER_FAILURES)")
	fs.IntVar(&cfg.ScheduleTTL, "schedule-cache-ttl", parseEnvInt(os.Getenv("RISE_SCHEDULE_CACHE_TTL"), 300), "Seconds to cache light and pump schedules (env: RISE_SCHEDULE_CACHE_TTL)")

	// Logging
	fs.StringVar(&cfg.LogLevel, "log-level", envOr("RISE_LOG_LEVEL", "info"), "Logging verbosity: debug, info, warn, error (env: RISE_LOG_LEVEL)")
	fs.StringVar(&cfg.LogFormat, "log-format", envOr("RISE_LOG_FORMAT", "json"), "Log output format: json, text (env: RISE_LOG_FORMAT)")

	// FlagSet is configured with ContinueOnError, so parse errors are handled gracefully
	_ = fs.Parse(args)

	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parseEnvInt parses an environment variable as an integer, returning default if invalid
func parseEnvInt(envValue string, defaultValue int) int {
	if envValue == "" {
		return defaultValue
	}
	var result int
	_, err := fmt.Sscanf(envValue, "%d", &result)
	if err != nil {
		return defaultValue
	}
	return result
}

// Validate checks if the configuration is valid. Credentials may also come
// from the entry file, so they are not required here.
func (c *Config) Validate() error {
	if c.EntryPath == "" {
		return fmt.Errorf("entry-path is required (use -entry-path flag or RISE_ENTRY_PATH env var)")
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be between 1 and 65535)", c.Port)
	}

	if c.PollInterval < 1 {
		return fmt.Errorf("invalid poll-interval: %d (must be at least 1 second)", c.PollInterval)
	}

	if c.BreakerFailures < 0 {
		return fmt.Errorf("invalid breaker-failures: %d (must not be negative)", c.BreakerFailures)
	}

	if c.ScheduleTTL < 1 {
		return fmt.Errorf("invalid schedule-cache-ttl: %d (must be at least 1 second)", c.ScheduleTTL)
	}

	if u, err := url.Parse(c.APIBase); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("invalid api-base: %q (must be an absolute URL)", c.APIBase)
	}

	if c.AuthDomain == "" {
		return fmt.Errorf("auth-domain is required")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[c.LogLevel] {
		return fmt.Errorf("invalid log-level: %s (must be one of: debug, info, warn, error)", c.LogLevel)
	}

	if c.LogFormat != "json" && c.LogFormat != "text" {
		return fmt.Errorf("invalid log-format: %s (must be json or text)", c.LogFormat)
	}

	return nil
}

// PollIntervalDuration returns the polling interval
func (c *Config) PollIntervalDuration() time.Duration {
	return time.Duration(c.PollInterval) * time.Second
}

// ScheduleTTLDuration returns the schedule cache TTL
func (c *Config) ScheduleTTLDuration() time.Duration {
	return time.Duration(c.ScheduleTTL) * time.Second
}

// TokenURL returns the token endpoint of the configured Auth0 domain
func (c *Config) TokenURL() string {
	return auth.TokenURL(c.AuthDomain)
}

// String returns a string representation of the config (without sensitive data)
func (c *Config) String() string {
	return fmt.Sprintf("Config{Port: %d, EntryPath: %s, Username: %s, APIBase: %s, AuthDomain: %s, PollInterval: %ds, BreakerFailures: %d, ScheduleTTL: %ds, LogLevel: %s, LogFormat: %s}",
		c.Port, c.EntryPath, c.Username, c.APIBase, c.AuthDomain, c.PollInterval, c.BreakerFailures, c.ScheduleTTL, c.LogLevel, c.LogFormat)
}
