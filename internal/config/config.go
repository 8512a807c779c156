// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
	_ "time/tzdata" // EXPORT_DATE_TIMEZONE must resolve on hosts without zoneinfo
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Reconcile ReconcileConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 0 for SSE)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 5m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"5m"`
}

// DatabaseConfig holds record store settings.
type DatabaseConfig struct {
	// Driver selects the record store: postgres or memory (default: postgres)
	Driver string `env:"STORE_DRIVER" default:"postgres"`

	// URL is the PostgreSQL connection string (required for the postgres driver)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// SeedFiles lists CSVs loaded into the memory store at startup, as
	// dataset=path pairs (memory driver only)
	SeedFiles []string `env:"MEMORY_SEED_FILES"`

	// AutoMigrate creates missing dataset tables at startup (default: false)
	AutoMigrate bool `env:"DB_AUTO_MIGRATE" default:"false"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ReconcileConfig holds reconciliation run settings.
type ReconcileConfig struct {
	// FetchTimeout bounds the authoritative snapshot query (default: 30s)
	FetchTimeout time.Duration `env:"RECONCILE_FETCH_TIMEOUT" default:"30s"`

	// SubmitTimeout bounds the batch edit request (default: 2m)
	SubmitTimeout time.Duration `env:"RECONCILE_SUBMIT_TIMEOUT" default:"2m"`

	// MaxConcurrentRuns is the maximum number of parallel runs (default: 5)
	MaxConcurrentRuns int `env:"RECONCILE_MAX_CONCURRENT_RUNS" default:"5"`

	// RunWaitTime is how long to wait for a run slot (default: 30s)
	RunWaitTime time.Duration `env:"RECONCILE_RUN_WAIT_TIME" default:"30s"`

	// MaxFileSize is the maximum allowed upload size in bytes (default: 100MB)
	MaxFileSize int64 `env:"RECONCILE_MAX_FILE_SIZE" default:"104857600"`

	// DateLayout is the Go time layout for exported date fields (default: 1/2/2006)
	DateLayout string `env:"EXPORT_DATE_LAYOUT" default:"1/2/2006"`

	// DateTimezone is the IANA zone exported dates are shown in (default: UTC)
	DateTimezone string `env:"EXPORT_DATE_TIMEZONE" default:"UTC"`

	// HistoryLimit is the number of runs returned by the history endpoint (default: 50)
	HistoryLimit int `env:"RECONCILE_HISTORY_LIMIT" default:"50"`
}

// Location returns the export time zone, falling back to UTC.
func (c *ReconcileConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.DateTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// ReconcileLimit is requests per minute for reconcile endpoints (default: 10)
	ReconcileLimit int `env:"RATE_LIMIT_RECONCILE" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// EnableCSP enables Content-Security-Policy headers (default: true)
	EnableCSP bool `env:"SECURITY_ENABLE_CSP" default:"true"`

	// RequireAPIKey enables API key authentication on /api routes (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted API keys
	APIKeys []string `env:"API_KEYS"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
