// Package config provides centralized configuration for the TED server.
//
// Values come from, in increasing precedence: the `default` tag, an
// optional TOML profile named by TED_CONFIG_FILE, and environment
// variables. Everything is validated on startup to fail fast on
// misconfiguration.
package config

import (
	"strconv"
	"time"
)

// ProfileEnv names the environment variable holding the TOML profile path.
const ProfileEnv = "TED_CONFIG_FILE"

// Config holds all application configuration.
//
// Each leaf field names its environment variable with `env` and its
// profile key with `toml`; a section's `toml` tag is the profile table.
type Config struct {
	Server   ServerConfig    `toml:"server"`
	Database DatabaseConfig  `toml:"database"`
	Format   FormatConfig    `toml:"format"`
	Jobs     JobsConfig      `toml:"jobs"`
	Rate     RateLimitConfig `toml:"rate_limit"`
	Security SecurityConfig  `toml:"security"`
	Logging  LoggingConfig   `toml:"logging"`
	Watch    WatchConfig     `toml:"watch"`
	Export   ExportConfig    `toml:"export"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" toml:"host" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" toml:"port" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 30s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" toml:"read_timeout" default:"30s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" toml:"write_timeout" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" toml:"idle_timeout" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" toml:"shutdown_timeout" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 2m)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" toml:"request_timeout" default:"2m"`
}

// DatabaseConfig holds archive database settings. Archiving is disabled
// when URL is empty.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string.
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" toml:"url"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" toml:"max_conns" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" toml:"min_conns" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" toml:"max_conn_lifetime" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" toml:"max_conn_idle_time" default:"30m"`
}

// Enabled reports whether an archive database is configured.
func (c *DatabaseConfig) Enabled() bool { return c.URL != "" }

// FormatConfig holds the body conventions used when a file's header does
// not set DELIMITER or MISSING.
type FormatConfig struct {
	// Delimiter is a single character, or `\t` for tab (default: ,)
	Delimiter string `env:"TED_DELIMITER" toml:"delimiter" default:","`

	// Missing is the missing-value token (default: NA)
	Missing string `env:"TED_MISSING" toml:"missing" default:"NA"`
}

// JobsConfig holds limits for file processing.
type JobsConfig struct {
	// MaxFileSize is the maximum accepted file size in bytes (default: 100MB)
	MaxFileSize int64 `env:"UPLOAD_MAX_FILE_SIZE" toml:"max_file_size" default:"104857600"`

	// MaxConcurrent is the maximum number of files processed at once (default: 4)
	MaxConcurrent int `env:"JOBS_MAX_CONCURRENT" envAlt:"UPLOAD_MAX_CONCURRENT" toml:"max_concurrent" default:"4"`

	// MaxWaitTime is how long a request waits for a job slot (default: 30s)
	MaxWaitTime time.Duration `env:"JOBS_MAX_WAIT_TIME" toml:"max_wait_time" default:"30s"`

	// ListLimit is the default page size of GET /api/archive (default: 50)
	ListLimit int `env:"ARCHIVE_LIST_LIMIT" toml:"list_limit" default:"50"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" toml:"enabled" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" toml:"requests_per_minute" default:"100"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES" toml:"trusted_proxies"`

	// RequireAPIKey protects the archive write endpoint (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" toml:"require_api_key" default:"false"`

	// APIKeys is a comma-separated list of accepted X-API-Key values
	APIKeys []string `env:"API_KEYS" toml:"api_keys"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" toml:"level" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" toml:"format" default:"text"`
}

// WatchConfig holds the inbox watcher settings. The watcher is off when
// Dir is empty.
type WatchConfig struct {
	// Dir is the directory watched for new .ted files
	Dir string `env:"WATCH_DIR" toml:"dir"`

	// Debounce is the quiet period after the last write before a file is handled (default: 500ms)
	Debounce time.Duration `env:"WATCH_DEBOUNCE" toml:"debounce" default:"500ms"`

	// Archive stores valid files after linting (default: false)
	Archive bool `env:"WATCH_ARCHIVE" toml:"archive" default:"false"`

	// ScanOnStart handles files already in Dir at startup (default: true)
	ScanOnStart bool `env:"WATCH_SCAN_ON_START" toml:"scan_on_start" default:"true"`
}

// ExportConfig holds Parquet export settings.
type ExportConfig struct {
	// Compression is one of none, snappy, gzip, zstd (default: snappy)
	Compression string `env:"EXPORT_COMPRESSION" toml:"compression" default:"snappy"`

	// RowGroupSize is rows per Parquet row group, 0 for one group (default: 0)
	RowGroupSize int64 `env:"EXPORT_ROW_GROUP_SIZE" toml:"row_group_size" default:"0"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}
