// Package config loads application settings from environment variables,
// applies defaults and validates everything on startup so misconfiguration
// fails fast.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	Import   ImportConfig
	Summary  SummaryConfig
	Rate     RateLimitConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds a whole request including a full import run.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"120s"`
}

// Addr returns the host:port the server binds to.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string        `env:"DATABASE_URL" required:"true"`
	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"4"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// AuthConfig holds session settings.
type AuthConfig struct {
	JWTSecret  string        `env:"JWT_SECRET" required:"true"`
	TokenTTL   time.Duration `env:"AUTH_TOKEN_TTL" default:"24h"`
	BcryptCost int           `env:"AUTH_BCRYPT_COST" default:"10"`
}

// ImportConfig tunes the import pipeline.
type ImportConfig struct {
	// BatchSize caps rows per transaction. It bounds lock hold time on
	// large exports; it does not affect reconciliation correctness.
	BatchSize int `env:"IMPORT_BATCH_SIZE" default:"500"`

	// MaxUploadBytes caps the multipart body size.
	MaxUploadBytes int64 `env:"IMPORT_MAX_UPLOAD_BYTES" default:"20971520"`
}

// SummaryConfig points at the text-generation API. Leaving APIKey empty
// disables the summary endpoint.
type SummaryConfig struct {
	APIKey            string `env:"SUMMARY_API_KEY"`
	BaseURL           string `env:"SUMMARY_BASE_URL" default:"https://api.openai.com"`
	Model             string `env:"SUMMARY_MODEL" default:"gpt-3.5-turbo"`
	RequestsPerMinute int    `env:"SUMMARY_RPM" default:"10"`
	MaxRetries        int    `env:"SUMMARY_MAX_RETRIES" default:"2"`
}

// RateLimitConfig throttles requests per client IP.
type RateLimitConfig struct {
	Enabled           bool `env:"RATE_LIMIT_ENABLED" default:"true"`
	RequestsPerMinute int  `env:"RATE_LIMIT_RPM" default:"100"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL" default:"info"`
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Validate checks cross-field constraints the tag-driven loader cannot.
func (c *Config) Validate() error {
	var problems []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		problems = append(problems, fmt.Sprintf("SERVER_PORT %d out of range", c.Server.Port))
	}
	if c.Database.MinConns > c.Database.MaxConns {
		problems = append(problems, "DB_MIN_CONNS exceeds DB_MAX_CONNS")
	}
	if c.Import.BatchSize < 1 {
		problems = append(problems, "IMPORT_BATCH_SIZE must be positive")
	}
	if c.Import.MaxUploadBytes < 1 {
		problems = append(problems, "IMPORT_MAX_UPLOAD_BYTES must be positive")
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		problems = append(problems, fmt.Sprintf("AUTH_BCRYPT_COST %d out of range", c.Auth.BcryptCost))
	}
	if c.Rate.Enabled && c.Rate.RequestsPerMinute < 1 {
		problems = append(problems, "RATE_LIMIT_RPM must be positive when rate limiting is enabled")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("LOG_FORMAT %q not recognized", c.Logging.Format))
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
