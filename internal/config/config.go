// Package config defines the global configuration structure for the service.
// Configuration is loaded once at process initialization and is immutable
// thereafter, following 12-Factor principles.
//
// Values come from the OS environment, with a local .env file as a
// lower-priority fallback. Any missing required value or invalid format
// fails the process immediately on startup.
package config

import (
	"time"

	"coursepulse/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type
// used throughout configuration to prevent accidental logging of sensitive
// values.
type SecretString = types.SecretString

// Config is the top-level configuration struct. It is populated once during
// process initialization and never modified. Sub-components receive only the
// specific config subsets they require.
type Config struct {
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"coursepulse"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	Server   ServerConfig
	Database DatabaseConfig
	AWS      AWSConfig
	Mail     MailConfig
	Dispatch DispatchConfig
	Archive  ArchiveConfig
	Security SecurityConfig

	// Build metadata injected via ldflags, not environment.
	Build BuildInfo
}

// ServerConfig holds HTTP server settings for the admin API.
type ServerConfig struct {
	Port            string        `envconfig:"PORT" default:"8080"`
	ShutdownTimeout time.Duration `envconfig:"SERVER_SHUTDOWN_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS regional configuration shared by the SES and
// CloudWatch clients.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`

	// LocalStack support (empty in prod).
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// MailConfig holds mail delivery settings.
type MailConfig struct {
	// SESConfigSet is the optional SES configuration set for tracking.
	SESConfigSet string `envconfig:"SES_CONFIG_SET"`

	// System sender used when no sender policy resolves.
	FromAddress string `envconfig:"MAIL_FROM_ADDRESS" validate:"required,email"`
	FromName    string `envconfig:"MAIL_FROM_NAME" default:"Course Notifications"`
}

// DispatchConfig tunes the periodic dispatch batch job.
type DispatchConfig struct {
	// CronSpec is the robfig/cron schedule driving dispatch runs.
	CronSpec string `envconfig:"DISPATCH_CRON" default:"*/5 * * * *"`

	BatchLimit  int `envconfig:"DISPATCH_BATCH_LIMIT" default:"200"`
	Parallelism int `envconfig:"DISPATCH_PARALLELISM" default:"4"`

	// StuckThreshold flags queued rows due longer than this for operator
	// attention.
	StuckThreshold time.Duration `envconfig:"DISPATCH_STUCK_THRESHOLD" default:"24h"`
}

// ArchiveConfig tunes the sent-history archival job.
type ArchiveConfig struct {
	// CronSpec drives archival runs; empty disables the job.
	CronSpec string `envconfig:"ARCHIVE_CRON" default:"0 3 * * *"`

	// RetainFor is how long sent rows stay in the hot table.
	RetainFor  time.Duration `envconfig:"ARCHIVE_RETAIN_FOR" default:"2160h"`
	BatchLimit int           `envconfig:"ARCHIVE_BATCH_LIMIT" default:"5000"`
	Dir        string        `envconfig:"ARCHIVE_DIR" default:"/var/lib/coursepulse/archive"`
}

// SecurityConfig holds admin API access settings.
type SecurityConfig struct {
	AdminAPIKey SecretString `envconfig:"ADMIN_API_KEY" validate:"required"`
}

// BuildInfo holds build-time metadata injected via ldflags.
// These values are NOT populated from environment variables.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}
