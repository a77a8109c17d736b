package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// LoadError is a diagnostic error type returned by Load to aid debugging.
type LoadError struct {
	Stage   string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Stage, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// Load loads and validates the service configuration.
//
// Sequence:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load a .env file if present (non-fatal if missing; never overrides
//     existing environment variables).
//  3. Process envconfig tags to populate the Config struct.
//  4. Populate Config.Build from linker-injected variables.
//  5. Validate the struct using go-playground/validator.
func Load() (*Config, error) {
	time.Local = time.UTC

	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &LoadError{
			Stage:   "PARSING",
			Message: "failed to process environment variables",
			Err:     err,
		}
	}

	cfg.Build = BuildInfo{
		Version:   buildVersion,
		Commit:    buildCommit,
		BuildTime: buildTime,
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, &LoadError{
			Stage:   "VALIDATION",
			Message: "configuration failed validation",
			Err:     err,
		}
	}

	return &cfg, nil
}

// Build metadata injected at link time:
//
//	go build -ldflags "-X coursepulse/internal/config.buildVersion=..."
var (
	buildVersion = "dev"
	buildCommit  = "unknown"
	buildTime    = "unknown"
)
