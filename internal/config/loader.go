// loader.go implements the configuration loading lifecycle.
//
// The loading sequence is:
//  1. Enforce UTC timezone to prevent drift bugs.
//  2. Load .env file via godotenv (non-fatal if absent).
//  3. Use envconfig to process struct tags and populate the Config struct.
//  4. Populate BuildInfo from linker-injected variables.
//  5. Validate the struct using go-playground/validator, then the
//     cross-section rules validator tags cannot express.
package config

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is a diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// LoadConfig loads and validates the WayraFrost configuration.
func LoadConfig() (*Config, error) {
	return loadConfig(true)
}

// loadConfig is LoadConfig with the dotenv step optional so tests are not
// affected by a developer's local .env file.
func loadConfig(useDotenv bool) (*Config, error) {
	time.Local = time.UTC

	if useDotenv {
		// Does not override variables already present in the environment.
		_ = godotenv.Load()
	}

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if err := validateHorizons(cfg.Features.Horizons, cfg.History.Capacity); err != nil {
		return nil, err
	}

	if _, err := time.LoadLocation(cfg.Alerts.Timezone); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: fmt.Sprintf("unknown ALERT_TIMEZONE %q", cfg.Alerts.Timezone),
			Err:     err,
		}
	}

	return &cfg, nil
}

// validateHorizons rejects horizons that the history buffer can never serve
// and duplicated horizons, which would produce duplicate feature names.
func validateHorizons(horizons []int, capacity int) error {
	seen := make(map[int]struct{}, len(horizons))
	for _, h := range horizons {
		if h > capacity {
			return &ConfigError{
				Type:    ErrValidation,
				Message: fmt.Sprintf("feature horizon %d exceeds history capacity %d", h, capacity),
			}
		}
		if _, dup := seen[h]; dup {
			return &ConfigError{
				Type:    ErrValidation,
				Message: fmt.Sprintf("duplicate feature horizon %d", h),
			}
		}
		seen[h] = struct{}{}
	}
	return nil
}
