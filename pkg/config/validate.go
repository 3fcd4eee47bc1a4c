package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks struct tags and cross-field rules.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return verrs
		}
		return err
	}

	switch cfg.Metadata.Backend {
	case "sql":
		if err := cfg.Database.Validate(); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	case "badger":
		if cfg.Metadata.Badger.Path == "" {
			return fmt.Errorf("metadata.badger.path is required for the badger backend")
		}
	}

	if cfg.Worker.MaxRetryInterval != 0 && cfg.Worker.MaxRetryInterval < cfg.Worker.RetryInterval {
		return fmt.Errorf("worker.max_retry_interval (%s) must not be below worker.retry_interval (%s)",
			cfg.Worker.MaxRetryInterval, cfg.Worker.RetryInterval)
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port == 0 {
		return fmt.Errorf("metrics.port is required when metrics are enabled")
	}

	return nil
}
