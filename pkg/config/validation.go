package config

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// validate is the singleton validator instance
var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Validate validates the configuration using struct tags and custom rules.
//
// This function uses go-playground/validator for declarative validation
// via struct tags, with additional custom validation for complex rules
// that cannot be expressed in tags.
//
// Note: Log level normalization is handled in ApplyDefaults, not here.
// Validation accepts both uppercase and lowercase log levels.
//
// The root directory is not checked here; CreateFileTree reports a missing
// or unusable root when the tree is opened.
//
// Returns an error describing validation failures.
func Validate(cfg *Config) error {
	// Run struct tag validation
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	// Custom validation rules that can't be expressed in tags
	if err := validateCustomRules(cfg); err != nil {
		return err
	}

	return nil
}

// validateCustomRules performs custom validation beyond struct tags.
func validateCustomRules(cfg *Config) error {
	// Validate at least one adapter is enabled
	if !cfg.Adapters.HTTP.Enabled {
		return fmt.Errorf("adapters: at least one adapter must be enabled")
	}

	// The metrics endpoint cannot share the HTTP port. Port 0 asks the
	// kernel for a free port, so two zeros never collide.
	if cfg.Server.Metrics.Enabled && cfg.Server.Metrics.Port != 0 &&
		cfg.Server.Metrics.Port == cfg.Adapters.HTTP.Port {
		return fmt.Errorf("server.metrics.port: %d is already used by the HTTP adapter", cfg.Server.Metrics.Port)
	}

	// The filesystem options must at least decode
	if cfg.Files.Type == "filesystem" {
		opts, err := decodeFilesystemOptions(cfg.Files.Filesystem)
		if err != nil {
			return err
		}
		if opts.BufferSize < 0 {
			return fmt.Errorf("files.filesystem.buffer_size: must be >= 0, got %d", opts.BufferSize)
		}
	}

	return nil
}

// formatValidationError converts validator errors into user-friendly messages.
func formatValidationError(err error) error {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) && len(validationErrs) > 0 {
		// Return the first validation error with context
		e := validationErrs[0]
		return fmt.Errorf("%s: validation failed on '%s' tag (value: %v)",
			e.Namespace(), e.Tag(), e.Value())
	}
	return err
}
