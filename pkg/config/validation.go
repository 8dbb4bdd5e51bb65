package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks a Config for internal consistency. Struct tags cover most
// field-level constraints; a handful of cross-field rules that `validator`
// can't express are checked explicitly below.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return formatValidationError(err)
	}

	if cfg.Telemetry.Enabled && cfg.Telemetry.Endpoint == "" {
		return fmt.Errorf("telemetry.endpoint is required when telemetry is enabled")
	}

	if cfg.Input.Source != "stdin" && cfg.Input.Path == "" {
		return fmt.Errorf("input.path is required when input.source is %q", cfg.Input.Source)
	}

	return nil
}

// formatValidationError flattens validator.ValidationErrors into a single
// readable message instead of surfacing the library's struct-path names.
func formatValidationError(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s validation (value: %v)",
			fe.Namespace(), fe.Tag(), fe.Value()))
	}

	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
