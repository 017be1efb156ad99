package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Validate checks the configuration for errors and inconsistencies.
// Returns nil if valid, or the joined list of problems.
//
// A missing workload is not a validation error: the launcher decides
// between the fallback workload and exit code 127.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Interval <= 0 {
		errs = append(errs, ValidationError{
			Field:   "interval",
			Message: "must be positive",
		})
	}

	if cfg.Timeout < 0 {
		errs = append(errs, ValidationError{
			Field:   "timeout",
			Message: "must be >= 0 (0 disables the time budget)",
		})
	}

	if cfg.Grace < 0 {
		errs = append(errs, ValidationError{
			Field:   "grace",
			Message: "must be >= 0",
		})
	}

	if cfg.CPUWindow < 0 {
		errs = append(errs, ValidationError{
			Field:   "cpu_window",
			Message: "must be >= 0",
		})
	} else if cfg.cpuWindowSet && cfg.Interval > 0 && cfg.CPUWindow >= cfg.Interval {
		errs = append(errs, ValidationError{
			Field:   "cpu_window",
			Message: fmt.Sprintf("must be shorter than the interval (%v)", cfg.Interval),
		})
	}

	if strings.TrimSpace(cfg.OutFile) == "" {
		errs = append(errs, ValidationError{
			Field:   "outfile",
			Message: "must not be empty",
		})
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf("must be 'json' or 'text' (got %q)", cfg.LogFormat),
		})
	}

	if cfg.Verbose && cfg.Quiet {
		errs = append(errs, ValidationError{
			Field:   "verbose",
			Message: "--verbose and --quiet are mutually exclusive",
		})
	}

	if cfg.GPUDevice < 0 {
		errs = append(errs, ValidationError{
			Field:   "gpu_device",
			Message: "must be >= 0",
		})
	}

	if cfg.GPUTool == "" {
		errs = append(errs, ValidationError{
			Field:   "gpu_smi",
			Message: "must not be empty",
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	return nil
}
