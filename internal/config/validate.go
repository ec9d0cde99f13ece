package config

import (
	"errors"
	"fmt"
	"os/exec"
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
// Returns nil if valid, or an error describing every problem found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Input == "" && !cfg.Synthetic && !cfg.PrintCmd && !cfg.Check {
		errs = append(errs, ValidationError{
			Field:   "input",
			Message: "an input path/URL is required unless -synthetic, --print-cmd, or --check is set",
		})
	}

	if cfg.Input != "" && cfg.Synthetic {
		errs = append(errs, ValidationError{
			Field:   "synthetic",
			Message: "cannot be combined with a positional input",
		})
	}

	if cfg.OutputFormat == "" {
		errs = append(errs, ValidationError{
			Field:   "output_format",
			Message: "must not be empty",
		})
	}

	if cfg.GracePeriod <= 0 {
		errs = append(errs, ValidationError{
			Field:   "grace_period",
			Message: "must be positive",
		})
	}

	if cfg.ChannelBuffer < 1 {
		errs = append(errs, ValidationError{
			Field:   "channel_buffer",
			Message: "must be at least 1",
		})
	}

	validLogFormats := map[string]bool{"json": true, "text": true, "auto": true}
	if !validLogFormats[cfg.LogFormat] {
		errs = append(errs, ValidationError{
			Field:   "log_format",
			Message: fmt.Sprintf(`must be "json", "text", or "auto" (got %q)`, cfg.LogFormat),
		})
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// CheckFFmpegBinary resolves cfg.FFmpegPath via PATH, matching the
// "fail fast with a readable message" style this module's preflight check
// uses before ever spawning the child.
func CheckFFmpegBinary(cfg *Config) error {
	if _, err := exec.LookPath(cfg.FFmpegPath); err != nil {
		return fmt.Errorf("ffmpeg binary %q not found: %w", cfg.FFmpegPath, err)
	}
	return nil
}

// ApplyCheckMode narrows a Config down to the minimum needed for --check:
// it never spawns ffmpeg beyond the preflight binary lookup.
func ApplyCheckMode(cfg *Config) {
	cfg.Check = true
}
