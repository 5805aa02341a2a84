package config

import (
	"errors"
	"fmt"
	"strings"

	"credledger/internal/hashcodec"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}

// ValidationErrors is a collection of validation errors.
type ValidationErrors []ValidationError

func (e ValidationErrors) Error() string {
	if len(e) == 0 {
		return ""
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// ErrInvalidConfig is returned when validation fails.
var ErrInvalidConfig = errors.New("invalid configuration")

// Is lets errors.Is match ErrInvalidConfig.
func (e ValidationErrors) Is(target error) bool {
	return target == ErrInvalidConfig && e.HasErrors()
}

// ValidateConfig performs comprehensive validation of the configuration.
// Warnings alone do not fail validation.
func ValidateConfig(c *Config) error {
	if errs := Lint(c); errs.HasErrors() {
		return errs
	}
	return nil
}

// Lint returns every validation finding, warnings included.
func Lint(c *Config) ValidationErrors {
	var errs ValidationErrors

	if c.Version < 1 || c.Version > Version {
		errs = append(errs, ValidationError{
			Field:   "version",
			Message: fmt.Sprintf("unsupported version %d (current: %d)", c.Version, Version),
		})
	}

	errs = append(errs, validateStorage(&c.Storage)...)
	errs = append(errs, validateHash(&c.Hash)...)
	errs = append(errs, validateSigning(&c.Signing)...)
	errs = append(errs, validateIssuers(&c.Issuers)...)
	errs = append(errs, validateIngest(&c.Ingest)...)
	errs = append(errs, validateLogging(&c.Logging)...)
	errs = append(errs, validateMetrics(&c.Metrics)...)

	return errs
}

func validateStorage(s *StorageConfig) ValidationErrors {
	var errs ValidationErrors

	if s.Path == "" {
		errs = append(errs, *RequiredFieldError("storage.path"))
	}

	if s.BusyTimeoutMs < 0 || s.BusyTimeoutMs > 60000 {
		errs = append(errs, *RangeError("storage.busy_timeout_ms", 0, 60000))
	}

	return errs
}

func validateHash(h *HashConfig) ValidationErrors {
	var errs ValidationErrors

	if _, err := hashcodec.ByName(h.Algorithm); err != nil {
		errs = append(errs, ValidationError{
			Field:   "hash.algorithm",
			Message: fmt.Sprintf("unsupported algorithm: %s (valid: sha256, blake2b, xorfold)", h.Algorithm),
		})
	}

	return errs
}

func validateSigning(s *SigningConfig) ValidationErrors {
	var errs ValidationErrors

	if s.Enabled && s.KeyPath == "" {
		errs = append(errs, ValidationError{
			Field:   "signing.key_path",
			Message: "key path is required when signing is enabled",
		})
	}

	return errs
}

func validateIssuers(i *IssuersConfig) ValidationErrors {
	var errs ValidationErrors

	if len(i.Authorized) == 0 {
		errs = append(errs, ValidationError{
			Field:   "issuers.authorized",
			Message: "no authorized issuers; every issue and revoke will be rejected",
		})
	}

	seen := make(map[string]bool, len(i.Authorized))
	for idx, id := range i.Authorized {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("issuers.authorized[%d]", idx),
				Message: "issuer id cannot be blank",
			})
			continue
		}
		if seen[id] {
			errs = append(errs, ValidationError{
				Field:   fmt.Sprintf("issuers.authorized[%d]", idx),
				Message: fmt.Sprintf("duplicate issuer id: %s", id),
			})
		}
		seen[id] = true
	}

	return errs
}

func validateIngest(i *IngestConfig) ValidationErrors {
	var errs ValidationErrors

	if i.DebounceMs < 0 || i.DebounceMs > 60000 {
		errs = append(errs, *RangeError("ingest.debounce_ms", 0, 60000))
	}

	return errs
}

func validateLogging(l *LoggingConfig) ValidationErrors {
	var errs ValidationErrors

	switch l.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid log level: %s (valid: debug, info, warn, error)", l.Level),
		})
	}

	switch l.Format {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid log format: %s (valid: text, json)", l.Format),
		})
	}

	switch l.Output {
	case "stdout", "stderr":
	case "file":
		if l.FilePath == "" {
			errs = append(errs, ValidationError{
				Field:   "logging.file_path",
				Message: "file path is required when output is 'file'",
			})
		}
	default:
		errs = append(errs, ValidationError{
			Field:   "logging.output",
			Message: fmt.Sprintf("invalid log output: %s (valid: stdout, stderr, file)", l.Output),
		})
	}

	if l.MaxSizeMB < 1 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_size_mb",
			Message: "max size must be at least 1 MB",
		})
	}

	if l.MaxBackups < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_backups",
			Message: "max backups cannot be negative",
		})
	}

	if l.MaxAgeDays < 0 {
		errs = append(errs, ValidationError{
			Field:   "logging.max_age_days",
			Message: "max age cannot be negative",
		})
	}

	return errs
}

func validateMetrics(m *MetricsConfig) ValidationErrors {
	var errs ValidationErrors

	if m.Enabled && m.TextfilePath == "" {
		errs = append(errs, ValidationError{
			Field:   "metrics.textfile_path",
			Message: "textfile path is required when metrics are enabled",
		})
	}

	return errs
}

// IsWarning returns true if this is a non-fatal validation issue.
func (e *ValidationError) IsWarning() bool {
	return e.Field == "issuers.authorized"
}

// Warnings returns only warning-level validation errors.
func (e ValidationErrors) Warnings() ValidationErrors {
	var warnings ValidationErrors
	for _, err := range e {
		if err.IsWarning() {
			warnings = append(warnings, err)
		}
	}
	return warnings
}

// Errors returns only error-level validation errors.
func (e ValidationErrors) Errors() ValidationErrors {
	var errs ValidationErrors
	for _, err := range e {
		if !err.IsWarning() {
			errs = append(errs, err)
		}
	}
	return errs
}

// HasErrors returns true if there are any non-warning errors.
func (e ValidationErrors) HasErrors() bool {
	return len(e.Errors()) > 0
}

// RequiredFieldError creates a validation error for a required field.
func RequiredFieldError(field string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: "required field is missing",
	}
}

// RangeError creates a validation error for an out-of-range value.
func RangeError(field string, min, max interface{}) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: fmt.Sprintf("value must be between %v and %v", min, max),
	}
}
