package config

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidConfiguration is matched by every validation failure.
var ErrInvalidConfiguration = errors.New("invalid configuration")

// FieldError is a validation error for one configuration field.
type FieldError struct {
	// Field is the dotted path to the field (e.g. "modules[0].name").
	Field   string
	Message string
}

func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError collects every field error found in a configuration.
type ValidationError struct {
	Errors []FieldError
}

func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

func (e ValidationError) Unwrap() error { return ErrInvalidConfiguration }

var (
	validLogLevels  = []string{"debug", "info", "warn", "error"}
	validLogFormats = []string{"text", "json"}
)

// Validate checks the configuration and returns a ValidationError listing
// every problem, or nil.
func Validate(cfg *Config) error {
	var errs []FieldError

	for i, p := range cfg.InstrumentationPackages {
		if strings.TrimSpace(p) == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("instrumentation_packages[%d]", i),
				Message: "package prefix must not be empty",
			})
		}
	}

	errs = append(errs, validateModules(cfg.Modules)...)
	errs = append(errs, validateDirectives(cfg.Directives, cfg.Modules)...)
	errs = append(errs, validateTelemetry(cfg)...)

	if cfg.Cache.TypeCapacity < 0 {
		errs = append(errs, FieldError{Field: "cache.type_capacity", Message: "capacity must be non-negative"})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateModules(modules []ModuleConfig) []FieldError {
	var errs []FieldError
	seen := make(map[string]bool, len(modules))
	for i, m := range modules {
		field := fmt.Sprintf("modules[%d]", i)
		if m.Name == "" {
			errs = append(errs, FieldError{Field: field + ".name", Message: "module name is required"})
		} else if seen[m.Name] {
			errs = append(errs, FieldError{Field: field + ".name", Message: fmt.Sprintf("duplicate module name %q", m.Name)})
		}
		seen[m.Name] = true
		if len(m.ClassPath) == 0 {
			errs = append(errs, FieldError{Field: field + ".classpath", Message: "at least one class path entry is required"})
		}
		if len(m.Advice)+len(m.Helpers)+len(m.Resources) == 0 {
			errs = append(errs, FieldError{Field: field, Message: "module needs advice, helpers or resources to collect from"})
		}
	}
	return errs
}

func validateDirectives(directives []DirectiveConfig, modules []ModuleConfig) []FieldError {
	var errs []FieldError
	known := make(map[string]bool, len(modules))
	for _, m := range modules {
		known[m.Name] = true
	}
	seen := make(map[string]bool, len(directives))
	for i, d := range directives {
		field := fmt.Sprintf("directives[%d]", i)
		if d.Name == "" {
			errs = append(errs, FieldError{Field: field + ".name", Message: "directive name is required"})
		} else if seen[d.Name] {
			errs = append(errs, FieldError{Field: field + ".name", Message: fmt.Sprintf("duplicate directive name %q", d.Name)})
		}
		seen[d.Name] = true
		for j, name := range d.Modules {
			if !known[name] {
				errs = append(errs, FieldError{
					Field:   fmt.Sprintf("%s.modules[%d]", field, j),
					Message: fmt.Sprintf("unknown module %q", name),
				})
			}
		}
	}
	return errs
}

func validateTelemetry(cfg *Config) []FieldError {
	var errs []FieldError
	if !contains(validLogLevels, strings.ToLower(cfg.Logging.Level)) {
		errs = append(errs, FieldError{
			Field:   "logging.level",
			Message: fmt.Sprintf("invalid level %q, must be one of: %s", cfg.Logging.Level, strings.Join(validLogLevels, ", ")),
		})
	}
	if !contains(validLogFormats, strings.ToLower(cfg.Logging.Format)) {
		errs = append(errs, FieldError{
			Field:   "logging.format",
			Message: fmt.Sprintf("invalid format %q, must be one of: %s", cfg.Logging.Format, strings.Join(validLogFormats, ", ")),
		})
	}
	if cfg.Metrics.Listen != "" && !strings.Contains(cfg.Metrics.Listen, ":") {
		errs = append(errs, FieldError{Field: "metrics.listen", Message: "listen address must be host:port"})
	}
	return errs
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
