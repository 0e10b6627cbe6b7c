package config

import "github.com/daimatz/gomuzzle/pkg/muzzle"

// Default values for configuration fields.
const (
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "text"
	DefaultMetricsNamespace = "gomuzzle"
	DefaultServiceName      = "gomuzzle"
	DefaultTypeCapacity     = 64
)

// ApplyDefaults fills in unset fields.
func ApplyDefaults(cfg *Config) {
	if len(cfg.InstrumentationPackages) == 0 {
		cfg.InstrumentationPackages = []string{muzzle.DefaultInstrumentationPackage}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = DefaultServiceName
	}
	if cfg.Cache.TypeCapacity == 0 {
		cfg.Cache.TypeCapacity = DefaultTypeCapacity
	}
}

// NewDefault returns a configuration with every default applied and no
// modules or directives.
func NewDefault() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
