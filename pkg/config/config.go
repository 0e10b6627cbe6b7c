// Package config loads the gomuzzle configuration: the instrumentation
// modules whose references are collected, the directives they are verified
// against, and the telemetry settings of a run.
package config

// Config is the root configuration structure.
type Config struct {
	// InstrumentationPackages are the binary name prefixes of classes that
	// belong to the instrumentation rather than to the library.
	// Default: ["io.opentelemetry.javaagent.instrumentation."]
	InstrumentationPackages []string `yaml:"instrumentation_packages"`

	// Bootstrap configures the stand-in for the bootstrap class loader.
	Bootstrap BootstrapConfig `yaml:"bootstrap"`

	// Modules are the instrumentation modules to collect references from.
	Modules []ModuleConfig `yaml:"modules"`

	// Directives are the verification runs.
	Directives []DirectiveConfig `yaml:"directives"`

	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
	Cache   CacheConfig   `yaml:"cache"`
}

// BootstrapConfig selects the classes served in place of the JDK.
type BootstrapConfig struct {
	// JMod is the path of java.base.jmod. Empty means auto-detect through
	// JAVA_BASE_JMOD, JAVA_HOME and the usual JDK locations.
	JMod string `yaml:"jmod"`

	// Disabled serves no JDK classes at all. java.lang.Object is still known.
	Disabled bool `yaml:"disabled"`
}

// ModuleConfig describes one instrumentation module.
type ModuleConfig struct {
	// Name identifies the module in reports and on the command line.
	Name string `yaml:"name"`

	// ClassPath lists the directories and jars holding the module's
	// compiled advice and helper classes.
	ClassPath []string `yaml:"classpath"`

	// Advice lists advice class names (binary names).
	Advice []string `yaml:"advice"`

	// Helpers lists additional helper class names to collect from.
	Helpers []string `yaml:"helpers"`

	// Resources lists helper resources; SPI files among them add the
	// implementations they name.
	Resources []string `yaml:"resources"`
}

// DirectiveConfig is one verification run against a library class path.
type DirectiveConfig struct {
	Name string `yaml:"name"`

	// ClassPath lists the library directories and jars.
	ClassPath []string `yaml:"classpath"`

	// AssertPass is the expected outcome.
	AssertPass bool `yaml:"assert_pass"`

	// Modules restricts the run to the named modules. Empty means all.
	Modules []string `yaml:"modules"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	// Level: "debug", "info", "warn", "error". Default: "info"
	Level string `yaml:"level"`

	// Format: "text" or "json". Default: "text"
	Format string `yaml:"format"`
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Namespace prefixes every metric name. Default: "gomuzzle"
	Namespace string `yaml:"namespace"`

	// Listen is the address serving /metrics while the command runs. Empty
	// disables the endpoint.
	Listen string `yaml:"listen"`
}

// TracingConfig configures OpenTelemetry tracing.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`

	// ServiceName is reported as the service.name resource attribute.
	// Default: "gomuzzle"
	ServiceName string `yaml:"service_name"`
}

// CacheConfig sizes the shared type description cache.
type CacheConfig struct {
	// TypeCapacity bounds the number of cached type descriptions.
	// Default: 64
	TypeCapacity int `yaml:"type_capacity"`
}

// Module returns the module with the given name.
func (c *Config) Module(name string) (ModuleConfig, bool) {
	for _, m := range c.Modules {
		if m.Name == name {
			return m, true
		}
	}
	return ModuleConfig{}, false
}

// Directive returns the directive with the given name.
func (c *Config) Directive(name string) (DirectiveConfig, bool) {
	for _, d := range c.Directives {
		if d.Name == name {
			return d, true
		}
	}
	return DirectiveConfig{}, false
}

// DirectiveModules returns the modules a directive runs, in configuration
// order.
func (c *Config) DirectiveModules(d DirectiveConfig) []ModuleConfig {
	if len(d.Modules) == 0 {
		return c.Modules
	}
	var out []ModuleConfig
	for _, m := range c.Modules {
		for _, name := range d.Modules {
			if m.Name == name {
				out = append(out, m)
				break
			}
		}
	}
	return out
}
