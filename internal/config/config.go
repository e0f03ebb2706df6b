// Package config loads and validates application configuration from YAML
// files and environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration is a time.Duration that decodes from YAML duration strings
// ("500ms", "1h") as well as integer nanosecond counts.
type Duration time.Duration

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw any
	if err := value.Decode(&raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case string:
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", v, err)
		}
		*d = Duration(parsed)
	case int:
		*d = Duration(v)
	case int64:
		*d = Duration(v)
	case float64:
		*d = Duration(v)
	default:
		return fmt.Errorf("invalid duration value %v", raw)
	}
	return nil
}

// Config is the root application configuration.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Engine        EngineConfig        `yaml:"engine"`
	Definitions   DefinitionsConfig   `yaml:"definitions"`
	Auth          AuthConfig          `yaml:"auth"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ServerConfig describes HTTP server settings.
type ServerConfig struct {
	Port            int      `yaml:"port"`
	ReadTimeout     Duration `yaml:"read_timeout"`
	WriteTimeout    Duration `yaml:"write_timeout"`
	HandlerTimeout  Duration `yaml:"handler_timeout"`
	ShutdownTimeout Duration `yaml:"shutdown_timeout"`
}

// EngineConfig describes workflow engine execution settings.
type EngineConfig struct {
	// MaxConcurrency bounds concurrent task dispatches within a dependency
	// level. Zero means unbounded within a level.
	MaxConcurrency int `yaml:"max_concurrency"`

	// BackoffBase is the unit for the exponential retry backoff; the wait
	// before retry attempt n is BackoffBase * 2^n, capped at BackoffCeiling.
	BackoffBase    Duration `yaml:"backoff_base"`
	BackoffCeiling Duration `yaml:"backoff_ceiling"`

	// WorkflowDeadline is an optional overall deadline per workflow run.
	// Zero disables it.
	WorkflowDeadline Duration `yaml:"workflow_deadline"`

	// AdaptiveFailureThreshold is the per-level failure rate above which an
	// adaptive adjustment record is appended.
	AdaptiveFailureThreshold float64 `yaml:"adaptive_failure_threshold"`

	// DeadlineSweepInterval controls how often asynchronously running
	// workflows are checked against the overall deadline.
	DeadlineSweepInterval Duration `yaml:"deadline_sweep_interval"`

	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig describes the optional per-executor circuit breaker.
type CircuitBreakerConfig struct {
	Enabled          bool     `yaml:"enabled"`
	FailureThreshold int      `yaml:"failure_threshold"`
	SuccessThreshold int      `yaml:"success_threshold"`
	Timeout          Duration `yaml:"timeout"`
}

// DefinitionsConfig describes where to find workflow template YAML files.
type DefinitionsConfig struct {
	Directories []string `yaml:"directories"`
}

// AuthConfig describes optional bearer-token authentication for the API.
// The signing secret is read from the named environment variable so it never
// lives in the config file.
type AuthConfig struct {
	Enabled   bool   `yaml:"enabled"`
	SecretEnv string `yaml:"secret_env"`
	Issuer    string `yaml:"issuer"`
	Audience  string `yaml:"audience"`
}

// ObservabilityConfig describes logging, tracing, and metrics settings.
type ObservabilityConfig struct {
	LogLevel string        `yaml:"log_level"`
	Tracing  TracingConfig `yaml:"tracing"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// TracingConfig describes distributed tracing settings.
type TracingConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// MetricsConfig describes Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     Duration(30 * time.Second),
			WriteTimeout:    Duration(30 * time.Second),
			HandlerTimeout:  Duration(25 * time.Second),
			ShutdownTimeout: Duration(30 * time.Second),
		},
		Engine: EngineConfig{
			MaxConcurrency:           0,
			BackoffBase:              Duration(1 * time.Second),
			BackoffCeiling:           Duration(30 * time.Second),
			AdaptiveFailureThreshold: 0.3,
			DeadlineSweepInterval:    Duration(30 * time.Second),
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				SuccessThreshold: 2,
				Timeout:          Duration(30 * time.Second),
			},
		},
		Auth: AuthConfig{
			SecretEnv: "TCE_AUTH_SECRET",
		},
		Observability: ObservabilityConfig{
			LogLevel: "info",
			Tracing: TracingConfig{
				Exporter:     "otlp",
				SamplingRate: 0.1,
			},
			Metrics: MetricsConfig{
				Enabled: true,
				Path:    "/metrics",
			},
		},
	}
}

// Load reads a YAML config file, applies environment variable overrides,
// and validates required fields. A missing file is not an error; the
// defaults are used, still subject to overrides and validation.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required fields are present and valid.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, "server.port must be between 1 and 65535")
	}
	if c.Engine.MaxConcurrency < 0 {
		errs = append(errs, "engine.max_concurrency must not be negative")
	}
	if c.Engine.BackoffBase <= 0 {
		errs = append(errs, "engine.backoff_base must be positive")
	}
	if c.Engine.BackoffCeiling < c.Engine.BackoffBase {
		errs = append(errs, "engine.backoff_ceiling must be at least engine.backoff_base")
	}
	if c.Engine.AdaptiveFailureThreshold < 0 || c.Engine.AdaptiveFailureThreshold > 1 {
		errs = append(errs, "engine.adaptive_failure_threshold must be between 0 and 1")
	}
	if c.Auth.Enabled && os.Getenv(c.Auth.SecretEnv) == "" {
		errs = append(errs, fmt.Sprintf("auth is enabled but %s is not set", c.Auth.SecretEnv))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// AuthSecret returns the configured signing secret, or empty when auth is
// disabled.
func (c *Config) AuthSecret() string {
	if !c.Auth.Enabled {
		return ""
	}
	return os.Getenv(c.Auth.SecretEnv)
}

// applyEnvOverrides reads TCE_* environment variables and overrides config
// values. Only the most commonly overridden fields are supported.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TCE_SERVER_PORT"); v != "" {
		var port int
		if _, err := fmt.Sscanf(v, "%d", &port); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TCE_OBSERVABILITY_LOG_LEVEL"); v != "" {
		cfg.Observability.LogLevel = v
	}
	if v := os.Getenv("TCE_ENGINE_MAX_CONCURRENCY"); v != "" {
		var limit int
		if _, err := fmt.Sscanf(v, "%d", &limit); err == nil {
			cfg.Engine.MaxConcurrency = limit
		}
	}
	if v := os.Getenv("TCE_DEFINITIONS_DIRECTORIES"); v != "" {
		cfg.Definitions.Directories = strings.Split(v, ",")
	}
}
