// Package config loads and validates the blobfront host configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (BLOBFRONT_*)
//  2. Configuration file (YAML)
//  3. Default values
//
// The configuration is loaded once before assembly and never mutated
// afterward. Validation is eager: every role binding and pool size is checked
// before any component is constructed, so a bad configuration can never
// partially assemble a host.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"github.com/blobfront/blobfront/pkg/topology"
)

// Config is the immutable blobfront host configuration.
type Config struct {
	// Logging controls log output behavior.
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Metrics configures the Prometheus reporter sink.
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`

	// HealthCheckPath is the URI path the health probe is served on.
	HealthCheckPath string `mapstructure:"health_check_path" yaml:"health_check_path" validate:"required,startswith=/"`

	// ShutdownTimeout bounds the transport's connection drain at teardown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"required,gt=0"`

	// Topology describes the backend cluster passed to the router and
	// storage-service factories.
	Topology topology.Config `mapstructure:"topology" yaml:"topology"`

	// Router binds the backend-communication role to an implementation.
	Router RoleConfig `mapstructure:"router" yaml:"router"`

	// StorageService binds the business-logic role to an implementation.
	StorageService RoleConfig `mapstructure:"storage_service" yaml:"storage_service"`

	// Transport binds and configures the client-facing transport server.
	Transport TransportConfig `mapstructure:"transport" yaml:"transport"`

	// RequestHandler sizes the inbound scaling unit.
	RequestHandler PoolConfig `mapstructure:"request_handler" yaml:"request_handler"`

	// ResponseHandler sizes the outbound scaling unit.
	ResponseHandler PoolConfig `mapstructure:"response_handler" yaml:"response_handler"`

	// AccessLog selects which headers the access logger records.
	AccessLog AccessLogConfig `mapstructure:"access_log" yaml:"access_log"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN or ERROR.
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format is the log output format: text or json.
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output is stdout, stderr, or a file path.
	Output string `mapstructure:"output" yaml:"output"`
}

// MetricsConfig configures the Prometheus reporter.
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
	Port    int  `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`
}

// RoleConfig binds one logical role to a factory identifier plus
// implementation-specific parameters. Params are decoded by the factory
// itself, so alternate implementations can carry arbitrary settings without
// touching the host.
type RoleConfig struct {
	// Factory names the registered constructor for this role.
	Factory string `mapstructure:"factory" yaml:"factory" validate:"required"`

	// Params holds implementation-specific settings.
	Params map[string]any `mapstructure:"params" yaml:"params,omitempty"`
}

// PoolConfig sizes one scaling unit.
type PoolConfig struct {
	// Factory names the registered constructor for this scaling unit.
	Factory string `mapstructure:"factory" yaml:"factory" validate:"required"`

	// Workers is the fixed pool size.
	Workers int `mapstructure:"workers" yaml:"workers" validate:"required,gt=0"`

	// DrainPolicy decides what happens to queued items at shutdown:
	// "drain" processes them, "discard" drops them.
	DrainPolicy string `mapstructure:"drain_policy" yaml:"drain_policy" validate:"oneof=drain discard"`
}

// TransportConfig configures the client-facing transport server.
type TransportConfig struct {
	// Factory names the registered transport constructor.
	Factory string `mapstructure:"factory" yaml:"factory" validate:"required"`

	// Port is the listen port. 0 picks an ephemeral port.
	Port int `mapstructure:"port" yaml:"port" validate:"gte=0,lte=65535"`

	ReadTimeout  time.Duration `mapstructure:"read_timeout" yaml:"read_timeout" validate:"gt=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout" validate:"gt=0"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout" validate:"gt=0"`
}

// AccessLogConfig selects the header subsets the access logger records.
// Header names are comma-separated, matching the external configuration
// surface.
type AccessLogConfig struct {
	RequestHeaders  string `mapstructure:"request_headers" yaml:"request_headers"`
	ResponseHeaders string `mapstructure:"response_headers" yaml:"response_headers"`
}

// RequestHeaderList returns the configured request header names.
func (c AccessLogConfig) RequestHeaderList() []string {
	return splitHeaderList(c.RequestHeaders)
}

// ResponseHeaderList returns the configured response header names.
func (c AccessLogConfig) ResponseHeaderList() []string {
	return splitHeaderList(c.ResponseHeaders)
}

func splitHeaderList(s string) []string {
	var out []string
	for _, h := range strings.Split(s, ",") {
		if h = strings.TrimSpace(h); h != "" {
			out = append(out, h)
		}
	}
	return out
}

// Load reads the configuration from the given file path (empty means
// defaults plus environment only), applies defaults and environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BLOBFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %q: %w", path, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration eagerly, before any assembly.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			e := verrs[0]
			return fmt.Errorf("config: field %s failed %q validation", e.Namespace(), e.Tag())
		}
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
