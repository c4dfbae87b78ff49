package config

import (
	"time"

	"github.com/spf13/viper"
)

// Default values applied before file and environment overrides.
const (
	DefaultHealthCheckPath = "/healthcheck"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultTransportPort   = 1174
	DefaultMetricsPort     = 9095

	DefaultRequestWorkers  = 4
	DefaultResponseWorkers = 2
)

// setDefaults seeds viper with the default configuration.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.port", DefaultMetricsPort)

	v.SetDefault("health_check_path", DefaultHealthCheckPath)
	v.SetDefault("shutdown_timeout", DefaultShutdownTimeout)

	v.SetDefault("router.factory", "memory")
	v.SetDefault("storage_service.factory", "blob")

	v.SetDefault("transport.factory", "http")
	v.SetDefault("transport.port", DefaultTransportPort)
	v.SetDefault("transport.read_timeout", 30*time.Second)
	v.SetDefault("transport.write_timeout", 30*time.Second)
	v.SetDefault("transport.idle_timeout", 120*time.Second)

	v.SetDefault("request_handler.factory", "pool")
	v.SetDefault("request_handler.workers", DefaultRequestWorkers)
	v.SetDefault("request_handler.drain_policy", "drain")

	v.SetDefault("response_handler.factory", "pool")
	v.SetDefault("response_handler.workers", DefaultResponseWorkers)
	v.SetDefault("response_handler.drain_policy", "drain")

	v.SetDefault("access_log.request_headers", "Host,User-Agent,Content-Length")
	v.SetDefault("access_log.response_headers", "Content-Length,Location")
}

// Default returns the built-in default configuration, primarily for tests.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	cfg := &Config{}
	// Defaults always decode cleanly.
	_ = v.Unmarshal(cfg)
	return cfg
}
