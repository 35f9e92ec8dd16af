// Package config provides configuration management for the observe service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/helixir/observe/internal/exporter/console"
	"github.com/helixir/observe/internal/exporter/kafkaexporter"
	"github.com/helixir/observe/internal/exporter/promexporter"
	"github.com/helixir/observe/internal/normalize"
	"github.com/helixir/observe/internal/observability"
)

// EnvPrefix is the prefix for environment variable overrides.
const EnvPrefix = "OBSERVE"

// Config holds all configuration for the observe service.
type Config struct {
	// Server contains HTTP server settings.
	Server ServerConfig `mapstructure:"server"`
	// Logging contains structured logging settings.
	Logging observability.LoggingConfig `mapstructure:"logging"`
	// Metrics contains Prometheus metrics exposure settings.
	Metrics MetricsConfig `mapstructure:"metrics"`
	// Normalization controls key casing of exported context data.
	Normalization normalize.Config `mapstructure:"normalization"`
	// Exporters contains per-exporter settings.
	Exporters ExportersConfig `mapstructure:"exporters"`
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	// Host is the address to bind the server to (default: 0.0.0.0).
	Host string `mapstructure:"host"`
	// HTTPPort is the HTTP server port (default: 8080).
	HTTPPort int `mapstructure:"http_port"`
	// MetricsPort is the metrics server port (default: 9091).
	MetricsPort int `mapstructure:"metrics_port"`
	// ReadTimeout is the maximum duration for reading request body.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the maximum duration for writing response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownTimeout is the maximum duration to wait for graceful shutdown.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// MetricsConfig holds metrics configuration.
type MetricsConfig struct {
	// Enabled enables metrics collection and exposure.
	Enabled bool `mapstructure:"enabled"`
	// Path is the HTTP path for metrics endpoint.
	Path string `mapstructure:"path"`
	// Namespace prefixes every metric name.
	Namespace string `mapstructure:"namespace"`
}

// ExportersConfig groups the built-in exporter settings.
type ExportersConfig struct {
	Console    console.Config       `mapstructure:"console"`
	Prometheus promexporter.Config  `mapstructure:"prometheus"`
	Kafka      kafkaexporter.Config `mapstructure:"kafka"`
}

// HTTPAddress returns the HTTP server listen address.
func (c *ServerConfig) HTTPAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.HTTPPort)
}

// MetricsAddress returns the metrics server listen address.
func (c *ServerConfig) MetricsAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.MetricsPort)
}

// Load loads configuration from environment variables and config files.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Read from environment variables
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file if present
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/observe")

	if err := v.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK, we'll use env vars and defaults
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	loadSecrets(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// loadSecrets populates secret fields exclusively from environment variables.
// These fields are tagged with mapstructure:"-" to prevent loading from config files.
func loadSecrets(cfg *Config) {
	cfg.Exporters.Kafka.SASLUsername = os.Getenv(EnvPrefix + "_EXPORTERS_KAFKA_SASL_USERNAME")
	cfg.Exporters.Kafka.SASLPassword = os.Getenv(EnvPrefix + "_EXPORTERS_KAFKA_SASL_PASSWORD")
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_port", 9091)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Logging defaults
	logging := observability.DefaultLoggingConfig()
	v.SetDefault("logging.level", logging.Level)
	v.SetDefault("logging.format", logging.Format)
	v.SetDefault("logging.output", logging.Output)
	v.SetDefault("logging.add_source", logging.AddSource)
	v.SetDefault("logging.time_format", logging.TimeFormat)

	// Metrics defaults
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("metrics.namespace", "observe")

	// Normalization defaults
	v.SetDefault("normalization.enabled", false)
	v.SetDefault("normalization.key_casing", string(normalize.CasingNone))
	v.SetDefault("normalization.deep", true)

	// Exporter defaults
	v.SetDefault("exporters.console.enabled", true)
	v.SetDefault("exporters.console.level", "info")
	v.SetDefault("exporters.prometheus.enabled", true)
	v.SetDefault("exporters.prometheus.max_operations", promexporter.DefaultMaxOperations)
	v.SetDefault("exporters.kafka.enabled", false)
	v.SetDefault("exporters.kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("exporters.kafka.topic", "events.observe.observations")
	v.SetDefault("exporters.kafka.batch_size", 100)
	v.SetDefault("exporters.kafka.batch_timeout", "10ms")
	v.SetDefault("exporters.kafka.service_name", "observe")
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	// Validate server ports
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.Server.HTTPPort)
	}
	if c.Metrics.Enabled && (c.Server.MetricsPort <= 0 || c.Server.MetricsPort > 65535) {
		return fmt.Errorf("invalid metrics port: %d", c.Server.MetricsPort)
	}
	if c.Metrics.Enabled && c.Server.MetricsPort == c.Server.HTTPPort {
		return fmt.Errorf("metrics port must differ from HTTP port: %d", c.Server.MetricsPort)
	}

	// Validate log level
	validLogLevels := map[string]bool{
		"trace": true, "debug": true, "info": true,
		"warn": true, "error": true, "fatal": true, "panic": true,
	}
	if !validLogLevels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("invalid log level: %s", c.Logging.Level)
	}

	// Validate normalization
	switch c.Normalization.KeyCasing {
	case "", normalize.CasingNone, normalize.CasingSnake, normalize.CasingCamel:
	default:
		return fmt.Errorf("invalid normalization key casing: %s", c.Normalization.KeyCasing)
	}

	// Validate exporters
	if c.Exporters.Prometheus.Enabled && !c.Metrics.Enabled {
		return fmt.Errorf("prometheus exporter requires metrics to be enabled")
	}
	if c.Exporters.Kafka.Enabled {
		if len(c.Exporters.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka exporter requires at least one broker")
		}
		if c.Exporters.Kafka.Topic == "" {
			return fmt.Errorf("kafka exporter topic is required")
		}
		if (c.Exporters.Kafka.SASLUsername == "") != (c.Exporters.Kafka.SASLPassword == "") {
			return fmt.Errorf("kafka SASL requires both %s_EXPORTERS_KAFKA_SASL_USERNAME and %s_EXPORTERS_KAFKA_SASL_PASSWORD", EnvPrefix, EnvPrefix)
		}
	}

	return nil
}
