// Package config loads client configuration from a YAML file with
// PAPI_* environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the client configuration
type Config struct {
	// Chain RPC endpoint, ws:// or wss:// (http/https are rewritten)
	Endpoint string `yaml:"endpoint" envconfig:"ENDPOINT"`
	// Timeout applied to individual state-call RPCs
	RequestTimeout string `yaml:"requestTimeout" envconfig:"REQUEST_TIMEOUT"`
	// Delay between websocket reconnection attempts
	ReconnectDelay string `yaml:"reconnectDelay" envconfig:"RECONNECT_DELAY"`
	// Keepalive ping interval on the websocket connection
	PingInterval string `yaml:"pingInterval" envconfig:"PING_INTERVAL"`
	// Maximum consecutive reconnection attempts before giving up
	MaxReconnects int `yaml:"maxReconnects" envconfig:"MAX_RECONNECTS"`
	// Bounded size of the per-client runtime context/codec cache
	RuntimeCacheSize int `yaml:"runtimeCacheSize" envconfig:"RUNTIME_CACHE_SIZE"`
	// Minimum log level: debug, info, warn, error
	LogLevel string `yaml:"logLevel" envconfig:"LOG_LEVEL"`
}

// Load reads a YAML configuration file and applies PAPI_* environment
// overrides on top. An empty path loads defaults plus environment only.
func Load(path string) (*Config, error) {
	var config Config

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := envconfig.Process("papi", &config); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	config.setDefaults()

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// setDefaults sets default values for empty fields
func (c *Config) setDefaults() {
	if c.RequestTimeout == "" {
		c.RequestTimeout = "30s"
	}
	if c.ReconnectDelay == "" {
		c.ReconnectDelay = "5s"
	}
	if c.PingInterval == "" {
		c.PingInterval = "30s"
	}
	if c.MaxReconnects == 0 {
		c.MaxReconnects = 10
	}
	if c.RuntimeCacheSize == 0 {
		c.RuntimeCacheSize = 128
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// validate performs basic validation of config values
func (c *Config) validate() error {
	if c.Endpoint == "" {
		return fmt.Errorf("endpoint must be specified")
	}

	for _, field := range []struct{ name, value string }{
		{"requestTimeout", c.RequestTimeout},
		{"reconnectDelay", c.ReconnectDelay},
		{"pingInterval", c.PingInterval},
	} {
		if _, err := time.ParseDuration(field.value); err != nil {
			return fmt.Errorf("invalid %s duration %s: %w", field.name, field.value, err)
		}
	}

	if c.MaxReconnects < 1 {
		return fmt.Errorf("maxReconnects must be at least 1, got %d", c.MaxReconnects)
	}
	if c.RuntimeCacheSize < 1 {
		return fmt.Errorf("runtimeCacheSize must be at least 1, got %d", c.RuntimeCacheSize)
	}

	return nil
}

// GetRequestTimeout returns the request timeout as a time.Duration
func (c *Config) GetRequestTimeout() time.Duration {
	return parseDurationOr(c.RequestTimeout, 30*time.Second)
}

// GetReconnectDelay returns the reconnect delay as a time.Duration
func (c *Config) GetReconnectDelay() time.Duration {
	return parseDurationOr(c.ReconnectDelay, 5*time.Second)
}

// GetPingInterval returns the ping interval as a time.Duration
func (c *Config) GetPingInterval() time.Duration {
	return parseDurationOr(c.PingInterval, 30*time.Second)
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		// Should not happen if validation passed
		return fallback
	}
	return d
}

// String returns a string representation of the config
func (c *Config) String() string {
	return fmt.Sprintf("Config{Endpoint: %s, RequestTimeout: %s, CacheSize: %d}",
		c.Endpoint, c.RequestTimeout, c.RuntimeCacheSize)
}
