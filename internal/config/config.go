// Package config provides YAML configuration loading and validation for the
// alerta daemons.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration structure shared by alertad and
// alert-logger. Each binary checks its own required sections on startup.
type Config struct {
	// LogLevel sets the minimum log severity: "debug", "info", "warn", or
	// "error". Defaults to "info" when omitted.
	LogLevel string `yaml:"log_level"`

	// Broker holds the message bus endpoints and destination names.
	Broker BrokerConfig `yaml:"broker"`

	// Server tunes the alertad processing pipeline.
	Server ServerConfig `yaml:"server"`

	// Store holds the PostgreSQL connection settings used by alertad.
	Store StoreConfig `yaml:"store"`

	// Indexer holds the search backend settings used by alert-logger.
	Indexer IndexerConfig `yaml:"indexer"`
}

// BrokerConfig names the broker servers and the three well-known
// destinations.
type BrokerConfig struct {
	// Servers is the failover list of broker URLs (e.g.
	// "nats://localhost:4222"). Defaults to a single localhost entry.
	Servers []string `yaml:"servers"`

	// AlertQueue is the queue alertad consumes inbound alerts and
	// heartbeats from. Defaults to "alerts".
	AlertQueue string `yaml:"alert_queue"`

	// NotifyTopic is the fan-out topic processed alerts are published to.
	// Defaults to "notify".
	NotifyTopic string `yaml:"notify_topic"`

	// LoggerQueue is the queue processed alerts are handed to alert-logger
	// on. Defaults to "logger".
	LoggerQueue string `yaml:"logger_queue"`
}

// ServerConfig tunes the alertad worker pool and alert lifecycle.
type ServerConfig struct {
	// Workers is the number of goroutines draining the internal alert
	// queue. Defaults to 4.
	Workers int `yaml:"workers"`

	// RulesFile is the path to the transformation and suppression rules.
	// Empty disables rule processing.
	RulesFile string `yaml:"rules_file"`

	// DefaultTimeout is the expiry window in seconds applied to alerts
	// that carry no timeout of their own. Defaults to 86400.
	DefaultTimeout int `yaml:"default_timeout"`

	// OpsAddr is the listen address for the health, metrics and
	// management endpoints. Defaults to ":8080".
	OpsAddr string `yaml:"ops_addr"`

	// LockFile enforces single-instance execution when set. Empty
	// disables the lock.
	LockFile string `yaml:"lock_file"`
}

// StoreConfig holds the alert database connection settings.
type StoreConfig struct {
	// DSN is the PostgreSQL connection string. Required by alertad.
	DSN string `yaml:"dsn"`
}

// IndexerConfig holds the search backend settings.
type IndexerConfig struct {
	// BaseURL is the index root; alert records are posted to
	// <base_url>/<type>. Required by alert-logger.
	BaseURL string `yaml:"base_url"`
}

// validLogLevels is the set of accepted log level strings.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// LoadConfig reads the YAML file at path, unmarshals it into Config, applies
// defaults, and validates the shared fields. It returns a typed error
// describing every validation failure encountered.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: cannot parse %q: %w", path, err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed for %q: %w", path, err)
	}

	return &cfg, nil
}

// applyDefaults fills in zero-value optional fields with sensible defaults.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if len(cfg.Broker.Servers) == 0 {
		cfg.Broker.Servers = []string{"nats://localhost:4222"}
	}
	if cfg.Broker.AlertQueue == "" {
		cfg.Broker.AlertQueue = "alerts"
	}
	if cfg.Broker.NotifyTopic == "" {
		cfg.Broker.NotifyTopic = "notify"
	}
	if cfg.Broker.LoggerQueue == "" {
		cfg.Broker.LoggerQueue = "logger"
	}
	if cfg.Server.Workers == 0 {
		cfg.Server.Workers = 4
	}
	if cfg.Server.DefaultTimeout == 0 {
		cfg.Server.DefaultTimeout = 86400
	}
	if cfg.Server.OpsAddr == "" {
		cfg.Server.OpsAddr = ":8080"
	}
}

// validate checks the fields both binaries depend on. Binary-specific
// requirements (store DSN, indexer base URL) are enforced by the binary
// that needs them.
func validate(cfg *Config) error {
	var errs []error

	if !validLogLevels[cfg.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level %q must be one of: debug, info, warn, error", cfg.LogLevel))
	}
	if cfg.Server.Workers < 1 {
		errs = append(errs, fmt.Errorf("server.workers must be at least 1, got %d", cfg.Server.Workers))
	}
	if cfg.Server.DefaultTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.default_timeout must not be negative, got %d", cfg.Server.DefaultTimeout))
	}
	for i, s := range cfg.Broker.Servers {
		if s == "" {
			errs = append(errs, fmt.Errorf("broker.servers[%d]: server URL is required", i))
		}
	}

	return errors.Join(errs...)
}
