// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	rmqtls "github.com/absmach/rmqctl/pkg/tls"
	"gopkg.in/yaml.v3"
)

// Connection types.
const (
	ConnectionAMQP = "amqp"
	ConnectionHTTP = "http"
)

var (
	ErrConnectionNotFound = errors.New("connection not found")
	ErrNoConnection       = errors.New("no connection configured")
)

// Config holds all configuration for rmqctl.
type Config struct {
	Log         LogConfig        `yaml:"log"`
	Storage     StorageConfig    `yaml:"storage"`
	Broker      BrokerConfig     `yaml:"broker"`
	Management  ManagementConfig `yaml:"management"`
	Telemetry   TelemetryConfig  `yaml:"telemetry"`
	Webhook     WebhookConfig    `yaml:"webhook"`
	Connections []Connection     `yaml:"connections"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// StorageConfig holds the operation record store configuration.
type StorageConfig struct {
	Type string `yaml:"type"` // memory, badger, sqlite

	// Directory for recovery files of operations whose backup failed.
	DataDir string `yaml:"data_dir"`

	// BadgerDB settings
	BadgerDir string `yaml:"badger_dir"`

	// SQLite settings
	SQLitePath string `yaml:"sqlite_path"`

	Compression string `yaml:"compression"` // none, zstd
}

// BrokerConfig holds AMQP client settings.
type BrokerConfig struct {
	DialTimeout    time.Duration `yaml:"dial_timeout"`
	Heartbeat      time.Duration `yaml:"heartbeat"`
	ConfirmTimeout time.Duration `yaml:"confirm_timeout"`

	// Publishes per second for each destination. Zero disables throttling.
	PublishRate  float64 `yaml:"publish_rate"`
	PublishBurst int     `yaml:"publish_burst"`
}

// ManagementConfig holds HTTP management API client settings.
type ManagementConfig struct {
	Timeout        time.Duration        `yaml:"timeout"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// TelemetryConfig holds OpenTelemetry export settings.
type TelemetryConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Endpoint        string  `yaml:"endpoint"`
	Protocol        string  `yaml:"protocol"` // grpc, http
	Insecure        bool    `yaml:"insecure"`
	ServiceName     string  `yaml:"service_name"`
	ServiceVersion  string  `yaml:"service_version"`
	TracesEnabled   bool    `yaml:"traces_enabled"`
	MetricsEnabled  bool    `yaml:"metrics_enabled"`
	TraceSampleRate float64 `yaml:"trace_sample_rate"` // 0.0 to 1.0
}

// WebhookConfig holds operation notification settings.
type WebhookConfig struct {
	Enabled         bool              `yaml:"enabled"`
	QueueSize       int               `yaml:"queue_size"`
	Workers         int               `yaml:"workers"`          // Number of worker goroutines
	ShutdownTimeout time.Duration     `yaml:"shutdown_timeout"` // Time Close waits for pending deliveries
	Defaults        WebhookDefaults   `yaml:"defaults"`
	Endpoints       []WebhookEndpoint `yaml:"endpoints"`
}

// WebhookDefaults holds default settings for webhook endpoints.
type WebhookDefaults struct {
	Timeout        time.Duration        `yaml:"timeout"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RetryConfig holds retry configuration for webhook delivery.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
}

// WebhookEndpoint defines a single webhook endpoint.
type WebhookEndpoint struct {
	Name       string            `yaml:"name"`
	URL        string            `yaml:"url"`
	Events     []string          `yaml:"events"`     // Event type filter (empty = all)
	Operations []string          `yaml:"operations"` // Operation type filter (empty = all)
	Headers    map[string]string `yaml:"headers"`
	Timeout    time.Duration     `yaml:"timeout,omitempty"` // Override default
	Retry      *RetryConfig      `yaml:"retry,omitempty"`   // Override default
}

// Connection is a named broker connection profile.
type Connection struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"` // amqp, http
	Host     string `yaml:"host"`
	AMQPPort int    `yaml:"amqp_port"`
	HTTPPort int    `yaml:"http_port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	VHost    string `yaml:"vhost"`
	TLS      bool   `yaml:"tls"`
	Default  bool   `yaml:"default"`

	// Client certificate and trust settings used when TLS is enabled.
	TLSOptions rmqtls.Config `yaml:"tls_options,omitempty"`
}

// AMQPAddress returns the host:port of the AMQP listener.
func (c Connection) AMQPAddress() string {
	return c.Host + ":" + strconv.Itoa(c.AMQPPort)
}

// ManagementURL returns the base URL of the management API.
func (c Connection) ManagementURL() string {
	scheme := "http"
	if c.TLS {
		scheme = "https"
	}
	return scheme + "://" + c.Host + ":" + strconv.Itoa(c.HTTPPort)
}

// DefaultDir returns the directory holding the configuration and data files.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		return ".rmqctl"
	}
	return filepath.Join(home, ".rmqctl")
}

// DefaultPath returns the default configuration file path.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	dir := DefaultDir()
	return &Config{
		Log: LogConfig{
			Level:  "warn",
			Format: "text",
		},
		Storage: StorageConfig{
			Type:        "badger",
			DataDir:     dir,
			BadgerDir:   filepath.Join(dir, "backups"),
			SQLitePath:  filepath.Join(dir, "backups.db"),
			Compression: "zstd",
		},
		Broker: BrokerConfig{
			DialTimeout:    10 * time.Second,
			Heartbeat:      60 * time.Second,
			ConfirmTimeout: 5 * time.Second,
			PublishRate:    0,
			PublishBurst:   100,
		},
		Management: ManagementConfig{
			Timeout: 30 * time.Second,
			CircuitBreaker: CircuitBreakerConfig{
				FailureThreshold: 5,
				ResetTimeout:     30 * time.Second,
			},
		},
		Telemetry: TelemetryConfig{
			Enabled:         false,
			Endpoint:        "localhost:4317",
			Protocol:        "grpc",
			Insecure:        true,
			ServiceName:     "rmqctl",
			ServiceVersion:  "1.0.0",
			TracesEnabled:   true,
			MetricsEnabled:  true,
			TraceSampleRate: 1.0,
		},
		Webhook: WebhookConfig{
			Enabled:         false,
			QueueSize:       100,
			Workers:         2,
			ShutdownTimeout: 10 * time.Second,
			Defaults: WebhookDefaults{
				Timeout: 5 * time.Second,
				Retry: RetryConfig{
					MaxAttempts:     3,
					InitialInterval: 500 * time.Millisecond,
					MaxInterval:     5 * time.Second,
					Multiplier:      2.0,
				},
				CircuitBreaker: CircuitBreakerConfig{
					FailureThreshold: 3,
					ResetTimeout:     30 * time.Second,
				},
			},
		},
		Connections: []Connection{},
	}
}

// Load loads configuration from a YAML file.
// If the file doesn't exist, returns default configuration.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: text, json")
	}

	validStorage := map[string]bool{"memory": true, "badger": true, "sqlite": true}
	if !validStorage[c.Storage.Type] {
		return fmt.Errorf("storage.type must be one of: memory, badger, sqlite")
	}
	if c.Storage.Type == "badger" && c.Storage.BadgerDir == "" {
		return fmt.Errorf("storage.badger_dir required when type is badger")
	}
	if c.Storage.Type == "sqlite" && c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path required when type is sqlite")
	}
	if c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir cannot be empty")
	}
	if c.Storage.Compression != "" && c.Storage.Compression != "none" && c.Storage.Compression != "zstd" {
		return fmt.Errorf("storage.compression must be one of: none, zstd")
	}

	if c.Broker.DialTimeout < time.Second {
		return fmt.Errorf("broker.dial_timeout must be at least 1 second")
	}
	if c.Broker.ConfirmTimeout < 100*time.Millisecond {
		return fmt.Errorf("broker.confirm_timeout must be at least 100ms")
	}
	if c.Broker.PublishRate < 0 {
		return fmt.Errorf("broker.publish_rate cannot be negative")
	}
	if c.Broker.PublishRate > 0 && c.Broker.PublishBurst < 1 {
		return fmt.Errorf("broker.publish_burst must be at least 1 when publish_rate is set")
	}

	if c.Management.Timeout < time.Second {
		return fmt.Errorf("management.timeout must be at least 1 second")
	}
	if c.Management.CircuitBreaker.FailureThreshold < 1 {
		return fmt.Errorf("management.circuit_breaker.failure_threshold must be at least 1")
	}

	// OpenTelemetry validation (only if enabled)
	if c.Telemetry.Enabled {
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("telemetry.endpoint cannot be empty when telemetry is enabled")
		}
		if c.Telemetry.Protocol != "grpc" && c.Telemetry.Protocol != "http" {
			return fmt.Errorf("telemetry.protocol must be one of: grpc, http")
		}
		if c.Telemetry.ServiceName == "" {
			return fmt.Errorf("telemetry.service_name cannot be empty when telemetry is enabled")
		}
		if c.Telemetry.TraceSampleRate < 0.0 || c.Telemetry.TraceSampleRate > 1.0 {
			return fmt.Errorf("telemetry.trace_sample_rate must be between 0.0 and 1.0")
		}
	}

	// Webhook validation (only if enabled)
	if c.Webhook.Enabled {
		if c.Webhook.QueueSize < 1 {
			return fmt.Errorf("webhook.queue_size must be at least 1")
		}
		if c.Webhook.Workers < 1 {
			return fmt.Errorf("webhook.workers must be at least 1")
		}
		if c.Webhook.ShutdownTimeout < time.Second {
			return fmt.Errorf("webhook.shutdown_timeout must be at least 1 second")
		}
		if c.Webhook.Defaults.Timeout < 100*time.Millisecond {
			return fmt.Errorf("webhook.defaults.timeout must be at least 100ms")
		}
		if c.Webhook.Defaults.Retry.MaxAttempts < 1 {
			return fmt.Errorf("webhook.defaults.retry.max_attempts must be at least 1")
		}
		if c.Webhook.Defaults.Retry.Multiplier < 1.0 {
			return fmt.Errorf("webhook.defaults.retry.multiplier must be at least 1.0")
		}
		if c.Webhook.Defaults.CircuitBreaker.FailureThreshold < 1 {
			return fmt.Errorf("webhook.defaults.circuit_breaker.failure_threshold must be at least 1")
		}
		for i, endpoint := range c.Webhook.Endpoints {
			if endpoint.Name == "" {
				return fmt.Errorf("webhook.endpoints[%d].name cannot be empty", i)
			}
			if endpoint.URL == "" {
				return fmt.Errorf("webhook.endpoints[%d].url cannot be empty", i)
			}
		}
	}

	names := make(map[string]bool, len(c.Connections))
	defaults := 0
	for i, conn := range c.Connections {
		if err := conn.Validate(); err != nil {
			return fmt.Errorf("connections[%d]: %w", i, err)
		}
		if names[conn.Name] {
			return fmt.Errorf("connections[%d].name %q is not unique", i, conn.Name)
		}
		names[conn.Name] = true
		if conn.Default {
			defaults++
		}
	}
	if defaults > 1 {
		return fmt.Errorf("at most one connection can be the default")
	}

	return nil
}

// Validate checks the connection profile.
func (c Connection) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if c.Type != ConnectionAMQP && c.Type != ConnectionHTTP {
		return fmt.Errorf("type must be one of: amqp, http")
	}
	if c.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("http_port must be between 1 and 65535")
	}
	if c.Type == ConnectionAMQP && (c.AMQPPort < 1 || c.AMQPPort > 65535) {
		return fmt.Errorf("amqp_port must be between 1 and 65535")
	}
	return nil
}

// Save writes the configuration to a YAML file. The file holds credentials and
// is only readable by its owner.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(filename), 0o700); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
