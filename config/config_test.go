// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func testConnection(name string) Connection {
	return Connection{
		Name:     name,
		Type:     ConnectionAMQP,
		Host:     "rabbit.local",
		AMQPPort: 5672,
		HTTPPort: 15672,
		Username: "guest",
		Password: "guest",
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if cfg.Storage.Type != "badger" {
		t.Errorf("expected default storage badger, got %s", cfg.Storage.Type)
	}
	if cfg.Storage.Compression != "zstd" {
		t.Errorf("expected default compression zstd, got %s", cfg.Storage.Compression)
	}
	if cfg.Broker.ConfirmTimeout != 5*time.Second {
		t.Errorf("expected confirm timeout 5s, got %v", cfg.Broker.ConfirmTimeout)
	}
	if cfg.Management.CircuitBreaker.FailureThreshold != 5 {
		t.Errorf("expected failure threshold 5, got %d", cfg.Management.CircuitBreaker.FailureThreshold)
	}
	if cfg.Log.Level != "warn" {
		t.Errorf("expected log level warn, got %s", cfg.Log.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "default config is valid",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name: "invalid log level",
			modify: func(c *Config) {
				c.Log.Level = "invalid"
			},
			wantErr: true,
		},
		{
			name: "unknown storage type",
			modify: func(c *Config) {
				c.Storage.Type = "postgres"
			},
			wantErr: true,
		},
		{
			name: "sqlite without path",
			modify: func(c *Config) {
				c.Storage.Type = "sqlite"
				c.Storage.SQLitePath = ""
			},
			wantErr: true,
		},
		{
			name: "webhook endpoint without url",
			modify: func(c *Config) {
				c.Webhook.Enabled = true
				c.Webhook.Endpoints = []WebhookEndpoint{{Name: "ops"}}
			},
			wantErr: true,
		},
		{
			name: "webhook without workers",
			modify: func(c *Config) {
				c.Webhook.Enabled = true
				c.Webhook.Workers = 0
			},
			wantErr: true,
		},
		{
			name: "webhook enabled",
			modify: func(c *Config) {
				c.Webhook.Enabled = true
				c.Webhook.Endpoints = []WebhookEndpoint{{Name: "ops", URL: "http://localhost:8080/hooks"}}
			},
			wantErr: false,
		},
		{
			name: "unknown compression",
			modify: func(c *Config) {
				c.Storage.Compression = "lz4"
			},
			wantErr: true,
		},
		{
			name: "negative publish rate",
			modify: func(c *Config) {
				c.Broker.PublishRate = -1
			},
			wantErr: true,
		},
		{
			name: "publish rate without burst",
			modify: func(c *Config) {
				c.Broker.PublishRate = 50
				c.Broker.PublishBurst = 0
			},
			wantErr: true,
		},
		{
			name: "sample rate out of range",
			modify: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.TraceSampleRate = 1.5
			},
			wantErr: true,
		},
		{
			name: "valid connections",
			modify: func(c *Config) {
				c.Connections = []Connection{testConnection("local"), testConnection("staging")}
				c.Connections[1].Default = true
			},
			wantErr: false,
		},
		{
			name: "duplicate connection names",
			modify: func(c *Config) {
				c.Connections = []Connection{testConnection("local"), testConnection("local")}
			},
			wantErr: true,
		},
		{
			name: "two default connections",
			modify: func(c *Config) {
				c.Connections = []Connection{testConnection("a"), testConnection("b")}
				c.Connections[0].Default = true
				c.Connections[1].Default = true
			},
			wantErr: true,
		},
		{
			name: "http connection without amqp port",
			modify: func(c *Config) {
				conn := testConnection("mgmt")
				conn.Type = ConnectionHTTP
				conn.AMQPPort = 0
				c.Connections = []Connection{conn}
			},
			wantErr: false,
		},
		{
			name: "unknown connection type",
			modify: func(c *Config) {
				conn := testConnection("local")
				conn.Type = "stomp"
				c.Connections = []Connection{conn}
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)

			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadNonExistent(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nonexistent.yaml"))
	if err != nil {
		t.Fatalf("Load() should return default config and no error when file doesn't exist, got error: %v", err)
	}
	if cfg == nil {
		t.Fatal("Load() should return a default config, got nil")
	}
	if len(cfg.Connections) != 0 {
		t.Errorf("expected no connections, got %d", len(cfg.Connections))
	}
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Error("expected invalid log level to be rejected")
	}
}

func TestSaveLoad(t *testing.T) {
	tmpfile := filepath.Join(t.TempDir(), "nested", "config.yaml")

	cfg := Default()
	cfg.Storage.Type = "sqlite"
	cfg.Broker.PublishRate = 200
	cfg.Log.Level = "debug"
	if err := cfg.AddConnection(testConnection("local")); err != nil {
		t.Fatalf("AddConnection() error = %v", err)
	}

	if err := cfg.Save(tmpfile); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	info, err := os.Stat(tmpfile)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if info.Mode().Perm() != 0o600 {
		t.Errorf("expected mode 0600, got %v", info.Mode().Perm())
	}

	loaded, err := Load(tmpfile)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Storage.Type != "sqlite" {
		t.Errorf("expected storage sqlite, got %s", loaded.Storage.Type)
	}
	if loaded.Broker.PublishRate != 200 {
		t.Errorf("expected publish rate 200, got %v", loaded.Broker.PublishRate)
	}
	if loaded.Log.Level != "debug" {
		t.Errorf("expected log level debug, got %s", loaded.Log.Level)
	}
	conn, err := loaded.Connection("")
	if err != nil {
		t.Fatalf("Connection() error = %v", err)
	}
	if conn.Name != "local" || conn.VHost != "/" {
		t.Errorf("unexpected default connection %+v", conn)
	}
}

func TestConnections(t *testing.T) {
	cfg := Default()

	if _, err := cfg.Connection(""); !errors.Is(err, ErrNoConnection) {
		t.Errorf("expected ErrNoConnection, got %v", err)
	}

	if err := cfg.AddConnection(testConnection("local")); err != nil {
		t.Fatal(err)
	}
	if err := cfg.AddConnection(testConnection("staging")); err != nil {
		t.Fatal(err)
	}

	conn, err := cfg.Connection("")
	if err != nil {
		t.Fatal(err)
	}
	if conn.Name != "staging" {
		t.Errorf("expected last added connection to be the default, got %s", conn.Name)
	}

	if err := cfg.SetDefault("local"); err != nil {
		t.Fatal(err)
	}
	if conn, _ := cfg.Connection(""); conn.Name != "local" {
		t.Errorf("expected local to be the default, got %s", conn.Name)
	}
	if err := cfg.SetDefault("missing"); !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("expected ErrConnectionNotFound, got %v", err)
	}

	if err := cfg.SetVHost("", "orders"); err != nil {
		t.Fatal(err)
	}
	if conn, _ := cfg.Connection("local"); conn.VHost != "orders" {
		t.Errorf("expected vhost orders, got %s", conn.VHost)
	}

	if err := cfg.RemoveConnection("local"); err != nil {
		t.Fatal(err)
	}
	if conn, _ := cfg.Connection(""); conn.Name != "staging" {
		t.Errorf("expected staging to become the default, got %s", conn.Name)
	}
	if err := cfg.RemoveConnection("local"); !errors.Is(err, ErrConnectionNotFound) {
		t.Errorf("expected ErrConnectionNotFound, got %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("config should stay valid: %v", err)
	}
}

func TestConnectionAddresses(t *testing.T) {
	conn := testConnection("local")
	if got := conn.AMQPAddress(); got != "rabbit.local:5672" {
		t.Errorf("unexpected AMQP address %s", got)
	}
	if got := conn.ManagementURL(); got != "http://rabbit.local:15672" {
		t.Errorf("unexpected management URL %s", got)
	}
	conn.TLS = true
	if got := conn.ManagementURL(); got != "https://rabbit.local:15672" {
		t.Errorf("unexpected management URL %s", got)
	}
}
