// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package wiring builds the collaborators of a command from configuration.
package wiring

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"

	"github.com/absmach/rmqctl/backup"
	"github.com/absmach/rmqctl/broker"
	"github.com/absmach/rmqctl/broker/amqp"
	"github.com/absmach/rmqctl/broker/management"
	"github.com/absmach/rmqctl/config"
	"github.com/absmach/rmqctl/message"
	rmqtls "github.com/absmach/rmqctl/pkg/tls"
	"github.com/absmach/rmqctl/ratelimit"
	"github.com/absmach/rmqctl/safeop"
	"github.com/absmach/rmqctl/service"
	"github.com/absmach/rmqctl/storage"
	"github.com/absmach/rmqctl/storage/badger"
	"github.com/absmach/rmqctl/storage/memory"
	"github.com/absmach/rmqctl/storage/sqlite"
	"github.com/absmach/rmqctl/webhook"
)

// VHosts queries the management API about the connection itself.
type VHosts interface {
	ListVHosts(ctx context.Context) ([]message.VHost, error)
	WhoAmI(ctx context.Context) (management.User, error)
}

// Runtime holds the collaborators of one command. Close releases all of them.
type Runtime struct {
	Service *service.Service
	VHosts  VHosts

	closers []func() error
}

// Close releases the resources of the runtime in reverse order of acquisition.
func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

// OpenStore opens the operation record store.
func OpenStore(cfg config.StorageConfig, logger *slog.Logger) (storage.Store, error) {
	compression, err := storage.ParseCompression(cfg.Compression)
	if err != nil {
		return nil, err
	}

	switch cfg.Type {
	case "memory":
		logger.Warn("Using in-memory storage, operation records will not survive the process")
		return memory.New(), nil
	case "badger":
		s, err := badger.New(badger.Config{Dir: cfg.BadgerDir, Compression: compression})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize BadgerDB storage: %w", err)
		}
		logger.Debug("Using BadgerDB persistent storage", slog.String("dir", cfg.BadgerDir))
		return s, nil
	case "sqlite":
		s, err := sqlite.New(sqlite.Config{Path: cfg.SQLitePath, Compression: compression})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite storage: %w", err)
		}
		logger.Debug("Using SQLite persistent storage", slog.String("path", cfg.SQLitePath))
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}

// Management creates a management API client for conn.
func Management(cfg *config.Config, conn config.Connection, tlsCfg *tls.Config, logger *slog.Logger) (*management.Client, error) {
	return management.New(management.Config{
		URL:              conn.ManagementURL(),
		Username:         conn.Username,
		Password:         conn.Password,
		VHost:            conn.VHost,
		TLSConfig:        tlsCfg,
		Timeout:          cfg.Management.Timeout,
		FailureThreshold: cfg.Management.CircuitBreaker.FailureThreshold,
		ResetTimeout:     cfg.Management.CircuitBreaker.ResetTimeout,
		Logger:           logger,
	})
}

// Offline opens a runtime without a broker connection. Only the operation
// record use-cases of its service can be used.
func Offline(cfg *config.Config, logger *slog.Logger) (*Runtime, error) {
	store, err := OpenStore(cfg.Storage, logger)
	if err != nil {
		return nil, err
	}
	backups := backup.New(store)
	return &Runtime{
		Service: service.New(nil, nil, backups, cfg.Storage.DataDir, logger),
		closers: []func() error{store.Close},
	}, nil
}

// Open connects to the broker described by conn and opens the record store.
func Open(cfg *config.Config, conn config.Connection, logger *slog.Logger) (*Runtime, error) {
	rt := &Runtime{}
	fail := func(err error) (*Runtime, error) {
		_ = rt.Close()
		return nil, err
	}

	var tlsCfg *tls.Config
	if conn.TLS {
		c, err := rmqtls.LoadClientConfig(conn.TLSOptions)
		if err != nil {
			return nil, fmt.Errorf("failed to load TLS configuration: %w", err)
		}
		tlsCfg = c
	}
	logger.Debug("Connection security", slog.String("connection", conn.Name), slog.String("tls", rmqtls.SecurityStatus(tlsCfg)))

	mgmt, err := Management(cfg, conn, tlsCfg, logger)
	if err != nil {
		return nil, err
	}
	rt.VHosts = mgmt

	var client broker.Client = mgmt
	if conn.Type == config.ConnectionAMQP {
		rt.closers = append(rt.closers, mgmt.Close)
		opts := amqp.NewOptions().
			SetAddress(conn.AMQPAddress()).
			SetCredentials(conn.Username, conn.Password).
			SetVhost(conn.VHost).
			SetDialTimeout(cfg.Broker.DialTimeout).
			SetHeartbeat(cfg.Broker.Heartbeat).
			SetConfirmTimeout(cfg.Broker.ConfirmTimeout).
			SetQueueLister(mgmt).
			SetLogger(logger)
		if tlsCfg != nil {
			opts.SetTLSConfig(tlsCfg)
		}
		c, err := amqp.New(opts)
		if err != nil {
			return fail(err)
		}
		if err := c.Connect(); err != nil {
			return fail(fmt.Errorf("failed to connect to %s: %w", conn.AMQPAddress(), err))
		}
		client = c
	}

	if cfg.Broker.PublishRate > 0 {
		client = broker.Throttled(client, ratelimit.New(cfg.Broker.PublishRate, cfg.Broker.PublishBurst, 0))
	}
	rt.closers = append(rt.closers, client.Close)

	store, err := OpenStore(cfg.Storage, logger)
	if err != nil {
		return fail(err)
	}
	rt.closers = append(rt.closers, store.Close)

	var metrics *safeop.Metrics
	if cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled {
		if metrics, err = safeop.NewMetrics(); err != nil {
			return fail(err)
		}
	}

	backups := backup.New(store)
	coordinator := safeop.New(backups, logger, metrics)
	rt.Service = service.New(client, coordinator, backups, cfg.Storage.DataDir, logger)

	if cfg.Webhook.Enabled && len(cfg.Webhook.Endpoints) > 0 {
		n, err := webhook.NewNotifier(cfg.Webhook, conn.Name, webhook.NewHTTPSender(), logger)
		if err != nil {
			return fail(err)
		}
		rt.closers = append(rt.closers, n.Close)
		rt.Service.SetNotifier(n)
	}
	return rt, nil
}
