// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package amqp implements the broker client over AMQP 0.9.1.
package amqp

import (
	"context"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/absmach/rmqctl/broker"
	"github.com/absmach/rmqctl/message"
	amqp091 "github.com/rabbitmq/amqp091-go"
)

var (
	_ broker.Client   = (*Client)(nil)
	_ broker.Consumer = (*Client)(nil)
)

// channel is the subset of *amqp091.Channel used for reads.
type channel interface {
	Get(queue string, autoAck bool) (amqp091.Delivery, bool, error)
	Ack(tag uint64, multiple bool) error
	Nack(tag uint64, multiple, requeue bool) error
	QueuePurge(name string, noWait bool) (int, error)
	Qos(prefetchCount, prefetchSize int, global bool) error
	Consume(queue, consumer string, autoAck, exclusive, noLocal, noWait bool, args amqp091.Table) (<-chan amqp091.Delivery, error)
	Cancel(consumer string, noWait bool) error
	Close() error
}

// Client is an AMQP 0.9.1 broker client. Every read opens its own channel so
// that delivery tags start at 1 for each fetch.
type Client struct {
	opts   *Options
	logger *slog.Logger

	conn *amqp091.Connection
	open func() (channel, error)

	// Confirm-mode channel shared by publishes.
	pubMu   sync.Mutex
	pub     *amqp091.Channel
	returns chan amqp091.Return

	connected atomic.Bool
}

// New creates a new AMQP 0.9.1 client with the given options.
func New(opts *Options) (*Client, error) {
	if opts == nil {
		opts = NewOptions()
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		opts:   opts,
		logger: logger,
	}, nil
}

// Connect establishes a connection to the broker.
func (c *Client) Connect() error {
	if c.connected.Load() {
		return ErrAlreadyConnected
	}

	url, err := c.opts.dialURL()
	if err != nil {
		return err
	}

	dialer := &net.Dialer{Timeout: c.opts.DialTimeout}
	cfg := amqp091.Config{
		TLSClientConfig: c.opts.TLSConfig,
		Heartbeat:       c.opts.Heartbeat,
		Dial:            dialer.Dial,
		Properties:      amqp091.Table{"connection_name": "rmqctl"},
	}

	conn, err := amqp091.DialConfig(url, cfg)
	if err != nil {
		return err
	}

	c.conn = conn
	c.open = func() (channel, error) {
		ch, err := conn.Channel()
		if err != nil {
			return nil, err
		}
		return ch, nil
	}
	c.connected.Store(true)
	c.logger.Debug("connected to broker", slog.String("address", c.opts.Address), slog.String("vhost", c.opts.Vhost))
	return nil
}

// Close closes the publish channel and the connection.
func (c *Client) Close() error {
	if !c.connected.Load() {
		return nil
	}

	c.pubMu.Lock()
	c.resetPublisher()
	c.pubMu.Unlock()

	var err error
	if c.conn != nil {
		err = c.conn.Close()
		c.conn = nil
	}

	c.connected.Store(false)
	return err
}

// IsConnected reports whether the client is connected.
func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

// ListQueues delegates to the configured QueueLister.
func (c *Client) ListQueues(ctx context.Context, pattern string) ([]message.Queue, error) {
	if c.opts.Queues == nil {
		return nil, broker.ErrNotSupported
	}
	return c.opts.Queues.ListQueues(ctx, pattern)
}

func (c *Client) channel() (channel, error) {
	if !c.connected.Load() || c.open == nil {
		return nil, broker.ErrNotConnected
	}
	return c.open()
}
