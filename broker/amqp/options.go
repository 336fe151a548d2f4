// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package amqp

import (
	"context"
	"crypto/tls"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/absmach/rmqctl/message"
)

// Default values.
const (
	DefaultAddress        = "localhost:5672"
	DefaultDialTimeout    = 10 * time.Second
	DefaultHeartbeat      = 60 * time.Second
	DefaultConfirmTimeout = 5 * time.Second
)

// QueueLister lists queues. AMQP has no such operation, so listing is
// delegated to the management API.
type QueueLister interface {
	ListQueues(ctx context.Context, pattern string) ([]message.Queue, error)
}

// Options configures the AMQP 0.9.1 client.
type Options struct {
	// Connection
	URL         string      // Full AMQP URL (overrides Address/Username/Password/Vhost)
	Address     string      // Broker address (host:port)
	Username    string      // Username for PLAIN auth
	Password    string      // Password for PLAIN auth
	Vhost       string      // Virtual host (default "/")
	TLSConfig   *tls.Config // TLS configuration (nil for plain TCP)
	DialTimeout time.Duration
	Heartbeat   time.Duration

	// Time to wait for the broker to confirm a publish.
	ConfirmTimeout time.Duration

	Queues QueueLister
	Logger *slog.Logger
}

// NewOptions creates Options with sensible defaults.
func NewOptions() *Options {
	return &Options{
		Address:        DefaultAddress,
		Username:       "guest",
		Password:       "guest",
		Vhost:          "/",
		DialTimeout:    DefaultDialTimeout,
		Heartbeat:      DefaultHeartbeat,
		ConfirmTimeout: DefaultConfirmTimeout,
	}
}

// SetAddress sets the broker address (host:port).
func (o *Options) SetAddress(addr string) *Options {
	o.Address = addr
	return o
}

// SetCredentials sets username and password.
func (o *Options) SetCredentials(username, password string) *Options {
	o.Username = username
	o.Password = password
	return o
}

// SetVhost sets the virtual host.
func (o *Options) SetVhost(vhost string) *Options {
	o.Vhost = vhost
	return o
}

// SetTLSConfig sets TLS configuration.
func (o *Options) SetTLSConfig(cfg *tls.Config) *Options {
	o.TLSConfig = cfg
	return o
}

// SetDialTimeout sets the dial timeout.
func (o *Options) SetDialTimeout(d time.Duration) *Options {
	o.DialTimeout = d
	return o
}

// SetHeartbeat sets the heartbeat interval.
func (o *Options) SetHeartbeat(d time.Duration) *Options {
	o.Heartbeat = d
	return o
}

// SetConfirmTimeout sets how long a publish waits for its confirmation.
func (o *Options) SetConfirmTimeout(d time.Duration) *Options {
	o.ConfirmTimeout = d
	return o
}

// SetQueueLister sets the collaborator used by ListQueues.
func (o *Options) SetQueueLister(l QueueLister) *Options {
	o.Queues = l
	return o
}

// SetLogger sets the logger.
func (o *Options) SetLogger(l *slog.Logger) *Options {
	o.Logger = l
	return o
}

// Validate checks the options for errors.
func (o *Options) Validate() error {
	if o.URL == "" && o.Address == "" {
		return ErrNoAddress
	}
	return nil
}

func (o *Options) dialURL() (string, error) {
	if o.URL != "" {
		return o.URL, nil
	}

	scheme := "amqp"
	if o.TLSConfig != nil {
		scheme = "amqps"
	}

	// The default vhost "/" is addressed as an escaped slash.
	vhost := o.Vhost
	if vhost == "" {
		vhost = "/"
	}
	u := &url.URL{
		Scheme:  scheme,
		Host:    o.Address,
		Path:    "/" + vhost,
		RawPath: "/" + url.PathEscape(vhost),
	}
	if !strings.Contains(u.RawPath, "%") {
		u.RawPath = ""
	}

	if o.Username != "" {
		u.User = url.UserPassword(o.Username, o.Password)
	}

	return u.String(), nil
}
