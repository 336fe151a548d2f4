// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package management implements the broker client over the RabbitMQ HTTP
// management API.
package management

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/absmach/rmqctl/broker"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

var _ broker.Client = (*Client)(nil)

// Default values.
const (
	DefaultTimeout          = 30 * time.Second
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 30 * time.Second
	DefaultPageSize         = 500
	userAgent               = "rmqctl"
)

// Config configures the management client.
type Config struct {
	URL       string // Base URL, for example http://localhost:15672
	Username  string
	Password  string
	VHost     string
	TLSConfig *tls.Config
	Timeout   time.Duration

	// Consecutive failures that open the circuit breaker.
	FailureThreshold int
	// Time the breaker stays open before a trial request.
	ResetTimeout time.Duration

	Logger *slog.Logger
}

// Client talks to the management API of one virtual host.
type Client struct {
	base     *url.URL
	username string
	password string
	vhost    string
	http     *http.Client
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// New creates a management client.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, ErrNoEndpoint
	}
	base, err := url.Parse(strings.TrimRight(cfg.URL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid management URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid management URL scheme %q", base.Scheme)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	threshold := cfg.FailureThreshold
	if threshold <= 0 {
		threshold = DefaultFailureThreshold
	}
	reset := cfg.ResetTimeout
	if reset <= 0 {
		reset = DefaultResetTimeout
	}
	vhost := cfg.VHost
	if vhost == "" {
		vhost = "/"
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.TLSClientConfig = cfg.TLSConfig

	c := &Client{
		base:     base,
		username: cfg.Username,
		password: cfg.Password,
		vhost:    vhost,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(transport),
		},
		logger: logger,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        base.Host,
		MaxRequests: 1,
		Timeout:     reset,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= uint32(threshold)
		},
		IsSuccessful: func(err error) bool {
			return err == nil || clientError(err)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("management API circuit breaker state changed",
				slog.String("endpoint", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})

	return c, nil
}

// VHost returns the virtual host the client operates on.
func (c *Client) VHost() string {
	return c.vhost
}

// Close releases idle connections.
func (c *Client) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

// do sends a request through the circuit breaker and decodes a JSON response
// into out when out is not nil. segments are path-escaped individually.
func (c *Client) do(ctx context.Context, method string, query url.Values, in, out any, segments ...string) error {
	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, method, query, in, out, segments)
	})
	return err
}

func (c *Client) roundTrip(ctx context.Context, method string, query url.Values, in, out any, segments []string) error {
	escaped := make([]string, len(segments))
	for i, s := range segments {
		escaped[i] = url.PathEscape(s)
	}
	path := "/api/" + strings.Join(escaped, "/")

	u := *c.base
	u.RawPath = strings.TrimRight(c.base.EscapedPath(), "/") + path
	u.Path, _ = url.PathUnescape(u.RawPath)
	u.RawQuery = query.Encode()

	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(c.username, c.password)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Reason string `json:"reason"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		_ = json.Unmarshal(data, &e)
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode, Reason: e.Reason}
	}

	c.logger.Debug("management request", slog.String("method", method), slog.String("path", path), slog.Int("status", resp.StatusCode))

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}
