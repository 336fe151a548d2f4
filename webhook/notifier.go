// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/absmach/rmqctl/config"
	"github.com/sony/gobreaker"
)

// ErrClosed is returned by Notify after Close.
var ErrClosed = errors.New("notifier closed")

// Notifier delivers events to the configured endpoints with a worker pool,
// retries and a circuit breaker per endpoint.
type Notifier struct {
	cfg       config.WebhookConfig
	source    string
	endpoints []endpointConfig
	jobs      chan job
	breakers  map[string]*gobreaker.CircuitBreaker
	sender    Sender
	logger    *slog.Logger
	now       func() time.Time

	mu     sync.RWMutex
	closed bool

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

type endpointConfig struct {
	name       string
	url        string
	events     map[string]bool
	operations map[string]bool
	headers    map[string]string
	timeout    time.Duration
	retry      config.RetryConfig
}

type job struct {
	endpoint endpointConfig
	payload  []byte
	event    string
}

// NewNotifier creates a notifier and starts its workers. source identifies the
// sender in every envelope.
func NewNotifier(cfg config.WebhookConfig, source string, sender Sender, logger *slog.Logger) (*Notifier, error) {
	if sender == nil {
		return nil, fmt.Errorf("sender cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	workers := max(cfg.Workers, 1)

	endpoints := make([]endpointConfig, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		timeout := cfg.Defaults.Timeout
		if ep.Timeout > 0 {
			timeout = ep.Timeout
		}
		retry := cfg.Defaults.Retry
		if ep.Retry != nil {
			retry = *ep.Retry
		}
		endpoints = append(endpoints, endpointConfig{
			name:       ep.Name,
			url:        ep.URL,
			events:     set(ep.Events),
			operations: set(ep.Operations),
			headers:    ep.Headers,
			timeout:    timeout,
			retry:      retry,
		})
	}

	breakers := make(map[string]*gobreaker.CircuitBreaker, len(endpoints))
	for _, ep := range endpoints {
		breakers[ep.name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        ep.name,
			MaxRequests: 1,
			Timeout:     cfg.Defaults.CircuitBreaker.ResetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(max(cfg.Defaults.CircuitBreaker.FailureThreshold, 1))
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("webhook circuit breaker state changed",
					slog.String("endpoint", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			},
		})
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		cfg:       cfg,
		source:    source,
		endpoints: endpoints,
		jobs:      make(chan job, max(cfg.QueueSize, 1)),
		breakers:  breakers,
		sender:    sender,
		logger:    logger,
		now:       time.Now,
		ctx:       ctx,
		cancel:    cancel,
	}
	for range workers {
		n.wg.Add(1)
		go n.worker()
	}

	logger.Debug("webhook notifier started",
		slog.Int("workers", workers),
		slog.Int("endpoints", len(endpoints)))
	return n, nil
}

func set(values []string) map[string]bool {
	if len(values) == 0 {
		return nil
	}
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// Notify queues ev for every matching endpoint. It does not block; events that
// do not fit in the queue are dropped and logged.
func (n *Notifier) Notify(_ context.Context, ev Event) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrClosed
	}

	payload, err := json.Marshal(Envelope{
		EventType: ev.Type,
		Timestamp: n.now().UTC(),
		Source:    n.source,
		Data:      ev,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	for _, ep := range n.endpoints {
		if !ep.matches(ev) {
			continue
		}
		select {
		case n.jobs <- job{endpoint: ep, payload: payload, event: ev.Type}:
		default:
			n.logger.Error("webhook queue full, event dropped",
				slog.String("event_type", ev.Type),
				slog.String("endpoint", ep.name))
		}
	}
	return nil
}

func (ep endpointConfig) matches(ev Event) bool {
	if ep.events != nil && !ep.events[ev.Type] {
		return false
	}
	if ep.operations != nil && !ep.operations[ev.Operation] {
		return false
	}
	return true
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for j := range n.jobs {
		n.deliver(j)
	}
}

// deliver sends a job, retrying with exponential backoff until the attempts
// are exhausted or the notifier is cancelled.
func (n *Notifier) deliver(j job) {
	breaker := n.breakers[j.endpoint.name]
	attempts := max(j.endpoint.retry.MaxAttempts, 1)

	var err error
	for attempt := range attempts {
		if attempt > 0 {
			delay := retryDelay(attempt, j.endpoint.retry)
			n.logger.Debug("webhook delivery failed, retrying",
				slog.String("endpoint", j.endpoint.name),
				slog.Int("attempt", attempt),
				slog.Duration("retry_after", delay),
				slog.String("error", err.Error()))
			select {
			case <-n.ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		_, err = breaker.Execute(func() (any, error) {
			return nil, n.send(j)
		})
		if err == nil {
			n.logger.Debug("webhook delivered",
				slog.String("endpoint", j.endpoint.name),
				slog.String("event_type", j.event))
			return
		}
		if errors.Is(err, gobreaker.ErrOpenState) {
			break
		}
	}

	n.logger.Error("webhook delivery failed",
		slog.String("endpoint", j.endpoint.name),
		slog.String("event_type", j.event),
		slog.String("error", err.Error()))
}

func (n *Notifier) send(j job) error {
	ctx, cancel := context.WithTimeout(n.ctx, j.endpoint.timeout)
	defer cancel()
	return n.sender.Send(ctx, j.endpoint.url, j.endpoint.headers, j.payload)
}

func retryDelay(attempt int, cfg config.RetryConfig) time.Duration {
	delay := float64(cfg.InitialInterval) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxInterval > 0 && delay > float64(cfg.MaxInterval) {
		delay = float64(cfg.MaxInterval)
	}
	return time.Duration(delay)
}

// Close stops accepting events and waits up to the shutdown timeout for
// pending deliveries.
func (n *Notifier) Close() error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil
	}
	n.closed = true
	close(n.jobs)
	n.mu.Unlock()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	timeout := n.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	select {
	case <-done:
	case <-time.After(timeout):
		n.logger.Warn("webhook notifier shutdown timeout, some events may be lost",
			slog.Int("queue_depth", len(n.jobs)))
	}
	n.cancel()
	return nil
}
