// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/absmach/rmqctl/broker"
	"github.com/absmach/rmqctl/message"
)

// ImportResult reports how many messages an import published.
type ImportResult struct {
	Imported int      `json:"imported"`
	Failed   int      `json:"failed"`
	Errors   []string `json:"errors,omitempty"`
}

// ListQueues returns the queues matching the glob pattern.
func (s *Service) ListQueues(ctx context.Context, pattern string) ([]message.Queue, error) {
	return s.broker.ListQueues(ctx, pattern)
}

// Queue returns the queue named name.
func (s *Service) Queue(ctx context.Context, name string) (message.Queue, error) {
	if name == "" {
		return message.Queue{}, broker.ErrQueueRequired
	}
	qs, err := s.broker.ListQueues(ctx, name)
	if err != nil {
		return message.Queue{}, err
	}
	for _, q := range qs {
		if q.Name == name {
			return q, nil
		}
	}
	return message.Queue{}, fmt.Errorf("%w: %s", ErrQueueNotFound, name)
}

// Peek returns up to limit messages from the head of queue without removing them.
// A limit of zero or less returns every message.
func (s *Service) Peek(ctx context.Context, queue string, limit int) ([]message.Message, error) {
	return s.peek(ctx, queue, limit)
}

// Purge removes every ready message from queue. Purged messages are not backed up.
func (s *Service) Purge(ctx context.Context, queue string) (int, error) {
	if queue == "" {
		return 0, broker.ErrQueueRequired
	}
	n, err := s.broker.Purge(ctx, queue)
	if err != nil {
		return 0, fmt.Errorf("failed to purge %s: %w", queue, err)
	}
	s.logger.Info("queue purged", slog.String("queue", queue), slog.Int("messages", n))
	return n, nil
}

// Export peeks up to limit messages from every queue matching pattern.
func (s *Service) Export(ctx context.Context, pattern string, limit int) ([]message.Message, error) {
	qs, err := s.broker.ListQueues(ctx, pattern)
	if err != nil {
		return nil, fmt.Errorf("failed to list queues: %w", err)
	}
	var out []message.Message
	for _, q := range qs {
		msgs, err := s.peek(ctx, q.Name, limit)
		if err != nil {
			return nil, err
		}
		out = append(out, msgs...)
	}
	return out, nil
}

// Import publishes the payload of every message to queue through the default
// exchange. Failed publishes are counted and do not stop the import.
func (s *Service) Import(ctx context.Context, queue string, msgs []message.Message) (ImportResult, error) {
	if queue == "" {
		return ImportResult{}, broker.ErrQueueRequired
	}
	var res ImportResult
	for _, m := range msgs {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		if err := s.broker.Publish(ctx, broker.DefaultExchange, queue, m.Payload, broker.WithMessage(m)); err != nil {
			res.Failed++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", m.ID, err))
			continue
		}
		res.Imported++
	}
	return res, nil
}

// Consume streams messages of queue into handler. The broker must support
// streaming consumers.
func (s *Service) Consume(ctx context.Context, queue string, opts broker.ConsumeOptions, handler func(message.Message) error) error {
	if queue == "" {
		return broker.ErrQueueRequired
	}
	c, ok := s.broker.(broker.Consumer)
	if !ok {
		return broker.ErrNotSupported
	}
	return c.Consume(ctx, queue, opts, handler)
}

// RequeueQueue moves up to limit messages from one queue to another. A limit of
// zero or less moves every message.
func (s *Service) RequeueQueue(ctx context.Context, from, to string, limit int) (message.Summary, error) {
	if from == "" || to == "" {
		return message.Summary{}, broker.ErrQueueRequired
	}
	if from == to {
		return message.Summary{}, ErrSameQueue
	}
	return s.run(ctx, OpRequeueMessages, s.drain(from, limit), s.publishTo(broker.DefaultExchange, to))
}

// ReprocessQueue takes up to limit messages off queue and publishes each again to
// its original exchange and routing key.
func (s *Service) ReprocessQueue(ctx context.Context, queue string, limit int) (message.Summary, error) {
	if queue == "" {
		return message.Summary{}, broker.ErrQueueRequired
	}
	return s.run(ctx, OpReprocessMessages, s.drain(queue, limit), s.republish)
}

func (s *Service) drain(queue string, limit int) func(context.Context) ([]message.Message, error) {
	return func(ctx context.Context) ([]message.Message, error) {
		msgs, err := s.broker.Fetch(ctx, queue, limit, true)
		if err != nil {
			return nil, fmt.Errorf("failed to drain %s: %w", queue, err)
		}
		return msgs, nil
	}
}
