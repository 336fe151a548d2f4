// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package broker defines the broker operations the tool depends on.
package broker

import (
	"context"
	"maps"

	"github.com/absmach/rmqctl/message"
)

// DefaultExchange is the nameless direct exchange every queue is bound to by name.
const DefaultExchange = ""

// Client reads, publishes and purges messages on a broker.
type Client interface {
	// Fetch reads up to count messages from queue in queue order. A count of
	// zero or less reads until the queue is empty. With ack the messages are
	// removed from the queue, otherwise they are returned to it.
	Fetch(ctx context.Context, queue string, count int, ack bool) ([]message.Message, error)

	// Publish sends payload to exchange with routingKey and waits until the
	// broker accepted it.
	Publish(ctx context.Context, exchange, routingKey string, payload []byte, opts ...PublishOption) error

	// ListQueues returns the queues whose names match the glob pattern. An empty
	// pattern matches every queue.
	ListQueues(ctx context.Context, pattern string) ([]message.Queue, error)

	// Purge removes every ready message from queue and returns their count.
	Purge(ctx context.Context, queue string) (int, error)

	Close() error
}

// ConsumeOptions configures a streaming consumer.
type ConsumeOptions struct {
	AutoAck  bool
	Prefetch int
	Limit    int
}

// Consumer streams deliveries from a queue.
type Consumer interface {
	// Consume calls handler for every delivery until ctx is done, the limit is
	// reached or handler returns an error.
	Consume(ctx context.Context, queue string, opts ConsumeOptions, handler func(message.Message) error) error
}

// PublishOptions carries optional publishing metadata.
type PublishOptions struct {
	Headers    map[string]string
	Properties map[string]string
}

// PublishOption configures a publish.
type PublishOption func(*PublishOptions)

// WithHeaders sets application headers.
func WithHeaders(h map[string]string) PublishOption {
	return func(o *PublishOptions) {
		if len(h) == 0 {
			return
		}
		if o.Headers == nil {
			o.Headers = make(map[string]string, len(h))
		}
		maps.Copy(o.Headers, h)
	}
}

// WithProperties sets basic properties such as content_type or message_id.
func WithProperties(p map[string]string) PublishOption {
	return func(o *PublishOptions) {
		if len(p) == 0 {
			return
		}
		if o.Properties == nil {
			o.Properties = make(map[string]string, len(p))
		}
		maps.Copy(o.Properties, p)
	}
}

// WithMessage carries over the headers and properties of m.
func WithMessage(m message.Message) PublishOption {
	return func(o *PublishOptions) {
		WithHeaders(m.Headers)(o)
		WithProperties(m.Properties)(o)
	}
}

// NewPublishOptions applies opts.
func NewPublishOptions(opts ...PublishOption) PublishOptions {
	var o PublishOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
