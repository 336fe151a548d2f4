// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package testutil

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"github.com/absmach/rmqctl/broker"
	"github.com/absmach/rmqctl/message"
)

var (
	_ broker.Client   = (*Broker)(nil)
	_ broker.Consumer = (*Broker)(nil)
)

// ErrQueueNotFound is returned for operations on undeclared queues.
var ErrQueueNotFound = errors.New("queue not found")

// Published records one accepted publish.
type Published struct {
	Exchange   string
	RoutingKey string
	Payload    []byte
	Headers    map[string]string
	Properties map[string]string
}

type stored struct {
	exchange   string
	routingKey string
	payload    []byte
	headers    map[string]string
	properties map[string]string
}

// Broker is an in-memory broker with direct exchanges. The default exchange
// routes to the queue named by the routing key.
type Broker struct {
	mu       sync.Mutex
	queues   map[string][]stored
	bindings map[string]map[string][]string
	closed   bool

	// Published lists accepted publishes in order.
	Published []Published

	// FetchErr fails every Fetch when set.
	FetchErr error

	// PublishHook runs before each publish. A non-nil error rejects it.
	PublishHook func(exchange, routingKey string, payload []byte) error
}

// NewBroker creates a broker with the given queues declared.
func NewBroker(queues ...string) *Broker {
	b := &Broker{
		queues:   make(map[string][]stored),
		bindings: make(map[string]map[string][]string),
	}
	for _, q := range queues {
		b.queues[q] = nil
	}
	return b
}

// Declare creates queue if it does not exist.
func (b *Broker) Declare(queue string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.queues[queue]; !ok {
		b.queues[queue] = nil
	}
}

// Bind routes messages published to exchange with routingKey into queue.
func (b *Broker) Bind(exchange, routingKey, queue string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.bindings[exchange] == nil {
		b.bindings[exchange] = make(map[string][]string)
	}
	b.bindings[exchange][routingKey] = append(b.bindings[exchange][routingKey], queue)
}

// Enqueue appends a message to queue as if it had been published through
// exchange with routingKey.
func (b *Broker) Enqueue(queue, exchange, routingKey string, payload []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queues[queue] = append(b.queues[queue], stored{
		exchange:   exchange,
		routingKey: routingKey,
		payload:    slices.Clone(payload),
	})
}

// Payloads returns the payloads currently in queue, in order.
func (b *Broker) Payloads(queue string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, m := range b.queues[queue] {
		out = append(out, string(m.payload))
	}
	return out
}

// Len returns the number of messages in queue.
func (b *Broker) Len(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queues[queue])
}

// Fetch reads messages from the head of queue. Delivery tags restart at 1 on
// every call.
func (b *Broker) Fetch(_ context.Context, queue string, count int, ack bool) ([]message.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, broker.ErrNotConnected
	}
	if b.FetchErr != nil {
		return nil, b.FetchErr
	}
	if queue == "" {
		return nil, broker.ErrQueueRequired
	}
	q, ok := b.queues[queue]
	if !ok {
		return nil, ErrQueueNotFound
	}

	n := len(q)
	if count > 0 && count < n {
		n = count
	}

	msgs := make([]message.Message, n)
	for i, s := range q[:n] {
		msgs[i] = message.Message{
			ID:         message.NewID(int64(i+1), queue, s.exchange, s.routingKey, s.payload),
			Queue:      queue,
			Exchange:   s.exchange,
			RoutingKey: s.routingKey,
			Payload:    slices.Clone(s.payload),
			Headers:    maps.Clone(s.headers),
			Properties: maps.Clone(s.properties),
			Source:     message.SourceAMQP,
		}
	}
	if ack {
		b.queues[queue] = slices.Clone(q[n:])
	}
	return msgs, nil
}

// Publish routes payload to the bound queues.
func (b *Broker) Publish(_ context.Context, exchange, routingKey string, payload []byte, opts ...broker.PublishOption) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return broker.ErrNotConnected
	}
	if b.PublishHook != nil {
		if err := b.PublishHook(exchange, routingKey, payload); err != nil {
			return err
		}
	}

	var targets []string
	if exchange == broker.DefaultExchange {
		if _, ok := b.queues[routingKey]; ok {
			targets = []string{routingKey}
		}
	} else {
		targets = b.bindings[exchange][routingKey]
	}
	if len(targets) == 0 {
		return broker.ErrUnroutable
	}

	o := broker.NewPublishOptions(opts...)
	for _, q := range targets {
		b.queues[q] = append(b.queues[q], stored{
			exchange:   exchange,
			routingKey: routingKey,
			payload:    slices.Clone(payload),
			headers:    maps.Clone(o.Headers),
			properties: maps.Clone(o.Properties),
		})
	}
	b.Published = append(b.Published, Published{
		Exchange:   exchange,
		RoutingKey: routingKey,
		Payload:    slices.Clone(payload),
		Headers:    o.Headers,
		Properties: o.Properties,
	})
	return nil
}

// ListQueues returns the declared queues matching the glob pattern, sorted by name.
func (b *Broker) ListQueues(_ context.Context, pattern string) ([]message.Queue, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if pattern == "" {
		pattern = "*"
	}
	re, err := message.Glob(pattern, true)
	if err != nil {
		return nil, err
	}

	names := slices.Sorted(maps.Keys(b.queues))
	var out []message.Queue
	for _, name := range names {
		if re.MatchString(name) {
			out = append(out, message.Queue{
				Name:          name,
				VHost:         "/",
				MessagesReady: int64(len(b.queues[name])),
			})
		}
	}
	return out, nil
}

// Purge empties queue.
func (b *Broker) Purge(_ context.Context, queue string) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	q, ok := b.queues[queue]
	if !ok {
		return 0, ErrQueueNotFound
	}
	b.queues[queue] = nil
	return len(q), nil
}

// Consume drains queue into handler.
func (b *Broker) Consume(ctx context.Context, queue string, opts broker.ConsumeOptions, handler func(message.Message) error) error {
	msgs, err := b.Fetch(ctx, queue, opts.Limit, opts.AutoAck)
	if err != nil {
		return err
	}
	for _, m := range msgs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := handler(m); err != nil {
			return err
		}
	}
	return nil
}

// Close marks the broker closed.
func (b *Broker) Close() error {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	return nil
}
