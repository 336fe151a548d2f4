// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import (
	"context"

	"github.com/absmach/rmqctl/message"
	"github.com/absmach/rmqctl/ratelimit"
)

var (
	_ Client   = (*ThrottledClient)(nil)
	_ Consumer = (*ThrottledClient)(nil)
)

// ThrottledClient limits the publish rate of a Client per destination.
type ThrottledClient struct {
	Client
	limiter *ratelimit.Limiter
}

// Throttled wraps c so that publishes wait on limiter.
func Throttled(c Client, limiter *ratelimit.Limiter) *ThrottledClient {
	return &ThrottledClient{Client: c, limiter: limiter}
}

// Publish waits for a token of the destination and publishes.
func (t *ThrottledClient) Publish(ctx context.Context, exchange, routingKey string, payload []byte, opts ...PublishOption) error {
	if err := t.limiter.Wait(ctx, Destination(exchange, routingKey)); err != nil {
		return err
	}
	return t.Client.Publish(ctx, exchange, routingKey, payload, opts...)
}

// Consume delegates to the wrapped client when it can consume.
func (t *ThrottledClient) Consume(ctx context.Context, queue string, opts ConsumeOptions, handler func(message.Message) error) error {
	c, ok := t.Client.(Consumer)
	if !ok {
		return ErrNotSupported
	}
	return c.Consume(ctx, queue, opts, handler)
}

// Close stops the limiter and closes the wrapped client.
func (t *ThrottledClient) Close() error {
	t.limiter.Stop()
	return t.Client.Close()
}

// Destination names where a publish goes: the exchange, or the queue for the
// default exchange.
func Destination(exchange, routingKey string) string {
	if exchange == DefaultExchange {
		return "queue:" + routingKey
	}
	return "exchange:" + exchange
}
