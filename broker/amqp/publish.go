// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package amqp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/absmach/rmqctl/broker"
	amqp091 "github.com/rabbitmq/amqp091-go"
)

// Publish sends payload as a mandatory message and waits for the broker to
// confirm it. Messages the broker cannot route fail with broker.ErrUnroutable.
func (c *Client) Publish(ctx context.Context, exchange, routingKey string, payload []byte, opts ...broker.PublishOption) error {
	if exchange == broker.DefaultExchange && routingKey == "" {
		return broker.ErrQueueRequired
	}

	publishing, err := newPublishing(payload, broker.NewPublishOptions(opts...))
	if err != nil {
		return err
	}

	c.pubMu.Lock()
	defer c.pubMu.Unlock()

	ch, err := c.publisher()
	if err != nil {
		return err
	}

	timeout := c.opts.ConfirmTimeout
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, exchange, routingKey, true, false, publishing)
	if err != nil {
		c.resetPublisher()
		return fmt.Errorf("failed to publish to %s: %w", broker.Destination(exchange, routingKey), err)
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		// A late confirmation or return would be mistaken for the next publish.
		c.resetPublisher()
		if errors.Is(err, context.DeadlineExceeded) {
			return ErrConfirmTimeout
		}
		return err
	}
	if !acked {
		return broker.ErrNacked
	}

	// The broker sends basic.return before the confirmation of the same message.
	select {
	case r := <-c.returns:
		return fmt.Errorf("%w: %s %s", broker.ErrUnroutable, broker.Destination(exchange, routingKey), r.ReplyText)
	default:
	}
	return nil
}

// publisher returns the confirm-mode channel, opening it on first use.
// Callers hold pubMu.
func (c *Client) publisher() (*amqp091.Channel, error) {
	if !c.connected.Load() || c.conn == nil {
		return nil, broker.ErrNotConnected
	}
	if c.pub != nil && !c.pub.IsClosed() {
		return c.pub, nil
	}

	ch, err := c.conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	c.returns = ch.NotifyReturn(make(chan amqp091.Return, 1))
	c.pub = ch
	return ch, nil
}

// resetPublisher closes the confirm channel. Callers hold pubMu.
func (c *Client) resetPublisher() {
	if c.pub != nil {
		_ = c.pub.Close()
		c.pub = nil
		c.returns = nil
	}
}

func newPublishing(payload []byte, o broker.PublishOptions) (amqp091.Publishing, error) {
	p := amqp091.Publishing{
		Timestamp:    time.Now(),
		DeliveryMode: amqp091.Persistent,
		Body:         payload,
	}
	if err := applyProperties(&p, o.Properties); err != nil {
		return amqp091.Publishing{}, err
	}
	applyHeaders(&p, o.Headers)
	return p, nil
}
