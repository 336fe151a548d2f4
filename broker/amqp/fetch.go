// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package amqp

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/absmach/rmqctl/broker"
	"github.com/absmach/rmqctl/message"
)

// Fetch reads messages with basic.get on a fresh channel. Deliveries are
// settled together at the end: acked when ack is set, requeued otherwise. On
// error nothing is acked.
func (c *Client) Fetch(ctx context.Context, queue string, count int, ack bool) ([]message.Message, error) {
	if queue == "" {
		return nil, broker.ErrQueueRequired
	}

	ch, err := c.channel()
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	var (
		msgs []message.Message
		last uint64
	)
	for count <= 0 || len(msgs) < count {
		if err := ctx.Err(); err != nil {
			c.requeue(ch, queue, last)
			return nil, err
		}

		d, ok, err := ch.Get(queue, false)
		if err != nil {
			c.requeue(ch, queue, last)
			return nil, fmt.Errorf("failed to get from %s: %w", queue, err)
		}
		if !ok {
			break
		}
		last = d.DeliveryTag
		msgs = append(msgs, toMessage(queue, d))
	}

	if last == 0 {
		return msgs, nil
	}

	if ack {
		if err := ch.Ack(last, true); err != nil {
			return nil, fmt.Errorf("failed to ack %d deliveries from %s: %w", len(msgs), queue, err)
		}
	} else if err := ch.Nack(last, true, true); err != nil {
		return nil, fmt.Errorf("failed to requeue %d deliveries to %s: %w", len(msgs), queue, err)
	}

	c.logger.Debug("fetched messages",
		slog.String("queue", queue),
		slog.Int("count", len(msgs)),
		slog.Bool("ack", ack))
	return msgs, nil
}

// Purge removes all ready messages from queue.
func (c *Client) Purge(ctx context.Context, queue string) (int, error) {
	if queue == "" {
		return 0, broker.ErrQueueRequired
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	ch, err := c.channel()
	if err != nil {
		return 0, err
	}
	defer ch.Close()

	n, err := ch.QueuePurge(queue, false)
	if err != nil {
		return 0, fmt.Errorf("failed to purge %s: %w", queue, err)
	}
	return n, nil
}

func (c *Client) requeue(ch channel, queue string, last uint64) {
	if last == 0 {
		return
	}
	if err := ch.Nack(last, true, true); err != nil {
		// Closing the channel returns the deliveries to the queue as well.
		c.logger.Warn("failed to requeue deliveries", slog.String("queue", queue), slog.String("error", err.Error()))
	}
}
