// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package amqp

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/absmach/rmqctl/broker"
	"github.com/absmach/rmqctl/message"
)

var errChannelClosed = errors.New("delivery channel closed by broker")

// Consume registers a consumer on a fresh channel and hands deliveries to
// handler. Without AutoAck a delivery is acked after handler returns nil and
// requeued when it returns an error.
func (c *Client) Consume(ctx context.Context, queue string, opts broker.ConsumeOptions, handler func(message.Message) error) error {
	if queue == "" {
		return broker.ErrQueueRequired
	}
	if handler == nil {
		return ErrNilHandler
	}

	ch, err := c.channel()
	if err != nil {
		return err
	}
	defer ch.Close()

	if opts.Prefetch > 0 {
		if err := ch.Qos(opts.Prefetch, 0, false); err != nil {
			return err
		}
	}

	tag := "rmqctl-" + strconv.FormatInt(time.Now().UnixNano(), 10)
	deliveries, err := ch.Consume(queue, tag, opts.AutoAck, false, false, false, nil)
	if err != nil {
		return err
	}
	defer func() { _ = ch.Cancel(tag, false) }()

	c.logger.Debug("consuming", slog.String("queue", queue), slog.String("consumer_tag", tag))

	received := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errChannelClosed
			}
			// Consumer deliveries are numbered per channel, like fetches.
			msg := toMessage(queue, d)
			if err := handler(msg); err != nil {
				if !opts.AutoAck {
					_ = d.Nack(false, true)
				}
				return err
			}
			if !opts.AutoAck {
				if err := d.Ack(false); err != nil {
					return err
				}
			}
			received++
			if opts.Limit > 0 && received >= opts.Limit {
				return nil
			}
		}
	}
}
