// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker_test

import (
	"context"
	"testing"
	"time"

	"github.com/absmach/rmqctl/broker"
	"github.com/absmach/rmqctl/message"
	"github.com/absmach/rmqctl/ratelimit"
	"github.com/absmach/rmqctl/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestThrottled_PublishWaitsForToken(t *testing.T) {
	fake := testutil.NewBroker("orders")
	c := broker.Throttled(fake, ratelimit.New(0.001, 1, time.Minute))
	defer c.Close()

	require.NoError(t, c.Publish(context.Background(), "", "orders", []byte("a")))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := c.Publish(ctx, "", "orders", []byte("b"))
	assert.Error(t, err)
	assert.Equal(t, []string{"a"}, fake.Payloads("orders"))
}

func TestThrottled_DestinationsAreIndependent(t *testing.T) {
	fake := testutil.NewBroker("orders", "invoices")
	c := broker.Throttled(fake, ratelimit.New(0.001, 1, time.Minute))
	defer c.Close()

	ctx := context.Background()
	require.NoError(t, c.Publish(ctx, "", "orders", []byte("a")))
	require.NoError(t, c.Publish(ctx, "", "invoices", []byte("b")))
}

func TestThrottled_DelegatesReadsAndConsume(t *testing.T) {
	fake := testutil.NewBroker("orders")
	fake.Enqueue("orders", "", "orders", []byte("a"))
	c := broker.Throttled(fake, ratelimit.New(0, 0, time.Minute))
	defer c.Close()

	msgs, err := c.Fetch(context.Background(), "orders", 0, false)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)

	var seen []string
	err = c.Consume(context.Background(), "orders", broker.ConsumeOptions{AutoAck: true}, func(m message.Message) error {
		seen = append(seen, string(m.Payload))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, seen)
	assert.Zero(t, fake.Len("orders"))
}

func TestDestination(t *testing.T) {
	assert.Equal(t, "queue:orders", broker.Destination("", "orders"))
	assert.Equal(t, "exchange:events", broker.Destination("events", "order.created"))
}

func TestPublishOptions(t *testing.T) {
	m := message.Message{
		Headers:    map[string]string{"x-retry": "1"},
		Properties: map[string]string{"content_type": "application/json"},
	}

	o := broker.NewPublishOptions(broker.WithMessage(m), broker.WithHeaders(map[string]string{"x-source": "rmqctl"}))
	assert.Equal(t, map[string]string{"x-retry": "1", "x-source": "rmqctl"}, o.Headers)
	assert.Equal(t, "application/json", o.Properties["content_type"])

	// Options copy maps.
	o.Headers["x-retry"] = "2"
	assert.Equal(t, "1", m.Headers["x-retry"])

	assert.Nil(t, broker.NewPublishOptions(broker.WithHeaders(nil)).Headers)
}
