// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package amqp

import (
	"testing"
	"time"

	"github.com/absmach/rmqctl/broker"
	"github.com/absmach/rmqctl/message"
	amqp091 "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToMessage(t *testing.T) {
	ts := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	d := amqp091.Delivery{
		DeliveryTag:   3,
		Exchange:      "events",
		RoutingKey:    "order.created",
		Body:          []byte(`{"id":7}`),
		ContentType:   "application/json",
		DeliveryMode:  amqp091.Persistent,
		Priority:      4,
		MessageId:     "m-7",
		Timestamp:     ts,
		CorrelationId: "c-1",
		Headers: amqp091.Table{
			"x-retry":  int32(2),
			"x-source": "billing",
			"x-raw":    []byte("bytes"),
		},
	}

	m := toMessage("orders", d)

	assert.Equal(t, message.NewID(3, "orders", "events", "order.created", d.Body), m.ID)
	assert.Equal(t, "orders", m.Queue)
	assert.Equal(t, message.SourceAMQP, m.Source)
	assert.Equal(t, map[string]string{"x-retry": "2", "x-source": "billing", "x-raw": "bytes"}, m.Headers)
	assert.Equal(t, map[string]string{
		PropContentType:   "application/json",
		PropDeliveryMode:  "2",
		PropPriority:      "4",
		PropMessageID:     "m-7",
		PropTimestamp:     "2026-03-01T12:00:00Z",
		PropCorrelationID: "c-1",
	}, m.Properties)
}

func TestToMessage_NoMetadata(t *testing.T) {
	m := toMessage("orders", amqp091.Delivery{DeliveryTag: 1, RoutingKey: "orders", Body: []byte("x")})

	assert.Nil(t, m.Headers)
	assert.Nil(t, m.Properties)
}

func TestNewPublishing_RestoresProperties(t *testing.T) {
	d := amqp091.Delivery{
		DeliveryTag:  1,
		ContentType:  "text/plain",
		DeliveryMode: amqp091.Transient,
		Priority:     9,
		Timestamp:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		Headers:      amqp091.Table{"x-trace": "abc"},
		Body:         []byte("hello"),
	}
	m := toMessage("orders", d)

	p, err := newPublishing(m.Payload, broker.NewPublishOptions(broker.WithMessage(m)))
	require.NoError(t, err)

	assert.Equal(t, "text/plain", p.ContentType)
	assert.Equal(t, amqp091.Transient, p.DeliveryMode)
	assert.Equal(t, uint8(9), p.Priority)
	assert.True(t, d.Timestamp.Equal(p.Timestamp))
	assert.Equal(t, "abc", p.Headers["x-trace"])
	assert.Equal(t, []byte("hello"), p.Body)
}

func TestNewPublishing_Defaults(t *testing.T) {
	p, err := newPublishing([]byte("x"), broker.PublishOptions{})
	require.NoError(t, err)

	assert.Equal(t, amqp091.Persistent, p.DeliveryMode)
	assert.False(t, p.Timestamp.IsZero())
	assert.Nil(t, p.Headers)
}

func TestApplyProperties(t *testing.T) {
	var p amqp091.Publishing
	err := applyProperties(&p, map[string]string{
		"Content-Type": "application/json",
		"reply-to":     "replies",
		"app_id":       "rmqctl",
		"x-custom":     "value",
	})
	require.NoError(t, err)

	assert.Equal(t, "application/json", p.ContentType)
	assert.Equal(t, "replies", p.ReplyTo)
	assert.Equal(t, "rmqctl", p.AppId)
	assert.Equal(t, "value", p.Headers["x-custom"])
}

func TestApplyProperties_Invalid(t *testing.T) {
	for _, props := range []map[string]string{
		{PropDeliveryMode: "persistent"},
		{PropPriority: "300"},
		{PropTimestamp: "yesterday"},
	} {
		var p amqp091.Publishing
		assert.Error(t, applyProperties(&p, props))
	}
}
