// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package amqp

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/absmach/rmqctl/message"
	amqp091 "github.com/rabbitmq/amqp091-go"
)

// Property names shared with the management API.
const (
	PropContentType     = "content_type"
	PropContentEncoding = "content_encoding"
	PropDeliveryMode    = "delivery_mode"
	PropPriority        = "priority"
	PropCorrelationID   = "correlation_id"
	PropReplyTo         = "reply_to"
	PropExpiration      = "expiration"
	PropMessageID       = "message_id"
	PropTimestamp       = "timestamp"
	PropType            = "type"
	PropUserID          = "user_id"
	PropAppID           = "app_id"
)

func toMessage(queue string, d amqp091.Delivery) message.Message {
	return message.Message{
		ID:         message.NewID(int64(d.DeliveryTag), queue, d.Exchange, d.RoutingKey, d.Body),
		Queue:      queue,
		Exchange:   d.Exchange,
		RoutingKey: d.RoutingKey,
		Payload:    d.Body,
		Headers:    tableToStrings(d.Headers),
		Properties: deliveryProperties(d),
		Source:     message.SourceAMQP,
	}
}

func deliveryProperties(d amqp091.Delivery) map[string]string {
	props := make(map[string]string)
	set := func(k, v string) {
		if v != "" {
			props[k] = v
		}
	}
	set(PropContentType, d.ContentType)
	set(PropContentEncoding, d.ContentEncoding)
	set(PropCorrelationID, d.CorrelationId)
	set(PropReplyTo, d.ReplyTo)
	set(PropExpiration, d.Expiration)
	set(PropMessageID, d.MessageId)
	set(PropType, d.Type)
	set(PropUserID, d.UserId)
	set(PropAppID, d.AppId)
	if d.DeliveryMode != 0 {
		props[PropDeliveryMode] = strconv.Itoa(int(d.DeliveryMode))
	}
	if d.Priority != 0 {
		props[PropPriority] = strconv.Itoa(int(d.Priority))
	}
	if !d.Timestamp.IsZero() {
		props[PropTimestamp] = d.Timestamp.UTC().Format(time.RFC3339)
	}
	if len(props) == 0 {
		return nil
	}
	return props
}

func tableToStrings(t amqp091.Table) map[string]string {
	if len(t) == 0 {
		return nil
	}
	out := make(map[string]string, len(t))
	for k, v := range t {
		switch v := v.(type) {
		case string:
			out[k] = v
		case []byte:
			out[k] = string(v)
		case time.Time:
			out[k] = v.UTC().Format(time.RFC3339)
		case nil:
			out[k] = ""
		default:
			out[k] = fmt.Sprint(v)
		}
	}
	return out
}

// applyProperties maps property names (snake or kebab case) onto p. Unknown
// names become headers.
func applyProperties(p *amqp091.Publishing, props map[string]string) error {
	for key, value := range props {
		switch strings.ReplaceAll(strings.ToLower(key), "-", "_") {
		case PropContentType:
			p.ContentType = value
		case PropContentEncoding:
			p.ContentEncoding = value
		case PropCorrelationID:
			p.CorrelationId = value
		case PropReplyTo:
			p.ReplyTo = value
		case PropMessageID:
			p.MessageId = value
		case PropType:
			p.Type = value
		case PropUserID:
			p.UserId = value
		case PropAppID:
			p.AppId = value
		case PropExpiration:
			p.Expiration = value
		case PropDeliveryMode:
			n, err := strconv.ParseUint(value, 10, 8)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", PropDeliveryMode, value, err)
			}
			p.DeliveryMode = uint8(n)
		case PropPriority:
			n, err := strconv.ParseUint(value, 10, 8)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", PropPriority, value, err)
			}
			p.Priority = uint8(n)
		case PropTimestamp:
			ts, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return fmt.Errorf("invalid %s %q: %w", PropTimestamp, value, err)
			}
			p.Timestamp = ts
		default:
			if p.Headers == nil {
				p.Headers = amqp091.Table{}
			}
			p.Headers[key] = value
		}
	}
	return nil
}

func applyHeaders(p *amqp091.Publishing, headers map[string]string) {
	if len(headers) == 0 {
		return
	}
	if p.Headers == nil {
		p.Headers = amqp091.Table{}
	}
	for k, v := range headers {
		p.Headers[k] = v
	}
}
