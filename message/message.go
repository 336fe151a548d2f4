// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package message

import "errors"

// ErrInvalidID is returned when a string is not a well-formed message identity.
var ErrInvalidID = errors.New("invalid message id")

// Source identifies the transport a message was read through.
type Source string

// Supported sources.
const (
	SourceAMQP Source = "amqp"
	SourceHTTP Source = "http"
)

// Message is a broker message as observed by the tool. Messages read over AMQP and
// over the management API share this shape.
type Message struct {
	ID         ID                `json:"id"`
	Queue      string            `json:"queue,omitempty"`
	Exchange   string            `json:"exchange"`
	RoutingKey string            `json:"routing_key"`
	Payload    []byte            `json:"payload"`
	Headers    map[string]string `json:"headers,omitempty"`
	Properties map[string]string `json:"properties,omitempty"`
	Source     Source            `json:"source,omitempty"`
}

// IDs returns the identities of msgs in order.
func IDs(msgs []Message) []ID {
	ids := make([]ID, len(msgs))
	for i, m := range msgs {
		ids[i] = m.ID
	}
	return ids
}

// Queue describes a broker queue.
type Queue struct {
	Name                   string `json:"name"`
	VHost                  string `json:"vhost"`
	MessagesReady          int64  `json:"messages_ready"`
	MessagesUnacknowledged int64  `json:"messages_unacknowledged"`
}

// TotalMessages returns ready plus unacknowledged messages.
func (q Queue) TotalMessages() int64 {
	return q.MessagesReady + q.MessagesUnacknowledged
}

// VHost describes a broker virtual host.
type VHost struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Default     bool   `json:"-"`
}
