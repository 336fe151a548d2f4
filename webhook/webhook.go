// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package webhook posts notifications about coordinated operations to HTTP
// endpoints.
package webhook

import (
	"context"
	"time"

	"github.com/absmach/rmqctl/message"
	"github.com/google/uuid"
)

// Event types.
const (
	EventCompleted    = "operation.completed"
	EventIncomplete   = "operation.incomplete"
	EventBackupFailed = "operation.backup_failed"
)

// Event describes the outcome of one coordinated operation.
type Event struct {
	Type        string       `json:"-"`
	OperationID uuid.UUID    `json:"operation_id"`
	Operation   string       `json:"operation"`
	Successful  int          `json:"successful"`
	Failed      int          `json:"failed"`
	Unprocessed []message.ID `json:"unprocessed,omitempty"`
	Warnings    []string     `json:"warnings,omitempty"`
}

// Envelope is the JSON body posted to endpoints.
type Envelope struct {
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Data      Event     `json:"data"`
}

// Sender is the protocol-specific sender interface.
type Sender interface {
	// Send sends a webhook payload to the specified URL.
	Send(ctx context.Context, url string, headers map[string]string, payload []byte) error
}
