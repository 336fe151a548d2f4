// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package message

import "github.com/google/uuid"

// Result is the outcome of processing a single message.
type Result struct {
	MessageID ID
	Reason    string
	failed    bool
}

// Success reports that the message with the given identity was processed.
func Success(id ID) Result {
	return Result{MessageID: id}
}

// Failure reports that processing the message failed for reason.
func Failure(id ID, reason string) Result {
	return Result{MessageID: id, Reason: reason, failed: true}
}

// OK reports whether the result is a success.
func (r Result) OK() bool {
	return !r.failed
}

// Summary reports the outcome of a coordinated operation.
type Summary struct {
	ID          uuid.UUID
	Type        string
	Successful  int
	Failed      int
	Processed   []Message
	Unprocessed []Message

	// Warnings collects non-fatal problems, such as a best-effort cleanup step that
	// did not complete.
	Warnings []string
}

// Retained reports whether the operation record was kept for manual recovery.
func (s Summary) Retained() bool {
	return s.Failed > 0
}
