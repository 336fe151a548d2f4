// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package service

import "errors"

var (
	ErrMessageNotFound  = errors.New("message not found")
	ErrQueueNotFound    = errors.New("queue not found")
	ErrSameQueue        = errors.New("source and destination queue are the same")
	ErrNothingToRecover = errors.New("operation has no unprocessed messages")
	ErrInvalidPattern   = errors.New("invalid search pattern")
	ErrNotRecoverable   = errors.New("operation cannot be recovered by republishing")
)
