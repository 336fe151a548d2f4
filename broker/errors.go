// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package broker

import "errors"

var (
	ErrNotConnected  = errors.New("broker client not connected")
	ErrQueueRequired = errors.New("queue name cannot be empty")
	ErrNotSupported  = errors.New("operation not supported by this client")
	ErrUnroutable    = errors.New("message was not routed to any queue")
	ErrNacked        = errors.New("broker rejected the message")
)
