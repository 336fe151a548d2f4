// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package amqp

import "errors"

// Client errors.
var (
	ErrNoAddress        = errors.New("no broker address configured")
	ErrAlreadyConnected = errors.New("client already connected")
	ErrNilHandler       = errors.New("handler cannot be nil")
	ErrConfirmTimeout   = errors.New("timed out waiting for publish confirmation")
)
