// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package backup

import "errors"

// Backup store errors.
var (
	ErrOperationNotFound = errors.New("operation record not found")
	ErrUnknownMessage    = errors.New("message is not part of the operation snapshot")
	ErrCorruptRecord     = errors.New("corrupt operation record")
)
