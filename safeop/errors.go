// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package safeop

import "errors"

var (
	// ErrBackupFailed means the snapshot could not be persisted. No message was
	// processed when it is returned.
	ErrBackupFailed = errors.New("failed to back up operation snapshot")

	// ErrProgressUnknown means processing ran but the recorded progress could not
	// be read back. The summary is built from in-process results.
	ErrProgressUnknown = errors.New("failed to read back operation progress")
)
