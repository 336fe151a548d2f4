// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package storage

import "errors"

// Common errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrClosed       = errors.New("store is closed")
	ErrInvalidKey   = errors.New("collection and id cannot be empty")
	ErrCorruptValue = errors.New("corrupt stored value")
)

// Record is a keyed value stored in a collection.
type Record struct {
	ID    string
	Value []byte
}

// Store is a durable keyed-record store. Records are grouped into named
// collections and addressed by id within a collection.
type Store interface {
	// Save creates or overwrites the record.
	Save(collection, id string, value []byte) error

	// Get returns the record value or ErrNotFound.
	Get(collection, id string) ([]byte, error)

	// Find returns the records of a collection accepted by match, in id order.
	// A nil match accepts every record.
	Find(collection string, match func(Record) bool) ([]Record, error)

	// Update overwrites an existing record or returns ErrNotFound.
	Update(collection, id string, value []byte) error

	// Delete removes the record or returns ErrNotFound.
	Delete(collection, id string) error

	// Close releases the underlying resources.
	Close() error
}

// Key joins collection and id into a flat key.
func Key(collection, id string) (string, error) {
	if collection == "" || id == "" {
		return "", ErrInvalidKey
	}
	return collection + "/" + id, nil
}

// Prefix returns the key prefix shared by every record of collection.
func Prefix(collection string) string {
	return collection + "/"
}
