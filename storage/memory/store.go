// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"slices"
	"sync"

	"github.com/absmach/rmqctl/storage"
)

var _ storage.Store = (*Store)(nil)

// Store is an in-memory keyed-record store. Records do not survive the process.
type Store struct {
	mu          sync.RWMutex
	collections map[string]map[string][]byte
	closed      bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{
		collections: make(map[string]map[string][]byte),
	}
}

// Save creates or overwrites a record.
func (s *Store) Save(collection, id string, value []byte) error {
	if _, err := storage.Key(collection, id); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}

	c, ok := s.collections[collection]
	if !ok {
		c = make(map[string][]byte)
		s.collections[collection] = c
	}
	c[id] = slices.Clone(value)
	return nil
}

// Get retrieves a record value.
func (s *Store) Get(collection, id string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}

	v, ok := s.collections[collection][id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return slices.Clone(v), nil
}

// Find returns all records of a collection accepted by match, in id order.
func (s *Store) Find(collection string, match func(storage.Record) bool) ([]storage.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return nil, storage.ErrClosed
	}

	c := s.collections[collection]
	ids := make([]string, 0, len(c))
	for id := range c {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var records []storage.Record
	for _, id := range ids {
		rec := storage.Record{ID: id, Value: slices.Clone(c[id])}
		if match == nil || match(rec) {
			records = append(records, rec)
		}
	}
	return records, nil
}

// Update overwrites an existing record.
func (s *Store) Update(collection, id string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}

	c := s.collections[collection]
	if _, ok := c[id]; !ok {
		return storage.ErrNotFound
	}
	c[id] = slices.Clone(value)
	return nil
}

// Delete removes a record.
func (s *Store) Delete(collection, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return storage.ErrClosed
	}

	c := s.collections[collection]
	if _, ok := c[id]; !ok {
		return storage.ErrNotFound
	}
	delete(c, id)
	return nil
}

// Close marks the store closed.
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
