// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package badger

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/absmach/rmqctl/storage"
	"github.com/dgraph-io/badger/v4"
)

var _ storage.Store = (*Store)(nil)

// Store is a BadgerDB-backed keyed-record store.
//
// Key format: {collection}/{id}
type Store struct {
	db          *badger.DB
	compression storage.Compression

	gcStopCh chan struct{}
	gcDone   chan struct{}
	closed   bool
	mu       sync.Mutex
}

// Config holds BadgerDB configuration.
type Config struct {
	Dir         string // Directory for BadgerDB data
	Compression storage.Compression
	GCInterval  time.Duration
}

// New opens (or creates) a BadgerDB-backed store.
func New(cfg Config) (*Store, error) {
	if cfg.Dir == "" {
		return nil, errors.New("badger: empty data directory")
	}

	opts := badger.DefaultOptions(cfg.Dir)
	opts.Logger = nil // Disable BadgerDB's internal logging
	opts.EncryptionKey = nil
	opts.EncryptionKeyRotationDuration = 0
	// Records must survive the process being killed right after a write.
	opts.SyncWrites = true
	opts.NumVersionsToKeep = 1
	opts.NumCompactors = 2

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badger: open %s: %w", cfg.Dir, err)
	}

	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}

	s := &Store{
		db:          db,
		compression: cfg.Compression,
		gcStopCh:    make(chan struct{}),
		gcDone:      make(chan struct{}),
	}

	go s.runGC(interval)

	return s, nil
}

// Save creates or overwrites a record.
func (s *Store) Save(collection, id string, value []byte) error {
	key, err := storage.Key(collection, id)
	if err != nil {
		return err
	}
	data := storage.Encode(value, s.compression)

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// Get retrieves a record value.
func (s *Store) Get(collection, id string) ([]byte, error) {
	key, err := storage.Key(collection, id)
	if err != nil {
		return nil, err
	}

	var value []byte
	err = s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}

		return item.Value(func(val []byte) error {
			value, err = storage.Decode(val)
			return err
		})
	})
	if err != nil {
		return nil, err
	}

	return value, nil
}

// Find returns all records of a collection accepted by match.
func (s *Store) Find(collection string, match func(storage.Record) bool) ([]storage.Record, error) {
	prefix := storage.Prefix(collection)
	var records []storage.Record

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			id := strings.TrimPrefix(string(item.Key()), prefix)

			err := item.Value(func(val []byte) error {
				value, err := storage.Decode(val)
				if err != nil {
					return err
				}
				rec := storage.Record{ID: id, Value: value}
				if match == nil || match(rec) {
					records = append(records, rec)
				}
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to read record %s: %w", id, err)
			}
		}

		return nil
	})

	return records, err
}

// Update overwrites an existing record.
func (s *Store) Update(collection, id string, value []byte) error {
	key, err := storage.Key(collection, id)
	if err != nil {
		return err
	}
	data := storage.Encode(value, s.compression)

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return txn.Set([]byte(key), data)
	})
}

// Delete removes a record.
func (s *Store) Delete(collection, id string) error {
	key, err := storage.Key(collection, id)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return txn.Delete([]byte(key))
	})
}

// Close gracefully closes the BadgerDB database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.gcStopCh)
	<-s.gcDone

	return s.db.Close()
}

// runGC runs BadgerDB's value log garbage collection periodically.
func (s *Store) runGC(interval time.Duration) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Returns an error when there was nothing to collect.
			_ = s.db.RunValueLogGC(0.5)
		case <-s.gcStopCh:
			// Skip a final GC: collecting during close can corrupt the value log.
			return
		}
	}
}
