// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/absmach/rmqctl/storage"
	_ "modernc.org/sqlite"
)

var _ storage.Store = (*Store)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS records (
  collection TEXT NOT NULL,
  id TEXT NOT NULL,
  value BLOB NOT NULL,
  updated_at INTEGER NOT NULL DEFAULT (unixepoch()),
  PRIMARY KEY (collection, id)
);
`

// Store is a SQLite-backed keyed-record store.
type Store struct {
	db          *sql.DB
	compression storage.Compression
}

// Config holds SQLite store configuration.
type Config struct {
	Path        string
	Compression storage.Compression
}

// New opens (or creates) the database at cfg.Path.
func New(cfg Config) (*Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite: empty db path")
	}

	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, compression: cfg.Compression}
	if err := s.init(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func (s *Store) init() error {
	ctx := context.Background()

	var journalMode string
	if err := s.db.QueryRowContext(ctx, "PRAGMA journal_mode=WAL;").Scan(&journalMode); err != nil {
		return fmt.Errorf("sqlite: set journal_mode=wal: %w", err)
	}
	if strings.ToLower(journalMode) != "wal" {
		return fmt.Errorf("sqlite: journal_mode=%q, want wal", journalMode)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA synchronous=FULL;"); err != nil {
		return fmt.Errorf("sqlite: set synchronous=full: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA busy_timeout=5000;"); err != nil {
		return fmt.Errorf("sqlite: set busy_timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("sqlite: create schema: %w", err)
	}
	return nil
}

// Save creates or overwrites a record.
func (s *Store) Save(collection, id string, value []byte) error {
	if _, err := storage.Key(collection, id); err != nil {
		return err
	}

	_, err := s.db.Exec(`
INSERT INTO records (collection, id, value) VALUES (?, ?, ?)
ON CONFLICT (collection, id) DO UPDATE SET value = excluded.value, updated_at = unixepoch();`,
		collection, id, storage.Encode(value, s.compression))
	return err
}

// Get retrieves a record value.
func (s *Store) Get(collection, id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow(`SELECT value FROM records WHERE collection = ? AND id = ?;`, collection, id).Scan(&data)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return storage.Decode(data)
}

// Find returns all records of a collection accepted by match, in id order.
func (s *Store) Find(collection string, match func(storage.Record) bool) ([]storage.Record, error) {
	rows, err := s.db.Query(`SELECT id, value FROM records WHERE collection = ? ORDER BY id;`, collection)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []storage.Record
	for rows.Next() {
		var (
			id   string
			data []byte
		)
		if err := rows.Scan(&id, &data); err != nil {
			return nil, err
		}
		value, err := storage.Decode(data)
		if err != nil {
			return nil, fmt.Errorf("failed to read record %s: %w", id, err)
		}
		rec := storage.Record{ID: id, Value: value}
		if match == nil || match(rec) {
			records = append(records, rec)
		}
	}
	return records, rows.Err()
}

// Update overwrites an existing record.
func (s *Store) Update(collection, id string, value []byte) error {
	res, err := s.db.Exec(`UPDATE records SET value = ?, updated_at = unixepoch() WHERE collection = ? AND id = ?;`,
		storage.Encode(value, s.compression), collection, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Delete removes a record.
func (s *Store) Delete(collection, id string) error {
	res, err := s.db.Exec(`DELETE FROM records WHERE collection = ? AND id = ?;`, collection, id)
	if err != nil {
		return err
	}
	return requireAffected(res)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}
