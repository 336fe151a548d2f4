// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package backup keeps a durable record of the messages taken from the broker by a
// coordinated operation and of which of them were confirmed processed.
package backup

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/absmach/rmqctl/message"
	"github.com/absmach/rmqctl/storage"
	"github.com/google/uuid"
)

// Collection is the storage collection holding operation records.
const Collection = "message_backup_operations"

// Record is the durable state of one operation.
type Record struct {
	OperationID  uuid.UUID         `json:"operation_id"`
	Type         string            `json:"type"`
	Messages     []message.Message `json:"messages"`
	ProcessedIDs []message.ID      `json:"processed_ids"`
	CreatedAt    time.Time         `json:"created_at"`
}

// IsProcessed reports whether id is in the processed set.
func (r Record) IsProcessed(id message.ID) bool {
	return slices.Contains(r.ProcessedIDs, id)
}

// Processed returns the snapshot messages in the processed set, in snapshot order.
func (r Record) Processed() []message.Message {
	var out []message.Message
	for _, m := range r.Messages {
		if r.IsProcessed(m.ID) {
			out = append(out, m)
		}
	}
	return out
}

// Unprocessed returns the snapshot messages not yet processed, in snapshot order.
func (r Record) Unprocessed() []message.Message {
	var out []message.Message
	for _, m := range r.Messages {
		if !r.IsProcessed(m.ID) {
			out = append(out, m)
		}
	}
	return out
}

// Complete reports whether every snapshot message was processed.
func (r Record) Complete() bool {
	for _, m := range r.Messages {
		if !r.IsProcessed(m.ID) {
			return false
		}
	}
	return true
}

// Store persists operation records in a storage.Store.
type Store struct {
	store storage.Store
	now   func() time.Time

	// Serializes read-modify-write of records within the process.
	mu sync.Mutex
}

// New creates a backup store over s.
func New(s storage.Store) *Store {
	return &Store{
		store: s,
		now:   time.Now,
	}
}

// Store records the snapshot of operation opID with an empty processed set,
// overwriting any previous record. An empty snapshot is not written.
func (s *Store) Store(ctx context.Context, opID uuid.UUID, opType string, msgs []message.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	rec := Record{
		OperationID:  opID,
		Type:         opType,
		Messages:     slices.Clone(msgs),
		ProcessedIDs: []message.ID{},
		CreatedAt:    s.now().UTC(),
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode operation %s: %w", opID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Save(Collection, opID.String(), data); err != nil {
		return fmt.Errorf("failed to save operation %s: %w", opID, err)
	}
	return nil
}

// MarkProcessed adds id to the processed set of opID. Marking an id twice has
// no further effect.
func (s *Store) MarkProcessed(ctx context.Context, opID uuid.UUID, id message.ID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(opID)
	if err != nil {
		return err
	}
	if !slices.ContainsFunc(rec.Messages, func(m message.Message) bool { return m.ID == id }) {
		return fmt.Errorf("%w: %s", ErrUnknownMessage, id)
	}
	if rec.IsProcessed(id) {
		return nil
	}
	rec.ProcessedIDs = append(rec.ProcessedIDs, id)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode operation %s: %w", opID, err)
	}
	if err := s.store.Update(Collection, opID.String(), data); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrOperationNotFound
		}
		return fmt.Errorf("failed to update operation %s: %w", opID, err)
	}
	return nil
}

// Unprocessed returns the snapshot messages of opID not yet processed. A
// missing record yields an empty list.
func (s *Store) Unprocessed(ctx context.Context, opID uuid.UUID) ([]message.Message, error) {
	rec, err := s.Get(ctx, opID)
	if errors.Is(err, ErrOperationNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.Unprocessed(), nil
}

// Processed returns the snapshot messages of opID already processed. A missing
// record yields an empty list.
func (s *Store) Processed(ctx context.Context, opID uuid.UUID) ([]message.Message, error) {
	rec, err := s.Get(ctx, opID)
	if errors.Is(err, ErrOperationNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec.Processed(), nil
}

// Complete deletes the record of opID if every message was processed and
// reports whether it did. Partially processed records are retained.
func (s *Store) Complete(ctx context.Context, opID uuid.UUID) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.load(opID)
	if errors.Is(err, ErrOperationNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !rec.Complete() {
		return false, nil
	}
	if err := s.store.Delete(Collection, opID.String()); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return false, fmt.Errorf("failed to delete operation %s: %w", opID, err)
	}
	return true, nil
}

// Get returns the record of opID or ErrOperationNotFound.
func (s *Store) Get(ctx context.Context, opID uuid.UUID) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.load(opID)
}

// List returns every retained record, oldest first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	raw, err := s.store.Find(Collection, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}

	recs := make([]Record, 0, len(raw))
	for _, r := range raw {
		var rec Record
		if err := json.Unmarshal(r.Value, &rec); err != nil {
			return nil, fmt.Errorf("%w %s: %v", ErrCorruptRecord, r.ID, err)
		}
		recs = append(recs, rec)
	}
	slices.SortStableFunc(recs, func(a, b Record) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return recs, nil
}

// Discard deletes the record of opID regardless of its progress.
func (s *Store) Discard(ctx context.Context, opID uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(Collection, opID.String()); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrOperationNotFound
		}
		return fmt.Errorf("failed to delete operation %s: %w", opID, err)
	}
	return nil
}

func (s *Store) load(opID uuid.UUID) (Record, error) {
	data, err := s.store.Get(Collection, opID.String())
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Record{}, ErrOperationNotFound
		}
		return Record{}, fmt.Errorf("failed to load operation %s: %w", opID, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("%w %s: %v", ErrCorruptRecord, opID, err)
	}
	return rec, nil
}
