// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/absmach/rmqctl/message"
	"github.com/absmach/rmqctl/storage"
	"github.com/absmach/rmqctl/storage/badger"
	"github.com/absmach/rmqctl/storage/memory"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts mutating calls made to the wrapped store.
type countingStore struct {
	storage.Store
	writes int
}

func (c *countingStore) Save(collection, id string, value []byte) error {
	c.writes++
	return c.Store.Save(collection, id, value)
}

func (c *countingStore) Update(collection, id string, value []byte) error {
	c.writes++
	return c.Store.Update(collection, id, value)
}

func (c *countingStore) Delete(collection, id string) error {
	c.writes++
	return c.Store.Delete(collection, id)
}

func testMessages(n int) []message.Message {
	msgs := make([]message.Message, n)
	for i := range msgs {
		payload := []byte{'m', byte('1' + i)}
		msgs[i] = message.Message{
			ID:         message.NewID(int64(i+1), "orders", "events", "order.created", payload),
			Queue:      "orders",
			Exchange:   "events",
			RoutingKey: "order.created",
			Payload:    payload,
			Source:     message.SourceAMQP,
		}
	}
	return msgs
}

func TestStore_EmptySnapshotNotWritten(t *testing.T) {
	cs := &countingStore{Store: memory.New()}
	s := New(cs)

	require.NoError(t, s.Store(context.Background(), uuid.New(), "delete", nil))
	assert.Zero(t, cs.writes)
}

func TestStore_StoreAndQuery(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New())
	opID := uuid.New()
	msgs := testMessages(3)

	require.NoError(t, s.Store(ctx, opID, "delete", msgs))

	unprocessed, err := s.Unprocessed(ctx, opID)
	require.NoError(t, err)
	assert.Equal(t, msgs, unprocessed)

	processed, err := s.Processed(ctx, opID)
	require.NoError(t, err)
	assert.Empty(t, processed)

	rec, err := s.Get(ctx, opID)
	require.NoError(t, err)
	assert.Equal(t, opID, rec.OperationID)
	assert.Equal(t, "delete", rec.Type)
	assert.False(t, rec.CreatedAt.IsZero())
}

func TestStore_StoreOverwrites(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New())
	opID := uuid.New()
	msgs := testMessages(2)

	require.NoError(t, s.Store(ctx, opID, "delete", msgs))
	require.NoError(t, s.MarkProcessed(ctx, opID, msgs[0].ID))
	require.NoError(t, s.Store(ctx, opID, "delete", msgs))

	processed, err := s.Processed(ctx, opID)
	require.NoError(t, err)
	assert.Empty(t, processed)
}

func TestStore_MarkProcessedIdempotent(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New())
	opID := uuid.New()
	msgs := testMessages(3)
	require.NoError(t, s.Store(ctx, opID, "delete", msgs))

	require.NoError(t, s.MarkProcessed(ctx, opID, msgs[1].ID))
	require.NoError(t, s.MarkProcessed(ctx, opID, msgs[1].ID))

	rec, err := s.Get(ctx, opID)
	require.NoError(t, err)
	assert.Equal(t, []message.ID{msgs[1].ID}, rec.ProcessedIDs)

	processed, err := s.Processed(ctx, opID)
	require.NoError(t, err)
	assert.Equal(t, []message.Message{msgs[1]}, processed)

	unprocessed, err := s.Unprocessed(ctx, opID)
	require.NoError(t, err)
	assert.Equal(t, []message.Message{msgs[0], msgs[2]}, unprocessed)
}

func TestStore_MarkProcessedErrors(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New())
	msgs := testMessages(1)

	err := s.MarkProcessed(ctx, uuid.New(), msgs[0].ID)
	assert.ErrorIs(t, err, ErrOperationNotFound)

	opID := uuid.New()
	require.NoError(t, s.Store(ctx, opID, "delete", msgs))
	other := message.NewID(9, "orders", "events", "order.created", []byte("other"))
	assert.ErrorIs(t, s.MarkProcessed(ctx, opID, other), ErrUnknownMessage)
}

func TestStore_MissingRecordQueriesAreEmpty(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New())
	opID := uuid.New()

	unprocessed, err := s.Unprocessed(ctx, opID)
	require.NoError(t, err)
	assert.Empty(t, unprocessed)

	processed, err := s.Processed(ctx, opID)
	require.NoError(t, err)
	assert.Empty(t, processed)

	deleted, err := s.Complete(ctx, opID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = s.Get(ctx, opID)
	assert.ErrorIs(t, err, ErrOperationNotFound)
}

func TestStore_Complete(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New())
	opID := uuid.New()
	msgs := testMessages(2)
	require.NoError(t, s.Store(ctx, opID, "delete", msgs))

	require.NoError(t, s.MarkProcessed(ctx, opID, msgs[0].ID))
	deleted, err := s.Complete(ctx, opID)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = s.Get(ctx, opID)
	require.NoError(t, err)

	require.NoError(t, s.MarkProcessed(ctx, opID, msgs[1].ID))
	deleted, err = s.Complete(ctx, opID)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, err = s.Get(ctx, opID)
	assert.ErrorIs(t, err, ErrOperationNotFound)
}

func TestStore_ListAndDiscard(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New())
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	s.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	first, second := uuid.New(), uuid.New()
	require.NoError(t, s.Store(ctx, first, "delete", testMessages(1)))
	require.NoError(t, s.Store(ctx, second, "requeue", testMessages(2)))

	recs, err := s.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, first, recs[0].OperationID)
	assert.Equal(t, second, recs[1].OperationID)

	require.NoError(t, s.Discard(ctx, first))
	assert.ErrorIs(t, s.Discard(ctx, first), ErrOperationNotFound)

	recs, err = s.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "requeue", recs[0].Type)
}

func TestStore_CorruptRecord(t *testing.T) {
	ctx := context.Background()
	ms := memory.New()
	s := New(ms)
	opID := uuid.New()
	require.NoError(t, ms.Save(Collection, opID.String(), []byte("{not json")))

	_, err := s.Get(ctx, opID)
	assert.ErrorIs(t, err, ErrCorruptRecord)

	_, err = s.List(ctx)
	assert.ErrorIs(t, err, ErrCorruptRecord)
}

func TestStore_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cs := &countingStore{Store: memory.New()}
	s := New(cs)

	err := s.Store(ctx, uuid.New(), "delete", testMessages(1))
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Zero(t, cs.writes)
}

func TestStore_DurableAcrossInstances(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	opID := uuid.New()
	msgs := testMessages(3)

	db, err := badger.New(badger.Config{Dir: dir, Compression: storage.CompressionZstd})
	require.NoError(t, err)
	s := New(db)
	require.NoError(t, s.Store(ctx, opID, "delete", msgs))
	require.NoError(t, s.MarkProcessed(ctx, opID, msgs[0].ID))
	require.NoError(t, db.Close())

	db, err = badger.New(badger.Config{Dir: dir})
	require.NoError(t, err)
	defer db.Close()
	fresh := New(db)

	rec, err := fresh.Get(ctx, opID)
	require.NoError(t, err)
	assert.Equal(t, msgs, rec.Messages)

	processed, err := fresh.Processed(ctx, opID)
	require.NoError(t, err)
	assert.Equal(t, []message.Message{msgs[0]}, processed)

	unprocessed, err := fresh.Unprocessed(ctx, opID)
	require.NoError(t, err)
	assert.Equal(t, msgs[1:], unprocessed)
}
