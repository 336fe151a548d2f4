// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/absmach/rmqctl/broker"
	"github.com/absmach/rmqctl/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue(t *testing.T) {
	f := newFixture(t, "orders", "orders.dlq")
	f.enqueue("orders", "a", "b")
	ctx := context.Background()

	q, err := f.svc.Queue(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(2), q.MessagesReady)

	_, err = f.svc.Queue(ctx, "order?")
	assert.ErrorIs(t, err, ErrQueueNotFound)

	_, err = f.svc.Queue(ctx, "")
	assert.ErrorIs(t, err, broker.ErrQueueRequired)

	qs, err := f.svc.ListQueues(ctx, "orders*")
	require.NoError(t, err)
	assert.Len(t, qs, 2)
}

func TestPeekAndPurge(t *testing.T) {
	f := newFixture(t, "orders")
	f.enqueue("orders", "a", "b", "c")
	ctx := context.Background()

	msgs, err := f.svc.Peek(ctx, "orders", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, payloads(msgs))
	assert.Equal(t, 3, f.broker.Len("orders"))

	n, err := f.svc.Purge(ctx, "orders")
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 0, f.broker.Len("orders"))

	_, err = f.svc.Purge(ctx, "")
	assert.ErrorIs(t, err, broker.ErrQueueRequired)
}

func TestExportImport(t *testing.T) {
	f := newFixture(t, "orders", "orders.dlq", "audit", "restored")
	f.enqueue("orders", "a", "b", "c")
	f.enqueue("orders.dlq", "d")
	f.enqueue("audit", "e")
	ctx := context.Background()

	msgs, err := f.svc.Export(ctx, "orders*", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "d"}, payloads(msgs))
	assert.Equal(t, 3, f.broker.Len("orders"))

	path := filepath.Join(t.TempDir(), "export", "orders.json")
	require.NoError(t, WriteMessages(path, msgs))
	read, err := ReadMessages(path)
	require.NoError(t, err)
	assert.Equal(t, msgs, read)

	f.broker.PublishHook = func(_, _ string, payload []byte) error {
		if string(payload) == "b" {
			return errors.New("nacked")
		}
		return nil
	}
	res, err := f.svc.Import(ctx, "restored", read)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Imported)
	assert.Equal(t, 1, res.Failed)
	assert.Len(t, res.Errors, 1)
	assert.Equal(t, []string{"a", "d"}, f.broker.Payloads("restored"))
}

func TestReadMessages_EmptyAndMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.json")
	require.NoError(t, WriteMessages(path, nil))

	msgs, err := ReadMessages(path)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	_, err = ReadMessages(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestConsume(t *testing.T) {
	f := newFixture(t, "orders")
	f.enqueue("orders", "a", "b", "c")

	var got []string
	err := f.svc.Consume(context.Background(), "orders", broker.ConsumeOptions{AutoAck: true, Limit: 2}, func(m message.Message) error {
		got = append(got, string(m.Payload))
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, got)
	assert.Equal(t, []string{"c"}, f.broker.Payloads("orders"))
}

func TestConsume_NotSupported(t *testing.T) {
	f := newFixture(t, "orders")
	svc := New(struct{ broker.Client }{f.broker}, nil, nil, t.TempDir(), nil)

	err := svc.Consume(context.Background(), "orders", broker.ConsumeOptions{}, func(message.Message) error { return nil })
	assert.ErrorIs(t, err, broker.ErrNotSupported)
}

func TestRequeueQueue(t *testing.T) {
	f := newFixture(t, "orders", "retry")
	f.enqueue("orders", "a", "b", "c")
	ctx := context.Background()

	summary, err := f.svc.RequeueQueue(ctx, "orders", "retry", 2)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Successful)
	assert.Equal(t, []string{"a", "b"}, f.broker.Payloads("retry"))
	assert.Equal(t, []string{"c"}, f.broker.Payloads("orders"))

	summary, err = f.svc.RequeueQueue(ctx, "orders", "retry", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 0, f.broker.Len("orders"))

	_, err = f.svc.RequeueQueue(ctx, "orders", "orders", 0)
	assert.ErrorIs(t, err, ErrSameQueue)
	assert.Empty(t, f.retained(t))
}

func TestRequeueQueue_PartialFailure(t *testing.T) {
	f := newFixture(t, "orders", "retry")
	f.enqueue("orders", "a", "b")
	f.broker.PublishHook = func(_, _ string, payload []byte) error {
		if string(payload) == "a" {
			return errors.New("confirm timeout")
		}
		return nil
	}

	summary, err := f.svc.RequeueQueue(context.Background(), "orders", "retry", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"a"}, payloads(summary.Unprocessed))

	recs := f.retained(t)
	require.Len(t, recs, 1)
	assert.Equal(t, OpRequeueMessages, recs[0].Type)
}

func TestReprocessQueue(t *testing.T) {
	f := newFixture(t, "dead", "orders")
	f.broker.Bind("events", "order.created", "orders")
	f.broker.Enqueue("dead", "events", "order.created", []byte("a"))
	f.broker.Enqueue("dead", "events", "order.created", []byte("b"))

	summary, err := f.svc.ReprocessQueue(context.Background(), "dead", 0)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Successful)
	assert.Equal(t, []string{"a", "b"}, f.broker.Payloads("orders"))
	assert.Equal(t, 0, f.broker.Len("dead"))
}

func TestWriteMessages_ReplacesInPlace(t *testing.T) {
	f := newFixture(t, "orders")
	f.enqueue("orders", "a", "b")
	msgs, err := f.svc.Peek(context.Background(), "orders", 0)
	require.NoError(t, err)

	dir := t.TempDir()
	path := filepath.Join(dir, "orders.json")
	require.NoError(t, WriteMessages(path, msgs[:1]))
	require.NoError(t, WriteMessages(path, msgs))

	read, err := ReadMessages(path)
	require.NoError(t, err)
	assert.Equal(t, msgs, read)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "orders.json", entries[0].Name())

	blocked := filepath.Join(dir, "blocked")
	require.NoError(t, os.MkdirAll(filepath.Join(blocked, "child"), 0o700))
	assert.Error(t, WriteMessages(blocked, msgs))
	_, err = os.Stat(blocked + ".tmp")
	assert.True(t, os.IsNotExist(err))
}
