// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"testing"

	"github.com/absmach/rmqctl/broker"
	"github.com/absmach/rmqctl/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFindMessage(t *testing.T) {
	f := newFixture(t, "orders")
	f.enqueue("orders", "a", "b")
	ctx := context.Background()

	m, err := f.svc.FindMessage(ctx, "orders", f.idOf(t, "orders", "b"))
	require.NoError(t, err)
	assert.Equal(t, "b", string(m.Payload))

	// Only the delivery tag differs.
	m, err = f.svc.FindMessage(ctx, "orders", message.NewID(42, "orders", "", "orders", []byte("a")))
	require.NoError(t, err)
	assert.Equal(t, "a", string(m.Payload))

	_, err = f.svc.FindMessage(ctx, "orders", message.NewID(1, "orders", "", "orders", []byte("z")))
	assert.ErrorIs(t, err, ErrMessageNotFound)
	assert.Equal(t, 2, f.broker.Len("orders"))
}

func TestSafeDelete(t *testing.T) {
	f := newFixture(t, "orders")
	f.enqueue("orders", "a", "b", "c")

	summary, err := f.svc.SafeDelete(context.Background(), "orders", f.idOf(t, "orders", "b"))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Successful)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, []string{"a", "c"}, f.broker.Payloads("orders"))
	assert.Empty(t, f.retained(t))
}

func TestSafeDelete_MatchesAcrossRefetch(t *testing.T) {
	f := newFixture(t, "orders")
	f.enqueue("orders", "a", "b")

	stale := message.NewID(7, "orders", "", "orders", []byte("a"))
	_, err := f.svc.SafeDelete(context.Background(), "orders", stale)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, f.broker.Payloads("orders"))
}

func TestSafeDelete_DuplicatePayloads(t *testing.T) {
	f := newFixture(t, "orders")
	f.enqueue("orders", "x", "x", "y")

	msgs, err := f.svc.Peek(context.Background(), "orders", 0)
	require.NoError(t, err)

	_, err = f.svc.SafeDelete(context.Background(), "orders", msgs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"x", "y"}, f.broker.Payloads("orders"))
}

func TestSafeDelete_NotFound(t *testing.T) {
	f := newFixture(t, "orders")
	f.enqueue("orders", "a")

	_, err := f.svc.SafeDelete(context.Background(), "orders", message.NewID(1, "orders", "", "orders", []byte("z")))
	assert.ErrorIs(t, err, ErrMessageNotFound)
	assert.Equal(t, []string{"a"}, f.broker.Payloads("orders"))
	assert.Empty(t, f.broker.Published)
	assert.Empty(t, f.retained(t))
}

func TestSafeDelete_QueueRequired(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.SafeDelete(context.Background(), "", message.NewID(1, "", "", "", nil))
	assert.ErrorIs(t, err, broker.ErrQueueRequired)
}

func TestSafeDelete_RestoreFailureRetainsRecord(t *testing.T) {
	f := newFixture(t, "orders")
	f.enqueue("orders", "a", "b", "c")
	f.broker.PublishHook = func(_, _ string, payload []byte) error {
		if string(payload) == "c" {
			return errors.New("channel closed")
		}
		return nil
	}

	summary, err := f.svc.SafeDelete(context.Background(), "orders", f.idOf(t, "orders", "b"))
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	assert.True(t, summary.Retained())
	assert.Equal(t, []string{"a"}, f.broker.Payloads("orders"))

	recs := f.retained(t)
	require.Len(t, recs, 1)
	assert.Equal(t, summary.ID, recs[0].OperationID)
	assert.Equal(t, OpDeleteMessage, recs[0].Type)
	assert.Equal(t, []string{"c"}, payloads(recs[0].Unprocessed()))

	f.broker.PublishHook = nil
	rec, err := f.svc.Recover(context.Background(), summary.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, rec.Successful)
	assert.Equal(t, []string{"a", "c"}, f.broker.Payloads("orders"))
	assert.Empty(t, f.retained(t))
}

func TestSafeDeleteMany(t *testing.T) {
	f := newFixture(t, "orders")
	f.enqueue("orders", "a", "b", "c", "d")

	ids := []message.ID{
		f.idOf(t, "orders", "a"),
		f.idOf(t, "orders", "c"),
		message.NewID(9, "orders", "", "orders", []byte("gone")),
	}
	summary, err := f.svc.SafeDeleteMany(context.Background(), "orders", ids)
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Successful)
	assert.Len(t, summary.Warnings, 1)
	assert.Equal(t, []string{"b", "d"}, f.broker.Payloads("orders"))
}

func TestSafeDeleteMany_NoneFound(t *testing.T) {
	f := newFixture(t, "orders")
	f.enqueue("orders", "a")

	_, err := f.svc.SafeDeleteMany(context.Background(), "orders", nil)
	assert.ErrorIs(t, err, ErrMessageNotFound)

	_, err = f.svc.SafeDeleteMany(context.Background(), "orders", []message.ID{message.NewID(1, "orders", "", "orders", []byte("z"))})
	assert.ErrorIs(t, err, ErrMessageNotFound)
	assert.Equal(t, []string{"a"}, f.broker.Payloads("orders"))
}

func TestSafeRequeue(t *testing.T) {
	f := newFixture(t, "orders", "retry")
	f.enqueue("orders", "a", "b", "c")

	summary, err := f.svc.SafeRequeue(context.Background(), f.messageOf(t, "orders", "b"), "retry")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Successful)
	assert.Empty(t, summary.Warnings)
	assert.Equal(t, []string{"b"}, f.broker.Payloads("retry"))
	assert.Equal(t, []string{"a", "c"}, f.broker.Payloads("orders"))
	assert.Empty(t, f.retained(t))
}

func TestSafeRequeue_SameQueue(t *testing.T) {
	f := newFixture(t, "orders")
	f.enqueue("orders", "a")

	_, err := f.svc.SafeRequeue(context.Background(), f.messageOf(t, "orders", "a"), "orders")
	assert.ErrorIs(t, err, ErrSameQueue)
}

func TestSafeRequeue_PublishFailure(t *testing.T) {
	f := newFixture(t, "orders")
	f.enqueue("orders", "a")

	summary, err := f.svc.SafeRequeue(context.Background(), f.messageOf(t, "orders", "a"), "missing")
	require.NoError(t, err)

	assert.Equal(t, 0, summary.Successful)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, []string{"a"}, f.broker.Payloads("orders"))

	recs := f.retained(t)
	require.Len(t, recs, 1)
	assert.Equal(t, OpRequeueMessage, recs[0].Type)
}

func TestSafeRequeue_RemovalFailureIsWarning(t *testing.T) {
	f := newFixture(t, "orders", "retry")
	f.enqueue("orders", "a")
	msg := f.messageOf(t, "orders", "a")
	f.broker.FetchErr = errors.New("connection reset")

	summary, err := f.svc.SafeRequeue(context.Background(), msg, "retry")
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Successful)
	require.Len(t, summary.Warnings, 1)
	assert.Contains(t, summary.Warnings[0], "connection reset")
	assert.Equal(t, []string{"a"}, f.broker.Payloads("retry"))
	assert.Equal(t, []string{"a"}, f.broker.Payloads("orders"))
}

func TestSafeReprocess(t *testing.T) {
	f := newFixture(t, "orders")
	f.broker.Bind("events", "order.created", "orders")
	f.broker.Enqueue("orders", "events", "order.created", []byte("a"))
	f.broker.Enqueue("orders", "events", "order.created", []byte("b"))

	summary, err := f.svc.SafeReprocess(context.Background(), f.messageOf(t, "orders", "a"))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Successful)
	assert.Equal(t, []string{"b", "a"}, f.broker.Payloads("orders"))
	assert.Empty(t, f.retained(t))
}

func TestSafeReprocess_DeleteFailureSkipsRepublish(t *testing.T) {
	f := newFixture(t, "orders")
	f.broker.Bind("events", "order.created", "orders")
	f.broker.Enqueue("orders", "events", "order.created", []byte("a"))
	f.broker.Enqueue("orders", "gone", "x", []byte("b"))

	summary, err := f.svc.SafeReprocess(context.Background(), f.messageOf(t, "orders", "a"))
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Empty(t, f.broker.Payloads("orders"))

	recs := f.retained(t)
	require.Len(t, recs, 1)
	assert.Equal(t, OpDeleteMessage, recs[0].Type)
	assert.Equal(t, []string{"b"}, payloads(recs[0].Unprocessed()))
}

func TestSearch(t *testing.T) {
	f := newFixture(t, "orders", "orders.dlq", "audit")
	f.enqueue("orders", `{"id":1,"status":"failed"}`, `{"id":2,"status":"ok"}`)
	f.enqueue("orders.dlq", `{"id":3,"status":"failed"}`)
	f.enqueue("audit", `{"id":4,"status":"failed"}`)
	ctx := context.Background()

	cases := []struct {
		desc  string
		query SearchQuery
		want  []string
	}{
		{
			desc:  "single queue",
			query: SearchQuery{Pattern: `"status":"failed"`, Queue: "orders"},
			want:  []string{`{"id":1,"status":"failed"}`},
		},
		{
			desc:  "queue pattern",
			query: SearchQuery{Pattern: "failed", QueuePattern: "orders*"},
			want:  []string{`{"id":1,"status":"failed"}`, `{"id":3,"status":"failed"}`},
		},
		{
			desc:  "all queues with limit",
			query: SearchQuery{Pattern: "fail*", Limit: 2},
			want:  []string{`{"id":4,"status":"failed"}`, `{"id":1,"status":"failed"}`},
		},
		{
			desc:  "single character wildcard",
			query: SearchQuery{Pattern: `"id":?,"status":"ok"`, Queue: "orders"},
			want:  []string{`{"id":2,"status":"ok"}`},
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			got, err := f.svc.Search(ctx, tc.query)
			require.NoError(t, err)
			assert.Equal(t, tc.want, payloads(got))
		})
	}

	assert.Equal(t, 2, f.broker.Len("orders"))
}

func TestSearch_ByID(t *testing.T) {
	f := newFixture(t, "orders")
	f.enqueue("orders", "a", "b")
	id := f.idOf(t, "orders", "b")

	got, err := f.svc.Search(context.Background(), SearchQuery{Pattern: id.String()[32:], Queue: "orders"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0].ID)
}

func TestPublish(t *testing.T) {
	f := newFixture(t, "orders")

	err := f.svc.Publish(context.Background(), "", "orders", []byte("a"), broker.WithHeaders(map[string]string{"x-source": "cli"}))
	require.NoError(t, err)
	require.Len(t, f.broker.Published, 1)
	assert.Equal(t, "cli", f.broker.Published[0].Headers["x-source"])

	err = f.svc.Publish(context.Background(), "", "", []byte("a"))
	assert.ErrorIs(t, err, broker.ErrQueueRequired)

	err = f.svc.Publish(context.Background(), "", "missing", []byte("a"))
	assert.ErrorIs(t, err, broker.ErrUnroutable)
}
