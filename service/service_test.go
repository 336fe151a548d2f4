// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package service

import (
	"context"
	"errors"
	"testing"

	"github.com/absmach/rmqctl/backup"
	"github.com/absmach/rmqctl/message"
	"github.com/absmach/rmqctl/safeop"
	"github.com/absmach/rmqctl/storage"
	"github.com/absmach/rmqctl/storage/memory"
	"github.com/absmach/rmqctl/testutil"
	"github.com/stretchr/testify/require"
)

var errDiskFull = errors.New("disk full")

// failingStore rejects every new record.
type failingStore struct {
	storage.Store
}

func (failingStore) Save(string, string, []byte) error {
	return errDiskFull
}

type fixture struct {
	svc     *Service
	broker  *testutil.Broker
	backups *backup.Store
}

func newFixture(t *testing.T, queues ...string) fixture {
	t.Helper()
	return newFixtureWithStore(t, memory.New(), queues...)
}

func newFixtureWithStore(t *testing.T, store storage.Store, queues ...string) fixture {
	t.Helper()
	t.Cleanup(func() { _ = store.Close() })

	b := testutil.NewBroker(queues...)
	backups := backup.New(store)
	svc := New(b, safeop.New(backups, nil, nil), backups, t.TempDir(), nil)
	return fixture{svc: svc, broker: b, backups: backups}
}

// enqueue adds payloads to queue as if published through the default exchange.
func (f fixture) enqueue(queue string, payloads ...string) {
	for _, p := range payloads {
		f.broker.Enqueue(queue, "", queue, []byte(p))
	}
}

// idOf returns the current identity of the first message of queue carrying payload.
func (f fixture) idOf(t *testing.T, queue, payload string) message.ID {
	t.Helper()
	return f.messageOf(t, queue, payload).ID
}

func (f fixture) messageOf(t *testing.T, queue, payload string) message.Message {
	t.Helper()
	msgs, err := f.svc.Peek(context.Background(), queue, 0)
	require.NoError(t, err)
	for _, m := range msgs {
		if string(m.Payload) == payload {
			return m
		}
	}
	t.Fatalf("no message %q in %s", payload, queue)
	return message.Message{}
}

func (f fixture) retained(t *testing.T) []backup.Record {
	t.Helper()
	recs, err := f.backups.List(context.Background())
	require.NoError(t, err)
	return recs
}

func payloads(msgs []message.Message) []string {
	out := make([]string, len(msgs))
	for i, m := range msgs {
		out[i] = string(m.Payload)
	}
	return out
}
