// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/absmach/rmqctl/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore_NewEmptyPath(t *testing.T) {
	_, err := New(Config{Path: "  "})
	assert.Error(t, err)
}

func TestStore_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "rmqctl.db")

	s, err := New(Config{Path: path})
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestStore_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rmqctl.db")

	s, err := New(Config{Path: path, Compression: storage.CompressionZstd})
	require.NoError(t, err)
	require.NoError(t, s.Save("ops", "op-1", []byte("snapshot")))
	require.NoError(t, s.Close())

	reopened, err := New(Config{Path: path})
	require.NoError(t, err)
	defer reopened.Close()

	got, err := reopened.Get("ops", "op-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("snapshot"), got)
}
