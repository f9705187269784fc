package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryBadgerStore(t *testing.T) *BadgerStore {
	t.Helper()
	db, err := badger.Open(badger.DefaultOptions("").WithInMemory(true).WithLogger(nil))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewBadgerStore(db)
}

func TestBadgerStore_RoundTrip(t *testing.T) {
	s := newMemoryBadgerStore(t)
	ctx := context.Background()

	archivePath := filepath.Join(t.TempDir(), "out.tar.gz")
	require.NoError(t, os.WriteFile(archivePath, []byte("archive bytes"), 0600))

	exists, err := s.Exists(ctx, "session-abc")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Save(ctx, "session-abc", archivePath))

	exists, err = s.Exists(ctx, "session-abc")
	require.NoError(t, err)
	assert.True(t, exists)

	extractPath := filepath.Join(t.TempDir(), "in.tar.gz")
	require.NoError(t, s.Extract(ctx, "session-abc", extractPath))

	data, err := os.ReadFile(extractPath)
	require.NoError(t, err)
	assert.Equal(t, "archive bytes", string(data))

	require.NoError(t, s.Delete(ctx, "session-abc"))
	exists, err = s.Exists(ctx, "session-abc")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestBadgerStore_SessionsAreIsolated(t *testing.T) {
	s := newMemoryBadgerStore(t)
	ctx := context.Background()

	archivePath := filepath.Join(t.TempDir(), "a.tar.gz")
	require.NoError(t, os.WriteFile(archivePath, []byte("a"), 0600))
	require.NoError(t, s.Save(ctx, "session-a", archivePath))

	exists, err := s.Exists(ctx, "session-b")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, s.Delete(ctx, "session-b"))
	exists, err = s.Exists(ctx, "session-a")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestBadgerStore_ExtractMissingFails(t *testing.T) {
	s := newMemoryBadgerStore(t)
	err := s.Extract(context.Background(), "never-saved", filepath.Join(t.TempDir(), "out"))
	assert.Error(t, err)
}

func TestOpenBadgerStore(t *testing.T) {
	s, err := OpenBadgerStore(filepath.Join(t.TempDir(), "db"))
	require.NoError(t, err)
	defer s.Close()

	exists, err := s.Exists(context.Background(), "session")
	require.NoError(t, err)
	assert.False(t, exists)
}
