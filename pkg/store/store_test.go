package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// failingStore fails every operation with the same error.
type failingStore struct {
	err error
}

func (s *failingStore) Exists(context.Context, string) (bool, error)  { return false, s.err }
func (s *failingStore) Save(context.Context, string, string) error    { return s.err }
func (s *failingStore) Extract(context.Context, string, string) error { return s.err }
func (s *failingStore) Delete(context.Context, string) error          { return s.err }

func TestClient_WrapsFailuresAsOpError(t *testing.T) {
	cause := errors.New("backend exploded")
	client := NewClient(&failingStore{err: cause})
	ctx := context.Background()

	tests := []struct {
		op   string
		call func() error
	}{
		{op: "exists", call: func() error { _, err := client.Exists(ctx, "s"); return err }},
		{op: "save", call: func() error { return client.Save(ctx, "s", "/tmp/a") }},
		{op: "extract", call: func() error { return client.Extract(ctx, "s", "/tmp/a") }},
		{op: "delete", call: func() error { return client.Delete(ctx, "s") }},
	}

	for _, tt := range tests {
		t.Run(tt.op, func(t *testing.T) {
			err := tt.call()
			require.Error(t, err)

			var opErr *OpError
			require.ErrorAs(t, err, &opErr)
			assert.Equal(t, tt.op, opErr.Op)
			assert.Equal(t, "s", opErr.Key)
			assert.ErrorIs(t, err, cause)
		})
	}
}

func TestClient_PassesThroughSuccess(t *testing.T) {
	dir, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	client := NewClient(dir)

	exists, err := client.Exists(context.Background(), "session")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDirStore_RoundTrip(t *testing.T) {
	s, err := NewDirStore(filepath.Join(t.TempDir(), "snapshots"))
	require.NoError(t, err)
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

func TestDirStore_DeleteMissingIsNoOp(t *testing.T) {
	s, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	assert.NoError(t, s.Delete(context.Background(), "never-saved"))
}

func TestDirStore_SaveMissingArchiveFails(t *testing.T) {
	s, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, s.Save(context.Background(), "session", filepath.Join(t.TempDir(), "nope")))
}

func TestDirStore_ExtractMissingSnapshotFails(t *testing.T) {
	s, err := NewDirStore(t.TempDir())
	require.NoError(t, err)
	assert.Error(t, s.Extract(context.Background(), "session", filepath.Join(t.TempDir(), "out")))
}
