package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/entrhq/sessionsync/pkg/config"
)

func testOptions(t *testing.T, sessionID string) config.Options {
	t.Helper()
	opts := config.DefaultOptions()
	opts.SessionID = sessionID
	opts.BaseDir = t.TempDir()
	return opts
}

func TestNew_Validation(t *testing.T) {
	t.Run("valid id and interval", func(t *testing.T) {
		opts := testOptions(t, "abc-1")
		opts.BackupInterval = 60 * time.Second

		s, err := New(opts, newFakeStore())
		require.NoError(t, err)
		defer s.Close()

		assert.Equal(t, "session-abc-1", s.SessionName())
		assert.Equal(t, filepath.Join(opts.BaseDir, "session-abc-1"), s.ProfileDir())
	})

	t.Run("invalid session id", func(t *testing.T) {
		opts := testOptions(t, "bad id!")

		_, err := New(opts, newFakeStore())
		var vErr *config.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "session_id", vErr.Field)
	})

	t.Run("interval below floor", func(t *testing.T) {
		opts := testOptions(t, "abc")
		opts.BackupInterval = 30 * time.Second

		_, err := New(opts, newFakeStore())
		var vErr *config.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "backup_interval", vErr.Field)
	})

	t.Run("invalid required path pattern", func(t *testing.T) {
		opts := testOptions(t, "abc")
		opts.RequiredPaths = []string{"[unclosed"}

		_, err := New(opts, newFakeStore())
		var vErr *config.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, "required_paths", vErr.Field)
	})
}

func TestBeforeInit_RejectsConflictingUserDataDir(t *testing.T) {
	s, err := New(testOptions(t, "abc"), newFakeStore())
	require.NoError(t, err)
	defer s.Close()

	_, err = s.BeforeInit(context.Background(), "/somewhere/else")
	assert.Error(t, err)
}

func TestBeforeInit_AcceptsMatchingUserDataDir(t *testing.T) {
	s, err := New(testOptions(t, "abc"), newFakeStore())
	require.NoError(t, err)
	defer s.Close()

	path, err := s.BeforeInit(context.Background(), s.ProfileDir())
	require.NoError(t, err)
	assert.Equal(t, s.ProfileDir(), path)
}

func TestBeforeInit_FailOpenOnRecoveryError(t *testing.T) {
	fake := newFakeStore()
	fake.failOn("exists")

	s, err := New(testOptions(t, "abc"), fake)
	require.NoError(t, err)
	defer s.Close()

	// Recovery fails, but the host still gets a usable path.
	path, err := s.BeforeInit(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, s.ProfileDir(), path)
}

func TestBeforeInit_RestoresSnapshot(t *testing.T) {
	files := map[string]string{"Default/Cookies": "cookie db"}
	fake := newFakeStore()

	s, err := New(testOptions(t, "abc"), fake)
	require.NoError(t, err)
	defer s.Close()

	fake.setSnapshot(s.SessionName(), packProfile(t, files))

	path, err := s.BeforeInit(context.Background(), "")
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(path, "Default", "Cookies"))
	require.NoError(t, err)
	assert.Equal(t, "cookie db", string(data))
}

func TestOnLogout_CleansUpEverything(t *testing.T) {
	fake := newFakeStore()

	s, err := New(testOptions(t, "abc"), fake)
	require.NoError(t, err)
	defer s.Close()

	fake.setSnapshot(s.SessionName(), []byte("snapshot"))
	require.NoError(t, os.MkdirAll(s.ProfileDir(), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(s.ProfileDir(), "Local State"), []byte("x"), 0600))

	s.OnLogout(context.Background())

	_, ok := fake.snapshot(s.SessionName())
	assert.False(t, ok)
	_, statErr := os.Stat(s.ProfileDir())
	assert.True(t, os.IsNotExist(statErr))
}

func TestOnLogout_SwallowsStoreErrors(t *testing.T) {
	fake := newFakeStore()
	fake.failOn("delete")

	s, err := New(testOptions(t, "abc"), fake)
	require.NoError(t, err)
	defer s.Close()

	// Must not panic or propagate the failure.
	s.OnLogout(context.Background())
}

func TestLifecycle_BackupAfterReady(t *testing.T) {
	fake := newFakeStore()

	opts := testOptions(t, "abc")
	opts.StabilizationDelay = 10 * time.Millisecond

	s, err := New(opts, fake)
	require.NoError(t, err)
	defer s.Close()

	path, err := s.BeforeInit(context.Background(), "")
	require.NoError(t, err)

	// The host creates and populates the profile directory.
	require.NoError(t, os.MkdirAll(filepath.Join(path, "Default"), 0750))
	require.NoError(t, os.WriteFile(filepath.Join(path, "Default", "Cookies"), []byte("c"), 0600))
	require.NoError(t, os.WriteFile(filepath.Join(path, "Local State"), []byte("s"), 0600))

	require.NoError(t, s.OnReady(context.Background()))

	require.Eventually(t, func() bool {
		_, ok := fake.snapshot(s.SessionName())
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	s.OnLogout(context.Background())
	_, ok := fake.snapshot(s.SessionName())
	assert.False(t, ok)
}
