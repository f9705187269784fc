package store

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DirStore persists snapshots as files in a local directory. It backs
// development setups and tests; the same directory can be a network mount
// for a poor man's shared store.
type DirStore struct {
	root string
}

// NewDirStore creates a DirStore rooted at root, creating the directory if
// needed.
func NewDirStore(root string) (*DirStore, error) {
	if err := os.MkdirAll(root, 0750); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory %s: %w", root, err)
	}
	return &DirStore{root: root}, nil
}

func (s *DirStore) snapshotPath(name string) string {
	return filepath.Join(s.root, name+".tar.gz")
}

// Exists reports whether a snapshot file exists for name.
func (s *DirStore) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(s.snapshotPath(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, err
}

// Save copies the archive into the store. The copy goes through a temp file
// and a rename, so a reader never observes a half-written snapshot.
func (s *DirStore) Save(_ context.Context, name, archivePath string) error {
	src, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer src.Close()

	target := s.snapshotPath(name)
	tempPath := target + ".tmp"
	dst, err := os.Create(tempPath)
	if err != nil {
		return fmt.Errorf("failed to create temp snapshot: %w", err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(tempPath)
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to close snapshot: %w", err)
	}

	if err := os.Rename(tempPath, target); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to finalize snapshot: %w", err)
	}
	return nil
}

// Extract copies the stored snapshot to archivePath.
func (s *DirStore) Extract(_ context.Context, name, archivePath string) error {
	src, err := os.Open(s.snapshotPath(name))
	if err != nil {
		return fmt.Errorf("failed to open snapshot for %s: %w", name, err)
	}
	defer src.Close()

	dst, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive %s: %w", archivePath, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		os.Remove(archivePath)
		return fmt.Errorf("failed to write archive: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(archivePath)
		return fmt.Errorf("failed to close archive: %w", err)
	}
	return nil
}

// Delete removes the snapshot file for name; missing files are ignored.
func (s *DirStore) Delete(_ context.Context, name string) error {
	err := os.Remove(s.snapshotPath(name))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
