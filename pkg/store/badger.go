package store

import (
	"context"
	"errors"
	"fmt"
	"os"

	badger "github.com/dgraph-io/badger/v4"
)

// BadgerStore persists snapshots as single values in a Badger database, one
// key per session name. Archives pass through memory as one value, so this
// backend suits pruned profiles (typically a few megabytes), not arbitrary
// directory trees.
type BadgerStore struct {
	db    *badger.DB
	owned bool
}

const badgerKeyPrefix = "snapshot/"

// NewBadgerStore wraps an already-open database. The caller keeps ownership
// of db.
func NewBadgerStore(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// OpenBadgerStore opens (or creates) a database at path and wraps it. Close
// releases the database.
func OpenBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open snapshot database at %s: %w", path, err)
	}
	return &BadgerStore{db: db, owned: true}, nil
}

func badgerKey(name string) []byte {
	return []byte(badgerKeyPrefix + name)
}

// Exists reports whether a snapshot value exists for name.
func (s *BadgerStore) Exists(_ context.Context, name string) (bool, error) {
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(badgerKey(name))
		return err
	})
	if err == nil {
		return true, nil
	}
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return false, err
}

// Save stores the archive file at archivePath as the snapshot value.
func (s *BadgerStore) Save(_ context.Context, name, archivePath string) error {
	data, err := os.ReadFile(archivePath)
	if err != nil {
		return fmt.Errorf("failed to read archive %s: %w", archivePath, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(name), data)
	})
}

// Extract writes the snapshot value to archivePath.
func (s *BadgerStore) Extract(_ context.Context, name, archivePath string) error {
	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(badgerKey(name))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to read snapshot for %s: %w", name, err)
	}

	if err := os.WriteFile(archivePath, data, 0600); err != nil {
		return fmt.Errorf("failed to write archive %s: %w", archivePath, err)
	}
	return nil
}

// Delete removes the snapshot value for name; deleting a missing key is a
// no-op in Badger.
func (s *BadgerStore) Delete(_ context.Context, name string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(badgerKey(name))
	})
}

// Close releases the database when this store opened it.
func (s *BadgerStore) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
