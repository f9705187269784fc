package session

import (
	"context"
	"fmt"
	"os"
	"sync"
)

// fakeStore is an in-memory RemoteStore for tests, with per-operation
// failure injection, an optional gate that blocks Save, and an operation
// log for asserting ordering.
type fakeStore struct {
	mu        sync.Mutex
	snapshots map[string][]byte
	failOps   map[string]error
	ops       []string

	// saveGate, when non-nil, blocks Save between saveStarted being
	// signalled and the gate being closed.
	saveGate    chan struct{}
	saveStarted chan struct{}
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		snapshots: make(map[string][]byte),
		failOps:   make(map[string]error),
	}
}

func (s *fakeStore) failOn(op string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failOps[op] = fmt.Errorf("injected %s failure", op)
}

func (s *fakeStore) record(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ops = append(s.ops, op)
	return s.failOps[op]
}

func (s *fakeStore) opLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.ops...)
}

func (s *fakeStore) snapshot(name string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.snapshots[name]
	return data, ok
}

func (s *fakeStore) setSnapshot(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[name] = data
}

func (s *fakeStore) Exists(_ context.Context, name string) (bool, error) {
	if err := s.record("exists"); err != nil {
		return false, err
	}
	_, ok := s.snapshot(name)
	return ok, nil
}

func (s *fakeStore) Save(_ context.Context, name, archivePath string) error {
	if err := s.record("save"); err != nil {
		return err
	}

	s.mu.Lock()
	gate, started := s.saveGate, s.saveStarted
	s.mu.Unlock()
	if gate != nil {
		started <- struct{}{}
		<-gate
	}

	data, err := os.ReadFile(archivePath)
	if err != nil {
		return err
	}
	s.setSnapshot(name, data)
	return nil
}

func (s *fakeStore) Extract(_ context.Context, name, archivePath string) error {
	if err := s.record("extract"); err != nil {
		return err
	}
	data, ok := s.snapshot(name)
	if !ok {
		return fmt.Errorf("no snapshot for %s", name)
	}
	return os.WriteFile(archivePath, data, 0600)
}

func (s *fakeStore) Delete(_ context.Context, name string) error {
	if err := s.record("delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, name)
	return nil
}
