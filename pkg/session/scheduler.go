package session

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/entrhq/sessionsync/pkg/archive"
	"github.com/entrhq/sessionsync/pkg/logging"
	"github.com/entrhq/sessionsync/pkg/profile"
	"github.com/entrhq/sessionsync/pkg/store"
)

// ErrCycleInFlight is returned by runCycle when a backup is already running.
var ErrCycleInFlight = errors.New("backup cycle already in flight")

// Scheduler runs recurring backup cycles for one session. A cycle prunes the
// profile directory, packs it into a transient archive and replaces the
// remote snapshot with it.
//
// At most one cycle is in flight at any time: ticks and manual triggers that
// arrive while a cycle runs are dropped, so the remote snapshot always equals
// the output of the last completed cycle.
type Scheduler struct {
	client        *store.Client
	pruner        *profile.Pruner
	logger        *logging.Logger
	interval      time.Duration
	stabilization time.Duration

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
	busy    atomic.Bool
}

// NewScheduler creates a Scheduler. The interval floor is enforced by config
// validation before construction.
func NewScheduler(client *store.Client, pruner *profile.Pruner, logger *logging.Logger, interval, stabilization time.Duration) *Scheduler {
	return &Scheduler{
		client:        client,
		pruner:        pruner,
		logger:        logger,
		interval:      interval,
		stabilization: stabilization,
	}
}

// Start launches the backup loop for the given session name and profile
// directory. When no remote snapshot exists yet, the first backup waits for
// the stabilization delay: a profile directory is not durable immediately
// after the browser creates it, and archiving it too early can persist a
// half-initialized state.
func (s *Scheduler) Start(ctx context.Context, name, profileDir string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("backup scheduler already running")
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go s.run(ctx, name, profileDir, s.stop, s.done)
	return nil
}

// Stop cancels pending and future ticks. An in-flight cycle is allowed to
// finish; Stop blocks until it has. Safe to call when not running.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
}

// BackupNow triggers a single backup cycle outside the timer, returning the
// cycle's error. Returns ErrCycleInFlight when a cycle is already running.
func (s *Scheduler) BackupNow(ctx context.Context, name, profileDir string) error {
	return s.runCycle(ctx, name, profileDir)
}

func (s *Scheduler) run(ctx context.Context, name, profileDir string, stop, done chan struct{}) {
	defer close(done)

	exists, err := s.client.Exists(ctx, name)
	if err != nil {
		s.logger.Warnf("initial snapshot check failed: %v", err)
	}

	if err == nil && !exists {
		select {
		case <-time.After(s.stabilization):
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
		if err := s.runCycle(ctx, name, profileDir); err != nil {
			s.logger.Warnf("initial backup failed: %v", err)
		}
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.runCycle(ctx, name, profileDir); err != nil {
				if errors.Is(err, ErrCycleInFlight) {
					s.logger.Debugf("backup tick skipped, cycle in flight")
					continue
				}
				// Failures never stop the timer; the next tick retries.
				s.logger.Warnf("backup cycle failed: %v", err)
			}
		case <-stop:
			return
		case <-ctx.Done():
			return
		}
	}
}

// runCycle executes one backup cycle. The remote snapshot is
// deleted before the new one is saved, so the store never holds two
// snapshots; a save failure after the delete leaves a window with none until
// the next successful cycle.
func (s *Scheduler) runCycle(ctx context.Context, name, profileDir string) error {
	if !s.busy.CompareAndSwap(false, true) {
		return ErrCycleInFlight
	}
	defer s.busy.Store(false)

	exists, err := s.client.Exists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		if err := s.client.Delete(ctx, name); err != nil {
			return err
		}
	}

	if _, err := os.Stat(profileDir); err != nil {
		if os.IsNotExist(err) {
			s.logger.Debugf("profile directory %s missing, skipping backup", profileDir)
			return nil
		}
		return fmt.Errorf("failed to stat profile directory %s: %w", profileDir, err)
	}

	if err := s.pruner.Prune(profileDir); err != nil {
		return err
	}

	archivePath := profileDir + ".tar.gz"
	if err := archive.PackFile(profileDir, archivePath); err != nil {
		return err
	}
	defer os.Remove(archivePath)

	if err := s.client.Save(ctx, name, archivePath); err != nil {
		return err
	}

	s.logger.Infof("backed up %s", name)
	return nil
}
