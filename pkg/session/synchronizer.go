package session

import (
	"context"
	"fmt"
	"os"

	"github.com/entrhq/sessionsync/pkg/config"
	"github.com/entrhq/sessionsync/pkg/logging"
	"github.com/entrhq/sessionsync/pkg/profile"
	"github.com/entrhq/sessionsync/pkg/store"
)

// Synchronizer wires recovery and backup scheduling together and exposes the
// lifecycle entry points the host process calls around the browser's
// lifetime:
//
//  1. BeforeInit: before the browser launches, resolve the profile directory
//     and restore the latest remote snapshot into it.
//  2. OnReady: once the session is usable, start the recurring backups.
//  3. OnLogout: tear everything down, locally and remotely.
type Synchronizer struct {
	opts       config.Options
	client     *store.Client
	recovery   *Recovery
	scheduler  *Scheduler
	logger     *logging.Logger
	profileDir string
}

// New creates a Synchronizer for the given options and store backend.
// Invalid options fail immediately with a *config.ValidationError.
func New(opts config.Options, remote store.RemoteStore) (*Synchronizer, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	required, err := profile.NewRequiredPathSet(opts.RequiredPaths)
	if err != nil {
		return nil, &config.ValidationError{Field: "required_paths", Reason: err.Error()}
	}

	logger, logErr := logging.NewLogger("session-sync")
	if logErr != nil {
		logger.Warnf("file logging unavailable: %v", logErr)
	}

	client := store.NewClient(remote)
	pruner := profile.NewPruner(required, opts.PruneSubdir)

	return &Synchronizer{
		opts:       opts,
		client:     client,
		recovery:   NewRecovery(client, logger),
		scheduler:  NewScheduler(client, pruner, logger, opts.BackupInterval, opts.StabilizationDelay),
		logger:     logger,
		profileDir: opts.ProfileDir(),
	}, nil
}

// ProfileDir returns the resolved profile directory path.
func (s *Synchronizer) ProfileDir() string {
	return s.profileDir
}

// SessionName returns the session directory name used as the remote key.
func (s *Synchronizer) SessionName() string {
	return s.opts.SessionDirName()
}

// BeforeInit resolves the profile directory path, runs recovery against the
// remote store and returns the path for the host to launch the browser with.
//
// hostUserDataDir is the user-data directory the host was configured with,
// if any; a non-empty value that differs from the managed path is a
// conflict, because two owners for one profile directory cannot be
// reconciled.
//
// Recovery failures are logged and do not fail startup: losing a session is
// recoverable, blocking the host is not. The caller always gets a usable
// path back.
func (s *Synchronizer) BeforeInit(ctx context.Context, hostUserDataDir string) (string, error) {
	if hostUserDataDir != "" && hostUserDataDir != s.profileDir {
		return "", fmt.Errorf("conflicting user data directory: host set %q but session %q owns %q",
			hostUserDataDir, s.SessionName(), s.profileDir)
	}

	if err := s.recovery.Recover(ctx, s.SessionName(), s.profileDir); err != nil {
		s.logger.Errorf("recovery failed for %s, proceeding without restored state: %v", s.SessionName(), err)
	}

	return s.profileDir, nil
}

// OnReady starts the recurring backup scheduler. Call once the host reports
// the session is authenticated and usable.
func (s *Synchronizer) OnReady(ctx context.Context) error {
	return s.scheduler.Start(ctx, s.SessionName(), s.profileDir)
}

// OnLogout tears the session down: the backup timer is stopped, the remote
// snapshot is deleted and the local profile directory is removed. All
// cleanup is best-effort; logout never fails because of storage issues.
func (s *Synchronizer) OnLogout(ctx context.Context) {
	s.scheduler.Stop()

	if err := s.client.Delete(ctx, s.SessionName()); err != nil {
		s.logger.Warnf("failed to delete remote snapshot on logout: %v", err)
	}

	if err := os.RemoveAll(s.profileDir); err != nil {
		s.logger.Warnf("failed to remove local profile on logout: %v", err)
	}
}

// Close releases the synchronizer's resources. It does not touch local or
// remote state; use OnLogout for teardown.
func (s *Synchronizer) Close() error {
	s.scheduler.Stop()
	return s.logger.Close()
}
