package session

import (
	"context"
	"fmt"
	"os"

	"github.com/entrhq/sessionsync/pkg/archive"
	"github.com/entrhq/sessionsync/pkg/logging"
	"github.com/entrhq/sessionsync/pkg/store"
)

// Recovery restores the latest remote snapshot into the local profile
// directory during startup.
type Recovery struct {
	client *store.Client
	logger *logging.Logger
}

// NewRecovery creates a Recovery using the given store client.
func NewRecovery(client *store.Client, logger *logging.Logger) *Recovery {
	return &Recovery{client: client, logger: logger}
}

// Recover checks the remote store for a snapshot under name and, if one
// exists, extracts and unpacks it into profileDir.
//
// Any stale local directory at profileDir is removed first, whether or not a
// snapshot exists: old local state must never mix with a restored snapshot,
// and without a snapshot the host creates the directory fresh. When no
// snapshot exists, profileDir is left absent.
func (r *Recovery) Recover(ctx context.Context, name, profileDir string) error {
	exists, err := r.client.Exists(ctx, name)
	if err != nil {
		return err
	}

	if _, statErr := os.Stat(profileDir); statErr == nil {
		r.logger.Infof("removing stale local profile at %s", profileDir)
		if err := os.RemoveAll(profileDir); err != nil {
			return fmt.Errorf("failed to remove stale profile %s: %w", profileDir, err)
		}
	}

	if !exists {
		r.logger.Infof("no remote snapshot for %s, starting fresh", name)
		return nil
	}

	archivePath := profileDir + ".tar.gz"
	if err := r.client.Extract(ctx, name, archivePath); err != nil {
		return err
	}
	defer os.Remove(archivePath)

	if err := os.MkdirAll(profileDir, 0750); err != nil {
		os.RemoveAll(profileDir)
		return fmt.Errorf("failed to create profile directory %s: %w", profileDir, err)
	}

	if err := archive.UnpackFile(archivePath, profileDir); err != nil {
		// A half-extracted profile must not survive: the host would launch
		// on corrupt state instead of starting fresh.
		os.RemoveAll(profileDir)
		return err
	}

	r.logger.Infof("restored snapshot %s into %s", name, profileDir)
	return nil
}
