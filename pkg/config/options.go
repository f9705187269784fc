package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinBackupInterval is the lowest accepted interval between backup cycles.
	MinBackupInterval = 60 * time.Second

	// DefaultBackupInterval is used when no interval is configured.
	DefaultBackupInterval = 5 * time.Minute

	// DefaultStabilizationDelay is the wait before the first backup of a
	// freshly created profile. A profile directory is not consistent
	// immediately after the browser creates it.
	DefaultStabilizationDelay = 30 * time.Second

	// DefaultPruneSubdir is the profile subdirectory that gets the same
	// allow-list filtering as the profile root.
	DefaultPruneSubdir = "Default"
)

// sessionIDPattern is the accepted grammar for session identifiers.
var sessionIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// DefaultRequiredPaths is the allow-list of profile entries that must survive
// pruning: the minimal set needed to restore authentication and session state
// for a Chromium user-data directory.
var DefaultRequiredPaths = []string{
	"Default",
	"Default/Cookies",
	"Default/Cookies-journal",
	"Default/Login Data",
	"Default/Login Data-journal",
	"Default/Web Data",
	"Default/Web Data-journal",
	"Default/Local Storage",
	"Default/Session Storage",
	"Default/Network",
	"Default/Preferences",
	"Default/Secure Preferences",
	"Local State",
	"First Run",
}

// ValidationError reports an invalid configuration value. It is returned
// synchronously at construction time and is always fatal.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// StoreOptions selects and configures the remote store backend.
type StoreOptions struct {
	// Backend is one of "dir", "gcs" or "badger".
	Backend string `yaml:"backend"`

	// Root is the snapshot directory for the "dir" backend.
	Root string `yaml:"root"`

	// Bucket, Prefix and CredentialsFile configure the "gcs" backend.
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	CredentialsFile string `yaml:"credentials_file"`

	// Path is the database directory for the "badger" backend.
	Path string `yaml:"path"`
}

// Options configures a session synchronizer instance.
type Options struct {
	// SessionID namespaces the local profile directory and the remote
	// snapshot key. May be empty for a single unnamed session; otherwise it
	// must match [A-Za-z0-9_-]+.
	SessionID string `yaml:"session_id"`

	// BaseDir is the directory that profile directories are created under.
	// Defaults to ~/.sessionsync/profiles.
	BaseDir string `yaml:"base_dir"`

	// BackupInterval is the time between backup cycles. Minimum 60s.
	BackupInterval time.Duration `yaml:"backup_interval"`

	// StabilizationDelay is the wait before the first backup when no remote
	// snapshot exists yet.
	StabilizationDelay time.Duration `yaml:"stabilization_delay"`

	// RequiredPaths is the allow-list of profile entries (glob patterns,
	// relative to the profile root) that survive pruning.
	RequiredPaths []string `yaml:"required_paths"`

	// PruneSubdir is the subdirectory that is pruned with the same
	// allow-list one level deep.
	PruneSubdir string `yaml:"prune_subdir"`

	// Store selects the remote store backend.
	Store StoreOptions `yaml:"store"`
}

// DefaultOptions returns Options populated with defaults. BaseDir resolution
// follows the home-directory convention used for logs and configuration.
func DefaultOptions() Options {
	return Options{
		BaseDir:            defaultBaseDir(),
		BackupInterval:     DefaultBackupInterval,
		StabilizationDelay: DefaultStabilizationDelay,
		RequiredPaths:      append([]string(nil), DefaultRequiredPaths...),
		PruneSubdir:        DefaultPruneSubdir,
		Store:              StoreOptions{Backend: "dir"},
	}
}

func defaultBaseDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Fall back to a relative dot directory when HOME is unavailable.
		return filepath.Join(".sessionsync", "profiles")
	}
	return filepath.Join(homeDir, ".sessionsync", "profiles")
}

// Load reads a YAML options file, applied on top of DefaultOptions.
// A missing file is not an error; defaults are returned.
func Load(path string) (Options, error) {
	opts := DefaultOptions()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return opts, nil
		}
		return opts, fmt.Errorf("failed to read options file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &opts); err != nil {
		return opts, fmt.Errorf("failed to parse options file %s: %w", path, err)
	}

	return opts, nil
}

// Validate checks the options and returns a *ValidationError on the first
// invalid field.
func (o *Options) Validate() error {
	if o.SessionID != "" && !sessionIDPattern.MatchString(o.SessionID) {
		return &ValidationError{
			Field:  "session_id",
			Reason: fmt.Sprintf("%q must match [A-Za-z0-9_-]+", o.SessionID),
		}
	}

	if o.BaseDir == "" {
		return &ValidationError{Field: "base_dir", Reason: "must not be empty"}
	}

	if o.BackupInterval < MinBackupInterval {
		return &ValidationError{
			Field:  "backup_interval",
			Reason: fmt.Sprintf("%s is below the minimum %s", o.BackupInterval, MinBackupInterval),
		}
	}

	if o.PruneSubdir == "" {
		return &ValidationError{Field: "prune_subdir", Reason: "must not be empty"}
	}

	switch o.Store.Backend {
	case "dir", "gcs", "badger":
	default:
		return &ValidationError{
			Field:  "store.backend",
			Reason: fmt.Sprintf("unknown backend %q", o.Store.Backend),
		}
	}

	return nil
}

// SessionDirName returns the directory name derived from the session id:
// "session-<id>", or "session" when the id is empty.
func (o *Options) SessionDirName() string {
	if o.SessionID == "" {
		return "session"
	}
	return "session-" + o.SessionID
}

// ProfileDir returns the absolute profile directory path for this session.
func (o *Options) ProfileDir() string {
	return filepath.Join(o.BaseDir, o.SessionDirName())
}
