// Package main provides the sessionsync runner: it restores a browser
// profile from the remote store, launches a Chromium persistent context on
// it and keeps the remote snapshot fresh until the process exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/entrhq/sessionsync/pkg/browser"
	"github.com/entrhq/sessionsync/pkg/config"
	"github.com/entrhq/sessionsync/pkg/session"
	"github.com/entrhq/sessionsync/pkg/store"
)

const version = "0.1.0"

// cliConfig holds command-line configuration.
type cliConfig struct {
	ConfigFile  string
	SessionID   string
	BaseDir     string
	Interval    time.Duration
	Backend     string
	StoreRoot   string
	Bucket      string
	Prefix      string
	CredsFile   string
	BadgerPath  string
	Headless    bool
	StartURL    string
	Logout      bool
	ShowVersion bool
}

func main() {
	cli := parseFlags()

	if cli.ShowVersion {
		fmt.Printf("sessionsync v%s\n", version)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nShutting down...")
		cancel()
	}()

	if err := run(ctx, cli); err != nil {
		cancel()
		log.Printf("Execution failed: %v", err)
		os.Exit(1)
	}
	cancel()
}

// parseFlags parses command line flags.
func parseFlags() *cliConfig {
	cli := &cliConfig{}

	flag.StringVar(&cli.ConfigFile, "config", "", "Path to configuration file (YAML)")
	flag.StringVar(&cli.SessionID, "session", "", "Session identifier (alphanumeric, underscore, hyphen)")
	flag.StringVar(&cli.BaseDir, "base-dir", "", "Base directory for profile directories")
	flag.DurationVar(&cli.Interval, "interval", 0, "Backup interval (minimum 60s)")
	flag.StringVar(&cli.Backend, "backend", "", "Snapshot store backend: dir, gcs or badger")
	flag.StringVar(&cli.StoreRoot, "store-root", "", "Snapshot directory for the dir backend")
	flag.StringVar(&cli.Bucket, "bucket", "", "GCS bucket for the gcs backend")
	flag.StringVar(&cli.Prefix, "prefix", "", "Object prefix for the gcs backend")
	flag.StringVar(&cli.CredsFile, "credentials", os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"), "Service account key file for the gcs backend")
	flag.StringVar(&cli.BadgerPath, "badger-path", "", "Database directory for the badger backend")
	flag.BoolVar(&cli.Headless, "headless", true, "Run the browser headless")
	flag.StringVar(&cli.StartURL, "url", "", "URL to open after launch")
	flag.BoolVar(&cli.Logout, "logout-on-exit", false, "Delete the session locally and remotely on exit")
	flag.BoolVar(&cli.ShowVersion, "version", false, "Show version and exit")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "sessionsync - durable remote-backed browser sessions\n\n")
		fmt.Fprintf(os.Stderr, "Usage: sessionsync [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  # Local snapshot store\n")
		fmt.Fprintf(os.Stderr, "  sessionsync -session work -url https://example.com\n\n")
		fmt.Fprintf(os.Stderr, "  # GCS-backed store\n")
		fmt.Fprintf(os.Stderr, "  sessionsync -session work -backend gcs -bucket my-sessions\n\n")
	}

	flag.Parse()
	return cli
}

// buildOptions merges the config file (if any) with flag overrides.
func buildOptions(cli *cliConfig) (config.Options, error) {
	opts := config.DefaultOptions()
	if cli.ConfigFile != "" {
		loaded, err := config.Load(cli.ConfigFile)
		if err != nil {
			return opts, err
		}
		opts = loaded
	}

	if cli.SessionID != "" {
		opts.SessionID = cli.SessionID
	}
	if cli.BaseDir != "" {
		opts.BaseDir = cli.BaseDir
	}
	if cli.Interval != 0 {
		opts.BackupInterval = cli.Interval
	}
	if cli.Backend != "" {
		opts.Store.Backend = cli.Backend
	}
	if cli.StoreRoot != "" {
		opts.Store.Root = cli.StoreRoot
	}
	if cli.Bucket != "" {
		opts.Store.Bucket = cli.Bucket
	}
	if cli.Prefix != "" {
		opts.Store.Prefix = cli.Prefix
	}
	if cli.CredsFile != "" {
		opts.Store.CredentialsFile = cli.CredsFile
	}
	if cli.BadgerPath != "" {
		opts.Store.Path = cli.BadgerPath
	}

	return opts, nil
}

// buildStore constructs the configured snapshot store backend. The returned
// closer releases backend resources and may be nil.
func buildStore(ctx context.Context, opts config.Options) (store.RemoteStore, func() error, error) {
	switch opts.Store.Backend {
	case "dir":
		root := opts.Store.Root
		if root == "" {
			root = filepath.Join(filepath.Dir(opts.BaseDir), "snapshots")
		}
		s, err := store.NewDirStore(root)
		return s, nil, err
	case "gcs":
		if opts.Store.Bucket == "" {
			return nil, nil, fmt.Errorf("gcs backend requires a bucket")
		}
		s, err := store.NewGCSStore(ctx, opts.Store.Bucket, opts.Store.Prefix, opts.Store.CredentialsFile)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	case "badger":
		path := opts.Store.Path
		if path == "" {
			path = filepath.Join(filepath.Dir(opts.BaseDir), "snapshots.db")
		}
		s, err := store.OpenBadgerStore(path)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", opts.Store.Backend)
	}
}

// run executes the hosted browser session until the context is cancelled.
func run(ctx context.Context, cli *cliConfig) error {
	opts, err := buildOptions(cli)
	if err != nil {
		return err
	}
	if err := opts.Validate(); err != nil {
		return err
	}

	remote, closeStore, err := buildStore(ctx, opts)
	if err != nil {
		return err
	}
	if closeStore != nil {
		defer closeStore()
	}

	synchronizer, err := session.New(opts, remote)
	if err != nil {
		return err
	}

	host := browser.NewHost(synchronizer, browser.Options{Headless: cli.Headless})
	browserContext, err := host.Start(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Session %q running on %s\n", synchronizer.SessionName(), synchronizer.ProfileDir())

	if cli.StartURL != "" {
		page, err := browserContext.NewPage()
		if err != nil {
			return fmt.Errorf("failed to open page: %w", err)
		}
		if _, err := page.Goto(cli.StartURL); err != nil {
			return fmt.Errorf("failed to open %s: %w", cli.StartURL, err)
		}
	}

	<-ctx.Done()

	if cli.Logout {
		// Teardown must not inherit the cancelled context.
		host.Logout(context.Background())
	}
	return host.Close()
}
