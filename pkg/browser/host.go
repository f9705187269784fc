// Package browser is the host-process adapter: it launches a Chromium
// persistent context on the profile directory managed by a session
// synchronizer, and drives the synchronizer's lifecycle hooks around the
// browser's lifetime.
package browser

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/playwright-community/playwright-go"

	"github.com/entrhq/sessionsync/pkg/session"
)

// Options configures the hosted browser.
type Options struct {
	// Headless controls whether the browser runs without a visible window.
	Headless bool

	// UserDataDir optionally overrides the user-data directory. Leave empty
	// to use the synchronizer-managed profile directory; a conflicting value
	// fails Start.
	UserDataDir string
}

// Host owns a Playwright persistent browser context whose user-data
// directory is restored and backed up by a session synchronizer.
type Host struct {
	synchronizer *session.Synchronizer
	opts         Options

	mu         sync.Mutex
	playwright *playwright.Playwright
	context    playwright.BrowserContext
	started    bool
}

// NewHost creates a Host around the given synchronizer.
func NewHost(synchronizer *session.Synchronizer, opts Options) *Host {
	return &Host{synchronizer: synchronizer, opts: opts}
}

// Start restores the session and launches the browser on it. The
// synchronizer's recovery runs to completion before the browser sees the
// profile directory; backups begin once the context is up.
func (h *Host) Start(ctx context.Context) (playwright.BrowserContext, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.started {
		return nil, fmt.Errorf("browser host already started")
	}

	profileDir, err := h.synchronizer.BeforeInit(ctx, h.opts.UserDataDir)
	if err != nil {
		return nil, err
	}

	// Discard driver output to keep stdout/stderr usable for the caller.
	runOpts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}
	if err := playwright.Install(runOpts); err != nil {
		return nil, fmt.Errorf("failed to install playwright: %w", err)
	}

	pw, err := playwright.Run(runOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	browserContext, err := pw.Chromium.LaunchPersistentContext(profileDir,
		playwright.BrowserTypeLaunchPersistentContextOptions{
			Headless: playwright.Bool(h.opts.Headless),
		})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch persistent context: %w", err)
	}

	if err := h.synchronizer.OnReady(ctx); err != nil {
		browserContext.Close()
		pw.Stop()
		return nil, fmt.Errorf("failed to start backup scheduler: %w", err)
	}

	h.playwright = pw
	h.context = browserContext
	h.started = true
	return browserContext, nil
}

// Logout closes the browser and tears the session down: remote snapshot
// deleted, local profile removed, backups stopped.
func (h *Host) Logout(ctx context.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closeBrowser()
	h.synchronizer.OnLogout(ctx)
}

// Close shuts the browser down but keeps local and remote session state, so
// a later Start resumes the same session.
func (h *Host) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closeBrowser()
	return h.synchronizer.Close()
}

func (h *Host) closeBrowser() {
	if !h.started {
		return
	}

	// Ignore errors, continue cleanup
	if h.context != nil {
		_ = h.context.Close()
	}
	if h.playwright != nil {
		_ = h.playwright.Stop()
	}

	h.context = nil
	h.playwright = nil
	h.started = false
}
