// Package store defines the remote snapshot store capability and its
// concrete backends. A store persists at most one opaque archive per session
// name; the synchronizer guarantees delete-before-save ordering, so backends
// never need versioning.
package store

import (
	"context"
	"fmt"
)

// RemoteStore is the capability interface a snapshot backend must provide.
// All operations are keyed by session name. The archive hand-off is a local
// file path: Save reads the archive from it, Extract materializes the stored
// archive to it.
type RemoteStore interface {
	// Exists reports whether a snapshot is stored under name.
	Exists(ctx context.Context, name string) (bool, error)

	// Save persists the archive file at archivePath under name. The caller
	// guarantees no snapshot exists under name.
	Save(ctx context.Context, name, archivePath string) error

	// Extract writes the snapshot stored under name to archivePath.
	Extract(ctx context.Context, name, archivePath string) error

	// Delete removes the snapshot stored under name. Deleting a missing
	// snapshot is a no-op.
	Delete(ctx context.Context, name string) error
}

// OpError is the uniform failure type for remote store operations, carrying
// the operation name, the session key and the underlying cause.
type OpError struct {
	Op  string
	Key string
	Err error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("remote store %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// Client wraps a RemoteStore so every failure surfaces as an *OpError.
type Client struct {
	store RemoteStore
}

// NewClient creates a Client around the given backend.
func NewClient(store RemoteStore) *Client {
	return &Client{store: store}
}

// Exists reports whether a snapshot is stored under name.
func (c *Client) Exists(ctx context.Context, name string) (bool, error) {
	ok, err := c.store.Exists(ctx, name)
	if err != nil {
		return false, &OpError{Op: "exists", Key: name, Err: err}
	}
	return ok, nil
}

// Save persists the archive file at archivePath under name.
func (c *Client) Save(ctx context.Context, name, archivePath string) error {
	if err := c.store.Save(ctx, name, archivePath); err != nil {
		return &OpError{Op: "save", Key: name, Err: err}
	}
	return nil
}

// Extract materializes the snapshot stored under name to archivePath.
func (c *Client) Extract(ctx context.Context, name, archivePath string) error {
	if err := c.store.Extract(ctx, name, archivePath); err != nil {
		return &OpError{Op: "extract", Key: name, Err: err}
	}
	return nil
}

// Delete removes the snapshot stored under name, if any.
func (c *Client) Delete(ctx context.Context, name string) error {
	if err := c.store.Delete(ctx, name); err != nil {
		return &OpError{Op: "delete", Key: name, Err: err}
	}
	return nil
}
