package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore persists snapshots as objects in a Google Cloud Storage bucket,
// one object per session name under an optional prefix.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore creates a GCSStore for the given bucket. When credsFile is
// empty, application default credentials are used.
func NewGCSStore(ctx context.Context, bucket, prefix, credsFile string) (*GCSStore, error) {
	var opts []option.ClientOption
	if credsFile != "" {
		if _, err := os.Stat(credsFile); err != nil {
			return nil, fmt.Errorf("credentials file %s is not readable: %w", credsFile, err)
		}
		opts = append(opts, option.WithCredentialsFile(credsFile))
	}

	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}

	return &GCSStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *GCSStore) object(name string) *storage.ObjectHandle {
	return s.client.Bucket(s.bucket).Object(path.Join(s.prefix, name+".tar.gz"))
}

// Exists reports whether a snapshot object exists for name.
func (s *GCSStore) Exists(ctx context.Context, name string) (bool, error) {
	_, err := s.object(name).Attrs(ctx)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, storage.ErrObjectNotExist) {
		return false, nil
	}
	return false, err
}

// Save uploads the archive file at archivePath to the snapshot object.
func (s *GCSStore) Save(ctx context.Context, name, archivePath string) error {
	src, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open archive %s: %w", archivePath, err)
	}
	defer src.Close()

	writer := s.object(name).NewWriter(ctx)
	writer.ContentType = "application/gzip"

	if _, err := io.Copy(writer, src); err != nil {
		writer.Close()
		return fmt.Errorf("failed to upload snapshot: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to finalize snapshot upload: %w", err)
	}
	return nil
}

// Extract downloads the snapshot object to archivePath.
func (s *GCSStore) Extract(ctx context.Context, name, archivePath string) error {
	reader, err := s.object(name).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to open snapshot for %s: %w", name, err)
	}
	defer reader.Close()

	dst, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create archive %s: %w", archivePath, err)
	}

	if _, err := io.Copy(dst, reader); err != nil {
		dst.Close()
		os.Remove(archivePath)
		return fmt.Errorf("failed to download snapshot: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(archivePath)
		return fmt.Errorf("failed to close archive: %w", err)
	}
	return nil
}

// Delete removes the snapshot object for name; a missing object is ignored.
func (s *GCSStore) Delete(ctx context.Context, name string) error {
	err := s.object(name).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return err
	}
	return nil
}

// Close releases the underlying GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
