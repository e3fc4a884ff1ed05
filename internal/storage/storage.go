// Package storage is the object-storage sink for pruned login-history
// archives.
package storage

import (
	"bytes"
	"context"
	"io"
)

// ObjectStorage defines common object operations across backends.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Bucket() string
}

// ArchiveStore wraps an ObjectStorage backend with the archive API.
type ArchiveStore struct {
	backend ObjectStorage
}

// NewArchiveStore constructs an ArchiveStore for the provided backend.
func NewArchiveStore(backend ObjectStorage) *ArchiveStore {
	return &ArchiveStore{backend: backend}
}

// EnsureBucket ensures the configured bucket exists.
func (s *ArchiveStore) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Put uploads a JSON archive document under the given key.
func (s *ArchiveStore) Put(ctx context.Context, key string, data []byte) error {
	return s.backend.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "application/json")
}

// Get opens a reader for an archived document.
func (s *ArchiveStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	return s.backend.Get(ctx, key)
}

// Bucket returns the configured bucket name.
func (s *ArchiveStore) Bucket() string {
	return s.backend.Bucket()
}
