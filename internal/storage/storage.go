// Package storage abstracts where archived bytes and sidecars live. Keys are slash-separated
// paths relative to the archive root, e.g. "incoming/2024/01/001-sm-2024.pdf".
package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	ErrExists   = errors.New("object already exists")
	ErrNotExist = errors.New("object does not exist")
)

// PutObjectOptions define optional parameters for uploading objects.
// Size should be the exact number of bytes if known, or -1.
// With NoOverwrite set, Put fails with ErrExists when the key is taken.
type PutObjectOptions struct {
	Size        int64
	ContentType string
	Metadata    map[string]string
	NoOverwrite bool
}

// ObjectInfo contains basic information about an object in storage.
type ObjectInfo struct {
	Key          string
	Size         int64
	ETag         string
	ContentType  string
	LastModified time.Time
	Metadata     map[string]string
}

// Storage is the archive backend. Implementations are safe for concurrent use.
type Storage interface {
	// Put stores r under key, creating parent directories as needed.
	Put(ctx context.Context, key string, r io.Reader, opt PutObjectOptions) (ObjectInfo, error)
	// Get opens key for streaming. A missing key yields ErrNotExist.
	Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error)
	// Delete removes key. Removing a missing key is not an error.
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	// List returns every object under prefix, recursively, sorted by key.
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
}
