// Package storage realizes the directory-write capability the conversion
// pipeline depends on: merged audio artifacts and run records are written
// through an Adapter, never straight to the filesystem, so local disk and
// S3-compatible object stores are interchangeable behind one contract.
package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned by Get when no object exists at the requested
// path. Callers match it with errors.Is.
var ErrNotFound = errors.New("storage: object not found")

// Adapter is the storage backend contract. All paths are slash-separated
// and relative to the adapter's root (base directory or bucket).
type Adapter interface {
	// Put writes data at path, replacing any existing object.
	Put(ctx context.Context, path string, data io.Reader) error

	// Get opens the object at path for reading. The caller closes the
	// returned reader.
	Get(ctx context.Context, path string) (io.ReadCloser, error)

	// Delete removes the object at path.
	Delete(ctx context.Context, path string) error

	// Exists reports whether an object is present at path.
	Exists(ctx context.Context, path string) (bool, error)

	// List returns the paths of every object under prefix, sorted.
	List(ctx context.Context, prefix string) ([]string, error)

	// Close releases any resources held by the adapter.
	Close() error
}
