package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

// ErrNotFound is returned (wrapped) when a key has no object.
var ErrNotFound = errors.New("key not found")

// StorageBackend defines the interface for different storage implementations
type StorageBackend interface {
	// Put stores data at the given key. Readers never observe a partial object.
	Put(ctx context.Context, key string, data io.Reader) error

	// Get retrieves data from the given key
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Delete removes the object at the given key; a missing key is not an error
	Delete(ctx context.Context, key string) error

	// List returns all keys with the given prefix
	List(ctx context.Context, prefix string) ([]string, error)

	// Exists checks if an object exists at the given key
	Exists(ctx context.Context, key string) (bool, error)
}

// StorageInfo provides metadata about stored objects
type StorageInfo struct {
	Key          string
	Size         int64
	LastModified time.Time
}

// StorageBackendWithInfo extends StorageBackend with metadata operations
type StorageBackendWithInfo interface {
	StorageBackend

	// ListWithInfo returns objects with metadata
	ListWithInfo(ctx context.Context, prefix string) ([]StorageInfo, error)

	// GetInfo returns metadata for a single object
	GetInfo(ctx context.Context, key string) (*StorageInfo, error)
}

// LocalPather is implemented by backends whose objects already live on the
// local filesystem, so callers can hand paths to tools without copying.
type LocalPather interface {
	LocalPath(key string) (string, error)
}

// DirPruner is implemented by backends with real directories that linger
// after their last object is deleted.
type DirPruner interface {
	PruneEmptyDirs(ctx context.Context, prefix string) (int, error)
}

// TempReaper is implemented by backends whose Put stages data in temp files
// that a crash can strand.
type TempReaper interface {
	PruneStaleTemps(ctx context.Context, prefix string, cutoff time.Time) (int, error)
}
