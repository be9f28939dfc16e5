// Package blobstore provides blob storage backends addressed by opaque
// keys. Two implementations exist: a local filesystem store with sharded
// directories and optional gzip compression at rest, and an S3-compatible
// store. Both stage incoming bytes in a temporary file and compute size
// and a SHA-256 fingerprint while writing, so a blob is either fully
// committed under its key or not visible at all.
package blobstore

import (
	"context"
	"errors"
	"io"
)

var (
	ErrNotFound   = errors.New("blob with key not found")
	ErrEmptyKey   = errors.New("key cannot be empty")
	ErrInvalidKey = errors.New("key contains invalid characters")
	ErrBlobClosed = errors.New("blob is closed")
)

// WritableBlob is a staged blob being written. Bytes are streamed in via
// io.Writer; Size and Hash track the uncompressed content incrementally.
// Commit durably persists the blob under the given key; Discard drops the
// staged state. Exactly one of Commit or Discard must be called, and
// Discard is safe to call after Commit (it becomes a no-op).
type WritableBlob interface {
	io.Writer
	Size() int64
	Hash() string
	Commit(ctx context.Context, key string) error
	Discard() error
}

// Store is the blob backend used by the file service.
type Store interface {
	// NewBlob stages a new writable blob.
	NewBlob() (WritableBlob, error)
	// Open returns the blob content for key, or ErrNotFound.
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	// Delete removes the blob for key. It reports whether the blob
	// existed; deleting an absent blob is not an error so callers can
	// log the inconsistency and still converge.
	Delete(ctx context.Context, key string) (existed bool, err error)
	// Exists reports whether a blob is present for key.
	Exists(ctx context.Context, key string) (bool, error)
}
