package blobstore

import (
	"context"
	"encoding/hex"
	"fmt"
	"hash"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/gzip"
)

// fsBlob is a staged filesystem blob. Size and hash are tracked over the
// uncompressed byte stream; when compression is enabled the bytes pass
// through a gzip writer on their way to the temp file.
type fsBlob struct {
	store *FSStore

	tmpFile *os.File
	tmpPath string
	gz      *gzip.Writer

	hasher hash.Hash
	size   int64

	mu        sync.Mutex
	closed    bool
	committed bool
	err       error // sticky error for failed blobs
}

func (b *fsBlob) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrBlobClosed
	}
	if b.err != nil {
		return 0, b.err
	}

	var n int
	var err error
	if b.gz != nil {
		n, err = b.gz.Write(p)
	} else {
		n, err = b.tmpFile.Write(p)
	}
	if err != nil {
		b.err = err
		return n, err
	}

	if _, err := b.hasher.Write(p[:n]); err != nil {
		b.err = err
		return n, err
	}

	b.size += int64(n)
	return n, nil
}

// Size returns the number of uncompressed bytes written so far.
func (b *fsBlob) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

// Hash returns the SHA-256 hex digest of the bytes written so far.
func (b *fsBlob) Hash() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return hex.EncodeToString(b.hasher.Sum(nil))
}

// Commit flushes and fsyncs the temp file, then atomically renames it into
// the blob's sharded directory. After Commit the blob cannot be reused.
func (b *fsBlob) Commit(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBlobClosed
	}
	if b.err != nil {
		return b.err
	}
	if err := b.store.validateKey(key); err != nil {
		b.err = err
		return b.err
	}

	b.closed = true
	b.committed = true

	defer func() {
		if b.err != nil {
			os.Remove(b.tmpPath)
		}
	}()

	if b.gz != nil {
		if err := b.gz.Close(); err != nil {
			b.err = err
			return b.err
		}
	}
	if err := b.tmpFile.Sync(); err != nil {
		b.err = err
		return b.err
	}
	if err := b.tmpFile.Close(); err != nil {
		b.err = err
		return b.err
	}

	dir := b.store.pathFromKey(key)
	if err := os.MkdirAll(dir, b.store.opts.DirMode); err != nil {
		b.err = err
		return b.err
	}

	dataName := blobFileName
	if b.gz != nil {
		dataName = gzipFileName
	}

	if err := os.Rename(b.tmpPath, filepath.Join(dir, dataName)); err != nil {
		b.err = fmt.Errorf("committing blob: %w", err)
		return b.err
	}

	return nil
}

// Discard closes the blob and removes the temp file without committing.
// Idempotent; a no-op after Commit.
func (b *fsBlob) Discard() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if b.tmpFile != nil {
		if err := b.tmpFile.Close(); err != nil && b.err == nil {
			b.err = err
		}
	}
	if b.tmpPath != "" {
		os.Remove(b.tmpPath)
	}

	return b.err
}
