package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/klauspost/compress/gzip"
)

const (
	tempDirName  = ".tmp"
	blobDirName  = "blobs"
	blobFileName = "data"
	gzipFileName = "data.gz"

	maxKeyLength = 1024
)

// FSStore stores blobs under a root directory. Each key maps to a
// two-level sharded directory derived from the SHA-256 of the key, which
// spreads blobs evenly and keeps directory sizes bounded. Writes go
// through a temp file and become visible via an atomic rename.
type FSStore struct {
	root string
	opts *Options
}

// NewFSStore creates the store's directory layout under root.
func NewFSStore(root string, opts ...OptionFunc) (*FSStore, error) {
	options := &Options{
		FileMode: defaultOpts.FileMode,
		DirMode:  defaultOpts.DirMode,
		Compress: defaultOpts.Compress,
	}
	for _, opt := range opts {
		opt(options)
	}

	root = filepath.Clean(root)
	if err := os.MkdirAll(filepath.Join(root, blobDirName), options.DirMode); err != nil {
		return nil, fmt.Errorf("creating blobs directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, tempDirName), options.DirMode); err != nil {
		return nil, fmt.Errorf("creating temp directory: %w", err)
	}

	return &FSStore{root: root, opts: options}, nil
}

// NewBlob stages a new blob in the temp directory.
func (s *FSStore) NewBlob() (WritableBlob, error) {
	tmpPath := filepath.Join(s.root, tempDirName, uuid.NewString())
	f, err := os.OpenFile(tmpPath, os.O_RDWR|os.O_CREATE|os.O_EXCL, s.opts.FileMode)
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}

	b := &fsBlob{
		store:   s,
		tmpFile: f,
		tmpPath: tmpPath,
		hasher:  sha256.New(),
	}
	if s.opts.Compress {
		b.gz = gzip.NewWriter(f)
	}
	return b, nil
}

// Open returns a reader over the blob content. Compressed blobs are
// decompressed transparently.
func (s *FSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := s.validateKey(key); err != nil {
		return nil, err
	}

	dir := s.pathFromKey(key)

	f, err := os.Open(filepath.Join(dir, blobFileName))
	if err == nil {
		return f, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("open blob %q: %w", key, err)
	}

	gzFile, err := os.Open(filepath.Join(dir, gzipFileName))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("blob %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("open blob %q: %w", key, err)
	}

	zr, err := gzip.NewReader(gzFile)
	if err != nil {
		_ = gzFile.Close()
		return nil, fmt.Errorf("open compressed blob %q: %w", key, err)
	}
	return &gzipReadCloser{zr: zr, f: gzFile}, nil
}

// Delete removes the blob directory for key. Absence is reported via the
// returned bool, not an error.
func (s *FSStore) Delete(ctx context.Context, key string) (bool, error) {
	if err := s.validateKey(key); err != nil {
		return false, err
	}

	dir := s.pathFromKey(key)

	existed, err := s.Exists(ctx, key)
	if err != nil {
		return false, err
	}

	if err := os.RemoveAll(dir); err != nil {
		return existed, fmt.Errorf("delete blob %q: %w", key, err)
	}

	s.cleanupEmptyDirs(dir)

	return existed, nil
}

// Exists reports whether a blob (plain or compressed) is present for key.
func (s *FSStore) Exists(ctx context.Context, key string) (bool, error) {
	if err := s.validateKey(key); err != nil {
		return false, err
	}

	dir := s.pathFromKey(key)
	for _, name := range []string{blobFileName, gzipFileName} {
		_, err := os.Stat(filepath.Join(dir, name))
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, os.ErrNotExist) {
			return false, err
		}
	}
	return false, nil
}

// pathFromKey maps a key to its sharded directory: the first two bytes of
// the key's SHA-256 form two directory levels (256*256 buckets).
func (s *FSStore) pathFromKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	hexSum := hex.EncodeToString(sum[:])
	return filepath.Join(s.root, blobDirName, hexSum[:2], hexSum[2:4], hexSum)
}

func (s *FSStore) validateKey(key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if len(key) > maxKeyLength {
		return fmt.Errorf("key too long: %w", ErrInvalidKey)
	}
	if filepath.IsAbs(key) {
		return fmt.Errorf("absolute paths are not allowed: %w", ErrInvalidKey)
	}
	if strings.Contains(key, "..") {
		return fmt.Errorf("relative path traversal not allowed: %w", ErrInvalidKey)
	}
	if strings.Contains(key, "\x00") {
		return fmt.Errorf("null bytes not allowed: %w", ErrInvalidKey)
	}
	return nil
}

// cleanupEmptyDirs removes empty shard directories left behind after a
// delete, stopping at the first non-empty parent.
func (s *FSStore) cleanupEmptyDirs(path string) {
	blobsDir := filepath.Join(s.root, blobDirName)
	parent := filepath.Dir(path)

	for parent != blobsDir && parent != s.root && parent != "." && parent != "/" {
		entries, err := os.ReadDir(parent)
		if err != nil || len(entries) > 0 {
			break
		}
		if err := os.Remove(parent); err != nil {
			break
		}
		parent = filepath.Dir(parent)
	}
}

type gzipReadCloser struct {
	zr *gzip.Reader
	f  *os.File
}

func (g *gzipReadCloser) Read(p []byte) (int, error) {
	return g.zr.Read(p)
}

func (g *gzipReadCloser) Close() error {
	zerr := g.zr.Close()
	ferr := g.f.Close()
	if zerr != nil {
		return zerr
	}
	return ferr
}
