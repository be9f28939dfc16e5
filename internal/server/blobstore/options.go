package blobstore

import "os"

// Options configures the filesystem store.
type Options struct {
	FileMode os.FileMode // permission bits for blob data files
	DirMode  os.FileMode // permission bits for directories
	Compress bool        // gzip blobs at rest
}

// OptionFunc is a functional option for configuring the filesystem store.
type OptionFunc func(opts *Options)

// WithFileMode sets the file permission mode for blob data files.
// Default is 0644.
func WithFileMode(mode os.FileMode) OptionFunc {
	return func(opts *Options) {
		opts.FileMode = mode
	}
}

// WithDirMode sets the directory permission mode for storage directories.
// Default is 0755.
func WithDirMode(mode os.FileMode) OptionFunc {
	return func(opts *Options) {
		opts.DirMode = mode
	}
}

// WithCompression enables gzip compression of blob data at rest.
// Reads remain transparent: compressed and uncompressed blobs can coexist
// under the same root, so the option can be toggled without migration.
func WithCompression() OptionFunc {
	return func(opts *Options) {
		opts.Compress = true
	}
}

var defaultOpts = &Options{
	FileMode: 0644,
	DirMode:  0755,
}
