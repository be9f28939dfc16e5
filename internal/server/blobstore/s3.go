package blobstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"hash"
	"io"
	"os"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// S3Config holds the settings for an S3-compatible backend (MinIO in the
// development setup).
type S3Config struct {
	RootUser     string
	RootPassword string
	Bucket       string
	Region       string
	BaseEndpoint string
}

// S3Store stores blobs as objects in a single bucket. Incoming bytes are
// staged in a local temp file so the upload to S3 happens only on Commit,
// keeping the commit-after-write ordering of the filesystem store.
type S3Store struct {
	client *s3.Client
	bucket string
}

// NewS3Store builds an S3 client with static credentials and an explicit
// base endpoint, the setup used for MinIO-compatible deployments.
func NewS3Store(ctx context.Context, c S3Config) (*S3Store, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(c.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			c.RootUser,     // MINIO_ROOT_USER
			c.RootPassword, // MINIO_ROOT_PASSWORD
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(c.BaseEndpoint)
		o.UsePathStyle = true
	})

	return &S3Store{client: client, bucket: c.Bucket}, nil
}

func (s *S3Store) NewBlob() (WritableBlob, error) {
	f, err := os.CreateTemp("", "filekeeper-upload-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	return &s3Blob{
		store:   s,
		tmpFile: f,
		tmpPath: f.Name(),
		hasher:  sha256.New(),
	}, nil
}

func (s *S3Store) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var noSuchKey *types.NoSuchKey
		if errors.As(err, &noSuchKey) {
			return nil, fmt.Errorf("blob %q: %w", key, ErrNotFound)
		}
		return nil, fmt.Errorf("get object %q: %w", key, err)
	}
	return out.Body, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) (bool, error) {
	existed, err := s.Exists(ctx, key)
	if err != nil {
		return false, err
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return existed, fmt.Errorf("delete object %q: %w", key, err)
	}

	return existed, nil
}

func (s *S3Store) Exists(ctx context.Context, key string) (bool, error) {
	if key == "" {
		return false, ErrEmptyKey
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("head object %q: %w", key, err)
	}
	return true, nil
}

// s3Blob stages bytes in a local temp file and uploads on Commit.
type s3Blob struct {
	store *S3Store

	tmpFile *os.File
	tmpPath string

	hasher hash.Hash
	size   int64

	mu     sync.Mutex
	closed bool
	err    error
}

func (b *s3Blob) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return 0, ErrBlobClosed
	}
	if b.err != nil {
		return 0, b.err
	}

	n, err := b.tmpFile.Write(p)
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

func (b *s3Blob) Size() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.size
}

func (b *s3Blob) Hash() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return hex.EncodeToString(b.hasher.Sum(nil))
}

func (b *s3Blob) Commit(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrBlobClosed
	}
	if b.err != nil {
		return b.err
	}
	if key == "" {
		b.err = ErrEmptyKey
		return b.err
	}

	b.closed = true
	defer func() {
		_ = b.tmpFile.Close()
		os.Remove(b.tmpPath)
	}()

	if _, err := b.tmpFile.Seek(0, io.SeekStart); err != nil {
		b.err = err
		return b.err
	}

	if _, err := b.store.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(b.store.bucket),
		Key:           aws.String(key),
		Body:          b.tmpFile,
		ContentLength: aws.Int64(b.size),
	}); err != nil {
		b.err = fmt.Errorf("put object %q: %w", key, err)
		return b.err
	}

	return nil
}

func (b *s3Blob) Discard() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	if err := b.tmpFile.Close(); err != nil && b.err == nil {
		b.err = err
	}
	os.Remove(b.tmpPath)

	return b.err
}
