package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/dmitrijs2005/filekeeper/internal/logging"
	"github.com/dmitrijs2005/filekeeper/internal/server/blobstore"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
	"github.com/dmitrijs2005/filekeeper/internal/server/repositories/repomanager"
)

// GetRandomStorageKey returns a fresh storage key for an uploaded blob.
// Keys are date-prefixed so backend listings group by upload day.
func GetRandomStorageKey() string {
	d := time.Now()
	return fmt.Sprintf("users/%d/%d/%d/%v", d.Year(), d.Month(), d.Day(), uuid.New())
}

// FileService implements per-user file storage: each user owns a flat
// namespace of filenames, each mapped to exactly one blob. Metadata lives
// in PostgreSQL, content in a blobstore.Store; a file record is only
// created after its blob has been durably committed.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       blobstore.Store
	logger      logging.Logger
}

// NewFileService constructs a FileService over the given blob store.
func NewFileService(db *sql.DB, m repomanager.RepositoryManager, store blobstore.Store, logger logging.Logger) *FileService {
	return &FileService{
		db:          db,
		repomanager: m,
		store:       store,
		logger:      logger,
	}
}

// validateFilename rejects names that are empty or could escape a flat
// per-user namespace when echoed back to clients.
func validateFilename(name string) error {
	if name == "" {
		return common.ErrorInvalidInput
	}
	if strings.ContainsAny(name, "/\\\x00") || strings.Contains(name, "..") {
		return common.ErrorInvalidInput
	}
	return nil
}

// effectiveFilename picks the name a new file is stored under: the
// explicitly requested name wins over the name declared by the transport
// (e.g. the multipart part filename).
func effectiveFilename(declared, requested string) (string, error) {
	name := requested
	if name == "" {
		name = declared
	}
	if err := validateFilename(name); err != nil {
		return "", err
	}
	return name, nil
}

// Upload streams content into the blob store and records the file under
// the resolved name. Empty content and duplicate names are rejected; the
// blob is committed before the metadata row is written, and rolled back
// if a concurrent upload wins the name.
func (s *FileService) Upload(ctx context.Context, userID string, content io.Reader, declaredName, requestedName string) (*models.FileRecord, error) {
	filename, err := effectiveFilename(declaredName, requestedName)
	if err != nil {
		return nil, err
	}

	repo := s.repomanager.Files(s.db)

	// Fast path; the unique constraint still catches races.
	exists, err := repo.Exists(ctx, userID, filename)
	if err != nil {
		return nil, fmt.Errorf("error checking filename: %v", err)
	}
	if exists {
		return nil, common.ErrorConflict
	}

	blob, err := s.store.NewBlob()
	if err != nil {
		return nil, fmt.Errorf("error staging blob: %v", err)
	}
	defer blob.Discard()

	if _, err := io.Copy(blob, content); err != nil {
		return nil, fmt.Errorf("error writing blob: %v", err)
	}
	if blob.Size() == 0 {
		return nil, common.ErrorInvalidInput
	}

	key := GetRandomStorageKey()
	if err := blob.Commit(ctx, key); err != nil {
		return nil, fmt.Errorf("error committing blob: %v", err)
	}

	record, err := repo.Create(ctx, &models.FileRecord{
		UserID:      userID,
		Filename:    filename,
		StorageKey:  key,
		Size:        blob.Size(),
		Fingerprint: blob.Hash(),
	})
	if err != nil {
		// The blob is orphaned if the row cannot be written.
		if _, derr := s.store.Delete(ctx, key); derr != nil {
			s.logger.Error(ctx, "error removing blob after failed create", "key", key, "error", derr)
		}
		if errors.Is(err, common.ErrorConflict) {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("error creating file record: %v", err)
	}

	return record, nil
}

// Download returns the file's metadata and a reader over its content.
// The caller owns closing the reader.
func (s *FileService) Download(ctx context.Context, userID, filename string) (*models.FileRecord, io.ReadCloser, error) {
	if err := validateFilename(filename); err != nil {
		return nil, nil, err
	}

	repo := s.repomanager.Files(s.db)
	record, err := repo.GetByName(ctx, userID, filename)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, common.ErrorNotFound
		}
		return nil, nil, fmt.Errorf("error reading file record: %v", err)
	}

	rc, err := s.store.Open(ctx, record.StorageKey)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			// A record without its blob means the two stores diverged.
			s.logger.Error(ctx, "file record has no blob", "user_id", userID, "filename", filename, "key", record.StorageKey)
			return nil, nil, common.ErrorInternal
		}
		return nil, nil, fmt.Errorf("error opening blob: %v", err)
	}

	return record, rc, nil
}

// List returns the user's files ordered by upload time. A positive limit
// caps the result; zero means no cap.
func (s *FileService) List(ctx context.Context, userID string, limit int) ([]models.FileInfo, error) {
	if limit < 0 {
		return nil, common.ErrorInvalidInput
	}

	repo := s.repomanager.Files(s.db)
	records, err := repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("error listing files: %v", err)
	}

	infos := make([]models.FileInfo, 0, len(records))
	for _, r := range records {
		infos = append(infos, models.FileInfo{Filename: r.Filename, Size: r.Size})
	}
	return infos, nil
}

// Rename changes the user-visible name of a file. The blob and its
// storage key are untouched.
func (s *FileService) Rename(ctx context.Context, userID, oldName, newName string) (*models.FileRecord, error) {
	if err := validateFilename(oldName); err != nil {
		return nil, err
	}
	if err := validateFilename(newName); err != nil {
		return nil, err
	}

	repo := s.repomanager.Files(s.db)
	record, err := repo.Rename(ctx, userID, oldName, newName)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrorConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("error renaming file: %v", err)
	}
	return record, nil
}

// Delete removes the blob first, then the metadata row, so a crash in
// between leaves a missing blob (detected on download) rather than an
// unreclaimable one.
func (s *FileService) Delete(ctx context.Context, userID, filename string) error {
	if err := validateFilename(filename); err != nil {
		return err
	}

	repo := s.repomanager.Files(s.db)
	record, err := repo.GetByName(ctx, userID, filename)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("error reading file record: %v", err)
	}

	existed, err := s.store.Delete(ctx, record.StorageKey)
	if err != nil {
		return fmt.Errorf("error deleting blob: %v", err)
	}
	if !existed {
		s.logger.Error(ctx, "file record had no blob", "user_id", userID, "filename", filename, "key", record.StorageKey)
	}

	if err := repo.Delete(ctx, userID, filename); err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return fmt.Errorf("error deleting file record: %v", err)
	}
	return nil
}
