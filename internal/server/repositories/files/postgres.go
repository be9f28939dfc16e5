// Package files provides a PostgreSQL-backed repository for file metadata.
package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/dmitrijs2005/filekeeper/internal/dbx"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

// PostgresRepository implements file-metadata storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new file record. The UNIQUE (user_id, filename)
// constraint is the authoritative guard against concurrent uploads of the
// same name; its violation is translated to common.ErrorConflict.
func (r *PostgresRepository) Create(ctx context.Context, record *models.FileRecord) (*models.FileRecord, error) {

	query :=
		`INSERT INTO files (user_id, filename, storage_key, size, fingerprint)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at
		 `

	err := r.db.QueryRowContext(ctx, query,
		record.UserID, record.Filename, record.StorageKey, record.Size, record.Fingerprint).
		Scan(&record.ID, &record.CreatedAt)

	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorConflict
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return record, nil
}

// GetByName returns the record for (userID, filename) or common.ErrorNotFound.
func (r *PostgresRepository) GetByName(ctx context.Context, userID, filename string) (*models.FileRecord, error) {
	query :=
		`SELECT id, user_id, filename, storage_key, size, fingerprint, created_at FROM files
		 WHERE user_id = $1 AND filename = $2
		 `

	record := &models.FileRecord{}
	err := r.db.QueryRowContext(ctx, query, userID, filename).
		Scan(&record.ID, &record.UserID, &record.Filename, &record.StorageKey,
			&record.Size, &record.Fingerprint, &record.CreatedAt)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return record, nil
}

// ListByUser returns the user's records ordered by (created_at, id)
// ascending so listings are deterministic across calls. A limit of zero
// or less means no limit.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string, limit int) ([]*models.FileRecord, error) {
	query :=
		`SELECT id, user_id, filename, storage_key, size, fingerprint, created_at FROM files
		 WHERE user_id = $1
		 ORDER BY created_at, id
		 `

	args := []any{userID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.FileRecord
	for rows.Next() {
		var record models.FileRecord
		if err := rows.Scan(&record.ID, &record.UserID, &record.Filename, &record.StorageKey,
			&record.Size, &record.Fingerprint, &record.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, &record)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// Exists reports whether a record for (userID, filename) is present.
func (r *PostgresRepository) Exists(ctx context.Context, userID, filename string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM files WHERE user_id = $1 AND filename = $2)`

	var exists bool
	if err := r.db.QueryRowContext(ctx, query, userID, filename).Scan(&exists); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return exists, nil
}

// Rename updates the filename of (userID, oldName) in place, leaving the
// storage key untouched. A collision with an existing name yields
// common.ErrorConflict; a missing source yields common.ErrorNotFound.
func (r *PostgresRepository) Rename(ctx context.Context, userID, oldName, newName string) (*models.FileRecord, error) {
	query :=
		`UPDATE files SET filename = $3
		 WHERE user_id = $1 AND filename = $2
		 RETURNING id, user_id, filename, storage_key, size, fingerprint, created_at
		 `

	record := &models.FileRecord{}
	err := r.db.QueryRowContext(ctx, query, userID, oldName, newName).
		Scan(&record.ID, &record.UserID, &record.Filename, &record.StorageKey,
			&record.Size, &record.Fingerprint, &record.CreatedAt)

	if err != nil {
		if dbx.IsUniqueViolation(err) {
			return nil, common.ErrorConflict
		}
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return record, nil
}

// Delete removes the record for (userID, filename).
func (r *PostgresRepository) Delete(ctx context.Context, userID, filename string) error {
	query := `DELETE FROM files WHERE user_id = $1 AND filename = $2`

	result, err := r.db.ExecContext(ctx, query, userID, filename)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}

	return nil
}
