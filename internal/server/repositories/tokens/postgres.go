// Package tokens provides a PostgreSQL-backed repository for session tokens.
package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filekeeper/internal/common"
	"github.com/dmitrijs2005/filekeeper/internal/dbx"
	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

// PostgresRepository implements token storage over a dbx.DBTX
// (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts a new active token for userID.
func (r *PostgresRepository) Create(ctx context.Context, userID string, value string, issuedAt, expiresAt time.Time) error {
	query :=
		`INSERT INTO tokens (user_id, value, issued_at, expires_at, active)
		 VALUES ($1, $2, $3, $4, TRUE)
		 `

	if _, err := r.db.ExecContext(ctx, query, userID, value, issuedAt, expiresAt); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// FindActive returns the token row for value, filtered to active = TRUE.
// Inactive and unknown tokens both yield common.ErrorNotFound; expiry is
// NOT checked here so the caller can deactivate stale rows it discovers.
func (r *PostgresRepository) FindActive(ctx context.Context, value string) (*models.Token, error) {
	query :=
		`SELECT id, user_id, value, issued_at, expires_at, active FROM tokens
		 WHERE value = $1 AND active = TRUE
		 `

	token := &models.Token{}
	err := r.db.QueryRowContext(ctx, query, value).
		Scan(&token.ID, &token.UserID, &token.Value, &token.IssuedAt, &token.ExpiresAt, &token.Active)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return token, nil
}

// Deactivate sets active = FALSE for the token with the given value.
// Deactivating an unknown or already-inactive token is not an error, so
// the operation is idempotent and safe to race (the row converges to
// inactive whichever writer wins).
func (r *PostgresRepository) Deactivate(ctx context.Context, value string) error {
	query := `UPDATE tokens SET active = FALSE WHERE value = $1`

	if _, err := r.db.ExecContext(ctx, query, value); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// DeactivateAllForUser deactivates every token owned by userID.
// Used on account-level security events such as a password change.
func (r *PostgresRepository) DeactivateAllForUser(ctx context.Context, userID string) error {
	query := `UPDATE tokens SET active = FALSE WHERE user_id = $1`

	if _, err := r.db.ExecContext(ctx, query, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
