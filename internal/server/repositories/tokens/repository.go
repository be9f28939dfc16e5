package tokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, userID string, value string, issuedAt, expiresAt time.Time) error
	FindActive(ctx context.Context, value string) (*models.Token, error)
	Deactivate(ctx context.Context, value string) error
	DeactivateAllForUser(ctx context.Context, userID string) error
}
