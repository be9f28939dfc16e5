package files

import (
	"context"

	"github.com/dmitrijs2005/filekeeper/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, record *models.FileRecord) (*models.FileRecord, error)
	GetByName(ctx context.Context, userID, filename string) (*models.FileRecord, error)
	ListByUser(ctx context.Context, userID string, limit int) ([]*models.FileRecord, error)
	Exists(ctx context.Context, userID, filename string) (bool, error)
	Rename(ctx context.Context, userID, oldName, newName string) (*models.FileRecord, error)
	Delete(ctx context.Context, userID, filename string) error
}
