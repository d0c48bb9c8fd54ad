package files

import (
	"context"

	"github.com/dmitrijs2005/uploadsvc/internal/server/models"
)

// Repository persists upload sessions. Soft-deleted rows are invisible to
// every method.
type Repository interface {
	Create(ctx context.Context, file *models.File) error
	GetByID(ctx context.Context, id string) (*models.File, error)
	GetInitiatedByPath(ctx context.Context, path string) (*models.File, error)
	MarkCompleted(ctx context.Context, id string, metadata map[string]any) (*models.File, error)
	MarkFailed(ctx context.Context, id string, metadata map[string]any) error
	SoftDelete(ctx context.Context, id string) error
	UpdatePath(ctx context.Context, id, path string) error
	ListByOwner(ctx context.Context, userID, pathPrefix string) ([]*models.File, error)
}
