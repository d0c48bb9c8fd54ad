package viewers

import (
	"context"

	"github.com/dmitrijs2005/uploadsvc/internal/server/models"
)

// Repository stores viewer grants. Add and Remove are idempotent.
type Repository interface {
	Add(ctx context.Context, fileID, userID string) error
	Remove(ctx context.Context, fileID, userID string) error
	Exists(ctx context.Context, fileID, userID string) (bool, error)
	List(ctx context.Context, fileID string) ([]*models.FileViewer, error)
}
