package attachments

import (
	"context"

	"github.com/dmitrijs2005/uploadsvc/internal/server/models"
)

// Repository stores polymorphic file links. Attach and Detach are idempotent.
type Repository interface {
	Attach(ctx context.Context, fileID, entityType, entityID string) error
	Detach(ctx context.Context, fileID, entityType, entityID string) error
	ListFilesForEntity(ctx context.Context, entityType, entityID string) ([]*models.File, error)
	ListForFile(ctx context.Context, fileID string) ([]*models.Fileable, error)
}
