package services

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/uploadsvc/internal/common"
	"github.com/dmitrijs2005/uploadsvc/internal/dbx"
	"github.com/dmitrijs2005/uploadsvc/internal/logging"
	"github.com/dmitrijs2005/uploadsvc/internal/server/access"
	"github.com/dmitrijs2005/uploadsvc/internal/server/models"
	"github.com/dmitrijs2005/uploadsvc/internal/server/repositories/repomanager"
)

// ViewerService manages explicit read grants on private files.
type ViewerService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

func NewViewerService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *ViewerService {
	return &ViewerService{db: db, repomanager: m, log: log.With("module", "viewers")}
}

// CanRead reports whether principal may read file.
func (s *ViewerService) CanRead(ctx context.Context, file *models.File, principal string) (bool, error) {
	return access.CanRead(ctx, s.repomanager.Viewers(s.db), file, principal)
}

func (s *ViewerService) authorize(file *models.File, actor string) error {
	if actor == "" {
		return common.ErrorUnauthorized
	}
	if !access.CanManage(file, actor) {
		return common.ErrorForbidden
	}
	return nil
}

// AddViewer grants viewerID read access to file. Granting twice is a no-op.
func (s *ViewerService) AddViewer(ctx context.Context, file *models.File, actor, viewerID string) error {
	if err := s.authorize(file, actor); err != nil {
		return err
	}
	if viewerID == "" {
		return validationErr("user id is required")
	}
	if viewerID == file.UserID {
		return validationErr("owner already has access")
	}

	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		ok, err := s.repomanager.Users(tx).Exists(ctx, viewerID)
		if err != nil {
			return err
		}
		if !ok {
			return validationErr("user %q does not exist", viewerID)
		}
		return s.repomanager.Viewers(tx).Add(ctx, file.ID, viewerID)
	})
	if err != nil {
		return fmt.Errorf("add viewer: %w", err)
	}

	s.log.Info(ctx, "viewer added", "file_id", file.ID, "user_id", viewerID)
	return nil
}

// RemoveViewer revokes a grant. Removing an absent grant succeeds.
func (s *ViewerService) RemoveViewer(ctx context.Context, file *models.File, actor, viewerID string) error {
	if err := s.authorize(file, actor); err != nil {
		return err
	}
	if viewerID == "" {
		return validationErr("user id is required")
	}
	if err := s.repomanager.Viewers(s.db).Remove(ctx, file.ID, viewerID); err != nil {
		return fmt.Errorf("remove viewer: %w", err)
	}
	s.log.Info(ctx, "viewer removed", "file_id", file.ID, "user_id", viewerID)
	return nil
}

func (s *ViewerService) ListViewers(ctx context.Context, file *models.File, actor string) ([]*models.FileViewer, error) {
	if err := s.authorize(file, actor); err != nil {
		return nil, err
	}
	return s.repomanager.Viewers(s.db).List(ctx, file.ID)
}
