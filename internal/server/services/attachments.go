package services

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"

	"github.com/dmitrijs2005/uploadsvc/internal/logging"
	"github.com/dmitrijs2005/uploadsvc/internal/server/models"
	"github.com/dmitrijs2005/uploadsvc/internal/server/repositories/repomanager"
)

// Attachable is anything files can be linked to.
type Attachable interface {
	EntityType() string
	EntityID() string
}

// Entity is a plain Attachable.
type Entity struct {
	Type string
	ID   string
}

func (e Entity) EntityType() string { return e.Type }
func (e Entity) EntityID() string   { return e.ID }

var entityTypeRe = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_.\\-]{0,254}$`)

func checkEntity(e Attachable) error {
	if !entityTypeRe.MatchString(e.EntityType()) {
		return validationErr("invalid entity type %q", e.EntityType())
	}
	if e.EntityID() == "" || len(e.EntityID()) > 255 {
		return validationErr("invalid entity id")
	}
	return nil
}

// AttachmentService links files to host entities.
type AttachmentService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

func NewAttachmentService(db *sql.DB, m repomanager.RepositoryManager, log logging.Logger) *AttachmentService {
	return &AttachmentService{db: db, repomanager: m, log: log.With("module", "attachments")}
}

// Attach links fileID to entity. Attaching twice is a no-op.
func (s *AttachmentService) Attach(ctx context.Context, fileID string, entity Attachable) error {
	if err := checkEntity(entity); err != nil {
		return err
	}
	if err := s.repomanager.Attachments(s.db).Attach(ctx, fileID, entity.EntityType(), entity.EntityID()); err != nil {
		return fmt.Errorf("attach: %w", err)
	}
	s.log.Debug(ctx, "file attached", "file_id", fileID, "type", entity.EntityType(), "entity_id", entity.EntityID())
	return nil
}

// Detach removes the link. Detaching an absent link succeeds.
func (s *AttachmentService) Detach(ctx context.Context, fileID string, entity Attachable) error {
	if err := checkEntity(entity); err != nil {
		return err
	}
	if err := s.repomanager.Attachments(s.db).Detach(ctx, fileID, entity.EntityType(), entity.EntityID()); err != nil {
		return fmt.Errorf("detach: %w", err)
	}
	return nil
}

// ListAttachments returns the live files linked to entity.
func (s *AttachmentService) ListAttachments(ctx context.Context, entity Attachable) ([]*models.File, error) {
	if err := checkEntity(entity); err != nil {
		return nil, err
	}
	return s.repomanager.Attachments(s.db).ListFilesForEntity(ctx, entity.EntityType(), entity.EntityID())
}

func (s *AttachmentService) ListAttachmentsForFile(ctx context.Context, fileID string) ([]*models.Fileable, error) {
	return s.repomanager.Attachments(s.db).ListForFile(ctx, fileID)
}
