// Package services contains server-side business logic. This file implements
// UploadService, which drives the multipart upload lifecycle against the
// object store and keeps upload sessions in the database in step with it.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/uploadsvc/internal/common"
	"github.com/dmitrijs2005/uploadsvc/internal/logging"
	"github.com/dmitrijs2005/uploadsvc/internal/retryx"
	"github.com/dmitrijs2005/uploadsvc/internal/server/config"
	"github.com/dmitrijs2005/uploadsvc/internal/server/metrics"
	"github.com/dmitrijs2005/uploadsvc/internal/server/models"
	"github.com/dmitrijs2005/uploadsvc/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/uploadsvc/internal/server/storage"
	"golang.org/x/sync/errgroup"
)

// timeNow is a seam for tests.
var timeNow = time.Now

// InitiateRequest is the caller input for starting an upload.
type InitiateRequest struct {
	Filename    string
	ContentType string
	Size        int64
	Directory   string
	Visibility  string
}

// InitiateResult carries everything the client needs to upload the parts.
type InitiateResult struct {
	FileID   string           `json:"file_id"`
	UploadID string           `json:"uploadId"`
	Key      string           `json:"key"`
	Parts    []models.PartURL `json:"parts"`
}

// UploadService orchestrates multipart uploads.
type UploadService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       storage.ObjectStore
	config      *config.Config
	retry       retryx.Policy
	log         logging.Logger
	observer    metrics.UploadObserver
}

// NewUploadService wires an UploadService. The retry budget, part size and
// URL lifetimes are taken from cfg.
func NewUploadService(db *sql.DB, m repomanager.RepositoryManager, store storage.ObjectStore,
	cfg *config.Config, log logging.Logger, observer metrics.UploadObserver) *UploadService {
	return &UploadService{
		db:          db,
		repomanager: m,
		store:       store,
		config:      cfg,
		retry:       retryx.Policy{Attempts: cfg.MaxRetries, Delay: cfg.RetryDelay},
		log:         log.With("module", "upload"),
		observer:    observer,
	}
}

// callProvider runs fn under the retry policy and records the outcome.
func (s *UploadService) callProvider(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	err := retryx.Do(ctx, s.retry, fn)
	s.observer.ProviderCall(op, err, time.Since(start))
	return err
}

// logProviderError logs err with the provider context an operator needs.
func (s *UploadService) logProviderError(ctx context.Context, msg string, err error, args ...any) {
	var opErr *storage.OperationError
	if errors.As(err, &opErr) {
		args = append(args, "op", opErr.Op, "bucket", opErr.Bucket, "key", opErr.Key, "code", opErr.Code)
	}
	args = append(args, "error", err)
	s.log.Error(ctx, msg, args...)
}

func (s *UploadService) validateInitiate(req *InitiateRequest, principal string) (string, int64, error) {
	if principal == "" {
		return "", 0, common.ErrorUnauthorized
	}
	if req.Filename == "" {
		return "", 0, validationErr("filename is required")
	}
	if utf8.RuneCountInString(req.Filename) > maxNameLength {
		return "", 0, validationErr("filename must not exceed %d characters", maxNameLength)
	}
	if req.ContentType == "" {
		return "", 0, validationErr("content type is required")
	}
	if req.Size < 0 {
		return "", 0, validationErr("size must not be negative")
	}
	switch req.Visibility {
	case "":
		req.Visibility = models.VisibilityPrivate
	case models.VisibilityPublic, models.VisibilityPrivate:
	default:
		return "", 0, validationErr("visibility must be public or private")
	}

	dir, err := cleanDirectory(req.Directory)
	if err != nil {
		return "", 0, err
	}

	total := PartCount(req.Size, s.config.PartSize)
	if total > MaxParts {
		return "", 0, validationErr("file needs %d parts, at most %d are allowed", total, MaxParts)
	}
	return dir, total, nil
}

// Initiate starts a multipart upload, presigns one URL per part and records
// the session. Either a fully formed initiated session exists afterwards or
// nothing does: when a step after the provider call fails, the provider upload
// is aborted.
func (s *UploadService) Initiate(ctx context.Context, req InitiateRequest, principal string) (*InitiateResult, error) {
	dir, totalParts, err := s.validateInitiate(&req, principal)
	if err != nil {
		return nil, err
	}

	displayName := DisplayName(req.Filename)
	key, err := NewStorageKey(dir, displayName, timeNow())
	if err != nil {
		return nil, fmt.Errorf("storage key: %w", err)
	}
	if len(key) > maxKeyLength {
		return nil, validationErr("storage key must not exceed %d bytes, shorten the filename or directory", maxKeyLength)
	}

	var uploadID string
	err = s.callProvider(ctx, "CreateMultipartUpload", func(ctx context.Context) error {
		id, err := s.store.CreateMultipartUpload(ctx, key, req.ContentType)
		uploadID = id
		return err
	})
	if err != nil {
		s.logProviderError(ctx, "create multipart upload failed", err)
		return nil, s.initiationFailed(err)
	}

	parts, err := s.presignParts(ctx, key, uploadID, totalParts)
	if err != nil {
		s.logProviderError(ctx, "presign upload part failed", err)
		s.abortQuietly(ctx, key, uploadID)
		return nil, s.initiationFailed(err)
	}

	file := &models.File{
		UserID:       principal,
		Name:         key,
		OriginalName: displayName,
		Path:         key,
		Disk:         models.DiskS3,
		MimeType:     req.ContentType,
		Size:         req.Size,
		Visibility:   req.Visibility,
		Status:       models.StatusInitiated,
		UploadID:     uploadID,
	}
	if err := s.repomanager.Files(s.db).Create(ctx, file); err != nil {
		s.log.Error(ctx, "store upload session failed", "key", key, "error", err)
		s.abortQuietly(ctx, key, uploadID)
		return nil, s.initiationFailed(err)
	}

	s.observer.UploadEvent(metrics.EventInitiated)
	s.observer.PartsPlanned(len(parts))
	s.log.Info(ctx, "upload initiated", "file_id", file.ID, "key", key, "parts", len(parts))

	return &InitiateResult{
		FileID:   file.ID,
		UploadID: uploadID,
		Key:      key,
		Parts:    parts,
	}, nil
}

func (s *UploadService) initiationFailed(err error) error {
	s.observer.UploadEvent(metrics.EventInitiationFailed)
	return common.NewOperationError("initiate", "upload initiation failed",
		fmt.Errorf("%w: %w", ErrUploadInitiationFailed, err))
}

// presignParts presigns parts 1..total concurrently. Results keep part order.
func (s *UploadService) presignParts(ctx context.Context, key, uploadID string, total int64) ([]models.PartURL, error) {
	parts := make([]models.PartURL, total)

	limit := s.config.PresignConcurrency
	if limit < 1 {
		limit = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range parts {
		n := int32(i + 1)
		g.Go(func() error {
			url, err := s.store.PresignUploadPart(gctx, key, uploadID, n, s.config.PartURLExpiry)
			if err != nil {
				return err
			}
			parts[i] = models.PartURL{PartNumber: n, URL: url}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return parts, nil
}

// abortQuietly releases a provider upload that will never be completed.
// It runs even when ctx is already cancelled.
func (s *UploadService) abortQuietly(ctx context.Context, key, uploadID string) {
	ctx = context.WithoutCancel(ctx)
	err := s.callProvider(ctx, "AbortMultipartUpload", func(ctx context.Context) error {
		return s.store.AbortMultipartUpload(ctx, key, uploadID)
	})
	if err != nil {
		s.logProviderError(ctx, "abort multipart upload failed", err, "upload_id", uploadID)
	}
}

func validateParts(parts []models.CompletedPart) error {
	if len(parts) == 0 {
		return validationErr("at least one part is required")
	}
	for i, p := range parts {
		if p.PartNumber < 1 || p.PartNumber > MaxParts {
			return validationErr("parts[%d]: part number must be between 1 and %d", i, MaxParts)
		}
		if p.ETag == "" {
			return validationErr("parts[%d]: ETag is required", i)
		}
	}
	return nil
}

// Complete finalizes the initiated upload stored at key with the caller's
// ordered parts. Only a session that is still initiated qualifies; completed
// and failed ones yield common.ErrorNotFound. When the provider finalize
// fails, the session is marked failed before the error is returned.
func (s *UploadService) Complete(ctx context.Context, key string, parts []models.CompletedPart) (*models.File, error) {
	if key == "" {
		return nil, validationErr("path is required")
	}
	if err := validateParts(parts); err != nil {
		return nil, err
	}

	repo := s.repomanager.Files(s.db)

	file, err := repo.GetInitiatedByPath(ctx, key)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("no initiated upload at %q: %w", key, common.ErrorNotFound)
		}
		return nil, err
	}

	err = s.callProvider(ctx, "CompleteMultipartUpload", func(ctx context.Context) error {
		return s.store.CompleteMultipartUpload(ctx, key, file.UploadID, parts)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// The provider outcome is unknown; the session stays initiated
			// so the client can retry.
			return nil, err
		}
		s.logProviderError(ctx, "complete multipart upload failed", err, "file_id", file.ID)

		if markErr := repo.MarkFailed(context.WithoutCancel(ctx), file.ID, nil); markErr != nil {
			s.log.Error(ctx, "mark upload failed", "file_id", file.ID, "error", markErr)
		}
		s.observer.UploadEvent(metrics.EventFailed)

		return nil, common.NewOperationError("complete", "upload completion failed",
			fmt.Errorf("%w: %w", ErrUploadCompletionFailed, err))
	}

	// The object now exists at the provider, so the row must follow even if
	// the caller went away.
	updated, err := repo.MarkCompleted(context.WithoutCancel(ctx), file.ID, map[string]any{"parts_count": len(parts)})
	if err != nil {
		s.log.Error(ctx, "mark upload completed", "file_id", file.ID, "error", err)
		return nil, common.NewOperationError("complete", "upload completion failed", err)
	}

	s.observer.UploadEvent(metrics.EventCompleted)
	s.log.Info(ctx, "upload completed", "file_id", file.ID, "key", key, "parts", len(parts))
	return updated, nil
}

// Abort cancels a still-initiated upload at the provider and marks the
// session failed. An upload the provider no longer knows is treated as
// already aborted.
func (s *UploadService) Abort(ctx context.Context, key string) error {
	if key == "" {
		return validationErr("path is required")
	}

	repo := s.repomanager.Files(s.db)

	file, err := repo.GetInitiatedByPath(ctx, key)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("no initiated upload at %q: %w", key, common.ErrorNotFound)
		}
		return err
	}

	err = s.callProvider(ctx, "AbortMultipartUpload", func(ctx context.Context) error {
		return s.store.AbortMultipartUpload(ctx, key, file.UploadID)
	})
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		s.logProviderError(ctx, "abort multipart upload failed", err, "file_id", file.ID)
		return common.NewOperationError("abort", "upload abort failed", err)
	}

	if err := repo.MarkFailed(context.WithoutCancel(ctx), file.ID, map[string]any{"aborted": true}); err != nil {
		s.log.Error(ctx, "mark upload aborted", "file_id", file.ID, "error", err)
		return common.NewOperationError("abort", "upload abort failed", err)
	}

	s.observer.UploadEvent(metrics.EventAborted)
	s.log.Info(ctx, "upload aborted", "file_id", file.ID, "key", key)
	return nil
}

// GenerateDownloadURL returns a presigned GET URL that downloads file under
// its display name. A non-positive expiry uses the configured default.
// Failures are logged and yield an empty string.
func (s *UploadService) GenerateDownloadURL(ctx context.Context, file *models.File, expiry time.Duration) string {
	if expiry <= 0 {
		expiry = s.config.DownloadURLExpiry
	}
	disposition := fmt.Sprintf(`attachment; filename="%s"`, file.OriginalName)

	url, err := s.store.PresignGetObject(ctx, file.Path, disposition, expiry)
	if err != nil {
		s.logProviderError(ctx, "presign download failed", err, "file_id", file.ID)
		return ""
	}
	return url
}

// DeleteFile removes the remote object and then soft-deletes the session.
// When the remote delete fails the row is left untouched, so the call can be
// repeated.
func (s *UploadService) DeleteFile(ctx context.Context, file *models.File) bool {
	err := s.callProvider(ctx, "DeleteObject", func(ctx context.Context) error {
		return s.store.DeleteObject(ctx, file.Path)
	})
	if err != nil {
		s.logProviderError(ctx, "delete object failed", err, "file_id", file.ID)
		return false
	}

	if err := s.repomanager.Files(s.db).SoftDelete(ctx, file.ID); err != nil {
		s.log.Error(ctx, "soft delete failed", "file_id", file.ID, "error", err)
		return false
	}

	s.observer.UploadEvent(metrics.EventDeleted)
	s.log.Info(ctx, "file deleted", "file_id", file.ID, "key", file.Path)
	return true
}
