package services

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/dmitrijs2005/uploadsvc/internal/common"
	"github.com/dmitrijs2005/uploadsvc/internal/server/models"
	"github.com/dmitrijs2005/uploadsvc/internal/server/storage"
)

// GetFile loads a live upload session by id.
func (s *UploadService) GetFile(ctx context.Context, id string) (*models.File, error) {
	return s.repomanager.Files(s.db).GetByID(ctx, id)
}

// GetFileMetadata returns what the provider holds for file.
func (s *UploadService) GetFileMetadata(ctx context.Context, file *models.File) (*storage.ObjectInfo, error) {
	var info *storage.ObjectInfo
	err := s.callProvider(ctx, "HeadObject", func(ctx context.Context) error {
		var err error
		info, err = s.store.HeadObject(ctx, file.Path)
		return err
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("object %q: %w", file.Path, common.ErrorNotFound)
		}
		s.logProviderError(ctx, "head object failed", err, "file_id", file.ID)
		return nil, common.NewOperationError("metadata", "file metadata unavailable", err)
	}
	return info, nil
}

// ListFiles returns principal's completed files. A non-empty directory
// restricts the result to keys below it.
func (s *UploadService) ListFiles(ctx context.Context, principal, directory string) ([]*models.File, error) {
	if principal == "" {
		return nil, common.ErrorUnauthorized
	}
	prefix, err := listPrefix(directory)
	if err != nil {
		return nil, err
	}
	return s.repomanager.Files(s.db).ListByOwner(ctx, principal, prefix)
}

// ListFileObjects returns provider object info for principal's completed
// files below directory. Objects without a matching session of the
// principal are left out.
func (s *UploadService) ListFileObjects(ctx context.Context, principal, directory string) ([]storage.ObjectInfo, error) {
	if principal == "" {
		return nil, common.ErrorUnauthorized
	}
	prefix, err := listPrefix(directory)
	if err != nil {
		return nil, err
	}
	if prefix == "" {
		return nil, validationErr("directory is required")
	}

	owned, err := s.repomanager.Files(s.db).ListByOwner(ctx, principal, prefix)
	if err != nil {
		return nil, err
	}
	if len(owned) == 0 {
		return []storage.ObjectInfo{}, nil
	}
	keys := make(map[string]struct{}, len(owned))
	for _, f := range owned {
		keys[f.Path] = struct{}{}
	}

	var objects []storage.ObjectInfo
	err = s.callProvider(ctx, "ListObjectsV2", func(ctx context.Context) error {
		var err error
		objects, err = s.store.ListObjects(ctx, prefix)
		return err
	})
	if err != nil {
		s.logProviderError(ctx, "list objects failed", err)
		return nil, common.NewOperationError("list", "listing objects failed", err)
	}

	res := make([]storage.ObjectInfo, 0, len(owned))
	for _, o := range objects {
		if _, ok := keys[o.Key]; ok {
			res = append(res, o)
		}
	}
	return res, nil
}

func listPrefix(directory string) (string, error) {
	if directory == "" {
		return "", nil
	}
	dir, err := cleanDirectory(directory)
	if err != nil {
		return "", err
	}
	return dir + "/", nil
}

// CopyFile copies a completed file to destKey and records the copy as a new
// completed session owned by principal. An existing object at destKey is
// never overwritten.
func (s *UploadService) CopyFile(ctx context.Context, file *models.File, destKey, principal string) (*models.File, error) {
	if principal == "" {
		return nil, common.ErrorUnauthorized
	}
	if file.Status != models.StatusCompleted {
		return nil, validationErr("only completed files can be copied")
	}
	if err := checkKey(destKey); err != nil {
		return nil, err
	}
	if destKey == file.Path {
		return nil, validationErr("destination equals source")
	}

	if err := s.copyObject(ctx, file, destKey); err != nil {
		return nil, err
	}

	cp := &models.File{
		UserID:       principal,
		Name:         destKey,
		Path:         destKey,
		OriginalName: file.OriginalName,
		Disk:         file.Disk,
		MimeType:     file.MimeType,
		Size:         file.Size,
		Visibility:   file.Visibility,
		Status:       models.StatusCompleted,
		Metadata:     map[string]any{"copied_from": file.ID},
	}
	if err := s.repomanager.Files(s.db).Create(ctx, cp); err != nil {
		s.log.Error(ctx, "store copied file failed", "file_id", file.ID, "dest", destKey, "error", err)
		s.deleteQuietly(ctx, destKey)
		if errors.Is(err, common.ErrorConflict) {
			return nil, fmt.Errorf("destination %q: %w", destKey, common.ErrorConflict)
		}
		return nil, common.NewOperationError("copy", "file copy failed", err)
	}

	s.log.Info(ctx, "file copied", "file_id", file.ID, "copy_id", cp.ID, "dest", destKey)
	return cp, nil
}

// MoveFile moves a completed file to destKey, keeping its id.
func (s *UploadService) MoveFile(ctx context.Context, file *models.File, destKey string) (*models.File, error) {
	if file.Status != models.StatusCompleted {
		return nil, validationErr("only completed files can be moved")
	}
	if err := checkKey(destKey); err != nil {
		return nil, err
	}
	if destKey == file.Path {
		return file, nil
	}

	if err := s.copyObject(ctx, file, destKey); err != nil {
		return nil, err
	}

	if err := s.repomanager.Files(s.db).UpdatePath(ctx, file.ID, destKey); err != nil {
		s.log.Error(ctx, "update moved file failed", "file_id", file.ID, "dest", destKey, "error", err)
		s.deleteQuietly(ctx, destKey)
		if errors.Is(err, common.ErrorConflict) || errors.Is(err, common.ErrorNotFound) {
			return nil, fmt.Errorf("move %q: %w", destKey, err)
		}
		return nil, common.NewOperationError("move", "file move failed", err)
	}

	// The row already points at the copy; a leftover source object is only
	// wasted space.
	s.deleteQuietly(ctx, file.Path)

	moved := *file
	moved.Path = destKey
	moved.Name = destKey
	s.log.Info(ctx, "file moved", "file_id", file.ID, "from", file.Path, "to", destKey)
	return &moved, nil
}

func (s *UploadService) copyObject(ctx context.Context, file *models.File, destKey string) error {
	_, err := s.store.HeadObject(ctx, destKey)
	switch {
	case err == nil:
		return fmt.Errorf("destination %q: %w", destKey, common.ErrorConflict)
	case !errors.Is(err, common.ErrorNotFound):
		s.logProviderError(ctx, "head destination failed", err, "file_id", file.ID)
		return common.NewOperationError("copy", "file copy failed", err)
	}

	err = s.callProvider(ctx, "CopyObject", func(ctx context.Context) error {
		return s.store.CopyObject(ctx, file.Path, destKey)
	})
	if err != nil {
		s.logProviderError(ctx, "copy object failed", err, "file_id", file.ID, "dest", destKey)
		if errors.Is(err, common.ErrorNotFound) {
			return fmt.Errorf("source %q: %w", path.Base(file.Path), common.ErrorNotFound)
		}
		return common.NewOperationError("copy", "file copy failed", err)
	}
	return nil
}

func (s *UploadService) deleteQuietly(ctx context.Context, key string) {
	ctx = context.WithoutCancel(ctx)
	err := s.callProvider(ctx, "DeleteObject", func(ctx context.Context) error {
		return s.store.DeleteObject(ctx, key)
	})
	if err != nil {
		s.logProviderError(ctx, "delete object failed", err)
	}
}
