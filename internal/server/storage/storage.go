// Package storage adapts an S3-compatible object store to the operations the
// upload service needs: multipart lifecycle, presigned URLs and a few object
// management calls.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/smithy-go"
	"github.com/dmitrijs2005/uploadsvc/internal/common"
	"github.com/dmitrijs2005/uploadsvc/internal/server/models"
)

// ObjectStore is the provider surface consumed by the upload service.
type ObjectStore interface {
	CreateMultipartUpload(ctx context.Context, key, contentType string) (string, error)
	PresignUploadPart(ctx context.Context, key, uploadID string, partNumber int32, expires time.Duration) (string, error)
	CompleteMultipartUpload(ctx context.Context, key, uploadID string, parts []models.CompletedPart) error
	AbortMultipartUpload(ctx context.Context, key, uploadID string) error
	PresignGetObject(ctx context.Context, key, disposition string, expires time.Duration) (string, error)
	DeleteObject(ctx context.Context, key string) error
	HeadObject(ctx context.Context, key string) (*ObjectInfo, error)
	CopyObject(ctx context.Context, srcKey, dstKey string) error
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
}

// ObjectInfo describes a stored object.
type ObjectInfo struct {
	Key          string    `json:"key"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// OperationError records which provider call failed. Code is the provider
// error code when the provider returned one.
type OperationError struct {
	Op     string
	Bucket string
	Key    string
	Code   string
	Err    error
}

func (e *OperationError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("s3 %s %s/%s: %s: %v", e.Op, e.Bucket, e.Key, e.Code, e.Err)
	}
	return fmt.Sprintf("s3 %s %s/%s: %v", e.Op, e.Bucket, e.Key, e.Err)
}

func (e *OperationError) Unwrap() error { return e.Err }

// Is makes a missing object match common.ErrorNotFound.
func (e *OperationError) Is(target error) bool {
	if target != common.ErrorNotFound {
		return false
	}
	switch e.Code {
	case "NotFound", "NoSuchKey", "NoSuchUpload":
		return true
	}
	return false
}

func (s *S3Store) wrap(op, key string, err error) error {
	if err == nil {
		return nil
	}
	opErr := &OperationError{Op: op, Bucket: s.bucket, Key: key, Err: err}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		opErr.Code = apiErr.ErrorCode()
	}
	return opErr
}
