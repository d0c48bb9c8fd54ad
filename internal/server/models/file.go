// Package models defines server-side data models persisted in the database.
package models

import "time"

// Upload session states. A session only moves forward from StatusInitiated.
const (
	StatusInitiated = "initiated"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Visibility values.
const (
	VisibilityPublic  = "public"
	VisibilityPrivate = "private"
)

// DiskS3 is the only storage backend label written by this service.
const DiskS3 = "s3"

// File is one tracked multipart upload and, once completed, the stored object.
type File struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`

	// Name and Path both hold the storage key. Path is the lookup key.
	Name string `json:"name"`
	Path string `json:"path"`
	// OriginalName is the caller's filename with markup characters escaped.
	OriginalName string `json:"original_name"`

	Disk       string `json:"disk"`
	MimeType   string `json:"mime_type"`
	Size       int64  `json:"size"`
	Visibility string `json:"visibility"`
	Status     string `json:"status"`

	// UploadID is the provider multipart-upload handle. It is kept after
	// the session leaves StatusInitiated.
	UploadID string `json:"upload_id"`

	// Metadata is written by the upload service only (e.g. "parts_count").
	Metadata map[string]any `json:"metadata,omitempty"`

	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
}

// IsPublic reports whether anyone, authenticated or not, may read the file.
func (f *File) IsPublic() bool {
	return f.Visibility == VisibilityPublic
}

// CompletedPart is one uploaded part as reported back by the client.
type CompletedPart struct {
	PartNumber int32  `json:"PartNumber" binding:"required,min=1,max=10000"`
	ETag       string `json:"ETag" binding:"required"`
}

// PartURL is a presigned upload-part URL handed to the client.
type PartURL struct {
	PartNumber int32  `json:"partNumber"`
	URL        string `json:"url"`
}
