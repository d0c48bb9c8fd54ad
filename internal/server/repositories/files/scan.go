package files

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/uploadsvc/internal/server/models"
)

var columns = []string{
	"id::text", "user_id", "name", "original_name", "path", "disk", "mime_type", "size",
	"visibility", "status", "upload_id", "metadata", "created_at", "updated_at", "deleted_at",
}

// Columns returns the select list matching ScanFile, optionally qualified
// with a table alias.
func Columns(alias string) string {
	if alias == "" {
		return strings.Join(columns, ", ")
	}
	qualified := make([]string, len(columns))
	for i, c := range columns {
		qualified[i] = alias + "." + c
	}
	return strings.Join(qualified, ", ")
}

// Scanner is implemented by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanFile reads one row selected with Columns.
func ScanFile(s Scanner) (*models.File, error) {
	var (
		f         models.File
		metadata  []byte
		deletedAt sql.NullTime
	)
	err := s.Scan(&f.ID, &f.UserID, &f.Name, &f.OriginalName, &f.Path, &f.Disk, &f.MimeType, &f.Size,
		&f.Visibility, &f.Status, &f.UploadID, &metadata, &f.CreatedAt, &f.UpdatedAt, &deletedAt)
	if err != nil {
		return nil, err
	}
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &f.Metadata); err != nil {
			return nil, fmt.Errorf("bad metadata for file %s: %w", f.ID, err)
		}
	}
	if deletedAt.Valid {
		t := deletedAt.Time
		f.DeletedAt = &t
	}
	return &f, nil
}

func encodeMetadata(m map[string]any) (string, error) {
	if m == nil {
		return "{}", nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode metadata: %w", err)
	}
	return string(b), nil
}
