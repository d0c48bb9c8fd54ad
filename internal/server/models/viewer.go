package models

import "time"

// FileViewer grants UserID read access to a private file.
type FileViewer struct {
	FileID    string    `json:"file_id"`
	UserID    string    `json:"user_id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
