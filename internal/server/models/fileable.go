package models

import "time"

// Fileable links a file to an arbitrary owning entity such as a post or a
// profile, identified by (FileableType, FileableID).
type Fileable struct {
	FileID       string    `json:"file_id"`
	FileableType string    `json:"fileable_type"`
	FileableID   string    `json:"fileable_id"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}
