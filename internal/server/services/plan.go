package services

import (
	"fmt"
	"html"
	"path"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dmitrijs2005/uploadsvc/internal/common"
	"github.com/dmitrijs2005/uploadsvc/internal/shared"
)

const (
	// MaxParts is the provider limit on parts per multipart upload.
	MaxParts = 10000

	defaultDirectory = "uploads"
	maxNameLength    = 255
	maxKeyLength     = 1024
)

// PartCount returns how many parts an upload of size bytes is split into.
// An unknown size (0) still gets a single part.
func PartCount(size, partSize int64) int64 {
	if size <= 0 {
		return 1
	}
	return (size + partSize - 1) / partSize
}

// DisplayName escapes markup-significant characters in a caller filename.
func DisplayName(filename string) string {
	return html.EscapeString(filename)
}

// NewStorageKey builds "dir/unix_token_name". The timestamp plus random token
// make keys unique without coordination.
func NewStorageKey(dir, displayName string, now time.Time) (string, error) {
	token, err := shared.UniqueToken(now)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%d_%s_%s", dir, now.Unix(), token, displayName), nil
}

func validationErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrorValidation, fmt.Sprintf(format, args...))
}

// cleanDirectory trims surrounding slashes and rejects relative segments.
// An empty directory becomes the default one.
func cleanDirectory(dir string) (string, error) {
	dir = strings.Trim(strings.TrimSpace(dir), "/")
	if dir == "" {
		return defaultDirectory, nil
	}
	if utf8.RuneCountInString(dir) > maxNameLength {
		return "", validationErr("directory must not exceed %d characters", maxNameLength)
	}
	if err := checkSegments(dir); err != nil {
		return "", err
	}
	return dir, nil
}

// checkKey validates a caller-chosen destination key.
func checkKey(key string) error {
	if key == "" {
		return validationErr("destination is required")
	}
	if len(key) > maxKeyLength {
		return validationErr("destination must not exceed %d bytes", maxKeyLength)
	}
	if strings.HasPrefix(key, "/") || strings.HasSuffix(key, "/") {
		return validationErr("destination must not start or end with '/'")
	}
	return checkSegments(key)
}

func checkSegments(p string) error {
	for _, seg := range strings.Split(p, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return validationErr("invalid path %q", p)
		}
	}
	if path.Clean(p) != p {
		return validationErr("invalid path %q", p)
	}
	return nil
}
