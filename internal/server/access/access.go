// Package access decides who may read or manage a file. A principal is a
// user id; the empty string means an anonymous caller.
package access

import (
	"context"

	"github.com/dmitrijs2005/uploadsvc/internal/server/models"
)

// GrantChecker reports whether an explicit viewer grant exists.
// viewers.Repository satisfies it.
type GrantChecker interface {
	Exists(ctx context.Context, fileID, userID string) (bool, error)
}

// CanRead reports whether principal may read file: public files are
// readable by anyone, private ones by the owner and granted viewers.
func CanRead(ctx context.Context, grants GrantChecker, file *models.File, principal string) (bool, error) {
	if file.IsPublic() {
		return true, nil
	}
	if principal == "" {
		return false, nil
	}
	if principal == file.UserID {
		return true, nil
	}
	return grants.Exists(ctx, file.ID, principal)
}

// CanManage reports whether principal owns file.
func CanManage(file *models.File, principal string) bool {
	return principal != "" && principal == file.UserID
}
