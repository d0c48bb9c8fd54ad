package users

import "context"

// Repository reads the host application's users table.
type Repository interface {
	Exists(ctx context.Context, id string) (bool, error)
}
