// Package users looks up principals in the users table owned by the host
// application. The service never writes to it.
package users

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/uploadsvc/internal/dbx"
)

type PostgresRepository struct {
	db    dbx.DBTX
	table string
}

func NewPostgresRepository(db dbx.DBTX, table string) *PostgresRepository {
	return &PostgresRepository{db: db, table: table}
}

// Exists reports whether a user with the given id exists. The id column is
// compared as text because its type belongs to the host schema.
func (r *PostgresRepository) Exists(ctx context.Context, id string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE id::text = $1)`, r.table)

	var ok bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}
