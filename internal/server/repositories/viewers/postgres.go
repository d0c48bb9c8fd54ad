// Package viewers persists explicit read grants on private files.
package viewers

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/uploadsvc/internal/dbx"
	"github.com/dmitrijs2005/uploadsvc/internal/server/models"
)

type PostgresRepository struct {
	db    dbx.DBTX
	table string
}

func NewPostgresRepository(db dbx.DBTX, table string) *PostgresRepository {
	return &PostgresRepository{db: db, table: table}
}

// Add grants userID read access to fileID. Granting twice is a no-op.
func (r *PostgresRepository) Add(ctx context.Context, fileID, userID string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (file_id, user_id)
		VALUES ($1, $2)
		ON CONFLICT (file_id, user_id) DO NOTHING
	`, r.table)
	if _, err := r.db.ExecContext(ctx, query, fileID, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// Remove revokes a grant. Removing a missing grant is not an error.
func (r *PostgresRepository) Remove(ctx context.Context, fileID, userID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE file_id = $1 AND user_id = $2`, r.table)
	if _, err := r.db.ExecContext(ctx, query, fileID, userID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Exists(ctx context.Context, fileID, userID string) (bool, error) {
	query := fmt.Sprintf(`SELECT EXISTS (SELECT 1 FROM %s WHERE file_id = $1 AND user_id = $2)`, r.table)
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, fileID, userID).Scan(&ok); err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return ok, nil
}

func (r *PostgresRepository) List(ctx context.Context, fileID string) ([]*models.FileViewer, error) {
	query := fmt.Sprintf(`
		SELECT file_id::text, user_id, created_at, updated_at FROM %s
		WHERE file_id = $1
		ORDER BY created_at
	`, r.table)

	rows, err := r.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to select viewers: %w", err)
	}
	defer rows.Close()

	var result []*models.FileViewer
	for rows.Next() {
		var v models.FileViewer
		if err := rows.Scan(&v.FileID, &v.UserID, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
