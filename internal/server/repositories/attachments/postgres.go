// Package attachments persists links between files and arbitrary owning
// entities (posts, profiles, ...).
package attachments

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/uploadsvc/internal/dbx"
	"github.com/dmitrijs2005/uploadsvc/internal/server/models"
	"github.com/dmitrijs2005/uploadsvc/internal/server/repositories/files"
)

type PostgresRepository struct {
	db         dbx.DBTX
	table      string
	filesTable string
}

// NewPostgresRepository binds the repository to the fileables table and the
// files table it joins against.
func NewPostgresRepository(db dbx.DBTX, table, filesTable string) *PostgresRepository {
	return &PostgresRepository{db: db, table: table, filesTable: filesTable}
}

func (r *PostgresRepository) Attach(ctx context.Context, fileID, entityType, entityID string) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (file_id, fileable_type, fileable_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (file_id, fileable_id, fileable_type) DO NOTHING
	`, r.table)
	if _, err := r.db.ExecContext(ctx, query, fileID, entityType, entityID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Detach(ctx context.Context, fileID, entityType, entityID string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE file_id = $1 AND fileable_type = $2 AND fileable_id = $3`, r.table)
	if _, err := r.db.ExecContext(ctx, query, fileID, entityType, entityID); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ListFilesForEntity returns the live files attached to an entity in
// attachment order.
func (r *PostgresRepository) ListFilesForEntity(ctx context.Context, entityType, entityID string) ([]*models.File, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s f
		JOIN %s a ON a.file_id = f.id
		WHERE a.fileable_type = $1 AND a.fileable_id = $2 AND f.deleted_at IS NULL
		ORDER BY a.created_at
	`, files.Columns("f"), r.filesTable, r.table)

	rows, err := r.db.QueryContext(ctx, query, entityType, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to select attachments: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		f, err := files.ScanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) ListForFile(ctx context.Context, fileID string) ([]*models.Fileable, error) {
	query := fmt.Sprintf(`
		SELECT file_id::text, fileable_type, fileable_id, created_at, updated_at FROM %s
		WHERE file_id = $1
		ORDER BY created_at
	`, r.table)

	rows, err := r.db.QueryContext(ctx, query, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to select attachments: %w", err)
	}
	defer rows.Close()

	var result []*models.Fileable
	for rows.Next() {
		var a models.Fileable
		if err := rows.Scan(&a.FileID, &a.FileableType, &a.FileableID, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, &a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
