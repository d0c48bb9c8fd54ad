package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/uploadsvc/internal/common"
	"github.com/dmitrijs2005/uploadsvc/internal/dbx"
	"github.com/dmitrijs2005/uploadsvc/internal/server/models"
)

// PostgresRepository implements file storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db    dbx.DBTX
	table string
}

// NewPostgresRepository constructs a repository bound to the given DBTX and
// files table name.
func NewPostgresRepository(db dbx.DBTX, table string) *PostgresRepository {
	return &PostgresRepository{db: db, table: table}
}

func mapWriteErr(err error) error {
	if constraint, ok := dbx.UniqueViolation(err); ok {
		return fmt.Errorf("%w: %s", common.ErrorConflict, constraint)
	}
	return fmt.Errorf("db error: %w", err)
}

// Create inserts a new session and fills in the database-assigned ID and
// timestamps. A duplicate path yields common.ErrorConflict.
func (r *PostgresRepository) Create(ctx context.Context, file *models.File) error {
	metadata, err := encodeMetadata(file.Metadata)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (user_id, name, original_name, path, disk, mime_type, size, visibility, status, upload_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb)
		RETURNING id::text, created_at, updated_at
	`, r.table)

	err = r.db.QueryRowContext(ctx, query,
		file.UserID, file.Name, file.OriginalName, file.Path, file.Disk, file.MimeType, file.Size,
		file.Visibility, file.Status, file.UploadID, metadata,
	).Scan(&file.ID, &file.CreatedAt, &file.UpdatedAt)
	if err != nil {
		return mapWriteErr(err)
	}
	return nil
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, args ...any) (*models.File, error) {
	f, err := ScanFile(r.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("failed to select file: %w", err)
	}
	return f, nil
}

// GetByID returns a live (not soft-deleted) file by id.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.File, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1 AND deleted_at IS NULL`, Columns(""), r.table)
	return r.getOne(ctx, query, id)
}

// GetInitiatedByPath returns the session at path only while it is still
// initiated; completed and failed sessions yield common.ErrorNotFound.
func (r *PostgresRepository) GetInitiatedByPath(ctx context.Context, path string) (*models.File, error) {
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE path = $1 AND status = $2 AND deleted_at IS NULL`, Columns(""), r.table)
	return r.getOne(ctx, query, path, models.StatusInitiated)
}

// MarkCompleted moves an initiated session to completed, merges metadata into
// the stored metadata and returns the updated row.
func (r *PostgresRepository) MarkCompleted(ctx context.Context, id string, metadata map[string]any) (*models.File, error) {
	extra, err := encodeMetadata(metadata)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`
		UPDATE %s SET status = $2, metadata = metadata || $3::jsonb, updated_at = now()
		WHERE id = $1 AND status = $4 AND deleted_at IS NULL
		RETURNING %s
	`, r.table, Columns(""))
	return r.getOne(ctx, query, id, models.StatusCompleted, extra, models.StatusInitiated)
}

// MarkFailed moves an initiated session to failed, merging metadata.
func (r *PostgresRepository) MarkFailed(ctx context.Context, id string, metadata map[string]any) error {
	extra, err := encodeMetadata(metadata)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`
		UPDATE %s SET status = $2, metadata = metadata || $3::jsonb, updated_at = now()
		WHERE id = $1 AND status = $4 AND deleted_at IS NULL
	`, r.table)
	result, err := r.db.ExecContext(ctx, query, id, models.StatusFailed, extra, models.StatusInitiated)
	if err != nil {
		return fmt.Errorf("failed to mark failed: %w", err)
	}
	return expectOne(result)
}

// SoftDelete sets deleted_at on a live file.
func (r *PostgresRepository) SoftDelete(ctx context.Context, id string) error {
	query := fmt.Sprintf(`UPDATE %s SET deleted_at = now(), updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, r.table)
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return expectOne(result)
}

// UpdatePath points a live file at a new storage key.
func (r *PostgresRepository) UpdatePath(ctx context.Context, id, path string) error {
	query := fmt.Sprintf(`UPDATE %s SET path = $2, name = $2, updated_at = now() WHERE id = $1 AND deleted_at IS NULL`, r.table)
	result, err := r.db.ExecContext(ctx, query, id, path)
	if err != nil {
		return mapWriteErr(err)
	}
	return expectOne(result)
}

// ListByOwner returns the completed files of userID whose path starts with
// pathPrefix, newest first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, userID, pathPrefix string) ([]*models.File, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM %s
		WHERE user_id = $1 AND status = $2 AND deleted_at IS NULL AND starts_with(path, $3)
		ORDER BY created_at DESC
	`, Columns(""), r.table)

	rows, err := r.db.QueryContext(ctx, query, userID, models.StatusCompleted, pathPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []*models.File
	for rows.Next() {
		f, err := ScanFile(rows)
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

// expectOne maps zero affected rows to common.ErrorNotFound.
func expectOne(result sql.Result) error {
	ra, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	switch ra {
	case 1:
		return nil
	case 0:
		return common.ErrorNotFound
	default:
		return fmt.Errorf("wrong rows affected count: %d", ra)
	}
}
