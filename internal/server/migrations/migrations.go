// Package migrations holds the schema of the upload service as goose Go
// migrations. Table names carry a configurable prefix, so the SQL is built
// at runtime instead of being embedded as static files.
package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/pressly/goose/v3"
)

// Tables names the tables used by the service.
type Tables struct {
	Files       string
	FileViewers string
	Fileables   string
}

// NewTables derives table names from prefix.
func NewTables(prefix string) Tables {
	return Tables{
		Files:       prefix + "files",
		FileViewers: prefix + "file_viewers",
		Fileables:   prefix + "fileables",
	}
}

const createSchema = `
CREATE TABLE IF NOT EXISTS {files} (
	id            UUID PRIMARY KEY DEFAULT gen_random_uuid(),
	user_id       TEXT NOT NULL,
	name          TEXT NOT NULL,
	original_name TEXT NOT NULL,
	path          TEXT NOT NULL,
	disk          TEXT NOT NULL DEFAULT 's3',
	mime_type     TEXT NOT NULL DEFAULT '',
	size          BIGINT NOT NULL DEFAULT 0 CHECK (size >= 0),
	visibility    TEXT NOT NULL DEFAULT 'private' CHECK (visibility IN ('public', 'private')),
	status        TEXT NOT NULL DEFAULT 'initiated' CHECK (status IN ('initiated', 'completed', 'failed')),
	upload_id     TEXT NOT NULL DEFAULT '',
	metadata      JSONB NOT NULL DEFAULT '{}'::jsonb,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	deleted_at    TIMESTAMPTZ
);

CREATE UNIQUE INDEX IF NOT EXISTS {files}_path_key ON {files} (path);
CREATE INDEX IF NOT EXISTS {files}_user_id_idx ON {files} (user_id) WHERE deleted_at IS NULL;

CREATE TABLE IF NOT EXISTS {file_viewers} (
	file_id    UUID NOT NULL REFERENCES {files} (id) ON DELETE CASCADE,
	user_id    TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (file_id, user_id)
);

CREATE TABLE IF NOT EXISTS {fileables} (
	file_id       UUID NOT NULL REFERENCES {files} (id) ON DELETE CASCADE,
	fileable_type TEXT NOT NULL,
	fileable_id   TEXT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (file_id, fileable_id, fileable_type)
);

CREATE INDEX IF NOT EXISTS {fileables}_entity_idx ON {fileables} (fileable_type, fileable_id);
`

const dropSchema = `
DROP TABLE IF EXISTS {fileables};
DROP TABLE IF EXISTS {file_viewers};
DROP TABLE IF EXISTS {files};
`

func (t Tables) expand(tmpl string) string {
	return strings.NewReplacer(
		"{files}", t.Files,
		"{file_viewers}", t.FileViewers,
		"{fileables}", t.Fileables,
	).Replace(tmpl)
}

// UpSQL returns the statements creating the schema for t.
func UpSQL(t Tables) string { return t.expand(createSchema) }

// DownSQL returns the statements dropping the schema for t.
func DownSQL(t Tables) string { return t.expand(dropSchema) }

func execTx(query string) func(ctx context.Context, tx *sql.Tx) error {
	return func(ctx context.Context, tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		return nil
	}
}

// Migrations returns the ordered goose migrations for tables t.
func Migrations(t Tables) []*goose.Migration {
	return []*goose.Migration{
		goose.NewGoMigration(1,
			&goose.GoFunc{RunTx: execTx(UpSQL(t)), Mode: goose.TransactionEnabled},
			&goose.GoFunc{RunTx: execTx(DownSQL(t)), Mode: goose.TransactionEnabled},
		),
	}
}
