// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/uploadsvc/internal/dbx"
	"github.com/dmitrijs2005/uploadsvc/internal/server/migrations"
	"github.com/dmitrijs2005/uploadsvc/internal/server/repositories/attachments"
	"github.com/dmitrijs2005/uploadsvc/internal/server/repositories/files"
	"github.com/dmitrijs2005/uploadsvc/internal/server/repositories/users"
	"github.com/dmitrijs2005/uploadsvc/internal/server/repositories/viewers"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository implementations
// bound to the configured table names and exposes a schema migration hook.
type PostgresRepositoryManager struct {
	tables     migrations.Tables
	usersTable string
}

// Users returns a users.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db, m.usersTable)
}

// Files returns a files.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Files(db dbx.DBTX) files.Repository {
	return files.NewPostgresRepository(db, m.tables.Files)
}

// Viewers returns a viewers.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Viewers(db dbx.DBTX) viewers.Repository {
	return viewers.NewPostgresRepository(db, m.tables.FileViewers)
}

// Attachments returns an attachments.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Attachments(db dbx.DBTX) attachments.Repository {
	return attachments.NewPostgresRepository(db, m.tables.Fileables, m.tables.Files)
}

// gooseUp is a seam for testing the goose provider run.
var gooseUp = func(ctx context.Context, db *sql.DB, ms []*goose.Migration) error {
	provider, err := goose.NewProvider(goose.DialectPostgres, db, nil,
		goose.WithGoMigrations(ms...),
		goose.WithDisableGlobalRegistry(true),
	)
	if err != nil {
		return err
	}
	_, err = provider.Up(ctx)
	return err
}

// RunMigrations applies the prefixed schema migrations against db.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	if err := gooseUp(ctx, db, migrations.Migrations(m.tables)); err != nil {
		return err
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
// Table names are spliced into SQL, so both the prefix and the users table
// must be plain lowercase identifiers.
func NewPostgresRepositoryManager(tablePrefix, usersTable string) (RepositoryManager, error) {
	if tablePrefix != "" && !dbx.IsIdentifier(tablePrefix) {
		return nil, fmt.Errorf("invalid table prefix %q", tablePrefix)
	}
	if !dbx.IsIdentifier(usersTable) {
		return nil, fmt.Errorf("invalid users table %q", usersTable)
	}
	return &PostgresRepositoryManager{
		tables:     migrations.NewTables(tablePrefix),
		usersTable: usersTable,
	}, nil
}
