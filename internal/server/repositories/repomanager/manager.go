package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/uploadsvc/internal/dbx"
	"github.com/dmitrijs2005/uploadsvc/internal/server/repositories/attachments"
	"github.com/dmitrijs2005/uploadsvc/internal/server/repositories/files"
	"github.com/dmitrijs2005/uploadsvc/internal/server/repositories/users"
	"github.com/dmitrijs2005/uploadsvc/internal/server/repositories/viewers"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Files(db dbx.DBTX) files.Repository
	Viewers(db dbx.DBTX) viewers.Repository
	Attachments(db dbx.DBTX) attachments.Repository
}
