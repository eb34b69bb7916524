package repomanager

import (
	"context"
	"database/sql"

	"github.com/simonexmachina/the-work/internal/dbx"
	"github.com/simonexmachina/the-work/internal/server/repositories/refreshtokens"
	"github.com/simonexmachina/the-work/internal/server/repositories/users"
	"github.com/simonexmachina/the-work/internal/server/repositories/worksheets"
)

// RepositoryManager vends repositories bound to a connection or a
// transaction, so services can compose them inside dbx.WithTx.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Worksheets(db dbx.DBTX) worksheets.Repository
}
