package client

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/simonexmachina/the-work/internal/client/migrations"
	"github.com/simonexmachina/the-work/internal/client/repositories/metadata"
	"github.com/simonexmachina/the-work/internal/client/repositories/worksheets"

	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Repositories groups the client's local stores over one database handle.
type Repositories struct {
	DB         *sql.DB
	Metadata   *metadata.SQLiteRepository
	Worksheets *worksheets.SQLiteRepository
}

func (r *Repositories) Close() error {
	return r.DB.Close()
}

func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}

	return goose.UpContext(ctx, db, ".")
}

// InitDatabase opens (creating if needed) the SQLite database at dsn and
// brings its schema up to date.
func InitDatabase(ctx context.Context, dsn string) (*Repositories, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	// one writer; also keeps ":memory:" databases on a single connection
	db.SetMaxOpenConns(1)

	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Repositories{
		DB:         db,
		Metadata:   metadata.NewSQLiteRepository(db),
		Worksheets: worksheets.NewSQLiteRepository(db),
	}, nil
}
