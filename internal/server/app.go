// Package server wires the worksheet server together: configuration,
// storage backends, services and the gRPC endpoint, plus graceful shutdown.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/go-kivik/kivik/v4"
	_ "github.com/go-kivik/kivik/v4/couchdb"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/simonexmachina/the-work/internal/logging"
	"github.com/simonexmachina/the-work/internal/server/config"
	gs "github.com/simonexmachina/the-work/internal/server/grpc"
	"github.com/simonexmachina/the-work/internal/server/hub"
	"github.com/simonexmachina/the-work/internal/server/repositories/repomanager"
	"github.com/simonexmachina/the-work/internal/server/repositories/worksheets"
	"github.com/simonexmachina/the-work/internal/server/services"
)

const (
	maxSubscriptionsPerUser = 16
	tokenPurgeInterval      = time.Hour
)

type App struct {
	config     *config.Config
	logger     logging.Logger
	db         *sql.DB
	couch      *kivik.Client
	users      *services.UserService
	worksheets *services.WorksheetService
	exports    *services.ExportService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewStdoutLogger(slog.LevelInfo)

	db, err := sql.Open("pgx", c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db connect error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	app := &App{config: c, logger: logger, db: db}

	repo, err := app.worksheetRepository(ctx, rm)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	app.users = services.NewUserService(db, rm, c)
	app.worksheets = services.NewWorksheetService(repo, hub.New(maxSubscriptionsPerUser), logger)
	app.exports = services.NewExportService(app.worksheets, c, logger)
	return app, nil
}

// worksheetRepository picks the document store. Accounts stay in
// PostgreSQL whatever the choice.
func (app *App) worksheetRepository(ctx context.Context, rm repomanager.RepositoryManager) (worksheets.Repository, error) {
	switch app.config.StorageBackend {
	case config.BackendPostgres:
		return rm.Worksheets(app.db), nil
	case config.BackendCouchDB:
		client, err := kivik.New("couch", app.config.CouchDBURL)
		if err != nil {
			return nil, fmt.Errorf("couchdb init error: %w", err)
		}
		app.couch = client
		if err := worksheets.EnsureDatabase(ctx, client, app.config.CouchDBName); err != nil {
			return nil, err
		}
		return worksheets.NewCouchRepository(client, app.config.CouchDBName), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", app.config.StorageBackend)
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.users, app.worksheets, app.exports, app.config.SecretKey)
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// purgeExpiredTokens drops spent-by-time refresh tokens every interval
// until ctx is done.
func (app *App) purgeExpiredTokens(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			n, err := app.users.PurgeExpiredTokens(ctx, now)
			if err != nil {
				app.logger.Warn(ctx, "refresh token purge failed", "error", err)
				continue
			}
			if n > 0 {
				app.logger.Info(ctx, "expired refresh tokens purged", "count", n)
			}
		}
	}
}

// Run serves until a termination signal arrives or the server fails.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "backend", app.config.StorageBackend)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.purgeExpiredTokens(ctx, tokenPurgeInterval)
	}()

	wg.Wait()
	app.logger.Info(context.Background(), "App stopped")
}

func (app *App) Close() error {
	var firstErr error
	if app.couch != nil {
		if err := app.couch.Close(); err != nil {
			firstErr = err
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
