package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/simonexmachina/the-work/internal/client/client"
	"github.com/simonexmachina/the-work/internal/client/config"
	"github.com/simonexmachina/the-work/internal/client/identity"
	"github.com/simonexmachina/the-work/internal/client/services"
	"github.com/simonexmachina/the-work/internal/client/syncengine"
	"github.com/simonexmachina/the-work/internal/logging"
	"github.com/simonexmachina/the-work/internal/models"
)

type Mode string

const (
	ModeOffline Mode = "offline"
	ModeOnline  Mode = "online"
)

const exportDir = "exports"

type authService interface {
	IsAuthenticated() bool
	Username() string
	Register(ctx context.Context, username string, password []byte) error
	Login(ctx context.Context, username string, password []byte) (offline bool, err error)
	Logout(ctx context.Context) error
	Ping(ctx context.Context) error
}

type worksheetService interface {
	Create(ctx context.Context, fields map[string]any) (*models.Worksheet, error)
	Update(ctx context.Context, id string, fields map[string]any) (*models.Worksheet, error)
	Delete(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.Worksheet, error)
	List(ctx context.Context) ([]models.Worksheet, error)
}

type syncService interface {
	PerformFullSync(ctx context.Context) (syncengine.SyncReport, error)
	SetOnline(ctx context.Context, online bool)
	State() syncengine.State
	Syncing() bool
	QueueLen() int
}

type exportService interface {
	Export(ctx context.Context) (path string, url string, err error)
}

type App struct {
	config *config.Config
	logger logging.Logger

	auth       authService
	worksheets worksheetService
	engine     syncService
	exports    exportService

	reader *bufio.Reader
	out    io.Writer
	outMu  sync.Mutex

	modeMu sync.Mutex
	mode   Mode

	start   func(ctx context.Context)
	closers []func() error
}

// NewApp wires the client together. Sync is not started until Run.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, logCloser := logging.NewFileLogger(c.LogFile, slog.LevelInfo)

	repos, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		_ = logCloser.Close()
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	apiClient, err := client.NewGRPCClient(c.ServerEndpointAddr)
	if err != nil {
		_ = repos.Close()
		_ = logCloser.Close()
		return nil, fmt.Errorf("error creating client: %w", err)
	}

	provider := identity.NewProvider(apiClient, repos.DB, logger)
	if _, err := provider.Restore(ctx); err != nil {
		logger.Warn(ctx, "failed to restore session", "error", err)
	}

	engine := syncengine.NewEngine(repos.Worksheets, logger)

	a := &App{
		config:     c,
		logger:     logger,
		auth:       provider,
		worksheets: services.NewWorksheetService(repos.Worksheets, engine, logger),
		engine:     engine,
		exports:    services.NewExportService(apiClient, exportDir, logger),
		reader:     bufio.NewReader(os.Stdin),
		out:        os.Stdout,
		mode:       ModeOnline,
	}

	engine.AddListener(a.onEvent)
	a.start = func(ctx context.Context) {
		engine.Initialize(ctx, provider, apiClient)
	}
	a.closers = []func() error{
		func() error { engine.Close(context.Background()); return nil },
		apiClient.Close,
		repos.Close,
		logCloser.Close,
	}
	return a, nil
}

// Run binds the engine, starts the connectivity watcher and blocks in the
// REPL until the user exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.start != nil {
		a.start(ctx)
	}
	go a.StartOnlineStatusWatcher(ctx, a.config.OnlineCheckInterval)

	a.println("Welcome to the journal (type 'help' for commands)")
	runREPL(ctx, a, a.getStatus, a.reader)
}

// Close releases everything NewApp opened, in reverse dependency order.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (a *App) isLoggedIn() bool {
	return a.auth.IsAuthenticated()
}

func (a *App) Mode() Mode {
	a.modeMu.Lock()
	defer a.modeMu.Unlock()
	return a.mode
}

func (a *App) setMode(ctx context.Context, mode Mode) {
	a.modeMu.Lock()
	changed := a.mode != mode
	a.mode = mode
	a.modeMu.Unlock()

	if changed {
		a.logger.Info(ctx, "connectivity changed", "mode", mode)
	}
	a.engine.SetOnline(ctx, mode == ModeOnline)
}

func (a *App) getStatus() string {
	s := ""
	if a.auth.IsAuthenticated() {
		s = a.auth.Username() + " "
	}
	s += string(a.Mode())
	return fmt.Sprintf("(%s)", s)
}

func (a *App) println(args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintln(a.out, args...)
}

func (a *App) printf(format string, args ...any) {
	a.outMu.Lock()
	defer a.outMu.Unlock()
	fmt.Fprintf(a.out, format, args...)
}
