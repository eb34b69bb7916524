// Package identity signs the user in and out and announces those
// transitions. Credentials are checked with an argon2 verifier; the salt,
// verifier, user id and refresh token are cached in the metadata table so a
// returning user can sign in while the server is unreachable.
package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/simonexmachina/the-work/internal/client/client"
	"github.com/simonexmachina/the-work/internal/client/repositories/metadata"
	"github.com/simonexmachina/the-work/internal/cryptox"
	"github.com/simonexmachina/the-work/internal/dbx"
	"github.com/simonexmachina/the-work/internal/logging"
	"github.com/simonexmachina/the-work/internal/rpc"
)

var ErrNotSignedIn = errors.New("not signed in")

// Provider is the client's identity. It is safe for concurrent use.
type Provider struct {
	client client.Client
	db     *sql.DB
	meta   metadata.Repository
	logger logging.Logger

	mu       sync.RWMutex
	userID   string
	username string

	lmu       sync.Mutex
	listeners map[uint64]Listener
	nextID    uint64
}

func NewProvider(c client.Client, db *sql.DB, logger logging.Logger) *Provider {
	p := &Provider{
		client:    c,
		db:        db,
		meta:      metadata.NewSQLiteRepository(db),
		logger:    logger.With("module", "identity"),
		listeners: make(map[uint64]Listener),
	}
	c.OnSessionRefreshed(p.persistRefreshToken)
	return p
}

func (p *Provider) IsAuthenticated() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.userID != ""
}

func (p *Provider) UserID() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.userID
}

func (p *Provider) Username() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.username
}

// Token returns a valid access token, refreshing it first when forced or
// when the session was restored without one.
func (p *Provider) Token(ctx context.Context, forceRefresh bool) (string, error) {
	if !p.IsAuthenticated() {
		return "", ErrNotSignedIn
	}
	if forceRefresh || p.client.AccessToken() == "" {
		if err := p.client.Refresh(ctx); err != nil {
			return "", fmt.Errorf("refresh token: %w", err)
		}
	}
	return p.client.AccessToken(), nil
}

// AddListener registers fn and returns a function that removes it.
func (p *Provider) AddListener(fn Listener) func() {
	p.lmu.Lock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	p.lmu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			p.lmu.Lock()
			delete(p.listeners, id)
			p.lmu.Unlock()
		})
	}
}

func (p *Provider) emit(ev Event, userID string) {
	p.lmu.Lock()
	fns := make([]Listener, 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	p.lmu.Unlock()

	for _, fn := range fns {
		fn(ev, userID)
	}
}

func (p *Provider) setUser(userID, username string) {
	p.mu.Lock()
	p.userID = userID
	p.username = username
	p.mu.Unlock()
}

// Restore resumes the session cached by a previous run, if any. It does
// not emit signin: callers initialise their consumers afterwards and read
// IsAuthenticated.
func (p *Provider) Restore(ctx context.Context) (bool, error) {
	values, err := p.meta.List(ctx)
	if err != nil {
		return false, err
	}

	userID := string(values[metadata.KeyUserID])
	refreshToken := string(values[metadata.KeyRefreshToken])
	if userID == "" || refreshToken == "" {
		return false, nil
	}

	p.client.RestoreSession(userID, refreshToken)
	p.setUser(userID, string(values[metadata.KeyUsername]))
	p.logger.Info(ctx, "session restored", "user", userID)
	return true, nil
}

// Login signs in against the server and falls back to the cached
// credentials when the server is unreachable. offline reports which path
// succeeded.
func (p *Provider) Login(ctx context.Context, username string, password []byte) (offline bool, err error) {
	err = p.OnlineLogin(ctx, username, password)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, client.ErrUnavailable) {
		return false, err
	}

	p.logger.Warn(ctx, "server unavailable, trying offline login", "error", err)
	if err := p.OfflineLogin(ctx, username, password); err != nil {
		return true, err
	}
	return true, nil
}

// OnlineLogin authenticates against the server and caches what offline
// login and session restore need.
func (p *Provider) OnlineLogin(ctx context.Context, username string, password []byte) error {
	salt, err := p.client.GetSalt(ctx, username)
	if err != nil {
		return fmt.Errorf("get salt error: %w", err)
	}

	verifier := cryptox.VerifierFor(password, salt)

	userID, err := p.client.Login(ctx, username, verifier)
	if err != nil {
		return fmt.Errorf("login error: %w", err)
	}

	if err := p.saveOfflineData(ctx, username, userID, salt, verifier, p.client.RefreshToken()); err != nil {
		return fmt.Errorf("offline data saving error: %w", err)
	}

	p.setUser(userID, username)
	p.logger.Info(ctx, "signed in", "user", userID, "mode", "online")
	p.emit(EventSignIn, userID)
	return nil
}

// OfflineLogin verifies password against the cached verifier. The cached
// refresh token, if any, is handed to the client so the session resumes
// once the server is reachable.
func (p *Provider) OfflineLogin(ctx context.Context, username string, password []byte) error {
	values, err := p.meta.List(ctx)
	if err != nil {
		return err
	}

	salt, verifier := values[metadata.KeySalt], values[metadata.KeyVerifier]
	userID := string(values[metadata.KeyUserID])
	if len(salt) == 0 || len(verifier) == 0 || userID == "" {
		return client.ErrLocalDataNotAvailable
	}
	if string(values[metadata.KeyUsername]) != username {
		return client.ErrUnauthorized
	}
	if !cryptox.CheckPassword(password, salt, verifier) {
		return client.ErrUnauthorized
	}

	if rt := string(values[metadata.KeyRefreshToken]); rt != "" {
		p.client.RestoreSession(userID, rt)
	}

	p.setUser(userID, username)
	p.logger.Info(ctx, "signed in", "user", userID, "mode", "offline")
	p.emit(EventSignIn, userID)
	return nil
}

func (p *Provider) saveOfflineData(ctx context.Context, username, userID string, salt, verifier []byte, refreshToken string) error {
	return dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := metadata.NewSQLiteRepository(tx)
		if err := repo.Clear(ctx); err != nil {
			return err
		}
		return repo.SetMany(ctx, map[string][]byte{
			metadata.KeyUsername:     []byte(username),
			metadata.KeyUserID:       []byte(userID),
			metadata.KeySalt:         salt,
			metadata.KeyVerifier:     verifier,
			metadata.KeyRefreshToken: []byte(refreshToken),
		})
	})
}

// persistRefreshToken keeps the cached refresh token in step with the
// server, which rotates it on every refresh.
func (p *Provider) persistRefreshToken(pair rpc.TokenPair) {
	ctx := context.Background()
	if !p.IsAuthenticated() {
		return
	}
	if err := p.meta.Set(ctx, metadata.KeyRefreshToken, []byte(pair.RefreshToken)); err != nil {
		p.logger.Error(ctx, "failed to persist refresh token", "error", err)
	}
}

// Register creates an account. It does not sign in.
func (p *Provider) Register(ctx context.Context, username string, password []byte) error {
	salt := cryptox.NewSalt()
	verifier := cryptox.VerifierFor(password, salt)

	if err := p.client.Register(ctx, username, salt, verifier); err != nil {
		return err
	}
	p.logger.Info(ctx, "registered", "username", username)
	return nil
}

// Logout ends the session and wipes the cached credentials.
func (p *Provider) Logout(ctx context.Context) error {
	userID := p.UserID()
	if userID == "" {
		return ErrNotSignedIn
	}

	p.client.ClearSession()
	p.setUser("", "")

	err := p.meta.Clear(ctx)
	if err != nil {
		p.logger.Error(ctx, "failed to clear offline data", "error", err)
	}

	p.logger.Info(ctx, "signed out", "user", userID)
	p.emit(EventSignOut, userID)
	return err
}

// Ping proxies a liveness check to the server.
func (p *Provider) Ping(ctx context.Context) error {
	return p.client.Ping(ctx)
}
