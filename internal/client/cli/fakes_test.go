package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/simonexmachina/the-work/internal/client/config"
	"github.com/simonexmachina/the-work/internal/client/repositories/worksheets"
	"github.com/simonexmachina/the-work/internal/client/syncengine"
	"github.com/simonexmachina/the-work/internal/logging"
	"github.com/simonexmachina/the-work/internal/models"
)

var errBoom = errors.New("boom")

type fakeAuth struct {
	mu       sync.Mutex
	loggedIn bool
	username string

	regUser string
	regPass []byte
	regErr  error

	loginUser    string
	loginPass    []byte
	loginOffline bool
	loginErr     error

	logoutErr error
	pingErr   error
	pings     int
}

func (f *fakeAuth) IsAuthenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loggedIn
}

func (f *fakeAuth) Username() string { return f.username }

func (f *fakeAuth) Register(_ context.Context, user string, pass []byte) error {
	f.regUser, f.regPass = user, append([]byte(nil), pass...)
	return f.regErr
}

func (f *fakeAuth) Login(_ context.Context, user string, pass []byte) (bool, error) {
	f.loginUser, f.loginPass = user, append([]byte(nil), pass...)
	if f.loginErr != nil {
		return f.loginOffline, f.loginErr
	}
	f.mu.Lock()
	f.loggedIn, f.username = true, user
	f.mu.Unlock()
	return f.loginOffline, nil
}

func (f *fakeAuth) Logout(context.Context) error {
	if f.logoutErr != nil {
		return f.logoutErr
	}
	f.mu.Lock()
	f.loggedIn, f.username = false, ""
	f.mu.Unlock()
	return nil
}

func (f *fakeAuth) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pings++
	return f.pingErr
}

func (f *fakeAuth) setPingErr(err error) {
	f.mu.Lock()
	f.pingErr = err
	f.mu.Unlock()
}

type fakeWorksheets struct {
	items   map[string]*models.Worksheet
	created []map[string]any
	updates map[string]map[string]any
	deleted []string
	err     error
}

func newFakeWorksheets(ws ...*models.Worksheet) *fakeWorksheets {
	f := &fakeWorksheets{items: make(map[string]*models.Worksheet), updates: make(map[string]map[string]any)}
	for _, w := range ws {
		f.items[w.ID] = w
	}
	return f
}

func (f *fakeWorksheets) Create(_ context.Context, fields map[string]any) (*models.Worksheet, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.created = append(f.created, fields)
	w := &models.Worksheet{ID: "new-id", Fields: fields}
	f.items[w.ID] = w
	return w, nil
}

func (f *fakeWorksheets) Update(_ context.Context, id string, fields map[string]any) (*models.Worksheet, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.updates[id] = fields
	return f.items[id], nil
}

func (f *fakeWorksheets) Delete(_ context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return worksheets.ErrNotFound
	}
	f.deleted = append(f.deleted, id)
	delete(f.items, id)
	return nil
}

func (f *fakeWorksheets) Get(_ context.Context, id string) (*models.Worksheet, error) {
	if f.err != nil {
		return nil, f.err
	}
	w, ok := f.items[id]
	if !ok {
		return nil, worksheets.ErrNotFound
	}
	return w.Clone(), nil
}

func (f *fakeWorksheets) List(context.Context) ([]models.Worksheet, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]models.Worksheet, 0, len(f.items))
	for _, w := range f.items {
		out = append(out, *w)
	}
	return out, nil
}

type fakeEngine struct {
	mu      sync.Mutex
	online  []bool
	report  syncengine.SyncReport
	syncErr error
	fulls   int
	state   syncengine.State
	syncing bool
	queued  int
}

func (f *fakeEngine) PerformFullSync(context.Context) (syncengine.SyncReport, error) {
	f.fulls++
	return f.report, f.syncErr
}

func (f *fakeEngine) SetOnline(_ context.Context, online bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.online = append(f.online, online)
}

func (f *fakeEngine) onlineCalls() []bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bool(nil), f.online...)
}

func (f *fakeEngine) State() syncengine.State { return f.state }
func (f *fakeEngine) Syncing() bool           { return f.syncing }
func (f *fakeEngine) QueueLen() int           { return f.queued }

type fakeExports struct {
	path, url string
	err       error
}

func (f *fakeExports) Export(context.Context) (string, string, error) { return f.path, f.url, f.err }

// syncBuffer is a bytes.Buffer safe for the watcher goroutine.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type testApp struct {
	*App
	auth    *fakeAuth
	ws      *fakeWorksheets
	engine  *fakeEngine
	exports *fakeExports
	out     *syncBuffer
}

func newTestApp(t *testing.T, input string) *testApp {
	t.Helper()
	ta := &testApp{
		auth:    &fakeAuth{},
		ws:      newFakeWorksheets(),
		engine:  &fakeEngine{state: syncengine.StateIdle},
		exports: &fakeExports{},
		out:     &syncBuffer{},
	}
	cfg := &config.Config{}
	cfg.LoadDefaults()
	ta.App = &App{
		config:     cfg,
		logger:     logging.NewNopLogger(),
		auth:       ta.auth,
		worksheets: ta.ws,
		engine:     ta.engine,
		exports:    ta.exports,
		reader:     bufio.NewReader(strings.NewReader(input)),
		out:        ta.out,
		mode:       ModeOnline,
	}
	return ta
}

func lines(ls ...string) string {
	return strings.Join(ls, "\n") + "\n"
}

func stubPassword(t *testing.T, pw []byte) {
	t.Helper()
	orig := getPassword
	getPassword = func(_ io.Writer) ([]byte, error) { return append([]byte(nil), pw...), nil }
	t.Cleanup(func() { getPassword = orig })
}

func silencePrintln(t *testing.T) *[]string {
	t.Helper()
	var got []string
	orig := printlnFn
	printlnFn = func(a ...any) (int, error) {
		got = append(got, strings.TrimSpace(fmt.Sprintln(a...)))
		return 0, nil
	}
	t.Cleanup(func() { printlnFn = orig })
	return &got
}
