package services

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/simonexmachina/the-work/internal/common"
	"github.com/simonexmachina/the-work/internal/dbx"
	"github.com/simonexmachina/the-work/internal/models"
	smodels "github.com/simonexmachina/the-work/internal/server/models"
	refreshtokensrepo "github.com/simonexmachina/the-work/internal/server/repositories/refreshtokens"
	usersrepo "github.com/simonexmachina/the-work/internal/server/repositories/users"
	worksheetsrepo "github.com/simonexmachina/the-work/internal/server/repositories/worksheets"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

type fakeUsersRepo struct {
	createOut *smodels.User
	createErr error

	getOut *smodels.User
	getErr error
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *smodels.User) (*smodels.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createOut, nil
}

func (f *fakeUsersRepo) GetUserByLogin(ctx context.Context, userName string) (*smodels.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}

type fakeRefreshRepo struct {
	mu sync.Mutex

	tokens     map[string]*smodels.RefreshToken
	consumeErr error
	createErr  error
	purged     int64
}

func newFakeRefreshRepo() *fakeRefreshRepo {
	return &fakeRefreshRepo{tokens: map[string]*smodels.RefreshToken{}}
}

func (f *fakeRefreshRepo) Create(ctx context.Context, userID string, token string, validity time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	f.tokens[token] = &smodels.RefreshToken{UserID: userID, Token: token, Expires: time.Now().Add(validity)}
	return nil
}

func (f *fakeRefreshRepo) Consume(ctx context.Context, token string) (*smodels.RefreshToken, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.consumeErr != nil {
		return nil, f.consumeErr
	}
	rt, ok := f.tokens[token]
	if !ok {
		return nil, common.ErrorNotFound
	}
	delete(f.tokens, token)
	return rt, nil
}

func (f *fakeRefreshRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int64
	for k, rt := range f.tokens {
		if rt.Expires.Before(now) {
			delete(f.tokens, k)
			n++
		}
	}
	f.purged += n
	return n, nil
}

func (f *fakeRefreshRepo) has(token string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.tokens[token]
	return ok
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeRefreshRepo
	w worksheetsrepo.Repository
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error           { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository { return m.r }
func (m *fakeRepoManager) Worksheets(db dbx.DBTX) worksheetsrepo.Repository       { return m.w }

// memWorksheets is an in-memory worksheets.Repository with the same merge
// semantics as the real backends.
type memWorksheets struct {
	mu      sync.Mutex
	docs    map[string]*models.Worksheet
	saveErr error
	listErr error
	saves   int
}

func newMemWorksheets() *memWorksheets {
	return &memWorksheets{docs: map[string]*models.Worksheet{}}
}

func (m *memWorksheets) ListByOwner(ctx context.Context, ownerID string, includeDeleted bool) ([]models.Worksheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]models.Worksheet, 0)
	for _, w := range m.docs {
		if w.OwnerID != ownerID || (w.Deleted && !includeDeleted) {
			continue
		}
		out = append(out, *w.Clone())
	}
	return out, nil
}

func (m *memWorksheets) Save(ctx context.Context, w *models.Worksheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.saveErr != nil {
		return m.saveErr
	}
	m.saves++
	rec := w.Clone()
	if cur, ok := m.docs[w.ID]; ok {
		if cur.OwnerID != w.OwnerID {
			return common.ErrOwnerConflict
		}
		merged := cur.Fields
		if merged == nil {
			merged = map[string]any{}
		}
		for k, v := range rec.Fields {
			merged[k] = v
		}
		rec.Fields = merged
	}
	m.docs[w.ID] = rec
	return nil
}

func (m *memWorksheets) SoftDelete(ctx context.Context, ownerID, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.docs[id]
	if !ok || cur.OwnerID != ownerID {
		return common.ErrorNotFound
	}
	cur.MarkDeleted(at)
	cur.SyncedAt = &at
	return nil
}

func (m *memWorksheets) get(id string) *models.Worksheet {
	m.mu.Lock()
	defer m.mu.Unlock()
	if w, ok := m.docs[id]; ok {
		return w.Clone()
	}
	return nil
}

type fakeFeed struct {
	mu       sync.Mutex
	notified []string
	subs     []chan struct{}
	subErr   error
	canceled int
}

func (f *fakeFeed) Notify(ownerID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notified = append(f.notified, ownerID)
	for _, ch := range f.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

func (f *fakeFeed) Subscribe(ownerID string) (<-chan struct{}, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, nil, f.subErr
	}
	ch := make(chan struct{}, 1)
	f.subs = append(f.subs, ch)
	return ch, func() {
		f.mu.Lock()
		f.canceled++
		f.mu.Unlock()
	}, nil
}

func (f *fakeFeed) notifications() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.notified...)
}
