package grpc

import (
	"context"
	"sync"
	"time"

	"github.com/simonexmachina/the-work/internal/common"
	"github.com/simonexmachina/the-work/internal/models"
	"github.com/simonexmachina/the-work/internal/server/auth"
	smodels "github.com/simonexmachina/the-work/internal/server/models"
	"github.com/simonexmachina/the-work/internal/server/services"
)

const testSecret = "k"

type fakeUser struct {
	mu sync.Mutex

	regResp *smodels.User
	regErr  error
	regArgs []string

	saltResp []byte
	saltErr  error

	loginResp *services.TokenPair
	loginErr  error

	refreshResp  *services.TokenPair
	refreshErr   error
	refreshCalls int
}

func (f *fakeUser) Register(ctx context.Context, username string, salt, verifier []byte) (*smodels.User, error) {
	f.regArgs = []string{username, string(salt), string(verifier)}
	return f.regResp, f.regErr
}

func (f *fakeUser) GetSalt(ctx context.Context, username string) ([]byte, error) {
	return f.saltResp, f.saltErr
}

func (f *fakeUser) Login(ctx context.Context, username string, verifierCandidate []byte) (*services.TokenPair, error) {
	return f.loginResp, f.loginErr
}

func (f *fakeUser) RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error) {
	f.mu.Lock()
	f.refreshCalls++
	f.mu.Unlock()
	return f.refreshResp, f.refreshErr
}

func (f *fakeUser) refreshes() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshCalls
}

type fakeWorksheets struct {
	list      []models.Worksheet
	listErr   error
	gotOwner  string
	gotDelete bool

	saved   *models.Worksheet
	saveID  string
	saveErr error

	deletedID string
	deleteErr error

	watch func(ctx context.Context, ownerID string, send func([]models.Worksheet) error) error
}

func (f *fakeWorksheets) FetchAll(ctx context.Context, ownerID string, includeDeleted bool) ([]models.Worksheet, error) {
	f.gotOwner, f.gotDelete = ownerID, includeDeleted
	return f.list, f.listErr
}

func (f *fakeWorksheets) Save(ctx context.Context, ownerID string, w *models.Worksheet) (string, error) {
	f.gotOwner, f.saved = ownerID, w
	return f.saveID, f.saveErr
}

func (f *fakeWorksheets) SoftDelete(ctx context.Context, ownerID, id string) error {
	f.gotOwner, f.deletedID = ownerID, id
	return f.deleteErr
}

func (f *fakeWorksheets) Watch(ctx context.Context, ownerID string, send func([]models.Worksheet) error) error {
	f.gotOwner = ownerID
	if f.watch != nil {
		return f.watch(ctx, ownerID, send)
	}
	return nil
}

type fakeExport struct {
	url      string
	err      error
	gotOwner string
}

func (f *fakeExport) Export(ctx context.Context, ownerID string) (string, error) {
	f.gotOwner = ownerID
	return f.url, f.err
}

// memRepo is a minimal worksheets.Repository for end-to-end tests.
type memRepo struct {
	mu   sync.Mutex
	docs map[string]*models.Worksheet
}

func newMemRepo() *memRepo {
	return &memRepo{docs: map[string]*models.Worksheet{}}
}

func (m *memRepo) ListByOwner(ctx context.Context, ownerID string, includeDeleted bool) ([]models.Worksheet, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Worksheet, 0)
	for _, w := range m.docs {
		if w.OwnerID == ownerID && (includeDeleted || !w.Deleted) {
			out = append(out, *w.Clone())
		}
	}
	return out, nil
}

func (m *memRepo) Save(ctx context.Context, w *models.Worksheet) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.docs[w.ID]; ok && cur.OwnerID != w.OwnerID {
		return common.ErrOwnerConflict
	}
	m.docs[w.ID] = w.Clone()
	return nil
}

func (m *memRepo) SoftDelete(ctx context.Context, ownerID, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.docs[id]
	if !ok || cur.OwnerID != ownerID {
		return common.ErrorNotFound
	}
	cur.MarkDeleted(at)
	return nil
}

func token(userID string, validity time.Duration) string {
	t, err := auth.GenerateToken(userID, []byte(testSecret), validity)
	if err != nil {
		panic(err)
	}
	return t
}
