package syncengine

import (
	"context"
	"errors"
	"maps"
	"sort"
	"sync"
	"time"

	"github.com/simonexmachina/the-work/internal/client/identity"
	"github.com/simonexmachina/the-work/internal/models"
)

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func ws(id string, updated time.Time, deleted bool) models.Worksheet {
	w := models.Worksheet{ID: id, UpdatedAt: updated, Deleted: deleted, Fields: map[string]any{"situation": "s-" + id}}
	if deleted {
		t := updated
		w.DeletedAt = &t
	}
	return w
}

type fakeLocal struct {
	mu      sync.Mutex
	records map[string]models.Worksheet
	getErr  error
}

func newFakeLocal(records ...models.Worksheet) *fakeLocal {
	f := &fakeLocal{records: make(map[string]models.Worksheet)}
	for _, r := range records {
		f.records[r.ID] = *r.Clone()
	}
	return f
}

func (f *fakeLocal) GetAll(context.Context) ([]models.Worksheet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	return sorted(f.records), nil
}

func (f *fakeLocal) GetByID(_ context.Context, id string) (*models.Worksheet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	if !ok {
		return nil, nil
	}
	return r.Clone(), nil
}

func (f *fakeLocal) Save(_ context.Context, w *models.Worksheet) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[w.ID] = *w.Clone()
	return nil
}

func (f *fakeLocal) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.records, id)
	return nil
}

// racingLocal runs afterGetAll once, right after the next GetAll returns.
// It stands in for a local write landing while a remote change is applied.
type racingLocal struct {
	*fakeLocal
	mu          sync.Mutex
	afterGetAll func()
}

func (r *racingLocal) GetAll(ctx context.Context) ([]models.Worksheet, error) {
	out, err := r.fakeLocal.GetAll(ctx)
	r.mu.Lock()
	hook := r.afterGetAll
	r.afterGetAll = nil
	r.mu.Unlock()
	if hook != nil {
		hook()
	}
	return out, err
}

func (f *fakeLocal) get(id string) (models.Worksheet, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	return r, ok
}

type fakeRemote struct {
	mu       sync.Mutex
	records  map[string]models.Worksheet
	saves    map[string]int
	deletes  map[string]int
	saveErr  error
	failFor  map[string]error
	failOnce map[string]error
	fetchErr error
	subErr   error

	onSnapshot func([]models.Worksheet)
	onError    func(error)
	cancelled  int
}

func newFakeRemote(records ...models.Worksheet) *fakeRemote {
	f := &fakeRemote{
		records:  make(map[string]models.Worksheet),
		saves:    make(map[string]int),
		deletes:  make(map[string]int),
		failFor:  make(map[string]error),
		failOnce: make(map[string]error),
	}
	for _, r := range records {
		f.records[r.ID] = *r.Clone()
	}
	return f
}

func (f *fakeRemote) setSaveErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveErr = err
}

func (f *fakeRemote) setFailFor(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err == nil {
		delete(f.failFor, id)
		return
	}
	f.failFor[id] = err
}

func (f *fakeRemote) setFailOnce(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failOnce[id] = err
}

func (f *fakeRemote) setFetchErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetchErr = err
}

func (f *fakeRemote) cancelCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelled
}

func (f *fakeRemote) deleteCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.deletes[id]
}

func (f *fakeRemote) snapshotFn() func([]models.Worksheet) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onSnapshot
}

func (f *fakeRemote) FetchAllForOwner(_ context.Context, _ string, includeDeleted bool) ([]models.Worksheet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	out := sorted(f.records)
	if includeDeleted {
		return out, nil
	}
	live := out[:0]
	for _, r := range out {
		if !r.Deleted {
			live = append(live, r)
		}
	}
	return live, nil
}

func (f *fakeRemote) Save(_ context.Context, ownerID string, w *models.Worksheet) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saves[w.ID]++
	if f.saveErr != nil {
		return "", f.saveErr
	}
	if err := f.failFor[w.ID]; err != nil {
		return "", err
	}
	if err := f.failOnce[w.ID]; err != nil {
		delete(f.failOnce, w.ID)
		return "", err
	}
	merged := w.Clone()
	if prev, ok := f.records[w.ID]; ok {
		fields := maps.Clone(prev.Fields)
		maps.Copy(fields, w.Fields)
		merged.Fields = fields
	}
	merged.OwnerID = ownerID
	f.records[w.ID] = *merged
	return w.ID, nil
}

func (f *fakeRemote) SoftDelete(_ context.Context, _ string, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes[id]++
	if f.saveErr != nil {
		return f.saveErr
	}
	r, ok := f.records[id]
	if !ok {
		return errors.New("not found")
	}
	r.MarkDeleted(time.Now())
	f.records[id] = r
	return nil
}

func (f *fakeRemote) Subscribe(_ context.Context, _ string, onSnapshot func([]models.Worksheet), onError func(error)) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subErr != nil {
		return nil, f.subErr
	}
	f.onSnapshot = onSnapshot
	f.onError = onError
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.cancelled++
		f.onSnapshot = nil
		f.onError = nil
	}, nil
}

func (f *fakeRemote) push(records ...models.Worksheet) {
	f.mu.Lock()
	fn := f.onSnapshot
	f.mu.Unlock()
	if fn != nil {
		fn(records)
	}
}

func (f *fakeRemote) fail(err error) {
	f.mu.Lock()
	fn := f.onError
	f.mu.Unlock()
	if fn != nil {
		fn(err)
	}
}

func (f *fakeRemote) subscribed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.onSnapshot != nil
}

func (f *fakeRemote) saveCount(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.saves[id]
}

func (f *fakeRemote) get(id string) (models.Worksheet, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.records[id]
	return r, ok
}

type fakeIdentity struct {
	mu        sync.Mutex
	userID    string
	listeners map[int]identity.Listener
	next      int
	tokenErr  error
	refreshes int
}

func newFakeIdentity(userID string) *fakeIdentity {
	return &fakeIdentity{userID: userID, listeners: make(map[int]identity.Listener)}
}

func (f *fakeIdentity) IsAuthenticated() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID != ""
}

func (f *fakeIdentity) UserID() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.userID
}

func (f *fakeIdentity) Token(_ context.Context, forceRefresh bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if forceRefresh {
		f.refreshes++
	}
	if f.tokenErr != nil {
		return "", f.tokenErr
	}
	return "token", nil
}

func (f *fakeIdentity) setTokenErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenErr = err
}

func (f *fakeIdentity) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func (f *fakeIdentity) AddListener(fn identity.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := f.next
	f.next++
	f.listeners[id] = fn
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fakeIdentity) emit(ev identity.Event, userID string) {
	f.mu.Lock()
	fns := make([]identity.Listener, 0, len(f.listeners))
	for _, fn := range f.listeners {
		fns = append(fns, fn)
	}
	f.mu.Unlock()
	for _, fn := range fns {
		fn(ev, userID)
	}
}

func (f *fakeIdentity) signIn(userID string) {
	f.mu.Lock()
	f.userID = userID
	f.mu.Unlock()
	f.emit(identity.EventSignIn, userID)
}

func (f *fakeIdentity) signOut() {
	f.mu.Lock()
	f.userID = ""
	f.mu.Unlock()
	f.emit(identity.EventSignOut, "")
}

func (f *fakeIdentity) listenerCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

// recorder collects engine events.
type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) listen(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) ofType(t EventType) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Event
	for _, ev := range r.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func sorted(m map[string]models.Worksheet) []models.Worksheet {
	out := make([]models.Worksheet, 0, len(m))
	for _, r := range m {
		out = append(out, *r.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
