package syncengine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/simonexmachina/the-work/internal/client/identity"
	"github.com/simonexmachina/the-work/internal/logging"
	"github.com/simonexmachina/the-work/internal/models"
)

type State string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateIdle          State = "idle"
	StateSyncing       State = "syncing"
)

// SyncReport summarises one full reconciliation pass.
type SyncReport struct {
	Uploaded   int
	Downloaded int
	Deleted    int
	// Skipped is set when another pass was already running.
	Skipped bool
}

type Engine struct {
	local  LocalStore
	logger logging.Logger
	events *Emitter
	now    func() time.Time

	// applyMu serialises writes to the local store coming from a full pass,
	// a subscription snapshot or an upload acknowledgement.
	applyMu sync.Mutex

	mu          sync.Mutex
	ctx         context.Context
	identity    Identity
	remote      RemoteStore
	disposeAuth func()
	state       State
	online      bool
	syncActive  bool
	reconciling bool
	draining    bool
	// resume restarts sync on the next online transition after a
	// non-auth failure.
	resume     bool
	authFailed bool
	gen        uint64
	cancelSub  func()
	queue      []PendingOp
}

func NewEngine(local LocalStore, logger logging.Logger) *Engine {
	logger = logger.With("module", "syncengine")
	return &Engine{
		local:  local,
		logger: logger,
		events: NewEmitter(logger),
		now:    time.Now,
		ctx:    context.Background(),
		state:  StateUninitialized,
		online: true,
	}
}

// AddListener registers fn for every engine event and returns its disposer.
func (e *Engine) AddListener(fn Listener) func() {
	return e.events.Add(fn)
}

func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

// Syncing reports whether the standing subscription is up or being set up.
func (e *Engine) Syncing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncActive
}

// Initialize binds the identity provider and the remote store. Sign-in
// starts sync and sign-out stops it. If a user is already signed in, sync
// starts before Initialize returns. Calling it again rebinds.
func (e *Engine) Initialize(ctx context.Context, id Identity, remote RemoteStore) {
	e.StopSync(ctx)

	e.mu.Lock()
	dispose := e.disposeAuth
	e.disposeAuth = nil
	e.ctx = ctx
	e.identity = id
	e.remote = remote
	e.state = StateInitializing
	e.mu.Unlock()

	if dispose != nil {
		dispose()
	}
	d := id.AddListener(e.onIdentity)

	e.mu.Lock()
	e.disposeAuth = d
	e.state = StateIdle
	e.mu.Unlock()

	e.logger.Info(ctx, "sync engine initialized", "authenticated", id.IsAuthenticated())

	if id.IsAuthenticated() {
		e.StartSync(ctx)
	}
}

// Close stops sync and detaches from the identity provider.
func (e *Engine) Close(ctx context.Context) {
	e.StopSync(ctx)

	e.mu.Lock()
	dispose := e.disposeAuth
	e.disposeAuth = nil
	e.mu.Unlock()

	if dispose != nil {
		dispose()
	}
}

func (e *Engine) onIdentity(ev identity.Event, userID string) {
	e.mu.Lock()
	ctx := e.ctx
	e.mu.Unlock()

	switch ev {
	case identity.EventSignIn:
		e.logger.Info(ctx, "signed in, starting sync", "user_id", userID)
		e.mu.Lock()
		e.authFailed = false
		e.mu.Unlock()
		e.StartSync(ctx)
	case identity.EventSignOut:
		e.logger.Info(ctx, "signed out, stopping sync")
		e.StopSync(ctx)
		// Pending writes belong to the previous user.
		e.mu.Lock()
		dropped := len(e.queue)
		e.queue = nil
		e.mu.Unlock()
		if dropped > 0 {
			e.logger.Warn(ctx, "upload queue cleared on sign-out", "dropped", dropped)
		}
	}
}

// StartSync runs a full reconciliation pass and then subscribes to remote
// changes. It is a no-op while a previous start is active or when nobody is
// signed in. Failures are reported as events only.
func (e *Engine) StartSync(ctx context.Context) {
	e.mu.Lock()
	if e.identity == nil || e.remote == nil {
		e.mu.Unlock()
		e.logger.Warn(ctx, "sync start before initialization")
		return
	}
	if e.syncActive {
		e.mu.Unlock()
		e.logger.Debug(ctx, "sync already started")
		return
	}
	if !e.identity.IsAuthenticated() {
		e.mu.Unlock()
		e.logger.Debug(ctx, "sync start skipped, not authenticated")
		return
	}
	e.syncActive = true
	e.resume = false
	e.authFailed = false
	e.gen++
	gen := e.gen
	e.mu.Unlock()

	e.events.Emit(ctx, Event{Type: EventSyncStarted})

	if _, err := e.PerformFullSync(ctx); err != nil {
		e.startFailed(gen, err)
		return
	}

	if err := e.subscribe(ctx, gen); err != nil {
		e.startFailed(gen, err)
		if IsAuthError(err) {
			e.reportAuthFailure(ctx, err)
		} else {
			e.reportSyncError(ctx, "subscribe to remote changes", err)
		}
		return
	}

	e.DrainQueue(ctx)
}

func (e *Engine) startFailed(gen uint64, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.gen != gen {
		return
	}
	e.syncActive = false
	e.resume = !IsAuthError(err)
}

// StopSync tears down the subscription. An in-flight pass is allowed to
// finish. Calling it when nothing is running does nothing.
func (e *Engine) StopSync(ctx context.Context) {
	e.mu.Lock()
	active := e.syncActive || e.cancelSub != nil
	cancel := e.cancelSub
	e.cancelSub = nil
	e.syncActive = false
	e.resume = false
	e.gen++
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if active {
		e.logger.Info(ctx, "sync stopped")
		e.events.Emit(ctx, Event{Type: EventSyncStopped})
	}
}

// SetOnline records a connectivity change. Going online drains the retry
// queue and resumes a sync that was interrupted by a transient failure.
func (e *Engine) SetOnline(ctx context.Context, online bool) {
	e.mu.Lock()
	if e.online == online {
		e.mu.Unlock()
		return
	}
	e.online = online
	resume := online && e.resume
	e.mu.Unlock()

	if !online {
		e.logger.Info(ctx, "offline")
		e.events.Emit(ctx, Event{Type: EventOffline})
		return
	}

	e.logger.Info(ctx, "online")
	e.events.Emit(ctx, Event{Type: EventOnline})
	if resume {
		e.StartSync(ctx)
	}
	e.DrainQueue(ctx)
}

// PerformFullSync runs one reconciliation pass. A concurrent call returns a
// skipped report. Failures are emitted as events and also returned, since
// the caller of a manual pass is waiting for it.
func (e *Engine) PerformFullSync(ctx context.Context) (SyncReport, error) {
	e.mu.Lock()
	if e.identity == nil || e.remote == nil {
		e.mu.Unlock()
		return SyncReport{}, ErrNotInitialized
	}
	if e.reconciling {
		e.mu.Unlock()
		e.logger.Debug(ctx, "full sync already running")
		return SyncReport{Skipped: true}, nil
	}
	if !e.identity.IsAuthenticated() {
		e.mu.Unlock()
		return SyncReport{}, ErrNotAuthenticated
	}
	id, remote := e.identity, e.remote
	e.reconciling = true
	e.state = StateSyncing
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.reconciling = false
		e.state = StateIdle
		e.mu.Unlock()
	}()

	e.events.Emit(ctx, Event{Type: EventSyncProgress, Status: StatusInitialSync})

	report, err := e.reconcile(ctx, id.UserID(), remote)
	if err != nil {
		if IsAuthError(err) {
			e.reportAuthFailure(ctx, err)
		} else {
			e.reportSyncError(ctx, "full sync", err)
		}
		return report, err
	}

	e.logger.Info(ctx, "full sync complete",
		"uploaded", report.Uploaded, "downloaded", report.Downloaded, "deleted", report.Deleted)
	e.events.Emit(ctx, Event{
		Type:       EventSyncProgress,
		Status:     StatusComplete,
		Uploaded:   report.Uploaded,
		Downloaded: report.Downloaded,
		Deleted:    report.Deleted,
	})
	return report, nil
}

func (e *Engine) reconcile(ctx context.Context, ownerID string, remote RemoteStore) (SyncReport, error) {
	var report SyncReport
	var localSet, remoteSet []models.Worksheet

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		localSet, err = e.local.GetAll(gctx)
		if err != nil {
			return fmt.Errorf("load local records: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		var err error
		remoteSet, err = remote.FetchAllForOwner(gctx, ownerID, true)
		if err != nil {
			return fmt.Errorf("fetch remote records: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return report, err
	}

	plan := Reconcile(localSet, remoteSet)

	e.applyMu.Lock()
	defer e.applyMu.Unlock()

	for i := range plan.Uploads {
		w := &plan.Uploads[i]
		w.OwnerID = ownerID
		if _, err := remote.Save(ctx, ownerID, w); err != nil {
			return report, fmt.Errorf("upload %s: %w", w.ID, err)
		}
		e.markSynced(ctx, w)
		report.Uploaded++
	}
	for i := range plan.Downloads {
		w := &plan.Downloads[i]
		cur, err := e.local.GetByID(ctx, w.ID)
		if err != nil {
			return report, fmt.Errorf("reload %s: %w", w.ID, err)
		}
		// The local copy may have changed since the plan was made.
		if cur != nil && (cur.Deleted || !w.NewerThan(cur)) {
			e.logger.Debug(ctx, "download superseded by local write", "id", w.ID)
			continue
		}
		if err := e.local.Save(ctx, w); err != nil {
			return report, fmt.Errorf("store %s: %w", w.ID, err)
		}
		report.Downloaded++
	}
	for _, id := range plan.LocalDeletes {
		cur, err := e.local.GetByID(ctx, id)
		if err != nil {
			return report, fmt.Errorf("reload %s: %w", id, err)
		}
		if cur == nil {
			continue
		}
		if err := e.local.Delete(ctx, id); err != nil {
			return report, fmt.Errorf("delete %s: %w", id, err)
		}
		report.Deleted++
	}

	return report, nil
}

// markSynced stamps SyncedAt on the local copy of w, unless the local copy
// was changed or removed since w was read. applyMu must be held.
func (e *Engine) markSynced(ctx context.Context, w *models.Worksheet) {
	cur, err := e.local.GetByID(ctx, w.ID)
	if err != nil {
		e.logger.Warn(ctx, "read record for sync stamp", "id", w.ID, "error", err)
		return
	}
	if cur == nil || !cur.UpdatedAt.Equal(w.UpdatedAt) {
		return
	}

	now := e.now().UTC()
	cur.SyncedAt = &now
	if err := e.local.Save(ctx, cur); err != nil {
		e.logger.Warn(ctx, "persist sync stamp", "id", w.ID, "error", err)
		return
	}
	w.SyncedAt = &now
}

func (e *Engine) subscribe(ctx context.Context, gen uint64) error {
	e.mu.Lock()
	id, remote := e.identity, e.remote
	e.mu.Unlock()

	// The subscription outlives the call that started it; StopSync ends it.
	subCtx := context.WithoutCancel(ctx)
	cancel, err := remote.Subscribe(subCtx, id.UserID(),
		func(snapshot []models.Worksheet) { e.applySnapshot(subCtx, gen, snapshot) },
		func(err error) { e.subscriptionLost(subCtx, gen, err) },
	)
	if err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		cancel()
		return nil
	}
	e.cancelSub = cancel
	e.mu.Unlock()
	return nil
}

func (e *Engine) current(gen uint64) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.gen == gen
}

var changeEvents = map[ChangeKind]EventType{
	ChangeAdded:   EventRecordAdded,
	ChangeUpdated: EventRecordUpdated,
	ChangeDeleted: EventRecordDeleted,
}

func (e *Engine) applySnapshot(ctx context.Context, gen uint64, snapshot []models.Worksheet) {
	if !e.current(gen) {
		return
	}

	e.applyMu.Lock()
	local, err := e.local.GetAll(ctx)
	if err != nil {
		e.applyMu.Unlock()
		e.reportSyncError(ctx, "load local records", err)
		return
	}

	var applied []Event
	for _, ch := range DiffSnapshot(local, snapshot) {
		rec := ch.Record
		ok, err := e.stillApplies(ctx, ch)
		if err != nil {
			e.logger.Error(ctx, "reload record", "id", rec.ID, "error", err)
			continue
		}
		if !ok {
			e.logger.Debug(ctx, "remote change superseded by local write", "id", rec.ID, "kind", string(ch.Kind))
			continue
		}
		switch ch.Kind {
		case ChangeDeleted:
			err = e.local.Delete(ctx, rec.ID)
		default:
			err = e.local.Save(ctx, &rec)
		}
		if err != nil {
			e.logger.Error(ctx, "apply remote change", "id", rec.ID, "kind", string(ch.Kind), "error", err)
			continue
		}
		applied = append(applied, Event{Type: changeEvents[ch.Kind], Record: &rec, RecordID: rec.ID})
	}
	e.applyMu.Unlock()

	for _, ev := range applied {
		e.events.Emit(ctx, ev)
	}
}

// stillApplies re-checks ch against the current local copy, which may have
// been written after the snapshot was diffed. applyMu must be held.
func (e *Engine) stillApplies(ctx context.Context, ch Change) (bool, error) {
	cur, err := e.local.GetByID(ctx, ch.Record.ID)
	if err != nil {
		return false, err
	}
	if ch.Kind == ChangeDeleted {
		return cur != nil, nil
	}
	return cur == nil || ch.Record.NewerThan(cur), nil
}

// SaveLocal writes w to the local store. Local edits go through here so they
// never interleave with a remote apply.
func (e *Engine) SaveLocal(ctx context.Context, w *models.Worksheet) error {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	return e.local.Save(ctx, w)
}

func (e *Engine) subscriptionLost(ctx context.Context, gen uint64, err error) {
	e.mu.Lock()
	if e.gen != gen {
		e.mu.Unlock()
		return
	}
	e.gen++
	cancel := e.cancelSub
	e.cancelSub = nil
	e.syncActive = false
	auth := IsAuthError(err)
	e.resume = !auth
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	if auth {
		e.reportAuthFailure(ctx, err)
		return
	}
	e.reportSyncError(ctx, "remote subscription lost", err)
}

// SyncRecordToCloud pushes a single local write. When offline or signed out
// the write is queued and nil is returned. Transient failures are queued and
// returned; auth failures are reported and returned but not queued.
func (e *Engine) SyncRecordToCloud(ctx context.Context, w *models.Worksheet) error {
	if w == nil {
		return errors.New("nil record")
	}

	e.mu.Lock()
	online := e.online
	authed := e.authenticatedLocked()
	e.mu.Unlock()

	switch {
	case !online:
		e.enqueue(ctx, w, "offline")
		return nil
	case !authed:
		e.enqueue(ctx, w, "not authenticated")
		return nil
	}

	err := e.upload(ctx, w)
	if err != nil && IsAuthError(err) && e.refreshSession(ctx) {
		err = e.upload(ctx, w)
	}
	if err == nil {
		return nil
	}
	if IsAuthError(err) {
		e.reportAuthFailure(ctx, err)
		return fmt.Errorf("sync record %s: %w", w.ID, err)
	}

	e.enqueue(ctx, w, "upload failed")
	return fmt.Errorf("sync record %s: %w", w.ID, err)
}

// upload sends w to the remote store. A tombstone that already reached the
// remote store once is sent as a soft delete.
func (e *Engine) upload(ctx context.Context, w *models.Worksheet) error {
	e.mu.Lock()
	id, remote := e.identity, e.remote
	e.mu.Unlock()

	if id == nil || remote == nil {
		return ErrNotInitialized
	}

	ownerID := id.UserID()
	rec := w.Clone()
	rec.OwnerID = ownerID

	var err error
	if rec.Deleted && rec.SyncedAt != nil {
		err = remote.SoftDelete(ctx, ownerID, rec.ID)
	} else {
		_, err = remote.Save(ctx, ownerID, rec)
	}
	if err != nil {
		return err
	}

	e.applyMu.Lock()
	e.markSynced(ctx, rec)
	e.applyMu.Unlock()

	e.events.Emit(ctx, Event{Type: EventRecordSynced, Record: rec, RecordID: rec.ID})
	return nil
}

// authenticatedLocked must be called with mu held.
func (e *Engine) authenticatedLocked() bool {
	return e.identity != nil && e.remote != nil && e.identity.IsAuthenticated()
}

// refreshSession forces a token refresh and reports whether it worked.
func (e *Engine) refreshSession(ctx context.Context) bool {
	e.mu.Lock()
	id := e.identity
	e.mu.Unlock()
	if id == nil {
		return false
	}

	if _, err := id.Token(ctx, true); err != nil {
		e.logger.Warn(ctx, "session refresh failed", "error", err)
		return false
	}
	e.logger.Info(ctx, "session refreshed, retrying upload")
	return true
}

// reportAuthFailure tears down the subscription and emits a single
// auth-error until the next sign-in. Sync is not resumed on reconnect.
func (e *Engine) reportAuthFailure(ctx context.Context, err error) {
	e.mu.Lock()
	already := e.authFailed
	e.authFailed = true
	e.gen++
	cancel := e.cancelSub
	e.cancelSub = nil
	e.syncActive = false
	e.resume = false
	e.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	e.logger.Warn(ctx, "authentication rejected", "error", err)
	if already {
		return
	}
	e.events.Emit(ctx, Event{Type: EventAuthError, Message: err.Error(), Code: errorCode(err)})
}

func (e *Engine) reportSyncError(ctx context.Context, op string, err error) {
	e.logger.Error(ctx, "sync failed", "op", op, "error", err)
	e.events.Emit(ctx, Event{
		Type:    EventSyncError,
		Message: fmt.Sprintf("%s: %v", op, err),
		Code:    errorCode(err),
	})
}
