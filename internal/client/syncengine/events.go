package syncengine

import (
	"context"
	"sync"

	"github.com/simonexmachina/the-work/internal/logging"
	"github.com/simonexmachina/the-work/internal/models"
)

type EventType string

const (
	EventSyncStarted   EventType = "sync-started"
	EventSyncProgress  EventType = "sync-progress"
	EventSyncError     EventType = "sync-error"
	EventAuthError     EventType = "auth-error"
	EventRecordAdded   EventType = "record-added"
	EventRecordUpdated EventType = "record-updated"
	EventRecordDeleted EventType = "record-deleted"
	EventRecordSynced  EventType = "record-synced"
	EventOnline        EventType = "online"
	EventOffline       EventType = "offline"
	EventSyncStopped   EventType = "sync-stopped"
)

// Progress statuses carried by EventSyncProgress.
const (
	StatusInitialSync = "initial-sync"
	StatusComplete    = "complete"
)

// Event is the payload delivered to listeners. Only the fields relevant to
// Type are set.
type Event struct {
	Type EventType

	Status     string
	Uploaded   int
	Downloaded int
	Deleted    int

	Record   *models.Worksheet
	RecordID string

	Message string
	Code    string
}

type Listener func(Event)

// Emitter fans events out to registered listeners in registration order.
// A panicking listener is logged and does not stop delivery to the others.
type Emitter struct {
	mu        sync.Mutex
	nextID    int
	order     []int
	listeners map[int]Listener
	logger    logging.Logger
}

func NewEmitter(logger logging.Logger) *Emitter {
	return &Emitter{listeners: make(map[int]Listener), logger: logger}
}

// Add registers fn and returns a function that removes it. Calling the
// returned function more than once is harmless.
func (e *Emitter) Add(fn Listener) func() {
	e.mu.Lock()
	defer e.mu.Unlock()

	id := e.nextID
	e.nextID++
	e.listeners[id] = fn
	e.order = append(e.order, id)

	var once sync.Once
	return func() {
		once.Do(func() { e.remove(id) })
	}
}

func (e *Emitter) remove(id int) {
	e.mu.Lock()
	defer e.mu.Unlock()

	delete(e.listeners, id)
	for i, v := range e.order {
		if v == id {
			e.order = append(e.order[:i], e.order[i+1:]...)
			break
		}
	}
}

func (e *Emitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.order)
}

// Emit delivers ev synchronously. Listeners run outside the emitter lock so
// they may add or remove listeners.
func (e *Emitter) Emit(ctx context.Context, ev Event) {
	e.mu.Lock()
	fns := make([]Listener, 0, len(e.order))
	for _, id := range e.order {
		fns = append(fns, e.listeners[id])
	}
	e.mu.Unlock()

	for _, fn := range fns {
		e.deliver(ctx, fn, ev)
	}
}

func (e *Emitter) deliver(ctx context.Context, fn Listener, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error(ctx, "event listener panicked", "event", string(ev.Type), "panic", r)
		}
	}()
	fn(ev)
}
