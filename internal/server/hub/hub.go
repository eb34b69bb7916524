// Package hub fans out change notifications to the live subscriptions of
// each owner. Notifications carry no payload: a subscriber that wakes up
// reloads the owner's records itself, so bursts of writes coalesce into a
// single wake-up.
package hub

import (
	"errors"
	"sync"
)

var ErrTooManySubscribers = errors.New("too many subscriptions for user")

type subscriber struct {
	ch chan struct{}
}

type Hub struct {
	mu         sync.RWMutex
	owners     map[string]map[uint64]*subscriber
	next       uint64
	maxPerUser int
}

// New returns a hub that allows at most maxPerUser concurrent
// subscriptions per owner. Zero means unlimited.
func New(maxPerUser int) *Hub {
	return &Hub{
		owners:     make(map[string]map[uint64]*subscriber),
		maxPerUser: maxPerUser,
	}
}

// Subscribe registers a subscription for ownerID. The returned channel
// receives a value after every Notify for that owner; pending values are
// merged. The cancel function is idempotent.
func (h *Hub) Subscribe(ownerID string) (<-chan struct{}, func(), error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.owners[ownerID]
	if h.maxPerUser > 0 && len(subs) >= h.maxPerUser {
		return nil, nil, ErrTooManySubscribers
	}
	if subs == nil {
		subs = make(map[uint64]*subscriber)
		h.owners[ownerID] = subs
	}

	h.next++
	id := h.next
	s := &subscriber{ch: make(chan struct{}, 1)}
	subs[id] = s

	var once sync.Once
	cancel := func() {
		once.Do(func() { h.remove(ownerID, id) })
	}
	return s.ch, cancel, nil
}

func (h *Hub) remove(ownerID string, id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := h.owners[ownerID]
	delete(subs, id)
	if len(subs) == 0 {
		delete(h.owners, ownerID)
	}
}

// Notify wakes every subscription of ownerID without blocking.
func (h *Hub) Notify(ownerID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, s := range h.owners[ownerID] {
		select {
		case s.ch <- struct{}{}:
		default:
		}
	}
}

// Subscribers returns the number of live subscriptions of ownerID.
func (h *Hub) Subscribers(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.owners[ownerID])
}
