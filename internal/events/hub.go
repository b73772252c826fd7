package events

import (
	"context"
	"sync"
)

// Hub fans status change events out to per-repository subscribers.
// A subscriber receives a signal, not the event: signals coalesce, so a slow
// subscriber sees at least one wake-up after any number of changes.
type Hub struct {
	mu     sync.Mutex
	nextID uint64
	subs   map[string]map[uint64]chan struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[uint64]chan struct{})}
}

// Subscribe registers interest in repositoryID. The returned channel receives
// a value after each change; cancel must be called to release it.
func (h *Hub) Subscribe(repositoryID string) (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	h.mu.Lock()
	id := h.nextID
	h.nextID++
	if h.subs[repositoryID] == nil {
		h.subs[repositoryID] = make(map[uint64]chan struct{})
	}
	h.subs[repositoryID][id] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			delete(h.subs[repositoryID], id)
			if len(h.subs[repositoryID]) == 0 {
				delete(h.subs, repositoryID)
			}
		})
	}
	return ch, cancel
}

// Notify wakes every subscriber of repositoryID without blocking.
func (h *Hub) Notify(repositoryID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, ch := range h.subs[repositoryID] {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// HandleEvent implements EventHandler so a Hub can be registered on an emitter.
func (h *Hub) HandleEvent(_ context.Context, event *StatusChangedEvent) error {
	h.Notify(event.RepositoryID)
	return nil
}

// SubscriberCount returns the number of active subscriptions for repositoryID.
func (h *Hub) SubscriberCount(repositoryID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[repositoryID])
}
