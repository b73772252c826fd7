package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

// Broadcaster is the in-process EventEmitter. A status write is delivered to
// every registered handler on the writer's goroutine, so a waiter registered
// through the Hub is woken before the store call returns.
type Broadcaster struct {
	mu       sync.RWMutex
	handlers []EventHandler
	logger   *slog.Logger
}

var _ EventEmitter = (*Broadcaster)(nil)

// NewBroadcaster creates a Broadcaster with no handlers.
func NewBroadcaster(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Broadcaster{logger: logger.With("component", "status_broadcaster")}
}

// Register adds h to the handlers receiving status changes.
func (b *Broadcaster) Register(h EventHandler) {
	b.mu.Lock()
	b.handlers = append(b.handlers, h)
	n := len(b.handlers)
	b.mu.Unlock()
	b.logger.Debug("status handler registered", "handler_count", n)
}

// EmitEvent delivers event to all handlers. A failing handler does not stop
// delivery to the rest; their errors are joined.
func (b *Broadcaster) EmitEvent(ctx context.Context, event *StatusChangedEvent) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers...)
	b.mu.RUnlock()

	var errs []error
	for i, h := range handlers {
		if err := h.HandleEvent(ctx, event); err != nil {
			b.logger.Error("status handler failed",
				"handler_index", i,
				"repository_id", event.RepositoryID,
				"generation", event.Generation,
				"overall_status", event.OverallStatus,
				"unit_key", event.UnitKey,
				"error", err)
			errs = append(errs, fmt.Errorf("status handler %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}
