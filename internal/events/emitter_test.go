package events

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/docgen-api/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler keeps the events it receives.
type recordingHandler struct {
	mu     sync.Mutex
	events []*StatusChangedEvent
	err    error
}

func (h *recordingHandler) HandleEvent(_ context.Context, event *StatusChangedEvent) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, event)
	return h.err
}

func (h *recordingHandler) received() []*StatusChangedEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*StatusChangedEvent(nil), h.events...)
}

func TestBroadcaster(t *testing.T) {
	t.Parallel()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	unitStarted := func() *StatusChangedEvent {
		return NewStatusChangedEvent("/srv/repos/ledger", uuid.New(), domain.OverallStatusInProgress, "ledger/posting.py")
	}

	t.Run("no handlers", func(t *testing.T) {
		b := NewBroadcaster(logger)
		assert.NoError(t, b.EmitEvent(context.Background(), unitStarted()))
	})

	t.Run("every handler sees the event", func(t *testing.T) {
		b := NewBroadcaster(logger)
		first, second := &recordingHandler{}, &recordingHandler{}
		b.Register(first)
		b.Register(second)

		event := unitStarted()
		require.NoError(t, b.EmitEvent(context.Background(), event))

		assert.Equal(t, []*StatusChangedEvent{event}, first.received())
		assert.Equal(t, []*StatusChangedEvent{event}, second.received())
	})

	t.Run("failures are joined and delivery continues", func(t *testing.T) {
		b := NewBroadcaster(logger)
		errHub := errors.New("hub closed")
		errAudit := errors.New("audit sink full")
		failing := &recordingHandler{err: errHub}
		healthy := &recordingHandler{}
		alsoFailing := &recordingHandler{err: errAudit}
		b.Register(failing)
		b.Register(healthy)
		b.Register(alsoFailing)

		err := b.EmitEvent(context.Background(), unitStarted())
		assert.ErrorIs(t, err, errHub)
		assert.ErrorIs(t, err, errAudit)
		assert.Contains(t, err.Error(), "status handler 0")
		assert.Contains(t, err.Error(), "status handler 2")

		assert.Len(t, failing.received(), 1)
		assert.Len(t, healthy.received(), 1)
		assert.Len(t, alsoFailing.received(), 1)
	})

	t.Run("handler func adapter", func(t *testing.T) {
		b := NewBroadcaster(nil)
		var got string
		b.Register(EventHandlerFunc(func(_ context.Context, e *StatusChangedEvent) error {
			got = e.UnitKey
			return nil
		}))
		require.NoError(t, b.EmitEvent(context.Background(), unitStarted()))
		assert.Equal(t, "ledger/posting.py", got)
	})
}
