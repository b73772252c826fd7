package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docgen-api/internal/domain"
)

// StatusChangedEvent announces that the job status record of a repository
// was written. It carries enough to route the notification; subscribers
// re-read the store for the authoritative state.
type StatusChangedEvent struct {
	// ID is a unique identifier for this event
	ID uuid.UUID `json:"id"`

	RepositoryID  string               `json:"repository_id"`
	Generation    uuid.UUID            `json:"generation"`
	OverallStatus domain.OverallStatus `json:"overall_status"`

	// UnitKey is set when the change concerned a single unit.
	UnitKey string `json:"unit_key,omitempty"`

	OccurredAt time.Time `json:"occurred_at"`
}

// NewStatusChangedEvent creates an event for a status write.
func NewStatusChangedEvent(
	repositoryID string,
	generation uuid.UUID,
	overall domain.OverallStatus,
	unitKey string,
) *StatusChangedEvent {
	return &StatusChangedEvent{
		ID:            uuid.New(),
		RepositoryID:  repositoryID,
		Generation:    generation,
		OverallStatus: overall,
		UnitKey:       unitKey,
		OccurredAt:    time.Now().UTC(),
	}
}

// EventHandler defines an interface for components that can handle events.
type EventHandler interface {
	// HandleEvent processes the given event within the provided context.
	// Returns an error if the event cannot be handled successfully.
	HandleEvent(ctx context.Context, event *StatusChangedEvent) error
}

// EventEmitter defines an interface for components that can emit events.
// Stores publish status changes through it without knowing who listens.
type EventEmitter interface {
	// EmitEvent publishes the given event to all registered handlers.
	EmitEvent(ctx context.Context, event *StatusChangedEvent) error
}

// EventHandlerFunc adapts a function to EventHandler.
type EventHandlerFunc func(ctx context.Context, event *StatusChangedEvent) error

// HandleEvent calls f(ctx, event).
func (f EventHandlerFunc) HandleEvent(ctx context.Context, event *StatusChangedEvent) error {
	return f(ctx, event)
}

// NopEmitter discards every event.
type NopEmitter struct{}

// EmitEvent implements EventEmitter.
func (NopEmitter) EmitEvent(context.Context, *StatusChangedEvent) error { return nil }
