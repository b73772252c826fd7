package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/phrazzld/docgen-api/internal/domain"
	"github.com/phrazzld/docgen-api/internal/events"
)

// StatusChannel is the NOTIFY channel written by the job_status trigger.
const StatusChannel = "job_status_changed"

const (
	minReconnectDelay = 500 * time.Millisecond
	maxReconnectDelay = 30 * time.Second
)

// statusNotification is the JSON payload built by notify_job_status_changed.
type statusNotification struct {
	RepositoryID  string    `json:"repository_id"`
	Generation    uuid.UUID `json:"generation"`
	OverallStatus string    `json:"overall_status"`
}

// Listener turns job_status notifications into StatusChangedEvents. It holds
// one dedicated connection and reconnects with backoff when it drops.
type Listener struct {
	databaseURL string
	emitter     events.EventEmitter
	logger      *slog.Logger
}

// NewListener creates a listener for the database at databaseURL.
func NewListener(databaseURL string, emitter events.EventEmitter, logger *slog.Logger) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Listener{
		databaseURL: databaseURL,
		emitter:     emitter,
		logger:      logger.With("component", "status_listener"),
	}
}

// Run listens until ctx is done. It only returns ctx.Err().
func (l *Listener) Run(ctx context.Context) error {
	delay := minReconnectDelay
	for {
		err := l.listen(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		l.logger.Warn("status listener disconnected",
			"error", err,
			"retry_in", delay.String())

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
		delay = min(delay*2, maxReconnectDelay)
	}
}

func (l *Listener) listen(ctx context.Context) error {
	conn, err := pgx.Connect(ctx, l.databaseURL)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = conn.Close(closeCtx)
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+StatusChannel); err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	l.logger.Info("listening for status changes", "channel", StatusChannel)

	for {
		n, err := conn.WaitForNotification(ctx)
		if err != nil {
			return err
		}
		event, err := decodeNotification(n.Payload)
		if err != nil {
			l.logger.Warn("ignoring malformed notification", "error", err)
			continue
		}
		if err := l.emitter.EmitEvent(ctx, event); err != nil {
			l.logger.Warn("failed to dispatch status change",
				"repository_id", event.RepositoryID,
				"error", err)
		}
	}
}

func decodeNotification(payload string) (*events.StatusChangedEvent, error) {
	var n statusNotification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		return nil, fmt.Errorf("decode notification: %w", err)
	}
	if n.RepositoryID == "" {
		return nil, errors.New("notification without repository_id")
	}
	overall, err := domain.ParseOverallStatus(n.OverallStatus)
	if err != nil {
		return nil, err
	}
	return events.NewStatusChangedEvent(n.RepositoryID, n.Generation, overall, ""), nil
}
