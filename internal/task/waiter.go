package task

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/docgen-api/internal/domain"
	"github.com/phrazzld/docgen-api/internal/store"
)

// Notifier delivers a signal whenever a repository's status may have
// changed. *events.Hub implements it.
type Notifier interface {
	Subscribe(repositoryID string) (<-chan struct{}, func())
}

// DefaultPollInterval bounds how long a waiter goes without re-reading
// status when no change notification arrives.
const DefaultPollInterval = 2 * time.Second

// CompletionWaiter blocks until a repository's job reaches a terminal state.
type CompletionWaiter struct {
	store        store.Store
	notifier     Notifier
	pollInterval time.Duration
	logger       *slog.Logger
}

// NewCompletionWaiter creates a waiter. A non-positive pollInterval uses
// DefaultPollInterval.
func NewCompletionWaiter(
	st store.Store,
	notifier Notifier,
	pollInterval time.Duration,
	logger *slog.Logger,
) (*CompletionWaiter, error) {
	if st == nil {
		return nil, ErrNilStore
	}
	if notifier == nil {
		return nil, ErrNilNotifier
	}
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CompletionWaiter{
		store:        st,
		notifier:     notifier,
		pollInterval: pollInterval,
		logger:       logger.With("component", "completion_waiter"),
	}, nil
}

// Await returns the repository's document once its job is Completed. If the
// job ends Failed the document is returned together with ErrJobFailed.
// Awaiting a repository with no job yet waits for one to start and finish.
// There is no internal timeout: when ctx ends, ctx.Err() is returned.
func (w *CompletionWaiter) Await(ctx context.Context, repositoryID string) (*domain.Document, error) {
	return w.AwaitJob(ctx, repositoryID, 0)
}

// AwaitJob is Await restricted to jobs whose status record ID is at least
// minJobID. A caller that submitted a job passes its Job.ID so that the
// terminal record of an earlier job is not mistaken for its own. A
// minJobID of zero accepts any job.
func (w *CompletionWaiter) AwaitJob(ctx context.Context, repositoryID string, minJobID int64) (*domain.Document, error) {
	if err := domain.ValidateRepositoryID(repositoryID); err != nil {
		return nil, err
	}

	// Subscribe before the first read so a transition between the read and
	// the wait is not missed.
	changed, cancel := w.notifier.Subscribe(repositoryID)
	defer cancel()

	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		doc, done, err := w.check(ctx, repositoryID, minJobID)
		if done {
			return doc, err
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-changed:
		case <-ticker.C:
		}
	}
}

// check reads the status once. done reports whether Await should return.
func (w *CompletionWaiter) check(ctx context.Context, repositoryID string, minJobID int64) (*domain.Document, bool, error) {
	status, err := w.store.GetStatus(ctx, repositoryID)
	if err != nil {
		if store.IsNotFoundError(err) {
			return nil, false, nil
		}
		if ctx.Err() != nil {
			return nil, true, ctx.Err()
		}
		return nil, true, fmt.Errorf("read job status: %w", err)
	}
	if status.ID < minJobID {
		// An earlier job; the awaited one has not started yet.
		return nil, false, nil
	}

	switch status.OverallStatus {
	case domain.OverallStatusCompleted:
		doc, err := w.document(ctx, status)
		return doc, true, err
	case domain.OverallStatusFailed:
		doc, err := w.document(ctx, status)
		if err != nil {
			return nil, true, err
		}
		return doc, true, fmt.Errorf("%w: repository %s", ErrJobFailed, repositoryID)
	default:
		return nil, false, nil
	}
}

// document returns the stored document, or an empty one when the job
// finished without storing anything.
func (w *CompletionWaiter) document(ctx context.Context, status *domain.JobStatus) (*domain.Document, error) {
	doc, err := w.store.GetDocument(ctx, status.RepositoryID)
	if err == nil {
		return doc, nil
	}
	if store.IsNotFoundError(err) {
		w.logger.Debug("job finished without a document", "repository_id", status.RepositoryID)
		return domain.NewDocument(status.RepositoryID, status.Generation), nil
	}
	return nil, fmt.Errorf("read document: %w", err)
}
