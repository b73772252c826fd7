package task

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/phrazzld/docgen-api/internal/domain"
	"github.com/phrazzld/docgen-api/internal/generation"
	"github.com/phrazzld/docgen-api/internal/redact"
	"github.com/phrazzld/docgen-api/internal/store"
)

// OverviewGenerationTask documents the repository as a whole from the
// outputs of the units that succeeded. It is tracked under
// domain.OverviewUnitKey.
type OverviewGenerationTask struct {
	taskState

	id        uuid.UUID
	job       *Job
	digests   []generation.UnitDigest
	generator Generator
	store     store.Store
	logger    *slog.Logger

	overview *domain.RepositoryOverview
}

// NewOverviewGenerationTask creates the overview task for job.
func NewOverviewGenerationTask(
	job *Job,
	digests []generation.UnitDigest,
	generator Generator,
	st store.Store,
	logger *slog.Logger,
) *OverviewGenerationTask {
	return &OverviewGenerationTask{
		taskState: taskState{status: TaskStatusPending},
		id:        uuid.New(),
		job:       job,
		digests:   digests,
		generator: generator,
		store:     st,
		logger: logger.With(
			"task_type", TaskTypeOverviewGeneration,
			"repository_id", job.RepositoryID,
		),
	}
}

// ID returns the task's unique identifier
func (t *OverviewGenerationTask) ID() uuid.UUID { return t.id }

// Type returns the task type identifier
func (t *OverviewGenerationTask) Type() string { return TaskTypeOverviewGeneration }

// Overview returns the generated overview once the task completed.
func (t *OverviewGenerationTask) Overview() *domain.RepositoryOverview {
	if t.Status() != TaskStatusCompleted {
		return nil
	}
	return t.overview
}

// Execute generates the overview and writes it to the document. As with
// unit tasks, writes after the started mark ignore cancellation of ctx.
func (t *OverviewGenerationTask) Execute(ctx context.Context) error {
	t.set(TaskStatusProcessing)
	repo, gen, key := t.job.RepositoryID, t.job.Generation, domain.OverviewUnitKey

	if err := t.store.MarkUnitStarted(ctx, repo, gen, key); err != nil {
		t.set(TaskStatusFailed)
		return fmt.Errorf("mark overview started: %w", err)
	}
	writeCtx := context.WithoutCancel(ctx)

	overview, err := t.generator.GenerateOverview(ctx, t.job.RepositoryName, t.digests)
	if err != nil {
		t.set(TaskStatusFailed)
		t.logger.Warn("overview generation failed", "error", redact.Error(err))
		if err := t.store.MarkUnitTerminal(writeCtx, repo, gen, key, false); err != nil {
			return fmt.Errorf("mark overview failed: %w", err)
		}
		return nil
	}

	if err := t.store.PutOverview(writeCtx, repo, gen, *overview); err != nil {
		t.set(TaskStatusFailed)
		if !store.IsStaleGeneration(err) {
			if markErr := t.store.MarkUnitTerminal(writeCtx, repo, gen, key, false); markErr != nil {
				t.logger.Error("failed to mark overview failed after store error", "error", markErr)
			}
		}
		return fmt.Errorf("store overview: %w", err)
	}

	if err := t.store.MarkUnitTerminal(writeCtx, repo, gen, key, true); err != nil {
		t.set(TaskStatusFailed)
		return fmt.Errorf("mark overview completed: %w", err)
	}

	t.overview = overview
	t.set(TaskStatusCompleted)
	t.logger.Debug("overview documented", "unit_count", len(t.digests))
	return nil
}
