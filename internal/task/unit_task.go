package task

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/phrazzld/docgen-api/internal/generation"
	"github.com/phrazzld/docgen-api/internal/redact"
	"github.com/phrazzld/docgen-api/internal/source"
	"github.com/phrazzld/docgen-api/internal/store"
)

// taskState guards a task's status for readers outside the worker.
type taskState struct {
	mu     sync.Mutex
	status TaskStatus
}

func (s *taskState) Status() TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *taskState) set(status TaskStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// UnitGenerationTask documents a single unit of a job. A generation failure
// marks the unit Failed and is not returned as an error; only storage
// failures are.
type UnitGenerationTask struct {
	taskState

	id        uuid.UUID
	job       *Job
	unit      source.Unit
	generator Generator
	store     store.Store
	logger    *slog.Logger

	output *generation.UnitOutput
}

// NewUnitGenerationTask creates a task for unit within job.
func NewUnitGenerationTask(
	job *Job,
	unit source.Unit,
	generator Generator,
	st store.Store,
	logger *slog.Logger,
) *UnitGenerationTask {
	return &UnitGenerationTask{
		taskState: taskState{status: TaskStatusPending},
		id:        uuid.New(),
		job:       job,
		unit:      unit,
		generator: generator,
		store:     st,
		logger: logger.With(
			"task_type", TaskTypeUnitGeneration,
			"repository_id", job.RepositoryID,
			"unit_key", unit.Key,
		),
	}
}

// ID returns the task's unique identifier
func (t *UnitGenerationTask) ID() uuid.UUID { return t.id }

// Type returns the task type identifier
func (t *UnitGenerationTask) Type() string { return TaskTypeUnitGeneration }

// UnitKey returns the key of the unit being documented.
func (t *UnitGenerationTask) UnitKey() string { return t.unit.Key }

// Output returns the generated output, or nil unless the task completed.
func (t *UnitGenerationTask) Output() *generation.UnitOutput {
	if t.Status() != TaskStatusCompleted {
		return nil
	}
	return t.output
}

// Execute marks the unit started, generates its documentation, stores the
// result and marks the unit terminal. Once the unit is marked started, the
// remaining writes ignore cancellation of ctx so that a started unit always
// ends terminal.
func (t *UnitGenerationTask) Execute(ctx context.Context) error {
	t.set(TaskStatusProcessing)
	repo, gen, key := t.job.RepositoryID, t.job.Generation, t.unit.Key

	if err := t.store.MarkUnitStarted(ctx, repo, gen, key); err != nil {
		t.set(TaskStatusFailed)
		return fmt.Errorf("mark unit %s started: %w", key, err)
	}
	writeCtx := context.WithoutCancel(ctx)

	out, err := t.generator.GenerateUnit(ctx, generation.UnitInput{
		RepositoryName: t.job.RepositoryName,
		Key:            key,
		Category:       t.unit.Category,
		Content:        t.unit.Content,
	})
	if err != nil {
		t.set(TaskStatusFailed)
		t.logger.Warn("unit generation failed", "error", redact.Error(err))
		if err := t.store.MarkUnitTerminal(writeCtx, repo, gen, key, false); err != nil {
			return fmt.Errorf("mark unit %s failed: %w", key, err)
		}
		return nil
	}

	if err := t.store.PutUnitResult(writeCtx, repo, gen, key, out.Result); err != nil {
		t.set(TaskStatusFailed)
		if !store.IsStaleGeneration(err) {
			if markErr := t.store.MarkUnitTerminal(writeCtx, repo, gen, key, false); markErr != nil {
				t.logger.Error("failed to mark unit failed after store error", "error", markErr)
			}
		}
		return fmt.Errorf("store unit %s result: %w", key, err)
	}

	if err := t.store.MarkUnitTerminal(writeCtx, repo, gen, key, true); err != nil {
		t.set(TaskStatusFailed)
		return fmt.Errorf("mark unit %s completed: %w", key, err)
	}

	t.output = out
	t.set(TaskStatusCompleted)
	t.logger.Debug("unit documented")
	return nil
}
