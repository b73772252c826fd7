package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/docgen-api/internal/domain"
	"github.com/phrazzld/docgen-api/internal/generation"
	"github.com/phrazzld/docgen-api/internal/source"
	"github.com/phrazzld/docgen-api/internal/store"
)

// Job is a started documentation job: its status record exists and its
// units are known.
type Job struct {
	// ID is the store-assigned identity of the job's status record. IDs
	// increase with every started job.
	ID             int64
	RepositoryID   string
	RepositoryName string
	Generation     uuid.UUID
	Units          []source.Unit
	StartedAt      time.Time
}

// JobReport summarizes a finished job.
type JobReport struct {
	RepositoryID      string
	Generation        uuid.UUID
	Units             domain.UnitCounts
	OverviewSucceeded bool
	Status            domain.OverallStatus
	Duration          time.Duration
}

// OrchestratorConfig holds configuration for the orchestrator
type OrchestratorConfig struct {
	// UnitWorkerCount bounds concurrent unit tasks per job.
	UnitWorkerCount int

	// Filter selects the units of a repository.
	Filter source.Filter
}

// Orchestrator drives a job through its phases: list units, start the job,
// fan out unit tasks, join, generate the overview, and mark the job terminal.
type Orchestrator struct {
	source    source.Provider
	generator Generator
	store     store.Store
	config    OrchestratorConfig
	logger    *slog.Logger
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(
	src source.Provider,
	generator Generator,
	st store.Store,
	config OrchestratorConfig,
	logger *slog.Logger,
) (*Orchestrator, error) {
	if src == nil {
		return nil, ErrNilSource
	}
	if generator == nil {
		return nil, ErrNilGenerator
	}
	if st == nil {
		return nil, ErrNilStore
	}
	if logger == nil {
		logger = slog.Default()
	}
	if config.UnitWorkerCount <= 0 {
		config.UnitWorkerCount = DefaultWorkerPoolConfig().WorkerCount
	}
	return &Orchestrator{
		source:    src,
		generator: generator,
		store:     st,
		config:    config,
		logger:    logger.With("component", "orchestrator"),
	}, nil
}

// Prepare lists the repository's units and starts a new job for it. Nothing
// is written when listing fails. Starting discards any previous job and
// document for the repository.
func (o *Orchestrator) Prepare(ctx context.Context, repositoryID string) (*Job, error) {
	if err := domain.ValidateRepositoryID(repositoryID); err != nil {
		return nil, err
	}

	units, err := o.source.ListUnits(ctx, repositoryID, o.config.Filter)
	if err != nil {
		return nil, fmt.Errorf("list units: %w", err)
	}

	gen := uuid.New()
	status, err := o.store.StartJob(ctx, repositoryID, gen)
	if err != nil {
		return nil, fmt.Errorf("start job: %w", err)
	}

	o.logger.Info("documentation job started",
		"job_id", status.ID,
		"repository_id", repositoryID,
		"generation", gen,
		"unit_count", len(units))

	return &Job{
		ID:             status.ID,
		RepositoryID:   repositoryID,
		RepositoryName: domain.RepositoryName(repositoryID),
		Generation:     gen,
		Units:          units,
		StartedAt:      time.Now(),
	}, nil
}

// RunJob prepares and runs a job synchronously.
func (o *Orchestrator) RunJob(ctx context.Context, repositoryID string) (*JobReport, error) {
	job, err := o.Prepare(ctx, repositoryID)
	if err != nil {
		return nil, err
	}
	return o.Run(ctx, job)
}

// Run executes a prepared job. The job is always marked terminal before Run
// returns, unless a newer job superseded it.
func (o *Orchestrator) Run(ctx context.Context, job *Job) (*JobReport, error) {
	logger := o.logger.With("repository_id", job.RepositoryID, "generation", job.Generation)

	tasks, dispatchErr := o.runUnits(ctx, job, logger)
	if dispatchErr == nil && ctx.Err() != nil {
		dispatchErr = ctx.Err()
	}

	var digests []generation.UnitDigest
	for _, t := range tasks {
		if out := t.Output(); out != nil {
			digests = append(digests, generation.UnitDigest{Key: t.UnitKey(), Output: string(out.Raw)})
		}
	}
	sort.Slice(digests, func(i, j int) bool { return digests[i].Key < digests[j].Key })

	overviewOK := false
	var runErr error
	if dispatchErr != nil {
		runErr = dispatchErr
	} else {
		overview := NewOverviewGenerationTask(job, digests, o.generator, o.store, logger)
		if err := overview.Execute(ctx); err != nil {
			o.handleTaskError(logger)(overview, err)
			runErr = err
		}
		if doc := overview.Overview(); doc != nil {
			overviewOK = true
			logger.Debug("overview stored", "summary_bytes", len(doc.Summary))
		}
	}

	// The terminal write must land even if ctx was canceled mid-job, or
	// waiters would block forever on an InProgress record.
	finalCtx := context.WithoutCancel(ctx)
	if err := o.store.MarkJobTerminal(finalCtx, job.RepositoryID, job.Generation, overviewOK); err != nil {
		if store.IsStaleGeneration(err) {
			logger.Warn("job superseded before completion", "error", err)
		} else {
			logger.Error("failed to mark job terminal", "error", err)
		}
		return nil, errors.Join(runErr, fmt.Errorf("mark job terminal: %w", err))
	}

	report := o.report(finalCtx, job, tasks, overviewOK)
	logger.Info("documentation job finished",
		"status", report.Status,
		"units_total", report.Units.Total,
		"units_completed", report.Units.Completed,
		"units_failed", report.Units.Failed,
		"overview_succeeded", report.OverviewSucceeded,
		"duration_ms", report.Duration.Milliseconds())
	return report, runErr
}

// Abandon marks a prepared job Failed without running it.
func (o *Orchestrator) Abandon(ctx context.Context, job *Job) error {
	return o.store.MarkJobTerminal(context.WithoutCancel(ctx), job.RepositoryID, job.Generation, false)
}

// runUnits fans the job's units out over a bounded worker pool and waits for
// all of them. The queue holds as many tasks as there are workers, so the
// dispatcher blocks instead of buffering the whole repository.
func (o *Orchestrator) runUnits(ctx context.Context, job *Job, logger *slog.Logger) ([]*UnitGenerationTask, error) {
	workers := min(o.config.UnitWorkerCount, max(len(job.Units), 1))
	queue := NewTaskQueue(workers, logger)
	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: workers}, logger)
	pool.SetErrorHandler(o.handleTaskError(logger))
	pool.Start(ctx)

	tasks := make([]*UnitGenerationTask, 0, len(job.Units))
	var dispatchErr error
	for _, unit := range job.Units {
		t := NewUnitGenerationTask(job, unit, o.generator, o.store, logger)
		if err := queue.Enqueue(ctx, t); err != nil {
			dispatchErr = fmt.Errorf("dispatch unit %s: %w", unit.Key, err)
			break
		}
		tasks = append(tasks, t)
	}
	queue.Close()
	pool.Wait()

	return tasks, dispatchErr
}

func (o *Orchestrator) handleTaskError(logger *slog.Logger) func(Task, error) {
	return func(t Task, err error) {
		if store.IsStaleGeneration(err) {
			logger.Warn("task superseded by a newer job",
				"task_id", t.ID(),
				"task_type", t.Type(),
				"error", err)
			return
		}
		logger.Error("task execution failed",
			"task_id", t.ID(),
			"task_type", t.Type(),
			"error", err)
	}
}

func (o *Orchestrator) report(
	ctx context.Context,
	job *Job,
	tasks []*UnitGenerationTask,
	overviewOK bool,
) *JobReport {
	report := &JobReport{
		RepositoryID:      job.RepositoryID,
		Generation:        job.Generation,
		OverviewSucceeded: overviewOK,
		Status:            domain.OverallStatusFromOutcome(overviewOK),
		Duration:          time.Since(job.StartedAt),
	}
	if status, err := o.store.GetStatus(ctx, job.RepositoryID); err == nil && status.Generation == job.Generation {
		report.Units = status.Counts()
		return report
	}
	report.Units.Total = len(job.Units)
	for _, t := range tasks {
		switch t.Status() {
		case TaskStatusCompleted:
			report.Units.Completed++
		case TaskStatusFailed:
			report.Units.Failed++
		}
	}
	return report
}
