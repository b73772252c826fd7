package task

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// JobRunnerConfig holds configuration for the job runner
type JobRunnerConfig struct {
	// WorkerCount determines how many jobs run concurrently
	WorkerCount int

	// QueueSize determines how many accepted jobs may wait for a worker
	QueueSize int
}

// DefaultJobRunnerConfig returns a JobRunnerConfig with reasonable defaults
func DefaultJobRunnerConfig() JobRunnerConfig {
	return JobRunnerConfig{
		WorkerCount: 2,
		QueueSize:   16,
	}
}

// JobRunner accepts documentation jobs and runs them in the background. Each
// job occupies one worker for its whole lifetime and fans out its own unit
// pool.
type JobRunner struct {
	orchestrator *Orchestrator
	queue        *TaskQueue
	pool         *WorkerPool
	logger       *slog.Logger

	// slots holds one token per job that has been accepted but not yet
	// picked up by a worker, so a held token guarantees room in the queue.
	slots chan struct{}

	// closing is closed when Shutdown begins. mu orders Submit against it:
	// Submit holds the read lock from the closed check until the job is
	// queued.
	closing   chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewJobRunner creates a new JobRunner
func NewJobRunner(orchestrator *Orchestrator, config JobRunnerConfig, logger *slog.Logger) *JobRunner {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "job_runner")
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultJobRunnerConfig().QueueSize
	}

	queue := NewTaskQueue(config.QueueSize, logger)
	pool := NewWorkerPool(queue, WorkerPoolConfig{WorkerCount: config.WorkerCount}, logger)
	pool.SetErrorHandler(func(t Task, err error) {
		logger.Error("documentation job failed",
			"task_id", t.ID(),
			"error", err)
	})

	return &JobRunner{
		orchestrator: orchestrator,
		queue:        queue,
		pool:         pool,
		logger:       logger,
		slots:        make(chan struct{}, config.QueueSize),
		closing:      make(chan struct{}),
	}
}

// Start launches the job workers. Jobs run with a context derived from ctx;
// canceling it aborts running jobs.
func (r *JobRunner) Start(ctx context.Context) {
	r.pool.Start(ctx)
}

// Submit starts a job for the repository and queues it. When Submit returns
// without error the job's status record exists and reads InProgress. If the
// queue is full Submit waits for room until ctx is done. The previous job and
// document of the repository are only discarded once room in the queue is
// reserved, so a rejected submission leaves them untouched.
func (r *JobRunner) Submit(ctx context.Context, repositoryID string) (*Job, error) {
	select {
	case r.slots <- struct{}{}:
	case <-r.closing:
		return nil, fmt.Errorf("queue job: %w", ErrQueueClosed)
	case <-ctx.Done():
		return nil, fmt.Errorf("queue job: %w", ctx.Err())
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.releaseSlot()
		return nil, fmt.Errorf("queue job: %w", ErrQueueClosed)
	}

	job, err := r.orchestrator.Prepare(ctx, repositoryID)
	if err != nil {
		r.releaseSlot()
		return nil, err
	}

	// The reserved slot guarantees room and the read lock keeps the queue
	// open, so this only fails on a broken invariant.
	t := newJobTask(r.orchestrator, job, r.releaseSlot)
	if err := r.queue.Enqueue(context.WithoutCancel(ctx), t); err != nil {
		r.releaseSlot()
		if abandonErr := r.orchestrator.Abandon(ctx, job); abandonErr != nil {
			r.logger.Error("failed to abandon unqueued job",
				"repository_id", repositoryID,
				"error", abandonErr)
		}
		return nil, fmt.Errorf("queue job: %w", err)
	}
	return job, nil
}

func (r *JobRunner) releaseSlot() {
	<-r.slots
}

// Shutdown stops accepting jobs and waits for queued and running jobs to
// finish. If ctx ends first, running jobs are canceled and ctx.Err is
// returned once the workers have exited.
func (r *JobRunner) Shutdown(ctx context.Context) error {
	r.closeOnce.Do(func() { close(r.closing) })
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.queue.Close()

	done := make(chan struct{})
	go func() {
		r.pool.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.pool.Stop()
		<-done
		r.abandonQueued()
		return ctx.Err()
	}
}

// abandonQueued marks jobs that never reached a worker Failed. The queue
// must be closed.
func (r *JobRunner) abandonQueued() {
	for t := range r.queue.GetChannel() {
		jt, ok := t.(*jobTask)
		if !ok {
			continue
		}
		if err := r.orchestrator.Abandon(context.Background(), jt.job); err != nil {
			r.logger.Error("failed to abandon queued job",
				"repository_id", jt.job.RepositoryID,
				"error", err)
		}
	}
}

// jobTask adapts a prepared job to the Task interface.
type jobTask struct {
	taskState

	id           uuid.UUID
	orchestrator *Orchestrator
	job          *Job
	dequeued     func()
}

func newJobTask(orchestrator *Orchestrator, job *Job, dequeued func()) *jobTask {
	return &jobTask{
		taskState:    taskState{status: TaskStatusPending},
		id:           uuid.New(),
		orchestrator: orchestrator,
		job:          job,
		dequeued:     dequeued,
	}
}

func (t *jobTask) ID() uuid.UUID { return t.id }

func (t *jobTask) Type() string { return TaskTypeDocumentationJob }

func (t *jobTask) Execute(ctx context.Context) error {
	if t.dequeued != nil {
		t.dequeued()
	}
	t.set(TaskStatusProcessing)
	if _, err := t.orchestrator.Run(ctx, t.job); err != nil {
		t.set(TaskStatusFailed)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return fmt.Errorf("repository %s: %w", t.job.RepositoryID, err)
	}
	t.set(TaskStatusCompleted)
	return nil
}
