package task

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/phrazzld/docgen-api/internal/domain"
	"github.com/phrazzld/docgen-api/internal/generation"
)

// TaskStatus represents the current state of a task
type TaskStatus string

// Possible task status values
const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Task type constants
const (
	TaskTypeUnitGeneration     = "unit_generation"
	TaskTypeOverviewGeneration = "overview_generation"
	TaskTypeDocumentationJob   = "documentation_job"
)

// Common errors
var (
	ErrNilSource    = errors.New("unit source cannot be nil")
	ErrNilGenerator = errors.New("generator cannot be nil")
	ErrNilStore     = errors.New("store cannot be nil")
	ErrNilNotifier  = errors.New("notifier cannot be nil")

	// ErrJobFailed is returned by CompletionWaiter when the job ended Failed.
	// The partial document is returned alongside it.
	ErrJobFailed = errors.New("documentation job failed")
)

// Task represents a unit of background work to be processed
type Task interface {
	// ID returns the task's unique identifier
	ID() uuid.UUID

	// Type returns the task type identifier
	Type() string

	// Status returns the current task status. Only meaningful once Execute
	// has returned or from the goroutine running it.
	Status() TaskStatus

	// Execute runs the task logic
	Execute(ctx context.Context) error
}

// TaskQueueReader provides read-only access to the task channel
// allowing workers to consume tasks without the ability to enqueue
type TaskQueueReader interface {
	// GetChannel returns a read-only channel for consuming tasks
	GetChannel() <-chan Task
}

// TaskQueueWriter provides write access to the task queue
type TaskQueueWriter interface {
	// Enqueue adds a task to the queue, blocking while it is full.
	// Returns ErrQueueClosed or the context error.
	Enqueue(ctx context.Context, task Task) error

	// Close closes the task queue, preventing further task submission
	Close()
}

// Generator produces documentation for units and for the repository
// overview. *generation.Chain implements it.
type Generator interface {
	GenerateUnit(ctx context.Context, in generation.UnitInput) (*generation.UnitOutput, error)
	GenerateOverview(
		ctx context.Context,
		repositoryName string,
		units []generation.UnitDigest,
	) (*domain.RepositoryOverview, error)
}
