package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/docgen-api/internal/domain"
)

// JobStatusStore persists one status record per repository.
//
// Every mutating call carries the generation token of the job performing it.
// A call whose generation does not match the current record returns
// ErrStaleGeneration and changes nothing.
type JobStatusStore interface {
	// StartJob deletes any existing status record and document for the
	// repository and inserts a fresh record {InProgress, no units} owned by
	// generation. Both happen atomically.
	StartJob(ctx context.Context, repositoryID string, generation uuid.UUID) (*domain.JobStatus, error)

	// MarkUnitStarted sets unitKey to InProgress. If no record exists for the
	// repository one is created with overall InProgress.
	MarkUnitStarted(ctx context.Context, repositoryID string, generation uuid.UUID, unitKey string) error

	// MarkUnitTerminal sets unitKey to Completed or Failed.
	MarkUnitTerminal(ctx context.Context, repositoryID string, generation uuid.UUID, unitKey string, success bool) error

	// MarkJobTerminal sets the overall status to Completed or Failed. Callers
	// must only invoke it after every unit task has finished.
	MarkJobTerminal(ctx context.Context, repositoryID string, generation uuid.UUID, success bool) error

	// GetStatus returns a snapshot of the record.
	// Returns ErrJobNotFound if no job was ever started for the repository.
	GetStatus(ctx context.Context, repositoryID string) (*domain.JobStatus, error)
}
