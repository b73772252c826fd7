package store

import (
	"context"

	"github.com/google/uuid"
	"github.com/phrazzld/docgen-api/internal/domain"
)

// DocumentStore persists the generated document for each repository.
// Writes are accepted only while generation is the repository's current job.
type DocumentStore interface {
	// PutUnitResult records the output for one unit, creating the document
	// on first write. Prior entries are preserved.
	PutUnitResult(
		ctx context.Context,
		repositoryID string,
		generation uuid.UUID,
		unitKey string,
		result domain.UnitResult,
	) error

	// PutOverview writes the repository summary and overview fields,
	// creating the document if no unit succeeded.
	PutOverview(
		ctx context.Context,
		repositoryID string,
		generation uuid.UUID,
		overview domain.RepositoryOverview,
	) error

	// GetDocument returns the current document.
	// Returns ErrDocumentNotFound if none exists.
	GetDocument(ctx context.Context, repositoryID string) (*domain.Document, error)

	// GetUnitResult returns the stored output for a single unit.
	// Returns ErrDocumentNotFound or ErrUnitNotFound.
	GetUnitResult(ctx context.Context, repositoryID, unitKey string) (*domain.UnitResult, error)

	// DeleteDocument removes the document. Deleting a missing document is not an error.
	DeleteDocument(ctx context.Context, repositoryID string) error
}

// Store combines both stores. Implementations that keep status and documents
// side by side satisfy it so StartJob can reset both atomically.
type Store interface {
	JobStatusStore
	DocumentStore
}
