package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/phrazzld/docgen-api/internal/domain"
	"github.com/phrazzld/docgen-api/internal/source"
	"github.com/phrazzld/docgen-api/internal/store"
	"github.com/phrazzld/docgen-api/internal/task"
)

// Service-level sentinel errors. The API layer maps them to status codes.
var (
	// ErrJobNotFound indicates no job was ever started for the repository.
	ErrJobNotFound = errors.New("documentation job not found")

	// ErrDocumentNotFound indicates no document exists for the repository.
	ErrDocumentNotFound = errors.New("document not found")

	// ErrUnitNotFound indicates the unit is unknown to the job or document.
	ErrUnitNotFound = errors.New("unit not found")

	// ErrInvalidRequest indicates a malformed repository ID or unit key.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrSourceUnavailable indicates the repository's units could not be listed.
	ErrSourceUnavailable = errors.New("repository source unavailable")

	// ErrJobFailed indicates the awaited job ended Failed.
	ErrJobFailed = errors.New("documentation job failed")

	// ErrJobInProgress indicates the repository's job is still running.
	ErrJobInProgress = errors.New("documentation job in progress")

	// ErrBusy indicates the job queue is closed or full at shutdown.
	ErrBusy = errors.New("job queue unavailable")
)

// DocumentationServiceError wraps unexpected failures with the operation
// that produced them.
type DocumentationServiceError struct {
	Operation string
	Message   string
	Err       error
}

// Error implements the error interface.
func (e *DocumentationServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("documentation service %s failed: %s: %v", e.Operation, e.Message, e.Err)
	}
	return fmt.Sprintf("documentation service %s failed: %s", e.Operation, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *DocumentationServiceError) Unwrap() error {
	return e.Err
}

// NewDocumentationServiceError maps known lower-layer errors to service
// sentinels and wraps everything else. Context errors pass through so
// callers can tell a timeout from a failure.
func NewDocumentationServiceError(operation, message string, err error) error {
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, store.ErrJobNotFound):
		return ErrJobNotFound
	case errors.Is(err, store.ErrDocumentNotFound):
		return ErrDocumentNotFound
	case errors.Is(err, store.ErrUnitNotFound):
		return ErrUnitNotFound
	case errors.Is(err, source.ErrSourceUnavailable):
		return fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	case errors.Is(err, source.ErrUnsupportedScheme),
		errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrEmptyRepositoryID),
		errors.Is(err, domain.ErrEmptyUnitKey),
		errors.Is(err, domain.ErrReservedUnitKey):
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	case errors.Is(err, task.ErrJobFailed):
		return ErrJobFailed
	case errors.Is(err, task.ErrQueueClosed):
		return ErrBusy
	}

	return &DocumentationServiceError{
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
