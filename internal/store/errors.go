package store

import (
	"errors"
	"fmt"
)

// Common store errors used across all store implementations.
var (
	// ErrNotFound is returned when a requested entity does not exist in the store.
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate is returned when an operation would violate a uniqueness constraint.
	ErrDuplicate = errors.New("entity already exists")

	// ErrInvalidEntity is returned when an entity fails validation before
	// being stored. Check the wrapped error for specific validation details.
	ErrInvalidEntity = errors.New("invalid entity")

	// ErrStaleGeneration is returned when a write carries a generation token
	// that no longer matches the current job for the repository. The writer
	// belongs to a superseded job and its result must be discarded.
	ErrStaleGeneration = errors.New("stale job generation")

	// ErrStorageUnavailable is returned when the backing store cannot be reached.
	ErrStorageUnavailable = errors.New("storage unavailable")

	// ErrTransactionFailed is returned when a database transaction fails
	// to commit or when an operation within a transaction fails.
	ErrTransactionFailed = errors.New("transaction failed")

	// ErrJobNotFound indicates that no job status exists for the repository.
	ErrJobNotFound = fmt.Errorf("%w: job status", ErrNotFound)

	// ErrDocumentNotFound indicates that no document exists for the repository.
	ErrDocumentNotFound = fmt.Errorf("%w: document", ErrNotFound)

	// ErrUnitNotFound indicates that the document has no entry for the unit.
	ErrUnitNotFound = fmt.Errorf("%w: unit", ErrNotFound)
)

// IsNotFoundError checks if the error is any kind of "not found" error.
func IsNotFoundError(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsStaleGeneration reports whether err was caused by a superseded job.
func IsStaleGeneration(err error) bool {
	return errors.Is(err, ErrStaleGeneration)
}

// StoreError is a custom error type for store-specific errors with additional context.
type StoreError struct {
	Entity    string // The entity type (e.g., "job_status", "document")
	Operation string // The operation that failed (e.g., "start_job", "put_unit_result")
	Message   string // Error message
	Err       error  // Original error
}

// Error implements the error interface for StoreError.
func (e *StoreError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf(
			"%s operation on %s failed: %s: %v",
			e.Operation,
			e.Entity,
			e.Message,
			e.Err,
		)
	}
	return fmt.Sprintf("%s operation on %s failed: %s", e.Operation, e.Entity, e.Message)
}

// Unwrap returns the wrapped error to support errors.Is/errors.As.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError with the given entity, operation, message, and wrapped error.
func NewStoreError(entity, operation, message string, err error) *StoreError {
	return &StoreError{
		Entity:    entity,
		Operation: operation,
		Message:   message,
		Err:       err,
	}
}
