package source

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrSourceUnavailable is returned when the repository cannot be listed.
	// No job is started when it occurs.
	ErrSourceUnavailable = errors.New("unit source unavailable")

	// ErrInvalidFilter is returned when a filter has an unknown category or
	// a malformed glob.
	ErrInvalidFilter = errors.New("invalid unit filter")

	// ErrUnsupportedScheme is returned by Mux for repository IDs no provider handles.
	ErrUnsupportedScheme = errors.New("unsupported repository scheme")
)

// Unit is one source file to document.
type Unit struct {
	// Key is the slash-separated path relative to the repository root.
	Key      string
	Category string
	Content  string
	Size     int64
}

// Provider lists the units of a repository.
type Provider interface {
	// ListUnits returns the units selected by filter, sorted by key.
	// Failure to reach the repository is reported as ErrSourceUnavailable.
	ListUnits(ctx context.Context, repositoryID string, filter Filter) ([]Unit, error)
}

// ProviderFunc adapts a function to Provider.
type ProviderFunc func(ctx context.Context, repositoryID string, filter Filter) ([]Unit, error)

// ListUnits calls f.
func (f ProviderFunc) ListUnits(ctx context.Context, repositoryID string, filter Filter) ([]Unit, error) {
	return f(ctx, repositoryID, filter)
}

// SourceError adds the repository and operation to a provider failure.
type SourceError struct {
	RepositoryID string
	Op           string
	Err          error
}

// Error implements the error interface.
func (e *SourceError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.RepositoryID, e.Err)
}

// Unwrap returns the wrapped error.
func (e *SourceError) Unwrap() error { return e.Err }

func unavailable(repositoryID, op string, err error) error {
	return &SourceError{
		RepositoryID: repositoryID,
		Op:           op,
		Err:          fmt.Errorf("%w: %w", ErrSourceUnavailable, err),
	}
}
