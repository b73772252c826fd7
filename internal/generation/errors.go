package generation

import (
	"errors"
	"fmt"
	"strings"
)

// Common errors returned by the generation package
var (
	// ErrGenerationExhausted is returned when every backend in a chain failed.
	ErrGenerationExhausted = errors.New("all generation backends failed")

	// ErrInvalidResponse is returned when a backend response cannot be parsed
	// or does not conform to the expected schema.
	ErrInvalidResponse = errors.New("invalid response from language model")

	// ErrContentBlocked is returned when the backend blocks the content due to safety filters
	ErrContentBlocked = errors.New("content blocked by language model safety filters")

	// ErrBackendTimeout is returned when a single backend attempt exceeds its time budget.
	ErrBackendTimeout = errors.New("generation backend timed out")

	// ErrTransientFailure is returned for temporary errors that might resolve on retry
	ErrTransientFailure = errors.New("transient error during generation")

	// ErrInvalidConfig is returned when a chain or backend configuration is invalid
	ErrInvalidConfig = errors.New("invalid generator configuration")
)

// BackendFailure records why one backend attempt was rejected.
type BackendFailure struct {
	Backend string
	Err     error
}

// ExhaustedError reports that no backend produced acceptable output for a
// unit. It matches ErrGenerationExhausted and every individual failure
// under errors.Is.
type ExhaustedError struct {
	UnitKey  string
	Failures []BackendFailure
}

// Error implements the error interface.
func (e *ExhaustedError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s for %q", ErrGenerationExhausted, e.UnitKey)
	for i, f := range e.Failures {
		if i == 0 {
			b.WriteString(": ")
		} else {
			b.WriteString("; ")
		}
		fmt.Fprintf(&b, "%s: %v", f.Backend, f.Err)
	}
	return b.String()
}

// Unwrap exposes the sentinel and each backend error.
func (e *ExhaustedError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	errs = append(errs, ErrGenerationExhausted)
	for _, f := range e.Failures {
		errs = append(errs, f.Err)
	}
	return errs
}
