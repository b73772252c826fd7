// Package domain defines the core business entities and errors.
package domain

import "errors"

// Common domain errors used across the application.
var (
	// ErrValidation is returned when a domain entity fails validation.
	// This is often wrapped with a more specific error message.
	ErrValidation = errors.New("validation failed")

	// ErrEmptyRepositoryID is returned when a repository identifier is blank.
	ErrEmptyRepositoryID = errors.New("repository ID cannot be empty")

	// ErrEmptyUnitKey is returned when a unit key is blank.
	ErrEmptyUnitKey = errors.New("unit key cannot be empty")

	// ErrReservedUnitKey is returned when a source unit uses the key reserved
	// for the repository overview step.
	ErrReservedUnitKey = errors.New("unit key is reserved")

	// ErrInvalidEscapedKey is returned when a stored field name is not a valid
	// escaped unit key.
	ErrInvalidEscapedKey = errors.New("invalid escaped unit key")

	// ErrUnknownStatus is returned when a persisted status value cannot be
	// mapped to any legal state.
	ErrUnknownStatus = errors.New("unknown status value")
)
