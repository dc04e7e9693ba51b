package domain

import (
	"errors"
	"fmt"
)

// Error kinds used across the engine. Callers classify with errors.Is and
// map to their own transport codes; the engine never speaks HTTP.
var (
	// ErrValidation marks requests rejected before any store write.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound covers both truly missing entities and entities owned by
	// a different publisher, so existence never leaks across tenants.
	ErrNotFound = errors.New("not found")

	// ErrConflict marks illegal state transitions and frozen-mapping edits.
	ErrConflict = errors.New("conflict")

	// ErrTransient marks retryable store failures. The transactional
	// wrapper guarantees no partial writes were left behind.
	ErrTransient = errors.New("transient store failure")
)

// Validationf builds a validation error with a formatted detail message.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrValidation, fmt.Sprintf(format, args...))
}

// NotFoundf builds a not-found error with a formatted detail message.
func NotFoundf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrNotFound, fmt.Sprintf(format, args...))
}

// Conflictf builds a conflict error with a formatted detail message.
func Conflictf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConflict, fmt.Sprintf(format, args...))
}

// Transient wraps a store error so callers can retry it.
func Transient(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(ErrTransient, err))
}
