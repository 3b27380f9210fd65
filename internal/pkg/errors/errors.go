package errors

import "errors"

// Common application errors shared by repositories, services and handlers.
var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUnauthorized is returned when the caller could not be authenticated.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the caller is authenticated but not allowed.
	ErrForbidden = errors.New("forbidden")

	// ErrValidation wraps malformed input rejected before touching storage.
	ErrValidation = errors.New("validation failed")

	// ErrConflict is returned when a write loses against a concurrent one
	// (unique violations on the verification tables).
	ErrConflict = errors.New("resource state conflict")
)
