package domain

import "errors"

var (
	// ErrPermissionDenied is returned when a role or ownership check fails.
	ErrPermissionDenied = errors.New("permission denied")
	// ErrNotFound is returned when a referenced task or user does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned for malformed field values.
	ErrValidation = errors.New("validation failed")
	// ErrConflict is returned when a unique username or email is already taken,
	// or when a task keeps changing under a concurrent update.
	ErrConflict = errors.New("conflict")
)
