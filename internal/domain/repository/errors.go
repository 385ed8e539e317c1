package repository

import "errors"

var (
	// ErrNotFound is returned when a referenced notification or client does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when a conditional transition loses a race:
	// the row is claimed by another worker or already left the expected state.
	ErrConflict = errors.New("record state conflict")
	// ErrDuplicateRecord is returned when an identical notification already exists.
	ErrDuplicateRecord = errors.New("duplicate record")
	// ErrPersistence wraps failures of the underlying storage.
	ErrPersistence = errors.New("persistence failure")
)
