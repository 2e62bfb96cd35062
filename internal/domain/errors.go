package domain

import "errors"

var (
	// ErrValidation marks input or configuration rejected before any work starts.
	ErrValidation = errors.New("validation error")
	// ErrNotFound marks a lookup for a session id that has no persisted record.
	ErrNotFound = errors.New("not found")
	// ErrConflict marks an operation that lost against the current session state.
	ErrConflict = errors.New("conflict")
	// ErrSessionFinished marks a mutation attempted on a terminal session.
	ErrSessionFinished = errors.New("session already finished")
)
