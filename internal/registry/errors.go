package registry

import "errors"

// Caller-correctable errors returned synchronously by registry operations.
// These are never retried internally; match them with errors.Is.
var (
	// ErrNotFound indicates an unknown task id.
	ErrNotFound = errors.New("task not found")
	// ErrConflict indicates a claim race lost to another worker.
	ErrConflict = errors.New("task already claimed")
	// ErrForbidden indicates an action attempted by a non-owner.
	ErrForbidden = errors.New("task owned by another worker")
	// ErrInvalidTransition indicates an illegal status change.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrDependencyUnmet indicates a claim attempted before all dependencies
	// completed.
	ErrDependencyUnmet = errors.New("task has unmet dependencies")
	// ErrValidation indicates malformed input, such as a dependency cycle or an
	// out-of-range priority.
	ErrValidation = errors.New("validation failed")
)
