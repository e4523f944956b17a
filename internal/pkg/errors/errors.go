package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrUnauthorized is a generic sentinel for auth failures.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden means the caller is authenticated but not allowed.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict covers duplicates and stale state.
	ErrConflict = errors.New("conflict")
	// ErrLimitReached is returned when a tier publishing limit is hit.
	ErrLimitReached      = errors.New("limit reached")
	ErrModuleDisabled    = errors.New("module disabled")
	ErrInvalidTransition = errors.New("invalid status transition")
)
