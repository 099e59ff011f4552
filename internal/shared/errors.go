package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates a request that fails business validation.
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates a snapshot that went stale between read and submit.
	ErrConflict = errors.New("conflict: state changed, refresh and retry")
	// ErrForbidden indicates the actor lacks the required permission.
	ErrForbidden = errors.New("forbidden")
)
