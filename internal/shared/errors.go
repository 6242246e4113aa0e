package shared

import "errors"

// Error taxonomy shared by every domain package. Domain sentinels wrap one of
// these so callers may match either the precise or the general failure.
var (
	// ErrNotFound indicates a referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a uniqueness or reference constraint was violated.
	ErrConflict = errors.New("conflict")
	// ErrInvalidState indicates the entity is not in a state that allows the action.
	ErrInvalidState = errors.New("invalid state")
	// ErrValidation indicates malformed or out-of-range input.
	ErrValidation = errors.New("validation failed")
)
