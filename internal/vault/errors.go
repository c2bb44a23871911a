package vault

import "errors"

// Sentinel errors shared by every store backend. Callers classify
// failures with errors.Is (or the helpers below) instead of matching
// on backend-specific error types.
var (
	// ErrValidation marks input the store refuses to record.
	ErrValidation = errors.New("invalid input")

	// ErrNotFound marks a lookup that matched nothing.
	ErrNotFound = errors.New("record not found")

	// ErrConflict marks a write that contradicts an existing record.
	ErrConflict = errors.New("conflicting record")

	// ErrUnavailable marks a store that cannot serve the request right now.
	ErrUnavailable = errors.New("store unavailable")
)

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsNotFound reports whether err is a missing-record failure.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict reports whether err is a conflicting-write failure.
func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsUnavailable reports whether err is a store-availability failure.
func IsUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
