package schema

import "errors"

// Common errors returned by ledger operations.
//
// Check them with errors.Is:
//
//	if errors.Is(err, schema.ErrValidation) {
//	    // reject the request, never retry
//	}
var (
	// ErrValidation is returned for a forbidden field name, an unknown
	// table, or malformed numeric input.
	ErrValidation = errors.New("validation error")

	// ErrNotFound is returned when a row looked up by id does not exist.
	ErrNotFound = errors.New("record not found")
)

// IsValidation reports whether err is a caller error that must not be retried.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
