package operations

import "errors"

var (
	// ErrNotFound reports an unknown or already consumed tracking id.
	ErrNotFound = errors.New("operation not found")
	// ErrIDExhausted is returned when no unused tracking id could be generated.
	ErrIDExhausted = errors.New("operation id space exhausted")
)
