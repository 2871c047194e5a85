package messaging

import "errors"

var (
	// ErrUserNotFound means the sender or receiver is unknown to the store.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidInput covers empty or oversized content and non-positive ids.
	ErrInvalidInput = errors.New("invalid input")
)
