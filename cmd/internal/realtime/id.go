package realtime

import (
	"time"

	"petlink/cmd/identity/ids"
)

// NewSessionID returns the presence session id for a new connection.
func NewSessionID(now time.Time) string {
	return ids.NewULID(now)
}

// NewEnvelopeID returns the id stamped on server-originated envelopes.
func NewEnvelopeID(now time.Time) string {
	return ids.NewULID(now)
}
