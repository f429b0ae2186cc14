package relay

import (
	"time"

	"ripple/cmd/identity/ids"
)

// NewConnectionID returns a ULID used as the connection id.
// ULIDs sort by creation time, which keeps per-connection log lines ordered.
func NewConnectionID(now time.Time) (string, error) {
	return ids.NewULID(now)
}

// NewEnvelopeID returns a ULID used as an envelope id.
func NewEnvelopeID(now time.Time) (string, error) {
	return ids.NewULID(now)
}
