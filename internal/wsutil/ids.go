// Package wsutil holds small helpers used by the transport package: random
// ID generation for correlation tokens (the polling transport's session ID)
// and timestamp formatting.
package wsutil

import (
	"time"

	"github.com/google/uuid"
)

// NewID returns a new random identifier suitable for batch IDs or other
// protocol-level correlation tokens that are not the monotonic message ID
// the multiplexer assigns.
func NewID() string {
	return uuid.New().String()
}

// Timestamp returns the current time formatted as RFC3339 in UTC, the
// envelope timestamp format used across the protocol's auxiliary messages.
func Timestamp() string {
	return time.Now().UTC().Format(time.RFC3339)
}
