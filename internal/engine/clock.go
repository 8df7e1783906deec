package engine

import (
	"time"

	"github.com/google/uuid"
)

// SystemClock reads the wall clock. Event timestamps are metadata only and
// never used for ordering; ordering comes from event ids.
type SystemClock struct{}

// Now returns the current time.
func (SystemClock) Now() time.Time { return time.Now() }

// UUIDv7Generator generates time-sortable UUIDv7 event uids.
//
// UUIDv7 embeds a timestamp in the most significant bits, making uids
// sortable by creation time, which helps when correlating events across
// stacks in a shared store.
//
// Thread-safety: stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate returns a new UUIDv7 as a hyphenated string.
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}
