package bunx

import (
	"crypto/rand"

	"github.com/btcsuite/btcutil/base58"
	"github.com/google/uuid"
)

// NewUUIDv7 generates a time-ordered UUIDv7 string for database primary keys.
//
// UUIDv7 provides:
//   - Time-ordered sortability for better database index performance
//   - Compatibility with both PostgreSQL and SQLite (no gen_random_uuid() dependency)
//   - Monotonic ordering within the same millisecond
//
// This function panics if UUID generation fails, which only occurs on
// catastrophic system failures (e.g., entropy source exhaustion).
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// JobIDLength is the fixed length of queue job identifiers.
const JobIDLength = 21

// NewJobID generates a compact 21-character identifier for queue jobs and
// batches. 16 random bytes are base58-encoded and truncated to a fixed
// length, which keeps job uuids URL-safe and short enough for the kv-store
// key layout while retaining well over 120 bits of entropy.
func NewJobID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		panic("bunx: entropy source unavailable: " + err.Error())
	}
	id := base58.Encode(buf)
	for len(id) < JobIDLength {
		// Leading zero bytes shorten base58 output; re-roll is simpler than padding.
		if _, err := rand.Read(buf); err != nil {
			panic("bunx: entropy source unavailable: " + err.Error())
		}
		id = base58.Encode(buf)
	}
	return id[:JobIDLength]
}
