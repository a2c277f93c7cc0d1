package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewEnvelopeID returns a time-sortable ULID encoded as a 26-character string.
// Envelope IDs double as idempotency keys, so they are assigned exactly once
// at publish time and never re-derived.
func NewEnvelopeID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}
