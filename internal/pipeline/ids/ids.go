package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewBatchID returns a time-sortable ULID encoded as a 26-character string.
// It is used as the broker message UUID for a flushed batch, so per-payload
// message identifiers sort in publish order.
func NewBatchID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// NewJobID returns a fresh 128-bit random job identifier.
func NewJobID() string {
	return uuid.NewString()
}

// NewAnalysisID returns a fresh 128-bit random analysis identifier.
func NewAnalysisID() string {
	return uuid.NewString()
}
