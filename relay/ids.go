package relay

import (
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	ulidEntropy   = ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	ulidEntropyMu sync.Mutex
)

// newSessionID returns a fresh opaque session identifier. ULIDs sort by
// creation time, which keeps log output and debugging sane.
func newSessionID() string {
	ulidEntropyMu.Lock()
	defer ulidEntropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulidEntropy).String()
}

// newConnectionID returns a fresh opaque connection identifier.
func newConnectionID() string {
	return uuid.New().String()
}
