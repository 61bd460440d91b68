// Package idgen generates monotonic, lexicographically-sortable
// identifiers for database and document IDs.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// entropy is shared across calls and guarded by mu; ulid.Monotonic is
// not itself safe for concurrent use.
var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

// NewULID returns a new ULID string, monotonic within the same
// millisecond relative to the previous call from this process.
func NewULID() string {
	mu.Lock()
	defer mu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
	return id.String()
}

// NewDbID generates the dbId written to .gitddb/info.json on first commit.
func NewDbID() string {
	return NewULID()
}

// NewDocID generates an auto "_id" for put/insert when the caller's
// document has none.
func NewDocID() string {
	return NewULID()
}
