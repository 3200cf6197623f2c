// Package healthcache remembers which nodes of a replica pool answered the
// last probe, so the balancer does not re-probe dead nodes on every request.
//
// The cache sits on a Store: process-local memory, or Redis / Postgres when
// several processes should share what they learn. Entries are best-effort
// hints. A backend failure is logged and reads as a miss.
package healthcache

import (
	"context"
	"time"
)

// Store is the shared key/value service the cache writes through.
// Implementations must be safe for concurrent use.
type Store interface {
	// Get returns the value stored at key. ok is false when the key is
	// absent or expired.
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)

	// Set stores value at key for ttl. A zero ttl means no expiry.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error
}
