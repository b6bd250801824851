package lock

import (
	"context"
	"time"
)

// Store is the distributed mutual exclusion primitive: set-if-absent with
// expiry plus compare-and-delete on an opaque token. The token prevents one
// holder from releasing a lock that a different holder re-acquired after TTL
// expiry.
type Store interface {
	// Acquire attempts to take the lock. Returns an opaque token on success,
	// empty string if the lock is held by another owner, and a non-nil error
	// only when the store itself is unreachable.
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)

	// Release deletes the lock only if it still holds the given token.
	// Returns true if the lock was released by this call.
	Release(ctx context.Context, key string, token string) (bool, error)
}
