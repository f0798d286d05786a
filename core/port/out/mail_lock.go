package out

import (
	"context"
	"time"
)

// SyncLock is the advisory TTL lock and counter primitive backing
// bootstrap serialization and the fan-out completion barrier. Locks are
// advisory: a stale entry only delays the next attempt until the TTL
// elapses.
type SyncLock interface {
	Acquire(ctx context.Context, key, value string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
	IsSet(ctx context.Context, key string) (bool, error)

	// InitCounter seeds the barrier counter for a fan-out of n children.
	InitCounter(ctx context.Context, key string, n int64, ttl time.Duration) error

	// Decrement subtracts one arrival and returns the remaining count.
	Decrement(ctx context.Context, key string) (int64, error)
}
