// Package locker provides the Redis-backed advisory sync lock and the
// bootstrap fan-out barrier counter.
package locker

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// Key prefixes. The plain prefix guards ordinary sync passes; the first
// sync prefix serializes the initial full download of a mailbox.
const (
	DefaultPrefix   = "SYNC_"
	FirstSyncPrefix = "FIRST_SYNC_"
	barrierPrefix   = "FIRST_SYNC_BARRIER_"
)

// SyncKey returns the ordinary sync lock key for an account.
func SyncKey(accountID int64) string {
	return DefaultPrefix + strconv.FormatInt(accountID, 10)
}

// FirstSyncKey returns the bootstrap lock key for an account.
func FirstSyncKey(accountID int64) string {
	return FirstSyncPrefix + strconv.FormatInt(accountID, 10)
}

// BarrierKey returns the fan-out counter key for an account's bootstrap
// batch.
func BarrierKey(accountID int64) string {
	return barrierPrefix + strconv.FormatInt(accountID, 10)
}

// commander is the slice of redis used by the lock. *redis.Client
// satisfies it; tests substitute a recorder.
type commander interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Decr(ctx context.Context, key string) *redis.IntCmd
}

// Lock implements out.SyncLock over Redis. A lock is SET followed by
// EXPIRE; holders are idempotent so no fencing token is needed.
type Lock struct {
	client commander
}

func New(client *redis.Client) *Lock {
	return &Lock{client: client}
}

func newWithCommander(client commander) *Lock {
	return &Lock{client: client}
}

func (l *Lock) Acquire(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := l.client.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("failed to set lock %s: %w", key, err)
	}
	if err := l.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("failed to expire lock %s: %w", key, err)
	}
	return nil
}

func (l *Lock) Release(ctx context.Context, key string) error {
	if err := l.client.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	return nil
}

func (l *Lock) IsSet(ctx context.Context, key string) (bool, error) {
	val, err := l.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read lock %s: %w", key, err)
	}
	return val != "", nil
}

// InitCounter seeds the barrier counter. The TTL bounds how long a
// crashed fan-out can wedge the bootstrap.
func (l *Lock) InitCounter(ctx context.Context, key string, n int64, ttl time.Duration) error {
	if err := l.client.Set(ctx, key, n, 0).Err(); err != nil {
		return fmt.Errorf("failed to init counter %s: %w", key, err)
	}
	if err := l.client.Expire(ctx, key, ttl).Err(); err != nil {
		return fmt.Errorf("failed to expire counter %s: %w", key, err)
	}
	return nil
}

// Decrement records one child arrival and returns the remaining count.
// The caller owning the zero crossing runs the completion callback.
func (l *Lock) Decrement(ctx context.Context, key string) (int64, error) {
	remaining, err := l.client.Decr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to decrement counter %s: %w", key, err)
	}
	return remaining, nil
}
