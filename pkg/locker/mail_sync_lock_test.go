package locker

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis records commands and serves values from an in-memory map.
type fakeRedis struct {
	values  map[string]string
	expires map[string]time.Duration
	ints    map[string]int64
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{
		values:  make(map[string]string),
		expires: make(map[string]time.Duration),
		ints:    make(map[string]int64),
	}
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	switch v := value.(type) {
	case string:
		f.values[key] = v
	case int64:
		f.ints[key] = v
		f.values[key] = "set"
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd {
	f.expires[key] = expiration
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	var n int64
	for _, key := range keys {
		if _, ok := f.values[key]; ok {
			delete(f.values, key)
			n++
		}
	}
	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	val, ok := f.values[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(val, nil)
}

func (f *fakeRedis) Decr(ctx context.Context, key string) *redis.IntCmd {
	f.ints[key]--
	return redis.NewIntResult(f.ints[key], nil)
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "SYNC_42", SyncKey(42))
	assert.Equal(t, "FIRST_SYNC_42", FirstSyncKey(42))
	assert.Equal(t, "FIRST_SYNC_BARRIER_42", BarrierKey(42))
}

func TestAcquireSetsValueAndTTL(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	lock := newWithCommander(fake)

	require.NoError(t, lock.Acquire(ctx, SyncKey(7), "worker-1", time.Hour))

	assert.Equal(t, "worker-1", fake.values["SYNC_7"])
	assert.Equal(t, time.Hour, fake.expires["SYNC_7"])
}

func TestIsSetAndRelease(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	lock := newWithCommander(fake)

	held, err := lock.IsSet(ctx, FirstSyncKey(7))
	require.NoError(t, err)
	assert.False(t, held)

	require.NoError(t, lock.Acquire(ctx, FirstSyncKey(7), "worker-1", time.Hour))
	held, err = lock.IsSet(ctx, FirstSyncKey(7))
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, lock.Release(ctx, FirstSyncKey(7)))
	held, err = lock.IsSet(ctx, FirstSyncKey(7))
	require.NoError(t, err)
	assert.False(t, held)
}

func TestBarrierCountsDownToZero(t *testing.T) {
	ctx := context.Background()
	fake := newFakeRedis()
	lock := newWithCommander(fake)

	require.NoError(t, lock.InitCounter(ctx, BarrierKey(7), 3, time.Hour))

	remaining, err := lock.Decrement(ctx, BarrierKey(7))
	require.NoError(t, err)
	assert.Equal(t, int64(2), remaining)

	remaining, err = lock.Decrement(ctx, BarrierKey(7))
	require.NoError(t, err)
	assert.Equal(t, int64(1), remaining)

	remaining, err = lock.Decrement(ctx, BarrierKey(7))
	require.NoError(t, err)
	assert.Equal(t, int64(0), remaining)
}
