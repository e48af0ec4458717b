package redis

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
)

func offlineCache(t *testing.T) *Cache {
	t.Helper()
	c := NewCacheFromClient(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}))
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestKeys(t *testing.T) {
	assert.Equal(t, "streak:s1:2024-01-05", StreakKey("s1", "2024-01-05"))
	assert.Equal(t, "lock:reconcile", LockKey("reconcile"))
	assert.Equal(t, "checkpoint:reconcile:streaks", CheckpointKey("reconcile", "streaks"))
	assert.Equal(t, "checkpoint:reconcile:*", CheckpointKey("reconcile", "*"))
}

func TestConfig_Addr(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "localhost:6379", cfg.Addr())

	cfg.Host = "::1"
	assert.Equal(t, "[::1]:6379", cfg.Addr())

	opts := cfg.options()
	assert.Equal(t, 10, opts.PoolSize)
	assert.Equal(t, 5*time.Second, opts.DialTimeout)
}

func TestCache_ArgumentChecks(t *testing.T) {
	ctx := context.Background()
	c := offlineCache(t)

	assert.ErrorIs(t, c.Set(ctx, "", "v", time.Minute), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.Set(ctx, "k", nil, time.Minute), ErrCacheNilValue)
	assert.ErrorIs(t, c.Set(ctx, "k", "v", -time.Second), ErrCacheInvalidTTL)
	assert.ErrorIs(t, c.SetString(ctx, "", "v", 0), ErrCacheKeyEmpty)
	assert.ErrorIs(t, c.DeleteByPattern(ctx, ""), ErrCacheKeyEmpty)

	_, err := c.GetString(ctx, "")
	assert.ErrorIs(t, err, ErrCacheKeyEmpty)

	_, err = c.SetNX(ctx, "k", "v", -time.Second)
	assert.ErrorIs(t, err, ErrCacheInvalidTTL)

	var dest string
	assert.ErrorIs(t, c.Get(ctx, "", &dest), ErrCacheKeyEmpty)
}

func TestNewStreakCache_DefaultTTL(t *testing.T) {
	sc := NewStreakCache(offlineCache(t), 0)
	assert.Equal(t, TTLStreakSnapshot, sc.ttl)
}
