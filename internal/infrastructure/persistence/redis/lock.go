package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/mentoria/practice-hub/internal/domain/shared"
)

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RunLock guards a resource so that only one process works on it at a time.
type RunLock struct {
	cache    *Cache
	resource string
}

// NewRunLock creates a lock for the given resource, e.g. "reconcile".
func NewRunLock(cache *Cache, resource string) *RunLock {
	return &RunLock{cache: cache, resource: resource}
}

// Acquire takes the lock for ttl. It returns shared.ErrRunLocked when
// another holder owns it. The returned release func is safe to call once
// the lock has expired or was taken over.
func (l *RunLock) Acquire(ctx context.Context, ttl time.Duration) (func(context.Context) error, error) {
	if ttl <= 0 {
		ttl = TTLRunLock
	}

	key := LockKey(l.resource)
	token := uuid.New().String()

	ok, err := l.cache.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		return nil, shared.ErrRunLocked
	}

	release := func(ctx context.Context) error {
		if err := releaseScript.Run(ctx, l.cache.client, []string{key}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		return nil
	}
	return release, nil
}
