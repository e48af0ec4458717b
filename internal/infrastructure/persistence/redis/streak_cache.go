package redis

import (
	"context"
	"errors"
	"time"

	"github.com/mentoria/practice-hub/internal/domain/streak"
	"github.com/mentoria/practice-hub/pkg/timeutil"
)

// StreakCache caches computed streak snapshots per student and day.
// Entries are never authoritative and expire after ttl.
type StreakCache struct {
	cache *Cache
	ttl   time.Duration
}

// NewStreakCache creates a StreakCache. A zero ttl uses TTLStreakSnapshot.
func NewStreakCache(cache *Cache, ttl time.Duration) *StreakCache {
	if ttl <= 0 {
		ttl = TTLStreakSnapshot
	}
	return &StreakCache{cache: cache, ttl: ttl}
}

// Get returns the cached snapshot of a student for asOf.
func (c *StreakCache) Get(ctx context.Context, studentID string, asOf time.Time) (streak.Snapshot, bool, error) {
	var snap streak.Snapshot
	err := c.cache.Get(ctx, StreakKey(studentID, timeutil.DayKey(asOf)), &snap)
	if errors.Is(err, ErrCacheMiss) {
		return streak.Snapshot{}, false, nil
	}
	if err != nil {
		return streak.Snapshot{}, false, err
	}
	return snap, true, nil
}

// Set stores a snapshot under its AsOf day.
func (c *StreakCache) Set(ctx context.Context, studentID string, snap streak.Snapshot) error {
	return c.cache.Set(ctx, StreakKey(studentID, timeutil.DayKey(snap.AsOf)), snap, c.ttl)
}

// Invalidate drops every cached snapshot of a student.
func (c *StreakCache) Invalidate(ctx context.Context, studentID string) error {
	return c.cache.DeleteByPattern(ctx, StreakKey(studentID, "*"))
}
