package redis

import (
	"context"
	"errors"
	"fmt"
)

// CheckpointStore keeps the last fully processed student id per run phase.
type CheckpointStore struct {
	cache *Cache
	run   string
}

// NewCheckpointStore creates a store namespaced by run name.
func NewCheckpointStore(cache *Cache, run string) *CheckpointStore {
	return &CheckpointStore{cache: cache, run: run}
}

// Load returns the checkpoint of a phase, or "" when none is stored.
func (s *CheckpointStore) Load(ctx context.Context, phase string) (string, error) {
	id, err := s.cache.GetString(ctx, CheckpointKey(s.run, phase))
	if errors.Is(err, ErrCacheMiss) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to load checkpoint %s: %w", phase, err)
	}
	return id, nil
}

// Save stores the checkpoint of a phase.
func (s *CheckpointStore) Save(ctx context.Context, phase, studentID string) error {
	if err := s.cache.SetString(ctx, CheckpointKey(s.run, phase), studentID, TTLCheckpoint); err != nil {
		return fmt.Errorf("failed to save checkpoint %s: %w", phase, err)
	}
	return nil
}

// Clear removes every checkpoint of the run.
func (s *CheckpointStore) Clear(ctx context.Context) error {
	return s.cache.DeleteByPattern(ctx, CheckpointKey(s.run, "*"))
}
