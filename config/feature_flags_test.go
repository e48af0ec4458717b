package config

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureFlags_EnvironmentOverrides(t *testing.T) {
	t.Setenv("FEATURE_RECONCILE_PAUSES", "false")
	t.Setenv("FEATURE_STREAK_CACHE", "true")
	t.Setenv("FEATURE_RECONCILE_STREAKS", "not-a-value")

	ff := LoadFeatureFlags()

	assert.False(t, ff.IsEnabled(FeatureReconcilePauses, nil))
	assert.True(t, ff.IsEnabled(FeatureStreakCache, nil))
	assert.True(t, ff.IsEnabled(FeatureReconcileStreaks, nil), "unparseable values keep the default")
}

func TestFeatureFlags_PercentRollout(t *testing.T) {
	t.Setenv("FEATURE_STREAK_CACHE", "50")
	ff := LoadFeatureFlags()

	in := 0
	for i := range 1000 {
		id := fmt.Sprintf("student-%d", i)
		first := ff.IsEnabled(FeatureStreakCache, &FeatureContext{StudentID: id})
		second := ff.IsEnabled(FeatureStreakCache, &FeatureContext{StudentID: id})
		require.Equal(t, first, second, "bucket must be stable for %s", id)
		if first {
			in++
		}
	}
	assert.InDelta(t, 500, in, 150)

	assert.True(t, ff.IsEnabled(FeatureStreakCache, nil), "a partial rollout is on globally")
}

func TestFeatureFlags_DisabledForEveryStudent(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.DisableFeature(FeatureReconcileProgress))

	assert.False(t, ff.IsEnabled(FeatureReconcileProgress, nil))
	assert.False(t, ff.IsEnabled(FeatureReconcileProgress, &FeatureContext{StudentID: "s1"}))
}

func TestFeatureFlags_SetRolloutPercent(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.ErrorIs(t, ff.SetRolloutPercent("unknown", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureStreakCache, 101), ErrInvalidRolloutPercent)
	assert.False(t, ff.IsEnabled("unknown", nil))

	require.NoError(t, ff.EnableFeature(FeatureStreakCache))
	assert.True(t, ff.IsEnabled(FeatureStreakCache, &FeatureContext{StudentID: "s1"}))
}

func TestFeatureNameToEnvKey(t *testing.T) {
	assert.Equal(t, "FEATURE_RECONCILE_STREAKS", featureNameToEnvKey(FeatureReconcileStreaks))
	assert.Equal(t, "FEATURE_STREAK_CACHE", featureNameToEnvKey(FeatureStreakCache))
}
