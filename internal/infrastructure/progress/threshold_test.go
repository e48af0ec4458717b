package progress

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/mentoria/practice-hub/internal/domain/progress"
	"github.com/mentoria/practice-hub/internal/domain/student"
	"github.com/mentoria/practice-hub/pkg/timeutil"
)

type pausedDaysStub struct {
	days int
	err  error
}

func (p pausedDaysStub) SumPausedDays(context.Context, string, time.Time) (int, error) {
	return p.days, p.err
}

func enrolledStudent(daysAgo int, now time.Time) *student.Student {
	enrolled := timeutil.AddDays(now, -daysAgo)
	return &student.Student{ID: "s1", EnrolledAt: &enrolled}
}

func TestCompute_LevelFromActiveDays(t *testing.T) {
	now := timeutil.Date(2024, 6, 1)
	engine := NewThresholdEngine(DefaultConfig(), nil)

	tests := []struct {
		name  string
		days  int
		level int
		phase string
	}{
		{"just enrolled", 0, 1, "foundation"},
		{"below first threshold", 13, 1, "foundation"},
		{"first threshold", 14, 2, "foundation"},
		{"development band", 90, 5, "development"},
		{"top of ladder", 2000, 12, "mastery"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := engine.Compute(context.Background(), domain.Input{Student: enrolledStudent(tt.days, now), Now: now})
			require.NoError(t, err)
			assert.Equal(t, tt.level, res.BaseLevel)
			assert.Equal(t, tt.level, res.EffectiveLevel)
			assert.Equal(t, tt.phase, res.EffectivePhase)
			assert.Empty(t, res.OverridesApplied)
		})
	}
}

func TestCompute_PausedDaysAreSubtracted(t *testing.T) {
	now := timeutil.Date(2024, 6, 1)
	engine := NewThresholdEngine(DefaultConfig(), pausedDaysStub{days: 20})

	res, err := engine.Compute(context.Background(), domain.Input{Student: enrolledStudent(30, now), Now: now})
	require.NoError(t, err)

	// 30 - 20 = 10 active days
	assert.Equal(t, 1, res.BaseLevel)
}

func TestCompute_ManualLevelWins(t *testing.T) {
	now := timeutil.Date(2024, 6, 1)
	engine := NewThresholdEngine(DefaultConfig(), nil)
	s := enrolledStudent(0, now)
	manual := 9
	s.ManualLevel = &manual

	res, err := engine.Compute(context.Background(), domain.Input{Student: s, Now: now})
	require.NoError(t, err)

	assert.Equal(t, 1, res.BaseLevel)
	assert.Equal(t, 9, res.EffectiveLevel)
	assert.Equal(t, "consolidation", res.EffectivePhase)
	assert.True(t, res.HasOverride(domain.OverrideManualLevel))
}

func TestCompute_Errors(t *testing.T) {
	now := timeutil.Date(2024, 6, 1)

	_, err := NewThresholdEngine(DefaultConfig(), nil).Compute(context.Background(), domain.Input{Now: now})
	assert.Error(t, err)

	_, err = NewThresholdEngine(DefaultConfig(), pausedDaysStub{err: errors.New("boom")}).
		Compute(context.Background(), domain.Input{Student: enrolledStudent(5, now), Now: now})
	assert.ErrorContains(t, err, "boom")
}

func TestParseBands(t *testing.T) {
	bands, err := ParseBands([]string{"4:development", " 1:foundation ", ""})
	require.NoError(t, err)
	assert.Equal(t, []Band{{1, "foundation"}, {4, "development"}}, bands)

	_, err = ParseBands([]string{"x:foundation"})
	assert.Error(t, err)

	_, err = ParseBands([]string{"3"})
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.LevelThresholds = []int{10, 5}
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.PhaseBands = []Band{{FromLevel: 3, Phase: "x"}}
	assert.Error(t, cfg.Validate())
}
