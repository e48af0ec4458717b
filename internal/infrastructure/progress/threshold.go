// Package progress provides the default progress.Engine: a level ladder driven
// by active program days (days since enrollment minus paused days).
package progress

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	domain "github.com/mentoria/practice-hub/internal/domain/progress"
	"github.com/mentoria/practice-hub/internal/domain/shared"
	"github.com/mentoria/practice-hub/internal/domain/student"
	"github.com/mentoria/practice-hub/pkg/timeutil"
)

// PausedDaysCounter is the slice of the pause store the engine needs.
type PausedDaysCounter interface {
	SumPausedDays(ctx context.Context, studentID string, upTo time.Time) (int, error)
}

// Band maps the first level of a band to its phase name.
type Band struct {
	FromLevel int
	Phase     string
}

// Config holds the level ladder.
type Config struct {
	// LevelThresholds[i] is the number of active days needed to reach level i+2.
	// Must be ascending.
	LevelThresholds []int

	// PhaseBands, ordered by FromLevel, assign a phase to every level.
	PhaseBands []Band
}

// DefaultConfig returns the ladder used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		LevelThresholds: []int{14, 30, 60, 90, 120, 180, 240, 300, 365, 450, 540},
		PhaseBands: []Band{
			{FromLevel: 1, Phase: "foundation"},
			{FromLevel: 4, Phase: "development"},
			{FromLevel: 8, Phase: "consolidation"},
			{FromLevel: 11, Phase: "mastery"},
		},
	}
}

// ParseBands parses "level:phase" pairs, e.g. "1:foundation,4:development".
func ParseBands(pairs []string) ([]Band, error) {
	bands := make([]Band, 0, len(pairs))
	for _, pair := range pairs {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		levelStr, phase, ok := strings.Cut(pair, ":")
		if !ok || strings.TrimSpace(phase) == "" {
			return nil, fmt.Errorf("invalid phase band %q: want level:phase", pair)
		}
		level, err := strconv.Atoi(strings.TrimSpace(levelStr))
		if err != nil {
			return nil, fmt.Errorf("invalid phase band %q: %w", pair, err)
		}
		bands = append(bands, Band{FromLevel: level, Phase: strings.TrimSpace(phase)})
	}
	sort.Slice(bands, func(i, j int) bool { return bands[i].FromLevel < bands[j].FromLevel })
	return bands, nil
}

// Validate checks the ladder shape.
func (c Config) Validate() error {
	for i := 1; i < len(c.LevelThresholds); i++ {
		if c.LevelThresholds[i] <= c.LevelThresholds[i-1] {
			return fmt.Errorf("level thresholds must be strictly ascending")
		}
	}
	if len(c.LevelThresholds) > student.MaxLevel-student.MinLevel {
		return fmt.Errorf("too many level thresholds: max %d", student.MaxLevel-student.MinLevel)
	}
	if len(c.PhaseBands) == 0 || c.PhaseBands[0].FromLevel > student.MinLevel {
		return fmt.Errorf("phase bands must cover level %d", student.MinLevel)
	}
	return nil
}

// ThresholdEngine implements progress.Engine.
type ThresholdEngine struct {
	cfg    Config
	pauses PausedDaysCounter
}

// NewThresholdEngine creates the engine. pauses may be nil, in which case
// paused days are not subtracted.
func NewThresholdEngine(cfg Config, pauses PausedDaysCounter) *ThresholdEngine {
	if len(cfg.LevelThresholds) == 0 && len(cfg.PhaseBands) == 0 {
		cfg = DefaultConfig()
	}
	return &ThresholdEngine{cfg: cfg, pauses: pauses}
}

// Compute returns base and effective level plus the effective phase.
func (e *ThresholdEngine) Compute(ctx context.Context, in domain.Input) (domain.Result, error) {
	s := in.Student
	if s == nil {
		return domain.Result{}, shared.NewDomainError("progress", "Compute", shared.ErrInvalidInput, "student is required")
	}

	activeDays, err := e.activeDays(ctx, s, in.Now)
	if err != nil {
		return domain.Result{}, err
	}

	base := e.levelFor(activeDays)
	result := domain.Result{
		BaseLevel:      base,
		EffectiveLevel: base,
	}
	if s.ManualLevel != nil {
		result.EffectiveLevel = *s.ManualLevel
		result.OverridesApplied = append(result.OverridesApplied, domain.OverrideManualLevel)
	}
	result.EffectivePhase = e.phaseFor(result.EffectiveLevel)

	return result, nil
}

func (e *ThresholdEngine) activeDays(ctx context.Context, s *student.Student, now time.Time) (int, error) {
	enrolled := s.CreatedAt
	if s.EnrolledAt != nil {
		enrolled = *s.EnrolledAt
	}
	if enrolled.IsZero() || enrolled.After(now) {
		return 0, nil
	}

	days := timeutil.DaysFrom(enrolled, now)
	if e.pauses != nil {
		paused, err := e.pauses.SumPausedDays(ctx, s.ID, now)
		if err != nil {
			return 0, fmt.Errorf("failed to sum paused days: %w", err)
		}
		days -= paused
	}
	if days < 0 {
		days = 0
	}
	return days, nil
}

func (e *ThresholdEngine) levelFor(activeDays int) int {
	level := student.MinLevel
	for _, threshold := range e.cfg.LevelThresholds {
		if activeDays < threshold {
			break
		}
		level++
	}
	if level > student.MaxLevel {
		level = student.MaxLevel
	}
	return level
}

func (e *ThresholdEngine) phaseFor(level int) string {
	phase := student.DefaultPhase
	for _, band := range e.cfg.PhaseBands {
		if level < band.FromLevel {
			break
		}
		phase = band.Phase
	}
	return phase
}
