// Package streak - прикладной движок серии: читает практики и паузы из
// хранилищ и сворачивает их чистой функцией из доменного пакета.
package streak

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mentoria/practice-hub/internal/domain/pause"
	domain "github.com/mentoria/practice-hub/internal/domain/streak"
	"github.com/mentoria/practice-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// PracticeDays - часть хранилища практик, нужная движку.
type PracticeDays interface {
	ListDays(ctx context.Context, studentID string, upTo time.Time) ([]time.Time, error)
}

// PauseLister - часть хранилища пауз, нужная движку.
type PauseLister interface {
	ListAll(ctx context.Context, studentID string) ([]*pause.Pause, error)
}

// SnapshotCache - необязательный кеш снимков. Никогда не источник истины.
type SnapshotCache interface {
	Get(ctx context.Context, studentID string, asOf time.Time) (domain.Snapshot, bool, error)
	Set(ctx context.Context, studentID string, snap domain.Snapshot) error
}

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Engine считает снимок серии студента. Только читает.
type Engine struct {
	practices PracticeDays
	pauses    PauseLister
	cache     SnapshotCache
	logger    *slog.Logger
}

// Option настраивает Engine.
type Option func(*Engine)

// WithCache включает кеш снимков для Compute.
func WithCache(cache SnapshotCache) Option {
	return func(e *Engine) {
		e.cache = cache
	}
}

// NewEngine создаёт движок серии.
func NewEngine(practices PracticeDays, pauses PauseLister, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		practices: practices,
		pauses:    pauses,
		logger:    logger.With("component", "streak_engine"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Compute возвращает снимок серии на день asOf и никогда не падает:
// при внутренней ошибке пишет лог уровня error и отдаёт нулевой снимок.
func (e *Engine) Compute(ctx context.Context, studentID string, asOf time.Time) domain.Snapshot {
	day := timeutil.StartOfDay(asOf)

	if e.cache != nil {
		snap, ok, err := e.cache.Get(ctx, studentID, day)
		switch {
		case err != nil:
			e.logger.WarnContext(ctx, "streak cache read failed", "student_id", studentID, "error", err)
		case ok:
			return snap
		}
	}

	snap, err := e.Snapshot(ctx, studentID, day)
	if err != nil {
		e.logger.ErrorContext(ctx, "streak computation failed, returning zero snapshot",
			"student_id", studentID,
			"as_of", timeutil.DayKey(day),
			"error", err,
		)
		return domain.Zero(day)
	}

	if e.cache != nil {
		if err := e.cache.Set(ctx, studentID, snap); err != nil {
			e.logger.WarnContext(ctx, "streak cache write failed", "student_id", studentID, "error", err)
		}
	}
	return snap
}

// Snapshot считает снимок напрямую из хранилищ, минуя кеш, и возвращает
// ошибку хранилища вызывающему. Используется сверкой.
func (e *Engine) Snapshot(ctx context.Context, studentID string, asOf time.Time) (domain.Snapshot, error) {
	day := timeutil.StartOfDay(asOf)

	days, err := e.practices.ListDays(ctx, studentID, day)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("list practice days: %w", err)
	}
	if len(days) == 0 {
		return domain.Zero(day), nil
	}

	pauses, err := e.pauses.ListAll(ctx, studentID)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("list pauses: %w", err)
	}

	return domain.Compute(day, days, pauses), nil
}
