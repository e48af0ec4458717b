// Package reconcile - пакетная сверка производных полей студентов.
//
// Прогон состоит из трёх упорядоченных этапов, каждый обходит всех
// студентов: паузы, серии, прогресс. Ошибка одного студента учитывается
// в счётчиках этапа и не прерывает прогон. Повторный прогон в режиме
// apply не находит расхождений.
package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mentoria/practice-hub/internal/domain/audit"
	"github.com/mentoria/practice-hub/internal/domain/progress"
	"github.com/mentoria/practice-hub/internal/domain/streak"
	"github.com/mentoria/practice-hub/internal/domain/student"
	"github.com/mentoria/practice-hub/internal/domain/subscription"
	"github.com/mentoria/practice-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES (Interfaces)
// ══════════════════════════════════════════════════════════════════════════════

// PauseRepairer - транзакционные исправления пауз (машина состояний подписки).
type PauseRepairer interface {
	InspectRepair(ctx context.Context, s *student.Student) (subscription.Repair, error)
	ApplyRepair(ctx context.Context, s *student.Student, repair subscription.Repair) (bool, error)
}

// StreakSource считает снимок серии без кеша и с ошибками хранилища.
type StreakSource interface {
	Snapshot(ctx context.Context, studentID string, asOf time.Time) (streak.Snapshot, error)
}

// SnapshotInvalidator сбрасывает закешированный снимок серии студента.
type SnapshotInvalidator interface {
	Invalidate(ctx context.Context, studentID string) error
}

// Locker - защита от параллельных прогонов.
type Locker interface {
	Acquire(ctx context.Context, ttl time.Duration) (func(context.Context) error, error)
}

// Checkpoints хранит последний полностью обработанный id студента по этапам.
type Checkpoints interface {
	Load(ctx context.Context, phase string) (string, error)
	Save(ctx context.Context, phase, studentID string) error
	Clear(ctx context.Context) error
}

// RolloutFunc решает, входит ли студент в раскатку этапа.
type RolloutFunc func(phase Phase, studentID string) bool

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config - настройки драйвера.
type Config struct {
	// PageSize - размер страницы при обходе студентов.
	PageSize int

	// MaxDiffs ограничивает список расхождений одного этапа в отчёте.
	MaxDiffs int

	// Env передаётся движку прогресса.
	Env string

	// LockTTL - время жизни блокировки прогона.
	LockTTL time.Duration

	// Этапы, которые можно отключить флагами.
	PausesEnabled   bool
	StreaksEnabled  bool
	ProgressEnabled bool
}

// DefaultConfig возвращает настройки по умолчанию.
func DefaultConfig() Config {
	return Config{
		PageSize:        500,
		MaxDiffs:        200,
		Env:             "development",
		LockTTL:         2 * time.Hour,
		PausesEnabled:   true,
		StreaksEnabled:  true,
		ProgressEnabled: true,
	}
}

// Options - параметры одного прогона.
type Options struct {
	// DryRun - только отчёт, без записей.
	DryRun bool

	// Workers - число студентов, обрабатываемых параллельно. 0 и 1 - последовательно.
	Workers int

	// Resume продолжает этапы с сохранённых контрольных точек.
	// Прогон по списку студентов контрольные точки не читает и не пишет.
	Resume bool

	// StudentIDs ограничивает прогон указанными студентами.
	StudentIDs []string
}

// ══════════════════════════════════════════════════════════════════════════════
// DRIVER
// ══════════════════════════════════════════════════════════════════════════════

// Deps - зависимости драйвера. Lock, Checkpoints, StreakCache и Rollout
// необязательны. Без Rollout этап обрабатывает всех студентов.
type Deps struct {
	Students    student.Repository
	Pauses      PauseRepairer
	Streaks     StreakSource
	StreakCache SnapshotInvalidator
	Progress    progress.Engine
	Audit       audit.Recorder
	Lock        Locker
	Checkpoints Checkpoints
	Rollout     RolloutFunc
	Clock       timeutil.Clock
	Logger      *slog.Logger
}

// Driver выполняет сверку.
type Driver struct {
	students    student.Repository
	pauses      PauseRepairer
	streaks     StreakSource
	cache       SnapshotInvalidator
	progress    progress.Engine
	emitter     *audit.Emitter
	lock        Locker
	checkpoints Checkpoints
	rollout     RolloutFunc
	clock       timeutil.Clock
	logger      *slog.Logger
	cfg         Config
}

// NewDriver создаёт драйвер сверки.
func NewDriver(deps Deps, cfg Config) *Driver {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultConfig().PageSize
	}
	logger = logger.With("component", "reconcile_driver")

	return &Driver{
		students:    deps.Students,
		pauses:      deps.Pauses,
		streaks:     deps.Streaks,
		cache:       deps.StreakCache,
		progress:    deps.Progress,
		emitter:     audit.NewEmitter(deps.Audit, logger),
		lock:        deps.Lock,
		checkpoints: deps.Checkpoints,
		rollout:     deps.Rollout,
		clock:       clock,
		logger:      logger,
		cfg:         cfg,
	}
}

type studentFunc func(ctx context.Context, s *student.Student, opts Options) outcome

// Run выполняет три этапа по порядку. Ошибка возвращается только при сбое
// самого прогона (блокировка, обход студентов, отмена контекста); ошибки
// отдельных студентов попадают в счётчики отчёта.
func (d *Driver) Run(ctx context.Context, opts Options) (*Report, error) {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}

	report := &Report{
		RunID:     uuid.New().String(),
		DryRun:    opts.DryRun,
		StartedAt: d.clock.Now(),
	}
	logger := d.logger.With("run_id", report.RunID, "dry_run", opts.DryRun)

	if !opts.DryRun && d.lock != nil {
		release, err := d.lock.Acquire(ctx, d.cfg.LockTTL)
		if err != nil {
			return nil, fmt.Errorf("reconcile: acquire run lock: %w", err)
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				logger.WarnContext(ctx, "failed to release run lock", "error", err)
			}
		}()
	}

	if opts.Resume && len(opts.StudentIDs) > 0 {
		logger.WarnContext(ctx, "resume ignored for a run restricted to selected students")
	}

	logger.InfoContext(ctx, "reconciliation started",
		"workers", opts.Workers,
		"resume", opts.Resume,
		"students", len(opts.StudentIDs),
	)

	phases := []struct {
		phase   Phase
		enabled bool
		out     *PhaseReport
		fn      studentFunc
	}{
		{PhasePauses, d.cfg.PausesEnabled, &report.Pauses, d.reconcilePauses},
		{PhaseStreaks, d.cfg.StreaksEnabled, &report.Streaks, d.reconcileStreak},
		{PhaseProgress, d.cfg.ProgressEnabled, &report.Progress, d.reconcileProgress},
	}

	for _, p := range phases {
		if !p.enabled {
			p.out.Skipped = true
			logger.InfoContext(ctx, "phase disabled", "phase", string(p.phase))
			continue
		}
		if err := d.runPhase(ctx, logger, p.phase, opts, p.out, p.fn); err != nil {
			report.FinishedAt = d.clock.Now()
			return report, fmt.Errorf("reconcile: phase %s: %w", p.phase, err)
		}
	}

	report.FinishedAt = d.clock.Now()

	if !opts.DryRun {
		if d.tracksCheckpoints(opts) {
			if err := d.checkpoints.Clear(ctx); err != nil {
				logger.WarnContext(ctx, "failed to clear checkpoints", "error", err)
			}
		}
		d.emit(ctx, audit.EventRunCompleted, "", map[string]any{
			"run_id":   report.RunID,
			"pauses":   report.Pauses.PhaseStats,
			"streaks":  report.Streaks.PhaseStats,
			"progress": report.Progress.PhaseStats,
		})
	}

	logger.InfoContext(ctx, "reconciliation finished",
		"duration", report.FinishedAt.Sub(report.StartedAt).String(),
		"errors", report.TotalErrors(),
	)
	return report, nil
}

// runPhase обходит студентов страницами. Внутри страницы студенты
// обрабатываются пулом из opts.Workers; контрольная точка сохраняется
// после полной обработки страницы.
func (d *Driver) runPhase(ctx context.Context, logger *slog.Logger, phase Phase, opts Options, out *PhaseReport, fn studentFunc) error {
	logger = logger.With("phase", string(phase))
	started := time.Now()

	after := ""
	if opts.Resume && d.tracksCheckpoints(opts) {
		cp, err := d.checkpoints.Load(ctx, string(phase))
		switch {
		case err != nil:
			logger.WarnContext(ctx, "checkpoint unavailable, starting phase from the beginning", "error", err)
		case cp != "":
			after = cp
			logger.InfoContext(ctx, "resuming phase", "after", cp)
		}
	}

	var mu sync.Mutex
	record := func(s string, o outcome) {
		if o.err != nil {
			logger.ErrorContext(ctx, "student reconciliation failed", "student_id", s, "error", o.err)
		}
		mu.Lock()
		out.record(o, d.cfg.MaxDiffs)
		mu.Unlock()
	}

	process := func(students []*student.Student) error {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(opts.Workers)
		for _, s := range students {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				if d.rollout != nil && !d.rollout(phase, s.ID) {
					record(s.ID, outcome{deferred: true})
					return nil
				}
				record(s.ID, fn(gctx, s, opts))
				return nil
			})
		}
		return g.Wait()
	}

	checkpoint := func(lastID string) {
		if opts.DryRun || !d.tracksCheckpoints(opts) {
			return
		}
		if err := d.checkpoints.Save(ctx, string(phase), lastID); err != nil {
			logger.WarnContext(ctx, "failed to save checkpoint", "error", err)
		}
	}

	if len(opts.StudentIDs) > 0 {
		ids := slices.Clone(opts.StudentIDs)
		slices.Sort(ids)
		ids = slices.Compact(ids)

		students := make([]*student.Student, 0, len(ids))
		for _, id := range ids {
			s, err := d.students.GetByID(ctx, id)
			if err != nil {
				record(id, outcome{err: err})
				continue
			}
			students = append(students, s)
		}
		if err := process(students); err != nil {
			return err
		}
	} else {
		for {
			if err := ctx.Err(); err != nil {
				return err
			}
			page, err := d.students.List(ctx, after, d.cfg.PageSize)
			if err != nil {
				return fmt.Errorf("list students after %q: %w", after, err)
			}
			if len(page) == 0 {
				break
			}
			if err := process(page); err != nil {
				return err
			}
			after = page[len(page)-1].ID
			checkpoint(after)
		}
	}

	logger.InfoContext(ctx, "phase completed",
		"duration", time.Since(started).String(),
		"total", out.Total,
		"changed", out.Changed,
		"applied", out.Applied,
		"errors", out.Errors,
		"deferred", out.Deferred,
	)
	return nil
}

// tracksCheckpoints: контрольные точки относятся только к полному обходу.
// Иначе прерванный прогон по списку сдвинул бы точку полного прогона.
func (d *Driver) tracksCheckpoints(opts Options) bool {
	return d.checkpoints != nil && len(opts.StudentIDs) == 0
}

// ══════════════════════════════════════════════════════════════════════════════
// PHASES
// ══════════════════════════════════════════════════════════════════════════════

// reconcilePauses: paused без активной паузы получает паузу, active с
// активной паузой теряет её. Запись выполняется одной транзакцией.
func (d *Driver) reconcilePauses(ctx context.Context, s *student.Student, opts Options) outcome {
	repair, err := d.pauses.InspectRepair(ctx, s)
	if err != nil {
		return outcome{err: err}
	}

	var diff Diff
	switch repair {
	case subscription.RepairSeedPause:
		diff = Diff{StudentID: s.ID, Field: "pause", From: "missing", To: "seeded"}
	case subscription.RepairClosePause:
		diff = Diff{StudentID: s.ID, Field: "pause", From: "open", To: "closed"}
	default:
		return outcome{}
	}

	o := outcome{changed: true, diffs: []Diff{diff}}
	if opts.DryRun {
		return o
	}

	o.applied, o.err = d.pauses.ApplyRepair(ctx, s, repair)
	if o.applied {
		d.invalidate(ctx, s.ID)
	}
	return o
}

// reconcileStreak перезаписывает серию и день последней практики.
// Серия, замороженная паузой, не трогается.
func (d *Driver) reconcileStreak(ctx context.Context, s *student.Student, opts Options) outcome {
	today := timeutil.StartOfDay(d.clock.Now())

	snap, err := d.streaks.Snapshot(ctx, s.ID, today)
	if err != nil {
		return outcome{err: err}
	}
	if snap.FrozenByPause || snap.Equal(s.CurrentStreak, s.LastPracticeDate) {
		return outcome{}
	}

	o := outcome{changed: true}
	if snap.Current != s.CurrentStreak {
		o.diffs = append(o.diffs, Diff{
			StudentID: s.ID,
			Field:     "current_streak",
			From:      strconv.Itoa(s.CurrentStreak),
			To:        strconv.Itoa(snap.Current),
		})
	}
	if from, to := dayString(s.LastPracticeDate), dayString(snap.LastPracticeDate); from != to {
		o.diffs = append(o.diffs, Diff{StudentID: s.ID, Field: "last_practice_date", From: from, To: to})
	}
	if opts.DryRun {
		return o
	}

	if err := d.students.UpdateStreak(ctx, s.ID, snap.Current); err != nil {
		o.err = err
		return o
	}
	if err := d.students.UpdateLastPracticeDate(ctx, s.ID, snap.LastPracticeDate); err != nil {
		o.err = err
		return o
	}
	o.applied = true
	d.invalidate(ctx, s.ID)

	d.emit(ctx, audit.EventStreakCorrected, s.ID, map[string]any{
		"from":              s.CurrentStreak,
		"to":                snap.Current,
		"last_practice_day": dayString(snap.LastPracticeDate),
	})
	return o
}

// reconcileProgress выравнивает уровень и фазу с движком прогресса.
// Студенты с ручным уровнем не трогаются.
func (d *Driver) reconcileProgress(ctx context.Context, s *student.Student, opts Options) outcome {
	result, err := d.progress.Compute(ctx, progress.Input{
		Student: s,
		Now:     d.clock.Now(),
		Env:     d.cfg.Env,
	})
	if err != nil {
		return outcome{err: err}
	}
	if s.HasManualLevel() || result.HasOverride(progress.OverrideManualLevel) {
		return outcome{}
	}

	levelChanged := result.EffectiveLevel != s.Level
	phaseChanged := result.EffectivePhase != s.Phase
	if !levelChanged && !phaseChanged {
		return outcome{}
	}

	o := outcome{changed: true}
	if levelChanged {
		o.diffs = append(o.diffs, Diff{
			StudentID: s.ID,
			Field:     "nivel_actual",
			From:      strconv.Itoa(s.Level),
			To:        strconv.Itoa(result.EffectiveLevel),
		})
	}
	if phaseChanged {
		o.diffs = append(o.diffs, Diff{StudentID: s.ID, Field: "fase_actual", From: s.Phase, To: result.EffectivePhase})
	}
	if opts.DryRun {
		return o
	}

	if levelChanged {
		if err := d.students.UpdateLevel(ctx, s.ID, result.EffectiveLevel); err != nil {
			o.err = err
			return o
		}
		d.emit(ctx, audit.EventLevelCorrected, s.ID, map[string]any{
			"from": s.Level,
			"to":   result.EffectiveLevel,
			"base": result.BaseLevel,
		})
	}
	if phaseChanged {
		if err := d.students.UpdatePhase(ctx, s.ID, result.EffectivePhase); err != nil {
			o.err = err
			return o
		}
		d.emit(ctx, audit.EventPhaseCorrected, s.ID, map[string]any{
			"from": s.Phase,
			"to":   result.EffectivePhase,
		})
	}
	o.applied = true
	return o
}

func (d *Driver) emit(ctx context.Context, eventType audit.EventType, studentID string, payload map[string]any) {
	event := audit.NewEvent(eventType, studentID, payload)
	event.OccurredAt = d.clock.Now().UTC()
	d.emitter.Emit(ctx, event)
}

// invalidate сбрасывает кеш серии после записи. Сбой кеша только логируется.
func (d *Driver) invalidate(ctx context.Context, studentID string) {
	if d.cache == nil {
		return
	}
	if err := d.cache.Invalidate(ctx, studentID); err != nil {
		d.logger.WarnContext(ctx, "failed to invalidate streak cache", "student_id", studentID, "error", err)
	}
}

func dayString(day *time.Time) string {
	if day == nil {
		return "none"
	}
	return timeutil.DayKey(*day)
}
