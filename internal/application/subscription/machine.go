// Package subscription - единственная машина состояний подписки.
//
// Каждая операция выполняется в одной транзакции: запись паузы и запись
// статуса фиксируются или откатываются вместе. События аудита пишутся
// после коммита и не влияют на результат операции.
package subscription

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mentoria/practice-hub/internal/domain/audit"
	"github.com/mentoria/practice-hub/internal/domain/pause"
	"github.com/mentoria/practice-hub/internal/domain/shared"
	"github.com/mentoria/practice-hub/internal/domain/student"
	domain "github.com/mentoria/practice-hub/internal/domain/subscription"
	"github.com/mentoria/practice-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// MACHINE
// ══════════════════════════════════════════════════════════════════════════════

// Deps - зависимости машины. Все собираются один раз в точке входа.
type Deps struct {
	Students student.Repository
	Pauses   pause.Repository
	Tx       shared.TxManager
	Audit    audit.Recorder
	Clock    timeutil.Clock
	Logger   *slog.Logger
}

// Machine управляет паузами и хранимым статусом подписки.
type Machine struct {
	students student.Repository
	pauses   pause.Repository
	tx       shared.TxManager
	emitter  *audit.Emitter
	clock    timeutil.Clock
	logger   *slog.Logger
}

// NewMachine создаёт машину состояний.
func NewMachine(deps Deps) *Machine {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = timeutil.SystemClock{}
	}
	logger = logger.With("component", "subscription_machine")

	return &Machine{
		students: deps.Students,
		pauses:   deps.Pauses,
		tx:       deps.Tx,
		emitter:  audit.NewEmitter(deps.Audit, logger),
		clock:    clock,
		logger:   logger,
	}
}

// Result - итог операции над подпиской.
type Result struct {
	StudentID string
	// Changed - false, если операция оказалась no-op.
	Changed bool
	PauseID string
	Status  domain.Status
}

// PauseOptions - параметры постановки на паузу.
type PauseOptions struct {
	// Start - начало паузы; nil означает "сейчас".
	Start  *time.Time
	Reason string
	Actor  string
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// Pause ставит подписку на паузу. Если открытая пауза уже есть, ничего не
// делает. Отменённую или просроченную подписку поставить на паузу нельзя:
// возвращается shared.ErrSubscriptionClosed.
func (m *Machine) Pause(ctx context.Context, studentID string, opts PauseOptions) (*Result, error) {
	result := &Result{StudentID: studentID}

	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		s, err := m.students.GetByID(ctx, studentID)
		if err != nil {
			return err
		}
		result.Status = s.SubscriptionStatus

		active, err := m.pauses.GetActive(ctx, studentID)
		if err != nil {
			return fmt.Errorf("get active pause: %w", err)
		}
		if active != nil {
			result.PauseID = active.ID
			return nil
		}
		if closedStatus(s.SubscriptionStatus) {
			return shared.ErrSubscriptionClosed
		}

		start := m.clock.Now()
		if opts.Start != nil {
			start = *opts.Start
		}
		p, err := pause.New(studentID, start, nil, opts.Reason)
		if err != nil {
			return err
		}
		if err := m.pauses.Create(ctx, p); err != nil {
			return fmt.Errorf("create pause: %w", err)
		}
		if err := m.students.UpdateSubscriptionStatus(ctx, studentID, domain.StatusPaused); err != nil {
			return fmt.Errorf("set status paused: %w", err)
		}

		result.Changed = true
		result.PauseID = p.ID
		result.Status = domain.StatusPaused
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subscription: pause %s: %w", studentID, err)
	}

	if result.Changed {
		m.logger.InfoContext(ctx, "subscription paused", "student_id", studentID, "pause_id", result.PauseID)
		m.emit(ctx, audit.EventSubscriptionPaused, studentID, opts.Actor, map[string]any{
			"pause_id": result.PauseID,
			"reason":   opts.Reason,
		})
	}
	return result, nil
}

// Reactivate снимает паузу. Если открытой паузы нет, ничего не делает.
// У отменённой или просроченной подписки пауза закрывается, а статус
// остаётся прежним.
func (m *Machine) Reactivate(ctx context.Context, studentID string) (*Result, error) {
	result := &Result{StudentID: studentID}

	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		s, err := m.students.GetByID(ctx, studentID)
		if err != nil {
			return err
		}
		result.Status = s.SubscriptionStatus

		active, err := m.pauses.GetActive(ctx, studentID)
		if err != nil {
			return fmt.Errorf("get active pause: %w", err)
		}
		if active == nil {
			return nil
		}

		now := m.clock.Now()
		end := now
		if !active.StartedBy(now) {
			// Запланированная пауза снимается нулевым интервалом.
			end = active.Start
		}
		if err := m.pauses.Close(ctx, active.ID, end); err != nil {
			return fmt.Errorf("close pause: %w", err)
		}
		result.Changed = true
		result.PauseID = active.ID
		if closedStatus(s.SubscriptionStatus) {
			return nil
		}

		if err := m.students.UpdateSubscriptionStatus(ctx, studentID, domain.StatusActive); err != nil {
			return fmt.Errorf("set status active: %w", err)
		}
		if err := m.students.SetReactivatedAt(ctx, studentID, now); err != nil {
			return fmt.Errorf("set reactivated_at: %w", err)
		}
		result.Status = domain.StatusActive
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subscription: reactivate %s: %w", studentID, err)
	}

	if result.Changed {
		m.logger.InfoContext(ctx, "subscription reactivated", "student_id", studentID, "pause_id", result.PauseID)
		m.emit(ctx, audit.EventSubscriptionReactivated, studentID, "", map[string]any{
			"pause_id": result.PauseID,
		})
	}
	return result, nil
}

// SyncStatus применяет действие синхронизации из таблицы вывода.
func (m *Machine) SyncStatus(ctx context.Context, studentID string) (domain.Derivation, error) {
	var d domain.Derivation

	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		if d, err = m.derive(ctx, studentID); err != nil {
			return err
		}
		if !d.NeedsSync() {
			return nil
		}
		return m.students.UpdateSubscriptionStatus(ctx, studentID, d.Effective)
	})
	if err != nil {
		return domain.Derivation{}, fmt.Errorf("subscription: sync %s: %w", studentID, err)
	}

	if d.NeedsSync() {
		m.emit(ctx, audit.EventSubscriptionSynced, studentID, "", map[string]any{
			"from": d.Stored.String(),
			"to":   d.Effective.String(),
		})
	}
	return d, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// EffectiveStatus возвращает эффективный статус и нужное действие синхронизации.
func (m *Machine) EffectiveStatus(ctx context.Context, studentID string) (domain.Derivation, error) {
	d, err := m.derive(ctx, studentID)
	if err != nil {
		return domain.Derivation{}, fmt.Errorf("subscription: effective status %s: %w", studentID, err)
	}
	return d, nil
}

// CanPracticeToday проверяет, разрешена ли практика. При внутренней ошибке
// возвращает true и пишет лог уровня error.
func (m *Machine) CanPracticeToday(ctx context.Context, studentID string) bool {
	d, err := m.derive(ctx, studentID)
	if err != nil {
		m.logger.ErrorContext(ctx, "effective status unavailable, allowing practice",
			"student_id", studentID,
			"error", err,
		)
		return true
	}
	return d.Effective.AllowsPractice()
}

func (m *Machine) derive(ctx context.Context, studentID string) (domain.Derivation, error) {
	s, err := m.students.GetByID(ctx, studentID)
	if err != nil {
		return domain.Derivation{}, err
	}
	active, err := m.pauses.GetActive(ctx, studentID)
	if err != nil {
		return domain.Derivation{}, fmt.Errorf("get active pause: %w", err)
	}
	return domain.Derive(s.SubscriptionStatus, inForce(active, m.clock.Now())), nil
}

// inForce возвращает true для открытой паузы, которая уже началась.
func inForce(open *pause.Pause, now time.Time) bool {
	return open != nil && open.StartedBy(now)
}

// planRepair не трогает запланированную паузу: закрыть её "сейчас" нельзя,
// а вторую открытую паузу создавать нельзя.
func planRepair(stored domain.Status, open *pause.Pause, now time.Time) domain.Repair {
	if open != nil && !open.StartedBy(now) {
		return domain.RepairNone
	}
	return domain.PlanRepair(stored, open != nil)
}

func closedStatus(s domain.Status) bool {
	return s == domain.StatusCancelled || s == domain.StatusPastDue
}

// ══════════════════════════════════════════════════════════════════════════════
// RECONCILIATION REPAIRS
// ══════════════════════════════════════════════════════════════════════════════

// InspectRepair выбирает исправление пауз для студента, ничего не записывая.
func (m *Machine) InspectRepair(ctx context.Context, s *student.Student) (domain.Repair, error) {
	active, err := m.pauses.GetActive(ctx, s.ID)
	if err != nil {
		return domain.RepairNone, fmt.Errorf("get active pause: %w", err)
	}
	return planRepair(s.SubscriptionStatus, active, m.clock.Now()), nil
}

// ApplyRepair применяет исправление в одной транзакции. Состояние
// перечитывается внутри транзакции; если исправление уже не нужно,
// возвращает false.
func (m *Machine) ApplyRepair(ctx context.Context, s *student.Student, repair domain.Repair) (bool, error) {
	var pauseID string

	err := m.tx.WithinTx(ctx, func(ctx context.Context) error {
		current, err := m.students.GetByID(ctx, s.ID)
		if err != nil {
			return err
		}
		active, err := m.pauses.GetActive(ctx, s.ID)
		if err != nil {
			return fmt.Errorf("get active pause: %w", err)
		}
		now := m.clock.Now()
		if planRepair(current.SubscriptionStatus, active, now) != repair {
			return nil
		}

		switch repair {
		case domain.RepairSeedPause:
			p, err := pause.New(s.ID, current.EnrollmentDay(now), nil, "reconcile: seeded for paused status")
			if err != nil {
				return err
			}
			if err := m.pauses.Create(ctx, p); err != nil {
				return fmt.Errorf("seed pause: %w", err)
			}
			pauseID = p.ID
		case domain.RepairClosePause:
			if err := m.pauses.Close(ctx, active.ID, now); err != nil {
				return fmt.Errorf("close pause: %w", err)
			}
			pauseID = active.ID
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("subscription: repair %s: %w", s.ID, err)
	}
	if pauseID == "" {
		return false, nil
	}

	eventType := audit.EventPauseSeeded
	if repair == domain.RepairClosePause {
		eventType = audit.EventPauseClosed
	}
	m.emit(ctx, eventType, s.ID, "", map[string]any{
		"pause_id": pauseID,
		"status":   s.SubscriptionStatus.String(),
	})
	return true, nil
}

func (m *Machine) emit(ctx context.Context, eventType audit.EventType, studentID, actor string, payload map[string]any) {
	event := audit.NewEvent(eventType, studentID, payload)
	if actor != "" {
		event = event.WithActor(actor)
	}
	event.OccurredAt = m.clock.Now().UTC()
	m.emitter.Emit(ctx, event)
}
