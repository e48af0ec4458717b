// Package audit содержит события аудита и единый помощник для
// некритичных побочных эффектов.
//
// Аудит никогда не блокирует основную операцию: ошибка записи события
// логируется с уровнем warn и проглатывается.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// EventType - тип события аудита.
type EventType string

const (
	// Подписка
	EventSubscriptionPaused      EventType = "subscription.paused"
	EventSubscriptionReactivated EventType = "subscription.reactivated"
	EventSubscriptionSynced      EventType = "subscription.synced"

	// Сверка
	EventPauseSeeded     EventType = "reconcile.pause_seeded"
	EventPauseClosed     EventType = "reconcile.pause_closed"
	EventStreakCorrected EventType = "reconcile.streak_corrected"
	EventLevelCorrected  EventType = "reconcile.level_corrected"
	EventPhaseCorrected  EventType = "reconcile.phase_corrected"
	EventRunCompleted    EventType = "reconcile.run_completed"
)

// Event - запись аудита.
type Event struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	StudentID  string         `json:"student_id,omitempty"`
	Actor      string         `json:"actor"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// ActorSystem - исполнитель по умолчанию для автоматических действий.
const ActorSystem = "system"

// NewEvent создаёт событие с новым ID и текущим временем.
func NewEvent(eventType EventType, studentID string, payload map[string]any) Event {
	return Event{
		ID:         uuid.New().String(),
		Type:       eventType,
		StudentID:  studentID,
		Actor:      ActorSystem,
		Payload:    payload,
		OccurredAt: time.Now().UTC(),
	}
}

// WithActor задаёт исполнителя.
func (e Event) WithActor(actor string) Event {
	e.Actor = actor
	return e
}

// Recorder сохраняет события аудита.
type Recorder interface {
	Record(ctx context.Context, event Event) error
}

// BestEffort выполняет некритичный побочный эффект.
// Ошибка логируется как предупреждение и не возвращается вызывающему.
func BestEffort(ctx context.Context, logger *slog.Logger, op string, fn func(ctx context.Context) error) {
	if fn == nil {
		return
	}
	if err := fn(ctx); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.WarnContext(ctx, "best-effort side effect failed",
			"op", op,
			"error", err,
		)
	}
}

// Emitter записывает события через BestEffort.
// Нулевой Recorder превращает Emit в no-op.
type Emitter struct {
	recorder Recorder
	logger   *slog.Logger
}

// NewEmitter создаёт Emitter.
func NewEmitter(recorder Recorder, logger *slog.Logger) *Emitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Emitter{recorder: recorder, logger: logger}
}

// Emit записывает событие, не возвращая ошибок.
func (e *Emitter) Emit(ctx context.Context, event Event) {
	if e == nil || e.recorder == nil {
		return
	}
	BestEffort(ctx, e.logger.With("event_type", string(event.Type), "student_id", event.StudentID),
		"audit.record", func(ctx context.Context) error {
			return e.recorder.Record(ctx, event)
		})
}
