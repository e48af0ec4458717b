// Package pause содержит модель паузы подписки.
//
// Пауза - интервал [Start, End]. End == nil означает открытую паузу.
// У студента не более одной открытой паузы: вызывающий код проверяет
// GetActive перед Create.
package pause

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/mentoria/practice-hub/internal/domain/shared"
	"github.com/mentoria/practice-hub/pkg/timeutil"
)

// Pause - интервал приостановки подписки.
type Pause struct {
	ID        string
	StudentID string
	Start     time.Time
	End       *time.Time
	Reason    string
	CreatedAt time.Time
}

// New создаёт паузу с проверкой границ интервала.
func New(studentID string, start time.Time, end *time.Time, reason string) (*Pause, error) {
	if studentID == "" {
		return nil, shared.ErrInvalidStudentRef
	}
	if end != nil && end.Before(start) {
		return nil, shared.ErrPauseEndBeforeStart
	}
	return &Pause{
		ID:        uuid.New().String(),
		StudentID: studentID,
		Start:     start,
		End:       end,
		Reason:    reason,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// IsOpen возвращает true, если пауза ещё не закрыта.
func (p *Pause) IsOpen() bool {
	return p.End == nil
}

// Close закрывает паузу моментом end.
func (p *Pause) Close(end time.Time) error {
	if !p.IsOpen() {
		return shared.ErrPauseAlreadyClosed
	}
	if end.Before(p.Start) {
		return shared.ErrPauseEndBeforeStart
	}
	p.End = &end
	return nil
}

// StartedBy возвращает true, если пауза началась к моменту t.
// Открытая пауза с будущим Start запланирована, но ещё не действует.
func (p *Pause) StartedBy(t time.Time) bool {
	return !p.Start.After(t)
}

// Covers проверяет, действовала ли пауза в указанный календарный день.
// Сравнение идёт по дням платформы: пауза, закрытая сегодня, покрывает сегодня.
func (p *Pause) Covers(day time.Time) bool {
	d := timeutil.StartOfDay(day)
	if timeutil.StartOfDay(p.Start).After(d) {
		return false
	}
	return p.End == nil || !timeutil.StartOfDay(*p.End).Before(d)
}

// DaysUpTo возвращает длительность паузы в днях, обрезанную по cutoff.
// Открытая пауза длится до cutoff. Пауза, начавшаяся после cutoff, даёт 0.
func (p *Pause) DaysUpTo(cutoff time.Time) int {
	if p.Start.After(cutoff) {
		return 0
	}
	end := cutoff
	if p.End != nil && p.End.Before(cutoff) {
		end = *p.End
	}
	return timeutil.DaysFrom(p.Start, end)
}

// SumDays суммирует длительность пауз в днях до cutoff.
func SumDays(pauses []*Pause, cutoff time.Time) int {
	total := 0
	for _, p := range pauses {
		total += p.DaysUpTo(cutoff)
	}
	return total
}

// AnyCovers проверяет, покрыт ли день хотя бы одной паузой.
func AnyCovers(pauses []*Pause, day time.Time) bool {
	for _, p := range pauses {
		if p.Covers(day) {
			return true
		}
	}
	return false
}

// Repository - хранилище интервалов пауз.
type Repository interface {
	// Create сохраняет новую паузу.
	Create(ctx context.Context, p *Pause) error

	// Close закрывает паузу. ErrPauseNotFound для неизвестного id,
	// ErrPauseAlreadyClosed для уже закрытой.
	Close(ctx context.Context, pauseID string, end time.Time) error

	// GetActive возвращает открытую паузу студента или nil.
	GetActive(ctx context.Context, studentID string) (*Pause, error)

	// ListAll возвращает все паузы студента по возрастанию Start.
	ListAll(ctx context.Context, studentID string) ([]*Pause, error)

	// SumPausedDays суммирует дни пауз до upTo. Нулевой upTo означает "сейчас".
	SumPausedDays(ctx context.Context, studentID string, upTo time.Time) (int, error)
}
