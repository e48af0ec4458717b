// Package practice содержит модель практики студента.
// Практика неизменяема: создаётся внешним источником (приложение, вебхук)
// и никогда не редактируется. Для серии важен только календарный день.
package practice

import (
	"context"
	"time"

	"github.com/mentoria/practice-hub/pkg/timeutil"
)

// Type - тип практики.
type Type string

const (
	TypeAudio   Type = "audio"
	TypeWritten Type = "written"
	TypeSession Type = "session"
)

// Origin - источник, откуда пришла запись.
type Origin string

const (
	OriginApp     Origin = "app"
	OriginWebhook Origin = "webhook"
	OriginAdmin   Origin = "admin"
)

// Practice - одна зафиксированная практика.
type Practice struct {
	ID        string
	StudentID string
	Date      time.Time
	Type      Type
	Origin    Origin
	Duration  *time.Duration
	CreatedAt time.Time
}

// Day возвращает календарный день практики в часовом поясе платформы.
func (p *Practice) Day() time.Time {
	return timeutil.StartOfDay(p.Date)
}

// Repository - хранилище практик (только чтение для движка сверки).
type Repository interface {
	// FindByStudent возвращает последние практики студента, новые первыми.
	// limit <= 0 означает без ограничения.
	FindByStudent(ctx context.Context, studentID string, limit int) ([]*Practice, error)

	// ExistsForDate возвращает любую практику за указанный день или nil.
	ExistsForDate(ctx context.Context, studentID string, day time.Time) (*Practice, error)

	// ListDays возвращает различные дни с практикой не позже upTo, новые первыми.
	ListDays(ctx context.Context, studentID string, upTo time.Time) ([]time.Time, error)

	// Create сохраняет практику. Используется загрузчиками и тестами.
	Create(ctx context.Context, p *Practice) error
}

// DistinctDays сворачивает практики в уникальные календарные дни не позже upTo,
// отсортированные от новых к старым. Вход должен быть отсортирован так же.
func DistinctDays(practices []*Practice, upTo time.Time) []time.Time {
	limit := timeutil.StartOfDay(upTo)
	days := make([]time.Time, 0, len(practices))
	seen := make(map[string]struct{}, len(practices))
	for _, p := range practices {
		day := p.Day()
		if day.After(limit) {
			continue
		}
		key := timeutil.DayKey(day)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		days = append(days, day)
	}
	return days
}
