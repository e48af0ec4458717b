// Package student содержит доменную модель студента платформы практик.
// Это ядро бизнес-логики - здесь нет внешних зависимостей.
package student

import (
	"strings"
	"time"

	"github.com/mentoria/practice-hub/internal/domain/shared"
	"github.com/mentoria/practice-hub/internal/domain/subscription"
	"github.com/mentoria/practice-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALUE OBJECTS
// ══════════════════════════════════════════════════════════════════════════════

// Границы уровня студента.
const (
	MinLevel = 1
	MaxLevel = 12

	// MaxStreak - верхняя граница серии (сто лет ежедневных практик).
	MaxStreak = 36500
)

// ValidateLevel проверяет, что уровень в диапазоне MinLevel..MaxLevel.
func ValidateLevel(level int) error {
	if level < MinLevel || level > MaxLevel {
		return shared.ErrInvalidLevel
	}
	return nil
}

// ValidateStreak проверяет, что серия неотрицательна и правдоподобна.
func ValidateStreak(streak int) error {
	if streak < 0 || streak > MaxStreak {
		return shared.ErrInvalidStreak
	}
	return nil
}

// ValidatePhase проверяет название фазы.
func ValidatePhase(phase string) error {
	if strings.TrimSpace(phase) == "" {
		return shared.ErrInvalidPhase
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// MAIN ENTITY: STUDENT
// ══════════════════════════════════════════════════════════════════════════════

// Student - студент с денормализованными производными полями.
// Производные поля (серия, уровень, фаза, статус) пересчитываются сверкой
// из исходных событий и никогда не считаются источником истины.
type Student struct {
	// ID - внутренний уникальный идентификатор (UUID в строковом формате).
	ID string

	// Email - адрес, по которому студента находят администраторы.
	Email string

	// DisplayName - отображаемое имя.
	DisplayName string

	// EnrolledAt - дата зачисления в программу. Может быть неизвестна.
	EnrolledAt *time.Time

	// SubscriptionStatus - хранимый статус подписки.
	SubscriptionStatus subscription.Status

	// CurrentStreak - сохранённая длина серии.
	CurrentStreak int

	// LastPracticeDate - сохранённый день последней практики.
	LastPracticeDate *time.Time

	// Level - вычисленный уровень (nivel_actual).
	Level int

	// ManualLevel - ручной уровень администратора (nivel_manual). Всегда побеждает.
	ManualLevel *int

	// Phase - вычисленная фаза программы (fase_actual).
	Phase string

	// ReactivatedAt - момент последнего снятия паузы.
	ReactivatedAt *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewStudentParams содержит параметры для создания студента.
type NewStudentParams struct {
	ID          string
	Email       string
	DisplayName string
	EnrolledAt  *time.Time
}

// NewStudent создаёт активного студента первого уровня.
func NewStudent(params NewStudentParams) (*Student, error) {
	if params.ID == "" {
		return nil, shared.ErrInvalidStudentRef
	}

	email := strings.TrimSpace(strings.ToLower(params.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, shared.NewDomainError("student", "Create", shared.ErrInvalidInput, "invalid email")
	}

	now := time.Now().UTC()

	return &Student{
		ID:                 params.ID,
		Email:              email,
		DisplayName:        strings.TrimSpace(params.DisplayName),
		EnrolledAt:         params.EnrolledAt,
		SubscriptionStatus: subscription.StatusActive,
		Level:              MinLevel,
		Phase:              DefaultPhase,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// DefaultPhase - фаза нового студента.
const DefaultPhase = "foundation"

// HasManualLevel возвращает true, если администратор зафиксировал уровень вручную.
func (s *Student) HasManualLevel() bool {
	return s.ManualLevel != nil
}

// EnrollmentDay возвращает день зачисления или fallback, если он неизвестен.
func (s *Student) EnrollmentDay(fallback time.Time) time.Time {
	if s.EnrolledAt == nil {
		return fallback
	}
	return timeutil.StartOfDay(*s.EnrolledAt)
}
