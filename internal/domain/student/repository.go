package student

import (
	"context"
	"time"

	"github.com/mentoria/practice-hub/internal/domain/subscription"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Эти интерфейсы определяют контракт для работы с хранилищем данных.
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции со студентами, нужные сверке и машине состояний.
// Все методы уважают транзакцию из ctx (см. shared.TxManager).
type Repository interface {
	// ─────────────────────────────────────────────────────────────────────────
	// Reads
	// ─────────────────────────────────────────────────────────────────────────

	// GetByID возвращает студента по внутреннему ID.
	// Возвращает ErrStudentNotFound, если студент не найден.
	GetByID(ctx context.Context, id string) (*Student, error)

	// GetByEmail возвращает студента по email.
	// Возвращает ErrStudentNotFound, если студент не найден.
	GetByEmail(ctx context.Context, email string) (*Student, error)

	// List возвращает до limit студентов с ID > after, по возрастанию ID.
	List(ctx context.Context, after string, limit int) ([]*Student, error)

	// ─────────────────────────────────────────────────────────────────────────
	// Writes
	// ─────────────────────────────────────────────────────────────────────────

	// Create сохраняет нового студента.
	Create(ctx context.Context, s *Student) error

	// UpdateLevel записывает вычисленный уровень.
	UpdateLevel(ctx context.Context, id string, level int) error

	// UpdatePhase записывает вычисленную фазу.
	UpdatePhase(ctx context.Context, id string, phase string) error

	// UpdateStreak записывает длину серии.
	UpdateStreak(ctx context.Context, id string, streak int) error

	// UpdateLastPracticeDate записывает день последней практики (nil очищает).
	UpdateLastPracticeDate(ctx context.Context, id string, day *time.Time) error

	// UpdateSubscriptionStatus записывает хранимый статус подписки.
	UpdateSubscriptionStatus(ctx context.Context, id string, status subscription.Status) error

	// SetReactivatedAt фиксирует момент снятия паузы.
	SetReactivatedAt(ctx context.Context, id string, at time.Time) error
}
