// Package progress определяет контракт движка уровня и фазы.
// Внутреннее устройство движка не важно для сверки: она только сравнивает
// его результат с сохранёнными полями студента.
package progress

import (
	"context"
	"time"

	"github.com/mentoria/practice-hub/internal/domain/student"
)

// OverrideManualLevel - имя применённого ручного переопределения.
const OverrideManualLevel = "nivel_manual"

// Input - вход движка прогресса.
type Input struct {
	Student *student.Student
	Now     time.Time
	Env     string
}

// Result - вычисленный уровень и фаза.
type Result struct {
	// EffectiveLevel - уровень с учётом переопределений (nivel_efectivo).
	EffectiveLevel int
	// BaseLevel - уровень без переопределений (nivel_base).
	BaseLevel int
	// EffectivePhase - фаза для эффективного уровня (fase_efectiva).
	EffectivePhase string
	// OverridesApplied - применённые переопределения (overrides_aplicados).
	OverridesApplied []string
}

// HasOverride проверяет, было ли применено переопределение name.
func (r Result) HasOverride(name string) bool {
	for _, o := range r.OverridesApplied {
		if o == name {
			return true
		}
	}
	return false
}

// Engine вычисляет уровень и фазу студента.
type Engine interface {
	Compute(ctx context.Context, in Input) (Result, error)
}
