// Package shared содержит общие для доменов типы: классы ошибок и границу
// транзакции. Пакет не зависит ни от чего, кроме стандартной библиотеки.
package shared

import (
	"errors"
	"fmt"
	"strings"
)

// ══════════════════════════════════════════════════════════════════════════════
// КЛАССЫ ОШИБОК
// ══════════════════════════════════════════════════════════════════════════════

// Классы ошибок. Проверяются через errors.Is на любой обёртке.
var (
	ErrNotFound      = errors.New("not found")
	ErrAlreadyExists = errors.New("already exists")

	ErrValidation      = errors.New("validation failed")
	ErrInvalidID       = errors.New("invalid id")
	ErrInvalidInput    = errors.New("invalid input")
	ErrNegativeValue   = errors.New("negative value")
	ErrValueOutOfRange = errors.New("value out of range")

	ErrInvalidState = errors.New("invalid state")
	ErrLocked       = errors.New("locked")
)

// validationKinds - классы, которые IsValidation считает ошибкой ввода.
var validationKinds = []error{
	ErrValidation,
	ErrInvalidID,
	ErrInvalidInput,
	ErrNegativeValue,
	ErrValueOutOfRange,
}

// DomainError - ошибка домена с местом возникновения и классом.
type DomainError struct {
	Domain  string // student, pause, subscription, reconcile...
	Op      string // операция, например Close
	Kind    error  // класс из списка выше
	Message string
	Err     error // причина, если есть
}

func (e *DomainError) Error() string {
	var b strings.Builder
	b.WriteString(e.Domain)
	if e.Op != "" {
		b.WriteByte('.')
		b.WriteString(e.Op)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

// Unwrap отдаёт и класс, и причину, чтобы errors.Is находил оба.
func (e *DomainError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// NewDomainError создаёт ошибку домена без причины.
func NewDomainError(domain, op string, kind error, message string) *DomainError {
	return &DomainError{Domain: domain, Op: op, Kind: kind, Message: message}
}

// WrapError создаёт ошибку домена поверх причины err.
func WrapError(domain, op string, kind error, message string, err error) *DomainError {
	de := NewDomainError(domain, op, kind, message)
	de.Err = err
	return de
}

// ══════════════════════════════════════════════════════════════════════════════
// ОШИБКИ ДОМЕНОВ
// ══════════════════════════════════════════════════════════════════════════════

// Студент.
var (
	ErrStudentNotFound   = NewDomainError("student", "Get", ErrNotFound, "student not found")
	ErrInvalidStudentRef = NewDomainError("student", "Validate", ErrInvalidID, "student id is empty")
	ErrInvalidStreak     = NewDomainError("student", "SetStreak", ErrNegativeValue, "streak is negative")
	ErrInvalidLevel      = NewDomainError("student", "SetLevel", ErrValueOutOfRange, "level is out of range")
	ErrInvalidPhase      = NewDomainError("student", "SetPhase", ErrInvalidInput, "phase is empty")
	ErrInvalidStatus     = NewDomainError("student", "SetStatus", ErrInvalidInput, "unknown subscription status")
)

// Пауза.
var (
	ErrPauseNotFound       = NewDomainError("pause", "Get", ErrNotFound, "pause not found")
	ErrPauseAlreadyOpen    = NewDomainError("pause", "Open", ErrAlreadyExists, "student already has an open pause")
	ErrPauseAlreadyClosed  = NewDomainError("pause", "Close", ErrInvalidState, "pause is already closed")
	ErrPauseEndBeforeStart = NewDomainError("pause", "Validate", ErrValidation, "pause ends before it starts")
)

// Подписка.
var ErrSubscriptionClosed = NewDomainError("subscription", "Pause", ErrInvalidState, "subscription is cancelled or past due")

// ErrRunLocked - прогон сверки уже идёт в другом процессе.
var ErrRunLocked = NewDomainError("reconcile", "Lock", ErrLocked, "another run holds the lock")

// ══════════════════════════════════════════════════════════════════════════════
// ПРОВЕРКИ
// ══════════════════════════════════════════════════════════════════════════════

// IsNotFound сообщает, что сущность не найдена.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsValidation сообщает, что ошибка вызвана неверным вводом.
func IsValidation(err error) bool {
	for _, kind := range validationKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// IsInvalidState сообщает, что операция недопустима в текущем состоянии.
func IsInvalidState(err error) bool {
	return errors.Is(err, ErrInvalidState)
}
