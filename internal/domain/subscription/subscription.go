// Package subscription содержит таблицу вывода эффективного статуса подписки.
//
// Хранимый статус - денормализованное поле студента. Эффективный статус
// вычисляется из хранимого и наличия активной паузы.
package subscription

// Status - статус подписки.
type Status string

const (
	StatusActive    Status = "active"
	StatusPaused    Status = "paused"
	StatusCancelled Status = "cancelled"
	StatusPastDue   Status = "past_due"
)

// IsValid проверяет, что статус известен.
func (s Status) IsValid() bool {
	switch s {
	case StatusActive, StatusPaused, StatusCancelled, StatusPastDue:
		return true
	default:
		return false
	}
}

// String возвращает строковое представление статуса.
func (s Status) String() string {
	return string(s)
}

// AllowsPractice возвращает true, если в этом статусе можно практиковать.
func (s Status) AllowsPractice() bool {
	return s == StatusActive
}

// SyncAction - действие, которое выравнивает хранимый статус с эффективным.
type SyncAction string

const (
	SyncNone     SyncAction = "none"
	SyncToPaused SyncAction = "set_paused"
)

// Derivation - результат вывода статуса.
type Derivation struct {
	Stored    Status
	Effective Status
	Action    SyncAction
}

// NeedsSync возвращает true, если хранимый статус надо исправить.
func (d Derivation) NeedsSync() bool {
	return d.Action != SyncNone
}

// Derive применяет таблицу вывода:
//
//	stored    | пауза | effective | action
//	active    | да    | paused    | set_paused
//	active    | нет   | active    | none
//	paused    | любая | paused    | none
//	cancelled | любая | cancelled | none
//	past_due  | любая | past_due  | none
//
// Неизвестный хранимый статус трактуется как active.
func Derive(stored Status, hasActivePause bool) Derivation {
	switch stored {
	case StatusPaused, StatusCancelled, StatusPastDue:
		return Derivation{Stored: stored, Effective: stored, Action: SyncNone}
	default:
		if hasActivePause {
			return Derivation{Stored: stored, Effective: StatusPaused, Action: SyncToPaused}
		}
		return Derivation{Stored: stored, Effective: StatusActive, Action: SyncNone}
	}
}

// Repair - исправление, которое сверка применяет к паузам студента.
type Repair string

const (
	RepairNone       Repair = "none"
	RepairSeedPause  Repair = "seed_pause"
	RepairClosePause Repair = "close_pause"
)

// PlanRepair выбирает исправление пауз для сверки:
// paused без активной паузы получает паузу, active с активной паузой
// теряет её. Остальные сочетания не трогаются.
func PlanRepair(stored Status, hasActivePause bool) Repair {
	switch {
	case stored == StatusPaused && !hasActivePause:
		return RepairSeedPause
	case stored == StatusActive && hasActivePause:
		return RepairClosePause
	default:
		return RepairNone
	}
}
