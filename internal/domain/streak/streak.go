// Package streak содержит чистое вычисление серии ежедневных практик.
//
// Серия считается обходом календаря назад от дня asOf. Обход - это ленивая
// последовательность дней (Walk), а расчёт - свёртка по ней (Fold).
// Пакет не обращается к хранилищам и не знает о часах.
package streak

import (
	"iter"
	"time"

	"github.com/mentoria/practice-hub/internal/domain/pause"
	"github.com/mentoria/practice-hub/pkg/timeutil"
)

// Day - один календарный день обхода.
type Day struct {
	Date        time.Time
	HasPractice bool
	InPause     bool
}

// Snapshot - вычисленное состояние серии на день AsOf.
type Snapshot struct {
	AsOf             time.Time  `json:"as_of"`
	Current          int        `json:"current"`
	LastPracticeDate *time.Time `json:"last_practice_date,omitempty"`
	PracticedToday   bool       `json:"practiced_today"`
	FrozenByPause    bool       `json:"frozen_by_pause"`
	FrozenDays       int        `json:"frozen_days"`
}

// Zero возвращает пустой снимок для дня asOf.
func Zero(asOf time.Time) Snapshot {
	return Snapshot{AsOf: timeutil.StartOfDay(asOf)}
}

// Walk порождает дни от asOf назад до самого раннего дня с практикой включительно.
// practiceDays - дни с практикой, новые первыми.
func Walk(asOf time.Time, practiceDays []time.Time, pauses []*pause.Pause) iter.Seq[Day] {
	return func(yield func(Day) bool) {
		if len(practiceDays) == 0 {
			return
		}
		practiced := make(map[string]struct{}, len(practiceDays))
		for _, d := range practiceDays {
			practiced[timeutil.DayKey(d)] = struct{}{}
		}
		earliest := timeutil.StartOfDay(practiceDays[len(practiceDays)-1])

		for day := timeutil.StartOfDay(asOf); !day.Before(earliest); day = day.AddDate(0, 0, -1) {
			_, has := practiced[timeutil.DayKey(day)]
			if !yield(Day{Date: day, HasPractice: has, InPause: pause.AnyCovers(pauses, day)}) {
				return
			}
		}
	}
}

// Fold сворачивает обход в снимок серии.
//
// Первый день - это asOf. Если в нём нет практики и он не покрыт паузой,
// серия равна нулю независимо от истории. Дальше каждый день с практикой
// продлевает серию, день под паузой без практики серию не рвёт, любой
// другой день останавливает обход.
//
// FrozenDays считает только дни паузы после последней практики, то есть
// подряд идущие дни под паузой, начиная с asOf.
func Fold(days iter.Seq[Day]) Snapshot {
	var s Snapshot
	first := true
	seenPractice := false

walk:
	for d := range days {
		if first {
			first = false
			s.AsOf = d.Date
			switch {
			case d.HasPractice:
				s.Current = 1
				s.PracticedToday = true
				seenPractice = true
			case d.InPause:
				s.FrozenDays = 1
			default:
				return s
			}
			continue
		}

		switch {
		case d.HasPractice:
			s.Current++
			seenPractice = true
		case d.InPause:
			if !seenPractice {
				s.FrozenDays++
			}
		default:
			break walk
		}
	}

	s.FrozenByPause = s.FrozenDays > 0 && s.Current > 0
	return s
}

// Compute считает снимок серии на день asOf.
// practiceDays - различные дни с практикой, новые первыми; дни после asOf игнорируются.
func Compute(asOf time.Time, practiceDays []time.Time, pauses []*pause.Pause) Snapshot {
	day := timeutil.StartOfDay(asOf)

	visible := practiceDays
	for len(visible) > 0 && timeutil.StartOfDay(visible[0]).After(day) {
		visible = visible[1:]
	}
	if len(visible) == 0 {
		return Zero(day)
	}

	s := Fold(Walk(day, visible, pauses))
	s.AsOf = day
	last := timeutil.StartOfDay(visible[0])
	s.LastPracticeDate = &last
	return s
}

// Equal сравнивает сохранённое состояние серии с вычисленным.
func (s Snapshot) Equal(current int, lastPractice *time.Time) bool {
	if s.Current != current {
		return false
	}
	if s.LastPracticeDate == nil || lastPractice == nil {
		return s.LastPracticeDate == nil && lastPractice == nil
	}
	return timeutil.IsSameDay(*s.LastPracticeDate, *lastPractice)
}
