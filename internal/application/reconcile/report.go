package reconcile

import (
	"fmt"
	"time"
)

// Phase - этап сверки.
type Phase string

const (
	PhasePauses   Phase = "pauses"
	PhaseStreaks  Phase = "streaks"
	PhaseProgress Phase = "progress"
)

// PhaseStats - счётчики одного этапа.
type PhaseStats struct {
	Total   int `json:"total"`
	Changed int `json:"changed"`
	Applied int `json:"applied"`
	Errors  int `json:"errors"`
	// Deferred - студенты вне процента раскатки этапа. В Total не входят.
	Deferred int  `json:"deferred,omitempty"`
	Skipped  bool `json:"skipped,omitempty"`
}

// Diff - одно расхождение сохранённого поля с вычисленным.
type Diff struct {
	StudentID string `json:"student_id"`
	Field     string `json:"field"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// PhaseReport - итог этапа: счётчики и ограниченный список расхождений.
type PhaseReport struct {
	PhaseStats
	Diffs []Diff `json:"diffs,omitempty"`
	// DiffsTruncated - сколько расхождений не поместилось в Diffs.
	DiffsTruncated int `json:"diffs_truncated,omitempty"`
}

// Report - итог прогона сверки.
type Report struct {
	RunID      string      `json:"run_id"`
	DryRun     bool        `json:"dry_run"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Pauses     PhaseReport `json:"pauses"`
	Streaks    PhaseReport `json:"streaks"`
	Progress   PhaseReport `json:"progress"`
}

// NamedPhase связывает этап с его отчётом.
type NamedPhase struct {
	Phase  Phase
	Report *PhaseReport
}

// Phases возвращает отчёты этапов в порядке выполнения.
func (r *Report) Phases() []NamedPhase {
	return []NamedPhase{
		{PhasePauses, &r.Pauses},
		{PhaseStreaks, &r.Streaks},
		{PhaseProgress, &r.Progress},
	}
}

// TotalErrors суммирует ошибки всех этапов.
func (r *Report) TotalErrors() int {
	return r.Pauses.Errors + r.Streaks.Errors + r.Progress.Errors
}

// Summary - строка итога этапа для оператора.
func (p PhaseReport) Summary(phase Phase) string {
	if p.Skipped {
		return fmt.Sprintf("%-8s skipped", phase)
	}
	line := fmt.Sprintf("%-8s total=%d changed=%d applied=%d errors=%d",
		phase, p.Total, p.Changed, p.Applied, p.Errors)
	if p.Deferred > 0 {
		line += fmt.Sprintf(" deferred=%d", p.Deferred)
	}
	return line
}

// record учитывает результат одного студента. Вызывается под мьютексом.
func (p *PhaseReport) record(o outcome, maxDiffs int) {
	if o.deferred {
		p.Deferred++
		return
	}
	p.Total++
	if o.changed {
		p.Changed++
	}
	if o.applied {
		p.Applied++
	}
	if o.err != nil {
		p.Errors++
	}
	for _, d := range o.diffs {
		if maxDiffs > 0 && len(p.Diffs) >= maxDiffs {
			p.DiffsTruncated++
			continue
		}
		p.Diffs = append(p.Diffs, d)
	}
}

// outcome - результат обработки одного студента на одном этапе.
type outcome struct {
	deferred bool
	changed  bool
	applied  bool
	diffs    []Diff
	err      error
}
