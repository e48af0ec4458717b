package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mentoria/practice-hub/internal/domain/practice"
	"github.com/mentoria/practice-hub/pkg/timeutil"
)

const practiceColumns = `id, student_id, practiced_at, type, origin, duration_seconds, created_at`

type practiceRow struct {
	ID              string `db:"id"`
	StudentID       string `db:"student_id"`
	PracticedAt     string `db:"practiced_at"`
	Type            string `db:"type"`
	Origin          string `db:"origin"`
	DurationSeconds *int64 `db:"duration_seconds"`
	CreatedAt       string `db:"created_at"`
}

func (r practiceRow) toDomain() (*practice.Practice, error) {
	date, err := parseTime(r.PracticedAt)
	if err != nil {
		return nil, err
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return nil, err
	}
	p := &practice.Practice{
		ID:        r.ID,
		StudentID: r.StudentID,
		Date:      date,
		Type:      practice.Type(r.Type),
		Origin:    practice.Origin(r.Origin),
		CreatedAt: created,
	}
	if r.DurationSeconds != nil {
		d := time.Duration(*r.DurationSeconds) * time.Second
		p.Duration = &d
	}
	return p, nil
}

// PracticeRepository implements practice.Repository on SQLite.
type PracticeRepository struct {
	db *DB
}

// NewPracticeRepository creates a new PracticeRepository.
func NewPracticeRepository(db *DB) *PracticeRepository {
	return &PracticeRepository{db: db}
}

// Create appends a practice to the log.
func (r *PracticeRepository) Create(ctx context.Context, p *practice.Practice) error {
	var seconds *int64
	if p.Duration != nil {
		s := int64(p.Duration.Seconds())
		seconds = &s
	}

	_, err := r.db.ext(ctx).ExecContext(ctx,
		`INSERT INTO practices (`+practiceColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.StudentID, formatTime(p.Date), string(p.Type), string(p.Origin), seconds, formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create practice: %w", err)
	}
	return nil
}

// FindByStudent returns the latest practices of a student, newest first.
func (r *PracticeRepository) FindByStudent(ctx context.Context, studentID string, limit int) ([]*practice.Practice, error) {
	query := `SELECT ` + practiceColumns + ` FROM practices WHERE student_id = ? ORDER BY practiced_at DESC`
	args := []any{studentID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	return r.selectPractices(ctx, query, args...)
}

// ExistsForDate returns any practice logged on the given platform day, or nil.
func (r *PracticeRepository) ExistsForDate(ctx context.Context, studentID string, day time.Time) (*practice.Practice, error) {
	from := timeutil.StartOfDay(day)
	to := from.AddDate(0, 0, 1)

	practices, err := r.selectPractices(ctx,
		`SELECT `+practiceColumns+` FROM practices
		WHERE student_id = ? AND practiced_at >= ? AND practiced_at < ?
		ORDER BY practiced_at LIMIT 1`,
		studentID, formatTime(from), formatTime(to))
	if err != nil {
		return nil, err
	}
	if len(practices) == 0 {
		return nil, nil
	}
	return practices[0], nil
}

// ListDays returns distinct platform days with a practice up to upTo, newest first.
func (r *PracticeRepository) ListDays(ctx context.Context, studentID string, upTo time.Time) ([]time.Time, error) {
	end := timeutil.StartOfDay(upTo).AddDate(0, 0, 1)

	var stamps []string
	err := sqlx.SelectContext(ctx, r.db.ext(ctx), &stamps,
		`SELECT practiced_at FROM practices WHERE student_id = ? AND practiced_at < ? ORDER BY practiced_at DESC`,
		studentID, formatTime(end))
	if err != nil {
		return nil, fmt.Errorf("failed to list practice days: %w", err)
	}

	practices := make([]*practice.Practice, 0, len(stamps))
	for _, stamp := range stamps {
		at, err := parseTime(stamp)
		if err != nil {
			return nil, err
		}
		practices = append(practices, &practice.Practice{Date: at})
	}
	return practice.DistinctDays(practices, upTo), nil
}

func (r *PracticeRepository) selectPractices(ctx context.Context, query string, args ...any) ([]*practice.Practice, error) {
	var rows []practiceRow
	if err := sqlx.SelectContext(ctx, r.db.ext(ctx), &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query practices: %w", err)
	}

	practices := make([]*practice.Practice, 0, len(rows))
	for _, row := range rows {
		p, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		practices = append(practices, p)
	}
	return practices, nil
}
