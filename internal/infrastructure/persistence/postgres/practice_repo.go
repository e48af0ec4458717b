package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mentoria/practice-hub/internal/domain/practice"
	"github.com/mentoria/practice-hub/pkg/timeutil"
)

const practiceColumns = `id::text, student_id::text, practiced_at, type, origin, duration_seconds, created_at`

// PracticeRepository implements practice.Repository using PostgreSQL.
type PracticeRepository struct {
	conn *Connection
}

// NewPracticeRepository creates a new PracticeRepository.
func NewPracticeRepository(conn *Connection) *PracticeRepository {
	return &PracticeRepository{conn: conn}
}

// Create appends a practice to the log.
func (r *PracticeRepository) Create(ctx context.Context, p *practice.Practice) error {
	query := `
		INSERT INTO practices (id, student_id, practiced_at, type, origin, duration_seconds, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.conn.Querier(ctx).Exec(ctx, query,
		p.ID,
		p.StudentID,
		p.Date.UTC(),
		string(p.Type),
		string(p.Origin),
		durationSeconds(p.Duration),
		p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create practice: %w", err)
	}
	return nil
}

// FindByStudent returns the latest practices of a student, newest first.
func (r *PracticeRepository) FindByStudent(ctx context.Context, studentID string, limit int) ([]*practice.Practice, error) {
	query := `SELECT ` + practiceColumns + `
		FROM practices
		WHERE student_id = $1
		ORDER BY practiced_at DESC
	`
	args := []any{studentID}
	if limit > 0 {
		query += ` LIMIT $2`
		args = append(args, limit)
	}

	rows, err := r.conn.Querier(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query practices: %w", err)
	}
	defer rows.Close()

	return scanPractices(rows)
}

// ExistsForDate returns any practice logged on the given platform day, or nil.
func (r *PracticeRepository) ExistsForDate(ctx context.Context, studentID string, day time.Time) (*practice.Practice, error) {
	from := timeutil.StartOfDay(day)
	to := from.AddDate(0, 0, 1)

	query := `SELECT ` + practiceColumns + `
		FROM practices
		WHERE student_id = $1 AND practiced_at >= $2 AND practiced_at < $3
		ORDER BY practiced_at
		LIMIT 1
	`

	rows, err := r.conn.Querier(ctx).Query(ctx, query, studentID, from.UTC(), to.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query practice for date: %w", err)
	}
	defer rows.Close()

	practices, err := scanPractices(rows)
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

	query := `SELECT practiced_at FROM practices
		WHERE student_id = $1 AND practiced_at < $2
		ORDER BY practiced_at DESC
	`

	rows, err := r.conn.Querier(ctx).Query(ctx, query, studentID, end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list practice days: %w", err)
	}
	defer rows.Close()

	var practices []*practice.Practice
	for rows.Next() {
		var at time.Time
		if err := rows.Scan(&at); err != nil {
			return nil, fmt.Errorf("failed to scan practice day: %w", err)
		}
		practices = append(practices, &practice.Practice{Date: at})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return practice.DistinctDays(practices, upTo), nil
}

func scanPractices(rows pgx.Rows) ([]*practice.Practice, error) {
	var practices []*practice.Practice
	for rows.Next() {
		var p practice.Practice
		var typ, origin string
		var seconds *int64

		if err := rows.Scan(&p.ID, &p.StudentID, &p.Date, &typ, &origin, &seconds, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan practice: %w", err)
		}

		p.Type = practice.Type(typ)
		p.Origin = practice.Origin(origin)
		if seconds != nil {
			d := time.Duration(*seconds) * time.Second
			p.Duration = &d
		}
		practices = append(practices, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return practices, nil
}

func durationSeconds(d *time.Duration) *int64 {
	if d == nil {
		return nil
	}
	s := int64(d.Seconds())
	return &s
}
