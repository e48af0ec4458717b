package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mentoria/practice-hub/internal/domain/pause"
	"github.com/mentoria/practice-hub/internal/domain/shared"
)

const pauseColumns = `id::text, student_id::text, start_at, end_at, reason, created_at`

// PauseRepository implements pause.Repository using PostgreSQL.
type PauseRepository struct {
	conn *Connection
}

// NewPauseRepository creates a new PauseRepository.
func NewPauseRepository(conn *Connection) *PauseRepository {
	return &PauseRepository{conn: conn}
}

// Create inserts a pause interval.
func (r *PauseRepository) Create(ctx context.Context, p *pause.Pause) error {
	if p.End != nil && p.End.Before(p.Start) {
		return shared.ErrPauseEndBeforeStart
	}

	query := `
		INSERT INTO pauses (id, student_id, start_at, end_at, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.conn.Querier(ctx).Exec(ctx, query,
		p.ID, p.StudentID, p.Start.UTC(), utcPtr(p.End), p.Reason, p.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to create pause: %w", err)
	}
	return nil
}

// Close sets the end of an open pause.
func (r *PauseRepository) Close(ctx context.Context, pauseID string, end time.Time) error {
	q := r.conn.Querier(ctx)

	row := q.QueryRow(ctx, `SELECT `+pauseColumns+` FROM pauses WHERE id = $1 FOR UPDATE`, pauseID)
	p, err := scanPause(row)
	if err != nil {
		return err
	}

	if err := p.Close(end); err != nil {
		return err
	}

	if _, err := q.Exec(ctx, `UPDATE pauses SET end_at = $1 WHERE id = $2`, p.End.UTC(), pauseID); err != nil {
		return fmt.Errorf("failed to close pause: %w", err)
	}
	return nil
}

// GetActive returns the open pause of a student, or nil.
func (r *PauseRepository) GetActive(ctx context.Context, studentID string) (*pause.Pause, error) {
	query := `SELECT ` + pauseColumns + `
		FROM pauses
		WHERE student_id = $1 AND end_at IS NULL
		ORDER BY start_at DESC
		LIMIT 1
	`

	p, err := scanPause(r.conn.Querier(ctx).QueryRow(ctx, query, studentID))
	if shared.IsNotFound(err) {
		return nil, nil
	}
	return p, err
}

// ListAll returns every pause of a student ordered by start.
func (r *PauseRepository) ListAll(ctx context.Context, studentID string) ([]*pause.Pause, error) {
	query := `SELECT ` + pauseColumns + ` FROM pauses WHERE student_id = $1 ORDER BY start_at`

	rows, err := r.conn.Querier(ctx).Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pauses: %w", err)
	}
	defer rows.Close()

	var pauses []*pause.Pause
	for rows.Next() {
		p, err := scanPause(rows)
		if err != nil {
			return nil, err
		}
		pauses = append(pauses, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}
	return pauses, nil
}

// SumPausedDays sums pause durations in days up to upTo (zero means now).
func (r *PauseRepository) SumPausedDays(ctx context.Context, studentID string, upTo time.Time) (int, error) {
	if upTo.IsZero() {
		upTo = time.Now()
	}
	pauses, err := r.ListAll(ctx, studentID)
	if err != nil {
		return 0, err
	}
	return pause.SumDays(pauses, upTo), nil
}

func scanPause(row pgx.Row) (*pause.Pause, error) {
	var p pause.Pause
	err := row.Scan(&p.ID, &p.StudentID, &p.Start, &p.End, &p.Reason, &p.CreatedAt)
	if IsNoRows(err) {
		return nil, shared.ErrPauseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan pause: %w", err)
	}
	return &p, nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
