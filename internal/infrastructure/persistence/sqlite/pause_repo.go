package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mentoria/practice-hub/internal/domain/pause"
	"github.com/mentoria/practice-hub/internal/domain/shared"
)

const pauseColumns = `id, student_id, start_at, end_at, reason, created_at`

type pauseRow struct {
	ID        string  `db:"id"`
	StudentID string  `db:"student_id"`
	StartAt   string  `db:"start_at"`
	EndAt     *string `db:"end_at"`
	Reason    string  `db:"reason"`
	CreatedAt string  `db:"created_at"`
}

func (r pauseRow) toDomain() (*pause.Pause, error) {
	start, err := parseTime(r.StartAt)
	if err != nil {
		return nil, err
	}
	end, err := parseTimePtr(r.EndAt)
	if err != nil {
		return nil, err
	}
	created, err := parseTime(r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &pause.Pause{
		ID:        r.ID,
		StudentID: r.StudentID,
		Start:     start,
		End:       end,
		Reason:    r.Reason,
		CreatedAt: created,
	}, nil
}

// PauseRepository implements pause.Repository on SQLite.
type PauseRepository struct {
	db *DB
}

// NewPauseRepository creates a new PauseRepository.
func NewPauseRepository(db *DB) *PauseRepository {
	return &PauseRepository{db: db}
}

// Create inserts a pause interval.
func (r *PauseRepository) Create(ctx context.Context, p *pause.Pause) error {
	if p.End != nil && p.End.Before(p.Start) {
		return shared.ErrPauseEndBeforeStart
	}

	_, err := r.db.ext(ctx).ExecContext(ctx,
		`INSERT INTO pauses (`+pauseColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.StudentID, formatTime(p.Start), formatTimePtr(p.End), p.Reason, formatTime(p.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to create pause: %w", err)
	}
	return nil
}

// Close sets the end of an open pause.
func (r *PauseRepository) Close(ctx context.Context, pauseID string, end time.Time) error {
	p, err := r.get(ctx, pauseID)
	if err != nil {
		return err
	}
	if err := p.Close(end); err != nil {
		return err
	}

	_, err = r.db.ext(ctx).ExecContext(ctx,
		`UPDATE pauses SET end_at = ? WHERE id = ?`, formatTime(*p.End), pauseID)
	if err != nil {
		return fmt.Errorf("failed to close pause: %w", err)
	}
	return nil
}

func (r *PauseRepository) get(ctx context.Context, pauseID string) (*pause.Pause, error) {
	var row pauseRow
	err := sqlx.GetContext(ctx, r.db.ext(ctx), &row, `SELECT `+pauseColumns+` FROM pauses WHERE id = ?`, pauseID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrPauseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pause: %w", err)
	}
	return row.toDomain()
}

// GetActive returns the open pause of a student, or nil.
func (r *PauseRepository) GetActive(ctx context.Context, studentID string) (*pause.Pause, error) {
	var row pauseRow
	err := sqlx.GetContext(ctx, r.db.ext(ctx), &row,
		`SELECT `+pauseColumns+` FROM pauses
		WHERE student_id = ? AND end_at IS NULL
		ORDER BY start_at DESC LIMIT 1`, studentID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get active pause: %w", err)
	}
	return row.toDomain()
}

// ListAll returns every pause of a student ordered by start.
func (r *PauseRepository) ListAll(ctx context.Context, studentID string) ([]*pause.Pause, error) {
	var rows []pauseRow
	err := sqlx.SelectContext(ctx, r.db.ext(ctx), &rows,
		`SELECT `+pauseColumns+` FROM pauses WHERE student_id = ? ORDER BY start_at`, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to list pauses: %w", err)
	}

	pauses := make([]*pause.Pause, 0, len(rows))
	for _, row := range rows {
		p, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		pauses = append(pauses, p)
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
