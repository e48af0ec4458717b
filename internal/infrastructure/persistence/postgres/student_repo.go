package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/mentoria/practice-hub/internal/domain/shared"
	"github.com/mentoria/practice-hub/internal/domain/student"
	"github.com/mentoria/practice-hub/internal/domain/subscription"
	"github.com/mentoria/practice-hub/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

const studentColumns = `
	id::text, email, display_name, enrolled_at, subscription_status,
	current_streak, last_practice_date, nivel_actual, nivel_manual,
	fase_actual, reactivated_at, created_at, updated_at
`

// StudentRepository implements student.Repository for PostgreSQL.
type StudentRepository struct {
	conn *Connection
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(conn *Connection) *StudentRepository {
	return &StudentRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Reads
// ─────────────────────────────────────────────────────────────────────────────

// GetByID returns a student by internal ID.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*student.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE id = $1`

	row := r.conn.Querier(ctx).QueryRow(ctx, query, id)
	return r.scanStudent(row)
}

// GetByEmail returns a student by email.
func (r *StudentRepository) GetByEmail(ctx context.Context, email string) (*student.Student, error) {
	query := `SELECT ` + studentColumns + ` FROM students WHERE email = $1`

	row := r.conn.Querier(ctx).QueryRow(ctx, query, email)
	return r.scanStudent(row)
}

// List returns up to limit students with id greater than after, ordered by id.
func (r *StudentRepository) List(ctx context.Context, after string, limit int) ([]*student.Student, error) {
	if limit <= 0 {
		limit = 500
	}

	var afterArg any
	if after != "" {
		afterArg = after
	}

	query := `SELECT ` + studentColumns + `
		FROM students
		WHERE ($1::uuid IS NULL OR id > $1::uuid)
		ORDER BY id
		LIMIT $2
	`

	rows, err := r.conn.Querier(ctx).Query(ctx, query, afterArg, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}
	defer rows.Close()

	var students []*student.Student
	for rows.Next() {
		s, err := r.scanStudent(rows)
		if err != nil {
			return nil, err
		}
		students = append(students, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return students, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Writes
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, s *student.Student) error {
	query := `
		INSERT INTO students (
			id, email, display_name, enrolled_at, subscription_status,
			current_streak, last_practice_date, nivel_actual, nivel_manual,
			fase_actual, reactivated_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err := r.conn.Querier(ctx).Exec(ctx, query,
		s.ID,
		s.Email,
		s.DisplayName,
		s.EnrolledAt,
		string(s.SubscriptionStatus),
		s.CurrentStreak,
		toDateArg(s.LastPracticeDate),
		s.Level,
		s.ManualLevel,
		s.Phase,
		s.ReactivatedAt,
		s.CreatedAt,
		s.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.WrapError("student", "Create", shared.ErrAlreadyExists, "student already exists", err)
		}
		return fmt.Errorf("failed to create student: %w", err)
	}

	return nil
}

// UpdateLevel writes the computed level.
func (r *StudentRepository) UpdateLevel(ctx context.Context, id string, level int) error {
	if err := student.ValidateLevel(level); err != nil {
		return err
	}
	return r.updateColumn(ctx, id, "nivel_actual", level)
}

// UpdatePhase writes the computed phase.
func (r *StudentRepository) UpdatePhase(ctx context.Context, id string, phase string) error {
	if err := student.ValidatePhase(phase); err != nil {
		return err
	}
	return r.updateColumn(ctx, id, "fase_actual", phase)
}

// UpdateStreak writes the streak length.
func (r *StudentRepository) UpdateStreak(ctx context.Context, id string, streak int) error {
	if err := student.ValidateStreak(streak); err != nil {
		return err
	}
	return r.updateColumn(ctx, id, "current_streak", streak)
}

// UpdateLastPracticeDate writes the last practice day; nil clears it.
func (r *StudentRepository) UpdateLastPracticeDate(ctx context.Context, id string, day *time.Time) error {
	return r.updateColumn(ctx, id, "last_practice_date", toDateArg(day))
}

// UpdateSubscriptionStatus writes the stored subscription status.
func (r *StudentRepository) UpdateSubscriptionStatus(ctx context.Context, id string, status subscription.Status) error {
	if !status.IsValid() {
		return shared.ErrInvalidStatus
	}
	return r.updateColumn(ctx, id, "subscription_status", string(status))
}

// SetReactivatedAt records the moment the subscription was reactivated.
func (r *StudentRepository) SetReactivatedAt(ctx context.Context, id string, at time.Time) error {
	return r.updateColumn(ctx, id, "reactivated_at", at.UTC())
}

// SetManualLevel sets or clears (nil) the manual level override.
func (r *StudentRepository) SetManualLevel(ctx context.Context, id string, level *int) error {
	if level != nil {
		if err := student.ValidateLevel(*level); err != nil {
			return err
		}
	}
	return r.updateColumn(ctx, id, "nivel_manual", level)
}

// updateColumn sets one whitelisted column. column is never user input.
func (r *StudentRepository) updateColumn(ctx context.Context, id, column string, value any) error {
	query := fmt.Sprintf(`UPDATE students SET %s = $1, updated_at = $2 WHERE id = $3`, column)

	result, err := r.conn.Querier(ctx).Exec(ctx, query, value, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update student %s: %w", column, err)
	}

	if result.RowsAffected() == 0 {
		return shared.ErrStudentNotFound
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

// scanStudent scans a single student row.
func (r *StudentRepository) scanStudent(row pgx.Row) (*student.Student, error) {
	var s student.Student
	var status string
	var lastPractice *time.Time

	err := row.Scan(
		&s.ID,
		&s.Email,
		&s.DisplayName,
		&s.EnrolledAt,
		&status,
		&s.CurrentStreak,
		&lastPractice,
		&s.Level,
		&s.ManualLevel,
		&s.Phase,
		&s.ReactivatedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	)

	if IsNoRows(err) {
		return nil, shared.ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan student: %w", err)
	}

	s.SubscriptionStatus = subscription.Status(status)
	if lastPractice != nil {
		day := timeutil.FromDateValue(*lastPractice)
		s.LastPracticeDate = &day
	}

	return &s, nil
}

// toDateArg converts a platform calendar day into a DATE parameter.
func toDateArg(day *time.Time) any {
	if day == nil {
		return nil
	}
	return timeutil.ToDateValue(*day)
}
