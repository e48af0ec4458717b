package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/mentoria/practice-hub/internal/domain/shared"
	"github.com/mentoria/practice-hub/internal/domain/student"
	"github.com/mentoria/practice-hub/internal/domain/subscription"
	"github.com/mentoria/practice-hub/pkg/timeutil"
)

const studentColumns = `id, email, display_name, enrolled_at, subscription_status,
	current_streak, last_practice_date, nivel_actual, nivel_manual,
	fase_actual, reactivated_at, created_at, updated_at`

type studentRow struct {
	ID                 string  `db:"id"`
	Email              string  `db:"email"`
	DisplayName        string  `db:"display_name"`
	EnrolledAt         *string `db:"enrolled_at"`
	SubscriptionStatus string  `db:"subscription_status"`
	CurrentStreak      int     `db:"current_streak"`
	LastPracticeDate   *string `db:"last_practice_date"`
	Level              int     `db:"nivel_actual"`
	ManualLevel        *int    `db:"nivel_manual"`
	Phase              string  `db:"fase_actual"`
	ReactivatedAt      *string `db:"reactivated_at"`
	CreatedAt          string  `db:"created_at"`
	UpdatedAt          string  `db:"updated_at"`
}

func (r studentRow) toDomain() (*student.Student, error) {
	s := &student.Student{
		ID:                 r.ID,
		Email:              r.Email,
		DisplayName:        r.DisplayName,
		SubscriptionStatus: subscription.Status(r.SubscriptionStatus),
		CurrentStreak:      r.CurrentStreak,
		Level:              r.Level,
		ManualLevel:        r.ManualLevel,
		Phase:              r.Phase,
	}

	var err error
	if s.EnrolledAt, err = parseTimePtr(r.EnrolledAt); err != nil {
		return nil, err
	}
	if s.ReactivatedAt, err = parseTimePtr(r.ReactivatedAt); err != nil {
		return nil, err
	}
	if s.CreatedAt, err = parseTime(r.CreatedAt); err != nil {
		return nil, err
	}
	if s.UpdatedAt, err = parseTime(r.UpdatedAt); err != nil {
		return nil, err
	}
	if r.LastPracticeDate != nil {
		day, err := timeutil.ParseDate(*r.LastPracticeDate)
		if err != nil {
			return nil, fmt.Errorf("sqlite: invalid last_practice_date: %w", err)
		}
		s.LastPracticeDate = &day
	}
	return s, nil
}

// StudentRepository implements student.Repository on SQLite.
type StudentRepository struct {
	db *DB
}

// NewStudentRepository creates a new StudentRepository.
func NewStudentRepository(db *DB) *StudentRepository {
	return &StudentRepository{db: db}
}

// GetByID returns a student by internal ID.
func (r *StudentRepository) GetByID(ctx context.Context, id string) (*student.Student, error) {
	return r.getOne(ctx, `SELECT `+studentColumns+` FROM students WHERE id = ?`, id)
}

// GetByEmail returns a student by email.
func (r *StudentRepository) GetByEmail(ctx context.Context, email string) (*student.Student, error) {
	return r.getOne(ctx, `SELECT `+studentColumns+` FROM students WHERE email = ?`, strings.ToLower(email))
}

func (r *StudentRepository) getOne(ctx context.Context, query string, arg any) (*student.Student, error) {
	var row studentRow
	err := sqlx.GetContext(ctx, r.db.ext(ctx), &row, query, arg)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, shared.ErrStudentNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get student: %w", err)
	}
	return row.toDomain()
}

// List returns up to limit students with id greater than after, ordered by id.
func (r *StudentRepository) List(ctx context.Context, after string, limit int) ([]*student.Student, error) {
	if limit <= 0 {
		limit = 500
	}

	var rows []studentRow
	err := sqlx.SelectContext(ctx, r.db.ext(ctx), &rows,
		`SELECT `+studentColumns+` FROM students WHERE id > ? ORDER BY id LIMIT ?`, after, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list students: %w", err)
	}

	students := make([]*student.Student, 0, len(rows))
	for _, row := range rows {
		s, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		students = append(students, s)
	}
	return students, nil
}

// Create inserts a new student.
func (r *StudentRepository) Create(ctx context.Context, s *student.Student) error {
	var lastPractice *string
	if s.LastPracticeDate != nil {
		day := timeutil.DayKey(*s.LastPracticeDate)
		lastPractice = &day
	}

	_, err := r.db.ext(ctx).ExecContext(ctx, `
		INSERT INTO students (`+studentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.ID,
		s.Email,
		s.DisplayName,
		formatTimePtr(s.EnrolledAt),
		string(s.SubscriptionStatus),
		s.CurrentStreak,
		lastPractice,
		s.Level,
		s.ManualLevel,
		s.Phase,
		formatTimePtr(s.ReactivatedAt),
		formatTime(s.CreatedAt),
		formatTime(s.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
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
	var value *string
	if day != nil {
		key := timeutil.DayKey(*day)
		value = &key
	}
	return r.updateColumn(ctx, id, "last_practice_date", value)
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
	return r.updateColumn(ctx, id, "reactivated_at", formatTime(at))
}

// SetManualLevel sets or clears the admin level override.
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
	query := fmt.Sprintf(`UPDATE students SET %s = ?, updated_at = ? WHERE id = ?`, column)

	result, err := r.db.ext(ctx).ExecContext(ctx, query, value, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to update student %s: %w", column, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if affected == 0 {
		return shared.ErrStudentNotFound
	}
	return nil
}
