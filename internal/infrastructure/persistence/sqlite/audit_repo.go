package sqlite

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/mentoria/practice-hub/internal/domain/audit"
)

// AuditRepository implements audit.Recorder on SQLite.
type AuditRepository struct {
	db *DB
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(db *DB) *AuditRepository {
	return &AuditRepository{db: db}
}

// Record stores an audit event.
func (r *AuditRepository) Record(ctx context.Context, e audit.Event) error {
	payload := []byte("{}")
	if e.Payload != nil {
		var err error
		if payload, err = json.Marshal(e.Payload); err != nil {
			return fmt.Errorf("failed to marshal audit payload: %w", err)
		}
	}

	var studentID *string
	if e.StudentID != "" {
		studentID = &e.StudentID
	}

	_, err := r.db.ext(ctx).ExecContext(ctx,
		`INSERT INTO audit_events (id, event_type, student_id, actor, payload, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID, string(e.Type), studentID, e.Actor, string(payload), formatTime(e.OccurredAt),
	)
	if err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}

// CountByType returns how many events of a type were recorded for a student.
func (r *AuditRepository) CountByType(ctx context.Context, studentID string, eventType audit.EventType) (int, error) {
	var n int
	err := sqlx.GetContext(ctx, r.db.ext(ctx), &n,
		`SELECT COUNT(*) FROM audit_events WHERE student_id = ? AND event_type = ?`,
		studentID, string(eventType))
	if err != nil {
		return 0, fmt.Errorf("failed to count audit events: %w", err)
	}
	return n, nil
}
