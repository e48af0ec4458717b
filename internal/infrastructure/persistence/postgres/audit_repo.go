package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mentoria/practice-hub/internal/domain/audit"
)

// AuditRepository implements audit.Recorder using PostgreSQL.
type AuditRepository struct {
	conn *Connection
}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository(conn *Connection) *AuditRepository {
	return &AuditRepository{conn: conn}
}

// Record stores an audit event.
func (r *AuditRepository) Record(ctx context.Context, e audit.Event) error {
	payload, err := json.Marshal(e.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal audit payload: %w", err)
	}
	if e.Payload == nil {
		payload = []byte("{}")
	}

	var studentID any
	if e.StudentID != "" {
		studentID = e.StudentID
	}

	query := `
		INSERT INTO audit_events (id, event_type, student_id, actor, payload, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	if _, err := r.conn.Querier(ctx).Exec(ctx, query,
		e.ID, string(e.Type), studentID, e.Actor, payload, e.OccurredAt.UTC(),
	); err != nil {
		return fmt.Errorf("failed to record audit event: %w", err)
	}
	return nil
}
