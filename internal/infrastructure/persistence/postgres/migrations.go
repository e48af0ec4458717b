package postgres

import (
	"context"
	"fmt"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// migrationLockKey serializes concurrent migrators through a transaction-level
// advisory lock.
const migrationLockKey int64 = 0x70726163

// Migration is one forward schema step.
type Migration struct {
	Version int
	Name    string
	SQL     string
}

// Migrations returns the embedded schema steps in version order.
func Migrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_students", SQL: migration001Up},
		{Version: 2, Name: "create_practices_and_pauses", SQL: migration002Up},
		{Version: 3, Name: "create_audit_events", SQL: migration003Up},
	}
}

// Migrator applies pending migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
}

// NewMigrator creates a migrator with the embedded migrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{conn: conn, migrations: Migrations()}
}

// Migrate applies every pending migration in one transaction. Concurrent
// callers wait on the advisory lock and then find nothing to do.
func (m *Migrator) Migrate(ctx context.Context) error {
	return m.conn.WithinTx(ctx, func(ctx context.Context) error {
		q := m.conn.Querier(ctx)

		if _, err := q.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
			return fmt.Errorf("%w: lock: %v", ErrMigrationFailed, err)
		}

		_, err := q.Exec(ctx, `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version INTEGER PRIMARY KEY,
				name TEXT NOT NULL,
				applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)`)
		if err != nil {
			return fmt.Errorf("failed to create migrations table: %w", err)
		}

		applied, err := m.applied(ctx, q)
		if err != nil {
			return err
		}

		for _, mig := range m.migrations {
			if applied[mig.Version] {
				continue
			}
			if mig.SQL == "" {
				return fmt.Errorf("%w: missing SQL for migration %d", ErrMigrationFailed, mig.Version)
			}
			if _, err := q.Exec(ctx, mig.SQL); err != nil {
				return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
			}
			if _, err := q.Exec(ctx,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`,
				mig.Version, mig.Name,
			); err != nil {
				return fmt.Errorf("%w: record version %d: %v", ErrMigrationFailed, mig.Version, err)
			}
		}
		return nil
	})
}

func (m *Migrator) applied(ctx context.Context, q Querier) (map[int]bool, error) {
	rows, err := q.Query(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]bool)
	for rows.Next() {
		var version int
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = true
	}
	return applied, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: CREATE STUDENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration001Up = `
-- Migration: Create students table
-- Version: 001

CREATE TABLE IF NOT EXISTS students (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    email VARCHAR(255) NOT NULL UNIQUE,
    display_name VARCHAR(100) NOT NULL DEFAULT '',
    enrolled_at TIMESTAMP WITH TIME ZONE,

    -- Derived, denormalized fields (recomputed by reconcile)
    subscription_status VARCHAR(20) NOT NULL DEFAULT 'active',
    current_streak INTEGER NOT NULL DEFAULT 0,
    last_practice_date DATE,
    nivel_actual INTEGER NOT NULL DEFAULT 1,
    nivel_manual INTEGER,
    fase_actual VARCHAR(50) NOT NULL DEFAULT 'foundation',
    reactivated_at TIMESTAMP WITH TIME ZONE,

    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_subscription_status CHECK (subscription_status IN ('active', 'paused', 'cancelled', 'past_due')),
    CONSTRAINT valid_streak CHECK (current_streak >= 0),
    CONSTRAINT valid_nivel_actual CHECK (nivel_actual >= 1),
    CONSTRAINT valid_nivel_manual CHECK (nivel_manual IS NULL OR nivel_manual >= 1)
);

CREATE INDEX IF NOT EXISTS idx_students_subscription_status ON students(subscription_status);
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: CREATE PRACTICES AND PAUSES
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
-- Migration: Create practice log and pause intervals
-- Version: 002

-- Practices are append-only: never updated, never deleted by the application
CREATE TABLE IF NOT EXISTS practices (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    practiced_at TIMESTAMP WITH TIME ZONE NOT NULL,
    type VARCHAR(20) NOT NULL,
    origin VARCHAR(20) NOT NULL,
    duration_seconds INTEGER,
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_duration CHECK (duration_seconds IS NULL OR duration_seconds >= 0)
);

CREATE INDEX IF NOT EXISTS idx_practices_student_date ON practices(student_id, practiced_at DESC);

-- Pause intervals: end_at IS NULL means the pause is open
CREATE TABLE IF NOT EXISTS pauses (
    id UUID PRIMARY KEY DEFAULT gen_random_uuid(),
    student_id UUID NOT NULL REFERENCES students(id) ON DELETE CASCADE,
    start_at TIMESTAMP WITH TIME ZONE NOT NULL,
    end_at TIMESTAMP WITH TIME ZONE,
    reason VARCHAR(255) NOT NULL DEFAULT '',
    created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),

    CONSTRAINT valid_interval CHECK (end_at IS NULL OR end_at >= start_at)
);

CREATE INDEX IF NOT EXISTS idx_pauses_student_start ON pauses(student_id, start_at);
CREATE INDEX IF NOT EXISTS idx_pauses_open ON pauses(student_id) WHERE end_at IS NULL;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 003: CREATE AUDIT EVENTS
// ══════════════════════════════════════════════════════════════════════════════

const migration003Up = `
-- Migration: Create audit trail
-- Version: 003

CREATE TABLE IF NOT EXISTS audit_events (
    id UUID PRIMARY KEY,
    event_type VARCHAR(64) NOT NULL,
    student_id UUID,
    actor VARCHAR(255) NOT NULL DEFAULT 'system',
    payload JSONB NOT NULL DEFAULT '{}'::jsonb,
    occurred_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_audit_events_student ON audit_events(student_id, occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type, occurred_at DESC);
`
