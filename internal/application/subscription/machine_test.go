package subscription

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentoria/practice-hub/internal/domain/audit"
	"github.com/mentoria/practice-hub/internal/domain/pause"
	"github.com/mentoria/practice-hub/internal/domain/shared"
	"github.com/mentoria/practice-hub/internal/domain/student"
	domain "github.com/mentoria/practice-hub/internal/domain/subscription"
	"github.com/mentoria/practice-hub/internal/infrastructure/persistence/sqlite"
	"github.com/mentoria/practice-hub/pkg/timeutil"
)

var errInjected = errors.New("injected failure")

// failingStudents fails status writes to exercise rollback.
type failingStudents struct {
	student.Repository
}

func (failingStudents) UpdateSubscriptionStatus(context.Context, string, domain.Status) error {
	return errInjected
}

// failingRecorder rejects every audit event.
type failingRecorder struct{}

func (failingRecorder) Record(context.Context, audit.Event) error {
	return errInjected
}

type fixture struct {
	db       *sqlite.DB
	students *sqlite.StudentRepository
	pauses   *sqlite.PauseRepository
	audits   *sqlite.AuditRepository
	clock    timeutil.FixedClock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := sqlite.Open(context.Background(), filepath.Join(t.TempDir(), "hub.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return &fixture{
		db:       db,
		students: sqlite.NewStudentRepository(db),
		pauses:   sqlite.NewPauseRepository(db),
		audits:   sqlite.NewAuditRepository(db),
		clock:    timeutil.FixedClock{At: timeutil.DateTime(2024, 3, 10, 9, 0, 0)},
	}
}

func (f *fixture) machine(students student.Repository, rec audit.Recorder) *Machine {
	return NewMachine(Deps{
		Students: students,
		Pauses:   f.pauses,
		Tx:       f.db,
		Audit:    rec,
		Clock:    f.clock,
	})
}

func (f *fixture) seed(t *testing.T, status domain.Status) *student.Student {
	t.Helper()
	ctx := context.Background()
	enrolled := timeutil.Date(2024, 1, 1)
	s, err := student.NewStudent(student.NewStudentParams{
		ID:         uuid.New().String(),
		Email:      uuid.New().String() + "@example.com",
		EnrolledAt: &enrolled,
	})
	require.NoError(t, err)
	require.NoError(t, f.students.Create(ctx, s))
	if status != domain.StatusActive {
		require.NoError(t, f.students.UpdateSubscriptionStatus(ctx, s.ID, status))
		s.SubscriptionStatus = status
	}
	return s
}

func (f *fixture) openPause(t *testing.T, studentID string) *pause.Pause {
	t.Helper()
	p, err := pause.New(studentID, timeutil.Date(2024, 3, 1), nil, "")
	require.NoError(t, err)
	require.NoError(t, f.pauses.Create(context.Background(), p))
	return p
}

func TestMachine_PauseAndReactivate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.machine(f.students, f.audits)
	s := f.seed(t, domain.StatusActive)

	res, err := m.Pause(ctx, s.ID, PauseOptions{Reason: "travel", Actor: "admin@example.com"})
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, domain.StatusPaused, res.Status)

	active, err := f.pauses.GetActive(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.True(t, f.clock.At.Equal(active.Start))

	got, err := f.students.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, got.SubscriptionStatus)
	assert.False(t, m.CanPracticeToday(ctx, s.ID))

	res, err = m.Reactivate(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)
	assert.Equal(t, active.ID, res.PauseID)

	active, err = f.pauses.GetActive(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, active)

	got, err = f.students.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.SubscriptionStatus)
	require.NotNil(t, got.ReactivatedAt)
	assert.True(t, f.clock.At.Equal(*got.ReactivatedAt))
	assert.True(t, m.CanPracticeToday(ctx, s.ID))

	paused, err := f.audits.CountByType(ctx, s.ID, audit.EventSubscriptionPaused)
	require.NoError(t, err)
	assert.Equal(t, 1, paused)
	reactivated, err := f.audits.CountByType(ctx, s.ID, audit.EventSubscriptionReactivated)
	require.NoError(t, err)
	assert.Equal(t, 1, reactivated)
}

func TestMachine_NoOps(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.machine(f.students, f.audits)
	s := f.seed(t, domain.StatusActive)

	res, err := m.Reactivate(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, res.Changed)

	_, err = m.Pause(ctx, s.ID, PauseOptions{})
	require.NoError(t, err)
	res, err = m.Pause(ctx, s.ID, PauseOptions{})
	require.NoError(t, err)
	assert.False(t, res.Changed)

	all, err := f.pauses.ListAll(ctx, s.ID)
	require.NoError(t, err)
	assert.Len(t, all, 1)

	n, err := f.audits.CountByType(ctx, s.ID, audit.EventSubscriptionPaused)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMachine_Pause_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.machine(failingStudents{Repository: f.students}, f.audits)
	s := f.seed(t, domain.StatusActive)

	_, err := m.Pause(ctx, s.ID, PauseOptions{})
	assert.ErrorIs(t, err, errInjected)

	active, err := f.pauses.GetActive(ctx, s.ID)
	require.NoError(t, err)
	assert.Nil(t, active, "pause insert must be rolled back")

	got, err := f.students.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, got.SubscriptionStatus)

	n, err := f.audits.CountByType(ctx, s.ID, audit.EventSubscriptionPaused)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMachine_Reactivate_RollsBackOnFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.seed(t, domain.StatusPaused)
	p := f.openPause(t, s.ID)
	m := f.machine(failingStudents{Repository: f.students}, f.audits)

	_, err := m.Reactivate(ctx, s.ID)
	assert.ErrorIs(t, err, errInjected)

	active, err := f.pauses.GetActive(ctx, s.ID)
	require.NoError(t, err)
	require.NotNil(t, active, "pause close must be rolled back")
	assert.Equal(t, p.ID, active.ID)

	got, err := f.students.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, got.SubscriptionStatus)
	assert.Nil(t, got.ReactivatedAt)
}

func TestMachine_AuditFailureDoesNotBlock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.machine(f.students, failingRecorder{})
	s := f.seed(t, domain.StatusActive)

	res, err := m.Pause(ctx, s.ID, PauseOptions{})
	require.NoError(t, err)
	assert.True(t, res.Changed)
}

func TestMachine_EffectiveStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.machine(f.students, nil)

	tests := []struct {
		name      string
		stored    domain.Status
		withPause bool
		effective domain.Status
		action    domain.SyncAction
	}{
		{"active with pause", domain.StatusActive, true, domain.StatusPaused, domain.SyncToPaused},
		{"active", domain.StatusActive, false, domain.StatusActive, domain.SyncNone},
		{"paused with pause", domain.StatusPaused, true, domain.StatusPaused, domain.SyncNone},
		{"paused without pause", domain.StatusPaused, false, domain.StatusPaused, domain.SyncNone},
		{"cancelled", domain.StatusCancelled, false, domain.StatusCancelled, domain.SyncNone},
		{"past due with pause", domain.StatusPastDue, true, domain.StatusPastDue, domain.SyncNone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := f.seed(t, tt.stored)
			if tt.withPause {
				f.openPause(t, s.ID)
			}

			d, err := m.EffectiveStatus(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, tt.effective, d.Effective)
			assert.Equal(t, tt.action, d.Action)
		})
	}
}

func TestMachine_SyncStatus(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.machine(f.students, f.audits)
	s := f.seed(t, domain.StatusActive)
	f.openPause(t, s.ID)

	d, err := m.SyncStatus(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, d.NeedsSync())

	got, err := f.students.GetByID(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusPaused, got.SubscriptionStatus)

	d, err = m.SyncStatus(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, d.NeedsSync())
}

func TestMachine_CanPracticeToday_FailOpen(t *testing.T) {
	f := newFixture(t)
	m := f.machine(f.students, nil)

	assert.True(t, m.CanPracticeToday(context.Background(), "missing"))
}

func TestMachine_UnknownStudent(t *testing.T) {
	f := newFixture(t)
	m := f.machine(f.students, nil)

	_, err := m.Pause(context.Background(), "missing", PauseOptions{})
	assert.True(t, shared.IsNotFound(err))
}

func TestMachine_Repairs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.machine(f.students, f.audits)

	pausedNoPause := f.seed(t, domain.StatusPaused)
	activeWithPause := f.seed(t, domain.StatusActive)
	open := f.openPause(t, activeWithPause.ID)

	repair, err := m.InspectRepair(ctx, pausedNoPause)
	require.NoError(t, err)
	assert.Equal(t, domain.RepairSeedPause, repair)

	applied, err := m.ApplyRepair(ctx, pausedNoPause, repair)
	require.NoError(t, err)
	assert.True(t, applied)

	seeded, err := f.pauses.GetActive(ctx, pausedNoPause.ID)
	require.NoError(t, err)
	require.NotNil(t, seeded)
	assert.Equal(t, "2024-01-01", timeutil.DayKey(seeded.Start))

	repair, err = m.InspectRepair(ctx, activeWithPause)
	require.NoError(t, err)
	assert.Equal(t, domain.RepairClosePause, repair)

	applied, err = m.ApplyRepair(ctx, activeWithPause, repair)
	require.NoError(t, err)
	assert.True(t, applied)

	all, err := f.pauses.ListAll(ctx, activeWithPause.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, open.ID, all[0].ID)
	require.NotNil(t, all[0].End)
	assert.True(t, f.clock.At.Equal(*all[0].End))

	applied, err = m.ApplyRepair(ctx, activeWithPause, repair)
	require.NoError(t, err)
	assert.False(t, applied, "second apply is a no-op")

	n, err := f.audits.CountByType(ctx, activeWithPause.ID, audit.EventPauseClosed)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMachine_ScheduledPause(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.machine(f.students, f.audits)
	s := f.seed(t, domain.StatusActive)

	start := timeutil.Date(2024, 3, 15)
	p, err := pause.New(s.ID, start, nil, "")
	require.NoError(t, err)
	require.NoError(t, f.pauses.Create(ctx, p))

	d, err := m.EffectiveStatus(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.StatusActive, d.Effective, "a pause that has not started does not pause")
	assert.True(t, m.CanPracticeToday(ctx, s.ID))

	repair, err := m.InspectRepair(ctx, s)
	require.NoError(t, err)
	assert.Equal(t, domain.RepairNone, repair)

	applied, err := m.ApplyRepair(ctx, s, domain.RepairClosePause)
	require.NoError(t, err)
	assert.False(t, applied)

	res, err := m.Reactivate(ctx, s.ID)
	require.NoError(t, err)
	assert.True(t, res.Changed)

	all, err := f.pauses.ListAll(ctx, s.ID)
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.NotNil(t, all[0].End)
	assert.True(t, start.Equal(*all[0].End))
}

func TestMachine_ClosedSubscriptionsStayClosed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m := f.machine(f.students, f.audits)

	for _, status := range []domain.Status{domain.StatusCancelled, domain.StatusPastDue} {
		t.Run(string(status), func(t *testing.T) {
			s := f.seed(t, status)

			_, err := m.Pause(ctx, s.ID, PauseOptions{})
			assert.ErrorIs(t, err, shared.ErrSubscriptionClosed)
			assert.True(t, shared.IsInvalidState(err))

			active, err := f.pauses.GetActive(ctx, s.ID)
			require.NoError(t, err)
			assert.Nil(t, active)

			// A pause left over from before the cancellation is closed,
			// the stored status is kept.
			f.openPause(t, s.ID)
			res, err := m.Reactivate(ctx, s.ID)
			require.NoError(t, err)
			assert.True(t, res.Changed)
			assert.Equal(t, status, res.Status)

			got, err := f.students.GetByID(ctx, s.ID)
			require.NoError(t, err)
			assert.Equal(t, status, got.SubscriptionStatus)
			assert.Nil(t, got.ReactivatedAt)
			assert.False(t, m.CanPracticeToday(ctx, s.ID))
		})
	}
}
