package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mentoria/practice-hub/config"
	"github.com/mentoria/practice-hub/internal/application/reconcile"
	"github.com/mentoria/practice-hub/internal/domain/practice"
	"github.com/mentoria/practice-hub/internal/domain/student"
	"github.com/mentoria/practice-hub/internal/infrastructure/persistence/sqlite"
	"github.com/mentoria/practice-hub/pkg/timeutil"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestRootCmd_ModeFlags(t *testing.T) {
	_, err := execute(t)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dry-run")

	_, err = execute(t, "--dry-run", "--apply")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "none of the others can be")
}

func TestRootCmd_InvalidConfigFails(t *testing.T) {
	t.Setenv("DATABASE_DRIVER", "mysql")

	_, err := execute(t, "--dry-run")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DATABASE_DRIVER")
}

func TestRootCmd_SQLiteRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hub.db")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("DATABASE_SQLITE_PATH", path)
	t.Setenv("REDIS_ENABLED", "false")
	t.Setenv("LOG_LEVEL", "error")

	// Студент с сегодняшней практикой и нулевой серией.
	ctx := context.Background()
	db, err := sqlite.Open(ctx, path)
	require.NoError(t, err)
	enrolled := timeutil.StartOfDay(timeutil.Now()).AddDate(0, 0, -3)
	s, err := student.NewStudent(student.NewStudentParams{
		ID:         uuid.New().String(),
		Email:      "cli@example.com",
		EnrolledAt: &enrolled,
	})
	require.NoError(t, err)
	require.NoError(t, sqlite.NewStudentRepository(db).Create(ctx, s))
	today := timeutil.StartOfDay(timeutil.Now()).Add(time.Minute)
	require.NoError(t, sqlite.NewPracticeRepository(db).Create(ctx, &practice.Practice{
		ID:        uuid.New().String(),
		StudentID: s.ID,
		Date:      today,
		Type:      practice.TypeWritten,
		Origin:    practice.OriginApp,
		CreatedAt: today,
	}))
	require.NoError(t, db.Close())

	out, err := execute(t, "--dry-run")
	require.NoError(t, err)
	assert.Contains(t, out, "(dry-run)")
	assert.Contains(t, out, "streaks  total=1 changed=1 applied=0 errors=0")
	assert.Contains(t, out, s.ID+" current_streak: 0 -> 1")

	out, err = execute(t, "--apply", "--workers", "2")
	require.NoError(t, err)
	assert.Contains(t, out, "streaks  total=1 changed=1 applied=1 errors=0")

	out, err = execute(t, "--apply")
	require.NoError(t, err)
	assert.Contains(t, out, "streaks  total=1 changed=0 applied=0 errors=0")
}

func TestPrintReport(t *testing.T) {
	r := &reconcile.Report{RunID: "run-1", DryRun: true}
	r.Pauses.Skipped = true
	r.Streaks.PhaseStats = reconcile.PhaseStats{Total: 3, Changed: 1}
	r.Streaks.Diffs = []reconcile.Diff{{StudentID: "s1", Field: "current_streak", From: "0", To: "4"}}
	r.Streaks.DiffsTruncated = 2
	r.Progress.PhaseStats = reconcile.PhaseStats{Total: 3}

	var buf bytes.Buffer
	printReport(&buf, r)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Equal(t, []string{
		"run run-1 (dry-run)",
		"pauses   skipped",
		"streaks  total=3 changed=1 applied=0 errors=0",
		"  s1 current_streak: 0 -> 4",
		"  ... 2 more",
		"progress total=3 changed=0 applied=0 errors=0",
	}, lines)
}

func TestProgressConfig(t *testing.T) {
	cfg, err := progressConfig(config.ProgressConfig{})
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.LevelThresholds)

	cfg, err = progressConfig(config.ProgressConfig{
		LevelThresholds: []int{5, 10},
		PhaseBands:      []string{"2:advanced", "1:basics"},
	})
	require.NoError(t, err)
	assert.Equal(t, []int{5, 10}, cfg.LevelThresholds)
	assert.Equal(t, "basics", cfg.PhaseBands[0].Phase)

	_, err = progressConfig(config.ProgressConfig{PhaseBands: []string{"3:late"}})
	assert.Error(t, err)

	_, err = progressConfig(config.ProgressConfig{PhaseBands: []string{"oops"}})
	assert.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, "DEBUG", parseLevel("debug").String())
	assert.Equal(t, "WARN", parseLevel("WARN").String())
	assert.Equal(t, "INFO", parseLevel("").String())
}

func TestPhaseRollout(t *testing.T) {
	t.Setenv("FEATURE_RECONCILE_STREAKS", "30")
	rollout := phaseRollout(config.LoadFeatureFlags())

	in := 0
	for range 1000 {
		id := uuid.New().String()
		assert.True(t, rollout(reconcile.PhasePauses, id), "fully rolled out phase keeps every student")
		if rollout(reconcile.PhaseStreaks, id) {
			in++
		}
	}
	assert.InDelta(t, 300, in, 120)
	assert.True(t, rollout(reconcile.Phase("unknown"), "s1"))
}
