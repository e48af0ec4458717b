package subscription

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerive(t *testing.T) {
	tests := []struct {
		stored    Status
		paused    bool
		effective Status
		action    SyncAction
	}{
		{StatusActive, true, StatusPaused, SyncToPaused},
		{StatusActive, false, StatusActive, SyncNone},
		{StatusPaused, true, StatusPaused, SyncNone},
		{StatusPaused, false, StatusPaused, SyncNone},
		{StatusCancelled, false, StatusCancelled, SyncNone},
		{StatusCancelled, true, StatusCancelled, SyncNone},
		{StatusPastDue, true, StatusPastDue, SyncNone},
		{StatusPastDue, false, StatusPastDue, SyncNone},
	}

	for _, tt := range tests {
		name := tt.stored.String()
		if tt.paused {
			name += "/paused"
		}
		t.Run(name, func(t *testing.T) {
			d := Derive(tt.stored, tt.paused)
			assert.Equal(t, tt.effective, d.Effective)
			assert.Equal(t, tt.action, d.Action)
			assert.Equal(t, tt.action != SyncNone, d.NeedsSync())
		})
	}
}

func TestPlanRepair(t *testing.T) {
	assert.Equal(t, RepairSeedPause, PlanRepair(StatusPaused, false))
	assert.Equal(t, RepairClosePause, PlanRepair(StatusActive, true))
	assert.Equal(t, RepairNone, PlanRepair(StatusActive, false))
	assert.Equal(t, RepairNone, PlanRepair(StatusPaused, true))
	assert.Equal(t, RepairNone, PlanRepair(StatusCancelled, true))
	assert.Equal(t, RepairNone, PlanRepair(StatusPastDue, false))
}

func TestStatus(t *testing.T) {
	assert.True(t, StatusPastDue.IsValid())
	assert.False(t, Status("trial").IsValid())
	assert.True(t, StatusActive.AllowsPractice())
	assert.False(t, StatusPaused.AllowsPractice())
	assert.False(t, StatusCancelled.AllowsPractice())
	assert.False(t, StatusPastDue.AllowsPractice())
}
