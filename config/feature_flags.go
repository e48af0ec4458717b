package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
)

// Feature names. Each reconciliation phase can be switched off without a
// deploy; the streak cache is opt-in because it needs Redis.
const (
	FeatureReconcilePauses   = "reconcile.pauses"
	FeatureReconcileStreaks  = "reconcile.streaks"
	FeatureReconcileProgress = "reconcile.progress"
	FeatureStreakCache       = "streak.cache"
)

// defaultFeatures is the initial state of every known flag.
var defaultFeatures = []Feature{
	{Name: FeatureReconcilePauses, Description: "Seed or close pauses that contradict the stored status", RolloutPercent: 100},
	{Name: FeatureReconcileStreaks, Description: "Recompute stored streaks from practice history", RolloutPercent: 100},
	{Name: FeatureReconcileProgress, Description: "Recompute stored level and phase", RolloutPercent: 100},
	{Name: FeatureStreakCache, Description: "Cache streak snapshots in Redis", RolloutPercent: 0},
}

// Feature is one toggle. RolloutPercent 0 means off, 100 means on for
// everyone; values in between bucket students by a hash of their id.
type Feature struct {
	Name           string
	Description    string
	Enabled        bool
	RolloutPercent int
}

func (f *Feature) setPercent(p int) {
	f.RolloutPercent = p
	f.Enabled = p > 0
}

// FeatureContext narrows evaluation to one student.
type FeatureContext struct {
	StudentID string
}

// FeatureFlags is a concurrency-safe set of toggles.
type FeatureFlags struct {
	mu       sync.RWMutex
	features map[string]*Feature
}

// LoadFeatureFlags builds the defaults and applies FEATURE_<NAME> overrides:
// true, false or a rollout percent. Unparseable values are ignored.
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features: make(map[string]*Feature, len(defaultFeatures)),
	}
	for _, def := range defaultFeatures {
		f := def
		f.setPercent(def.RolloutPercent)
		ff.features[f.Name] = &f

		if p, ok := parseFlagValue(os.Getenv(featureNameToEnvKey(f.Name))); ok {
			f.setPercent(p)
		}
	}
	return ff
}

// parseFlagValue maps true/false to 100/0 and accepts a plain percent.
func parseFlagValue(val string) (int, bool) {
	if val == "" {
		return 0, false
	}
	if b, err := strconv.ParseBool(val); err == nil {
		if b {
			return 100, true
		}
		return 0, true
	}
	p, err := strconv.Atoi(val)
	if err != nil || p < 0 || p > 100 {
		return 0, false
	}
	return p, true
}

// featureNameToEnvKey maps "reconcile.streaks" to FEATURE_RECONCILE_STREAKS.
func featureNameToEnvKey(name string) string {
	return "FEATURE_" + strings.ToUpper(strings.ReplaceAll(name, ".", "_"))
}

// IsEnabled evaluates a flag. With a nil context it reports whether the
// flag is on for anyone at all; callers then narrow per student.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	f, ok := ff.features[featureName]
	switch {
	case !ok || !f.Enabled:
		return false
	case f.RolloutPercent >= 100:
		return true
	case ctx != nil && ctx.StudentID != "":
		return rolloutBucket(featureName, ctx.StudentID) < f.RolloutPercent
	}
	return f.RolloutPercent > 0
}

// rolloutBucket places a student in 0..99, stable per feature.
func rolloutBucket(featureName, studentID string) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(featureName))
	_, _ = h.Write([]byte(studentID))
	return int(h.Sum32() % 100)
}

// SetRolloutPercent changes the rollout of a known feature.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}

	ff.mu.Lock()
	defer ff.mu.Unlock()

	f, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	f.setPercent(percent)
	return nil
}

// EnableFeature turns a feature on for everyone.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature turns a feature off.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// FeatureFlagError is returned by the mutators.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string { return e.Message }

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)
