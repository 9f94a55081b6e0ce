package feedback

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacopone/claude-nixos-automation-sub000/internal/catalog"
	"github.com/jacopone/claude-nixos-automation-sub000/internal/storage"
)

func newTestLearner(t *testing.T, tr *Tracker) *Learner {
	t.Helper()
	return NewLearner(LearnerConfig{
		Path:    filepath.Join(t.TempDir(), "thresholds.json"),
		Tracker: tr,
	})
}

// seedDecisions writes n decisions for a component with the given number
// of acceptances.
func seedDecisions(t *testing.T, tr *Tracker, component string, accepted, total int) {
	t.Helper()
	for i := 0; i < total; i++ {
		rec := record(component, fmt.Sprintf("%s:seed-%d", component, i), i < accepted, time.Duration(i+1)*time.Hour)
		require.NoError(t, tr.Record(rec))
	}
}

func TestParamsDefaults(t *testing.T) {
	l := newTestLearner(t, newTestTracker(t))

	params, version, err := l.Params()
	require.NoError(t, err)
	assert.Equal(t, 0, version)
	assert.Equal(t, catalog.DefaultParams(), params)
}

func TestParamsSeeds(t *testing.T) {
	l := NewLearner(LearnerConfig{
		Path:    filepath.Join(t.TempDir(), "thresholds.json"),
		Tracker: newTestTracker(t),
		Seeds: map[catalog.Tier]catalog.TierParams{
			catalog.TierSafe:  {MinOccurrences: 4, WindowDays: 7},
			catalog.TierRisky: {ConfidenceThreshold: 0.99},
		},
	})

	params, version, err := l.Params()
	require.NoError(t, err)
	assert.Equal(t, 0, version)
	assert.Equal(t, 4, params[catalog.TierSafe].MinOccurrences)
	assert.Equal(t, 7, params[catalog.TierSafe].WindowDays)
	// Unset seed fields inherit the defaults, excessive ones are clamped.
	assert.InDelta(t, 0.30, params[catalog.TierSafe].ConfidenceThreshold, 1e-9)
	assert.InDelta(t, 0.90, params[catalog.TierRisky].ConfidenceThreshold, 1e-9)
	assert.Equal(t, catalog.DefaultParams()[catalog.TierModerate], params[catalog.TierModerate])
}

func TestRecalibrateSkipsInsufficientFeedback(t *testing.T) {
	tr := newTestTracker(t)
	seedDecisions(t, tr, catalog.ComponentPatternDetector, 0, 2)
	l := newTestLearner(t, tr)

	result, err := l.Recalibrate()
	require.NoError(t, err)
	assert.Empty(t, result.Adjustments)
	assert.Equal(t, 0, result.Version)
	assert.Contains(t, result.Skipped[catalog.ComponentPatternDetector], "2 decisions")
	assert.Contains(t, result.Skipped, catalog.ComponentCrossScope)
}

func TestRecalibrateTightens(t *testing.T) {
	tr := newTestTracker(t)
	seedDecisions(t, tr, catalog.ComponentPatternDetector, 1, 4)
	l := newTestLearner(t, tr)

	result, err := l.Recalibrate()
	require.NoError(t, err)

	// Each owned tier moves one step on both parameters.
	assert.Len(t, result.Adjustments, 6)
	assert.Equal(t, 1, result.Version)
	for _, adj := range result.Adjustments {
		assert.Greater(t, adj.After, adj.Before, "tightening must raise %s of %s", adj.Parameter, adj.Tier)
		assert.Contains(t, adj.Reason, "below")
	}

	params, version, err := l.Params()
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.Equal(t, 3, params[catalog.TierSafe].MinOccurrences)
	assert.InDelta(t, 0.35, params[catalog.TierSafe].ConfidenceThreshold, 1e-9)
	assert.Equal(t, 4, params[catalog.TierModerate].MinOccurrences)
	assert.InDelta(t, 0.55, params[catalog.TierModerate].ConfidenceThreshold, 1e-9)
	assert.Equal(t, 6, params[catalog.TierRisky].MinOccurrences)
	assert.InDelta(t, 0.75, params[catalog.TierRisky].ConfidenceThreshold, 1e-9)

	// The cross-scope tier is untouched: its component had no feedback.
	assert.Equal(t, catalog.DefaultParams()[catalog.TierCrossScope], params[catalog.TierCrossScope])
}

func TestRecalibrateLoosensWithinBounds(t *testing.T) {
	tr := newTestTracker(t)
	seedDecisions(t, tr, catalog.ComponentPatternDetector, 4, 4)
	l := newTestLearner(t, tr)

	result, err := l.Recalibrate()
	require.NoError(t, err)

	// From the defaults, SAFE already sits on its lower bounds and
	// MODERATE's occurrence floor is its default, so only three values
	// can actually move.
	assert.Len(t, result.Adjustments, 3)

	params, _, err := l.Params()
	require.NoError(t, err)
	assert.Equal(t, 2, params[catalog.TierSafe].MinOccurrences)
	assert.InDelta(t, 0.30, params[catalog.TierSafe].ConfidenceThreshold, 1e-9)
	assert.Equal(t, 3, params[catalog.TierModerate].MinOccurrences)
	assert.InDelta(t, 0.45, params[catalog.TierModerate].ConfidenceThreshold, 1e-9)
	assert.Equal(t, 4, params[catalog.TierRisky].MinOccurrences)
	assert.InDelta(t, 0.65, params[catalog.TierRisky].ConfidenceThreshold, 1e-9)
}

func TestRecalibrateHealthyBand(t *testing.T) {
	tr := newTestTracker(t)
	seedDecisions(t, tr, catalog.ComponentPatternDetector, 3, 4)
	l := newTestLearner(t, tr)

	result, err := l.Recalibrate()
	require.NoError(t, err)
	assert.Empty(t, result.Adjustments)
	assert.Equal(t, 0, result.Version)

	params, _, err := l.Params()
	require.NoError(t, err)
	assert.Equal(t, catalog.DefaultParams(), params)
}

func TestRecalibrateNeverLeavesBounds(t *testing.T) {
	tr := newTestTracker(t)
	seedDecisions(t, tr, catalog.ComponentPatternDetector, 0, 5)
	seedDecisions(t, tr, catalog.ComponentCrossScope, 0, 5)
	l := newTestLearner(t, tr)

	for i := 0; i < 10; i++ {
		_, err := l.Recalibrate()
		require.NoError(t, err)
	}

	params, version, err := l.Params()
	require.NoError(t, err)
	for _, tier := range catalog.Tiers() {
		b := catalog.BoundsFor(tier)
		assert.True(t, b.Contains(params[tier]), "%s params %+v escaped bounds", tier, params[tier])
		assert.Equal(t, b.OccMax, params[tier].MinOccurrences, "%s should saturate at its cap", tier)
		assert.InDelta(t, b.ConfMax, params[tier].ConfidenceThreshold, 1e-9)
	}

	// Version only moves while something changes; saturation stops it.
	result, err := l.Recalibrate()
	require.NoError(t, err)
	assert.Empty(t, result.Adjustments)
	assert.Equal(t, version, result.Version)
}

func TestParamsCorruptedReset(t *testing.T) {
	tr := newTestTracker(t)
	path := filepath.Join(t.TempDir(), "thresholds.json")
	require.NoError(t, os.WriteFile(path, []byte("{bad json"), 0644))

	l := NewLearner(LearnerConfig{Path: path, Tracker: tr})
	params, version, err := l.Params()
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.Equal(t, catalog.DefaultParams(), params)

	// The file on disk is valid again.
	var file thresholdsFile
	require.NoError(t, storage.ReadJSON(path, &file))
	assert.Equal(t, 1, file.Version)
}

func TestParamsClampsOutOfBounds(t *testing.T) {
	tr := newTestTracker(t)
	path := filepath.Join(t.TempDir(), "thresholds.json")
	require.NoError(t, storage.WriteJSONAtomic(path, thresholdsFile{
		Version:   7,
		UpdatedAt: time.Now().UTC(),
		Tiers: map[catalog.Tier]catalog.TierParams{
			catalog.TierSafe: {MinOccurrences: 99, WindowDays: 14, ConfidenceThreshold: 0.01},
		},
	}))

	l := NewLearner(LearnerConfig{Path: path, Tracker: tr})
	params, version, err := l.Params()
	require.NoError(t, err)
	assert.Equal(t, 7, version)
	assert.Equal(t, 5, params[catalog.TierSafe].MinOccurrences)
	assert.InDelta(t, 0.30, params[catalog.TierSafe].ConfidenceThreshold, 1e-9)
}
