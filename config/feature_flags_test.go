package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureFlags_Defaults(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.True(t, ff.IsEnabled(FeatureDrillForce, nil))
	assert.True(t, ff.IsEnabled(FeatureFeynmanHints, nil))
	assert.False(t, ff.IsEnabled(FeatureExperimentalSpacedRepetition, nil))
	assert.False(t, ff.IsEnabled("no.such.feature", nil))
}

func TestFeatureFlags_EnvironmentOverride(t *testing.T) {
	t.Setenv("FEATURE_DRILL_FORCE", "false")
	t.Setenv("FEATURE_EXPERIMENTAL_SPACED_REPETITION", "true")
	t.Setenv("FEATURE_FEYNMAN_HINTS", "25")

	ff := LoadFeatureFlags()

	assert.False(t, ff.IsEnabled(FeatureDrillForce, nil))
	assert.True(t, ff.IsEnabled(FeatureExperimentalSpacedRepetition, nil))

	hints, ok := ff.GetAllFeatures()[FeatureFeynmanHints]
	require.True(t, ok)
	assert.Equal(t, 25, hints.RolloutPercent)
	assert.True(t, hints.Enabled)
}

func TestFeatureFlags_RolloutIsConsistentPerUser(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureDrillForce, 50))

	ctx := &FeatureContext{Username: "alice"}
	first := ff.IsEnabled(FeatureDrillForce, ctx)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ff.IsEnabled(FeatureDrillForce, ctx))
	}

	// Some usernames land in the bucket and some do not.
	users := []string{"alice", "bob", "carol", "dave", "erin", "frank", "grace", "heidi"}
	enabled := 0
	for _, u := range users {
		if ff.IsEnabled(FeatureDrillForce, &FeatureContext{Username: u}) {
			enabled++
		}
	}
	assert.Greater(t, enabled, 0)
	assert.Less(t, enabled, len(users))
}

func TestFeatureFlags_StaffBypassRollout(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.SetRolloutPercent(FeatureDrillForce, 1))

	staff := &FeatureContext{Username: "teacher", IsStaff: true}
	assert.True(t, ff.IsEnabled(FeatureDrillForce, staff))

	// Disabled features stay off even for staff.
	require.NoError(t, ff.DisableFeature(FeatureDrillForce))
	assert.False(t, ff.IsEnabled(FeatureDrillForce, staff))
}

func TestFeatureFlags_UserOverrides(t *testing.T) {
	ff := LoadFeatureFlags()
	require.NoError(t, ff.DisableFeature(FeatureDrillForce))

	ctx := &FeatureContext{Username: "alice"}
	assert.False(t, ff.IsEnabled(FeatureDrillForce, ctx))

	ff.SetUserOverride("alice", FeatureDrillForce, true)
	assert.True(t, ff.IsEnabled(FeatureDrillForce, ctx))
	assert.False(t, ff.IsEnabled(FeatureDrillForce, &FeatureContext{Username: "bob"}))

	ff.ClearUserOverrides("alice")
	assert.False(t, ff.IsEnabled(FeatureDrillForce, ctx))
}

func TestFeatureFlags_SetRolloutPercent(t *testing.T) {
	ff := LoadFeatureFlags()

	assert.ErrorIs(t, ff.SetRolloutPercent("no.such.feature", 10), ErrFeatureNotFound)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureDrillForce, 101), ErrInvalidRolloutPercent)
	assert.ErrorIs(t, ff.SetRolloutPercent(FeatureDrillForce, -1), ErrInvalidRolloutPercent)

	require.NoError(t, ff.EnableFeature(FeatureExperimentalSpacedRepetition))
	assert.True(t, ff.IsEnabled(FeatureExperimentalSpacedRepetition, nil))
}

func TestFeatureFlags_GetAllFeaturesReturnsCopies(t *testing.T) {
	ff := LoadFeatureFlags()

	all := ff.GetAllFeatures()
	all[FeatureDrillForce].Enabled = false

	assert.True(t, ff.IsEnabled(FeatureDrillForce, nil))
}
