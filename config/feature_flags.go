package config

import (
	"hash/fnv"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// FeatureFlags manages feature toggles and gradual rollout for the
// learning modules. Rollout buckets are assigned by a consistent hash
// of the username, so a learner keeps the same experience between
// sessions.
type FeatureFlags struct {
	mu        sync.RWMutex
	features  map[string]*Feature
	overrides map[string]map[string]bool // username -> feature -> forced state
}

// Feature is one toggle with optional gradual rollout and an optional
// activation window.
type Feature struct {
	Name        string
	Description string
	Enabled     bool

	// RolloutPercent gates non-staff users, 0 to 100.
	RolloutPercent int

	EnabledFrom  *time.Time
	EnabledUntil *time.Time
}

// FeatureContext identifies who is asking.
type FeatureContext struct {
	Username string
	IsStaff  bool // teacher or admin
}

// Feature names, grouped by module.
const (
	FeatureDrillForce = "drill.force" // Timed force drill module
	FeatureDrillPause = "drill.pause" // Allow pausing the timer
	FeatureDrillSkip  = "drill.skip"  // Skip memorization early

	FeatureFeynmanHints         = "feynman.hints"         // Draft feedback while typing
	FeatureFeynmanEncouragement = "feynman.encouragement" // Random praise on submit

	FeatureProgressAchievements    = "progress.achievements"    // Badge unlocks
	FeatureProgressEfficiency      = "progress.efficiency"      // Words-per-minute bands
	FeatureProgressRecommendations = "progress.recommendations" // Study suggestions

	FeatureWordsExcelImport = "words.excel_import" // Catalog import from workbooks

	FeatureExperimentalSpacedRepetition = "experimental.spaced_repetition" // Review scheduling
)

// defaultFeatures lists every known flag with its shipped state.
var defaultFeatures = []Feature{
	{Name: FeatureDrillForce, Description: "Timed force drill module", Enabled: true, RolloutPercent: 100},
	{Name: FeatureDrillPause, Description: "Allow pausing a running drill", Enabled: true, RolloutPercent: 100},
	{Name: FeatureDrillSkip, Description: "Skip memorization before the timer expires", Enabled: true, RolloutPercent: 100},
	{Name: FeatureFeynmanHints, Description: "Draft feedback while writing an explanation", Enabled: true, RolloutPercent: 100},
	{Name: FeatureFeynmanEncouragement, Description: "Random encouragement on submitted explanations", Enabled: true, RolloutPercent: 100},
	{Name: FeatureProgressAchievements, Description: "Achievement badges", Enabled: true, RolloutPercent: 100},
	{Name: FeatureProgressEfficiency, Description: "Learning efficiency bands", Enabled: true, RolloutPercent: 100},
	{Name: FeatureProgressRecommendations, Description: "Personalized study recommendations", Enabled: true, RolloutPercent: 50},
	{Name: FeatureWordsExcelImport, Description: "Catalog import from Excel workbooks", Enabled: true, RolloutPercent: 100},
	{Name: FeatureExperimentalSpacedRepetition, Description: "Spaced repetition review scheduling", Enabled: false, RolloutPercent: 0},
}

// LoadFeatureFlags builds the flag set from the shipped defaults and
// applies environment overrides on top.
//
// Overrides use FEATURE_<NAME> with dots mapped to underscores, and
// accept a boolean or a rollout percent:
//
//	FEATURE_DRILL_FORCE=false
//	FEATURE_PROGRESS_RECOMMENDATIONS=50
func LoadFeatureFlags() *FeatureFlags {
	ff := &FeatureFlags{
		features:  make(map[string]*Feature, len(defaultFeatures)),
		overrides: make(map[string]map[string]bool),
	}
	for _, def := range defaultFeatures {
		f := def
		ff.applyEnv(&f)
		ff.features[f.Name] = &f
	}
	return ff
}

func (ff *FeatureFlags) applyEnv(f *Feature) {
	val := os.Getenv(envKeyFor(f.Name))
	if val == "" {
		return
	}

	if b, err := strconv.ParseBool(val); err == nil {
		f.Enabled = b
		f.RolloutPercent = 0
		if b {
			f.RolloutPercent = 100
		}
		return
	}

	if p, err := strconv.Atoi(val); err == nil && p >= 0 && p <= 100 {
		f.Enabled = p > 0
		f.RolloutPercent = p
	}
}

// envKeyFor maps "drill.force" to "FEATURE_DRILL_FORCE".
func envKeyFor(name string) string {
	return "FEATURE_" + strings.ReplaceAll(strings.ToUpper(name), ".", "_")
}

// IsEnabled evaluates a flag for the given caller. Per-user overrides
// win over everything; staff skip the rollout gate but not the master
// toggle; everyone else is bucketed by username hash.
func (ff *FeatureFlags) IsEnabled(featureName string, ctx *FeatureContext) bool {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	if ctx != nil && ctx.Username != "" {
		if forced, ok := ff.overrides[ctx.Username][featureName]; ok {
			return forced
		}
	}

	feature, ok := ff.features[featureName]
	if !ok {
		return false
	}
	if ctx != nil && ctx.IsStaff {
		return feature.Enabled
	}
	if !feature.Enabled || !feature.activeNow() {
		return false
	}

	if feature.RolloutPercent < 100 && ctx != nil && ctx.Username != "" {
		return rolloutBucket(featureName, ctx.Username) < feature.RolloutPercent
	}
	return feature.RolloutPercent > 0
}

func (f *Feature) activeNow() bool {
	now := time.Now()
	if f.EnabledFrom != nil && now.Before(*f.EnabledFrom) {
		return false
	}
	if f.EnabledUntil != nil && now.After(*f.EnabledUntil) {
		return false
	}
	return true
}

// rolloutBucket hashes the feature and username into a stable 0-99
// bucket. The feature name is part of the hash so one user is not
// stuck on the same side of every rollout.
func rolloutBucket(featureName, username string) int {
	h := fnv.New32a()
	h.Write([]byte(featureName))
	h.Write([]byte(username))
	return int(h.Sum32() % 100)
}

// SetUserOverride forces a flag on or off for one user. Meant for
// testing and debugging.
func (ff *FeatureFlags) SetUserOverride(username, featureName string, enabled bool) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	if ff.overrides[username] == nil {
		ff.overrides[username] = make(map[string]bool)
	}
	ff.overrides[username][featureName] = enabled
}

// ClearUserOverrides removes every override for a user.
func (ff *FeatureFlags) ClearUserOverrides(username string) {
	ff.mu.Lock()
	defer ff.mu.Unlock()
	delete(ff.overrides, username)
}

// SetRolloutPercent changes a flag's rollout live. Zero disables the
// flag, anything above zero enables it.
func (ff *FeatureFlags) SetRolloutPercent(featureName string, percent int) error {
	ff.mu.Lock()
	defer ff.mu.Unlock()

	feature, ok := ff.features[featureName]
	if !ok {
		return ErrFeatureNotFound
	}
	if percent < 0 || percent > 100 {
		return ErrInvalidRolloutPercent
	}
	feature.RolloutPercent = percent
	feature.Enabled = percent > 0
	return nil
}

// EnableFeature turns a flag fully on.
func (ff *FeatureFlags) EnableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 100)
}

// DisableFeature turns a flag fully off.
func (ff *FeatureFlags) DisableFeature(featureName string) error {
	return ff.SetRolloutPercent(featureName, 0)
}

// GetAllFeatures returns a snapshot of every flag. Mutating the
// returned features does not affect live state.
func (ff *FeatureFlags) GetAllFeatures() map[string]*Feature {
	ff.mu.RLock()
	defer ff.mu.RUnlock()

	out := make(map[string]*Feature, len(ff.features))
	for name, f := range ff.features {
		copied := *f
		out[name] = &copied
	}
	return out
}

// FeatureFlagError is a sentinel error for flag administration.
type FeatureFlagError struct {
	Message string
}

func (e *FeatureFlagError) Error() string {
	return e.Message
}

var (
	ErrFeatureNotFound       = &FeatureFlagError{Message: "feature not found"}
	ErrInvalidRolloutPercent = &FeatureFlagError{Message: "rollout percent must be 0-100"}
)
