package settings

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestGet_DefaultsBeforeLoad(t *testing.T) {
	svc := NewService(nil, logger.Discard())
	got := svc.Get()
	assert.Equal(t, "auto", got.Theme)
	assert.Equal(t, "zh-TW", got.Language)
	assert.True(t, got.Notifications)
}

func TestApply_MergesOnlyNamedFields(t *testing.T) {
	svc := NewService(storage.NewMemoryStore(), logger.Discard())
	ctx := context.Background()

	got, err := svc.Apply(ctx, Update{Theme: strPtr("dark")})
	require.NoError(t, err)
	assert.Equal(t, "dark", got.Theme)
	// Untouched fields keep their values.
	assert.Equal(t, "zh-TW", got.Language)
	assert.True(t, got.SoundEffects)

	got, err = svc.Apply(ctx, Update{SoundEffects: boolPtr(false), Language: strPtr("en")})
	require.NoError(t, err)
	assert.Equal(t, "dark", got.Theme)
	assert.Equal(t, "en", got.Language)
	assert.False(t, got.SoundEffects)
}

func TestApply_Validation(t *testing.T) {
	svc := NewService(nil, logger.Discard())
	ctx := context.Background()

	_, err := svc.Apply(ctx, Update{Theme: strPtr("neon")})
	assert.True(t, shared.IsValidation(err))

	_, err = svc.Apply(ctx, Update{Language: strPtr("")})
	assert.True(t, shared.IsValidation(err))

	// A rejected update leaves the settings untouched.
	assert.Equal(t, "auto", svc.Get().Theme)
}

func TestReset(t *testing.T) {
	svc := NewService(storage.NewMemoryStore(), logger.Discard())
	ctx := context.Background()

	_, err := svc.Apply(ctx, Update{Theme: strPtr("light"), Notifications: boolPtr(false)})
	require.NoError(t, err)

	got, err := svc.Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, Defaults(), got)
	assert.Equal(t, Defaults(), svc.Get())
}

func TestLoad_PersistedValuesSurviveRestart(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	svc := NewService(store, logger.Discard())
	_, err := svc.Apply(ctx, Update{Theme: strPtr("dark"), StudyReminders: boolPtr(false)})
	require.NoError(t, err)

	svc2 := NewService(store, logger.Discard())
	require.NoError(t, svc2.Load(ctx))
	got := svc2.Get()
	assert.Equal(t, "dark", got.Theme)
	assert.False(t, got.StudyReminders)
	// Fields never persisted fall back to defaults.
	assert.Equal(t, "zh-TW", got.Language)
}
