package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiaomu-learn/qiaomu/internal/domain/navigation"
	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

// bcrypt.MinCost keeps the seeded hashing fast in tests.
const testBcryptCost = 4

func testCredentials() []Credential {
	return []Credential{
		{Username: "alice", Password: "secret", Role: navigation.RoleStudent},
		{Username: "root", Password: "toor", Role: navigation.RoleAdmin},
	}
}

func newTestService(t *testing.T, store storage.KeyValueStore) *Service {
	t.Helper()
	svc, err := NewService(testCredentials(), store, nil, logger.Discard(), Config{
		SessionTTL: 30 * time.Minute,
		BcryptCost: testBcryptCost,
	})
	require.NoError(t, err)
	return svc
}

func TestNewService_RejectsBadCredentials(t *testing.T) {
	_, err := NewService([]Credential{{Username: "", Password: "x"}}, nil, nil, logger.Discard(), Config{BcryptCost: testBcryptCost})
	assert.True(t, shared.IsConfiguration(err))

	_, err = NewService([]Credential{{Username: "alice", Password: ""}}, nil, nil, logger.Discard(), Config{BcryptCost: testBcryptCost})
	assert.True(t, shared.IsConfiguration(err))

	_, err = NewService([]Credential{{Username: "has space", Password: "x"}}, nil, nil, logger.Discard(), Config{BcryptCost: testBcryptCost})
	assert.True(t, shared.IsConfiguration(err))
}

func TestLogin(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	session, err := svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.NotEmpty(t, session.ID)
	assert.Equal(t, "alice", session.Username)
	assert.Equal(t, navigation.RoleStudent, session.Role)
	assert.Equal(t, 30*time.Minute, session.ExpiresAt.Sub(session.CreatedAt))

	// Usernames are case-insensitive, passwords are not.
	_, err = svc.Login(ctx, "  ALICE ", "secret")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "alice", "SECRET")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)

	// Unknown and malformed usernames produce the same error as a bad
	// password.
	_, err = svc.Login(ctx, "mallory", "secret")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
	_, err = svc.Login(ctx, "not a name", "secret")
	assert.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestValidate_Expiry(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })

	session, err := svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	got, err := svc.Validate(session.ID)
	require.NoError(t, err)
	assert.Equal(t, session.ID, got.ID)

	// Garbage tokens are rejected before the lookup.
	_, err = svc.Validate("nope")
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)

	// Past the TTL the session is gone for good.
	now = now.Add(31 * time.Minute)
	_, err = svc.Validate(session.ID)
	assert.ErrorIs(t, err, shared.ErrSessionExpired)
	_, err = svc.Validate(session.ID)
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
}

func TestRefresh_RotatesSessionID(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })

	session, err := svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	now = now.Add(20 * time.Minute)
	refreshed, err := svc.Refresh(ctx, session.ID)
	require.NoError(t, err)
	assert.NotEqual(t, session.ID, refreshed.ID)
	assert.Equal(t, now.Add(30*time.Minute), refreshed.ExpiresAt)

	// The old ID is dead after rotation.
	_, err = svc.Validate(session.ID)
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
	_, err = svc.Refresh(ctx, session.ID)
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)

	_, err = svc.Validate(refreshed.ID)
	assert.NoError(t, err)
}

func TestLogout(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	session, err := svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	svc.Logout(ctx, session.ID)
	_, err = svc.Validate(session.ID)
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)

	// Unknown session is a no-op.
	svc.Logout(ctx, session.ID)
}

func TestSweep(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })

	old, err := svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	now = now.Add(20 * time.Minute)
	fresh, err := svc.Login(ctx, "root", "toor")
	require.NoError(t, err)

	now = now.Add(15 * time.Minute) // old is 35min in, fresh 15min
	assert.Equal(t, 1, svc.Sweep(ctx))
	assert.Equal(t, 0, svc.Sweep(ctx))

	_, err = svc.Validate(old.ID)
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
	_, err = svc.Validate(fresh.ID)
	assert.NoError(t, err)
}

func TestRestore_AcrossRestart(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

	svc := newTestService(t, store)
	svc.SetClock(func() time.Time { return now })

	live, err := svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	// "Restart": a new service over the same store, ten minutes later.
	svc2 := newTestService(t, store)
	svc2.SetClock(func() time.Time { return now.Add(10 * time.Minute) })
	require.NoError(t, svc2.Restore(ctx))

	got, err := svc2.Validate(live.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.Username)
}

func TestRestore_DropsExpired(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc := newTestService(t, store)
	svc.SetClock(func() time.Time { return now })

	session, err := svc.Login(ctx, "alice", "secret")
	require.NoError(t, err)

	svc2 := newTestService(t, store)
	svc2.SetClock(func() time.Time { return now.Add(time.Hour) })
	require.NoError(t, svc2.Restore(ctx))

	_, err = svc2.Validate(session.ID)
	assert.ErrorIs(t, err, shared.ErrSessionNotFound)
}

func TestHasPermission(t *testing.T) {
	assert.True(t, HasPermission(navigation.RoleAdmin, "manage_content"))
	assert.True(t, HasPermission(navigation.RoleTeacher, "manage_content"))
	assert.False(t, HasPermission(navigation.RoleStudent, "manage_content"))
	assert.True(t, HasPermission(navigation.RoleStudent, "view_own_progress"))
	assert.False(t, HasPermission(navigation.RoleGuest, "view_stats"))
}
