package navigation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
)

var testNow = time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)

func TestCanAccess(t *testing.T) {
	tests := []struct {
		role Role
		id   ModuleID
		want bool
	}{
		{RoleAdmin, ModuleForce, true},
		{RoleAdmin, ModuleFeynman, true},
		{RoleTeacher, ModuleForce, true},
		{RoleStudent, ModuleForce, true},
		{RoleStudent, ModuleFeynman, true},
		{RoleGuest, ModuleDashboard, true},
		{RoleGuest, ModuleWords, true},
		{RoleGuest, ModuleQuiz, true},
		{RoleGuest, ModuleForce, false},
		{RoleGuest, ModuleFeynman, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.role)+"_"+string(tt.id), func(t *testing.T) {
			assert.Equal(t, tt.want, CanAccess(tt.role, tt.id))
		})
	}
}

func TestNewManager_StartsAtHome(t *testing.T) {
	m := NewManager()
	assert.Equal(t, HomeModule, m.Current())
	assert.Empty(t, m.History())
	assert.Len(t, m.Modules(), 5)
}

func TestNavigate(t *testing.T) {
	m := NewManager()

	require.NoError(t, m.Navigate(ModuleWords, RoleStudent, testNow))
	assert.Equal(t, ModuleWords, m.Current())
	assert.Equal(t, []ModuleID{ModuleDashboard}, m.History())

	// Navigating to the current surface is a no-op with no audit line.
	require.NoError(t, m.Navigate(ModuleWords, RoleStudent, testNow))
	assert.Len(t, m.AuditLog(), 1)
}

func TestNavigate_UnknownModule(t *testing.T) {
	m := NewManager()
	err := m.Navigate(ModuleID("arcade"), RoleStudent, testNow)
	assert.ErrorIs(t, err, shared.ErrUnknownModule)
	assert.Equal(t, HomeModule, m.Current())

	log := m.AuditLog()
	require.Len(t, log, 1)
	assert.False(t, log[0].Allowed)
	assert.Equal(t, "unknown module", log[0].Reason)
}

func TestNavigate_GuestDenied(t *testing.T) {
	m := NewManager()
	err := m.Navigate(ModuleForce, RoleGuest, testNow)
	assert.ErrorIs(t, err, shared.ErrModuleForbidden)
	assert.True(t, shared.IsPermission(err))
	assert.Equal(t, HomeModule, m.Current())
	assert.Empty(t, m.History())
}

func TestNavigate_InterceptorVeto(t *testing.T) {
	m := NewManager()
	m.Intercept(func(from, to ModuleID) error {
		if to == ModuleQuiz {
			return errors.New("quiz closed for maintenance")
		}
		return nil
	})

	err := m.Navigate(ModuleQuiz, RoleStudent, testNow)
	assert.ErrorIs(t, err, shared.ErrNavigationVetoed)
	assert.Equal(t, HomeModule, m.Current())

	log := m.AuditLog()
	require.Len(t, log, 1)
	assert.Equal(t, "quiz closed for maintenance", log[0].Reason)

	// Other surfaces unaffected.
	require.NoError(t, m.Navigate(ModuleWords, RoleStudent, testNow))
}

func TestNavigate_FirstVetoWins(t *testing.T) {
	m := NewManager()
	calls := 0
	m.Intercept(func(from, to ModuleID) error { return errors.New("first") })
	m.Intercept(func(from, to ModuleID) error { calls++; return nil })

	err := m.Navigate(ModuleWords, RoleStudent, testNow)
	require.Error(t, err)
	assert.Zero(t, calls)
}

func TestGoBack(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Navigate(ModuleWords, RoleStudent, testNow))
	require.NoError(t, m.Navigate(ModuleQuiz, RoleStudent, testNow))

	to, err := m.GoBack(RoleStudent, testNow)
	require.NoError(t, err)
	assert.Equal(t, ModuleWords, to)
	assert.Equal(t, ModuleWords, m.Current())

	to, err = m.GoBack(RoleStudent, testNow)
	require.NoError(t, err)
	assert.Equal(t, ModuleDashboard, to)

	// Empty history.
	_, err = m.GoBack(RoleStudent, testNow)
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
	assert.Equal(t, ModuleDashboard, m.Current())
}

func TestHistory_CappedAtTen(t *testing.T) {
	m := NewManager()

	// Bounce between two surfaces far past the cap.
	targets := []ModuleID{ModuleWords, ModuleQuiz}
	for i := 0; i < 15; i++ {
		require.NoError(t, m.Navigate(targets[i%2], RoleStudent, testNow))
	}
	assert.Len(t, m.History(), 10)

	// The oldest entries fell off: walking all the way back never
	// reaches further than ten hops.
	steps := 0
	for {
		if _, err := m.GoBack(RoleStudent, testNow); err != nil {
			break
		}
		steps++
	}
	assert.Equal(t, 10, steps)
}

func TestAuditLog_CappedAtHundred(t *testing.T) {
	m := NewManager()
	targets := []ModuleID{ModuleWords, ModuleQuiz}
	for i := 0; i < 120; i++ {
		require.NoError(t, m.Navigate(targets[i%2], RoleStudent, testNow))
	}
	assert.Len(t, m.AuditLog(), 100)
}

func TestResetHome(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Navigate(ModuleWords, RoleStudent, testNow))
	require.NoError(t, m.Navigate(ModuleQuiz, RoleStudent, testNow))

	m.ResetHome(RoleStudent, testNow)
	assert.Equal(t, HomeModule, m.Current())
	assert.Empty(t, m.History())

	// Reset from home adds no audit line.
	before := len(m.AuditLog())
	m.ResetHome(RoleStudent, testNow)
	assert.Len(t, m.AuditLog(), before)
}

func TestRegister(t *testing.T) {
	m := NewManager()
	require.NoError(t, m.Register(Module{ID: "review", Title: "複習", Icon: "🔁"}))
	assert.Len(t, m.Modules(), 6)
	require.NoError(t, m.Navigate(ModuleID("review"), RoleStudent, testNow))

	err := m.Register(Module{ID: "review"})
	assert.True(t, shared.IsAlreadyExists(err))

	err = m.Register(Module{})
	assert.True(t, shared.IsValidation(err))
}
