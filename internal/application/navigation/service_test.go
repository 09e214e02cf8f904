package navigation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiaomu-learn/qiaomu/internal/domain/navigation"
	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

type capturePublisher struct {
	events []shared.Event
}

func (p *capturePublisher) Publish(event shared.Event) error {
	p.events = append(p.events, event)
	return nil
}

func newTestService() (*Service, *capturePublisher) {
	pub := &capturePublisher{}
	return NewService(storage.NewMemoryStore(), pub, logger.Discard()), pub
}

func TestNavigate_PublishesEvents(t *testing.T) {
	svc, pub := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Navigate(ctx, "alice", navigation.RoleStudent, navigation.ModuleWords))
	assert.Equal(t, navigation.ModuleWords, svc.Current())

	require.Len(t, pub.events, 2)
	assert.Equal(t, shared.EventModuleChanged, pub.events[0].EventType())
	assert.Equal(t, shared.EventNavChanged, pub.events[1].EventType())

	// Navigating to the current surface publishes nothing new.
	pub.events = nil
	require.NoError(t, svc.Navigate(ctx, "alice", navigation.RoleStudent, navigation.ModuleWords))
	assert.Empty(t, pub.events)
}

func TestNavigate_DeniedIsAuditedNotPublished(t *testing.T) {
	svc, pub := newTestService()
	ctx := context.Background()

	err := svc.Navigate(ctx, "visitor", navigation.RoleGuest, navigation.ModuleForce)
	assert.ErrorIs(t, err, shared.ErrModuleForbidden)
	assert.Empty(t, pub.events)

	log := svc.AuditLog()
	require.Len(t, log, 1)
	assert.False(t, log[0].Allowed)
}

func TestNavigate_InterceptorVeto(t *testing.T) {
	svc, _ := newTestService()
	svc.Intercept(func(from, to navigation.ModuleID) error {
		if to == navigation.ModuleForce {
			return errors.New("force drills disabled")
		}
		return nil
	})

	err := svc.Navigate(context.Background(), "alice", navigation.RoleStudent, navigation.ModuleForce)
	assert.ErrorIs(t, err, shared.ErrNavigationVetoed)
	assert.Equal(t, navigation.HomeModule, svc.Current())
}

func TestGoBack(t *testing.T) {
	svc, pub := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Navigate(ctx, "alice", navigation.RoleStudent, navigation.ModuleWords))
	require.NoError(t, svc.Navigate(ctx, "alice", navigation.RoleStudent, navigation.ModuleQuiz))
	pub.events = nil

	to, err := svc.GoBack(ctx, "alice", navigation.RoleStudent)
	require.NoError(t, err)
	assert.Equal(t, navigation.ModuleWords, to)
	assert.Len(t, pub.events, 2)

	// Walk down to home, then the stack is empty.
	_, err = svc.GoBack(ctx, "alice", navigation.RoleStudent)
	require.NoError(t, err)
	_, err = svc.GoBack(ctx, "alice", navigation.RoleStudent)
	assert.True(t, errors.Is(err, shared.ErrInvalidState))
}

func TestResetHome(t *testing.T) {
	svc, pub := newTestService()
	ctx := context.Background()

	require.NoError(t, svc.Navigate(ctx, "alice", navigation.RoleStudent, navigation.ModuleQuiz))
	pub.events = nil

	svc.ResetHome(ctx, "alice", navigation.RoleStudent)
	assert.Equal(t, navigation.HomeModule, svc.Current())
	assert.Empty(t, svc.History())
	assert.Len(t, pub.events, 2)

	// Resetting from home is quiet.
	pub.events = nil
	svc.ResetHome(ctx, "alice", navigation.RoleStudent)
	assert.Empty(t, pub.events)
}

func TestAuditPersistedToStore(t *testing.T) {
	store := storage.NewMemoryStore()
	svc := NewService(store, nil, logger.Discard())
	ctx := context.Background()

	require.NoError(t, svc.Navigate(ctx, "alice", navigation.RoleStudent, navigation.ModuleWords))

	var audit []navigation.AuditEntry
	found, err := storage.LoadJSON(ctx, store, storage.KeyNavAudit, &audit, logger.Discard())
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, audit, 1)
	assert.True(t, audit[0].Allowed)
	assert.Equal(t, navigation.ModuleWords, audit[0].To)
}

func TestRegisterAndModules(t *testing.T) {
	svc, _ := newTestService()
	require.NoError(t, svc.Register(navigation.Module{ID: "review", Title: "複習"}))
	assert.Len(t, svc.Modules(), 6)

	err := svc.Register(navigation.Module{ID: "review"})
	assert.True(t, shared.IsAlreadyExists(err))
}
