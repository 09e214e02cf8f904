// Package navigation exposes the module manager to the outer surfaces
// and keeps the audit trail persisted.
package navigation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qiaomu-learn/qiaomu/internal/domain/navigation"
	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

// Service serializes access to the module manager and publishes
// navigation events.
type Service struct {
	mu        sync.Mutex
	manager   *navigation.Manager
	store     storage.KeyValueStore
	publisher shared.EventPublisher
	logger    *logger.Logger
	now       func() time.Time
}

// NewService creates a navigation service around a fresh manager.
func NewService(store storage.KeyValueStore, publisher shared.EventPublisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		manager:   navigation.NewManager(),
		store:     store,
		publisher: publisher,
		logger:    log.With(logger.Component("navigation")),
		now:       time.Now,
	}
}

// SetClock overrides the time source. Tests use it.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Intercept installs a navigation interceptor.
func (s *Service) Intercept(i navigation.Interceptor) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manager.Intercept(i)
}

// Register adds a surface to the registry.
func (s *Service) Register(mod navigation.Module) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.Register(mod)
}

// Modules lists the registered surfaces in display order.
func (s *Service) Modules() []navigation.Module {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.Modules()
}

// Current returns the active surface.
func (s *Service) Current() navigation.ModuleID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.Current()
}

// History returns the back stack, oldest first.
func (s *Service) History() []navigation.ModuleID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.History()
}

// AuditLog returns the navigation audit trail.
func (s *Service) AuditLog() []navigation.AuditEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.manager.AuditLog()
}

// Navigate moves the user to a surface. Denied and vetoed moves return
// an error and are audited; successful moves publish module and nav
// events.
func (s *Service) Navigate(ctx context.Context, userID string, role navigation.Role, to navigation.ModuleID) error {
	s.mu.Lock()
	from := s.manager.Current()
	err := s.manager.Navigate(to, role, s.now())
	current := s.manager.Current()
	depth := len(s.manager.History())
	s.mu.Unlock()

	if err != nil {
		s.logger.Warn("navigation denied",
			logger.UserID(userID),
			logger.Module(string(to)),
			logger.Err(err),
		)
		s.persistAudit(ctx)
		return err
	}
	if from == current {
		return nil
	}

	s.logger.Debug("module changed",
		logger.UserID(userID),
		logger.String("from", string(from)),
		logger.String("to", string(current)),
	)
	s.publish(shared.NewModuleChangedEvent(userID, string(from), string(current), string(role)))
	s.publish(shared.NewNavChangedEvent(userID, string(current), depth))
	s.persistAudit(ctx)
	return nil
}

// GoBack returns to the previous surface.
func (s *Service) GoBack(ctx context.Context, userID string, role navigation.Role) (navigation.ModuleID, error) {
	s.mu.Lock()
	from := s.manager.Current()
	to, err := s.manager.GoBack(role, s.now())
	depth := len(s.manager.History())
	s.mu.Unlock()

	if err != nil {
		return to, err
	}
	s.publish(shared.NewModuleChangedEvent(userID, string(from), string(to), string(role)))
	s.publish(shared.NewNavChangedEvent(userID, string(to), depth))
	s.persistAudit(ctx)
	return to, nil
}

// ResetHome clears the history and lands on the dashboard.
func (s *Service) ResetHome(ctx context.Context, userID string, role navigation.Role) {
	s.mu.Lock()
	from := s.manager.Current()
	s.manager.ResetHome(role, s.now())
	s.mu.Unlock()

	if from != navigation.HomeModule {
		s.publish(shared.NewModuleChangedEvent(userID, string(from), string(navigation.HomeModule), string(role)))
		s.publish(shared.NewNavChangedEvent(userID, string(navigation.HomeModule), 0))
	}
	s.persistAudit(ctx)
}

// persistAudit writes the audit trail. Failures are logged, not
// surfaced; navigation should not break because the audit store is
// down.
func (s *Service) persistAudit(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	audit := s.manager.AuditLog()
	s.mu.Unlock()

	if err := storage.SaveJSON(ctx, s.store, storage.KeyNavAudit, audit); err != nil {
		s.logger.Error("persist navigation audit failed", logger.Err(err))
	}
}

func (s *Service) publish(event shared.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(event); err != nil {
		s.logger.Error(fmt.Sprintf("publish %s failed", event.EventType()), logger.Err(err))
	}
}
