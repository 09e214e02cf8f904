// Package auth handles login, sessions, and role permissions.
package auth

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/qiaomu-learn/qiaomu/internal/domain/navigation"
	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACCOUNTS & PERMISSIONS
// ══════════════════════════════════════════════════════════════════════════════

// Account is a login entry. Passwords are stored as bcrypt hashes.
type Account struct {
	Username     string
	PasswordHash []byte
	Role         navigation.Role
}

// Credential seeds an account from a plaintext password, for the
// built-in demo accounts and tests.
type Credential struct {
	Username string
	Password string
	Role     navigation.Role
}

// DefaultCredentials are the built-in demo accounts.
func DefaultCredentials() []Credential {
	return []Credential{
		{Username: "admin", Password: "stustai", Role: navigation.RoleAdmin},
		{Username: "student", Password: "demo123", Role: navigation.RoleStudent},
		{Username: "teacher", Password: "teacher123", Role: navigation.RoleTeacher},
		{Username: "guest", Password: "guest", Role: navigation.RoleGuest},
	}
}

// rolePermissions maps roles to capability names. Admin implicitly has
// everything.
var rolePermissions = map[navigation.Role][]string{
	navigation.RoleAdmin:   {"all"},
	navigation.RoleTeacher: {"view_stats", "manage_content"},
	navigation.RoleStudent: {"view_own_progress"},
	navigation.RoleGuest:   {"basic_access"},
}

// HasPermission reports whether a role holds a capability.
func HasPermission(role navigation.Role, permission string) bool {
	for _, p := range rolePermissions[role] {
		if p == "all" || p == permission {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSIONS
// ══════════════════════════════════════════════════════════════════════════════

// Session is a logged-in user.
type Session struct {
	ID        string          `json:"id"`
	Username  string          `json:"username"`
	Role      navigation.Role `json:"role"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// Expired reports whether the session has passed its TTL.
func (s Session) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Config contains auth service configuration.
type Config struct {
	// SessionTTL is how long a session lives without a refresh.
	SessionTTL time.Duration

	// BcryptCost controls hash strength for seeded credentials.
	BcryptCost int
}

// DefaultConfig returns the default auth configuration.
func DefaultConfig() Config {
	return Config{
		SessionTTL: 30 * time.Minute,
		BcryptCost: bcrypt.DefaultCost,
	}
}

// dummyHash is a bcrypt hash of an unused password, compared against
// when the username does not exist.
var dummyHash = []byte("$2a$10$N9qo8uLOickgx2ZMRZoMyeIjZAgcfl7p92ldGxad68LJZdL17lhWy")

// Service validates credentials and tracks sessions.
type Service struct {
	mu        sync.Mutex
	accounts  map[string]Account
	sessions  map[string]Session
	store     storage.KeyValueStore
	publisher shared.EventPublisher
	logger    *logger.Logger
	config    Config
	now       func() time.Time
}

// NewService seeds the account table and returns a ready service.
func NewService(creds []Credential, store storage.KeyValueStore, publisher shared.EventPublisher, log *logger.Logger, cfg Config) (*Service, error) {
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if log == nil {
		log = logger.Default()
	}
	if len(creds) == 0 {
		creds = DefaultCredentials()
	}

	accounts := make(map[string]Account, len(creds))
	for _, c := range creds {
		username, err := shared.NewUsername(c.Username)
		if err != nil || c.Password == "" {
			return nil, shared.NewDomainError("auth", "NewService", shared.ErrConfiguration, "credential with invalid username or empty password")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(c.Password), cfg.BcryptCost)
		if err != nil {
			return nil, shared.WrapError("auth", "NewService", shared.ErrConfiguration, "hash credential for "+username.String(), err)
		}
		accounts[username.String()] = Account{Username: username.String(), PasswordHash: hash, Role: c.Role}
	}

	return &Service{
		accounts:  accounts,
		sessions:  make(map[string]Session),
		store:     store,
		publisher: publisher,
		logger:    log.With(logger.Component("auth")),
		config:    cfg,
		now:       time.Now,
	}, nil
}

// SetClock overrides the time source. Tests use it.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Login checks credentials and opens a session.
func (s *Service) Login(ctx context.Context, username, password string) (Session, error) {
	uname, err := shared.NewUsername(username)
	if err != nil {
		// Malformed logins take the same timing path as a wrong password.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return Session{}, shared.ErrInvalidCredentials
	}

	s.mu.Lock()
	account, ok := s.accounts[uname.String()]
	s.mu.Unlock()

	if !ok {
		// Unknown users get the same timing as a wrong password.
		_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
		return Session{}, shared.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(account.PasswordHash, []byte(password)); err != nil {
		s.logger.Warn("login failed", logger.String("username", uname.String()))
		return Session{}, shared.ErrInvalidCredentials
	}

	now := s.now()
	session := Session{
		ID:        uuid.NewString(),
		Username:  account.Username,
		Role:      account.Role,
		CreatedAt: now,
		ExpiresAt: now.Add(s.config.SessionTTL),
	}

	s.mu.Lock()
	s.sessions[session.ID] = session
	s.mu.Unlock()

	s.persistSessions(ctx)
	s.logger.Info("login",
		logger.String("username", uname.String()),
		logger.String("role", string(account.Role)),
		logger.SessionID(session.ID),
	)
	s.publish(shared.NewSessionStartedEvent(session.ID, session.Username, string(session.Role)))
	return session, nil
}

// Validate looks up a session and rejects expired ones. Expired
// sessions are dropped.
func (s *Service) Validate(sessionID string) (Session, error) {
	if !shared.SessionToken(sessionID).IsValid() {
		return Session{}, shared.ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return Session{}, shared.ErrSessionNotFound
	}
	if session.Expired(s.now()) {
		delete(s.sessions, sessionID)
		return Session{}, shared.ErrSessionExpired
	}
	return session, nil
}

// Refresh rotates the session ID and extends the TTL.
func (s *Service) Refresh(ctx context.Context, sessionID string) (Session, error) {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	if !ok {
		s.mu.Unlock()
		return Session{}, shared.ErrSessionNotFound
	}
	now := s.now()
	if session.Expired(now) {
		delete(s.sessions, sessionID)
		s.mu.Unlock()
		return Session{}, shared.ErrSessionExpired
	}

	delete(s.sessions, sessionID)
	session.ID = uuid.NewString()
	session.ExpiresAt = now.Add(s.config.SessionTTL)
	s.sessions[session.ID] = session
	s.mu.Unlock()

	s.persistSessions(ctx)
	return session, nil
}

// Logout closes a session. Unknown sessions are a no-op.
func (s *Service) Logout(ctx context.Context, sessionID string) {
	s.mu.Lock()
	session, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	s.persistSessions(ctx)
	duration := s.now().Sub(session.CreatedAt)
	s.logger.Info("logout",
		logger.String("username", session.Username),
		logger.SessionID(sessionID),
	)
	s.publish(shared.NewSessionEndedEvent(sessionID, session.Username, duration))
}

// Sweep drops expired sessions. The scheduler calls it periodically.
func (s *Service) Sweep(ctx context.Context) int {
	s.mu.Lock()
	now := s.now()
	removed := 0
	for id, session := range s.sessions {
		if session.Expired(now) {
			delete(s.sessions, id)
			removed++
		}
	}
	s.mu.Unlock()

	if removed > 0 {
		s.persistSessions(ctx)
		s.logger.Debug("expired sessions swept", logger.Int("removed", removed))
	}
	return removed
}

// persistSessions mirrors active sessions into storage so a restart
// does not log everyone out. Failures are logged only.
func (s *Service) persistSessions(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	sessions := make([]Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()

	if err := storage.SaveJSON(ctx, s.store, storage.KeySession, sessions); err != nil {
		s.logger.Error("persist sessions failed", logger.Err(err))
	}
}

// Restore loads persisted sessions, dropping any that expired while
// the process was down.
func (s *Service) Restore(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	var sessions []Session
	found, err := storage.LoadJSON(ctx, s.store, storage.KeySession, &sessions, s.logger)
	if err != nil {
		return shared.WrapError("auth", "Restore", shared.ErrStorage, "load sessions", err)
	}
	if !found {
		return nil
	}

	s.mu.Lock()
	now := s.now()
	restored := 0
	for _, session := range sessions {
		if !session.Expired(now) {
			s.sessions[session.ID] = session
			restored++
		}
	}
	s.mu.Unlock()

	s.logger.Info("sessions restored", logger.Int("count", restored))
	return nil
}

func (s *Service) publish(event shared.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(event); err != nil {
		s.logger.Error(fmt.Sprintf("publish %s failed", event.EventType()), logger.Err(err))
	}
}
