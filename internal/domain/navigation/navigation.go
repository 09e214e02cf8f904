// Package navigation owns the module registry and the rules for moving
// between learning surfaces: permissions, interceptors, history, and
// the audit trail.
package navigation

import (
	"time"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MODULES
// ══════════════════════════════════════════════════════════════════════════════

// ModuleID identifies a learning surface.
type ModuleID string

const (
	ModuleDashboard ModuleID = "dashboard"
	ModuleWords     ModuleID = "words"
	ModuleFeynman   ModuleID = "feynman"
	ModuleForce     ModuleID = "force"
	ModuleQuiz      ModuleID = "quiz"
)

// HomeModule is where every session starts and where ResetHome lands.
const HomeModule = ModuleDashboard

// Module describes a registered surface.
type Module struct {
	ID    ModuleID `json:"id"`
	Title string   `json:"title"`
	Icon  string   `json:"icon"`
}

// defaultModules lists the built-in surfaces in display order.
var defaultModules = []Module{
	{ID: ModuleDashboard, Title: "學習儀表板", Icon: "📊"},
	{ID: ModuleWords, Title: "單字學習", Icon: "📚"},
	{ID: ModuleFeynman, Title: "費曼技巧", Icon: "🧠"},
	{ID: ModuleForce, Title: "強制學習", Icon: "💪"},
	{ID: ModuleQuiz, Title: "測驗中心", Icon: "🏆"},
}

// DefaultModules returns the built-in surfaces.
func DefaultModules() []Module {
	out := make([]Module, len(defaultModules))
	copy(out, defaultModules)
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// PERMISSIONS
// ══════════════════════════════════════════════════════════════════════════════

// Role is the learner's access level.
type Role string

const (
	RoleAdmin   Role = "admin"
	RoleTeacher Role = "teacher"
	RoleStudent Role = "student"
	RoleGuest   Role = "guest"
)

// guestDenied are the surfaces guests cannot enter. Everything else is
// open to every role; admins bypass the check entirely.
var guestDenied = map[ModuleID]bool{
	ModuleFeynman: true,
	ModuleForce:   true,
}

// CanAccess reports whether the role may enter the module.
func CanAccess(role Role, id ModuleID) bool {
	if role == RoleAdmin {
		return true
	}
	if role == RoleGuest && guestDenied[id] {
		return false
	}
	return true
}

// ══════════════════════════════════════════════════════════════════════════════
// MANAGER
// ══════════════════════════════════════════════════════════════════════════════

const (
	historyCap = 10
	auditCap   = 100
)

// Interceptor can veto a navigation before it happens. Returning an
// error cancels the move.
type Interceptor func(from, to ModuleID) error

// AuditEntry is one line of the navigation audit trail.
type AuditEntry struct {
	From      ModuleID  `json:"from"`
	To        ModuleID  `json:"to"`
	Role      Role      `json:"role"`
	Allowed   bool      `json:"allowed"`
	Reason    string    `json:"reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Manager tracks the current surface, history, and audit trail for one
// session. Not safe for concurrent use; the service layer serializes.
type Manager struct {
	modules      map[ModuleID]Module
	order        []ModuleID
	current      ModuleID
	history      []ModuleID
	audit        []AuditEntry
	interceptors []Interceptor
}

// NewManager starts at the home surface with the built-in registry.
func NewManager() *Manager {
	m := &Manager{
		modules: make(map[ModuleID]Module, len(defaultModules)),
		current: HomeModule,
	}
	for _, mod := range defaultModules {
		m.modules[mod.ID] = mod
		m.order = append(m.order, mod.ID)
	}
	return m
}

// Register adds a surface to the registry.
func (m *Manager) Register(mod Module) error {
	if mod.ID == "" {
		return shared.NewDomainError("navigation", "Register", shared.ErrInvalidInput, "module id is empty")
	}
	if _, exists := m.modules[mod.ID]; exists {
		return shared.NewDomainError("navigation", "Register", shared.ErrAlreadyExists, "module already registered: "+string(mod.ID))
	}
	m.modules[mod.ID] = mod
	m.order = append(m.order, mod.ID)
	return nil
}

// Modules returns the registry in display order.
func (m *Manager) Modules() []Module {
	out := make([]Module, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.modules[id])
	}
	return out
}

// Current returns the active surface.
func (m *Manager) Current() ModuleID { return m.current }

// History returns the back stack, oldest first.
func (m *Manager) History() []ModuleID {
	out := make([]ModuleID, len(m.history))
	copy(out, m.history)
	return out
}

// AuditLog returns the audit trail, oldest first.
func (m *Manager) AuditLog() []AuditEntry {
	out := make([]AuditEntry, len(m.audit))
	copy(out, m.audit)
	return out
}

// Intercept installs an interceptor. Interceptors run in installation
// order; the first veto wins.
func (m *Manager) Intercept(i Interceptor) {
	m.interceptors = append(m.interceptors, i)
}

// Navigate moves to a surface after permission and interceptor checks.
// Every attempt, allowed or not, lands in the audit trail.
func (m *Manager) Navigate(to ModuleID, role Role, now time.Time) error {
	from := m.current

	if _, exists := m.modules[to]; !exists {
		m.recordAudit(from, to, role, false, "unknown module", now)
		return shared.WrapError("navigation", "Navigate", shared.ErrInvalidInput, "unknown module: "+string(to), shared.ErrUnknownModule)
	}
	if to == from {
		return nil
	}
	if !CanAccess(role, to) {
		m.recordAudit(from, to, role, false, "permission denied", now)
		return shared.WrapError("navigation", "Navigate", shared.ErrPermission, string(role)+" cannot access "+string(to), shared.ErrModuleForbidden)
	}
	for _, intercept := range m.interceptors {
		if err := intercept(from, to); err != nil {
			m.recordAudit(from, to, role, false, err.Error(), now)
			return shared.WrapError("navigation", "Navigate", shared.ErrInvalidState, "navigation vetoed: "+err.Error(), shared.ErrNavigationVetoed)
		}
	}

	m.pushHistory(from)
	m.current = to
	m.recordAudit(from, to, role, true, "", now)
	return nil
}

// GoBack pops the previous surface. The move is not pushed back onto
// the history, so repeated GoBack walks the stack down to home.
func (m *Manager) GoBack(role Role, now time.Time) (ModuleID, error) {
	if len(m.history) == 0 {
		return m.current, shared.NewDomainError("navigation", "GoBack", shared.ErrInvalidState, "history is empty")
	}
	last := len(m.history) - 1
	to := m.history[last]

	if !CanAccess(role, to) {
		m.recordAudit(m.current, to, role, false, "permission denied", now)
		return m.current, shared.WrapError("navigation", "GoBack", shared.ErrPermission, string(role)+" cannot access "+string(to), shared.ErrModuleForbidden)
	}

	m.history = m.history[:last]
	from := m.current
	m.current = to
	m.recordAudit(from, to, role, true, "back", now)
	return to, nil
}

// ResetHome clears the history and returns to the home surface.
func (m *Manager) ResetHome(role Role, now time.Time) {
	from := m.current
	m.history = m.history[:0]
	m.current = HomeModule
	if from != HomeModule {
		m.recordAudit(from, HomeModule, role, true, "reset", now)
	}
}

func (m *Manager) pushHistory(id ModuleID) {
	m.history = append(m.history, id)
	if len(m.history) > historyCap {
		m.history = m.history[len(m.history)-historyCap:]
	}
}

func (m *Manager) recordAudit(from, to ModuleID, role Role, allowed bool, reason string, now time.Time) {
	m.audit = append(m.audit, AuditEntry{
		From:      from,
		To:        to,
		Role:      role,
		Allowed:   allowed,
		Reason:    reason,
		Timestamp: now,
	})
	if len(m.audit) > auditCap {
		m.audit = m.audit[len(m.audit)-auditCap:]
	}
}
