// Package shared contains common domain types, errors, and events
// that are used across all domain packages.
package shared

import (
	"encoding/json"
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types - these drive the event-driven architecture.
// Each event represents something significant that happened in the domain.
const (
	// Navigation events
	EventModuleChanged EventType = "module.changed"
	EventNavChanged    EventType = "nav.changed"

	// Learning events
	EventWordLearned         EventType = "learning.word"
	EventQuizCompleted       EventType = "learning.quiz"
	EventFeynmanCompleted    EventType = "learning.feynman"
	EventForceCompleted      EventType = "learning.force"
	EventAchievementUnlocked EventType = "learning.achievement"
	EventStreakUpdated       EventType = "learning.streak_updated"
	EventStreakBroken        EventType = "learning.streak_broken"

	// Drill events
	EventDrillPhaseChanged EventType = "drill.phase_changed"
	EventDrillTimeWarning  EventType = "drill.time_warning"
	EventDrillCompleted    EventType = "drill.completed"
	EventDrillAborted      EventType = "drill.aborted"

	// Session events
	EventSessionStarted EventType = "session.started"
	EventSessionEnded   EventType = "session.ended"

	// System events
	EventDataSaved           EventType = "system.saved"
	EventWordsImported       EventType = "system.words_imported"
	EventWeeklyProgressReset EventType = "system.weekly_reset"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Navigation Events
// ═══════════════════════════════════════════════════════════════════════════

// ModuleChangedEvent is emitted after a successful module switch.
type ModuleChangedEvent struct {
	BaseEvent
	From string `json:"from"`
	To   string `json:"to"`
	Role string `json:"role"`
}

// Payload implements Event interface.
func (e ModuleChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"from": e.From,
		"to":   e.To,
		"role": e.Role,
	}
}

// NewModuleChangedEvent creates a new ModuleChangedEvent.
func NewModuleChangedEvent(userID, from, to, role string) ModuleChangedEvent {
	return ModuleChangedEvent{
		BaseEvent: NewBaseEvent(EventModuleChanged, userID),
		From:      from,
		To:        to,
		Role:      role,
	}
}

// NavChangedEvent mirrors ModuleChangedEvent for listeners that only care
// about the navigation surface (history, breadcrumbs).
type NavChangedEvent struct {
	BaseEvent
	Current      string `json:"current"`
	HistoryDepth int    `json:"history_depth"`
}

// Payload implements Event interface.
func (e NavChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"current":       e.Current,
		"history_depth": e.HistoryDepth,
	}
}

// NewNavChangedEvent creates a new NavChangedEvent.
func NewNavChangedEvent(userID, current string, historyDepth int) NavChangedEvent {
	return NavChangedEvent{
		BaseEvent:    NewBaseEvent(EventNavChanged, userID),
		Current:      current,
		HistoryDepth: historyDepth,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Learning Events
// ═══════════════════════════════════════════════════════════════════════════

// ActivityRecordedEvent is emitted when a learning activity lands in the ledger.
// The concrete event type depends on the activity kind.
type ActivityRecordedEvent struct {
	BaseEvent
	Kind     string `json:"kind"`
	Amount   int    `json:"amount"`
	NewTotal int    `json:"new_total"`
}

// Payload implements Event interface.
func (e ActivityRecordedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"kind":      e.Kind,
		"amount":    e.Amount,
		"new_total": e.NewTotal,
	}
}

// NewActivityRecordedEvent creates an ActivityRecordedEvent with the event
// type matching the activity kind.
func NewActivityRecordedEvent(userID string, eventType EventType, kind string, amount, newTotal int) ActivityRecordedEvent {
	return ActivityRecordedEvent{
		BaseEvent: NewBaseEvent(eventType, userID),
		Kind:      kind,
		Amount:    amount,
		NewTotal:  newTotal,
	}
}

// AchievementUnlockedEvent is emitted once per newly unlocked achievement.
type AchievementUnlockedEvent struct {
	BaseEvent
	AchievementID string `json:"achievement_id"`
	Name          string `json:"name"`
	Icon          string `json:"icon"`
}

// Payload implements Event interface.
func (e AchievementUnlockedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"achievement_id": e.AchievementID,
		"name":           e.Name,
		"icon":           e.Icon,
	}
}

// NewAchievementUnlockedEvent creates a new AchievementUnlockedEvent.
func NewAchievementUnlockedEvent(userID, achievementID, name, icon string) AchievementUnlockedEvent {
	return AchievementUnlockedEvent{
		BaseEvent:     NewBaseEvent(EventAchievementUnlocked, userID),
		AchievementID: achievementID,
		Name:          name,
		Icon:          icon,
	}
}

// StreakUpdatedEvent is emitted when the daily streak grows.
type StreakUpdatedEvent struct {
	BaseEvent
	CurrentStreak int `json:"current_streak"`
	BestStreak    int `json:"best_streak"`
}

// Payload implements Event interface.
func (e StreakUpdatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"current_streak": e.CurrentStreak,
		"best_streak":    e.BestStreak,
	}
}

// NewStreakUpdatedEvent creates a new StreakUpdatedEvent.
func NewStreakUpdatedEvent(userID string, current, best int) StreakUpdatedEvent {
	return StreakUpdatedEvent{
		BaseEvent:     NewBaseEvent(EventStreakUpdated, userID),
		CurrentStreak: current,
		BestStreak:    best,
	}
}

// StreakBrokenEvent is emitted when a gap in study days resets the streak.
type StreakBrokenEvent struct {
	BaseEvent
	PreviousStreak int `json:"previous_streak"`
	DaysMissed     int `json:"days_missed"`
}

// Payload implements Event interface.
func (e StreakBrokenEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"previous_streak": e.PreviousStreak,
		"days_missed":     e.DaysMissed,
	}
}

// NewStreakBrokenEvent creates a new StreakBrokenEvent.
func NewStreakBrokenEvent(userID string, previousStreak, daysMissed int) StreakBrokenEvent {
	return StreakBrokenEvent{
		BaseEvent:      NewBaseEvent(EventStreakBroken, userID),
		PreviousStreak: previousStreak,
		DaysMissed:     daysMissed,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Drill Events
// ═══════════════════════════════════════════════════════════════════════════

// DrillPhaseChangedEvent is emitted on every drill phase transition.
type DrillPhaseChangedEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	From      string `json:"from"`
	To        string `json:"to"`
}

// Payload implements Event interface.
func (e DrillPhaseChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id": e.SessionID,
		"from":       e.From,
		"to":         e.To,
	}
}

// NewDrillPhaseChangedEvent creates a new DrillPhaseChangedEvent.
func NewDrillPhaseChangedEvent(sessionID, from, to string) DrillPhaseChangedEvent {
	return DrillPhaseChangedEvent{
		BaseEvent: NewBaseEvent(EventDrillPhaseChanged, sessionID),
		SessionID: sessionID,
		From:      from,
		To:        to,
	}
}

// DrillTimeWarningEvent is emitted when a drill countdown crosses the
// warning threshold.
type DrillTimeWarningEvent struct {
	BaseEvent
	SessionID        string `json:"session_id"`
	Phase            string `json:"phase"`
	SecondsRemaining int    `json:"seconds_remaining"`
}

// Payload implements Event interface.
func (e DrillTimeWarningEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id":        e.SessionID,
		"phase":             e.Phase,
		"seconds_remaining": e.SecondsRemaining,
	}
}

// NewDrillTimeWarningEvent creates a new DrillTimeWarningEvent.
func NewDrillTimeWarningEvent(sessionID, phase string, secondsRemaining int) DrillTimeWarningEvent {
	return DrillTimeWarningEvent{
		BaseEvent:        NewBaseEvent(EventDrillTimeWarning, sessionID),
		SessionID:        sessionID,
		Phase:            phase,
		SecondsRemaining: secondsRemaining,
	}
}

// DrillCompletedEvent is emitted when a drill session reaches its result.
type DrillCompletedEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	Correct   int    `json:"correct"`
	Answered  int    `json:"answered"`
	Overall   int    `json:"overall"`
	Grade     string `json:"grade"`
}

// Payload implements Event interface.
func (e DrillCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id": e.SessionID,
		"correct":    e.Correct,
		"answered":   e.Answered,
		"overall":    e.Overall,
		"grade":      e.Grade,
	}
}

// NewDrillCompletedEvent creates a new DrillCompletedEvent.
func NewDrillCompletedEvent(sessionID string, correct, answered, overall int, grade string) DrillCompletedEvent {
	return DrillCompletedEvent{
		BaseEvent: NewBaseEvent(EventDrillCompleted, sessionID),
		SessionID: sessionID,
		Correct:   correct,
		Answered:  answered,
		Overall:   overall,
		Grade:     grade,
	}
}

// DrillAbortedEvent is emitted when a drill session is cancelled
// before reaching its result.
type DrillAbortedEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	Phase     string `json:"phase"`
}

// Payload implements Event interface.
func (e DrillAbortedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id": e.SessionID,
		"phase":      e.Phase,
	}
}

// NewDrillAbortedEvent creates a new DrillAbortedEvent.
func NewDrillAbortedEvent(sessionID, phase string) DrillAbortedEvent {
	return DrillAbortedEvent{
		BaseEvent: NewBaseEvent(EventDrillAborted, sessionID),
		SessionID: sessionID,
		Phase:     phase,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Session Events
// ═══════════════════════════════════════════════════════════════════════════

// SessionStartedEvent is emitted on login.
type SessionStartedEvent struct {
	BaseEvent
	SessionID string `json:"session_id"`
	Username  string `json:"username"`
	Role      string `json:"role"`
}

// Payload implements Event interface.
func (e SessionStartedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id": e.SessionID,
		"username":   e.Username,
		"role":       e.Role,
	}
}

// NewSessionStartedEvent creates a new SessionStartedEvent.
func NewSessionStartedEvent(sessionID, username, role string) SessionStartedEvent {
	return SessionStartedEvent{
		BaseEvent: NewBaseEvent(EventSessionStarted, sessionID),
		SessionID: sessionID,
		Username:  username,
		Role:      role,
	}
}

// SessionEndedEvent is emitted on logout or expiry.
type SessionEndedEvent struct {
	BaseEvent
	SessionID string        `json:"session_id"`
	Username  string        `json:"username"`
	Duration  time.Duration `json:"duration"`
}

// Payload implements Event interface.
func (e SessionEndedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"session_id": e.SessionID,
		"username":   e.Username,
		"duration":   e.Duration.String(),
	}
}

// NewSessionEndedEvent creates a new SessionEndedEvent.
func NewSessionEndedEvent(sessionID, username string, duration time.Duration) SessionEndedEvent {
	return SessionEndedEvent{
		BaseEvent: NewBaseEvent(EventSessionEnded, sessionID),
		SessionID: sessionID,
		Username:  username,
		Duration:  duration,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// System Events
// ═══════════════════════════════════════════════════════════════════════════

// DataSavedEvent is emitted after a successful persist of a storage key.
type DataSavedEvent struct {
	BaseEvent
	Key string `json:"key"`
}

// Payload implements Event interface.
func (e DataSavedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"key": e.Key,
	}
}

// NewDataSavedEvent creates a new DataSavedEvent.
func NewDataSavedEvent(userID, key string) DataSavedEvent {
	return DataSavedEvent{
		BaseEvent: NewBaseEvent(EventDataSaved, userID),
		Key:       key,
	}
}

// WordsImportedEvent is emitted after a bulk word import.
type WordsImportedEvent struct {
	BaseEvent
	Source   string `json:"source"`
	Imported int    `json:"imported"`
	Skipped  int    `json:"skipped"`
}

// Payload implements Event interface.
func (e WordsImportedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"source":   e.Source,
		"imported": e.Imported,
		"skipped":  e.Skipped,
	}
}

// NewWordsImportedEvent creates a new WordsImportedEvent.
func NewWordsImportedEvent(source string, imported, skipped int) WordsImportedEvent {
	return WordsImportedEvent{
		BaseEvent: NewBaseEvent(EventWordsImported, source),
		Source:    source,
		Imported:  imported,
		Skipped:   skipped,
	}
}

// WeeklyProgressResetEvent is emitted when the scheduler zeroes the
// weekly counters.
type WeeklyProgressResetEvent struct {
	BaseEvent
}

// Payload implements Event interface.
func (e WeeklyProgressResetEvent) Payload() map[string]interface{} {
	return map[string]interface{}{}
}

// NewWeeklyProgressResetEvent creates a new WeeklyProgressResetEvent.
func NewWeeklyProgressResetEvent(userID string) WeeklyProgressResetEvent {
	return WeeklyProgressResetEvent{
		BaseEvent: NewBaseEvent(EventWeeklyProgressReset, userID),
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Event Envelope (for serialization and transport)
// ═══════════════════════════════════════════════════════════════════════════

// EventEnvelope wraps an event for transport/storage.
type EventEnvelope struct {
	ID            string          `json:"id"`
	Type          EventType       `json:"type"`
	AggregateID   string          `json:"aggregate_id"`
	Timestamp     time.Time       `json:"timestamp"`
	Version       int             `json:"version"`
	CorrelationID string          `json:"correlation_id,omitempty"`
	Payload       json.RawMessage `json:"payload"`
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type and returns a
	// function that removes it again.
	Subscribe(eventType EventType, handler EventHandler) (func(), error)

	// SubscribeOnce registers a handler that is removed before its
	// first delivery.
	SubscribeOnce(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) (func(), error)
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
