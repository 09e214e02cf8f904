// Package eventhandler contains the reactive side of the system: the
// handlers that listen on the event bus and run side effects such as
// writing the notice feed or logging study milestones. They never
// change learning state themselves.
package eventhandler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON ACHIEVEMENT UNLOCKED HANDLER
// Keeps a bounded feed of recent unlocks so the dashboard can celebrate
// them, and persists the feed across restarts.
// ═══════════════════════════════════════════════════════════════════════════

// Notice is one entry in the celebration feed.
type Notice struct {
	UserID     string    `json:"user_id"`
	Title      string    `json:"title"`
	Icon       string    `json:"icon,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// AchievementUnlockedConfig contains handler configuration.
type AchievementUnlockedConfig struct {
	// FeedSize is how many notices are kept.
	FeedSize int

	// PersistTimeout bounds the storage write.
	PersistTimeout time.Duration
}

// DefaultAchievementUnlockedConfig returns the default configuration.
func DefaultAchievementUnlockedConfig() AchievementUnlockedConfig {
	return AchievementUnlockedConfig{
		FeedSize:       50,
		PersistTimeout: 5 * time.Second,
	}
}

// OnAchievementUnlockedHandler reacts to achievement unlocks.
type OnAchievementUnlockedHandler struct {
	mu      sync.Mutex
	notices []Notice

	store  storage.KeyValueStore
	logger *logger.Logger
	config AchievementUnlockedConfig
}

// NewOnAchievementUnlockedHandler creates the handler. The store may be
// nil, in which case the feed is memory only.
func NewOnAchievementUnlockedHandler(store storage.KeyValueStore, log *logger.Logger, cfg AchievementUnlockedConfig) *OnAchievementUnlockedHandler {
	if log == nil {
		log = logger.Default()
	}
	if cfg.FeedSize <= 0 {
		cfg.FeedSize = 50
	}
	if cfg.PersistTimeout <= 0 {
		cfg.PersistTimeout = 5 * time.Second
	}

	return &OnAchievementUnlockedHandler{
		notices: make([]Notice, 0, cfg.FeedSize),
		store:   store,
		logger:  log.With(logger.Component("achievement_handler")),
		config:  cfg,
	}
}

// Restore loads the persisted feed. Missing data is not an error.
func (h *OnAchievementUnlockedHandler) Restore(ctx context.Context) error {
	if h.store == nil {
		return nil
	}

	var notices []Notice
	found, err := storage.LoadJSON(ctx, h.store, storage.KeyNotices, &notices, h.logger)
	if err != nil {
		return err
	}
	if !found {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(notices) > h.config.FeedSize {
		notices = notices[:h.config.FeedSize]
	}
	h.notices = notices
	return nil
}

// Handle implements shared.EventHandler.
func (h *OnAchievementUnlockedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.AchievementUnlockedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %s", event.EventType())
	}

	h.logger.Info("achievement unlocked",
		logger.UserID(e.AggregateID()),
		logger.String("achievement", e.AchievementID),
		logger.String("name", e.Name),
	)

	notice := Notice{
		UserID:     e.AggregateID(),
		Title:      e.Icon + " " + e.Name,
		Icon:       e.Icon,
		OccurredAt: e.OccurredAt(),
	}

	h.mu.Lock()
	h.notices = append([]Notice{notice}, h.notices...)
	if len(h.notices) > h.config.FeedSize {
		h.notices = h.notices[:h.config.FeedSize]
	}
	snapshot := make([]Notice, len(h.notices))
	copy(snapshot, h.notices)
	h.mu.Unlock()

	if h.store == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.config.PersistTimeout)
	defer cancel()

	if err := storage.SaveJSON(ctx, h.store, storage.KeyNotices, snapshot); err != nil {
		// Feed persistence is best effort, the unlock itself is
		// already in the ledger.
		h.logger.Warn("failed to persist notice feed", logger.Err(err))
	}

	return nil
}

// Recent returns the newest notices, newest first.
func (h *OnAchievementUnlockedHandler) Recent(n int) []Notice {
	h.mu.Lock()
	defer h.mu.Unlock()

	if n <= 0 || n > len(h.notices) {
		n = len(h.notices)
	}
	result := make([]Notice, n)
	copy(result, h.notices[:n])
	return result
}
