package eventhandler

import (
	"fmt"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON STREAK HANDLER
// Watches for streak growth milestones and for breaks. A broken streak
// is logged softly; the ledger already did the arithmetic.
// ═══════════════════════════════════════════════════════════════════════════

// StreakConfig contains handler configuration.
type StreakConfig struct {
	// Milestones are the streak lengths worth celebrating.
	Milestones []int
}

// DefaultStreakConfig returns the default configuration.
func DefaultStreakConfig() StreakConfig {
	return StreakConfig{
		Milestones: []int{3, 7, 14, 30, 100},
	}
}

// OnStreakHandler reacts to streak updates and breaks.
type OnStreakHandler struct {
	logger *logger.Logger
	config StreakConfig
}

// NewOnStreakHandler creates the handler.
func NewOnStreakHandler(log *logger.Logger, cfg StreakConfig) *OnStreakHandler {
	if log == nil {
		log = logger.Default()
	}
	if len(cfg.Milestones) == 0 {
		cfg.Milestones = DefaultStreakConfig().Milestones
	}

	return &OnStreakHandler{
		logger: log.With(logger.Component("streak_handler")),
		config: cfg,
	}
}

// HandleUpdated implements shared.EventHandler for streak updates.
func (h *OnStreakHandler) HandleUpdated(event shared.Event) error {
	e, ok := event.(shared.StreakUpdatedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %s", event.EventType())
	}

	if h.isMilestone(e.CurrentStreak) {
		h.logger.Info("streak milestone reached",
			logger.UserID(e.AggregateID()),
			logger.Int("streak", e.CurrentStreak),
			logger.Int("best", e.BestStreak),
		)
		return nil
	}

	h.logger.Debug("streak updated",
		logger.UserID(e.AggregateID()),
		logger.Int("streak", e.CurrentStreak),
	)
	return nil
}

// HandleBroken implements shared.EventHandler for streak breaks.
func (h *OnStreakHandler) HandleBroken(event shared.Event) error {
	e, ok := event.(shared.StreakBrokenEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %s", event.EventType())
	}

	h.logger.Info("streak broken",
		logger.UserID(e.AggregateID()),
		logger.Int("previous_streak", e.PreviousStreak),
		logger.Int("days_missed", e.DaysMissed),
	)
	return nil
}

func (h *OnStreakHandler) isMilestone(streak int) bool {
	for _, m := range h.config.Milestones {
		if streak == m {
			return true
		}
	}
	return false
}
