package eventhandler

import (
	"fmt"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON DRILL COMPLETED HANDLER
// Summarizes finished force drills in the log. Scores below the warning
// threshold are surfaced at warn level so a teacher scanning the logs
// can spot learners who keep failing drills.
// ═══════════════════════════════════════════════════════════════════════════

// DrillCompletedConfig contains handler configuration.
type DrillCompletedConfig struct {
	// WarnBelowPercent marks drills with a lower overall score.
	WarnBelowPercent int
}

// DefaultDrillCompletedConfig returns the default configuration.
func DefaultDrillCompletedConfig() DrillCompletedConfig {
	return DrillCompletedConfig{
		WarnBelowPercent: 60,
	}
}

// OnDrillCompletedHandler reacts to finished force drills.
type OnDrillCompletedHandler struct {
	logger *logger.Logger
	config DrillCompletedConfig
}

// NewOnDrillCompletedHandler creates the handler.
func NewOnDrillCompletedHandler(log *logger.Logger, cfg DrillCompletedConfig) *OnDrillCompletedHandler {
	if log == nil {
		log = logger.Default()
	}
	if cfg.WarnBelowPercent <= 0 {
		cfg.WarnBelowPercent = 60
	}

	return &OnDrillCompletedHandler{
		logger: log.With(logger.Component("drill_handler")),
		config: cfg,
	}
}

// Handle implements shared.EventHandler.
func (h *OnDrillCompletedHandler) Handle(event shared.Event) error {
	e, ok := event.(shared.DrillCompletedEvent)
	if !ok {
		return fmt.Errorf("unexpected event type %s", event.EventType())
	}

	fields := []logger.Field{
		logger.SessionID(e.SessionID),
		logger.Int("correct", e.Correct),
		logger.Int("answered", e.Answered),
		logger.Int("overall", e.Overall),
		logger.String("grade", e.Grade),
	}

	if e.Overall < h.config.WarnBelowPercent {
		h.logger.Warn("drill completed below target", fields...)
		return nil
	}

	h.logger.Info("drill completed", fields...)
	return nil
}
