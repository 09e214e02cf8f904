// Package progress wires the progress ledger to persistence and the
// event bus. All mutations flow through the Service so persistence and
// event publishing stay consistent.
package progress

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/qiaomu-learn/qiaomu/internal/domain/progress"
	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
	"github.com/qiaomu-learn/qiaomu/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// SERVICE
// ══════════════════════════════════════════════════════════════════════════════

// Config contains service configuration.
type Config struct {
	// Location is the timezone streaks are computed in.
	Location *time.Location

	// UserID tags published events. Defaults to "local".
	UserID string

	// AutoSave persists after every mutation when true.
	AutoSave bool
}

// DefaultConfig returns the default service configuration.
func DefaultConfig() Config {
	return Config{
		Location: timeutil.TaipeiTZ,
		UserID:   "local",
		AutoSave: true,
	}
}

// Service owns the in-memory ledger and its persistence.
type Service struct {
	mu        sync.Mutex
	stats     *progress.Stats
	store     storage.KeyValueStore
	publisher shared.EventPublisher
	logger    *logger.Logger
	config    Config
	now       func() time.Time
	loaded    bool
}

// NewService creates a progress service. Call Load before use.
func NewService(store storage.KeyValueStore, publisher shared.EventPublisher, log *logger.Logger, cfg Config) *Service {
	if cfg.Location == nil {
		cfg.Location = timeutil.TaipeiTZ
	}
	if cfg.UserID == "" {
		cfg.UserID = "local"
	}
	if log == nil {
		log = logger.Default()
	}
	stats := progress.NewStats()
	return &Service{
		stats:     &stats,
		store:     store,
		publisher: publisher,
		logger:    log.With(logger.Component("progress")),
		config:    cfg,
		now:       time.Now,
	}
}

// SetClock overrides the time source. Tests use it.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// ══════════════════════════════════════════════════════════════════════════════
// PERSISTENCE
// ══════════════════════════════════════════════════════════════════════════════

// Load reads persisted stats. Missing data leaves defaults in place,
// outdated or partial data is merged onto defaults, and corrupt data
// is discarded with a warning. Only a failing backend makes Load
// return an error.
func (s *Service) Load(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := progress.NewStats()
	found, err := storage.LoadJSON(ctx, s.store, storage.KeyLearning, &stats, s.logger)
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidFormat) {
			return shared.WrapError("progress", "Load", shared.ErrStorage, "load learning data", err)
		}
		s.logger.Warn("learning data corrupt, starting fresh", logger.Err(err))
		stats = progress.NewStats()
		found = false
	}
	stats.Normalize()
	s.stats = &stats
	s.loaded = true
	if found {
		s.logger.Info("learning data loaded",
			logger.Int("words_learned", stats.WordsLearned),
			logger.Int("current_streak", stats.CurrentStreak),
		)
	} else {
		s.logger.Info("no learning data found, starting fresh")
	}
	return nil
}

// Save persists the current stats.
func (s *Service) Save(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx)
}

func (s *Service) saveLocked(ctx context.Context) error {
	if err := storage.SaveJSON(ctx, s.store, storage.KeyLearning, s.stats); err != nil {
		return shared.WrapError("progress", "Save", shared.ErrStorage, "save learning data", err)
	}
	s.publish(shared.NewDataSavedEvent(s.config.UserID, storage.KeyLearning))
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// RECORDING
// ══════════════════════════════════════════════════════════════════════════════

// Record applies a learning activity and publishes the resulting
// events: the activity itself, streak transitions, and any newly
// unlocked achievements. A failed save rolls the in-memory stats back,
// so the activity is a no-op rather than a divergence a later save
// would silently persist.
func (s *Service) Record(ctx context.Context, kind progress.ActivityKind, amount int) (progress.RecordResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return progress.RecordResult{}, shared.ErrLedgerNotLoaded
	}

	backup := s.stats.Clone()
	now := s.now()
	result, err := s.stats.Record(kind, amount, now, s.config.Location)
	if err != nil {
		return progress.RecordResult{}, err
	}

	unlocked := s.stats.CheckAchievements()

	if s.config.AutoSave {
		if err := s.saveLocked(ctx); err != nil {
			s.stats = backup
			return progress.RecordResult{}, err
		}
	}

	s.publish(shared.NewActivityRecordedEvent(s.config.UserID, kind.EventType(), string(kind), result.Amount, result.NewTotal))
	switch result.Streak {
	case progress.StreakExtended, progress.StreakStarted:
		s.publish(shared.NewStreakUpdatedEvent(s.config.UserID, s.stats.CurrentStreak, s.stats.BestStreak))
	case progress.StreakReset:
		s.publish(shared.NewStreakBrokenEvent(s.config.UserID, result.PreviousStreak, result.DaysMissed))
		s.publish(shared.NewStreakUpdatedEvent(s.config.UserID, s.stats.CurrentStreak, s.stats.BestStreak))
	}
	for _, a := range unlocked {
		s.logger.Info("achievement unlocked", logger.String("achievement", a.ID))
		s.publish(shared.NewAchievementUnlockedEvent(s.config.UserID, a.ID, a.Name, a.Icon))
	}

	return result, nil
}

// RecordStudyTime adds study seconds to today's bucket. Like Record,
// a failed save rolls the stats back.
func (s *Service) RecordStudyTime(ctx context.Context, seconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return shared.ErrLedgerNotLoaded
	}
	backup := s.stats.Clone()
	if err := s.stats.RecordStudyTime(seconds, s.now(), s.config.Location); err != nil {
		return err
	}
	if s.config.AutoSave {
		if err := s.saveLocked(ctx); err != nil {
			s.stats = backup
			return err
		}
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// Summary is a read-only snapshot for dashboards.
type Summary struct {
	Stats           progress.Stats            `json:"stats"`
	WeeklyReport    []progress.GoalStatus     `json:"weekly_report"`
	Efficiency      progress.Efficiency       `json:"efficiency"`
	Recommendations []progress.Recommendation `json:"recommendations"`
	Achievements    []progress.Achievement    `json:"achievements"`
}

// Summary returns a copy of the current state plus derived reports.
func (s *Service) Summary() (*Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return nil, shared.ErrLedgerNotLoaded
	}
	statsCopy := s.stats.Clone()
	return &Summary{
		Stats:           *statsCopy,
		WeeklyReport:    statsCopy.GoalReport(),
		Efficiency:      statsCopy.Efficiency(),
		Recommendations: statsCopy.Recommendations(),
		Achievements:    statsCopy.UnlockedAchievements(),
	}, nil
}

// Stats returns a copy of the current stats.
func (s *Service) Stats() (*progress.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return nil, shared.ErrLedgerNotLoaded
	}
	return s.stats.Clone(), nil
}

// ChartData returns per-day study seconds for the last days days.
func (s *Service) ChartData(days int) ([]progress.ChartBucket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.loaded {
		return nil, shared.ErrLedgerNotLoaded
	}
	return s.stats.ChartData(s.now(), days, s.config.Location), nil
}

// ══════════════════════════════════════════════════════════════════════════════
// GOALS AND RESET
// ══════════════════════════════════════════════════════════════════════════════

// SetWeeklyGoals replaces the weekly goals after validation.
func (s *Service) SetWeeklyGoals(ctx context.Context, goals progress.WeeklyGoals) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return shared.ErrLedgerNotLoaded
	}
	if err := goals.Validate(); err != nil {
		return err
	}
	s.stats.WeeklyGoals = goals
	if s.config.AutoSave {
		return s.saveLocked(ctx)
	}
	return nil
}

// ResetWeekly zeroes the weekly counters. The scheduler calls this on
// Monday mornings.
func (s *Service) ResetWeekly(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return shared.ErrLedgerNotLoaded
	}
	s.stats.WeeklyProgress.Reset()
	s.logger.Info("weekly progress reset")
	if s.config.AutoSave {
		return s.saveLocked(ctx)
	}
	return nil
}

// Reset clears all progress. Achievements survive when
// keepAchievements is set.
func (s *Service) Reset(ctx context.Context, keepAchievements bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return shared.ErrLedgerNotLoaded
	}
	s.stats.Reset(keepAchievements)
	s.logger.Warn("progress reset", logger.Bool("keep_achievements", keepAchievements))
	if s.config.AutoSave {
		return s.saveLocked(ctx)
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// EXPORT / IMPORT
// ══════════════════════════════════════════════════════════════════════════════

// ExportEnvelope is the portable backup format.
type ExportEnvelope struct {
	Stats      progress.Stats `json:"stats"`
	ExportedAt time.Time      `json:"exported_at"`
	Version    string         `json:"version"`
}

// Export serializes the ledger for download.
func (s *Service) Export() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return nil, shared.ErrLedgerNotLoaded
	}
	envelope := ExportEnvelope{
		Stats:      *s.stats.Clone(),
		ExportedAt: s.now(),
		Version:    storage.SchemaVersion,
	}
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return nil, shared.WrapError("progress", "Export", shared.ErrStorage, "marshal export", err)
	}
	return data, nil
}

// Import replaces the ledger with an exported snapshot. The previous
// state is restored if persisting the import fails.
func (s *Service) Import(ctx context.Context, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.loaded {
		return shared.ErrLedgerNotLoaded
	}

	var envelope ExportEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		return shared.WrapError("progress", "Import", shared.ErrInvalidFormat, "parse import data", err)
	}
	if envelope.Stats.WordsLearned < 0 || envelope.Stats.CurrentStreak < 0 {
		return shared.NewDomainError("progress", "Import", shared.ErrValidation, "import contains negative counters")
	}
	if envelope.Version != "" && envelope.Version != storage.SchemaVersion {
		s.logger.Warn("import version differs",
			logger.String("import_version", envelope.Version),
			logger.String("current_version", storage.SchemaVersion),
		)
	}

	backup := s.stats
	imported := envelope.Stats
	imported.Normalize()
	s.stats = &imported

	if err := s.saveLocked(ctx); err != nil {
		s.stats = backup
		return shared.WrapError("progress", "Import", shared.ErrStorage, "persist imported data", err)
	}
	s.logger.Info("progress imported",
		logger.Int("words_learned", imported.WordsLearned),
		logger.Int("current_streak", imported.CurrentStreak),
	)
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
