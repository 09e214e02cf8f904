// Package jobs runs the recurring maintenance work: the Monday weekly
// goal reset and the expired-session sweep.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
	"github.com/qiaomu-learn/qiaomu/pkg/timeutil"
)

// WeeklyResetter zeroes the weekly counters.
type WeeklyResetter interface {
	ResetWeekly(ctx context.Context) error
}

// SessionSweeper drops expired sessions.
type SessionSweeper interface {
	Sweep(ctx context.Context) int
}

// Config contains scheduler configuration.
type Config struct {
	// Location decides when "Monday 00:00" happens.
	Location *time.Location

	// SweepInterval is how often expired sessions are collected.
	SweepInterval time.Duration
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() Config {
	return Config{
		Location:      timeutil.TaipeiTZ,
		SweepInterval: 5 * time.Minute,
	}
}

// Scheduler owns the gocron instance.
type Scheduler struct {
	scheduler *gocron.Scheduler
	resetter  WeeklyResetter
	sweeper   SessionSweeper
	publisher shared.EventPublisher
	logger    *logger.Logger
	config    Config
}

// New creates a scheduler. The sweeper and publisher may be nil.
func New(resetter WeeklyResetter, sweeper SessionSweeper, publisher shared.EventPublisher, log *logger.Logger, cfg Config) *Scheduler {
	if cfg.Location == nil {
		cfg.Location = timeutil.TaipeiTZ
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = 5 * time.Minute
	}
	if log == nil {
		log = logger.Default()
	}
	return &Scheduler{
		scheduler: gocron.NewScheduler(cfg.Location),
		resetter:  resetter,
		sweeper:   sweeper,
		publisher: publisher,
		logger:    log.With(logger.Component("jobs")),
		config:    cfg,
	}
}

// Start registers the jobs and runs the scheduler asynchronously.
func (s *Scheduler) Start() error {
	if s.resetter != nil {
		if _, err := s.scheduler.Every(1).Monday().At("00:00").Do(s.runWeeklyReset); err != nil {
			return shared.WrapError("jobs", "Start", shared.ErrConfiguration, "schedule weekly reset", err)
		}
	}
	if s.sweeper != nil {
		if _, err := s.scheduler.Every(s.config.SweepInterval).Do(s.runSessionSweep); err != nil {
			return shared.WrapError("jobs", "Start", shared.ErrConfiguration, "schedule session sweep", err)
		}
	}

	s.scheduler.StartAsync()
	s.logger.Info("scheduler started",
		logger.String("timezone", s.config.Location.String()),
		logger.Int("jobs", len(s.scheduler.Jobs())),
	)
	return nil
}

// Stop halts the scheduler. Running jobs finish first.
func (s *Scheduler) Stop() {
	s.scheduler.Stop()
	s.logger.Info("scheduler stopped")
}

func (s *Scheduler) runWeeklyReset() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.resetter.ResetWeekly(ctx); err != nil {
		s.logger.Error("weekly reset failed", logger.Err(err))
		return
	}
	s.logger.Info("weekly goals reset")
	if s.publisher != nil {
		if err := s.publisher.Publish(shared.NewWeeklyProgressResetEvent("system")); err != nil {
			s.logger.Error(fmt.Sprintf("publish %s failed", shared.EventWeeklyProgressReset), logger.Err(err))
		}
	}
}

func (s *Scheduler) runSessionSweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	s.sweeper.Sweep(ctx)
}
