// Package progress contains the learning ledger: activity counters,
// streaks, achievements, weekly goals, and study-time accounting.
package progress

import (
	"strings"
	"time"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/pkg/timeutil"
)

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY KINDS
// ══════════════════════════════════════════════════════════════════════════════

// ActivityKind is one of the four learning activities the ledger tracks.
type ActivityKind string

const (
	ActivityWord    ActivityKind = "word"
	ActivityQuiz    ActivityKind = "quiz"
	ActivityFeynman ActivityKind = "feynman"
	ActivityForce   ActivityKind = "force"
)

// ParseActivityKind parses an activity kind string.
func ParseActivityKind(s string) (ActivityKind, error) {
	switch ActivityKind(strings.ToLower(strings.TrimSpace(s))) {
	case ActivityWord:
		return ActivityWord, nil
	case ActivityQuiz:
		return ActivityQuiz, nil
	case ActivityFeynman:
		return ActivityFeynman, nil
	case ActivityForce:
		return ActivityForce, nil
	default:
		return "", shared.ErrUnknownActivity
	}
}

// EventType returns the learning event type published for this kind.
func (k ActivityKind) EventType() shared.EventType {
	switch k {
	case ActivityWord:
		return shared.EventWordLearned
	case ActivityQuiz:
		return shared.EventQuizCompleted
	case ActivityFeynman:
		return shared.EventFeynmanCompleted
	case ActivityForce:
		return shared.EventForceCompleted
	default:
		return shared.EventType("learning." + string(k))
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// STATS
// ══════════════════════════════════════════════════════════════════════════════

// Stats is the persisted state of one learner's ledger.
type Stats struct {
	WordsLearned      int            `json:"words_learned"`
	QuizCount         int            `json:"quiz_count"`
	FeynmanCount      int            `json:"feynman_count"`
	ForceCount        int            `json:"force_count"`
	CurrentStreak     int            `json:"current_streak"`
	BestStreak        int            `json:"best_streak"`
	TotalStudySeconds int            `json:"total_study_seconds"`
	LastStudyDate     time.Time      `json:"last_study_date"`
	Achievements      []string       `json:"achievements"`
	WeeklyProgress    WeeklyProgress `json:"weekly_progress"`
	WeeklyGoals       WeeklyGoals    `json:"weekly_goals"`
	// DailyStudySeconds buckets study time by date string (YYYY-MM-DD).
	DailyStudySeconds map[string]int `json:"daily_study_seconds"`
}

// NewStats returns the defaults a fresh learner starts with.
func NewStats() Stats {
	return Stats{
		WordsLearned:      0,
		CurrentStreak:     1,
		BestStreak:        1,
		Achievements:      []string{},
		WeeklyGoals:       DefaultWeeklyGoals(),
		DailyStudySeconds: map[string]int{},
	}
}

// Normalize fills in zero-value fields after loading from storage, so
// partially-written or older payloads still behave like fresh defaults.
func (s *Stats) Normalize() {
	if s.CurrentStreak < 1 {
		s.CurrentStreak = 1
	}
	if s.BestStreak < s.CurrentStreak {
		s.BestStreak = s.CurrentStreak
	}
	if s.Achievements == nil {
		s.Achievements = []string{}
	}
	if s.DailyStudySeconds == nil {
		s.DailyStudySeconds = map[string]int{}
	}
	if s.WeeklyGoals.IsZero() {
		s.WeeklyGoals = DefaultWeeklyGoals()
	}
}

// counter returns a pointer to the counter backing the given kind.
func (s *Stats) counter(kind ActivityKind) *int {
	switch kind {
	case ActivityWord:
		return &s.WordsLearned
	case ActivityQuiz:
		return &s.QuizCount
	case ActivityFeynman:
		return &s.FeynmanCount
	case ActivityForce:
		return &s.ForceCount
	default:
		return nil
	}
}

// Count returns the counter value for the given kind.
func (s Stats) Count(kind ActivityKind) int {
	if c := (&s).counter(kind); c != nil {
		return *c
	}
	return 0
}

// StreakOutcome describes what an activity did to the daily streak.
type StreakOutcome int

const (
	// StreakUnchanged: same calendar day, nothing to update.
	StreakUnchanged StreakOutcome = iota
	// StreakExtended: exactly one day since the last study day.
	StreakExtended
	// StreakReset: a gap of two or more days broke the streak.
	StreakReset
	// StreakStarted: first ever recorded activity.
	StreakStarted
)

// RecordResult reports what a Record call changed.
type RecordResult struct {
	Kind           ActivityKind
	Amount         int
	NewTotal       int
	Streak         StreakOutcome
	PreviousStreak int
	DaysMissed     int
}

// Record applies a learning activity to the ledger: bumps the counter,
// updates the streak against the calendar day of now in loc, and advances
// weekly progress. Achievement checking is a separate step so callers can
// publish per-unlock events.
func (s *Stats) Record(kind ActivityKind, amount int, now time.Time, loc *time.Location) (RecordResult, error) {
	if amount < 0 {
		return RecordResult{}, shared.ErrNegativeActivity
	}
	counter := s.counter(kind)
	if counter == nil {
		return RecordResult{}, shared.ErrUnknownActivity
	}

	*counter += amount
	s.WeeklyProgress.Add(kind, amount)

	result := RecordResult{
		Kind:     kind,
		Amount:   amount,
		NewTotal: *counter,
	}

	switch {
	case s.LastStudyDate.IsZero():
		result.Streak = StreakStarted
		s.CurrentStreak = 1
		if s.BestStreak < 1 {
			s.BestStreak = 1
		}
	default:
		gap := timeutil.DaysUntil(s.LastStudyDate, now, loc)
		switch {
		case gap <= 0:
			// Same day (or clock skew backwards): streak untouched.
			result.Streak = StreakUnchanged
		case gap == 1:
			s.CurrentStreak++
			if s.CurrentStreak > s.BestStreak {
				s.BestStreak = s.CurrentStreak
			}
			result.Streak = StreakExtended
		default:
			result.Streak = StreakReset
			result.PreviousStreak = s.CurrentStreak
			result.DaysMissed = gap - 1
			s.CurrentStreak = 1
		}
	}

	s.LastStudyDate = timeutil.StartOfDay(now, loc)
	return result, nil
}

// RecordStudyTime adds study seconds to the running total and to the
// bucket for the day of now.
func (s *Stats) RecordStudyTime(seconds int, now time.Time, loc *time.Location) error {
	if seconds < 0 {
		return shared.NewDomainError("progress", "RecordStudyTime", shared.ErrNegativeValue, "study time cannot be negative")
	}
	if s.DailyStudySeconds == nil {
		s.DailyStudySeconds = map[string]int{}
	}
	s.TotalStudySeconds += seconds
	s.DailyStudySeconds[timeutil.FormatDateStr(now, loc)] += seconds
	return nil
}

// Reset clears the ledger back to defaults. Unlocked achievements survive
// when keepAchievements is set.
func (s *Stats) Reset(keepAchievements bool) {
	achievements := s.Achievements
	*s = NewStats()
	if keepAchievements && achievements != nil {
		s.Achievements = achievements
	}
}

// Clone returns a deep copy, safe to hand out across goroutines.
func (s Stats) Clone() *Stats {
	out := s
	out.Achievements = append([]string(nil), s.Achievements...)
	if s.DailyStudySeconds != nil {
		out.DailyStudySeconds = make(map[string]int, len(s.DailyStudySeconds))
		for k, v := range s.DailyStudySeconds {
			out.DailyStudySeconds[k] = v
		}
	}
	return &out
}

// ChartBucket is one day of study data for dashboard charts.
type ChartBucket struct {
	Date         string `json:"date"`
	StudySeconds int    `json:"study_seconds"`
}

// ChartData returns the study-time buckets for the days days ending today.
func (s Stats) ChartData(now time.Time, days int, loc *time.Location) []ChartBucket {
	buckets := make([]ChartBucket, 0, days)
	for _, date := range timeutil.LastNDays(now, days, loc) {
		buckets = append(buckets, ChartBucket{
			Date:         date,
			StudySeconds: s.DailyStudySeconds[date],
		})
	}
	return buckets
}
