package progress

import (
	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// WEEKLY GOALS
// ══════════════════════════════════════════════════════════════════════════════

// WeeklyGoals are the per-week targets the learner aims for.
type WeeklyGoals struct {
	Words   int `json:"words"`
	Quizzes int `json:"quizzes"`
	Feynman int `json:"feynman"`
	Force   int `json:"force"`
}

// DefaultWeeklyGoals returns the stock targets.
func DefaultWeeklyGoals() WeeklyGoals {
	return WeeklyGoals{Words: 50, Quizzes: 10, Feynman: 5, Force: 3}
}

// IsZero reports whether no goal is set at all.
func (g WeeklyGoals) IsZero() bool {
	return g == WeeklyGoals{}
}

// Validate rejects non-positive targets.
func (g WeeklyGoals) Validate() error {
	if g.Words <= 0 || g.Quizzes <= 0 || g.Feynman <= 0 || g.Force <= 0 {
		return shared.ErrInvalidGoal
	}
	return nil
}

// WeeklyProgress counts activity within the current week.
type WeeklyProgress struct {
	Words   int `json:"words"`
	Quizzes int `json:"quizzes"`
	Feynman int `json:"feynman"`
	Force   int `json:"force"`
}

// Add advances the week counter for the given activity kind.
func (p *WeeklyProgress) Add(kind ActivityKind, amount int) {
	switch kind {
	case ActivityWord:
		p.Words += amount
	case ActivityQuiz:
		p.Quizzes += amount
	case ActivityFeynman:
		p.Feynman += amount
	case ActivityForce:
		p.Force += amount
	}
}

// Reset zeroes the week counters. Runs from the weekly job every Monday.
func (p *WeeklyProgress) Reset() {
	*p = WeeklyProgress{}
}

// GoalStatus is the progress against one weekly target.
type GoalStatus struct {
	Kind    ActivityKind `json:"kind"`
	Current int          `json:"current"`
	Goal    int          `json:"goal"`
	Percent int          `json:"percent"`
	Done    bool         `json:"done"`
}

// GoalReport returns the status of every weekly goal.
func (s Stats) GoalReport() []GoalStatus {
	pairs := []struct {
		kind    ActivityKind
		current int
		goal    int
	}{
		{ActivityWord, s.WeeklyProgress.Words, s.WeeklyGoals.Words},
		{ActivityQuiz, s.WeeklyProgress.Quizzes, s.WeeklyGoals.Quizzes},
		{ActivityFeynman, s.WeeklyProgress.Feynman, s.WeeklyGoals.Feynman},
		{ActivityForce, s.WeeklyProgress.Force, s.WeeklyGoals.Force},
	}

	out := make([]GoalStatus, 0, len(pairs))
	for _, p := range pairs {
		status := GoalStatus{Kind: p.kind, Current: p.current, Goal: p.goal}
		if p.goal > 0 {
			status.Percent = p.current * 100 / p.goal
			if status.Percent > 100 {
				status.Percent = 100
			}
			status.Done = p.current >= p.goal
		}
		out = append(out, status)
	}
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// EFFICIENCY & RECOMMENDATIONS
// ══════════════════════════════════════════════════════════════════════════════

// EfficiencyBand buckets learning pace for the dashboard.
type EfficiencyBand string

const (
	EfficiencyHigh   EfficiencyBand = "high"
	EfficiencyMedium EfficiencyBand = "medium"
	EfficiencyLow    EfficiencyBand = "low"
)

// Efficiency is learning pace in words per minute of study time.
type Efficiency struct {
	WordsPerMinute float64        `json:"words_per_minute"`
	Band           EfficiencyBand `json:"band"`
}

// Efficiency computes the learner's pace. With no study time recorded the
// band is low and the rate zero.
func (s Stats) Efficiency() Efficiency {
	var wpm float64
	if s.TotalStudySeconds > 0 {
		wpm = float64(s.WordsLearned) / (float64(s.TotalStudySeconds) / 60.0)
	}

	band := EfficiencyLow
	switch {
	case wpm > 0.5:
		band = EfficiencyHigh
	case wpm > 0.2:
		band = EfficiencyMedium
	}
	return Efficiency{WordsPerMinute: wpm, Band: band}
}

// Recommendation is one actionable suggestion for the learner.
type Recommendation struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Recommendations derives suggestions from streak health, weekly-goal
// gaps, and the efficiency band.
func (s Stats) Recommendations() []Recommendation {
	var recs []Recommendation

	if s.CurrentStreak < 3 {
		recs = append(recs, Recommendation{
			Code:    "build_streak",
			Message: "每天學習一點,建立連續學習的習慣",
		})
	}

	for _, goal := range s.GoalReport() {
		if goal.Done || goal.Goal == 0 {
			continue
		}
		if goal.Percent < 50 {
			recs = append(recs, Recommendation{
				Code:    "behind_goal_" + string(goal.Kind),
				Message: "本週 " + string(goal.Kind) + " 目標進度落後,加把勁!",
			})
		}
	}

	if s.Efficiency().Band == EfficiencyLow && s.TotalStudySeconds > 0 {
		recs = append(recs, Recommendation{
			Code:    "focus_sessions",
			Message: "嘗試較短但更專注的學習時段",
		})
	}

	return recs
}
