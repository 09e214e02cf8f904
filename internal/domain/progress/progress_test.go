package progress

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/pkg/timeutil"
)

func day(year, month, d, hour int) time.Time {
	return time.Date(year, time.Month(month), d, hour, 0, 0, 0, timeutil.TaipeiTZ)
}

func TestParseActivityKind(t *testing.T) {
	tests := []struct {
		input   string
		want    ActivityKind
		wantErr bool
	}{
		{"word", ActivityWord, false},
		{"QUIZ", ActivityQuiz, false},
		{"  feynman  ", ActivityFeynman, false},
		{"force", ActivityForce, false},
		{"leaderboard", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseActivityKind(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, shared.ErrUnknownActivity)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRecord_CountersAndWeekly(t *testing.T) {
	s := NewStats()
	now := day(2026, 3, 2, 10)

	res, err := s.Record(ActivityWord, 3, now, timeutil.TaipeiTZ)
	require.NoError(t, err)
	assert.Equal(t, 3, res.NewTotal)
	assert.Equal(t, 3, s.WordsLearned)
	assert.Equal(t, 3, s.WeeklyProgress.Words)

	_, err = s.Record(ActivityQuiz, 1, now, timeutil.TaipeiTZ)
	require.NoError(t, err)
	assert.Equal(t, 1, s.QuizCount)
	assert.Equal(t, 1, s.WeeklyProgress.Quizzes)
}

func TestRecord_RejectsNegativeAmount(t *testing.T) {
	s := NewStats()
	_, err := s.Record(ActivityWord, -1, day(2026, 3, 2, 10), timeutil.TaipeiTZ)
	assert.ErrorIs(t, err, shared.ErrNegativeActivity)
}

func TestRecord_RejectsUnknownKind(t *testing.T) {
	s := NewStats()
	_, err := s.Record(ActivityKind("dance"), 1, day(2026, 3, 2, 10), timeutil.TaipeiTZ)
	assert.ErrorIs(t, err, shared.ErrUnknownActivity)
}

func TestRecord_StreakTransitions(t *testing.T) {
	s := NewStats()

	// First ever activity starts the streak.
	res, err := s.Record(ActivityWord, 1, day(2026, 3, 2, 9), timeutil.TaipeiTZ)
	require.NoError(t, err)
	assert.Equal(t, StreakStarted, res.Streak)
	assert.Equal(t, 1, s.CurrentStreak)

	// Same calendar day leaves the streak alone, even late at night.
	res, err = s.Record(ActivityQuiz, 1, day(2026, 3, 2, 23), timeutil.TaipeiTZ)
	require.NoError(t, err)
	assert.Equal(t, StreakUnchanged, res.Streak)
	assert.Equal(t, 1, s.CurrentStreak)

	// Next day extends.
	res, err = s.Record(ActivityWord, 1, day(2026, 3, 3, 1), timeutil.TaipeiTZ)
	require.NoError(t, err)
	assert.Equal(t, StreakExtended, res.Streak)
	assert.Equal(t, 2, s.CurrentStreak)
	assert.Equal(t, 2, s.BestStreak)

	// A two day gap resets back to one and reports what was lost.
	res, err = s.Record(ActivityWord, 1, day(2026, 3, 6, 12), timeutil.TaipeiTZ)
	require.NoError(t, err)
	assert.Equal(t, StreakReset, res.Streak)
	assert.Equal(t, 2, res.PreviousStreak)
	assert.Equal(t, 2, res.DaysMissed)
	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 2, s.BestStreak)
}

func TestRecord_StreakAcrossMidnightBoundary(t *testing.T) {
	s := NewStats()

	// 23:30 Taipei, then 00:30 the next calendar day.
	_, err := s.Record(ActivityWord, 1, day(2026, 3, 2, 23), timeutil.TaipeiTZ)
	require.NoError(t, err)
	res, err := s.Record(ActivityWord, 1, day(2026, 3, 3, 0), timeutil.TaipeiTZ)
	require.NoError(t, err)
	assert.Equal(t, StreakExtended, res.Streak)
	assert.Equal(t, 2, s.CurrentStreak)
}

func TestRecordStudyTime(t *testing.T) {
	s := NewStats()
	now := day(2026, 3, 2, 14)

	require.NoError(t, s.RecordStudyTime(600, now, timeutil.TaipeiTZ))
	require.NoError(t, s.RecordStudyTime(300, now, timeutil.TaipeiTZ))
	assert.Equal(t, 900, s.TotalStudySeconds)
	assert.Equal(t, 900, s.DailyStudySeconds["2026-03-02"])

	err := s.RecordStudyTime(-5, now, timeutil.TaipeiTZ)
	assert.True(t, shared.IsValidation(err))
}

func TestCheckAchievements_UnlockOrder(t *testing.T) {
	s := NewStats()
	s.WordsLearned = 10

	unlocked := s.CheckAchievements()
	require.Len(t, unlocked, 2)
	assert.Equal(t, "first_word", unlocked[0].ID)
	assert.Equal(t, "word_novice", unlocked[1].ID)

	// A second check never repeats badges.
	assert.Empty(t, s.CheckAchievements())

	s.WordsLearned = 50
	unlocked = s.CheckAchievements()
	require.Len(t, unlocked, 1)
	assert.Equal(t, "word_expert", unlocked[0].ID)
}

func TestCheckAchievements_StreakBadges(t *testing.T) {
	s := NewStats()
	s.CurrentStreak = 7

	unlocked := s.CheckAchievements()
	ids := make([]string, 0, len(unlocked))
	for _, a := range unlocked {
		ids = append(ids, a.ID)
	}
	assert.Equal(t, []string{"streak_beginner", "streak_warrior"}, ids)
}

func TestUnlockedAchievements_DeclarationOrder(t *testing.T) {
	s := NewStats()
	// Stored out of order; the report follows definition order.
	s.Achievements = []string{"word_novice", "first_word", "bogus"}

	got := s.UnlockedAchievements()
	require.Len(t, got, 2)
	assert.Equal(t, "first_word", got[0].ID)
	assert.Equal(t, "word_novice", got[1].ID)
}

func TestReset(t *testing.T) {
	s := NewStats()
	s.WordsLearned = 42
	s.CurrentStreak = 9
	s.Achievements = []string{"first_word"}

	kept := s
	kept.Reset(true)
	assert.Zero(t, kept.WordsLearned)
	assert.Equal(t, 1, kept.CurrentStreak)
	assert.Equal(t, []string{"first_word"}, kept.Achievements)

	dropped := s
	dropped.Reset(false)
	assert.Empty(t, dropped.Achievements)
}

func TestNormalize(t *testing.T) {
	var s Stats
	s.Normalize()

	assert.Equal(t, 1, s.CurrentStreak)
	assert.Equal(t, 1, s.BestStreak)
	assert.NotNil(t, s.Achievements)
	assert.NotNil(t, s.DailyStudySeconds)
	assert.Equal(t, DefaultWeeklyGoals(), s.WeeklyGoals)
}

func TestClone_IsIndependent(t *testing.T) {
	s := NewStats()
	s.Achievements = []string{"first_word"}
	s.DailyStudySeconds["2026-03-02"] = 60

	c := s.Clone()
	c.Achievements[0] = "changed"
	c.DailyStudySeconds["2026-03-02"] = 999

	assert.Equal(t, "first_word", s.Achievements[0])
	assert.Equal(t, 60, s.DailyStudySeconds["2026-03-02"])
}

func TestChartData(t *testing.T) {
	s := NewStats()
	now := day(2026, 3, 4, 12)
	require.NoError(t, s.RecordStudyTime(120, day(2026, 3, 3, 9), timeutil.TaipeiTZ))
	require.NoError(t, s.RecordStudyTime(60, now, timeutil.TaipeiTZ))

	buckets := s.ChartData(now, 3, timeutil.TaipeiTZ)
	require.Len(t, buckets, 3)
	assert.Equal(t, "2026-03-02", buckets[0].Date)
	assert.Zero(t, buckets[0].StudySeconds)
	assert.Equal(t, 120, buckets[1].StudySeconds)
	assert.Equal(t, 60, buckets[2].StudySeconds)
}

func TestWeeklyGoals_Validate(t *testing.T) {
	assert.NoError(t, DefaultWeeklyGoals().Validate())
	assert.ErrorIs(t, WeeklyGoals{Words: 0, Quizzes: 1, Feynman: 1, Force: 1}.Validate(), shared.ErrInvalidGoal)
	assert.ErrorIs(t, WeeklyGoals{Words: 10, Quizzes: -1, Feynman: 1, Force: 1}.Validate(), shared.ErrInvalidGoal)
}

func TestGoalReport(t *testing.T) {
	s := NewStats()
	s.WeeklyGoals = WeeklyGoals{Words: 10, Quizzes: 2, Feynman: 5, Force: 3}
	s.WeeklyProgress = WeeklyProgress{Words: 5, Quizzes: 4}

	report := s.GoalReport()
	require.Len(t, report, 4)

	words := report[0]
	assert.Equal(t, ActivityWord, words.Kind)
	assert.Equal(t, 50, words.Percent)
	assert.False(t, words.Done)

	quizzes := report[1]
	assert.Equal(t, 100, quizzes.Percent) // capped
	assert.True(t, quizzes.Done)
}

func TestWeeklyProgress_Reset(t *testing.T) {
	p := WeeklyProgress{Words: 5, Quizzes: 2, Feynman: 1, Force: 1}
	p.Reset()
	assert.Equal(t, WeeklyProgress{}, p)
}

func TestEfficiency(t *testing.T) {
	var s Stats
	assert.Equal(t, EfficiencyLow, s.Efficiency().Band)

	s.WordsLearned = 30
	s.TotalStudySeconds = 3600 // 0.5 wpm
	assert.Equal(t, EfficiencyMedium, s.Efficiency().Band)

	s.TotalStudySeconds = 1800 // 1.0 wpm
	assert.Equal(t, EfficiencyHigh, s.Efficiency().Band)
}

func TestRecommendations(t *testing.T) {
	s := NewStats()
	// Fresh learner: streak under 3 and every goal at zero percent.
	recs := s.Recommendations()
	require.NotEmpty(t, recs)
	assert.Equal(t, "build_streak", recs[0].Code)

	s.CurrentStreak = 10
	s.WeeklyProgress = WeeklyProgress{Words: 50, Quizzes: 10, Feynman: 5, Force: 3}
	assert.Empty(t, s.Recommendations())
}
