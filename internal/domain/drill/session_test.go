package drill

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/domain/word"
)

// fixedQuestions builds n questions whose correct answer is always
// option 0, so tests can score deterministically.
func fixedQuestions(n int) []word.Question {
	questions := make([]word.Question, 0, n)
	for i := 0; i < n; i++ {
		questions = append(questions, word.Question{
			Word:         "word" + string(rune('a'+i)),
			Options:      []string{"right", "wrong1", "wrong2", "wrong3"},
			CorrectIndex: 0,
		})
	}
	return questions
}

func newTestSession(t *testing.T, cfg Config) *Session {
	t.Helper()
	require.NoError(t, cfg.Validate())
	return NewSession("sess-1", "alice", cfg, nil, fixedQuestions(cfg.WordCount), time.Now())
}

func TestNewSession_StartsInMemoryPhase(t *testing.T) {
	s := newTestSession(t, DefaultConfig())
	assert.Equal(t, PhaseMemory, s.Phase())
	assert.Equal(t, 60, s.Remaining())
	assert.False(t, s.Finished())
}

func TestTick_CountsDownAndWarns(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemorySeconds = 30
	s := newTestSession(t, cfg)

	effect := s.Tick()
	assert.Equal(t, 29, effect.SecondsRemaining)
	assert.False(t, effect.Warning)

	// Burn down to 11 seconds left, then the warning window starts.
	for i := 0; i < 18; i++ {
		effect = s.Tick()
	}
	assert.Equal(t, 11, effect.SecondsRemaining)
	assert.False(t, effect.Warning)

	effect = s.Tick()
	assert.Equal(t, 10, effect.SecondsRemaining)
	assert.True(t, effect.Warning)
}

func TestTick_MemoryFlowsIntoQuiz(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MemorySeconds = 30
	s := newTestSession(t, cfg)

	var effect TickEffect
	for i := 0; i < 30; i++ {
		effect = s.Tick()
	}
	assert.True(t, effect.PhaseChanged)
	assert.Equal(t, PhaseMemory, effect.From)
	assert.Equal(t, PhaseQuiz, effect.Phase)
	assert.Equal(t, 30, effect.SecondsRemaining)
	assert.Equal(t, PhaseQuiz, s.Phase())
}

func TestTick_QuizTimeoutCompletesWithPartialAnswers(t *testing.T) {
	cfg := DefaultConfig()
	s := newTestSession(t, cfg)
	require.NoError(t, s.SkipMemorization())

	// Two answers in, then the clock runs out.
	_, _, err := s.SubmitAnswer(0)
	require.NoError(t, err)
	_, _, err = s.SubmitAnswer(1)
	require.NoError(t, err)

	var effect TickEffect
	for i := 0; i < cfg.EffectiveQuizSeconds(); i++ {
		effect = s.Tick()
	}
	assert.True(t, effect.Completed)
	assert.Equal(t, PhaseQuiz, effect.From)
	assert.Equal(t, PhaseResult, s.Phase())

	result, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, 2, result.Answered)
	assert.Equal(t, 1, result.Correct)
	assert.False(t, result.TargetMet)
}

func TestTick_NoopWhenPausedOrFinished(t *testing.T) {
	s := newTestSession(t, DefaultConfig())
	require.NoError(t, s.Pause())

	effect := s.Tick()
	assert.Equal(t, 60, effect.SecondsRemaining)
	assert.Equal(t, 60, s.Remaining())

	require.NoError(t, s.Resume())
	require.NoError(t, s.Abort())
	effect = s.Tick()
	assert.Equal(t, PhaseAborted, effect.Phase)
}

func TestSkipMemorization(t *testing.T) {
	s := newTestSession(t, DefaultConfig())
	require.NoError(t, s.SkipMemorization())
	assert.Equal(t, PhaseQuiz, s.Phase())
	assert.Equal(t, 30, s.Remaining())

	// Only allowed once.
	assert.ErrorIs(t, s.SkipMemorization(), shared.ErrDrillPhase)
}

func TestSubmitAnswer_ScoringAndCompletion(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WordCount = 3
	cfg.TargetCorrect = 2
	s := newTestSession(t, cfg)

	// Quiz has not started yet.
	_, _, err := s.SubmitAnswer(0)
	assert.ErrorIs(t, err, shared.ErrDrillPhase)

	require.NoError(t, s.SkipMemorization())

	correct, completed, err := s.SubmitAnswer(0)
	require.NoError(t, err)
	assert.True(t, correct)
	assert.False(t, completed)

	_, _, err = s.SubmitAnswer(7)
	assert.True(t, shared.IsValidation(err))

	correct, completed, err = s.SubmitAnswer(2)
	require.NoError(t, err)
	assert.False(t, correct)
	assert.False(t, completed)

	correct, completed, err = s.SubmitAnswer(0)
	require.NoError(t, err)
	assert.True(t, correct)
	assert.True(t, completed)
	assert.Equal(t, PhaseResult, s.Phase())

	result, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, 2, result.Correct)
	assert.Equal(t, 3, result.Answered)
	assert.True(t, result.TargetMet)
	require.Len(t, result.Answers, 3)
	assert.Equal(t, Answer{QuestionIndex: 1, Choice: 2, Correct: false}, result.Answers[1])
}

func TestCurrentQuestion(t *testing.T) {
	s := newTestSession(t, DefaultConfig())
	_, err := s.CurrentQuestion()
	assert.ErrorIs(t, err, shared.ErrDrillPhase)

	require.NoError(t, s.SkipMemorization())
	q, err := s.CurrentQuestion()
	require.NoError(t, err)
	assert.Equal(t, "worda", q.Word)
}

func TestPauseResume_PreservesRemaining(t *testing.T) {
	s := newTestSession(t, DefaultConfig())
	s.Tick()
	s.Tick()
	require.NoError(t, s.Pause())
	assert.True(t, s.Paused())

	for i := 0; i < 5; i++ {
		s.Tick()
	}
	assert.Equal(t, 58, s.Remaining())

	require.NoError(t, s.Resume())
	s.Tick()
	assert.Equal(t, 57, s.Remaining())
}

func TestAbort(t *testing.T) {
	s := newTestSession(t, DefaultConfig())
	require.NoError(t, s.Abort())
	assert.Equal(t, PhaseAborted, s.Phase())
	assert.True(t, s.Finished())

	// A finished session cannot be aborted again or paused.
	assert.ErrorIs(t, s.Abort(), shared.ErrDrillPhase)
	assert.ErrorIs(t, s.Pause(), shared.ErrDrillPhase)

	_, err := s.Result()
	assert.ErrorIs(t, err, shared.ErrDrillPhase)
}

func TestResult_Scoring(t *testing.T) {
	cfg := DefaultConfig()
	cfg.WordCount = 4
	cfg.TargetCorrect = 3
	s := newTestSession(t, cfg)
	require.NoError(t, s.SkipMemorization())

	// Answer everything right without a single tick: full accuracy plus
	// the full speed bonus.
	for i := 0; i < 4; i++ {
		_, _, err := s.SubmitAnswer(0)
		require.NoError(t, err)
	}

	result, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, 1.0, result.Accuracy)
	assert.Equal(t, 1.0, result.SpeedBonus)
	assert.Equal(t, 100, result.Overall)
	assert.Equal(t, GradeExcellent, result.Grade)
}

func TestResult_UnansweredQuestionsScoreAsWrong(t *testing.T) {
	cfg := DefaultConfig()
	s := newTestSession(t, cfg)
	require.NoError(t, s.SkipMemorization())

	// One right answer out of five, then the quiz timer runs out.
	correct, completed, err := s.SubmitAnswer(0)
	require.NoError(t, err)
	assert.True(t, correct)
	assert.False(t, completed)
	for i := 0; i < cfg.EffectiveQuizSeconds(); i++ {
		s.Tick()
	}
	require.Equal(t, PhaseResult, s.Phase())

	result, err := s.Result()
	require.NoError(t, err)
	assert.Equal(t, 1, result.Correct)
	assert.Equal(t, 1, result.Answered)
	assert.InDelta(t, 0.2, result.Accuracy, 1e-9)
	assert.InDelta(t, 2.0/3.0, result.SpeedBonus, 1e-9)
	assert.Equal(t, 34, result.Overall)
	assert.Equal(t, GradeKeepTrying, result.Grade)
}

func TestResult_NoAnswers(t *testing.T) {
	cfg := DefaultConfig()
	s := newTestSession(t, cfg)
	require.NoError(t, s.SkipMemorization())
	for i := 0; i < cfg.EffectiveQuizSeconds(); i++ {
		s.Tick()
	}

	result, err := s.Result()
	require.NoError(t, err)
	assert.Zero(t, result.Accuracy)
	assert.Zero(t, result.Correct)
	assert.Equal(t, GradeKeepTrying, result.Grade)
}

func TestGradeFor(t *testing.T) {
	tests := []struct {
		overall int
		want    Grade
	}{
		{95, GradeExcellent},
		{90, GradeExcellent},
		{85, GradeGreat},
		{72, GradeGood},
		{60, GradePass},
		{59, GradeKeepTrying},
		{0, GradeKeepTrying},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, gradeFor(tt.overall))
	}
}
