package quiz

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiaomu-learn/qiaomu/internal/domain/progress"
	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/domain/word"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

type stubRecorder struct {
	kinds []progress.ActivityKind
}

func (r *stubRecorder) Record(ctx context.Context, kind progress.ActivityKind, amount int) (progress.RecordResult, error) {
	r.kinds = append(r.kinds, kind)
	return progress.RecordResult{Kind: kind, Amount: amount}, nil
}

func testCatalog(t *testing.T) *word.Catalog {
	t.Helper()
	words := []word.Word{
		{Text: "cat", Definition: "a small feline"},
		{Text: "dog", Definition: "a loyal canine"},
		{Text: "bird", Definition: "a feathered flyer"},
		{Text: "fish", Definition: "a gilled swimmer"},
		{Text: "horse", Definition: "a riding animal"},
		{Text: "mouse", Definition: "a tiny rodent"},
	}
	c, err := word.NewCatalog(words, 7)
	require.NoError(t, err)
	return c
}

func newTestService(t *testing.T) (*Service, *stubRecorder) {
	t.Helper()
	recorder := &stubRecorder{}
	return NewService(testCatalog(t), recorder, logger.Discard()), recorder
}

func TestStart(t *testing.T) {
	svc, _ := newTestService(t)

	quiz, err := svc.Start(3, word.DifficultyNormal)
	require.NoError(t, err)
	assert.NotEmpty(t, quiz.ID)
	require.Len(t, quiz.Questions, 3)
	for _, q := range quiz.Questions {
		assert.Len(t, q.Options, 4)
	}

	// Zero means the default round size.
	quiz, err = svc.Start(0, word.DifficultyNormal)
	require.NoError(t, err)
	assert.Len(t, quiz.Questions, DefaultQuestionCount)
}

func TestStart_CountOutOfRange(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Start(-1, word.DifficultyNormal)
	assert.True(t, shared.IsValidation(err))
	_, err = svc.Start(21, word.DifficultyNormal)
	assert.True(t, shared.IsValidation(err))

	// More questions than the catalog holds.
	_, err = svc.Start(20, word.DifficultyNormal)
	assert.True(t, shared.IsConfiguration(err))
}

func TestAnswer(t *testing.T) {
	svc, _ := newTestService(t)
	quiz, err := svc.Start(2, word.DifficultyNormal)
	require.NoError(t, err)

	correct, err := svc.Answer(quiz.ID, 0, quiz.Questions[0].CorrectIndex)
	require.NoError(t, err)
	assert.True(t, correct)

	// Re-answering is rejected.
	_, err = svc.Answer(quiz.ID, 0, 0)
	assert.ErrorIs(t, err, shared.ErrInvalidState)

	// Bounds checks.
	_, err = svc.Answer(quiz.ID, 5, 0)
	assert.True(t, shared.IsValidation(err))
	_, err = svc.Answer(quiz.ID, 1, 9)
	assert.True(t, shared.IsValidation(err))

	_, err = svc.Answer("missing", 0, 0)
	assert.True(t, shared.IsNotFound(err))
}

func TestFinish_UnansweredScoreAsWrong(t *testing.T) {
	svc, recorder := newTestService(t)

	started := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	now := started
	svc.SetClock(func() time.Time { return now })

	quiz, err := svc.Start(4, word.DifficultyNormal)
	require.NoError(t, err)

	// Two right, one wrong, one left unanswered.
	_, err = svc.Answer(quiz.ID, 0, quiz.Questions[0].CorrectIndex)
	require.NoError(t, err)
	_, err = svc.Answer(quiz.ID, 1, quiz.Questions[1].CorrectIndex)
	require.NoError(t, err)
	wrong := (quiz.Questions[2].CorrectIndex + 1) % len(quiz.Questions[2].Options)
	_, err = svc.Answer(quiz.ID, 2, wrong)
	require.NoError(t, err)

	now = now.Add(42 * time.Second)
	result, err := svc.Finish(context.Background(), quiz.ID)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Correct)
	assert.Equal(t, 4, result.Total)
	assert.Equal(t, 50, result.Percent)
	assert.False(t, result.Completed)
	assert.Equal(t, 42.0, result.Duration)

	// The quiz counts as one activity regardless of size.
	assert.Equal(t, []progress.ActivityKind{progress.ActivityQuiz}, recorder.kinds)

	// Finishing twice fails; the round is gone.
	_, err = svc.Finish(context.Background(), quiz.ID)
	assert.True(t, shared.IsNotFound(err))
}

func TestFinish_Completed(t *testing.T) {
	svc, _ := newTestService(t)
	quiz, err := svc.Start(2, word.DifficultyNormal)
	require.NoError(t, err)

	for i, q := range quiz.Questions {
		_, err = svc.Answer(quiz.ID, i, q.CorrectIndex)
		require.NoError(t, err)
	}

	result, err := svc.Finish(context.Background(), quiz.ID)
	require.NoError(t, err)
	assert.True(t, result.Completed)
	assert.Equal(t, 100, result.Percent)
}
