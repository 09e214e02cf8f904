package drill

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domdrill "github.com/qiaomu-learn/qiaomu/internal/domain/drill"
	"github.com/qiaomu-learn/qiaomu/internal/domain/progress"
	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/domain/word"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

type stubRecorder struct {
	kinds        []progress.ActivityKind
	studySeconds int
}

func (r *stubRecorder) Record(_ context.Context, kind progress.ActivityKind, amount int) (progress.RecordResult, error) {
	r.kinds = append(r.kinds, kind)
	return progress.RecordResult{Kind: kind, Amount: amount}, nil
}

func (r *stubRecorder) RecordStudyTime(_ context.Context, seconds int) error {
	r.studySeconds += seconds
	return nil
}

type capturePublisher struct {
	events []shared.Event
}

func (p *capturePublisher) Publish(event shared.Event) error {
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) types() []shared.EventType {
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

func drillCatalog(t *testing.T) *word.Catalog {
	t.Helper()
	c, err := word.NewCatalog([]word.Word{
		{Text: "lantern", Definition: "a portable case for a light"},
		{Text: "harvest", Definition: "the gathering of ripe crops"},
		{Text: "journey", Definition: "travel from one place to another"},
		{Text: "whisper", Definition: "to speak very softly"},
		{Text: "granite", Definition: "a hard igneous rock"},
		{Text: "orchard", Definition: "a plot of fruit trees"},
		{Text: "bramble", Definition: "a prickly wild shrub"},
		{Text: "mineral", Definition: "a naturally occurring solid"},
	}, 7)
	require.NoError(t, err)
	return c
}

func shortConfig() domdrill.Config {
	return domdrill.Config{
		MemorySeconds: 30,
		QuizSeconds:   15,
		WordCount:     3,
		TargetCorrect: 2,
		Difficulty:    word.DifficultyNormal,
	}
}

func newTestService(t *testing.T) (*Service, *stubRecorder, *capturePublisher, *FakeClock) {
	t.Helper()
	rec := &stubRecorder{}
	pub := &capturePublisher{}
	clock := NewFakeClock(time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC))
	svc := NewService(drillCatalog(t), rec, pub, clock, logger.Discard())
	return svc, rec, pub, clock
}

func TestStart(t *testing.T) {
	svc, _, pub, _ := newTestService(t)

	res, err := svc.Start(context.Background(), "alice", shortConfig())
	require.NoError(t, err)
	assert.NotEmpty(t, res.SessionID)
	assert.Len(t, res.Words, 3)
	assert.Equal(t, 30, res.MemorySeconds)
	assert.Equal(t, 15, res.QuizSeconds)
	assert.Equal(t, 3, res.QuestionCount)
	assert.Equal(t, 30, res.SecondsRemaining)

	snap, err := svc.State(res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domdrill.PhaseMemory, snap.Phase)
	assert.Len(t, snap.Words, 3)
	assert.Zero(t, snap.QuestionIndex)

	assert.Contains(t, pub.types(), shared.EventDrillPhaseChanged)
}

func TestStart_RejectsBadConfig(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	cfg := shortConfig()
	cfg.MemorySeconds = 25
	_, err := svc.Start(context.Background(), "alice", cfg)
	assert.True(t, shared.IsValidation(err))
}

func TestStart_AbortsPreviousSessionOfSameUser(t *testing.T) {
	svc, _, pub, _ := newTestService(t)
	ctx := context.Background()

	first, err := svc.Start(ctx, "alice", shortConfig())
	require.NoError(t, err)
	second, err := svc.Start(ctx, "alice", shortConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{second.SessionID}, svc.ActiveSessions())
	_, err = svc.State(first.SessionID)
	assert.ErrorIs(t, err, shared.ErrDrillNoSession)
	assert.Contains(t, pub.types(), shared.EventDrillAborted)
}

func TestTick_DrivesPhasesAndWarnings(t *testing.T) {
	svc, rec, pub, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Start(ctx, "alice", shortConfig())
	require.NoError(t, err)

	// Burn through memorization. The transition tick reports the quiz
	// phase with its own countdown.
	for i := 0; i < 30; i++ {
		done, err := svc.Tick(ctx, res.SessionID)
		require.NoError(t, err)
		assert.False(t, done)
	}
	snap, err := svc.State(res.SessionID)
	require.NoError(t, err)
	assert.Equal(t, domdrill.PhaseQuiz, snap.Phase)
	assert.Equal(t, 15, snap.SecondsRemaining)
	assert.Contains(t, pub.types(), shared.EventDrillTimeWarning)

	// Let the quiz clock run out without a single answer.
	var done bool
	for i := 0; i < 15 && !done; i++ {
		done, err = svc.Tick(ctx, res.SessionID)
		require.NoError(t, err)
	}
	assert.True(t, done)
	assert.Empty(t, svc.ActiveSessions())
	assert.Contains(t, pub.types(), shared.EventDrillCompleted)
	assert.Equal(t, []progress.ActivityKind{progress.ActivityForce}, rec.kinds)
	assert.Equal(t, 45, rec.studySeconds)
}

func TestTick_UnknownSession(t *testing.T) {
	svc, _, _, _ := newTestService(t)

	done, err := svc.Tick(context.Background(), "nope")
	assert.True(t, done)
	assert.ErrorIs(t, err, shared.ErrDrillNoSession)
}

func TestSubmitAnswer_FullRound(t *testing.T) {
	svc, rec, pub, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Start(ctx, "alice", shortConfig())
	require.NoError(t, err)
	require.NoError(t, svc.SkipMemorization(res.SessionID))

	var last *AnswerResult
	for i := 0; i < 3; i++ {
		snap, err := svc.State(res.SessionID)
		require.NoError(t, err)
		assert.Equal(t, i, snap.QuestionIndex)

		last, err = svc.SubmitAnswer(ctx, res.SessionID, snap.Question.CorrectIndex)
		require.NoError(t, err)
		assert.True(t, last.Correct)
	}

	require.NotNil(t, last)
	assert.True(t, last.Completed)
	require.NotNil(t, last.Result)
	assert.Equal(t, 3, last.Result.Correct)
	assert.True(t, last.Result.TargetMet)
	assert.Equal(t, 100, last.Result.Overall)

	assert.Empty(t, svc.ActiveSessions())
	assert.Contains(t, pub.types(), shared.EventDrillCompleted)
	assert.Equal(t, []progress.ActivityKind{progress.ActivityForce}, rec.kinds)
	// No ticks elapsed, so no study time was banked.
	assert.Zero(t, rec.studySeconds)
}

func TestSubmitAnswer_Errors(t *testing.T) {
	svc, _, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.SubmitAnswer(ctx, "nope", 0)
	assert.ErrorIs(t, err, shared.ErrDrillNoSession)

	res, err := svc.Start(ctx, "alice", shortConfig())
	require.NoError(t, err)

	_, err = svc.SubmitAnswer(ctx, res.SessionID, 0)
	assert.ErrorIs(t, err, shared.ErrDrillPhase)
}

func TestPauseResumeAbort(t *testing.T) {
	svc, rec, pub, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.Start(ctx, "alice", shortConfig())
	require.NoError(t, err)

	require.NoError(t, svc.Pause(res.SessionID))
	done, err := svc.Tick(ctx, res.SessionID)
	require.NoError(t, err)
	assert.False(t, done)

	snap, err := svc.State(res.SessionID)
	require.NoError(t, err)
	assert.True(t, snap.Paused)
	assert.Equal(t, 30, snap.SecondsRemaining)

	require.NoError(t, svc.Resume(res.SessionID))
	require.NoError(t, svc.Abort(res.SessionID))
	assert.Empty(t, svc.ActiveSessions())
	assert.Contains(t, pub.types(), shared.EventDrillAborted)
	assert.Empty(t, rec.kinds)

	assert.ErrorIs(t, svc.Pause(res.SessionID), shared.ErrDrillNoSession)
	assert.ErrorIs(t, svc.Resume(res.SessionID), shared.ErrDrillNoSession)
	assert.ErrorIs(t, svc.Abort(res.SessionID), shared.ErrDrillNoSession)
}
