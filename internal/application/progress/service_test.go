package progress

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qiaomu-learn/qiaomu/internal/domain/progress"
	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
	"github.com/qiaomu-learn/qiaomu/pkg/timeutil"
)

// capturePublisher records published events for assertions.
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

func newLoadedService(t *testing.T) (*Service, *capturePublisher) {
	t.Helper()
	pub := &capturePublisher{}
	svc := NewService(storage.NewMemoryStore(), pub, logger.Discard(), Config{
		Location: timeutil.TaipeiTZ,
		AutoSave: true,
	})
	require.NoError(t, svc.Load(context.Background()))
	return svc, pub
}

func TestService_RequiresLoad(t *testing.T) {
	svc := NewService(storage.NewMemoryStore(), nil, logger.Discard(), DefaultConfig())

	_, err := svc.Record(context.Background(), progress.ActivityWord, 1)
	assert.ErrorIs(t, err, shared.ErrLedgerNotLoaded)
	_, err = svc.Stats()
	assert.ErrorIs(t, err, shared.ErrLedgerNotLoaded)
	_, err = svc.Summary()
	assert.ErrorIs(t, err, shared.ErrLedgerNotLoaded)
	assert.ErrorIs(t, svc.ResetWeekly(context.Background()), shared.ErrLedgerNotLoaded)
}

func TestRecord_PublishesActivityAndStreakEvents(t *testing.T) {
	svc, pub := newLoadedService(t)
	ctx := context.Background()

	res, err := svc.Record(ctx, progress.ActivityWord, 1)
	require.NoError(t, err)
	assert.Equal(t, progress.StreakStarted, res.Streak)

	types := pub.types()
	// Save event, then the activity, the streak update, and the
	// first-word achievement.
	assert.Contains(t, types, shared.EventDataSaved)
	assert.Contains(t, types, shared.EventWordLearned)
	assert.Contains(t, types, shared.EventStreakUpdated)
	assert.Contains(t, types, shared.EventAchievementUnlocked)
}

func TestRecord_StreakBrokenEvents(t *testing.T) {
	svc, pub := newLoadedService(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, timeutil.TaipeiTZ)
	svc.SetClock(func() time.Time { return now })
	_, err := svc.Record(ctx, progress.ActivityWord, 1)
	require.NoError(t, err)

	// Skip three days: the streak breaks.
	now = now.AddDate(0, 0, 3)
	pub.events = nil
	res, err := svc.Record(ctx, progress.ActivityWord, 1)
	require.NoError(t, err)
	assert.Equal(t, progress.StreakReset, res.Streak)
	assert.Equal(t, 2, res.DaysMissed)

	types := pub.types()
	assert.Contains(t, types, shared.EventStreakBroken)
	assert.Contains(t, types, shared.EventStreakUpdated)
}

func TestRecord_AchievementsPublishOnceInOrder(t *testing.T) {
	svc, pub := newLoadedService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, progress.ActivityWord, 10)
	require.NoError(t, err)

	var unlocks []string
	for _, e := range pub.events {
		if a, ok := e.(shared.AchievementUnlockedEvent); ok {
			unlocks = append(unlocks, a.AchievementID)
		}
	}
	assert.Equal(t, []string{"first_word", "word_novice"}, unlocks)

	// Recording again unlocks nothing new.
	pub.events = nil
	_, err = svc.Record(ctx, progress.ActivityWord, 1)
	require.NoError(t, err)
	for _, e := range pub.events {
		assert.NotEqual(t, shared.EventAchievementUnlocked, e.EventType())
	}
}

func TestPersistenceRoundTrip(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()

	svc := NewService(store, nil, logger.Discard(), Config{Location: timeutil.TaipeiTZ, AutoSave: true})
	require.NoError(t, svc.Load(ctx))
	_, err := svc.Record(ctx, progress.ActivityQuiz, 2)
	require.NoError(t, err)
	require.NoError(t, svc.RecordStudyTime(ctx, 90))

	svc2 := NewService(store, nil, logger.Discard(), Config{Location: timeutil.TaipeiTZ})
	require.NoError(t, svc2.Load(ctx))
	stats, err := svc2.Stats()
	require.NoError(t, err)
	assert.Equal(t, 2, stats.QuizCount)
	assert.Equal(t, 90, stats.TotalStudySeconds)
}

// brokenWriteStore fails writes on demand while reads keep working.
type brokenWriteStore struct {
	*storage.MemoryStore
	failSet bool
}

func (s *brokenWriteStore) Set(ctx context.Context, key string, value []byte) error {
	if s.failSet {
		return shared.WrapError("storage", "Set", shared.ErrStorage, "backend unavailable", nil)
	}
	return s.MemoryStore.Set(ctx, key, value)
}

func TestRecord_FailedSaveRollsBack(t *testing.T) {
	store := &brokenWriteStore{MemoryStore: storage.NewMemoryStore()}
	ctx := context.Background()
	svc := NewService(store, nil, logger.Discard(), Config{Location: timeutil.TaipeiTZ, AutoSave: true})
	require.NoError(t, svc.Load(ctx))

	_, err := svc.Record(ctx, progress.ActivityWord, 1)
	require.NoError(t, err)

	store.failSet = true
	_, err = svc.Record(ctx, progress.ActivityWord, 1)
	require.Error(t, err)
	assert.True(t, shared.IsStorage(err))

	// The failed activity left no trace in memory.
	stats, err := svc.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, stats.WordsLearned)

	// Nor does a later successful save resurrect it.
	store.failSet = false
	require.NoError(t, svc.Save(ctx))
	svc2 := NewService(store, nil, logger.Discard(), Config{Location: timeutil.TaipeiTZ})
	require.NoError(t, svc2.Load(ctx))
	persisted, err := svc2.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, persisted.WordsLearned)
}

func TestRecordStudyTime_FailedSaveRollsBack(t *testing.T) {
	store := &brokenWriteStore{MemoryStore: storage.NewMemoryStore()}
	ctx := context.Background()
	svc := NewService(store, nil, logger.Discard(), Config{Location: timeutil.TaipeiTZ, AutoSave: true})
	require.NoError(t, svc.Load(ctx))

	store.failSet = true
	err := svc.RecordStudyTime(ctx, 120)
	require.Error(t, err)

	stats, err := svc.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.TotalStudySeconds)
}

func TestLoad_CorruptDataStartsFresh(t *testing.T) {
	store := storage.NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, storage.KeyLearning, []byte("{not json")))

	svc := NewService(store, nil, logger.Discard(), Config{Location: timeutil.TaipeiTZ, AutoSave: true})
	require.NoError(t, svc.Load(ctx))

	stats, err := svc.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.WordsLearned)

	// The ledger works and the next save replaces the bad payload.
	_, err = svc.Record(ctx, progress.ActivityWord, 1)
	require.NoError(t, err)
	svc2 := NewService(store, nil, logger.Discard(), Config{Location: timeutil.TaipeiTZ})
	require.NoError(t, svc2.Load(ctx))
	reloaded, err := svc2.Stats()
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.WordsLearned)
}

func TestSetWeeklyGoals(t *testing.T) {
	svc, _ := newLoadedService(t)
	ctx := context.Background()

	goals := progress.WeeklyGoals{Words: 20, Quizzes: 5, Feynman: 2, Force: 1}
	require.NoError(t, svc.SetWeeklyGoals(ctx, goals))

	stats, err := svc.Stats()
	require.NoError(t, err)
	assert.Equal(t, goals, stats.WeeklyGoals)

	err = svc.SetWeeklyGoals(ctx, progress.WeeklyGoals{Words: -1, Quizzes: 5, Feynman: 2, Force: 1})
	assert.ErrorIs(t, err, shared.ErrInvalidGoal)
}

func TestResetWeekly(t *testing.T) {
	svc, _ := newLoadedService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, progress.ActivityWord, 5)
	require.NoError(t, err)

	require.NoError(t, svc.ResetWeekly(ctx))
	stats, err := svc.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.WeeklyProgress.Words)
	// Lifetime counters survive the weekly reset.
	assert.Equal(t, 5, stats.WordsLearned)
}

func TestReset_KeepAchievements(t *testing.T) {
	svc, _ := newLoadedService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, progress.ActivityWord, 1)
	require.NoError(t, err)

	require.NoError(t, svc.Reset(ctx, true))
	stats, err := svc.Stats()
	require.NoError(t, err)
	assert.Zero(t, stats.WordsLearned)
	assert.Contains(t, stats.Achievements, "first_word")

	require.NoError(t, svc.Reset(ctx, false))
	stats, err = svc.Stats()
	require.NoError(t, err)
	assert.Empty(t, stats.Achievements)
}

func TestExportImport_RoundTrip(t *testing.T) {
	svc, _ := newLoadedService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, progress.ActivityWord, 7)
	require.NoError(t, err)
	data, err := svc.Export()
	require.NoError(t, err)

	var envelope ExportEnvelope
	require.NoError(t, json.Unmarshal(data, &envelope))
	assert.Equal(t, storage.SchemaVersion, envelope.Version)
	assert.Equal(t, 7, envelope.Stats.WordsLearned)

	// A fresh service imports the snapshot.
	svc2, _ := newLoadedService(t)
	require.NoError(t, svc2.Import(ctx, data))
	stats, err := svc2.Stats()
	require.NoError(t, err)
	assert.Equal(t, 7, stats.WordsLearned)
}

func TestImport_RejectsBadPayloads(t *testing.T) {
	svc, _ := newLoadedService(t)
	ctx := context.Background()

	err := svc.Import(ctx, []byte("{not json"))
	assert.True(t, shared.IsValidation(err))

	bad, marshalErr := json.Marshal(ExportEnvelope{Stats: progress.Stats{WordsLearned: -3}})
	require.NoError(t, marshalErr)
	err = svc.Import(ctx, bad)
	assert.True(t, shared.IsValidation(err))
}

func TestChartData(t *testing.T) {
	svc, _ := newLoadedService(t)
	ctx := context.Background()

	now := time.Date(2026, 3, 4, 15, 0, 0, 0, timeutil.TaipeiTZ)
	svc.SetClock(func() time.Time { return now })
	require.NoError(t, svc.RecordStudyTime(ctx, 300))

	buckets, err := svc.ChartData(7)
	require.NoError(t, err)
	require.Len(t, buckets, 7)
	assert.Equal(t, "2026-03-04", buckets[6].Date)
	assert.Equal(t, 300, buckets[6].StudySeconds)
}

func TestSummary(t *testing.T) {
	svc, _ := newLoadedService(t)
	ctx := context.Background()

	_, err := svc.Record(ctx, progress.ActivityWord, 1)
	require.NoError(t, err)

	summary, err := svc.Summary()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Stats.WordsLearned)
	assert.Len(t, summary.WeeklyReport, 4)
	require.NotEmpty(t, summary.Achievements)
	assert.Equal(t, "first_word", summary.Achievements[0].ID)
}
