// Package feynman implements the explain-it-simply practice: learners
// write an explanation of a word, rate themselves, and build a history
// of attempts.
package feynman

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/qiaomu-learn/qiaomu/internal/domain/progress"
	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/domain/word"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

const (
	// MinExplanationChars is the minimum explanation length, counted
	// in runes so CJK text is measured fairly.
	MinExplanationChars = 50

	historyCap = 20
)

// encouragements are rotated into accepted submissions.
var encouragements = []string{
	"優秀的解釋！你真正理解了這個概念。",
	"很好的嘗試！你的表達很清楚。",
	"不錯的解釋！繼續保持這種學習方式。",
	"很棒！你能用簡單的話解釋複雜概念。",
}

// SelfRating is the learner's own three-axis assessment, each 1 to 5.
type SelfRating struct {
	Accuracy     int `json:"accuracy"`
	Completeness int `json:"completeness"`
	Clarity      int `json:"clarity"`
}

// Validate checks every axis is in range.
func (r SelfRating) Validate() error {
	for _, v := range []int{r.Accuracy, r.Completeness, r.Clarity} {
		if v < 1 || v > 5 {
			return shared.ErrInvalidRating
		}
	}
	return nil
}

// Average collapses the three axes into one score.
func (r SelfRating) Average() float64 {
	return float64(r.Accuracy+r.Completeness+r.Clarity) / 3.0
}

// Entry is one accepted explanation.
type Entry struct {
	Word        string     `json:"word"`
	Explanation string     `json:"explanation"`
	Rating      SelfRating `json:"rating"`
	Score       float64    `json:"score"`
	Feedback    string     `json:"feedback"`
	Date        time.Time  `json:"date"`
}

// ActivityRecorder is the slice of the progress service this module
// needs.
type ActivityRecorder interface {
	Record(ctx context.Context, kind progress.ActivityKind, amount int) (progress.RecordResult, error)
}

// Service validates, scores, and archives explanations.
type Service struct {
	mu       sync.Mutex
	history  []Entry // newest first
	catalog  *word.Catalog
	recorder ActivityRecorder
	store    storage.KeyValueStore
	logger   *logger.Logger
	rng      *rand.Rand
	now      func() time.Time
}

// NewService creates a feynman service. Call Load before use.
func NewService(catalog *word.Catalog, recorder ActivityRecorder, store storage.KeyValueStore, log *logger.Logger, seed int64) *Service {
	if log == nil {
		log = logger.Default()
	}
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Service{
		catalog:  catalog,
		recorder: recorder,
		store:    store,
		logger:   log.With(logger.Component("feynman")),
		rng:      rand.New(rand.NewSource(seed)),
		now:      time.Now,
	}
}

// SetClock overrides the time source. Tests use it.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Load restores the explanation history.
func (s *Service) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	var history []Entry
	found, err := storage.LoadJSON(ctx, s.store, storage.KeyFeynman, &history, s.logger)
	if err != nil {
		return shared.WrapError("feynman", "Load", shared.ErrStorage, "load history", err)
	}
	if !found {
		return nil
	}

	s.mu.Lock()
	if len(history) > historyCap {
		history = history[:historyCap]
	}
	s.history = history
	s.mu.Unlock()
	return nil
}

// PickWord draws a random word to explain.
func (s *Service) PickWord() (word.Word, error) {
	words, err := s.catalog.PickRandom(1, word.DifficultyNormal)
	if err != nil {
		return word.Word{}, err
	}
	return words[0], nil
}

// Hint returns progressive writing feedback for a draft. Empty when
// the draft is too short to say anything useful about.
func Hint(explanation string) string {
	switch length := utf8.RuneCountInString(explanation); {
	case length > 100:
		return "很好！你的解釋很詳細。記住要用簡單的語言,就像在教小孩一樣。"
	case length > 50:
		return "不錯的開始！可以再詳細一些,增加一些例子會更好。"
	case length > 20:
		return "繼續加油！試著用更多的詞彙來解釋這個概念。"
	default:
		return ""
	}
}

// Submit validates and archives an explanation, counting it as a
// feynman activity.
func (s *Service) Submit(ctx context.Context, wordText, explanation string, rating SelfRating) (Entry, error) {
	explanation = strings.TrimSpace(explanation)
	if utf8.RuneCountInString(explanation) < MinExplanationChars {
		return Entry{}, shared.ErrExplanationTooShort
	}
	if err := rating.Validate(); err != nil {
		return Entry{}, err
	}
	if _, err := s.catalog.Find(wordText); err != nil {
		return Entry{}, err
	}

	s.mu.Lock()
	entry := Entry{
		Word:        wordText,
		Explanation: explanation,
		Rating:      rating,
		Score:       rating.Average(),
		Feedback:    encouragements[s.rng.Intn(len(encouragements))],
		Date:        s.now(),
	}
	s.history = append([]Entry{entry}, s.history...)
	if len(s.history) > historyCap {
		s.history = s.history[:historyCap]
	}
	s.mu.Unlock()

	s.persist(ctx)

	if s.recorder != nil {
		if _, err := s.recorder.Record(ctx, progress.ActivityFeynman, 1); err != nil {
			s.logger.Error("record feynman activity failed", logger.Err(err))
		}
	}
	s.logger.Info("explanation accepted",
		logger.Word(wordText),
		logger.Int("chars", utf8.RuneCountInString(explanation)),
	)
	return entry, nil
}

// History returns past explanations, newest first.
func (s *Service) History() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Entry, len(s.history))
	copy(out, s.history)
	return out
}

// AverageScore is the mean self-rating across the history, zero when
// empty.
func (s *Service) AverageScore() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return 0
	}
	var sum float64
	for _, e := range s.history {
		sum += e.Score
	}
	return sum / float64(len(s.history))
}

func (s *Service) persist(ctx context.Context) {
	if s.store == nil {
		return
	}
	s.mu.Lock()
	history := make([]Entry, len(s.history))
	copy(history, s.history)
	s.mu.Unlock()

	if err := storage.SaveJSON(ctx, s.store, storage.KeyFeynman, history); err != nil {
		s.logger.Error("persist feynman history failed", logger.Err(err))
	}
}
