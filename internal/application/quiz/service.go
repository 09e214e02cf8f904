// Package quiz runs untimed multiple-choice quizzes drawn from the
// word catalog. The timed variant lives in the drill package.
package quiz

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qiaomu-learn/qiaomu/internal/domain/progress"
	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/domain/word"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

const (
	// DefaultQuestionCount matches the quiz surface's default round.
	DefaultQuestionCount = 5

	MinQuestionCount = 1
	MaxQuestionCount = 20
)

// ActivityRecorder is the slice of the progress service this module
// needs.
type ActivityRecorder interface {
	Record(ctx context.Context, kind progress.ActivityKind, amount int) (progress.RecordResult, error)
}

// Quiz is a running round.
type Quiz struct {
	ID        string          `json:"id"`
	Questions []word.Question `json:"questions"`
	StartedAt time.Time       `json:"started_at"`

	answers []int // -1 until answered
	correct int
}

// Answered counts submitted answers.
func (q *Quiz) Answered() int {
	n := 0
	for _, a := range q.answers {
		if a >= 0 {
			n++
		}
	}
	return n
}

// Result is a finished round's outcome.
type Result struct {
	QuizID    string  `json:"quiz_id"`
	Correct   int     `json:"correct"`
	Total     int     `json:"total"`
	Percent   int     `json:"percent"`
	Duration  float64 `json:"duration_seconds"`
	Completed bool    `json:"completed"`
}

// Service manages quiz rounds.
type Service struct {
	mu       sync.Mutex
	rounds   map[string]*Quiz
	catalog  *word.Catalog
	recorder ActivityRecorder
	logger   *logger.Logger
	now      func() time.Time
}

// NewService creates a quiz service.
func NewService(catalog *word.Catalog, recorder ActivityRecorder, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		rounds:   make(map[string]*Quiz),
		catalog:  catalog,
		recorder: recorder,
		logger:   log.With(logger.Component("quiz")),
		now:      time.Now,
	}
}

// SetClock overrides the time source. Tests use it.
func (s *Service) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Start draws questions and opens a round.
func (s *Service) Start(count int, difficulty word.Difficulty) (*Quiz, error) {
	if count == 0 {
		count = DefaultQuestionCount
	}
	if count < MinQuestionCount || count > MaxQuestionCount {
		return nil, shared.NewDomainError("quiz", "Start", shared.ErrValueOutOfRange, "question count out of range")
	}

	words, err := s.catalog.PickRandom(count, difficulty)
	if err != nil {
		return nil, err
	}
	questions, err := s.catalog.Questions(words)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	quiz := &Quiz{
		ID:        uuid.NewString(),
		Questions: questions,
		StartedAt: s.now(),
		answers:   make([]int, len(questions)),
	}
	for i := range quiz.answers {
		quiz.answers[i] = -1
	}
	s.rounds[quiz.ID] = quiz

	s.logger.Debug("quiz started",
		logger.String("quiz_id", quiz.ID),
		logger.Int("questions", len(questions)),
	)
	return quiz, nil
}

// Answer submits a choice for one question. Re-answering a question is
// rejected.
func (s *Service) Answer(quizID string, questionIndex, choice int) (correct bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	quiz, ok := s.rounds[quizID]
	if !ok {
		return false, shared.NewDomainError("quiz", "Answer", shared.ErrNotFound, "no such quiz: "+quizID)
	}
	if questionIndex < 0 || questionIndex >= len(quiz.Questions) {
		return false, shared.NewDomainError("quiz", "Answer", shared.ErrValueOutOfRange, "question index out of range")
	}
	if quiz.answers[questionIndex] >= 0 {
		return false, shared.NewDomainError("quiz", "Answer", shared.ErrInvalidState, "question already answered")
	}
	question := quiz.Questions[questionIndex]
	if choice < 0 || choice >= len(question.Options) {
		return false, shared.NewDomainError("quiz", "Answer", shared.ErrValueOutOfRange, "choice out of range")
	}

	quiz.answers[questionIndex] = choice
	if question.IsCorrect(choice) {
		quiz.correct++
		return true, nil
	}
	return false, nil
}

// Finish closes the round, scores it, and counts the quiz activity.
// Unanswered questions score as wrong.
func (s *Service) Finish(ctx context.Context, quizID string) (*Result, error) {
	s.mu.Lock()
	quiz, ok := s.rounds[quizID]
	if !ok {
		s.mu.Unlock()
		return nil, shared.NewDomainError("quiz", "Finish", shared.ErrNotFound, "no such quiz: "+quizID)
	}
	delete(s.rounds, quizID)
	total := len(quiz.Questions)
	correct := quiz.correct
	completed := quiz.Answered() == total
	duration := s.now().Sub(quiz.StartedAt).Seconds()
	s.mu.Unlock()

	percent := 0
	if total > 0 {
		percent = correct * 100 / total
	}
	result := &Result{
		QuizID:    quizID,
		Correct:   correct,
		Total:     total,
		Percent:   percent,
		Duration:  duration,
		Completed: completed,
	}

	if s.recorder != nil {
		if _, err := s.recorder.Record(ctx, progress.ActivityQuiz, 1); err != nil {
			s.logger.Error("record quiz activity failed", logger.Err(err))
		}
	}
	s.logger.Info("quiz finished",
		logger.String("quiz_id", quizID),
		logger.Int("correct", correct),
		logger.Int("percent", percent),
	)
	return result, nil
}
