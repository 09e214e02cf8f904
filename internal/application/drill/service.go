// Package drill runs force-drill sessions: selecting words, driving
// the countdown, scoring, and feeding results back into the progress
// ledger.
package drill

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qiaomu-learn/qiaomu/internal/domain/drill"
	"github.com/qiaomu-learn/qiaomu/internal/domain/progress"
	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/domain/word"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DEPENDENCIES
// ══════════════════════════════════════════════════════════════════════════════

// ActivityRecorder is the slice of the progress service the drill
// needs: counting completed drills and study time.
type ActivityRecorder interface {
	Record(ctx context.Context, kind progress.ActivityKind, amount int) (progress.RecordResult, error)
	RecordStudyTime(ctx context.Context, seconds int) error
}

// Service manages active drill sessions. One learner can run one
// session at a time; starting a new one aborts the previous.
type Service struct {
	mu       sync.Mutex
	sessions map[string]*managedSession

	catalog   *word.Catalog
	recorder  ActivityRecorder
	publisher shared.EventPublisher
	clock     Clock
	logger    *logger.Logger
}

type managedSession struct {
	session *drill.Session
	cancel  context.CancelFunc
}

// NewService creates a drill service.
func NewService(catalog *word.Catalog, recorder ActivityRecorder, publisher shared.EventPublisher, clock Clock, log *logger.Logger) *Service {
	if clock == nil {
		clock = RealClock{}
	}
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		sessions:  make(map[string]*managedSession),
		catalog:   catalog,
		recorder:  recorder,
		publisher: publisher,
		clock:     clock,
		logger:    log.With(logger.Component("drill")),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// StartResult describes a freshly started session.
type StartResult struct {
	SessionID        string      `json:"session_id"`
	Words            []word.Word `json:"words"`
	MemorySeconds    int         `json:"memory_seconds"`
	QuizSeconds      int         `json:"quiz_seconds"`
	QuestionCount    int         `json:"question_count"`
	SecondsRemaining int         `json:"seconds_remaining"`
}

// Start validates the config, draws words, builds questions, and kicks
// off the countdown. Any running session of the same user is aborted
// first.
func (s *Service) Start(ctx context.Context, userID string, cfg drill.Config) (*StartResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	words, err := s.catalog.PickRandom(cfg.WordCount, cfg.Difficulty)
	if err != nil {
		return nil, err
	}
	questions, err := s.catalog.Questions(words)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, m := range s.sessions {
		if m.session.UserID == userID {
			s.abortLocked(id, m)
		}
	}

	id := uuid.NewString()
	session := drill.NewSession(id, userID, cfg, words, questions, s.clock.Now())
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.sessions[id] = &managedSession{session: session, cancel: cancel}

	go s.run(runCtx, id)

	s.logger.Info("drill started",
		logger.SessionID(id),
		logger.UserID(userID),
		logger.Int("word_count", len(words)),
		logger.String("difficulty", string(cfg.Difficulty)),
	)
	s.publish(shared.NewDrillPhaseChangedEvent(id, "", string(drill.PhaseMemory)))

	return &StartResult{
		SessionID:        id,
		Words:            words,
		MemorySeconds:    cfg.EffectiveMemorySeconds(),
		QuizSeconds:      cfg.EffectiveQuizSeconds(),
		QuestionCount:    len(questions),
		SecondsRemaining: session.Remaining(),
	}, nil
}

// run drives the countdown until the session leaves its timed phases.
func (s *Service) run(ctx context.Context, id string) {
	ticker := s.clock.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C():
			done, err := s.Tick(ctx, id)
			if err != nil || done {
				return
			}
		}
	}
}

// Tick advances the session one second and publishes countdown events.
// The run loop calls it every second; tests call it directly.
func (s *Service) Tick(ctx context.Context, id string) (done bool, err error) {
	s.mu.Lock()
	m, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return true, shared.ErrDrillNoSession
	}

	effect := m.session.Tick()
	var result *drill.Result
	if effect.Completed {
		r, rerr := m.session.Result()
		if rerr == nil {
			result = &r
		}
		m.cancel()
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if effect.Warning {
		s.publish(shared.NewDrillTimeWarningEvent(id, string(effect.Phase), effect.SecondsRemaining))
	}
	if effect.PhaseChanged {
		s.publish(shared.NewDrillPhaseChangedEvent(id, string(effect.From), string(effect.Phase)))
	}
	if result != nil {
		s.finalize(ctx, id, *result)
		return true, nil
	}
	return false, nil
}

// finalize records the outcome in the progress ledger.
func (s *Service) finalize(ctx context.Context, id string, result drill.Result) {
	s.publish(shared.NewDrillCompletedEvent(id, result.Correct, result.Answered, result.Overall, string(result.Grade)))
	s.logger.Info("drill completed",
		logger.SessionID(id),
		logger.Int("correct", result.Correct),
		logger.Int("overall", result.Overall),
		logger.String("grade", string(result.Grade)),
	)

	if s.recorder == nil {
		return
	}
	if _, err := s.recorder.Record(ctx, progress.ActivityForce, 1); err != nil {
		s.logger.Error("record drill completion failed", logger.Err(err))
	}
	if result.ElapsedSeconds > 0 {
		if err := s.recorder.RecordStudyTime(ctx, result.ElapsedSeconds); err != nil {
			s.logger.Error("record drill study time failed", logger.Err(err))
		}
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// COMMANDS
// ══════════════════════════════════════════════════════════════════════════════

// SkipMemorization jumps straight to the quiz phase.
func (s *Service) SkipMemorization(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.sessions[id]
	if !ok {
		return shared.ErrDrillNoSession
	}
	if err := m.session.SkipMemorization(); err != nil {
		return err
	}
	s.publish(shared.NewDrillPhaseChangedEvent(id, string(drill.PhaseMemory), string(drill.PhaseQuiz)))
	return nil
}

// AnswerResult reports the outcome of one submitted answer.
type AnswerResult struct {
	Correct   bool          `json:"correct"`
	Completed bool          `json:"completed"`
	Result    *drill.Result `json:"result,omitempty"`
}

// SubmitAnswer records the learner's choice for the current question.
// The final answer finishes the session.
func (s *Service) SubmitAnswer(ctx context.Context, id string, choice int) (*AnswerResult, error) {
	s.mu.Lock()
	m, ok := s.sessions[id]
	if !ok {
		s.mu.Unlock()
		return nil, shared.ErrDrillNoSession
	}

	correct, completed, err := m.session.SubmitAnswer(choice)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}

	var result *drill.Result
	if completed {
		r, rerr := m.session.Result()
		if rerr == nil {
			result = &r
		}
		m.cancel()
		delete(s.sessions, id)
	}
	s.mu.Unlock()

	if completed {
		s.publish(shared.NewDrillPhaseChangedEvent(id, string(drill.PhaseQuiz), string(drill.PhaseResult)))
		if result != nil {
			s.finalize(ctx, id, *result)
		}
	}
	return &AnswerResult{Correct: correct, Completed: completed, Result: result}, nil
}

// Pause freezes the countdown, for example when the surface is hidden.
func (s *Service) Pause(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.sessions[id]
	if !ok {
		return shared.ErrDrillNoSession
	}
	return m.session.Pause()
}

// Resume unfreezes the countdown with the remaining time intact.
func (s *Service) Resume(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.sessions[id]
	if !ok {
		return shared.ErrDrillNoSession
	}
	return m.session.Resume()
}

// Abort cancels a running session. Nothing is scored or recorded.
func (s *Service) Abort(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.sessions[id]
	if !ok {
		return shared.ErrDrillNoSession
	}
	s.abortLocked(id, m)
	return nil
}

func (s *Service) abortLocked(id string, m *managedSession) {
	phase := m.session.Phase()
	_ = m.session.Abort()
	m.cancel()
	delete(s.sessions, id)
	s.logger.Info("drill aborted", logger.SessionID(id))
	s.publish(shared.NewDrillAbortedEvent(id, string(phase)))
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot is the observable state of a running session.
type Snapshot struct {
	SessionID        string        `json:"session_id"`
	Phase            drill.Phase   `json:"phase"`
	SecondsRemaining int           `json:"seconds_remaining"`
	Paused           bool          `json:"paused"`
	QuestionIndex    int           `json:"question_index"`
	Question         word.Question `json:"question,omitempty"`
	Words            []word.Word   `json:"words,omitempty"`
}

// State returns the current state of a session. Words are only exposed
// during memorization, the current question only during the quiz.
func (s *Service) State(id string) (*Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.sessions[id]
	if !ok {
		return nil, shared.ErrDrillNoSession
	}
	session := m.session

	snap := &Snapshot{
		SessionID:        id,
		Phase:            session.Phase(),
		SecondsRemaining: session.Remaining(),
		Paused:           session.Paused(),
		QuestionIndex:    len(session.Answers()),
	}
	switch session.Phase() {
	case drill.PhaseMemory:
		snap.Words = session.Words
	case drill.PhaseQuiz:
		q, err := session.CurrentQuestion()
		if err != nil {
			return nil, err
		}
		snap.Question = q
	}
	return snap, nil
}

// ActiveSessions returns the IDs of all running sessions.
func (s *Service) ActiveSessions() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (s *Service) publish(event shared.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(event); err != nil {
		s.logger.Error(fmt.Sprintf("publish %s failed", event.EventType()), logger.Err(err))
	}
}
