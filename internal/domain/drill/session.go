package drill

import (
	"time"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/domain/word"
)

// Phase is one stage of the drill state machine.
type Phase string

const (
	PhaseConfig  Phase = "config"
	PhaseMemory  Phase = "memory"
	PhaseQuiz    Phase = "quiz"
	PhaseResult  Phase = "result"
	PhaseAborted Phase = "aborted"
)

// Answer records one quiz response.
type Answer struct {
	QuestionIndex int  `json:"question_index"`
	Choice        int  `json:"choice"`
	Correct       bool `json:"correct"`
}

// TickEffect describes what a one-second tick caused, so the service
// layer can publish cues and events without the session knowing about
// buses or sinks.
type TickEffect struct {
	Phase            Phase
	SecondsRemaining int
	Warning          bool  // countdown crossed into the warning window
	PhaseChanged     bool  // memory ran out and the quiz began
	Completed        bool  // quiz ran out and the session finished
	From             Phase // set when PhaseChanged or Completed
}

// Session is a single drill run. It is a pure state machine: time only
// advances through Tick, so tests drive it with a fake clock and the
// service layer with a real one. Not safe for concurrent use; the owner
// serializes access.
type Session struct {
	ID        string
	UserID    string
	Config    Config
	Words     []word.Word
	Questions []word.Question

	phase     Phase
	remaining int // seconds left in the current timed phase
	elapsed   int // seconds consumed across memory and quiz
	paused    bool
	current   int // index of the question being asked
	answers   []Answer
	correct   int
	startedAt time.Time
}

// NewSession creates a session in the memory phase. The config must be
// validated and the words already selected; the questions are generated
// once so distractors never shift mid-quiz.
func NewSession(id, userID string, cfg Config, words []word.Word, questions []word.Question, startedAt time.Time) *Session {
	return &Session{
		ID:        id,
		UserID:    userID,
		Config:    cfg,
		Words:     words,
		Questions: questions,
		phase:     PhaseMemory,
		remaining: cfg.EffectiveMemorySeconds(),
		answers:   make([]Answer, 0, len(questions)),
		startedAt: startedAt,
	}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase { return s.phase }

// Remaining returns the seconds left in the current timed phase.
func (s *Session) Remaining() int { return s.remaining }

// Paused reports whether the countdown is frozen.
func (s *Session) Paused() bool { return s.paused }

// CurrentQuestion returns the question awaiting an answer.
func (s *Session) CurrentQuestion() (word.Question, error) {
	if s.phase != PhaseQuiz {
		return word.Question{}, shared.ErrDrillPhase
	}
	if s.current >= len(s.Questions) {
		return word.Question{}, shared.ErrDrillPhase
	}
	return s.Questions[s.current], nil
}

// Answers returns the responses recorded so far.
func (s *Session) Answers() []Answer {
	out := make([]Answer, len(s.answers))
	copy(out, s.answers)
	return out
}

// Correct returns how many answers were right.
func (s *Session) Correct() int { return s.correct }

// Tick advances the countdown by one second. Hidden surfaces pause the
// session, so a paused tick is a no-op.
func (s *Session) Tick() TickEffect {
	effect := TickEffect{Phase: s.phase, SecondsRemaining: s.remaining}

	if s.paused || (s.phase != PhaseMemory && s.phase != PhaseQuiz) {
		return effect
	}

	s.remaining--
	s.elapsed++
	effect.SecondsRemaining = s.remaining

	if s.remaining > 0 {
		effect.Warning = s.remaining <= WarningThresholdSeconds
		return effect
	}

	// Countdown hit zero: memory flows into quiz, quiz into result with
	// whatever was answered so far.
	effect.From = s.phase
	switch s.phase {
	case PhaseMemory:
		s.phase = PhaseQuiz
		s.remaining = s.Config.EffectiveQuizSeconds()
		effect.PhaseChanged = true
		effect.Phase = PhaseQuiz
		effect.SecondsRemaining = s.remaining
	case PhaseQuiz:
		s.phase = PhaseResult
		effect.Completed = true
		effect.Phase = PhaseResult
	}
	return effect
}

// SkipMemorization ends the memory phase early and starts the quiz.
func (s *Session) SkipMemorization() error {
	if s.phase != PhaseMemory {
		return shared.ErrDrillPhase
	}
	s.phase = PhaseQuiz
	s.remaining = s.Config.EffectiveQuizSeconds()
	return nil
}

// SubmitAnswer scores the current question and moves to the next one.
// Answering the final question completes the session.
func (s *Session) SubmitAnswer(choice int) (correct bool, completed bool, err error) {
	if s.phase != PhaseQuiz {
		return false, false, shared.ErrDrillPhase
	}
	if s.current >= len(s.Questions) {
		return false, false, shared.ErrDrillPhase
	}

	q := s.Questions[s.current]
	if choice < 0 || choice >= len(q.Options) {
		return false, false, shared.NewDomainError("drill", "SubmitAnswer", shared.ErrValueOutOfRange, "choice index out of range")
	}

	correct = q.IsCorrect(choice)
	if correct {
		s.correct++
	}
	s.answers = append(s.answers, Answer{QuestionIndex: s.current, Choice: choice, Correct: correct})
	s.current++

	if s.current >= len(s.Questions) {
		s.phase = PhaseResult
		return correct, true, nil
	}
	return correct, false, nil
}

// Pause freezes the countdown. Used when the surface is hidden; the
// remaining time is kept, not forfeited.
func (s *Session) Pause() error {
	if s.phase != PhaseMemory && s.phase != PhaseQuiz {
		return shared.ErrDrillPhase
	}
	s.paused = true
	return nil
}

// Resume continues a paused countdown from the remaining time.
func (s *Session) Resume() error {
	if s.phase != PhaseMemory && s.phase != PhaseQuiz {
		return shared.ErrDrillPhase
	}
	s.paused = false
	return nil
}

// Abort cancels the session. No result is produced and no activity is
// recorded.
func (s *Session) Abort() error {
	if s.phase == PhaseResult || s.phase == PhaseAborted {
		return shared.ErrDrillPhase
	}
	s.phase = PhaseAborted
	return nil
}

// Finished reports whether the session reached a terminal phase.
func (s *Session) Finished() bool {
	return s.phase == PhaseResult || s.phase == PhaseAborted
}
