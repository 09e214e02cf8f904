// Package drill implements the force-mode drill: a timed memorize-then-quiz
// challenge driven by a countdown state machine.
package drill

import (
	"math"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/domain/word"
)

// Config bounds. Timers move in fixed steps so the UI can render them
// as sliders.
const (
	MinMemorySeconds  = 30
	MaxMemorySeconds  = 120
	MemorySecondsStep = 10

	MinQuizSeconds  = 15
	MaxQuizSeconds  = 60
	QuizSecondsStep = 5

	MinWordCount = 3
	MaxWordCount = 10

	// WarningThresholdSeconds is when the countdown starts emitting
	// time warnings.
	WarningThresholdSeconds = 10
)

// Difficulty multipliers applied to both timers. Hard shortens, easy
// lengthens; the result is floored to whole seconds (60s hard -> 42s).
const (
	easyMultiplier   = 1.5
	normalMultiplier = 1.0
	hardMultiplier   = 0.7
)

// Config is a validated drill setup.
type Config struct {
	MemorySeconds int             `json:"memory_seconds"`
	QuizSeconds   int             `json:"quiz_seconds"`
	WordCount     int             `json:"word_count"`
	TargetCorrect int             `json:"target_correct"`
	Difficulty    word.Difficulty `json:"difficulty"`
}

// DefaultConfig returns the stock drill setup.
func DefaultConfig() Config {
	return Config{
		MemorySeconds: 60,
		QuizSeconds:   30,
		WordCount:     5,
		TargetCorrect: 4,
		Difficulty:    word.DifficultyNormal,
	}
}

// Validate checks every range before a session may start.
func (c Config) Validate() error {
	if c.MemorySeconds < MinMemorySeconds || c.MemorySeconds > MaxMemorySeconds || c.MemorySeconds%MemorySecondsStep != 0 {
		return shared.NewDomainError("drill", "Configure", shared.ErrValueOutOfRange, "memory time must be 30-120 seconds in steps of 10")
	}
	if c.QuizSeconds < MinQuizSeconds || c.QuizSeconds > MaxQuizSeconds || c.QuizSeconds%QuizSecondsStep != 0 {
		return shared.NewDomainError("drill", "Configure", shared.ErrValueOutOfRange, "quiz time must be 15-60 seconds in steps of 5")
	}
	if c.WordCount < MinWordCount || c.WordCount > MaxWordCount {
		return shared.NewDomainError("drill", "Configure", shared.ErrValueOutOfRange, "word count must be 3-10")
	}
	if c.TargetCorrect < 1 || c.TargetCorrect > c.WordCount {
		return shared.NewDomainError("drill", "Configure", shared.ErrValueOutOfRange, "target must be between 1 and the word count")
	}
	switch c.Difficulty {
	case word.DifficultyEasy, word.DifficultyNormal, word.DifficultyHard:
	default:
		return shared.NewDomainError("drill", "Configure", shared.ErrInvalidInput, "difficulty must be easy, normal or hard")
	}
	return nil
}

// multiplier returns the timer multiplier for the difficulty.
func (c Config) multiplier() float64 {
	switch c.Difficulty {
	case word.DifficultyEasy:
		return easyMultiplier
	case word.DifficultyHard:
		return hardMultiplier
	default:
		return normalMultiplier
	}
}

// EffectiveMemorySeconds is the memorize countdown after the difficulty
// multiplier, floored to whole seconds.
func (c Config) EffectiveMemorySeconds() int {
	return int(math.Floor(float64(c.MemorySeconds) * c.multiplier()))
}

// EffectiveQuizSeconds is the quiz countdown after the difficulty
// multiplier, floored to whole seconds.
func (c Config) EffectiveQuizSeconds() int {
	return int(math.Floor(float64(c.QuizSeconds) * c.multiplier()))
}

// TotalAllowedSeconds is the full time budget of a session.
func (c Config) TotalAllowedSeconds() int {
	return c.EffectiveMemorySeconds() + c.EffectiveQuizSeconds()
}
