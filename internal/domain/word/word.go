// Package word contains the vocabulary domain: words, the catalog they
// live in, and multiple-choice question generation.
package word

import (
	"strings"
	"time"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
)

// Difficulty buckets words by spelling length. The boundaries match the
// force-drill filters the learners already know.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyNormal Difficulty = "normal"
	DifficultyHard   Difficulty = "hard"
)

// easy words have at most 6 letters, hard words at least 8.
const (
	easyMaxLen = 6
	hardMinLen = 8
)

// ParseDifficulty parses a difficulty string, defaulting to normal.
func ParseDifficulty(s string) (Difficulty, error) {
	switch Difficulty(strings.ToLower(strings.TrimSpace(s))) {
	case DifficultyEasy:
		return DifficultyEasy, nil
	case DifficultyNormal, "":
		return DifficultyNormal, nil
	case DifficultyHard:
		return DifficultyHard, nil
	default:
		return "", shared.NewDomainError("word", "ParseDifficulty", shared.ErrInvalidInput, "difficulty must be easy, normal or hard")
	}
}

// Word is a single vocabulary entry.
type Word struct {
	Text       string    `json:"word" db:"word" yaml:"word"`
	Phonetic   string    `json:"phonetic,omitempty" db:"phonetic" yaml:"phonetic,omitempty"`
	Definition string    `json:"definition" db:"definition" yaml:"definition"`
	Etymology  string    `json:"etymology,omitempty" db:"etymology" yaml:"etymology,omitempty"`
	Example    string    `json:"example,omitempty" db:"example" yaml:"example,omitempty"`
	Tags       []string  `json:"tags,omitempty" db:"-" yaml:"tags,omitempty"`
	AddedAt    time.Time `json:"added_at,omitempty" db:"added_at" yaml:"-"`
}

// Validate checks that the word can enter the catalog.
func (w Word) Validate() error {
	if strings.TrimSpace(w.Text) == "" {
		return shared.NewDomainError("word", "Validate", shared.ErrEmptyValue, "word text is required")
	}
	if strings.TrimSpace(w.Definition) == "" {
		return shared.NewDomainError("word", "Validate", shared.ErrEmptyValue, "word definition is required")
	}
	return nil
}

// Difficulty classifies the word by its spelling length.
func (w Word) Difficulty() Difficulty {
	n := len([]rune(w.Text))
	switch {
	case n <= easyMaxLen:
		return DifficultyEasy
	case n >= hardMinLen:
		return DifficultyHard
	default:
		return DifficultyNormal
	}
}

// MatchesDifficulty reports whether the word belongs to the requested
// bucket. Normal accepts every word: it is the unfiltered setting.
func (w Word) MatchesDifficulty(d Difficulty) bool {
	if d == DifficultyNormal {
		return true
	}
	return w.Difficulty() == d
}

// HasTag reports whether the word carries the given tag.
func (w Word) HasTag(tag string) bool {
	for _, t := range w.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}
