package word

import (
	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
)

// distractorCount is how many wrong options accompany the right one.
const distractorCount = 3

// QuestionKind is the direction of a multiple-choice item.
type QuestionKind string

const (
	// PickDefinition shows the word and offers definitions.
	PickDefinition QuestionKind = "definition"
	// PickWord shows the definition and offers words.
	PickWord QuestionKind = "word"
)

// Question is a single multiple-choice item. Word always names the
// target; Prompt and Options depend on the kind.
type Question struct {
	Kind         QuestionKind `json:"kind"`
	Word         string       `json:"word"`
	Prompt       string       `json:"prompt"`
	Phonetic     string       `json:"phonetic,omitempty"`
	Options      []string     `json:"options"`
	CorrectIndex int          `json:"correct_index"`
}

// IsCorrect reports whether the chosen option index is the right one.
func (q Question) IsCorrect(choice int) bool {
	return choice == q.CorrectIndex
}

// Question builds a multiple-choice question for the target word. The
// direction is drawn uniformly: either the word is shown and the
// learner picks among definitions, or the definition is shown and the
// learner picks among words. Distractors come from the rest of the
// catalog; the options are shuffled and the correct index tracked.
func (c *Catalog) Question(target Word) (Question, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.question(target)
}

func (c *Catalog) question(target Word) (Question, error) {
	kind := PickDefinition
	if c.rng.Intn(2) == 1 {
		kind = PickWord
	}

	q := Question{
		Kind:     kind,
		Word:     target.Text,
		Phonetic: target.Phonetic,
	}

	distractors := make([]string, 0, len(c.words))
	for _, w := range c.words {
		if w.Text == target.Text {
			continue
		}
		if kind == PickDefinition {
			distractors = append(distractors, w.Definition)
		} else {
			distractors = append(distractors, w.Text)
		}
	}
	if len(distractors) < distractorCount {
		return Question{}, shared.NewDomainError("word", "Question", shared.ErrConfiguration, "not enough words to build distractors")
	}

	c.rng.Shuffle(len(distractors), func(i, j int) {
		distractors[i], distractors[j] = distractors[j], distractors[i]
	})

	options := make([]string, 0, distractorCount+1)
	if kind == PickDefinition {
		q.Prompt = target.Text
		options = append(options, target.Definition)
	} else {
		q.Prompt = target.Definition
		options = append(options, target.Text)
	}
	options = append(options, distractors[:distractorCount]...)

	correct := 0
	c.rng.Shuffle(len(options), func(i, j int) {
		options[i], options[j] = options[j], options[i]
		switch correct {
		case i:
			correct = j
		case j:
			correct = i
		}
	})

	q.Options = options
	q.CorrectIndex = correct
	return q, nil
}

// Questions builds one question per target word and shuffles the
// result, so a quiz never asks in the order the words were studied.
func (c *Catalog) Questions(targets []Word) ([]Question, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	questions := make([]Question, 0, len(targets))
	for _, target := range targets {
		q, err := c.question(target)
		if err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	c.rng.Shuffle(len(questions), func(i, j int) {
		questions[i], questions[j] = questions[j], questions[i]
	})
	return questions, nil
}
