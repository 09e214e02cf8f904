package word

import (
	"math/rand"
	"strings"
	"sync"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
)

// Catalog is the in-memory word pool the learning modules draw from.
// It is safe for concurrent use.
type Catalog struct {
	mu    sync.RWMutex
	words []Word
	index map[string]int // lowercased text -> position in words
	rng   *rand.Rand
}

// NewCatalog builds a catalog from the given words. Duplicates (by text,
// case-insensitive) are rejected. The seed drives random selection so
// tests can pin it.
func NewCatalog(words []Word, seed int64) (*Catalog, error) {
	c := &Catalog{
		words: make([]Word, 0, len(words)),
		index: make(map[string]int, len(words)),
		rng:   rand.New(rand.NewSource(seed)),
	}
	for _, w := range words {
		if err := c.add(w); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *Catalog) add(w Word) error {
	if err := w.Validate(); err != nil {
		return err
	}
	key := strings.ToLower(w.Text)
	if _, ok := c.index[key]; ok {
		return shared.WrapError("word", "Add", shared.ErrAlreadyExists, "word already in catalog", nil)
	}
	c.index[key] = len(c.words)
	c.words = append(c.words, w)
	return nil
}

// Add inserts a word into the catalog.
func (c *Catalog) Add(w Word) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.add(w)
}

// AddAll inserts words, skipping duplicates, and returns how many landed.
func (c *Catalog) AddAll(words []Word) (added int, skipped int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, w := range words {
		if err := c.add(w); err != nil {
			skipped++
			continue
		}
		added++
	}
	return added, skipped
}

// Len returns the number of words in the catalog.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.words)
}

// All returns a copy of every word.
func (c *Catalog) All() []Word {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Word, len(c.words))
	copy(out, c.words)
	return out
}

// Find looks a word up by text, case-insensitive.
func (c *Catalog) Find(text string) (Word, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if i, ok := c.index[strings.ToLower(text)]; ok {
		return c.words[i], nil
	}
	return Word{}, shared.NewDomainError("word", "Find", shared.ErrNotFound, "word not in catalog: "+text)
}

// ByDifficulty returns the words matching the given bucket.
func (c *Catalog) ByDifficulty(d Difficulty) []Word {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Word, 0, len(c.words))
	for _, w := range c.words {
		if w.MatchesDifficulty(d) {
			out = append(out, w)
		}
	}
	return out
}

// PickRandom returns n distinct words drawn uniformly from the pool.
// When the difficulty bucket holds fewer than n words the selection
// falls back to the whole catalog; only a catalog that is itself too
// small is an error.
func (c *Catalog) PickRandom(n int, d Difficulty) ([]Word, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	pool := make([]Word, 0, len(c.words))
	for _, w := range c.words {
		if w.MatchesDifficulty(d) {
			pool = append(pool, w)
		}
	}
	if len(pool) < n {
		pool = append(pool[:0:0], c.words...)
	}
	if len(pool) < n {
		return nil, shared.NewDomainError("word", "PickRandom", shared.ErrConfiguration, "word catalog smaller than requested selection")
	}

	c.rng.Shuffle(len(pool), func(i, j int) {
		pool[i], pool[j] = pool[j], pool[i]
	})
	return pool[:n], nil
}

// Shuffle randomizes a copy of the given words using the catalog rng.
func (c *Catalog) Shuffle(words []Word) []Word {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Word, len(words))
	copy(out, words)
	c.rng.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	return out
}
