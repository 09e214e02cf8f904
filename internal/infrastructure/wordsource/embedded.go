// Package wordsource loads vocabulary into the word catalog. The
// built-in set ships embedded in the binary; larger sets come in
// through the Excel importer.
package wordsource

import (
	_ "embed"

	"gopkg.in/yaml.v3"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/domain/word"
)

//go:embed catalog.yaml
var embeddedCatalog []byte

type catalogFile struct {
	Words []word.Word `yaml:"words"`
}

// EmbeddedWords returns the built-in vocabulary set.
func EmbeddedWords() ([]word.Word, error) {
	var file catalogFile
	if err := yaml.Unmarshal(embeddedCatalog, &file); err != nil {
		return nil, shared.WrapError("wordsource", "EmbeddedWords", shared.ErrConfiguration, "parse embedded catalog", err)
	}
	if len(file.Words) == 0 {
		return nil, shared.NewDomainError("wordsource", "EmbeddedWords", shared.ErrEmptyCatalog, "embedded catalog has no words")
	}
	for _, w := range file.Words {
		if err := w.Validate(); err != nil {
			return nil, shared.WrapError("wordsource", "EmbeddedWords", shared.ErrConfiguration, "invalid embedded word "+w.Text, err)
		}
	}
	return file.Words, nil
}

// EmbeddedCatalog builds a catalog from the built-in set.
func EmbeddedCatalog(seed int64) (*word.Catalog, error) {
	words, err := EmbeddedWords()
	if err != nil {
		return nil, err
	}
	return word.NewCatalog(words, seed)
}
