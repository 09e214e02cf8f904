// Package words is the catalog-facing surface: browsing, learning,
// and bulk import.
package words

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/qiaomu-learn/qiaomu/internal/domain/progress"
	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/domain/word"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/wordsource"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

// ActivityRecorder is the slice of the progress service this module
// needs.
type ActivityRecorder interface {
	Record(ctx context.Context, kind progress.ActivityKind, amount int) (progress.RecordResult, error)
}

// Service exposes the catalog and counts learned words.
type Service struct {
	mu        sync.Mutex
	catalog   *word.Catalog
	recorder  ActivityRecorder
	publisher shared.EventPublisher
	logger    *logger.Logger
}

// NewService creates a words service over an existing catalog.
func NewService(catalog *word.Catalog, recorder ActivityRecorder, publisher shared.EventPublisher, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		catalog:   catalog,
		recorder:  recorder,
		publisher: publisher,
		logger:    log.With(logger.Component("words")),
	}
}

// List returns the catalog, optionally filtered by difficulty.
func (s *Service) List(difficulty word.Difficulty) []word.Word {
	if difficulty == "" || difficulty == word.DifficultyNormal {
		return s.catalog.All()
	}
	return s.catalog.ByDifficulty(difficulty)
}

// Get looks a word up by text.
func (s *Service) Get(text string) (word.Word, error) {
	return s.catalog.Find(text)
}

// Learn marks a word as studied and counts it in the ledger.
func (s *Service) Learn(ctx context.Context, text string) (progress.RecordResult, error) {
	w, err := s.catalog.Find(text)
	if err != nil {
		return progress.RecordResult{}, err
	}

	result, err := s.recorder.Record(ctx, progress.ActivityWord, 1)
	if err != nil {
		return progress.RecordResult{}, err
	}
	s.logger.Debug("word learned",
		logger.Word(w.Text),
		logger.Int("total", result.NewTotal),
	)
	return result, nil
}

// Import loads words from a spreadsheet into the catalog.
func (s *Service) Import(cfg wordsource.ImportConfig) (*wordsource.ImportResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ext := strings.ToLower(filepath.Ext(cfg.FilePath))
	if ext != ".xlsx" && ext != ".xlsm" {
		return nil, shared.NewDomainError("words", "Import", shared.ErrInvalidFormat, "unsupported file type: "+ext)
	}

	result, err := wordsource.ImportWords(s.catalog, cfg)
	if err != nil {
		return nil, err
	}

	s.logger.Info("words imported",
		logger.String("file", filepath.Base(cfg.FilePath)),
		logger.Int("added", result.Added),
		logger.Int("skipped", result.Skipped),
	)
	s.publish(shared.NewWordsImportedEvent(filepath.Base(cfg.FilePath), result.Added, result.Skipped))
	return result, nil
}

func (s *Service) publish(event shared.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(event); err != nil {
		s.logger.Error(fmt.Sprintf("publish %s failed", event.EventType()), logger.Err(err))
	}
}
