// Package settings stores user preferences with merge-style updates:
// a partial update only touches the fields it names.
package settings

import (
	"context"
	"sync"

	"github.com/qiaomu-learn/qiaomu/internal/domain/shared"
	"github.com/qiaomu-learn/qiaomu/internal/infrastructure/storage"
	"github.com/qiaomu-learn/qiaomu/pkg/logger"
)

// Settings are the user-facing preferences.
type Settings struct {
	Theme          string `json:"theme"`
	Language       string `json:"language"`
	Notifications  bool   `json:"notifications"`
	SoundEffects   bool   `json:"sound_effects"`
	StudyReminders bool   `json:"study_reminders"`
}

// Defaults returns the out-of-the-box preferences.
func Defaults() Settings {
	return Settings{
		Theme:          "auto",
		Language:       "zh-TW",
		Notifications:  true,
		SoundEffects:   true,
		StudyReminders: true,
	}
}

// validThemes are the accepted theme values.
var validThemes = map[string]bool{"auto": true, "light": true, "dark": true}

// Update is a partial change. Nil fields are left untouched.
type Update struct {
	Theme          *string `json:"theme,omitempty"`
	Language       *string `json:"language,omitempty"`
	Notifications  *bool   `json:"notifications,omitempty"`
	SoundEffects   *bool   `json:"sound_effects,omitempty"`
	StudyReminders *bool   `json:"study_reminders,omitempty"`
}

// Service owns the persisted preferences.
type Service struct {
	mu       sync.Mutex
	settings Settings
	store    storage.KeyValueStore
	logger   *logger.Logger
}

// NewService creates a settings service with defaults in place. Call
// Load to pick up persisted values.
func NewService(store storage.KeyValueStore, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Default()
	}
	return &Service{
		settings: Defaults(),
		store:    store,
		logger:   log.With(logger.Component("settings")),
	}
}

// Load reads persisted preferences, merging them onto defaults.
func (s *Service) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	settings := Defaults()
	if _, err := storage.LoadJSON(ctx, s.store, storage.KeySettings, &settings, s.logger); err != nil {
		return shared.WrapError("settings", "Load", shared.ErrStorage, "load settings", err)
	}
	s.settings = settings
	return nil
}

// Get returns the current preferences.
func (s *Service) Get() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Apply merges a partial update and persists the result.
func (s *Service) Apply(ctx context.Context, update Update) (Settings, error) {
	s.mu.Lock()

	if update.Theme != nil {
		if !validThemes[*update.Theme] {
			s.mu.Unlock()
			return Settings{}, shared.NewDomainError("settings", "Apply", shared.ErrInvalidInput, "unknown theme: "+*update.Theme)
		}
		s.settings.Theme = *update.Theme
	}
	if update.Language != nil {
		if *update.Language == "" {
			s.mu.Unlock()
			return Settings{}, shared.NewDomainError("settings", "Apply", shared.ErrEmptyValue, "language is empty")
		}
		s.settings.Language = *update.Language
	}
	if update.Notifications != nil {
		s.settings.Notifications = *update.Notifications
	}
	if update.SoundEffects != nil {
		s.settings.SoundEffects = *update.SoundEffects
	}
	if update.StudyReminders != nil {
		s.settings.StudyReminders = *update.StudyReminders
	}
	current := s.settings
	s.mu.Unlock()

	if s.store != nil {
		if err := storage.SaveJSON(ctx, s.store, storage.KeySettings, current); err != nil {
			return Settings{}, shared.WrapError("settings", "Apply", shared.ErrStorage, "save settings", err)
		}
	}
	return current, nil
}

// Reset restores defaults and persists them.
func (s *Service) Reset(ctx context.Context) (Settings, error) {
	s.mu.Lock()
	s.settings = Defaults()
	current := s.settings
	s.mu.Unlock()

	if s.store != nil {
		if err := storage.SaveJSON(ctx, s.store, storage.KeySettings, current); err != nil {
			return Settings{}, shared.WrapError("settings", "Reset", shared.ErrStorage, "save settings", err)
		}
	}
	return current, nil
}
