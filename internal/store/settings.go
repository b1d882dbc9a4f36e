package store

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"sensor-monitor/internal/models"
)

type settingsDocument struct {
	State struct {
		Settings models.Settings `json:"settings"`
	} `json:"state"`
	Version int `json:"version"`
}

// Settings настройки пользователя с синхронной записью в sqlite
type Settings struct {
	db     *DB
	mu     sync.Mutex
	cur    models.Settings
	subs   observers[models.Settings]
	logger *slog.Logger
}

// OpenSettings загружает настройки. Отсутствующие поля получают значения
// по умолчанию, поврежденная запись заменяется настройками по умолчанию.
func OpenSettings(ctx context.Context, db *DB, opts ...Option) (*Settings, error) {
	o := options{logger: db.logger}
	for _, opt := range opts {
		opt(&o)
	}
	s := &Settings{db: db, cur: models.DefaultSettings(), logger: o.logger.With("store", "settings")}

	raw, ok, err := db.get(ctx, SettingsKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s, nil
	}

	var doc settingsDocument
	doc.State.Settings = models.DefaultSettings()
	if err := json.Unmarshal(raw, &doc); err != nil {
		s.logger.Warn("stored settings are corrupt, using defaults", "error", err)
		return s, nil
	}
	loaded := doc.State.Settings
	loaded.Units = loaded.Units.WithDefaults()
	if err := loaded.Validate(); err != nil {
		s.logger.Warn("stored settings are invalid, using defaults", "error", err)
		return s, nil
	}
	s.cur = loaded
	return s, nil
}

// Get текущие настройки
func (s *Settings) Get() models.Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Update изменяет копию настроек, проверяет и сохраняет ее
func (s *Settings) Update(ctx context.Context, fn func(*models.Settings)) (models.Settings, error) {
	s.mu.Lock()
	next := s.cur
	fn(&next)
	next.Units = next.Units.WithDefaults()
	if err := next.Validate(); err != nil {
		s.mu.Unlock()
		return models.Settings{}, err
	}

	var doc settingsDocument
	doc.State.Settings = next
	raw, err := json.Marshal(doc)
	if err != nil {
		s.mu.Unlock()
		return models.Settings{}, fmt.Errorf("encode settings: %w", err)
	}
	if err := s.db.put(ctx, SettingsKey, raw); err != nil {
		s.mu.Unlock()
		return models.Settings{}, err
	}
	s.cur = next
	s.mu.Unlock()

	s.subs.notify(next)
	return next, nil
}

// OnChange подписка на изменения настроек; возвращает отписку
func (s *Settings) OnChange(fn func(models.Settings)) (cancel func()) {
	return s.subs.add(fn)
}
