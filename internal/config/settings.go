// Package config reads user settings from the host key/value store and process settings from
// the environment.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strconv"
	"strings"
	"sync"

	"github.com/hal9000y/greetguard/internal/fault"
)

// Setting keys in the host store.
const (
	KeyMinConfidence = "minConfidence"
	KeyFuzzyMatching = "fuzzyMatching"
	KeyLanguage      = "language"
)

// Settings are the user preferences consumed by a validation pass.
type Settings struct {
	MinConfidence float64 `json:"min_confidence" jsonschema:"greetings scored below this are ignored, 0..1"`
	FuzzyMatching bool    `json:"fuzzy_matching" jsonschema:"accept close misspellings of recipient names"`
	Language      string  `json:"language" jsonschema:"greeting language code or auto"`
}

func DefaultSettings() Settings {
	return Settings{MinConfidence: 0.5, FuzzyMatching: true, Language: "auto"}
}

// Validate reports the first invalid field as a configuration error.
func (s Settings) Validate() error {
	if s.MinConfidence < 0 || s.MinConfidence > 1 {
		return fault.New(fault.KindConfiguration, "config.Settings", "min confidence out of range").
			With("key", KeyMinConfidence).With("value", s.MinConfidence)
	}
	if strings.TrimSpace(s.Language) == "" {
		return fault.New(fault.KindConfiguration, "config.Settings", "empty language").With("key", KeyLanguage)
	}
	return nil
}

// Store is the persisted key/value surface of the host.
type Store interface {
	Get(key string) (any, bool)
	Set(key string, value any)
	Save(ctx context.Context) error
}

// MemoryStore is a Store kept in process memory. Save copies the working values into the saved set.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]any
	saved  map[string]any
	saves  int
}

func NewMemoryStore(initial map[string]any) *MemoryStore {
	return &MemoryStore{values: maps.Clone(initial), saved: maps.Clone(initial)}
}

func (m *MemoryStore) Get(key string) (any, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok
}

func (m *MemoryStore) Set(key string, value any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.values == nil {
		m.values = make(map[string]any)
	}
	m.values[key] = value
}

func (m *MemoryStore) Save(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = maps.Clone(m.values)
	m.saves++
	return nil
}

// Saved returns a copy of the values as of the last Save.
func (m *MemoryStore) Saved() map[string]any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return maps.Clone(m.saved)
}

// Saves counts successful Save calls.
func (m *MemoryStore) Saves() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.saves
}

// LoadSettings reads settings from store. Missing keys take their defaults; values of the wrong
// shape are configuration errors.
func LoadSettings(store Store) (Settings, error) {
	s := DefaultSettings()

	if v, ok := store.Get(KeyMinConfidence); ok {
		f, err := toFloat(v)
		if err != nil {
			return Settings{}, fault.Wrap(fault.KindConfiguration, "config.LoadSettings", err).With("key", KeyMinConfidence)
		}
		s.MinConfidence = f
	}

	if v, ok := store.Get(KeyFuzzyMatching); ok {
		b, err := toBool(v)
		if err != nil {
			return Settings{}, fault.Wrap(fault.KindConfiguration, "config.LoadSettings", err).With("key", KeyFuzzyMatching)
		}
		s.FuzzyMatching = b
	}

	if v, ok := store.Get(KeyLanguage); ok {
		str, ok := v.(string)
		if !ok {
			return Settings{}, fault.New(fault.KindConfiguration, "config.LoadSettings", fmt.Sprintf("unexpected type %T", v)).
				With("key", KeyLanguage)
		}
		s.Language = strings.ToLower(strings.TrimSpace(str))
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}

	return s, nil
}

// Apply writes s into store without saving.
func (s Settings) Apply(store Store) {
	store.Set(KeyMinConfidence, s.MinConfidence)
	store.Set(KeyFuzzyMatching, s.FuzzyMatching)
	store.Set(KeyLanguage, s.Language)
}

// SaveSettings validates s, writes it into store and saves.
func SaveSettings(ctx context.Context, store Store, s Settings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	s.Apply(store)
	if err := store.Save(ctx); err != nil {
		return fmt.Errorf("settings save failed: %w", err)
	}
	return nil
}

// LoadOrReset loads settings; on a configuration error the store is reset to the defaults
// and saved. The defaults are returned together with the error that caused the reset.
func LoadOrReset(ctx context.Context, store Store, logger *slog.Logger) (Settings, error) {
	s, err := LoadSettings(store)
	if err == nil {
		return s, nil
	}

	if logger == nil {
		logger = slog.Default()
	}
	logger.Warn("invalid settings, resetting to defaults", "error", err)

	defaults := DefaultSettings()
	defaults.Apply(store)
	if saveErr := store.Save(ctx); saveErr != nil {
		return defaults, errors.Join(err, fmt.Errorf("settings save failed: %w", saveErr))
	}

	return defaults, err
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, fmt.Errorf("parse float failed: %w", err)
		}
		return f, nil
	case interface{ Float64() (float64, error) }:
		// json.Number
		return n.Float64()
	}
	return 0, fmt.Errorf("unexpected type %T", v)
}

func toBool(v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, fmt.Errorf("parse bool failed: %w", err)
		}
		return parsed, nil
	}
	return false, fmt.Errorf("unexpected type %T", v)
}
