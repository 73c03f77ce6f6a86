package tool

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/greetguard/internal/config"
)

type GetSettingsRequest struct{}

type SettingsResponse struct {
	Settings  config.Settings `json:"settings" jsonschema:"current settings"`
	Languages []string        `json:"languages" jsonschema:"available greeting languages besides auto"`
}

// UpdateSettingsRequest patches the settings; nil fields are left unchanged.
type UpdateSettingsRequest struct {
	MinConfidence *float64 `json:"min_confidence,omitempty" jsonschema:"greetings scored below this are ignored, 0..1"`
	FuzzyMatching *bool    `json:"fuzzy_matching,omitempty" jsonschema:"accept close misspellings of recipient names"`
	Language      *string  `json:"language,omitempty" jsonschema:"greeting language code or auto"`
}

func NewSettings(deps Deps) *Settings {
	return &Settings{deps: deps}
}

// Settings reads and writes the settings store.
type Settings struct {
	deps Deps
}

func (t *Settings) GetSettings(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ GetSettingsRequest,
) (*mcp.CallToolResult, SettingsResponse, error) {
	return nil, t.response(loadSettings(ctx, t.deps)), nil
}

func (t *Settings) UpdateSettings(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input UpdateSettingsRequest,
) (*mcp.CallToolResult, SettingsResponse, error) {
	s := loadSettings(ctx, t.deps)

	if input.MinConfidence != nil {
		s.MinConfidence = *input.MinConfidence
	}
	if input.FuzzyMatching != nil {
		s.FuzzyMatching = *input.FuzzyMatching
	}
	if input.Language != nil {
		s.Language = strings.ToLower(strings.TrimSpace(*input.Language))
		if err := checkLanguage(t.deps.Pipeline, s.Language); err != nil {
			return nil, SettingsResponse{}, err
		}
	}

	if err := s.Validate(); err != nil {
		return nil, SettingsResponse{}, err
	}
	if err := config.SaveSettings(ctx, t.deps.Store, s); err != nil {
		return nil, SettingsResponse{}, fmt.Errorf("config.SaveSettings failed: %w", err)
	}

	t.deps.Logger.Info("settings updated", "min_confidence", s.MinConfidence, "fuzzy_matching", s.FuzzyMatching, "language", s.Language)

	return nil, t.response(s), nil
}

func (t *Settings) response(s config.Settings) SettingsResponse {
	languages := t.deps.Pipeline.Languages()
	if languages == nil {
		languages = []string{}
	}
	return SettingsResponse{Settings: s, Languages: languages}
}
