package tool

import (
	"context"
	"log/slog"
	"slices"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/greetguard/internal/config"
	"github.com/hal9000y/greetguard/internal/fault"
	"github.com/hal9000y/greetguard/internal/resilience"
	"github.com/hal9000y/greetguard/internal/validation"
)

type draftSvc interface {
	listDraftsSvc
	GetDraft(ctx context.Context, draftID string) (*gmail.Draft, error)
}

// Deps are the collaborators shared by all tools of one server.
type Deps struct {
	Drafts   draftSvc
	Pipeline *validation.Pipeline
	Store    config.Store

	// Optional. Zero values fall back to defaults.
	RetryPolicy resilience.Policy
	Breaker     *resilience.CircuitBreaker
	Diagnostics *validation.Diagnostics
	Logger      *slog.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Store == nil {
		d.Store = config.NewMemoryStore(nil)
	}
	if d.RetryPolicy.MaxAttempts == 0 {
		d.RetryPolicy = resilience.DefaultPolicy()
	}
	if d.Breaker == nil {
		d.Breaker = resilience.NewCircuitBreaker(3, 1, 0)
	}
	if d.Diagnostics == nil {
		d.Diagnostics = validation.NewDiagnostics(100, d.Logger)
	}
	return d
}

// NewServer creates an MCP server with the greeting validation tools.
func NewServer(deps Deps) *mcp.Server {
	deps = deps.withDefaults()
	server := mcp.NewServer(&mcp.Implementation{Name: "greetguard", Version: "v1.0.0"}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "validate_text",
		Description: "Check that the names greeted in an email body belong to its recipients",
	}, NewValidateText(deps).ValidateText)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "validate_draft",
		Description: "Check the greeting of a Gmail draft against its To, Cc and Bcc recipients",
	}, NewValidateDraft(deps).ValidateDraft)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_drafts",
		Description: "List Gmail drafts using Gmail search syntax",
	}, NewListDrafts(deps.Drafts).ListDrafts)

	settings := NewSettings(deps)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_settings",
		Description: "Read the validation settings",
	}, settings.GetSettings)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_settings",
		Description: "Change validation settings; omitted fields keep their value",
	}, settings.UpdateSettings)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_diagnostics",
		Description: "List recent validation failures",
	}, NewListDiagnostics(deps.Diagnostics).ListDiagnostics)

	return server
}

// loadSettings reads the store, falling back to defaults on a configuration error.
func loadSettings(ctx context.Context, deps Deps) config.Settings {
	s, err := config.LoadOrReset(ctx, deps.Store, deps.Logger)
	if err != nil {
		deps.Diagnostics.Record(err)
	}
	return s
}

func checkLanguage(p *validation.Pipeline, language string) error {
	if language == "" || language == "auto" || slices.Contains(p.Languages(), language) {
		return nil
	}
	return fault.New(fault.KindValidation, "tool.checkLanguage", "unknown language").
		With("language", language).With("available", p.Languages())
}
