package tool

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/greetguard/internal/gservice"
	"github.com/hal9000y/greetguard/internal/recipient"
	"github.com/hal9000y/greetguard/internal/validation"
)

// ValidateTextRequest carries a body and its recipients.
type ValidateTextRequest struct {
	Body       string              `json:"body" jsonschema:"email body, plain text or HTML"`
	Recipients []recipient.Address `json:"recipients" jsonschema:"To, Cc and Bcc recipients in that order"`
	Language   string              `json:"language,omitempty" jsonschema:"greeting language code or auto; overrides the setting"`
}

func NewValidateText(deps Deps) *ValidateText {
	return &ValidateText{deps: deps}
}

// ValidateText checks free text without touching the mailbox.
type ValidateText struct {
	deps Deps
}

func (t *ValidateText) ValidateText(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ValidateTextRequest,
) (*mcp.CallToolResult, ValidationResponse, error) {
	s := loadSettings(ctx, t.deps)

	if lang := strings.ToLower(strings.TrimSpace(input.Language)); lang != "" {
		if err := checkLanguage(t.deps.Pipeline, lang); err != nil {
			return nil, ValidationResponse{}, err
		}
		s.Language = lang
	}

	results, err := t.deps.Pipeline.Evaluate(ctx, input.Body, input.Recipients, s)
	if err != nil {
		t.deps.Diagnostics.Record(err)
		return nil, ValidationResponse{}, fmt.Errorf("pipeline.Evaluate failed: %w", err)
	}

	return nil, newValidationResponse("", results), nil
}

// ValidateDraftRequest names the draft to check.
type ValidateDraftRequest struct {
	DraftID string `json:"draft_id" jsonschema:"Gmail draft ID"`
}

func NewValidateDraft(deps Deps) *ValidateDraft {
	return &ValidateDraft{deps: deps}
}

// ValidateDraft runs one orchestrated pass over a Gmail draft. Draft reads are retried and
// guarded by the breaker shared across drafts.
type ValidateDraft struct {
	deps Deps
}

func (t *ValidateDraft) ValidateDraft(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ValidateDraftRequest,
) (*mcp.CallToolResult, ValidationResponse, error) {
	if strings.TrimSpace(input.DraftID) == "" {
		return nil, ValidationResponse{}, errors.New("draft_id is required")
	}

	binding := gservice.NewDraftBinding(t.deps.Drafts, input.DraftID, gservice.WithBindingLogger(t.deps.Logger))
	defer binding.Close()

	o := validation.NewOrchestrator(binding, t.deps.Pipeline,
		validation.WithSettingsStore(t.deps.Store),
		validation.WithRetryPolicy(t.deps.RetryPolicy),
		validation.WithCircuitBreaker(t.deps.Breaker),
		validation.WithDiagnostics(t.deps.Diagnostics),
		validation.WithLogger(t.deps.Logger.With("draft_id", input.DraftID)),
	)
	defer o.Dispose()

	var passErr error
	o.AddListener(validation.ListenerFuncs{
		Error: func(err error) { passErr = err },
	})

	results, err := o.ValidateCurrentEmail(ctx)
	if err != nil {
		return nil, ValidationResponse{}, fmt.Errorf("validate draft %s failed: %w", input.DraftID, err)
	}
	if passErr != nil {
		return nil, ValidationResponse{}, fmt.Errorf("validate draft %s failed: %w", input.DraftID, passErr)
	}

	return nil, newValidationResponse(input.DraftID, results), nil
}
