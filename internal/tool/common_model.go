package tool

import (
	"time"

	"github.com/hal9000y/greetguard/internal/recipient"
	"github.com/hal9000y/greetguard/internal/validation"
)

// DraftSummary contains essential draft metadata.
type DraftSummary struct {
	ID        string              `json:"id" jsonschema:"draft ID"`
	MessageID string              `json:"message_id" jsonschema:"ID of the draft message"`
	To        []recipient.Address `json:"to,omitempty" jsonschema:"recipients"`
	CC        []recipient.Address `json:"cc,omitempty" jsonschema:"CC recipients"`
	BCC       []recipient.Address `json:"bcc,omitempty" jsonschema:"BCC recipients"`
	Subject   string              `json:"subject" jsonschema:"draft subject"`
	Snippet   string              `json:"snippet" jsonschema:"draft preview"`
}

// ValidationResponse reports the verdict for every greeted name.
type ValidationResponse struct {
	DraftID    string              `json:"draft_id,omitempty" jsonschema:"validated draft ID"`
	Results    []validation.Result `json:"results" jsonschema:"one result per distinct greeted name"`
	Mismatches int                 `json:"mismatches" jsonschema:"number of greeted names matching no recipient"`
}

func newValidationResponse(draftID string, results []validation.Result) ValidationResponse {
	resp := ValidationResponse{
		DraftID: draftID,
		Results: make([]validation.Result, 0, len(results)),
	}
	for _, r := range results {
		if !r.IsValid {
			resp.Mismatches++
		}
		resp.Results = append(resp.Results, r)
	}
	return resp
}

// DiagnosticEntry is a recorded failure as reported to clients.
type DiagnosticEntry struct {
	ID      string         `json:"id" jsonschema:"diagnostic ID"`
	Time    string         `json:"time" jsonschema:"RFC 3339 time of the failure"`
	Kind    string         `json:"kind" jsonschema:"failure kind"`
	Message string         `json:"message" jsonschema:"error message"`
	Context map[string]any `json:"context,omitempty" jsonschema:"failure details"`
}

func newDiagnosticEntry(d validation.Diagnostic) DiagnosticEntry {
	return DiagnosticEntry{
		ID:      d.ID,
		Time:    d.Time.UTC().Format(time.RFC3339),
		Kind:    string(d.Kind),
		Message: d.Message,
		Context: d.Context,
	}
}
