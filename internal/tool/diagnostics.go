package tool

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/hal9000y/greetguard/internal/validation"
)

type ListDiagnosticsRequest struct {
	Limit int `json:"limit,omitempty" jsonschema:"max entries, newest kept; 0 means all"`
}

type ListDiagnosticsResponse struct {
	Diagnostics []DiagnosticEntry `json:"diagnostics" jsonschema:"recorded failures, oldest first"`
}

func NewListDiagnostics(diag *validation.Diagnostics) *ListDiagnostics {
	return &ListDiagnostics{diag: diag}
}

type ListDiagnostics struct {
	diag *validation.Diagnostics
}

func (t *ListDiagnostics) ListDiagnostics(
	_ context.Context,
	_ *mcp.CallToolRequest,
	input ListDiagnosticsRequest,
) (*mcp.CallToolResult, ListDiagnosticsResponse, error) {
	entries := t.diag.Entries()
	if input.Limit > 0 && len(entries) > input.Limit {
		entries = entries[len(entries)-input.Limit:]
	}

	out := make([]DiagnosticEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, newDiagnosticEntry(e))
	}

	return nil, ListDiagnosticsResponse{Diagnostics: out}, nil
}
