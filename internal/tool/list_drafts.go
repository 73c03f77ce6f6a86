package tool

import (
	"context"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/greetguard/internal/gservice"
	"github.com/hal9000y/greetguard/internal/recipient"
)

type ListDraftsRequest struct {
	Query      string `json:"query,omitempty" jsonschema:"the Gmail search query"`
	MaxResults int64  `json:"max_results,omitempty" jsonschema:"max results per page"`
	PageToken  string `json:"page_token,omitempty" jsonschema:"token for pagination"`
}

type ListDraftsResponse struct {
	Drafts        []DraftSummary `json:"drafts" jsonschema:"array of draft summaries"`
	NextPageToken string         `json:"next_page_token,omitempty" jsonschema:"token for next page"`
	TotalResults  int            `json:"total_results" jsonschema:"number of drafts returned"`
}

type listDraftsSvc interface {
	ListDrafts(ctx context.Context, q, pageToken string, maxResults int64) (*gmail.ListDraftsResponse, error)
	GetDraftMetadata(ctx context.Context, draftID string) (*gmail.Draft, error)
}

func NewListDrafts(svc listDraftsSvc) *ListDrafts {
	return &ListDrafts{
		svc: svc,
	}
}

type ListDrafts struct {
	svc listDraftsSvc
}

func (t *ListDrafts) ListDrafts(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ListDraftsRequest,
) (*mcp.CallToolResult, ListDraftsResponse, error) {
	input.MaxResults = normalizeMaxResults(input.MaxResults)

	result, err := t.svc.ListDrafts(ctx, input.Query, input.PageToken, input.MaxResults)
	if err != nil {
		return nil, ListDraftsResponse{}, fmt.Errorf("svc.ListDrafts failed: %w", err)
	}

	drafts := make([]DraftSummary, 0, len(result.Drafts))

	for _, d := range result.Drafts {
		draft, err := t.svc.GetDraftMetadata(ctx, d.Id)
		if err != nil {
			return nil, ListDraftsResponse{}, fmt.Errorf("get draft %s failed: %w", d.Id, err)
		}

		drafts = append(drafts, extractDraftSummary(draft))
	}

	return nil, ListDraftsResponse{
		Drafts:        drafts,
		NextPageToken: result.NextPageToken,
		TotalResults:  len(drafts),
	}, nil
}

func extractDraftSummary(draft *gmail.Draft) DraftSummary {
	summary := DraftSummary{ID: draft.Id}

	msg := draft.Message
	if msg == nil {
		return summary
	}

	summary.MessageID = msg.Id
	summary.Snippet = msg.Snippet
	summary.Subject = gservice.Header(msg, "Subject")
	summary.To = recipient.ParseHeader(gservice.Header(msg, "To"))
	summary.CC = recipient.ParseHeader(gservice.Header(msg, "Cc"))
	summary.BCC = recipient.ParseHeader(gservice.Header(msg, "Bcc"))

	return summary
}

func normalizeMaxResults(maxResults int64) int64 {
	if maxResults <= 0 {
		return 10
	}
	if maxResults > 50 {
		return 50
	}
	return maxResults
}
