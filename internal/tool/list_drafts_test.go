package tool_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/greetguard/internal/recipient"
	"github.com/hal9000y/greetguard/internal/tool"
)

func newListDraftsSvc() *draftSvcMock {
	return &draftSvcMock{
		ListDraftsFunc: func(_ context.Context, q, pageToken string, _ int64) (*gmail.ListDraftsResponse, error) {
			if q == "error" {
				return nil, fmt.Errorf("list failed: %s", q)
			}
			return &gmail.ListDraftsResponse{
				Drafts:        []*gmail.Draft{{Id: "r-1"}, {Id: "r-2"}},
				NextPageToken: pageToken + "next",
			}, nil
		},
		GetDraftMetadataFunc: func(_ context.Context, draftID string) (*gmail.Draft, error) {
			d := draft(draftID, fmt.Sprintf("Receiver <receiver-%s@example.com>", draftID), `"Lee, Sarah" <sarah@example.com>`, "Subject "+draftID, "Hi "+draftID)
			d.Message.Payload.Parts = nil
			return d, nil
		},
	}
}

func TestListDrafts(t *testing.T) {
	cases := []struct {
		name        string
		req         tool.ListDraftsRequest
		expected    tool.ListDraftsResponse
		expectedMax int64
		expectedErr string
	}{
		{
			name: "summaries",
			req:  tool.ListDraftsRequest{Query: "to:receiver", PageToken: "p1-"},
			expected: tool.ListDraftsResponse{
				Drafts: []tool.DraftSummary{
					{
						ID:        "r-1",
						MessageID: "m-r-1",
						To:        []recipient.Address{{Email: "receiver-r-1@example.com", DisplayName: "Receiver"}},
						CC:        []recipient.Address{{Email: "sarah@example.com", DisplayName: "Lee, Sarah"}},
						Subject:   "Subject r-1",
						Snippet:   "Hi r-1",
					},
					{
						ID:        "r-2",
						MessageID: "m-r-2",
						To:        []recipient.Address{{Email: "receiver-r-2@example.com", DisplayName: "Receiver"}},
						CC:        []recipient.Address{{Email: "sarah@example.com", DisplayName: "Lee, Sarah"}},
						Subject:   "Subject r-2",
						Snippet:   "Hi r-2",
					},
				},
				NextPageToken: "p1-next",
				TotalResults:  2,
			},
			expectedMax: 10,
		},
		{
			name:        "max results capped",
			req:         tool.ListDraftsRequest{MaxResults: 500},
			expected:    tool.ListDraftsResponse{NextPageToken: "next", TotalResults: 2},
			expectedMax: 50,
		},
		{
			name:        "error case",
			req:         tool.ListDraftsRequest{Query: "error"},
			expectedErr: "list failed: error",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newListDraftsSvc()
			session := connect(t, newDeps(t, svc, nil))

			result, resp := call[tool.ListDraftsResponse](t, session, "list_drafts", tc.req)
			if tc.expectedErr != "" {
				require.True(t, result.IsError)
				assert.Contains(t, textOf(result), tc.expectedErr)
				return
			}
			require.False(t, result.IsError, textOf(result))

			require.Len(t, svc.ListDraftsCalls(), 1)
			assert.Equal(t, tc.expectedMax, svc.ListDraftsCalls()[0].MaxResults)

			if tc.expected.Drafts == nil {
				assert.Len(t, resp.Drafts, 2)
				resp.Drafts = nil
			}
			assert.Equal(t, tc.expected, resp)
		})
	}
}
