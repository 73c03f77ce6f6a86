package tool_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"

	"github.com/hal9000y/greetguard/internal/config"
	"github.com/hal9000y/greetguard/internal/resilience"
	"github.com/hal9000y/greetguard/internal/tool"
	"github.com/hal9000y/greetguard/internal/validation"
)

func newDeps(t *testing.T, svc *draftSvcMock, store config.Store) tool.Deps {
	t.Helper()
	pipeline, err := validation.NewDefaultPipeline()
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	return tool.Deps{
		Drafts:      svc,
		Pipeline:    pipeline,
		Store:       store,
		RetryPolicy: resilience.Policy{MaxAttempts: 3, Backoff: resilience.FixedBackoff{Interval: time.Millisecond}},
		Diagnostics: validation.NewDiagnostics(10, logger),
		Logger:      logger,
	}
}

func connect(t *testing.T, deps tool.Deps) *mcp.ClientSession {
	t.Helper()
	server := tool.NewServer(deps)
	client := mcp.NewClient(&mcp.Implementation{Name: "test-client"}, nil)
	clientTransport, serverTransport := mcp.NewInMemoryTransports()

	ctx := context.Background()

	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { serverSession.Close() })

	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { clientSession.Close() })

	return clientSession
}

// call invokes a tool and returns the raw result plus its decoded payload when it succeeded.
func call[T any](t *testing.T, session *mcp.ClientSession, name string, args any) (*mcp.CallToolResult, T) {
	t.Helper()
	var out T

	result, err := session.CallTool(context.Background(), &mcp.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)

	if !result.IsError {
		require.NoError(t, json.Unmarshal([]byte(textOf(result)), &out))
	}
	return result, out
}

func textOf(result *mcp.CallToolResult) string {
	return result.Content[0].(*mcp.TextContent).Text
}

func b64(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func draft(id, to, cc, subject, body string) *gmail.Draft {
	headers := []*gmail.MessagePartHeader{
		{Name: "From", Value: "Me <me@company.com>"},
		{Name: "To", Value: to},
		{Name: "Subject", Value: subject},
	}
	if cc != "" {
		headers = append(headers, &gmail.MessagePartHeader{Name: "Cc", Value: cc})
	}

	return &gmail.Draft{
		Id: id,
		Message: &gmail.Message{
			Id:      "m-" + id,
			Snippet: body,
			Payload: &gmail.MessagePart{
				MimeType: "multipart/alternative",
				Headers:  headers,
				Parts: []*gmail.MessagePart{
					{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64(body)}},
				},
			},
		},
	}
}
