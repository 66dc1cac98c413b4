package mcp_test

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/m-mizutani/aiguide/pkg/service/mcp"
	"github.com/m-mizutani/aiguide/pkg/usecase/query"
	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

type querierMock struct {
	HandleQueryFunc func(ctx context.Context, q string, k int) (*query.Answer, error)
}

func (m *querierMock) HandleQuery(ctx context.Context, q string, k int) (*query.Answer, error) {
	return m.HandleQueryFunc(ctx, q, k)
}

func connect(t *testing.T, srv *mcp.Server) *mcpsdk.ClientSession {
	t.Helper()
	ctx := context.Background()

	serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()
	serverSession, err := srv.Connect(ctx, serverTransport)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, clientTransport, nil)
	gt.NoError(t, err)
	t.Cleanup(func() { _ = session.Close() })

	return session
}

func TestListTools(t *testing.T) {
	session := connect(t, mcp.NewServer(&querierMock{}))

	res, err := session.ListTools(context.Background(), nil)
	gt.NoError(t, err)
	gt.A(t, res.Tools).Length(1)
	gt.Equal(t, res.Tools[0].Name, mcp.ToolRecommend)
}

func TestRecommend(t *testing.T) {
	var gotQuery string
	var gotK int
	session := connect(t, mcp.NewServer(&querierMock{
		HandleQueryFunc: func(_ context.Context, q string, k int) (*query.Answer, error) {
			gotQuery, gotK = q, k
			return &query.Answer{
				Response: "Try Green Leaf.",
				Images:   []string{"https://img.example.com/1.png"},
			}, nil
		},
	}))

	res, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      mcp.ToolRecommend,
		Arguments: map[string]any{"query": "vegetarian in Madurai", "k": 2},
	})
	gt.NoError(t, err)
	gt.False(t, res.IsError)
	gt.Equal(t, gotQuery, "vegetarian in Madurai")
	gt.Equal(t, gotK, 2)

	gt.A(t, res.Content).Length(1)
	text, ok := res.Content[0].(*mcpsdk.TextContent)
	gt.True(t, ok)
	gt.S(t, text.Text).Contains("Try Green Leaf.")
	gt.S(t, text.Text).Contains("https://img.example.com/1.png")

	structured, ok := res.StructuredContent.(map[string]any)
	gt.True(t, ok)
	gt.Equal(t, structured["response"], any("Try Green Leaf."))
	gt.Equal(t, structured["fallback"], any(false))
}

func TestRecommendInvalidQuery(t *testing.T) {
	session := connect(t, mcp.NewServer(&querierMock{
		HandleQueryFunc: func(context.Context, string, int) (*query.Answer, error) {
			return nil, goerr.Wrap(query.ErrInvalidQuery, "query is empty")
		},
	}))

	res, err := session.CallTool(context.Background(), &mcpsdk.CallToolParams{
		Name:      mcp.ToolRecommend,
		Arguments: map[string]any{"query": ""},
	})
	gt.NoError(t, err)
	gt.True(t, res.IsError)
}

func TestStreamableHTTP(t *testing.T) {
	ctx := context.Background()
	srv := mcp.NewServer(&querierMock{
		HandleQueryFunc: func(context.Context, string, int) (*query.Answer, error) {
			return &query.Answer{Response: query.InsufficientInfoMessage, Insufficient: true}, nil
		},
	})

	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "test", Version: "0.0.1"}, nil)
	session, err := client.Connect(ctx, &mcpsdk.StreamableClientTransport{Endpoint: ts.URL}, nil)
	gt.NoError(t, err)
	defer session.Close()

	res, err := session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      mcp.ToolRecommend,
		Arguments: map[string]any{"query": "sushi on the moon"},
	})
	gt.NoError(t, err)
	gt.False(t, res.IsError)

	structured, ok := res.StructuredContent.(map[string]any)
	gt.True(t, ok)
	gt.Equal(t, structured["insufficient"], any(true))
}
