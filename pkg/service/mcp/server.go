package mcp

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/m-mizutani/aiguide/pkg/usecase/query"
	"github.com/m-mizutani/aiguide/pkg/utils/logging"
	"github.com/m-mizutani/goerr/v2"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

const (
	serverName    = "aiguide"
	serverVersion = "0.1.0"

	ToolRecommend = "recommend_restaurants"
)

// Querier answers a recommendation query
type Querier interface {
	HandleQuery(ctx context.Context, query string, k int) (*query.Answer, error)
}

// RecommendInput is the argument of the recommend_restaurants tool
type RecommendInput struct {
	Query string `json:"query" jsonschema:"Free-form request such as 'vegetarian food under 200 in Madurai'"`
	K     int    `json:"k,omitempty" jsonschema:"Number of restaurants to retrieve. Omit for the server default."`
}

// RecommendOutput is the structured result of the recommend_restaurants tool
type RecommendOutput struct {
	Response     string   `json:"response" jsonschema:"Recommendation text"`
	Images       []string `json:"images" jsonschema:"Image URLs of the retrieved restaurants in rank order"`
	Insufficient bool     `json:"insufficient" jsonschema:"True when no restaurant matched the request"`
	Fallback     bool     `json:"fallback" jsonschema:"True when the recommendation service was temporarily unavailable"`
}

// Server exposes the recommendation pipeline as MCP tools
type Server struct {
	querier Querier
	server  *mcp.Server
}

func NewServer(querier Querier) *Server {
	s := &Server{
		querier: querier,
		server: mcp.NewServer(&mcp.Implementation{
			Name:    serverName,
			Version: serverVersion,
		}, nil),
	}

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        ToolRecommend,
		Description: "Recommend restaurants for a free-form request. The request may mention cuisine, location and budget. Follow-up questions refer to earlier answers in the same session.",
	}, s.recommend)

	return s
}

// Run serves MCP over stdin/stdout until ctx is canceled or the client disconnects
func (s *Server) Run(ctx context.Context) error {
	if err := s.server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		return goerr.Wrap(err, "failed to run MCP server")
	}
	return nil
}

// Connect starts a session on an arbitrary transport
func (s *Server) Connect(ctx context.Context, t mcp.Transport) (*mcp.ServerSession, error) {
	session, err := s.server.Connect(ctx, t, nil)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to connect MCP session")
	}
	return session, nil
}

// Handler serves MCP over streamable HTTP
func (s *Server) Handler() http.Handler {
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server {
		return s.server
	}, nil)
}

func (s *Server) recommend(ctx context.Context, _ *mcp.CallToolRequest, in RecommendInput) (*mcp.CallToolResult, RecommendOutput, error) {
	logging.From(ctx).Info("mcp tool called", "tool", ToolRecommend, "query", in.Query, "k", in.K)

	answer, err := s.querier.HandleQuery(ctx, in.Query, in.K)
	if err != nil {
		return nil, RecommendOutput{}, err
	}

	out := RecommendOutput{
		Response:     answer.Response,
		Images:       answer.Images,
		Insufficient: answer.Insufficient,
		Fallback:     answer.Fallback,
	}
	if out.Images == nil {
		out.Images = []string{}
	}

	text := answer.Response
	if len(out.Images) > 0 {
		text += "\n\nImages:\n" + strings.Join(out.Images, "\n")
	}

	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}, out, nil
}
