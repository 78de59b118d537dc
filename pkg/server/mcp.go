package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/SwarnimWalavalkar/conjure/pkg/config"
	"github.com/SwarnimWalavalkar/conjure/pkg/research"
	"github.com/SwarnimWalavalkar/conjure/pkg/search"
)

// MCPTools exposes web search and deep research to MCP clients.
type MCPTools struct {
	Research *research.Factory
	Search   search.Provider
	Logger   *slog.Logger
}

type WebSearchInput struct {
	SearchQueries []search.Query `json:"searchQueries" jsonschema:"search queries to run, 1 to 5"`
}

type DeepResearchInput struct {
	Query  string                   `json:"query" jsonschema:"the research request"`
	Config config.ResearchOverrides `json:"config,omitempty" jsonschema:"optional research configuration overrides"`
}

// NewServer builds the MCP server with the web_search and deep_research tools.
func (t *MCPTools) NewServer() *mcp.Server {
	srv := mcp.NewServer(&mcp.Implementation{Name: "conjure", Version: "1.0.0"}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "web_search",
		Description: "Search the web. Returns numbered results with URLs and content excerpts.",
	}, t.webSearch)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "deep_research",
		Description: "Run multi-step deep research and return a cited markdown report, or a clarifying question when the request is ambiguous.",
	}, t.deepResearch)

	return srv
}

// Handler serves the MCP streamable HTTP transport.
func (t *MCPTools) Handler() http.Handler {
	srv := t.NewServer()
	return mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return srv }, nil)
}

func (t *MCPTools) webSearch(ctx context.Context, _ *mcp.CallToolRequest, in WebSearchInput) (*mcp.CallToolResult, any, error) {
	st := &search.Tool{Provider: t.Search, Logger: t.logger()}
	text, err := st.Run(ctx, "", in.SearchQueries)
	if err != nil {
		return errorResult(err), nil, nil
	}
	return textResult(text), nil, nil
}

func (t *MCPTools) deepResearch(ctx context.Context, _ *mcp.CallToolRequest, in DeepResearchInput) (*mcp.CallToolResult, any, error) {
	if in.Query == "" {
		return errorResult(errors.New("query is required")), nil, nil
	}
	engine, err := t.Research.New(in.Config)
	if err != nil {
		return errorResult(err), nil, nil
	}
	engine.Logger = t.logger()

	outcome := engine.Run(ctx, "", []research.Message{{Role: "user", Content: in.Query}})
	switch outcome.Format {
	case research.FormatReport:
		return textResult(outcome.Content), nil, nil
	case research.FormatClarifyingQuestions:
		return textResult("Clarification needed: " + outcome.Answer), nil, nil
	default:
		return &mcp.CallToolResult{IsError: true, Content: []mcp.Content{&mcp.TextContent{Text: outcome.Answer}}}, nil, nil
	}
}

func (t *MCPTools) logger() *slog.Logger {
	if t.Logger == nil {
		return slog.Default()
	}
	return t.Logger
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{&mcp.TextContent{Text: text}}}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{IsError: true, Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}}}
}
