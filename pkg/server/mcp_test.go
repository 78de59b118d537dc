package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"github.com/SwarnimWalavalkar/conjure/pkg/config"
	"github.com/SwarnimWalavalkar/conjure/pkg/research"
	"github.com/SwarnimWalavalkar/conjure/pkg/search"
)

var (
	quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))
	testTime    = time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
)

type stubProvider struct {
	results []search.Result
	err     error
}

func (p stubProvider) Search(context.Context, string, int) ([]search.Result, error) {
	return p.results, p.err
}

type downLLM struct{}

func (downLLM) GenerateContent(context.Context, []llms.MessageContent, ...llms.CallOption) (*llms.ContentResponse, error) {
	return nil, errors.New("model unavailable")
}

func (downLLM) Call(context.Context, string, ...llms.CallOption) (string, error) {
	return "", errors.New("model unavailable")
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.Len(t, res.Content, 1)
	tc, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok)
	return tc.Text
}

func TestMCPWebSearch(t *testing.T) {
	tools := &MCPTools{
		Search: stubProvider{results: []search.Result{{Title: "Paris", URL: "https://en.wikipedia.org/wiki/Paris", Content: "Paris is the capital of France."}}},
		Logger: quietLogger,
	}

	res, _, err := tools.webSearch(context.Background(), nil, WebSearchInput{SearchQueries: []search.Query{{Query: "capital of France"}}})

	require.NoError(t, err)
	assert.False(t, res.IsError)
	text := resultText(t, res)
	assert.Contains(t, text, "Found 1 sources across 1 query")
	assert.Contains(t, text, "https://en.wikipedia.org/wiki/Paris")
}

func TestMCPWebSearchFailureIsToolError(t *testing.T) {
	tools := &MCPTools{Search: stubProvider{err: errors.New("quota exceeded")}, Logger: quietLogger}

	res, _, err := tools.webSearch(context.Background(), nil, WebSearchInput{SearchQueries: []search.Query{{Query: "x"}}})

	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "quota exceeded")

	res, _, err = tools.webSearch(context.Background(), nil, WebSearchInput{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestMCPDeepResearch(t *testing.T) {
	one := 1
	tools := &MCPTools{
		Research: &research.Factory{
			LLM:          downLLM{},
			Search:       stubProvider{},
			Defaults:     config.ResearchOverrides{MaxStructuredOutputRetries: &one},
			DefaultModel: "test-model",
		},
		Logger: quietLogger,
	}

	res, _, err := tools.deepResearch(context.Background(), nil, DeepResearchInput{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, "query is required", resultText(t, res))

	eleven := 11
	res, _, err = tools.deepResearch(context.Background(), nil, DeepResearchInput{Query: "x", Config: config.ResearchOverrides{MaxResearcherIterations: &eleven}})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "max_researcher_iterations")

	res, _, err = tools.deepResearch(context.Background(), nil, DeepResearchInput{Query: "What is the capital of France?"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "model unavailable")
}

func TestMCPNewServer(t *testing.T) {
	tools := &MCPTools{Search: stubProvider{}, Logger: quietLogger}
	assert.NotNil(t, tools.NewServer())
	assert.NotNil(t, tools.Handler())
}
