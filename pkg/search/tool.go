package search

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/SwarnimWalavalkar/conjure/pkg/stream"
)

// ToolMaxQueries bounds the standalone web search tool per call.
const ToolMaxQueries = 5

const excerptLength = 500

// ErrorData is the error payload of a web search event.
type ErrorData struct {
	Message string `json:"message"`
}

// WebSearchData is the payload of a data-web-search event.
type WebSearchData struct {
	Title   string     `json:"title,omitempty"`
	Status  string     `json:"status,omitempty"`
	Queries []string   `json:"queries,omitempty"`
	Results []Result   `json:"results,omitempty"`
	Error   *ErrorData `json:"error,omitempty"`
}

// Tool is the standalone web search tool offered to the chat agent. Unlike
// the search step inside deep research, provider failures are reported.
type Tool struct {
	Provider Provider
	Sink     stream.Sink
	Logger   *slog.Logger
}

// Run executes queries and returns text formatted for the model. On failure
// it emits an error event and returns the error.
func (t *Tool) Run(ctx context.Context, callID string, queries []Query) (string, error) {
	logger := t.Logger
	if logger == nil {
		logger = slog.Default()
	}
	sink := t.Sink
	if sink == nil {
		sink = stream.Discard
	}
	if callID == "" {
		callID = uuid.NewString()
	}

	if len(queries) == 0 {
		return "", fmt.Errorf("web search needs at least one query")
	}
	if len(queries) > ToolMaxQueries {
		return "", fmt.Errorf("web search accepts at most %d queries, got %d", ToolMaxQueries, len(queries))
	}

	queryTexts := make([]string, len(queries))
	for i, q := range queries {
		queryTexts[i] = q.Query
	}

	sink.Emit(stream.Event{
		ID:   callID,
		Type: stream.TypeWebSearch,
		Data: WebSearchData{
			Title:   fmt.Sprintf("Searching %d %s", len(queries), plural(len(queries), "query", "queries")),
			Status:  "running",
			Queries: queryTexts,
		},
	})

	results, err := Run(ctx, t.Provider, queries)
	if err != nil {
		logger.Error("Web search failed", "queries", queryTexts, "error", err)
		sink.Emit(stream.Event{
			ID:   callID,
			Type: stream.TypeWebSearch,
			Data: WebSearchData{
				Status:  "error",
				Queries: queryTexts,
				Error:   &ErrorData{Message: err.Error()},
			},
		})
		return "", fmt.Errorf("web search: %w", err)
	}

	sink.Emit(stream.Event{
		ID:   callID,
		Type: stream.TypeWebSearch,
		Data: WebSearchData{
			Title:   fmt.Sprintf("Found %d %s", len(results), plural(len(results), "source", "sources")),
			Status:  "completed",
			Queries: queryTexts,
			Results: results,
		},
	})

	return fmt.Sprintf("Found %d sources across %d %s.\n\nSearch Results:\n%s\n\nSummary: Successfully retrieved information from %d unique web sources.",
		len(results), len(queries), plural(len(queries), "query", "queries"), FormatResults(results), len(results)), nil
}

// FormatResults renders results as a numbered list with short excerpts.
func FormatResults(results []Result) string {
	var sb strings.Builder
	for i, r := range results {
		fmt.Fprintf(&sb, "[%d] %s\nURL: %s\nContent: %s\n\n", i+1, r.Title, r.URL, excerpt(r.Content, excerptLength))
	}
	return strings.TrimRight(sb.String(), "\n")
}

func excerpt(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
