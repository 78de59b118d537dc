// Package search wraps web search providers behind a single query interface.
package search

import (
	"context"
	"fmt"
	"log/slog"
)

// Result is one search hit. Within a batch, results are unique by URL.
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Content string `json:"content"`
}

// Provider runs a single search query.
type Provider interface {
	Search(ctx context.Context, query string, maxResults int) ([]Result, error)
}

// Query is one entry of a multi-query search request.
type Query struct {
	Query      string `json:"query" description:"Specific search query"`
	MaxResults int    `json:"maxResults,omitempty" description:"Number of results to return (1-10, default 5)"`
}

const (
	DefaultMaxResults = 5
	MaxResultsLimit   = 10
)

// ProviderError reports a failed or malformed provider response.
type ProviderError struct {
	Provider string
	Query    string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Query == "" {
		return fmt.Sprintf("%s search failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s search failed for %q: %v", e.Provider, e.Query, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }

// ClampMaxResults maps n into [1, MaxResultsLimit], treating 0 as the default.
func ClampMaxResults(n int) int {
	switch {
	case n <= 0:
		return DefaultMaxResults
	case n > MaxResultsLimit:
		return MaxResultsLimit
	default:
		return n
	}
}

// Dedupe keeps the first result for every URL and preserves encounter order.
func Dedupe(results []Result) []Result {
	unique := make([]Result, 0, len(results))
	seen := make(map[string]bool, len(results))
	for _, r := range results {
		if seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		unique = append(unique, r)
	}
	return unique
}

// Batch runs queries one after another and returns the deduplicated results.
// A failing query is logged and contributes nothing; Batch itself never
// fails, so one bad query cannot sink a research unit.
func Batch(ctx context.Context, p Provider, queries []Query, logger *slog.Logger) []Result {
	if logger == nil {
		logger = slog.Default()
	}
	var all []Result
	for _, q := range queries {
		results, err := p.Search(ctx, q.Query, ClampMaxResults(q.MaxResults))
		if err != nil {
			logger.Error("Search query failed", "query", q.Query, "error", err)
			continue
		}
		all = append(all, results...)
	}
	return Dedupe(all)
}

// Run is the strict variant of Batch: the first provider failure aborts the
// batch and is returned to the caller.
func Run(ctx context.Context, p Provider, queries []Query) ([]Result, error) {
	var all []Result
	for _, q := range queries {
		results, err := p.Search(ctx, q.Query, ClampMaxResults(q.MaxResults))
		if err != nil {
			return nil, err
		}
		all = append(all, results...)
	}
	return Dedupe(all), nil
}
