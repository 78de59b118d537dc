package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/SwarnimWalavalkar/conjure/pkg/stream"
)

type fakeProvider struct {
	results map[string][]Result
	fail    map[string]error
	calls   []string
}

func (f *fakeProvider) Search(_ context.Context, query string, _ int) ([]Result, error) {
	f.calls = append(f.calls, query)
	if err := f.fail[query]; err != nil {
		return nil, err
	}
	return f.results[query], nil
}

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestDedupe(t *testing.T) {
	tests := []struct {
		name  string
		input []Result
		want  []string
	}{
		{"empty", nil, []string{}},
		{"no duplicates", []Result{{URL: "a"}, {URL: "b"}}, []string{"a", "b"}},
		{"keeps first seen", []Result{{URL: "a", Title: "first"}, {URL: "b"}, {URL: "a", Title: "second"}}, []string{"a", "b"}},
		{"case sensitive", []Result{{URL: "https://x.io/A"}, {URL: "https://x.io/a"}}, []string{"https://x.io/A", "https://x.io/a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Dedupe(tt.input)
			urls := make([]string, 0, len(got))
			for _, r := range got {
				urls = append(urls, r.URL)
			}
			assert.Equal(t, tt.want, urls)
		})
	}

	got := Dedupe([]Result{{URL: "a", Title: "first"}, {URL: "a", Title: "second"}})
	assert.Equal(t, "first", got[0].Title)
}

func TestBatchDegradesFailingQueries(t *testing.T) {
	p := &fakeProvider{
		results: map[string][]Result{
			"good":  {{URL: "u1"}, {URL: "u2"}},
			"other": {{URL: "u2"}, {URL: "u3"}},
		},
		fail: map[string]error{"bad": &ProviderError{Provider: "fake", Query: "bad", Err: errors.New("boom")}},
	}

	got := Batch(context.Background(), p, []Query{{Query: "good"}, {Query: "bad"}, {Query: "other"}}, quietLogger)

	assert.Equal(t, []string{"good", "bad", "other"}, p.calls)
	require.Len(t, got, 3)
	assert.Equal(t, "u1", got[0].URL)
	assert.Equal(t, "u2", got[1].URL)
	assert.Equal(t, "u3", got[2].URL)
}

func TestBatchAllFailing(t *testing.T) {
	p := &fakeProvider{fail: map[string]error{"a": errors.New("down"), "b": errors.New("down")}}

	got := Batch(context.Background(), p, []Query{{Query: "a"}, {Query: "b"}}, quietLogger)
	assert.Empty(t, got)
}

func TestRunPropagatesFailure(t *testing.T) {
	p := &fakeProvider{
		results: map[string][]Result{"good": {{URL: "u1"}}},
		fail:    map[string]error{"bad": errors.New("down")},
	}

	_, err := Run(context.Background(), p, []Query{{Query: "good"}, {Query: "bad"}, {Query: "never"}})
	require.Error(t, err)
	assert.Equal(t, []string{"good", "bad"}, p.calls)
}

func TestClampMaxResults(t *testing.T) {
	assert.Equal(t, 5, ClampMaxResults(0))
	assert.Equal(t, 1, ClampMaxResults(1))
	assert.Equal(t, 10, ClampMaxResults(10))
	assert.Equal(t, 10, ClampMaxResults(42))
}

func TestExaProviderSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("x-api-key"))

		var req exaRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "capital of france", req.Query)
		assert.Equal(t, 3, req.NumResults)
		assert.True(t, req.Contents.Text)

		fmt.Fprint(w, `{"results":[{"title":"Paris","url":"https://en.wikipedia.org/wiki/Paris","text":"Paris is the capital of France."}]}`)
	}))
	defer srv.Close()

	p := NewExaProvider("secret")
	p.BaseURL = srv.URL

	got, err := p.Search(context.Background(), "capital of france", 3)
	require.NoError(t, err)
	assert.Equal(t, []Result{{Title: "Paris", URL: "https://en.wikipedia.org/wiki/Paris", Content: "Paris is the capital of France."}}, got)
}

func TestExaProviderRejectsBadShape(t *testing.T) {
	tests := []struct {
		name string
		body string
		code int
	}{
		{"missing results", `{"data":[]}`, http.StatusOK},
		{"result without url", `{"results":[{"title":"x"}]}`, http.StatusOK},
		{"not json", `<html>`, http.StatusOK},
		{"server error", `oops`, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.code)
				fmt.Fprint(w, tt.body)
			}))
			defer srv.Close()

			p := NewExaProvider("secret")
			p.BaseURL = srv.URL

			_, err := p.Search(context.Background(), "q", 1)
			var perr *ProviderError
			require.True(t, errors.As(err, &perr), "got %v", err)
			assert.Equal(t, "exa", perr.Provider)
		})
	}
}

func TestExaProviderMissingKey(t *testing.T) {
	_, err := NewExaProvider("").Search(context.Background(), "q", 1)
	var perr *ProviderError
	assert.True(t, errors.As(err, &perr))
}

const arxivFeed = `<?xml version="1.0" encoding="UTF-8"?>
<feed xmlns="http://www.w3.org/2005/Atom">
  <entry>
    <id>http://arxiv.org/abs/1706.03762v7</id>
    <title>Attention Is All
      You Need</title>
    <summary>The dominant sequence transduction models...</summary>
    <published>2017-06-12T17:57:34Z</published>
    <link href="http://arxiv.org/abs/1706.03762v7" type="text/html"/>
    <link href="http://arxiv.org/pdf/1706.03762v7" type="application/pdf"/>
  </entry>
  <entry>
    <id>http://arxiv.org/abs/0000.00001v1</id>
    <title>No PDF</title>
    <summary>abstract only</summary>
  </entry>
</feed>`

func TestArxivProviderSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "all:transformers", r.URL.Query().Get("search_query"))
		assert.Equal(t, "2", r.URL.Query().Get("max_results"))
		fmt.Fprint(w, arxivFeed)
	}))
	defer srv.Close()

	p := NewArxivProvider()
	p.BaseURL = srv.URL

	got, err := p.Search(context.Background(), "transformers", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Attention Is All You Need", got[0].Title)
	assert.Equal(t, "http://arxiv.org/pdf/1706.03762v7", got[0].URL)
	assert.Contains(t, got[0].Content, "Published: 2017-06-12")
	assert.Equal(t, "http://arxiv.org/abs/0000.00001v1", got[1].URL)
}

func TestNewProvider(t *testing.T) {
	p, err := NewProvider("exa", "k")
	require.NoError(t, err)
	assert.IsType(t, &ExaProvider{}, p)

	p, err = NewProvider("", "")
	require.NoError(t, err)
	assert.IsType(t, &ExaProvider{}, p)

	p, err = NewProvider("arxiv", "")
	require.NoError(t, err)
	assert.IsType(t, &ArxivProvider{}, p)

	_, err = NewProvider("bing", "")
	assert.Error(t, err)
}

func TestToolRunEmitsEvents(t *testing.T) {
	rec := &stream.Recorder{}
	tool := &Tool{
		Provider: &fakeProvider{results: map[string][]Result{
			"a": {{Title: "A", URL: "https://a.example", Content: "alpha"}},
			"b": {{Title: "A again", URL: "https://a.example"}, {Title: "B", URL: "https://b.example", Content: "beta"}},
		}},
		Sink:   rec,
		Logger: quietLogger,
	}

	out, err := tool.Run(context.Background(), "call-1", []Query{{Query: "a"}, {Query: "b"}})
	require.NoError(t, err)

	assert.Contains(t, out, "Found 2 sources across 2 queries.")
	assert.Contains(t, out, "[1] A\nURL: https://a.example")
	assert.Contains(t, out, "[2] B\nURL: https://b.example")

	events := rec.Events()
	require.Len(t, events, 2)
	for _, e := range events {
		assert.Equal(t, "call-1", e.ID)
		assert.Equal(t, stream.TypeWebSearch, e.Type)
	}
	assert.Equal(t, "running", events[0].Data.(WebSearchData).Status)
	done := events[1].Data.(WebSearchData)
	assert.Equal(t, "completed", done.Status)
	assert.Equal(t, "Found 2 sources", done.Title)
	assert.Len(t, done.Results, 2)
}

func TestToolRunReportsFailure(t *testing.T) {
	rec := &stream.Recorder{}
	tool := &Tool{
		Provider: &fakeProvider{fail: map[string]error{"a": errors.New("quota exceeded")}},
		Sink:     rec,
		Logger:   quietLogger,
	}

	_, err := tool.Run(context.Background(), "call-2", []Query{{Query: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")

	events := rec.Events()
	require.Len(t, events, 2)
	failed := events[1].Data.(WebSearchData)
	assert.Equal(t, "error", failed.Status)
	require.NotNil(t, failed.Error)
	assert.Contains(t, failed.Error.Message, "quota exceeded")
}

func TestToolRunQueryBounds(t *testing.T) {
	tool := &Tool{Provider: &fakeProvider{}, Logger: quietLogger}

	_, err := tool.Run(context.Background(), "", nil)
	assert.Error(t, err)

	_, err = tool.Run(context.Background(), "", make([]Query, ToolMaxQueries+1))
	assert.Error(t, err)
}

func TestFormatResultsTruncates(t *testing.T) {
	long := make([]rune, excerptLength+20)
	for i := range long {
		long[i] = 'é'
	}
	out := FormatResults([]Result{{Title: "T", URL: "u", Content: string(long)}})
	assert.Contains(t, out, string(long[:excerptLength])+"...")
	assert.NotContains(t, out, string(long))
}
