package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
)

const exaSearchURL = "https://api.exa.ai/search"

// ExaProvider searches the web through the Exa search-and-contents API.
type ExaProvider struct {
	APIKey  string
	BaseURL string
	Client  *http.Client
}

func NewExaProvider(apiKey string) *ExaProvider {
	return &ExaProvider{
		APIKey:  apiKey,
		BaseURL: exaSearchURL,
		Client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type exaRequest struct {
	Query      string      `json:"query"`
	NumResults int         `json:"numResults"`
	Type       string      `json:"type"`
	Contents   exaContents `json:"contents"`
}

type exaContents struct {
	Text bool `json:"text"`
}

type exaResponse struct {
	Results []exaResult `json:"results" validate:"required,dive"`
}

type exaResult struct {
	Title string `json:"title"`
	URL   string `json:"url" validate:"required,url"`
	Text  string `json:"text"`
}

var responseValidator = validator.New()

// Search runs one query against Exa.
func (p *ExaProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if p.APIKey == "" {
		return nil, &ProviderError{Provider: "exa", Query: query, Err: fmt.Errorf("EXA_API_KEY is not set")}
	}

	body, err := json.Marshal(exaRequest{
		Query:      query,
		NumResults: ClampMaxResults(maxResults),
		Type:       "auto",
		Contents:   exaContents{Text: true},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.BaseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.APIKey)

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: "exa", Query: query, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: "exa", Query: query, Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, &ProviderError{Provider: "exa", Query: query, Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(raw))}
	}

	results, err := decodeExaResponse(raw)
	if err != nil {
		return nil, &ProviderError{Provider: "exa", Query: query, Err: err}
	}

	slog.Debug("Exa search completed", "query", query, "count", len(results))
	return results, nil
}

// decodeExaResponse is the boundary between Exa's payload and Result: any
// shape mismatch is an error, never a partially filled Result.
func decodeExaResponse(raw []byte) ([]Result, error) {
	var payload exaResponse
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if err := responseValidator.Struct(payload); err != nil {
		return nil, fmt.Errorf("unexpected response shape: %w", err)
	}

	results := make([]Result, 0, len(payload.Results))
	for _, item := range payload.Results {
		results = append(results, Result{
			Title:   item.Title,
			URL:     item.URL,
			Content: item.Text,
		})
	}
	return results, nil
}
