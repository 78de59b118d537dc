package search

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const arxivQueryURL = "https://export.arxiv.org/api/query"

// ArxivEntry holds one entry of the arXiv Atom feed.
type ArxivEntry struct {
	ID        string      `xml:"id"`
	Title     string      `xml:"title"`
	Summary   string      `xml:"summary"`
	Published string      `xml:"published"`
	Link      []ArxivLink `xml:"link"`
}

// ArxivLink holds one link of an arXiv entry.
type ArxivLink struct {
	Href string `xml:"href,attr"`
	Type string `xml:"type,attr"`
}

// ArxivFeed is the arXiv Atom feed.
type ArxivFeed struct {
	XMLName xml.Name     `xml:"feed"`
	Entry   []ArxivEntry `xml:"entry"`
}

// ArxivProvider searches arXiv papers. It is selected with SEARCH_API=arxiv
// and needs no API key.
type ArxivProvider struct {
	BaseURL string
	Client  *http.Client
}

func NewArxivProvider() *ArxivProvider {
	return &ArxivProvider{
		BaseURL: arxivQueryURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// Search queries the arXiv API.
func (p *ArxivProvider) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	params := url.Values{}
	params.Add("search_query", "all:"+query)
	params.Add("max_results", strconv.Itoa(ClampMaxResults(maxResults)))
	params.Add("start", "0")

	apiURL := p.BaseURL + "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	resp, err := p.Client.Do(req)
	if err != nil {
		return nil, &ProviderError{Provider: "arxiv", Query: query, Err: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ProviderError{Provider: "arxiv", Query: query, Err: fmt.Errorf("read response body: %w", err)}
	}

	if resp.StatusCode != http.StatusOK {
		slog.Error("arXiv returned non-200 status code", "status", resp.StatusCode)
		return nil, &ProviderError{Provider: "arxiv", Query: query, Err: fmt.Errorf("status %d: %s", resp.StatusCode, string(body))}
	}

	var feed ArxivFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, &ProviderError{Provider: "arxiv", Query: query, Err: fmt.Errorf("unmarshal feed: %w", err)}
	}

	return feedResults(feed), nil
}

// feedResults prefers the PDF link of each entry and falls back to its
// abstract page. Entries without any link are dropped.
func feedResults(feed ArxivFeed) []Result {
	results := make([]Result, 0, len(feed.Entry))
	for _, entry := range feed.Entry {
		link := strings.TrimSpace(entry.ID)
		for _, l := range entry.Link {
			if l.Type == "application/pdf" {
				link = l.Href
				break
			}
		}
		if link == "" {
			continue
		}

		content := strings.TrimSpace(entry.Summary)
		if entry.Published != "" {
			content = fmt.Sprintf("Published: %s\n%s", entry.Published, content)
		}

		results = append(results, Result{
			Title:   strings.Join(strings.Fields(entry.Title), " "),
			URL:     link,
			Content: content,
		})
	}
	return results
}
