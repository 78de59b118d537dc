// Package archive indexes finished research so later chats can search it.
package archive

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/SwarnimWalavalkar/conjure/pkg/embeddings"
	"github.com/SwarnimWalavalkar/conjure/pkg/vectorstore"
)

// Chunk kinds stored in document metadata.
const (
	KindNote   = "note"
	KindReport = "report"
)

const (
	DefaultTopK = 5
	MaxTopK     = 20
)

// Store is the subset of the vector store the archive uses.
type Store interface {
	AddDocuments(ctx context.Context, docs []vectorstore.Document) error
	SimilaritySearch(ctx context.Context, queryEmbedding []float32, topK int, filter vectorstore.Filter) ([]vectorstore.SearchResult, error)
	DeleteByMetadata(ctx context.Context, filter vectorstore.Filter) (int64, error)
}

// Splitter chunks archive text.
type Splitter interface {
	SplitText(text string) ([]string, error)
	SplitMarkdown(text string) ([]string, error)
}

// Entry is one finished research run.
type Entry struct {
	RequestID string
	Title     string
	Report    string
	Notes     []string
}

// Hit is one archive search result.
type Hit struct {
	RequestID string  `json:"request_id"`
	Title     string  `json:"title"`
	Kind      string  `json:"kind"`
	Content   string  `json:"content"`
	Score     float64 `json:"score"`
}

type Archive struct {
	store    Store
	embedder embeddings.Embedder
	splitter Splitter
	logger   *slog.Logger
}

func New(store Store, embedder embeddings.Embedder, splitter Splitter, logger *slog.Logger) *Archive {
	if logger == nil {
		logger = slog.Default()
	}
	return &Archive{store: store, embedder: embedder, splitter: splitter, logger: logger}
}

// Index replaces any chunks previously stored for entry.RequestID with
// chunks of its notes and report. It returns the number of chunks stored.
func (a *Archive) Index(ctx context.Context, entry Entry) (int, error) {
	if entry.RequestID == "" {
		return 0, errors.New("archive entry needs a request id")
	}

	var texts []string
	var kinds []string

	for i, note := range entry.Notes {
		chunks, err := a.splitter.SplitText(note)
		if err != nil {
			return 0, fmt.Errorf("split note %d: %w", i, err)
		}
		for _, c := range chunks {
			texts = append(texts, c)
			kinds = append(kinds, KindNote)
		}
	}
	if entry.Report != "" {
		chunks, err := a.splitter.SplitMarkdown(entry.Report)
		if err != nil {
			return 0, fmt.Errorf("split report: %w", err)
		}
		for _, c := range chunks {
			texts = append(texts, c)
			kinds = append(kinds, KindReport)
		}
	}
	if len(texts) == 0 {
		return 0, nil
	}

	vectors, err := a.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embed archive chunks: %w", err)
	}
	if len(vectors) != len(texts) {
		return 0, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(texts))
	}

	docs := make([]vectorstore.Document, len(texts))
	for i := range texts {
		docs[i] = vectorstore.Document{
			Content:   texts[i],
			Embedding: vectors[i],
			Metadata: map[string]any{
				"request_id": entry.RequestID,
				"title":      entry.Title,
				"kind":       kinds[i],
				"chunk":      i,
			},
		}
	}

	removed, err := a.store.DeleteByMetadata(ctx, vectorstore.Filter{"request_id": entry.RequestID})
	if err != nil {
		return 0, fmt.Errorf("clear previous archive chunks: %w", err)
	}
	if err := a.store.AddDocuments(ctx, docs); err != nil {
		return 0, fmt.Errorf("store archive chunks: %w", err)
	}

	a.logger.Info("Archived research", "request_id", entry.RequestID, "chunks", len(docs), "replaced", removed)
	return len(docs), nil
}

// Search returns the chunks most similar to query. A non-empty requestID
// restricts the search to one research run.
func (a *Archive) Search(ctx context.Context, query string, topK int, requestID string) ([]Hit, error) {
	if query == "" {
		return nil, errors.New("archive query is empty")
	}
	switch {
	case topK <= 0:
		topK = DefaultTopK
	case topK > MaxTopK:
		topK = MaxTopK
	}

	vec, err := a.embedder.EmbedText(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed archive query: %w", err)
	}

	filter := vectorstore.Filter{}
	if requestID != "" {
		filter["request_id"] = requestID
	}

	results, err := a.store.SimilaritySearch(ctx, vec, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("search archive: %w", err)
	}

	hits := make([]Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, Hit{
			RequestID: metaString(r.Document.Metadata, "request_id"),
			Title:     metaString(r.Document.Metadata, "title"),
			Kind:      metaString(r.Document.Metadata, "kind"),
			Content:   r.Document.Content,
			Score:     r.Score,
		})
	}
	return hits, nil
}

func metaString(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}
