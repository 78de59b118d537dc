// Package splitter chunks research notes and reports before embedding.
package splitter

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"
)

// TextSplitter wraps a langchaingo splitter. Markdown reports are split on
// headings first so chunks keep their section context.
type TextSplitter struct {
	plain    textsplitter.TextSplitter
	markdown textsplitter.TextSplitter
}

func New(chunkSize, chunkOverlap int) (*TextSplitter, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}

	return &TextSplitter{
		plain: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
		markdown: textsplitter.NewMarkdownTextSplitter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
		),
	}, nil
}

// SplitText splits plain text such as compressed research notes.
func (ts *TextSplitter) SplitText(text string) ([]string, error) {
	return clean(ts.plain.SplitText(text))
}

// SplitMarkdown splits a markdown report along its headings.
func (ts *TextSplitter) SplitMarkdown(text string) ([]string, error) {
	return clean(ts.markdown.SplitText(text))
}

func clean(chunks []string, err error) ([]string, error) {
	if err != nil {
		return nil, fmt.Errorf("split text: %w", err)
	}
	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out, nil
}
