package splitter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRejectsBadSizes(t *testing.T) {
	_, err := New(0, 0)
	assert.Error(t, err)

	_, err = New(100, 100)
	assert.Error(t, err)

	_, err = New(100, -1)
	assert.Error(t, err)
}

func TestSplitTextRespectsChunkSize(t *testing.T) {
	ts, err := New(100, 10)
	require.NoError(t, err)

	text := strings.Repeat("Paris is the capital of France. ", 20)
	chunks, err := ts.SplitText(text)
	require.NoError(t, err)

	require.Greater(t, len(chunks), 1)
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c), 100)
		assert.NotEmpty(t, strings.TrimSpace(c))
	}
}

func TestSplitMarkdownKeepsSections(t *testing.T) {
	ts, err := New(200, 0)
	require.NoError(t, err)

	report := "# Capital of France\n\n## History\n\n" + strings.Repeat("Paris grew along the Seine. ", 10) +
		"\n\n## Population\n\n" + strings.Repeat("About two million people live in Paris. ", 10)
	chunks, err := ts.SplitMarkdown(report)
	require.NoError(t, err)

	joined := strings.Join(chunks, "\n")
	assert.Contains(t, joined, "History")
	assert.Contains(t, joined, "Population")
	assert.Greater(t, len(chunks), 1)
}

func TestSplitEmpty(t *testing.T) {
	ts, err := New(100, 10)
	require.NoError(t, err)

	chunks, err := ts.SplitText("")
	require.NoError(t, err)
	assert.Empty(t, chunks)
}
