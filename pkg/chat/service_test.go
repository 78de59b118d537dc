package chat

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/SwarnimWalavalkar/conjure/pkg/research"
)

func TestTitlePromptTruncatesOnRuneBoundary(t *testing.T) {
	reply := strings.Repeat("é", titleReplyLimit+10)

	prompt := titlePrompt("Tell me about Montréal", reply)

	assert.True(t, utf8.ValidString(prompt))
	assert.Contains(t, prompt, "User: Tell me about Montréal")
	assert.Equal(t, titleReplyLimit, strings.Count(prompt, "é")-strings.Count("Montréal", "é"))
}

func TestTitlePromptKeepsShortReply(t *testing.T) {
	prompt := titlePrompt("capital of France?", "Paris.")
	assert.True(t, strings.HasSuffix(prompt, "Model: Paris."))
}

func TestResearchConversationMapsRoles(t *testing.T) {
	history := []Message{{Role: "user", Content: "Tell me about Paris"}, {Role: "model", Content: "What aspect?"}}

	got := researchConversation(history, "Its history")

	assert.Equal(t, []research.Message{
		{Role: "user", Content: "Tell me about Paris"},
		{Role: "assistant", Content: "What aspect?"},
		{Role: "user", Content: "Its history"},
	}, got)
}
