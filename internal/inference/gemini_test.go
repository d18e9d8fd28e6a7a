package inference

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/obelisk-core/obelisk/internal/memory"
)

func TestGeminiPrompt(t *testing.T) {
	contents, cfg := geminiPrompt(Request{
		Query: "and now?",
		Messages: []memory.Message{
			{Role: memory.RoleUser, Content: "hello"},
			{Role: memory.RoleAssistant, Content: "hi"},
		},
		MemorySummary: "- likes tea",
		Temperature:   0.8,
		MaxTokens:     128,
	})

	require.Len(t, contents, 3)
	assert.Equal(t, genai.RoleUser, genai.Role(contents[0].Role))
	assert.Equal(t, genai.RoleModel, genai.Role(contents[1].Role))
	assert.Equal(t, "and now?", contents[2].Parts[0].Text)

	require.NotNil(t, cfg.Temperature)
	assert.InDelta(t, 0.8, *cfg.Temperature, 1e-6)
	assert.Equal(t, int32(128), cfg.MaxOutputTokens)
	require.NotNil(t, cfg.SystemInstruction)
	assert.Contains(t, cfg.SystemInstruction.Parts[0].Text, "- likes tea")
}

func TestGeminiPrompt_NoSummary(t *testing.T) {
	contents, cfg := geminiPrompt(Request{Query: "q"})
	assert.Len(t, contents, 1)
	assert.Nil(t, cfg.SystemInstruction)
	assert.Zero(t, cfg.MaxOutputTokens)
}
