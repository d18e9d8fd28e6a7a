package inference

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/obelisk-core/obelisk/internal/memory"
)

// GeminiModel answers through the Gemini API. It returns text only.
type GeminiModel struct {
	client *genai.Client
	model  string
}

// NewGeminiClient creates a Gemini API client.
func NewGeminiClient(ctx context.Context, apiKey string) (*genai.Client, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating GenAI client: %w", err)
	}
	return client, nil
}

// NewGeminiModel creates a Model backed by the given client.
func NewGeminiModel(client *genai.Client, model string) *GeminiModel {
	if model == "" {
		model = "gemini-2.5-flash"
	}
	return &GeminiModel{client: client, model: model}
}

func (g *GeminiModel) Name() string { return "gemini" }

func (g *GeminiModel) Generate(ctx context.Context, req Request) (Output, error) {
	contents, cfg := geminiPrompt(req)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, cfg)
	if err != nil {
		return Output{}, fmt.Errorf("GenAI generate failed: %w", err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return Output{}, fmt.Errorf("GenAI returned no text")
	}
	return Output{Text: text}, nil
}

// geminiPrompt maps a Request to Gemini contents. The memory summary goes
// into the system instruction, the history into alternating turns.
func geminiPrompt(req Request) ([]*genai.Content, *genai.GenerateContentConfig) {
	contents := make([]*genai.Content, 0, len(req.Messages)+1)
	for _, m := range req.Messages {
		role := genai.Role(genai.RoleUser)
		if m.Role == memory.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(m.Content, role))
	}
	contents = append(contents, genai.NewContentFromText(req.Query, genai.RoleUser))

	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if req.MemorySummary != "" {
		cfg.SystemInstruction = genai.NewContentFromText(
			"Relevant memories about this user:\n"+req.MemorySummary, genai.RoleUser)
	}
	return contents, cfg
}

// GeminiEmbedder produces embeddings with a Gemini embedding model.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
}

// NewGeminiEmbedder creates an embedder backed by the given client.
func NewGeminiEmbedder(client *genai.Client, model string) *GeminiEmbedder {
	if model == "" {
		model = "gemini-embedding-001"
	}
	return &GeminiEmbedder{client: client, model: model}
}

// Embed generates an embedding for a single text.
func (e *GeminiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	contents := []*genai.Content{
		genai.NewContentFromText(text, genai.RoleUser),
	}

	result, err := e.client.Models.EmbedContent(ctx,
		e.model,
		contents,
		&genai.EmbedContentConfig{
			TaskType: "SEMANTIC_SIMILARITY",
		},
	)
	if err != nil {
		return nil, fmt.Errorf("GenAI embed failed: %w", err)
	}

	if len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("no embeddings returned")
	}

	return result.Embeddings[0].Values, nil
}
