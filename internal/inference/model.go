// Package inference talks to the language-model backends that produce
// responses and embeddings.
package inference

import (
	"context"

	"github.com/obelisk-core/obelisk/internal/memory"
)

// Sources reported for a generation.
const (
	SourceModel    = "model"
	SourceFallback = "fallback"
)

// Request is one model invocation.
type Request struct {
	Query         string           `json:"query"`
	Messages      []memory.Message `json:"messages"`
	MemorySummary string           `json:"memory_summary"`
	Influence     float64          `json:"quantum_influence"`
	Temperature   float64          `json:"temperature"`
	MaxTokens     int              `json:"max_tokens"`
}

// Output is what a backend produced. Tokens is empty for backends that only
// return text.
type Output struct {
	Text   string
	Tokens []int
	Source string
}

// Model produces a response for a request.
type Model interface {
	Name() string
	Generate(ctx context.Context, req Request) (Output, error)
}

// Decoder turns token ids back into text.
type Decoder interface {
	Decode(ctx context.Context, tokens []int) (string, error)
}

// Checker reports whether a backend has its model loaded.
type Checker interface {
	Ready(ctx context.Context) error
}
