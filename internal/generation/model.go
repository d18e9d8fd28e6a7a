package generation

import (
	"time"

	"github.com/obelisk-core/obelisk/internal/failure"
	"github.com/obelisk-core/obelisk/internal/memory"
	"github.com/obelisk-core/obelisk/internal/thinking"
)

// DefaultInfluenceWeight applies when a request omits influence_weight.
const DefaultInfluenceWeight = 0.7

// Request is the input of one generation. A supplied Context is used as is;
// otherwise one is built for UserID when present.
type Request struct {
	Query           string                      `json:"query" validate:"required,max=32768"`
	InfluenceWeight *float64                    `json:"influence_weight,omitempty" validate:"omitempty,gte=0,lte=1"`
	Context         *memory.ConversationContext `json:"context,omitempty"`
	UserID          string                      `json:"user_id,omitempty" validate:"omitempty,max=256"`
}

// Warning is a non-fatal problem met while producing a Result.
type Warning struct {
	Kind    failure.Kind `json:"kind"`
	Message string       `json:"message"`
}

// Result is the outcome of a generation. ResponseText comes from the content
// segment only.
type Result struct {
	ResponseText   string    `json:"response_text"`
	ThinkingTokens []int     `json:"thinking_tokens"`
	ContentTokens  []int     `json:"content_tokens"`
	Source         string    `json:"source"`
	Influence      float64   `json:"quantum_influence"`
	Quantum        bool      `json:"quantum"`
	InteractionID  string    `json:"interaction_id,omitempty"`
	Warnings       []Warning `json:"warnings,omitempty"`
}

// Options tune the orchestrator.
type Options struct {
	EndToken          int
	EndMarker         string
	BaseTemperature   float64
	TemperatureSpread float64
	MaxTokens         int
	DefaultWeight     float64
	Timeout           time.Duration
	PersistTimeout    time.Duration
}

// DefaultOptions returns Options with sensible defaults.
func DefaultOptions() Options {
	return Options{
		EndToken:          thinking.DefaultEndToken,
		EndMarker:         thinking.DefaultEndMarker,
		BaseTemperature:   0.6,
		TemperatureSpread: 0.4,
		MaxTokens:         1024,
		DefaultWeight:     DefaultInfluenceWeight,
		Timeout:           120 * time.Second,
		PersistTimeout:    10 * time.Second,
	}
}
