package memory

import (
	"time"

	"github.com/google/uuid"
)

// Interaction is one completed query/response exchange. It is written once
// by RecordInteraction and never updated.
type Interaction struct {
	ID          uuid.UUID `json:"id"`
	UserID      string    `json:"user_id"`
	Query       string    `json:"query"`
	Response    string    `json:"response"`
	CycleID     string    `json:"cycle_id,omitempty"`
	Energy      float64   `json:"energy"`
	QuantumSeed float64   `json:"quantum_seed"`
	RewardScore float64   `json:"reward_score"`
	CreatedAt   time.Time `json:"created_at"`
}

// Record is a durable memory owned by a user. Records are superseded by
// newer ones, never edited.
type Record struct {
	ID        uuid.UUID `json:"id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"embedding,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ScoredRecord wraps a Record with its vector similarity to a query.
type ScoredRecord struct {
	Record     Record  `json:"record"`
	Similarity float64 `json:"similarity"`
}

// SaveInteractionRequest is the body of the manual save endpoint.
type SaveInteractionRequest struct {
	Query    string `json:"query" validate:"required,min=1"`
	Response string `json:"response" validate:"required,min=1"`
}
