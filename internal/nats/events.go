package nats

import (
	"time"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamRetry  = "OBELISK_RETRY"
	StreamEvents = "OBELISK_EVENTS"
)

// Subject constants.
const (
	SubjectInteractionRetry = "obelisk.retry.interactions"
	SubjectCycleEvent       = "obelisk.events.cycle"
)

// InteractionEvent carries an Interaction whose inline write failed, together
// with the memory record derived from it. Replays are idempotent by ID.
type InteractionEvent struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Query       string    `json:"query"`
	Response    string    `json:"response"`
	CycleID     string    `json:"cycle_id,omitempty"`
	Energy      float64   `json:"energy"`
	QuantumSeed float64   `json:"quantum_seed"`
	RewardScore float64   `json:"reward_score"`
	CreatedAt   time.Time `json:"created_at"`
	Memory      string    `json:"memory"`
	Embedding   []float32 `json:"embedding,omitempty"`
	Reason      string    `json:"reason"`
}

// CycleEvent is published on every evolution cycle state transition.
type CycleEvent struct {
	CycleID       string    `json:"cycle_id"`
	From          string    `json:"from,omitempty"`
	To            string    `json:"to"`
	ArtifactID    string    `json:"artifact_id,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}
