// Package evolution runs evolution cycles: it ranks the users whose
// interactions fed a cycle and optionally fine-tunes on them.
package evolution

import (
	"errors"
	"time"
)

// State is the lifecycle position of a cycle.
type State string

const (
	StateOpen      State = "open"
	StateScoring   State = "scoring"
	StateTraining  State = "training"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

// ErrCycleNotFound is returned by repositories for unknown cycle ids.
var ErrCycleNotFound = errors.New("evolution cycle not found")

// ErrStaleState is returned when a transition finds the cycle no longer in
// the expected source state.
var ErrStaleState = errors.New("evolution cycle state changed concurrently")

// Contributor is one ranked user of a cycle.
type Contributor struct {
	UserID            string    `json:"user_id"`
	Score             float64   `json:"score"`
	Interactions      int       `json:"interactions"`
	FirstContribution time.Time `json:"first_contribution"`
}

// Cycle is an aggregation window over interactions.
type Cycle struct {
	ID                string        `json:"cycle_id"`
	State             State         `json:"state"`
	TopContributors   []Contributor `json:"top_contributors"`
	TrainedArtifactID string        `json:"trained_artifact_id,omitempty"`
	FailureReason     string        `json:"failure_reason,omitempty"`
	CreatedAt         time.Time     `json:"created_at"`
	UpdatedAt         time.Time     `json:"updated_at"`
}

// StartRequest opens a new cycle.
type StartRequest struct {
	CycleID string `json:"cycle_id" validate:"required,max=128,excludesall=/"`
}

// EvolveRequest closes a cycle. FineTune defaults to true.
type EvolveRequest struct {
	CycleID  string `json:"cycle_id" validate:"required,max=128"`
	FineTune *bool  `json:"fine_tune,omitempty"`
}

// Result is the outcome of an evolve call.
type Result struct {
	CycleID         string        `json:"cycle_id"`
	Status          State         `json:"status"`
	ArtifactID      string        `json:"artifact_id,omitempty"`
	TopContributors []Contributor `json:"top_contributors"`
}
