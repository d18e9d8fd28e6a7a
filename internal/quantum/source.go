// Package quantum turns externally sourced randomness into a bounded
// generation-time influence value.
package quantum

import (
	"context"
	"fmt"
	"math"
	"strconv"
)

// Defaults mirror the small circuit the service has always measured.
const (
	DefaultQubits = 2
	DefaultShots  = 128
)

// Source draws one scalar in [0,1] from a circuit of the given size.
type Source interface {
	Draw(ctx context.Context, qubits, shots int) (float64, error)
}

// Circuit describes the measurement requested from a Source.
type Circuit struct {
	Qubits int `json:"qubits,omitempty" validate:"omitempty,min=1,max=16"`
	Shots  int `json:"shots,omitempty" validate:"omitempty,min=1,max=100000"`
}

func (c Circuit) withDefaults(qubits, shots int) Circuit {
	if c.Qubits <= 0 {
		c.Qubits = qubits
	}
	if c.Shots <= 0 {
		c.Shots = shots
	}
	return c
}

// ReduceCounts collapses a measurement histogram into one scalar: the
// shot-weighted mean of each outcome's value normalised by 2^qubits-1.
// Keys are bitstrings ("0101"); malformed keys are an error.
func ReduceCounts(counts map[string]int, qubits int) (float64, error) {
	if qubits < 1 {
		return 0, fmt.Errorf("qubits must be positive, got %d", qubits)
	}
	maxOutcome := math.Exp2(float64(qubits)) - 1

	var total, weighted float64
	for bits, n := range counts {
		if n < 0 {
			return 0, fmt.Errorf("negative count for outcome %q", bits)
		}
		v, err := strconv.ParseUint(bits, 2, 64)
		if err != nil {
			return 0, fmt.Errorf("parsing outcome %q: %w", bits, err)
		}
		if float64(v) > maxOutcome {
			return 0, fmt.Errorf("outcome %q exceeds %d qubits", bits, qubits)
		}
		total += float64(n)
		weighted += float64(n) * float64(v) / maxOutcome
	}
	if total == 0 {
		return 0, fmt.Errorf("empty measurement histogram")
	}
	return clamp01(weighted / total), nil
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v):
		return DefaultInfluence
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
