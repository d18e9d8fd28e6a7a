package quantum

import (
	"context"
	"log/slog"
	"time"

	"github.com/obelisk-core/obelisk/internal/failure"
	"github.com/obelisk-core/obelisk/internal/metrics"
)

// DefaultInfluence is the neutral midpoint used whenever no draw is available.
const DefaultInfluence = 0.5

// Influence is the value handed to generation together with its provenance.
type Influence struct {
	Value   float64 `json:"influence"`
	Random  float64 `json:"random_value"`
	Weight  float64 `json:"weight"`
	Quantum bool    `json:"quantum"`
}

// Sampler draws from a Source under a deadline and degrades to
// DefaultInfluence when the source is unavailable.
type Sampler struct {
	source  Source
	qubits  int
	shots   int
	timeout time.Duration
}

// NewSampler creates a sampler. Non-positive sizes fall back to the defaults.
func NewSampler(source Source, qubits, shots int, timeout time.Duration) *Sampler {
	if qubits <= 0 {
		qubits = DefaultQubits
	}
	if shots <= 0 {
		shots = DefaultShots
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Sampler{source: source, qubits: qubits, shots: shots, timeout: timeout}
}

// Sample combines weight (in [0,1]) with one draw:
// influence = (1-weight)*DefaultInfluence + weight*draw.
// A failed draw yields DefaultInfluence with Quantum=false; the returned
// error, if any, is a degraded-input failure and never aborts generation.
func (s *Sampler) Sample(ctx context.Context, weight float64) (Influence, error) {
	weight = clamp01(weight)

	draw, err := s.Draw(ctx, Circuit{})
	if err != nil {
		return Influence{Value: DefaultInfluence, Random: DefaultInfluence, Weight: weight}, err
	}

	value := (1-weight)*DefaultInfluence + weight*draw.Random
	return Influence{
		Value:   clamp01(value),
		Random:  draw.Random,
		Weight:  weight,
		Quantum: true,
	}, nil
}

// Draw measures the given circuit (zero fields use the sampler's defaults)
// and reports the raw value as both influence and random value.
func (s *Sampler) Draw(ctx context.Context, c Circuit) (Influence, error) {
	c = c.withDefaults(s.qubits, s.shots)

	if s.source == nil {
		metrics.InfluenceDrawsTotal.WithLabelValues("default").Inc()
		return defaultInfluence(), failure.New(failure.KindDegradedInput, "quantum draw", "no randomness source configured")
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	type result struct {
		v   float64
		err error
	}
	// Sources that ignore ctx must still not block the caller past the deadline.
	ch := make(chan result, 1)
	go func() {
		v, err := s.source.Draw(ctx, c.Qubits, c.Shots)
		ch <- result{v, err}
	}()

	var r result
	select {
	case r = <-ch:
	case <-ctx.Done():
		r.err = ctx.Err()
	}

	if r.err != nil {
		slog.Warn("quantum: randomness source unavailable, using default influence",
			"error", r.err, "qubits", c.Qubits, "shots", c.Shots)
		metrics.InfluenceDrawsTotal.WithLabelValues("default").Inc()
		return defaultInfluence(), failure.Wrapf(failure.KindDegradedInput, "quantum draw", r.err, "randomness source unavailable")
	}

	v := clamp01(r.v)
	metrics.InfluenceDrawsTotal.WithLabelValues("quantum").Inc()
	return Influence{Value: v, Random: v, Weight: 1, Quantum: true}, nil
}

func defaultInfluence() Influence {
	return Influence{Value: DefaultInfluence, Random: DefaultInfluence, Weight: 1}
}
