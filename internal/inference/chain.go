package inference

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/obelisk-core/obelisk/internal/failure"
	"github.com/obelisk-core/obelisk/internal/metrics"
)

// BreakerConfig holds configuration for the per-backend circuit breakers.
type BreakerConfig struct {
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultBreakerConfig returns a default configuration for circuit breakers.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		MaxRequests:      1,
		Interval:         60 * time.Second,
		Timeout:          30 * time.Second,
		FailureThreshold: 0.6,
		MinRequests:      5,
	}
}

type backend struct {
	model  Model
	source string
	cb     *gobreaker.CircuitBreaker
}

// Chain tries the primary model first and each fallback in order. Every
// backend sits behind its own circuit breaker.
type Chain struct {
	backends []backend
}

// NewChain builds a chain. primary must be non-nil; fallbacks may be empty.
func NewChain(cfg BreakerConfig, primary Model, fallbacks ...Model) *Chain {
	c := &Chain{}
	c.add(cfg, primary, SourceModel)
	for _, m := range fallbacks {
		if m != nil {
			c.add(cfg, m, SourceFallback)
		}
	}
	return c
}

func (c *Chain) add(cfg BreakerConfig, m Model, source string) {
	name := m.Name()
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			slog.Warn("model circuit breaker state changed", "backend", name, "from", from.String(), "to", to.String())
			metrics.ModelBreakerState.WithLabelValues(name).Set(float64(to))
		},
		IsSuccessful: func(err error) bool {
			// The caller giving up says nothing about backend health.
			return err == nil || errors.Is(err, context.Canceled)
		},
	})
	metrics.ModelBreakerState.WithLabelValues(name).Set(float64(gobreaker.StateClosed))
	c.backends = append(c.backends, backend{model: m, source: source, cb: cb})
}

// Primary returns the first backend's model.
func (c *Chain) Primary() Model {
	return c.backends[0].model
}

// Generate returns the first successful output, tagged with its source.
// A deadline hit on ctx yields a timeout failure; otherwise the error of
// every attempted backend is reported as an inference failure.
func (c *Chain) Generate(ctx context.Context, req Request) (Output, error) {
	const op = "inference.Generate"

	var errs []error
	for _, b := range c.backends {
		if err := ctx.Err(); err != nil {
			return Output{}, contextFailure(op, err)
		}

		res, err := b.cb.Execute(func() (interface{}, error) {
			return b.model.Generate(ctx, req)
		})
		if err == nil {
			out := res.(Output)
			out.Source = b.source
			return out, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return Output{}, contextFailure(op, ctxErr)
		}
		slog.Warn("model backend failed", "backend", b.model.Name(), "source", b.source, "error", err)
		errs = append(errs, fmt.Errorf("%s: %w", b.model.Name(), err))
	}

	return Output{}, failure.Wrapf(failure.KindInference, op, errors.Join(errs...), "all model backends failed")
}

func contextFailure(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return failure.Wrapf(failure.KindTimeout, op, err, "generation deadline exceeded")
	}
	return failure.Wrapf(failure.KindInference, op, err, "generation cancelled")
}
