package generation

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/obelisk-core/obelisk/internal/failure"
	"github.com/obelisk-core/obelisk/internal/inference"
	"github.com/obelisk-core/obelisk/internal/memory"
	"github.com/obelisk-core/obelisk/internal/metrics"
	"github.com/obelisk-core/obelisk/internal/quantum"
	"github.com/obelisk-core/obelisk/internal/thinking"
)

// ContextBuilder produces the conversation context for a user.
type ContextBuilder interface {
	BuildContext(ctx context.Context, userID, query string) (memory.ConversationContext, error)
}

// InfluenceSampler yields the effective influence for a weight.
type InfluenceSampler interface {
	Sample(ctx context.Context, weight float64) (quantum.Influence, error)
}

// Generator invokes the model backends.
type Generator interface {
	Generate(ctx context.Context, req inference.Request) (inference.Output, error)
}

// Recorder persists the Interaction of a finished generation.
type Recorder interface {
	RecordGenerated(ctx context.Context, it *memory.Interaction) error
}

// Orchestrator runs a generation end to end: context, influence, model,
// segmentation, persistence.
type Orchestrator struct {
	contexts ContextBuilder
	sampler  InfluenceSampler
	model    Generator
	decoder  inference.Decoder
	recorder Recorder
	opts     Options
}

// NewOrchestrator creates a new Orchestrator. decoder may be nil, in which
// case responses are always taken from the backend's text.
func NewOrchestrator(
	contexts ContextBuilder,
	sampler InfluenceSampler,
	model Generator,
	decoder inference.Decoder,
	recorder Recorder,
	opts Options,
) *Orchestrator {
	if opts.EndMarker == "" {
		opts.EndMarker = thinking.DefaultEndMarker
	}
	return &Orchestrator{
		contexts: contexts,
		sampler:  sampler,
		model:    model,
		decoder:  decoder,
		recorder: recorder,
		opts:     opts,
	}
}

// Generate answers req. Only a model failure aborts the request; context,
// influence and persistence problems come back as warnings.
func (o *Orchestrator) Generate(ctx context.Context, req Request) (*Result, error) {
	const op = "generation.Generate"
	start := time.Now()

	weight := o.opts.DefaultWeight
	if req.InfluenceWeight != nil {
		weight = *req.InfluenceWeight
	}
	if math.IsNaN(weight) || weight < 0 || weight > 1 {
		return nil, failure.New(failure.KindValidation, op, "influence_weight must be within [0, 1]")
	}
	if strings.TrimSpace(req.Query) == "" {
		return nil, failure.New(failure.KindValidation, op, "query is required")
	}

	if o.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.opts.Timeout)
		defer cancel()
	}

	var warnings []Warning

	cc := memory.Empty()
	switch {
	case req.Context != nil:
		cc = *req.Context
		if cc.Messages == nil {
			cc.Messages = []memory.Message{}
		}
	case req.UserID != "" && o.contexts != nil:
		built, err := o.contexts.BuildContext(ctx, req.UserID, req.Query)
		if err != nil {
			slog.Warn("generation: context unavailable, using empty context", "error", err, "user_id", req.UserID)
			warnings = append(warnings, Warning{Kind: failure.KindDegradedInput, Message: "conversation context unavailable"})
		} else {
			cc = built
		}
	}

	infl, err := o.sampler.Sample(ctx, weight)
	if err != nil {
		slog.Warn("generation: influence draw failed, using default", "error", err)
		infl = quantum.Influence{Value: quantum.DefaultInfluence, Random: quantum.DefaultInfluence, Weight: weight}
		warnings = append(warnings, Warning{Kind: failure.KindDegradedInput, Message: "quantum influence unavailable, default used"})
	}

	out, err := o.model.Generate(ctx, inference.Request{
		Query:         req.Query,
		Messages:      cc.Messages,
		MemorySummary: cc.MemorySummary,
		Influence:     infl.Value,
		Temperature:   o.temperature(infl.Value),
		MaxTokens:     o.opts.MaxTokens,
	})
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues("none", "error").Inc()
		if failure.KindOf(err) == failure.KindInternal {
			err = failure.Wrapf(failure.KindInference, op, err, "model inference failed")
		}
		slog.Error("generation: model inference failed", "error", err, "user_id", req.UserID)
		return nil, err
	}

	thinkTokens, contentTokens, text := o.segment(ctx, out)

	res := &Result{
		ResponseText:   text,
		ThinkingTokens: thinkTokens,
		ContentTokens:  contentTokens,
		Source:         out.Source,
		Influence:      infl.Value,
		Quantum:        infl.Quantum,
	}

	if req.UserID != "" && o.recorder != nil {
		it := &memory.Interaction{
			ID:          uuid.New(),
			UserID:      req.UserID,
			Query:       req.Query,
			Response:    text,
			QuantumSeed: infl.Value,
		}
		res.InteractionID = it.ID.String()

		// The caller already has an answer; a cancelled request must not
		// abandon the write.
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), o.opts.PersistTimeout)
		if err := o.recorder.RecordGenerated(pctx, it); err != nil {
			slog.Error("generation: persisting interaction", "error", err, "interaction_id", it.ID, "user_id", req.UserID)
			warnings = append(warnings, Warning{Kind: failure.KindOf(err), Message: failure.MessageOf(err)})
		}
		cancel()
	}

	res.Warnings = warnings
	metrics.GenerationsTotal.WithLabelValues(out.Source, "ok").Inc()
	metrics.GenerationDuration.Observe(time.Since(start).Seconds())

	slog.Info("generation completed",
		"source", res.Source,
		"influence", res.Influence,
		"quantum", res.Quantum,
		"content_tokens", len(res.ContentTokens),
		"warnings", len(res.Warnings),
		"duration", time.Since(start),
	)
	return res, nil
}

// temperature maps influence onto the sampling temperature.
func (o *Orchestrator) temperature(influence float64) float64 {
	return o.opts.BaseTemperature + influence*o.opts.TemperatureSpread
}

// segment separates thinking from content. Raw tokens from the primary model
// are split and the content decoded; text-only output is split on the end
// marker.
func (o *Orchestrator) segment(ctx context.Context, out inference.Output) (thinkTokens, contentTokens []int, text string) {
	if len(out.Tokens) == 0 {
		_, text = thinking.SplitText(out.Text, o.opts.EndMarker)
		return []int{}, []int{}, text
	}

	thinkTokens, contentTokens = thinking.Split(out.Tokens, o.opts.EndToken)
	if o.decoder != nil && out.Source == inference.SourceModel {
		decoded, err := o.decoder.Decode(ctx, contentTokens)
		if err == nil {
			return thinkTokens, contentTokens, strings.TrimSpace(decoded)
		}
		slog.Warn("generation: decoding content tokens, using returned text", "error", err)
	}
	_, text = thinking.SplitText(out.Text, o.opts.EndMarker)
	return thinkTokens, contentTokens, text
}
