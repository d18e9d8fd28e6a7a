package memory

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/obelisk-core/obelisk/internal/failure"
	"github.com/obelisk-core/obelisk/internal/metrics"
)

// Embedder turns text into a vector for similarity search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// RetryQueue accepts interactions whose inline write failed.
type RetryQueue interface {
	Enqueue(ctx context.Context, it Interaction, rec Record, reason string) error
}

// Service builds conversation context and persists interactions.
type Service struct {
	repo     Repository
	history  History
	embedder Embedder
	retry    RetryQueue
	opts     Options
	now      func() time.Time
}

// NewService creates a new memory service. embedder and retry may be nil.
func NewService(repo Repository, history History, embedder Embedder, retry RetryQueue, opts Options) *Service {
	if history == nil {
		history = NewInteractionHistory(repo)
	}
	return &Service{
		repo:     repo,
		history:  history,
		embedder: embedder,
		retry:    retry,
		opts:     opts.withDefaults(),
		now:      time.Now,
	}
}

// BuildContext assembles the message window and memory summary for a user.
// An empty query selects memories by recency alone.
func (s *Service) BuildContext(ctx context.Context, userID, query string) (ConversationContext, error) {
	const op = "memory.BuildContext"

	out := Empty()
	if userID == "" {
		return out, nil
	}

	msgs, err := s.history.Recent(ctx, userID, s.opts.MaxMessages)
	if err != nil {
		return Empty(), failure.Wrapf(failure.KindPersistence, op, err, "reading message history")
	}
	if len(msgs) > s.opts.MaxMessages {
		msgs = msgs[len(msgs)-s.opts.MaxMessages:]
	}
	out.Messages = append(out.Messages, msgs...)

	records, err := s.repo.ListMemories(ctx, userID, s.opts.CandidateLimit)
	if err != nil {
		return Empty(), failure.Wrapf(failure.KindPersistence, op, err, "listing memories")
	}
	if len(records) == 0 {
		return out, nil
	}

	similarity := s.similarity(ctx, userID, query)
	out.MemorySummary = summarize(rankRecords(records, query, similarity, s.opts.MaxMemories))
	return out, nil
}

// similarity runs a vector search when an embedder is configured. Failures
// only cost the semantic signal.
func (s *Service) similarity(ctx context.Context, userID, query string) map[uuid.UUID]float64 {
	if s.embedder == nil || strings.TrimSpace(query) == "" {
		return nil
	}
	emb, err := s.embedder.Embed(ctx, query)
	if err != nil {
		slog.Warn("memory: embedding query", "error", err, "user_id", userID)
		return nil
	}
	results, err := s.repo.SearchSimilar(ctx, userID, emb, s.opts.CandidateLimit)
	if err != nil {
		slog.Warn("memory: searching similar memories", "error", err, "user_id", userID)
		return nil
	}
	out := make(map[uuid.UUID]float64, len(results))
	for _, r := range results {
		out[r.Record.ID] = r.Similarity
	}
	return out
}

// RecordInteraction persists an interaction and its memory record. The
// interaction gets an id and timestamp if missing. The repository attaches it
// to the Open evolution cycle when exactly one exists at write time.
func (s *Service) RecordInteraction(ctx context.Context, it *Interaction) error {
	_, err := s.record(ctx, it)
	return err
}

// RecordGenerated is RecordInteraction for the generation path: a failed
// write is queued for out-of-band retry and still reported to the caller.
func (s *Service) RecordGenerated(ctx context.Context, it *Interaction) error {
	rec, err := s.record(ctx, it)
	if err == nil || !failure.Is(err, failure.KindPersistence) {
		return err
	}

	metrics.InteractionPersistFailuresTotal.Inc()
	if s.retry == nil || rec == nil {
		return err
	}
	if qerr := s.retry.Enqueue(ctx, *it, *rec, err.Error()); qerr != nil {
		slog.Error("memory: queueing interaction retry", "error", qerr, "interaction_id", it.ID)
		return err
	}
	slog.Info("memory: interaction queued for retry", "interaction_id", it.ID, "user_id", it.UserID)
	return err
}

func (s *Service) record(ctx context.Context, it *Interaction) (*Record, error) {
	const op = "memory.RecordInteraction"

	if strings.TrimSpace(it.UserID) == "" {
		return nil, failure.New(failure.KindValidation, op, "user id is required")
	}
	if it.ID == uuid.Nil {
		it.ID = uuid.New()
	}
	if it.CreatedAt.IsZero() {
		it.CreatedAt = s.now().UTC()
	}
	rec := &Record{
		ID:        it.ID,
		UserID:    it.UserID,
		Content:   truncateRunes("User: "+it.Query+"\nAssistant: "+it.Response, s.opts.SummaryMaxLength),
		CreatedAt: it.CreatedAt,
	}
	if s.embedder != nil {
		emb, err := s.embedder.Embed(ctx, rec.Content)
		if err != nil {
			slog.Warn("memory: embedding interaction", "error", err, "interaction_id", it.ID)
		} else {
			rec.Embedding = emb
		}
	}

	inserted, err := s.repo.SaveInteraction(ctx, it, rec)
	if err != nil {
		return rec, failure.Wrapf(failure.KindPersistence, op, err, "saving interaction %s", it.ID)
	}
	if inserted {
		appendTurns(ctx, s.history, it)
	}

	slog.Debug("memory: interaction recorded", "interaction_id", it.ID, "user_id", it.UserID, "cycle_id", it.CycleID)
	return rec, nil
}

// appendTurns adds the user and assistant turns of a newly stored
// interaction to the message history. Failures only cost the window entry.
func appendTurns(ctx context.Context, h History, it *Interaction) {
	if err := h.Append(ctx, it.UserID,
		ConversationEntry{Role: RoleUser, Content: it.Query, Timestamp: it.CreatedAt},
		ConversationEntry{Role: RoleAssistant, Content: it.Response, Timestamp: it.CreatedAt},
	); err != nil {
		slog.Warn("memory: appending message history", "error", err, "user_id", it.UserID)
	}
}

// InteractionsByCycle returns the interactions attached to a cycle.
func (s *Service) InteractionsByCycle(ctx context.Context, cycleID string) ([]Interaction, error) {
	its, err := s.repo.InteractionsByCycle(ctx, cycleID)
	if err != nil {
		return nil, failure.Wrapf(failure.KindPersistence, "memory.InteractionsByCycle", err, "cycle %s", cycleID)
	}
	return its, nil
}
