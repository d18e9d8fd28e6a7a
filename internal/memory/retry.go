package memory

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/obelisk-core/obelisk/internal/metrics"
	inats "github.com/obelisk-core/obelisk/internal/nats"
)

const retryConsumerName = "interaction-retry"

// retryBackoff is the redelivery delay after a failed replay.
const retryBackoff = 5 * time.Second

// NATSRetryQueue publishes failed interaction writes to JetStream.
type NATSRetryQueue struct {
	pub *inats.Publisher
}

// NewNATSRetryQueue creates a RetryQueue backed by the given publisher.
func NewNATSRetryQueue(pub *inats.Publisher) *NATSRetryQueue {
	return &NATSRetryQueue{pub: pub}
}

func (q *NATSRetryQueue) Enqueue(ctx context.Context, it Interaction, rec Record, reason string) error {
	return q.pub.PublishInteractionRetry(ctx, toEvent(it, rec, reason))
}

func toEvent(it Interaction, rec Record, reason string) inats.InteractionEvent {
	return inats.InteractionEvent{
		ID:          it.ID.String(),
		UserID:      it.UserID,
		Query:       it.Query,
		Response:    it.Response,
		CycleID:     it.CycleID,
		Energy:      it.Energy,
		QuantumSeed: it.QuantumSeed,
		RewardScore: it.RewardScore,
		CreatedAt:   it.CreatedAt,
		Memory:      rec.Content,
		Embedding:   rec.Embedding,
		Reason:      reason,
	}
}

func fromEvent(ev inats.InteractionEvent) (*Interaction, *Record, error) {
	id, err := uuid.Parse(ev.ID)
	if err != nil {
		return nil, nil, err
	}
	it := &Interaction{
		ID:          id,
		UserID:      ev.UserID,
		Query:       ev.Query,
		Response:    ev.Response,
		CycleID:     ev.CycleID,
		Energy:      ev.Energy,
		QuantumSeed: ev.QuantumSeed,
		RewardScore: ev.RewardScore,
		CreatedAt:   ev.CreatedAt,
	}
	rec := &Record{
		ID:        id,
		UserID:    ev.UserID,
		Content:   ev.Memory,
		Embedding: ev.Embedding,
		CreatedAt: ev.CreatedAt,
	}
	return it, rec, nil
}

// RetryConsumer replays queued interactions into the repository and, for
// rows it stores first, into the message history.
type RetryConsumer struct {
	repo        Repository
	history     History
	consumerMgr *inats.ConsumerManager
}

// NewRetryConsumer creates a new RetryConsumer. A nil history derives the
// window from the repository, as in solo mode.
func NewRetryConsumer(repo Repository, history History, consumerMgr *inats.ConsumerManager) *RetryConsumer {
	if history == nil {
		history = NewInteractionHistory(repo)
	}
	return &RetryConsumer{repo: repo, history: history, consumerMgr: consumerMgr}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (c *RetryConsumer) Start(ctx context.Context) error {
	consumer, err := c.consumerMgr.EnsureConsumer(ctx, inats.StreamRetry, retryConsumerName, inats.SubjectInteractionRetry)
	if err != nil {
		return err
	}

	slog.Info("interaction retry consumer started", "consumer", retryConsumerName)

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("retry consumer: fetching messages", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			c.handle(ctx, msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (c *RetryConsumer) handle(ctx context.Context, msg jetstream.Msg) {
	var ev inats.InteractionEvent
	if err := json.Unmarshal(msg.Data(), &ev); err != nil {
		slog.Error("retry consumer: unmarshaling event", "error", err)
		metrics.InteractionRetriesTotal.WithLabelValues("dropped").Inc()
		_ = msg.Term()
		return
	}

	it, rec, err := fromEvent(ev)
	if err != nil {
		slog.Error("retry consumer: invalid interaction id", "error", err, "id", ev.ID)
		metrics.InteractionRetriesTotal.WithLabelValues("dropped").Inc()
		_ = msg.Term()
		return
	}

	inserted, err := c.repo.SaveInteraction(ctx, it, rec)
	if err != nil {
		slog.Warn("retry consumer: persisting interaction", "error", err, "interaction_id", ev.ID)
		metrics.InteractionRetriesTotal.WithLabelValues("failed").Inc()
		_ = msg.NakWithDelay(retryBackoff)
		return
	}
	if inserted {
		appendTurns(ctx, c.history, it)
	}

	_ = msg.Ack()
	metrics.InteractionRetriesTotal.WithLabelValues("persisted").Inc()
	slog.Info("retry consumer: interaction persisted", "interaction_id", ev.ID, "user_id", ev.UserID)
}
