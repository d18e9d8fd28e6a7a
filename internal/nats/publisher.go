package nats

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// Publisher writes retry items and cycle events to JetStream.
type Publisher struct {
	js jetstream.JetStream
}

// NewPublisher creates a new Publisher.
func NewPublisher(js jetstream.JetStream) *Publisher {
	return &Publisher{js: js}
}

// PublishInteractionRetry queues an Interaction for out-of-band persistence.
// The message id deduplicates repeated enqueues of the same Interaction.
func (p *Publisher) PublishInteractionRetry(ctx context.Context, event InteractionEvent) error {
	return p.publish(ctx, SubjectInteractionRetry, event, event.ID)
}

// PublishCycleEvent publishes an evolution cycle transition. A cycle enters
// each state at most once, so cycle and target state identify the event.
func (p *Publisher) PublishCycleEvent(ctx context.Context, event CycleEvent) error {
	return p.publish(ctx, SubjectCycleEvent, event, event.CycleID+":"+event.To)
}

func (p *Publisher) publish(ctx context.Context, subject string, v any, msgID string) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s payload: %w", subject, err)
	}
	if _, err := p.js.Publish(ctx, subject, payload, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("publishing %s (msg %s): %w", subject, msgID, err)
	}
	return nil
}
