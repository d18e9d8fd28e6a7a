package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// History supplies the bounded message window for a user.
type History interface {
	Recent(ctx context.Context, userID string, limit int) ([]Message, error)
	Append(ctx context.Context, userID string, entries ...ConversationEntry) error
}

// ShortTermStore manages conversation history in Redis lists.
type ShortTermStore struct {
	client  redis.Cmdable
	maxMsgs int
	ttl     time.Duration
}

// NewShortTermStore creates a new short-term memory store that keeps at most
// maxMsgs entries per user for ttlSec seconds after the last write.
func NewShortTermStore(client redis.Cmdable, maxMsgs, ttlSec int) *ShortTermStore {
	if maxMsgs <= 0 {
		maxMsgs = DefaultOptions().MaxMessages
	}
	if ttlSec <= 0 {
		ttlSec = 86400
	}
	return &ShortTermStore{client: client, maxMsgs: maxMsgs, ttl: time.Duration(ttlSec) * time.Second}
}

func historyKey(userID string) string {
	return "history:" + userID
}

// GetRecentMessages returns the last `limit` conversation entries for the user.
func (s *ShortTermStore) GetRecentMessages(ctx context.Context, userID string, limit int) ([]ConversationEntry, error) {
	key := historyKey(userID)

	// LRANGE key -limit -1 returns the last `limit` elements
	vals, err := s.client.LRange(ctx, key, int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("lrange %s: %w", key, err)
	}

	entries := make([]ConversationEntry, 0, len(vals))
	for _, v := range vals {
		var entry ConversationEntry
		if err := json.Unmarshal([]byte(v), &entry); err != nil {
			continue // skip malformed entries
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

// Recent implements History.
func (s *ShortTermStore) Recent(ctx context.Context, userID string, limit int) ([]Message, error) {
	entries, err := s.GetRecentMessages(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	msgs := make([]Message, 0, len(entries))
	for _, e := range entries {
		msgs = append(msgs, Message{Role: e.Role, Content: e.Content})
	}
	return msgs, nil
}

// Append adds entries to the user's list in one pipeline and trims it.
func (s *ShortTermStore) Append(ctx context.Context, userID string, entries ...ConversationEntry) error {
	if len(entries) == 0 {
		return nil
	}
	key := historyKey(userID)

	values := make([]any, 0, len(entries))
	for _, e := range entries {
		data, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshaling entry: %w", err)
		}
		values = append(values, string(data))
	}

	pipe := s.client.Pipeline()
	pipe.RPush(ctx, key, values...)
	pipe.LTrim(ctx, key, int64(-s.maxMsgs), -1)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("pipeline exec for %s: %w", key, err)
	}
	return nil
}

// InteractionHistory derives the message window from persisted interactions.
// It backs solo mode, where no Redis is available.
type InteractionHistory struct {
	repo Repository
}

// NewInteractionHistory creates a History over the interaction store.
func NewInteractionHistory(repo Repository) *InteractionHistory {
	return &InteractionHistory{repo: repo}
}

// Recent returns up to limit messages, oldest first, built from the most
// recent interactions (each contributes a user and an assistant turn).
func (h *InteractionHistory) Recent(ctx context.Context, userID string, limit int) ([]Message, error) {
	if limit <= 0 {
		return []Message{}, nil
	}
	// Newest first from the store; two messages per interaction.
	interactions, err := h.repo.RecentInteractions(ctx, userID, (limit+1)/2)
	if err != nil {
		return nil, err
	}

	msgs := make([]Message, 0, 2*len(interactions))
	for i := len(interactions) - 1; i >= 0; i-- {
		it := interactions[i]
		msgs = append(msgs,
			Message{Role: RoleUser, Content: it.Query},
			Message{Role: RoleAssistant, Content: it.Response},
		)
	}
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}
	return msgs, nil
}

// Append is a no-op: the interaction row already is the history.
func (h *InteractionHistory) Append(context.Context, string, ...ConversationEntry) error {
	return nil
}
