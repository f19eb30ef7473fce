package agent

import (
	"context"
	"encoding/json"
	"time"

	"salonflow/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	contextKeyPrefix = "ctx:"
	contextWindow    = 20
	contextTTL       = 24 * time.Hour
)

// ContextStore keeps the rolling window of recent messages the decision
// model sees. Only the last contextWindow entries are retained.
type ContextStore struct {
	client *redis.Client
	logger *zap.Logger
}

func NewContextStore(client *redis.Client, logger *zap.Logger) *ContextStore {
	return &ContextStore{client: client, logger: logger}
}

// Append records one message and trims the window.
func (s *ContextStore) Append(ctx context.Context, conversationID, role, content string) error {
	raw, err := json.Marshal(models.ContextMessage{Role: role, Content: content})
	if err != nil {
		return err
	}
	key := contextKeyPrefix + conversationID
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, raw)
	pipe.LTrim(ctx, key, -contextWindow, -1)
	pipe.Expire(ctx, key, contextTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// History returns the stored window, oldest first.
func (s *ContextStore) History(ctx context.Context, conversationID string) ([]models.ContextMessage, error) {
	raws, err := s.client.LRange(ctx, contextKeyPrefix+conversationID, 0, -1).Result()
	if err != nil {
		return nil, err
	}
	messages := make([]models.ContextMessage, 0, len(raws))
	for _, raw := range raws {
		var msg models.ContextMessage
		if err := json.Unmarshal([]byte(raw), &msg); err != nil {
			s.logger.Warn("dropping corrupt context entry",
				zap.String("conversation", conversationID), zap.Error(err))
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// Clear drops the conversation's window. Called when a human takes over.
func (s *ContextStore) Clear(ctx context.Context, conversationID string) error {
	return s.client.Del(ctx, contextKeyPrefix+conversationID).Err()
}
