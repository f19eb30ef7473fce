package aggregator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"salonflow/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	pendingKeyPrefix = "turn:pending:"
	lockKeyPrefix    = "turn:lock:"

	// pendingTTL bounds how long fragments survive if their flush is lost.
	pendingTTL = time.Minute
	// lockTTL bounds a stuck flush so the conversation is not wedged.
	lockTTL = 30 * time.Second
)

// drainScript reads and clears the pending list in one step, so a fragment
// pushed while a drain is in flight is either part of this turn or left
// buffered for its own flush, never deleted unread.
var drainScript = redis.NewScript(`
local items = redis.call("LRANGE", KEYS[1], 0, -1)
redis.call("DEL", KEYS[1])
return items
`)

// FlushScheduler schedules the deferred flush for a conversation, replacing
// any previously scheduled flush for the same conversation.
type FlushScheduler interface {
	Schedule(ctx context.Context, conversationID string, delay time.Duration) error
}

// Aggregator buffers rapid message fragments per conversation and merges
// them into one logical turn after a quiet period. Fragment state lives in
// Redis so any worker can perform the flush.
type Aggregator struct {
	client    *redis.Client
	scheduler FlushScheduler
	delay     time.Duration
	logger    *zap.Logger
}

// NewAggregator returns an aggregator flushing after the given quiet period.
func NewAggregator(client *redis.Client, scheduler FlushScheduler, delay time.Duration, logger *zap.Logger) *Aggregator {
	return &Aggregator{client: client, scheduler: scheduler, delay: delay, logger: logger}
}

// Enqueue appends a fragment to the conversation's pending turn and restarts
// the quiet-period timer.
func (a *Aggregator) Enqueue(ctx context.Context, conversationID string, fragment models.Fragment) error {
	payload, err := json.Marshal(fragment)
	if err != nil {
		return fmt.Errorf("marshal fragment: %w", err)
	}

	key := pendingKeyPrefix + conversationID
	pipe := a.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, pendingTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("buffer fragment for %s: %w", conversationID, err)
	}

	if err := a.scheduler.Schedule(ctx, conversationID, a.delay); err != nil {
		return fmt.Errorf("schedule flush for %s: %w", conversationID, err)
	}

	a.logger.Debug("fragment buffered",
		zap.String("conversationID", conversationID),
		zap.String("messageID", fragment.MessageID),
	)
	return nil
}

// Collect drains the conversation's pending turn under a processing lock.
// It returns nil when there is nothing to flush or another worker is already
// flushing; a turn is emitted at most once per accumulation period.
func (a *Aggregator) Collect(ctx context.Context, conversationID string) (*models.Turn, error) {
	lockKey := lockKeyPrefix + conversationID
	locked, err := a.client.SetNX(ctx, lockKey, "1", lockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire flush lock for %s: %w", conversationID, err)
	}
	if !locked {
		a.logger.Debug("flush lock not acquired", zap.String("conversationID", conversationID))
		return nil, nil
	}
	defer a.client.Del(ctx, lockKey)

	key := pendingKeyPrefix + conversationID
	drained, err := drainScript.Run(ctx, a.client, []string{key}).Result()
	if err != nil {
		return nil, fmt.Errorf("drain pending turn for %s: %w", conversationID, err)
	}
	raws, _ := drained.([]interface{})
	if len(raws) == 0 {
		return nil, nil
	}

	fragments := make([]models.Fragment, 0, len(raws))
	parts := make([]string, 0, len(raws))
	for _, item := range raws {
		raw, ok := item.(string)
		if !ok {
			continue
		}
		var frag models.Fragment
		if err := json.Unmarshal([]byte(raw), &frag); err != nil {
			a.logger.Warn("dropping malformed fragment",
				zap.String("conversationID", conversationID), zap.Error(err))
			continue
		}
		fragments = append(fragments, frag)
		parts = append(parts, frag.Content)
	}
	if len(fragments) == 0 {
		return nil, nil
	}

	return &models.Turn{
		ConversationID: conversationID,
		Content:        strings.Join(parts, " "),
		Fragments:      fragments,
		FlushedAt:      time.Now(),
	}, nil
}

// PendingCount reports how many fragments are buffered for a conversation.
func (a *Aggregator) PendingCount(ctx context.Context, conversationID string) (int64, error) {
	return a.client.LLen(ctx, pendingKeyPrefix+conversationID).Result()
}
