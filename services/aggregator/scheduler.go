package aggregator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// TypeTurnFlush is the asynq task type for deferred turn flushes.
const TypeTurnFlush = "turn:flush"

// FlushPayload is the task payload for TypeTurnFlush.
type FlushPayload struct {
	ConversationID string `json:"conversation_id"`
}

// AsynqFlushScheduler schedules flush tasks on the asynq queue. Each
// conversation holds at most one scheduled flush: rescheduling deletes the
// previous task, which is how the quiet period restarts on every fragment.
type AsynqFlushScheduler struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	queue     string
}

// NewAsynqFlushScheduler returns a scheduler using the given Redis queue.
func NewAsynqFlushScheduler(opt asynq.RedisClientOpt) *AsynqFlushScheduler {
	return &AsynqFlushScheduler{
		client:    asynq.NewClient(opt),
		inspector: asynq.NewInspector(opt),
		queue:     "default",
	}
}

func (s *AsynqFlushScheduler) Schedule(ctx context.Context, conversationID string, delay time.Duration) error {
	taskID := TypeTurnFlush + ":" + conversationID

	// Cancel the previously scheduled flush so the timer restarts.
	if err := s.inspector.DeleteTask(s.queue, taskID); err != nil &&
		!errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
		return fmt.Errorf("cancel scheduled flush: %w", err)
	}

	payload, err := json.Marshal(FlushPayload{ConversationID: conversationID})
	if err != nil {
		return err
	}
	task := asynq.NewTask(TypeTurnFlush, payload)

	_, err = s.client.EnqueueContext(ctx, task,
		asynq.TaskID(taskID),
		asynq.ProcessIn(delay),
		asynq.Queue(s.queue),
		asynq.MaxRetry(3),
	)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		// The previous flush is mid-execution and still owns the task ID.
		// Enqueue an unkeyed flush instead; a spurious extra flush is harmless
		// because Collect drains under a lock and skips empty buffers.
		_, err = s.client.EnqueueContext(ctx, task,
			asynq.ProcessIn(delay),
			asynq.Queue(s.queue),
			asynq.MaxRetry(3),
		)
	}
	if err != nil {
		return fmt.Errorf("enqueue flush: %w", err)
	}
	return nil
}

// Close releases the underlying queue connections.
func (s *AsynqFlushScheduler) Close() error {
	if err := s.inspector.Close(); err != nil {
		return err
	}
	return s.client.Close()
}
