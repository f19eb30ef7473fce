package gate

import (
	"context"
	"time"

	"salonflow/models"

	conversationRepo "salonflow/database/repository/conversation"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const (
	stateKeyPrefix = "gate:state:"
	stateTTL       = 5 * time.Minute
)

// ContextResetter clears the stored assistant context for a conversation.
// The gate drops context when a human takes over so a later reactivation
// starts from a clean slate.
type ContextResetter interface {
	Clear(ctx context.Context, conversationID string) error
}

// Gate decides whether the assistant may reply in a conversation. The
// durable state lives in Mongo; Redis carries a short-lived read cache so
// the hot path does not hit the database on every message.
type Gate struct {
	repo     conversationRepo.ConversationRepository
	cache    *redis.Client
	resetter ContextResetter
	logger   *zap.Logger
}

func NewGate(repo conversationRepo.ConversationRepository, cache *redis.Client, resetter ContextResetter, logger *zap.Logger) *Gate {
	return &Gate{repo: repo, cache: cache, resetter: resetter, logger: logger}
}

// EnsureConversation returns the conversation record, creating it in the
// automated state on first contact.
func (g *Gate) EnsureConversation(ctx context.Context, id, senderPhone, clientName string) (*models.Conversation, error) {
	conv, err := g.repo.Upsert(ctx, &models.Conversation{
		ID:            id,
		SenderPhone:   senderPhone,
		ClientName:    clientName,
		ControlState:  models.ControlAutomated,
		LastMessageAt: time.Now(),
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// IsAutomated reports whether the assistant currently owns the conversation.
// Unknown conversations are treated as automated; a cache miss falls back to
// Mongo and repopulates the cache.
func (g *Gate) IsAutomated(ctx context.Context, id string) (bool, error) {
	state, err := g.cache.Get(ctx, stateKeyPrefix+id).Result()
	if err == nil {
		return state == models.ControlAutomated, nil
	}
	if err != redis.Nil {
		g.logger.Warn("gate cache read failed, falling back to store", zap.Error(err))
	}

	conv, err := g.repo.GetByID(ctx, id)
	if err == conversationRepo.ErrNotFound {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	g.cacheState(ctx, id, conv.ControlState)
	return !conv.Paused(), nil
}

// Pause hands the conversation to a human. A pause caused by a human agent
// reply outranks one caused by a keyword: once a human has spoken, a later
// keyword match does not rewrite the pause metadata, while a human reply
// upgrades a keyword pause in place. Pausing clears the assistant context.
func (g *Gate) Pause(ctx context.Context, id, reason, pausedBy string) error {
	conv, err := g.repo.GetByID(ctx, id)
	if err != nil && err != conversationRepo.ErrNotFound {
		return err
	}
	if conv != nil && conv.Paused() {
		if conv.PauseReason == models.PauseReasonHumanReply || reason != models.PauseReasonHumanReply {
			// Already paused with equal or higher precedence.
			return nil
		}
	}

	now := time.Now()
	if err := g.repo.SetControl(ctx, id, models.ControlPaused, reason, pausedBy, &now); err != nil {
		return err
	}
	g.cacheState(ctx, id, models.ControlPaused)

	if g.resetter != nil {
		if err := g.resetter.Clear(ctx, id); err != nil {
			g.logger.Warn("failed to clear assistant context on pause",
				zap.String("conversation", id), zap.Error(err))
		}
	}
	g.logger.Info("conversation paused",
		zap.String("conversation", id),
		zap.String("reason", reason),
		zap.String("by", pausedBy))
	return nil
}

// Resolve returns the conversation to the assistant. Called when the support
// desk marks the conversation resolved. Resolving an already automated
// conversation is a no-op.
func (g *Gate) Resolve(ctx context.Context, id string) error {
	conv, err := g.repo.GetByID(ctx, id)
	if err == conversationRepo.ErrNotFound {
		return nil
	}
	if err != nil {
		return err
	}
	if !conv.Paused() {
		return nil
	}
	if err := g.repo.SetControl(ctx, id, models.ControlAutomated, "", "", nil); err != nil {
		return err
	}
	g.cacheState(ctx, id, models.ControlAutomated)
	g.logger.Info("conversation reactivated", zap.String("conversation", id))
	return nil
}

// Touch advances the conversation's last-message timestamp. Paused
// conversations still record activity so a human reading the thread sees
// the full history.
func (g *Gate) Touch(ctx context.Context, id string) {
	if err := g.repo.TouchLastMessage(ctx, id, time.Now()); err != nil {
		g.logger.Warn("failed to touch conversation", zap.String("conversation", id), zap.Error(err))
	}
}

func (g *Gate) cacheState(ctx context.Context, id, state string) {
	if err := g.cache.Set(ctx, stateKeyPrefix+id, state, stateTTL).Err(); err != nil {
		g.logger.Warn("gate cache write failed", zap.Error(err))
	}
}
