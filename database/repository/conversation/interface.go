package conversationRepo

import (
	"context"
	"time"

	"salonflow/database"
	"salonflow/models"

	"go.mongodb.org/mongo-driver/mongo"
)

// ConversationRepository defines the data access methods used by the
// conversation gate and the processor.
type ConversationRepository interface {
	// GetByID returns a conversation record, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.Conversation, error)
	// Upsert creates the record on first contact or refreshes the client
	// identity and last-message timestamp on subsequent contacts.
	Upsert(ctx context.Context, conversation *models.Conversation) (*models.Conversation, error)
	// SetControl atomically writes the control state, pause reason and
	// pause metadata of a conversation.
	SetControl(ctx context.Context, id, controlState, pauseReason, pausedBy string, pausedAt *time.Time) error
	// TouchLastMessage advances the last-message timestamp.
	TouchLastMessage(ctx context.Context, id string, at time.Time) error
	// FindBySenderPhone returns the most recently active conversation of a
	// sender, or ErrNotFound.
	FindBySenderPhone(ctx context.Context, phone string) (*models.Conversation, error)
}

type mongoConversationRepo struct {
	coll *mongo.Collection
}

// NewMongoConversationRepo returns a ConversationRepository backed by MongoDB.
func NewMongoConversationRepo() ConversationRepository {
	return &mongoConversationRepo{coll: database.DB().Collection("conversations")}
}
