package conversationRepo

import (
	"context"
	"errors"
	"regexp"
	"time"

	"salonflow/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// ErrNotFound is returned when the requested conversation does not exist.
var ErrNotFound = errors.New("conversation not found")

func (r *mongoConversationRepo) GetByID(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *mongoConversationRepo) Upsert(ctx context.Context, conversation *models.Conversation) (*models.Conversation, error) {
	now := time.Now()
	set := bson.M{
		"sender_phone":    conversation.SenderPhone,
		"last_message_at": now,
	}
	if conversation.ClientName != "" {
		set["client_name"] = conversation.ClientName
	}
	update := bson.M{
		"$set": set,
		"$setOnInsert": bson.M{
			"id":            conversation.ID,
			"control_state": models.ControlAutomated,
			"created_at":    now,
		},
	}

	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	var result models.Conversation
	if err := r.coll.FindOneAndUpdate(ctx, bson.M{"id": conversation.ID}, update, opts).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *mongoConversationRepo) SetControl(ctx context.Context, id, controlState, pauseReason, pausedBy string, pausedAt *time.Time) error {
	res, err := r.coll.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": bson.M{
		"control_state": controlState,
		"pause_reason":  pauseReason,
		"paused_by":     pausedBy,
		"paused_at":     pausedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *mongoConversationRepo) TouchLastMessage(ctx context.Context, id string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": bson.M{"last_message_at": at}})
	return err
}

func (r *mongoConversationRepo) FindBySenderPhone(ctx context.Context, phone string) (*models.Conversation, error) {
	// Match on trailing digits so numbers with and without country prefixes
	// still find each other.
	digits := phone
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	filter := bson.M{"sender_phone": primitive.Regex{Pattern: regexp.QuoteMeta(digits) + "$"}}

	opts := options.FindOne().SetSort(bson.D{{Key: "last_message_at", Value: -1}})
	var conv models.Conversation
	err := r.coll.FindOne(ctx, filter, opts).Decode(&conv)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}
