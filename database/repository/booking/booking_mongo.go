package bookingRepo

import (
	"context"
	"errors"
	"time"

	"salonflow/models"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ErrNotFound is returned when the requested booking does not exist.
var ErrNotFound = errors.New("booking not found")

// Create inserts a new booking record.
func (r *mongoBookingRepo) Create(ctx context.Context, booking *models.Booking) error {
	if booking.ID == "" {
		booking.ID = uuid.New().String()
	}
	now := time.Now()
	booking.CreatedAt = now
	booking.UpdatedAt = now

	_, err := r.coll.InsertOne(ctx, booking)
	return err
}

// GetByID returns a booking by its unique ID.
func (r *mongoBookingRepo) GetByID(ctx context.Context, id string) (*models.Booking, error) {
	var booking models.Booking
	err := r.coll.FindOne(ctx, bson.M{"id": id}).Decode(&booking)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

// Update replaces the mutable fields of a booking.
func (r *mongoBookingRepo) Update(ctx context.Context, booking *models.Booking) error {
	booking.UpdatedAt = time.Now()
	res, err := r.coll.UpdateOne(ctx, bson.M{"id": booking.ID}, bson.M{"$set": bson.M{
		"start":        booking.Start,
		"end":          booking.End,
		"services":     booking.Services,
		"total_price":  booking.TotalPrice,
		"status":       booking.Status,
		"external_ref": booking.ExternalRef,
		"notes":        booking.Notes,
		"updated_at":   booking.UpdatedAt,
	}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// SetStatus transitions a booking's status and records the external event ref.
func (r *mongoBookingRepo) SetStatus(ctx context.Context, id, status, externalRef string) error {
	update := bson.M{"status": status, "updated_at": time.Now()}
	if externalRef != "" {
		update["external_ref"] = externalRef
	}
	res, err := r.coll.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": update})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkReminderSent stamps the booking so reminders are sent once.
func (r *mongoBookingRepo) MarkReminderSent(ctx context.Context, id string, at time.Time) error {
	_, err := r.coll.UpdateOne(ctx, bson.M{"id": id}, bson.M{"$set": bson.M{"reminder_sent_at": at}})
	return err
}
