package bookingRepo

import (
	"context"
	"regexp"
	"time"

	"salonflow/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var activeStatuses = bson.A{models.BookingStatusPending, models.BookingStatusConfirmed}

// overlapFilter matches active bookings for the provider whose [start, end)
// interval intersects the given one: existing.start < end && start < existing.end.
func overlapFilter(providerID string, start, end time.Time, excludeID string) bson.M {
	filter := bson.M{
		"provider_id": providerID,
		"status":      bson.M{"$in": activeStatuses},
		"start":       bson.M{"$lt": end},
		"end":         bson.M{"$gt": start},
	}
	if excludeID != "" {
		filter["id"] = bson.M{"$ne": excludeID}
	}
	return filter
}

func (r *mongoBookingRepo) HasActiveOverlap(ctx context.Context, providerID string, start, end time.Time, excludeID string) (bool, error) {
	count, err := r.coll.CountDocuments(ctx, overlapFilter(providerID, start, end, excludeID))
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *mongoBookingRepo) ListActiveOverlapping(ctx context.Context, providerID string, start, end time.Time) ([]models.Booking, error) {
	cursor, err := r.coll.Find(ctx, overlapFilter(providerID, start, end, ""))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var bookings []models.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

// senderFilter matches on the trailing digits of the stored phone number so
// numbers with and without country prefixes still find each other.
func senderFilter(phone string) bson.M {
	digits := phone
	if len(digits) > 10 {
		digits = digits[len(digits)-10:]
	}
	return bson.M{"sender_phone": primitive.Regex{Pattern: regexp.QuoteMeta(digits) + "$"}}
}

func (r *mongoBookingRepo) NextUpcomingBySender(ctx context.Context, phone string, after time.Time) (*models.Booking, error) {
	bookings, err := r.ListUpcomingBySender(ctx, phone, after)
	if err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return nil, nil
	}
	return &bookings[0], nil
}

func (r *mongoBookingRepo) ListUpcomingBySender(ctx context.Context, phone string, after time.Time) ([]models.Booking, error) {
	filter := senderFilter(phone)
	filter["status"] = bson.M{"$in": activeStatuses}
	filter["start"] = bson.M{"$gt": after}

	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "start", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var bookings []models.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *mongoBookingRepo) ListPastBySender(ctx context.Context, phone string, before time.Time, limit int64) ([]models.Booking, error) {
	filter := senderFilter(phone)
	filter["start"] = bson.M{"$lte": before}

	opts := options.Find().SetSort(bson.D{{Key: "start", Value: -1}}).SetLimit(limit)
	cursor, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var bookings []models.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (r *mongoBookingRepo) ListActiveBetween(ctx context.Context, from, to time.Time) ([]models.Booking, error) {
	filter := bson.M{
		"status": bson.M{"$in": activeStatuses},
		"start":  bson.M{"$gte": from, "$lt": to},
	}
	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "start", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var bookings []models.Booking
	if err := cursor.All(ctx, &bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}
