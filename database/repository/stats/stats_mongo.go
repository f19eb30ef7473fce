package statsRepo

import (
	"context"
	"time"

	"salonflow/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func (r *mongoStatsRepo) Increment(ctx context.Context, day time.Time, delta models.StatsDelta) error {
	day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, day.Location())

	inc := bson.M{}
	add := func(field string, v int64) {
		if v != 0 {
			inc[field] = v
		}
	}
	add("messages_received", delta.MessagesReceived)
	add("turns_processed", delta.TurnsProcessed)
	add("bookings_created", delta.BookingsCreated)
	add("bookings_updated", delta.BookingsUpdated)
	add("bookings_cancelled", delta.BookingsCancelled)
	add("human_handoffs", delta.HumanHandoffs)
	add("rate_limited", delta.RateLimited)
	add("errors", delta.Errors)
	if len(inc) == 0 {
		return nil
	}

	opts := options.Update().SetUpsert(true)
	_, err := r.coll.UpdateOne(ctx, bson.M{"date": day}, bson.M{"$inc": inc}, opts)
	return err
}

func (r *mongoStatsRepo) Range(ctx context.Context, from, to time.Time) ([]models.DailyStats, error) {
	filter := bson.M{"date": bson.M{"$gte": from, "$lt": to}}
	cursor, err := r.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "date", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var stats []models.DailyStats
	if err := cursor.All(ctx, &stats); err != nil {
		return nil, err
	}
	return stats, nil
}
