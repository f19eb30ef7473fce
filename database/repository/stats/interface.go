package statsRepo

import (
	"context"
	"time"

	"salonflow/database"
	"salonflow/models"

	"go.mongodb.org/mongo-driver/mongo"
)

// StatsRepository accumulates daily activity counters.
type StatsRepository interface {
	// Increment applies a delta to the counters of the given day (midnight-truncated).
	Increment(ctx context.Context, day time.Time, delta models.StatsDelta) error
	// Range returns the daily rows inside [from, to).
	Range(ctx context.Context, from, to time.Time) ([]models.DailyStats, error)
}

type mongoStatsRepo struct {
	coll *mongo.Collection
}

// NewMongoStatsRepo returns a StatsRepository backed by MongoDB.
func NewMongoStatsRepo() StatsRepository {
	return &mongoStatsRepo{coll: database.DB().Collection("daily_stats")}
}
