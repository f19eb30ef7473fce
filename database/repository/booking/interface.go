package bookingRepo

import (
	"context"
	"time"

	"salonflow/database"
	"salonflow/models"
	"salonflow/utils"

	"go.mongodb.org/mongo-driver/mongo"
	"go.uber.org/zap"
)

// BookingRepository defines the data access methods used by the booking engine.
type BookingRepository interface {
	// Create persists a new booking record.
	Create(ctx context.Context, booking *models.Booking) error
	// GetByID returns a booking by its unique ID.
	GetByID(ctx context.Context, id string) (*models.Booking, error)
	// Update replaces the mutable fields of a booking.
	Update(ctx context.Context, booking *models.Booking) error
	// SetStatus transitions a booking's status and records the external event ref.
	SetStatus(ctx context.Context, id, status, externalRef string) error
	// HasActiveOverlap reports whether any pending/confirmed booking for the
	// provider intersects [start, end), excluding the booking with excludeID.
	HasActiveOverlap(ctx context.Context, providerID string, start, end time.Time, excludeID string) (bool, error)
	// ListActiveOverlapping returns the active bookings for a provider that
	// intersect [start, end).
	ListActiveOverlapping(ctx context.Context, providerID string, start, end time.Time) ([]models.Booking, error)
	// NextUpcomingBySender returns the sender's next active booking after the
	// given instant, or nil when there is none.
	NextUpcomingBySender(ctx context.Context, phone string, after time.Time) (*models.Booking, error)
	// ListUpcomingBySender returns the sender's active bookings after the given instant.
	ListUpcomingBySender(ctx context.Context, phone string, after time.Time) ([]models.Booking, error)
	// ListPastBySender returns the sender's most recent past bookings.
	ListPastBySender(ctx context.Context, phone string, before time.Time, limit int64) ([]models.Booking, error)
	// ListActiveBetween returns every active booking starting inside [from, to).
	ListActiveBetween(ctx context.Context, from, to time.Time) ([]models.Booking, error)
	// MarkReminderSent stamps the booking so reminders are sent once.
	MarkReminderSent(ctx context.Context, id string, at time.Time) error
}

type mongoBookingRepo struct {
	coll *mongo.Collection
}

// NewMongoBookingRepo returns a BookingRepository backed by MongoDB.
func NewMongoBookingRepo() BookingRepository {
	repo := &mongoBookingRepo{coll: database.DB().Collection("bookings")}
	if err := repo.EnsureIndexes(); err != nil {
		utils.GetLogger().Warn("failed to ensure booking indexes", zap.Error(err))
	}
	return repo
}
