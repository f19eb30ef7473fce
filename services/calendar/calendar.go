package calendar

import (
	"context"
	"time"

	"salonflow/models"
)

// Event is a calendar entry mirrored from a booking.
type Event struct {
	ID          string
	Summary     string
	Description string
	Start       time.Time
	End         time.Time
}

// Client is the external calendar surface the availability oracle and the
// booking engine talk to. FreeBusy returns the busy intervals for a window;
// the mutation methods mirror bookings into the calendar so humans looking
// at it see the same schedule the assistant does.
type Client interface {
	FreeBusy(ctx context.Context, calendarID string, from, to time.Time) ([]models.Interval, error)
	CreateEvent(ctx context.Context, calendarID string, event Event) (string, error)
	UpdateEvent(ctx context.Context, calendarID string, event Event) error
	DeleteEvent(ctx context.Context, calendarID, eventID string) error
	// EventExists reports whether the event is still present and not
	// cancelled, so externally deleted events can be reconciled.
	EventExists(ctx context.Context, calendarID, eventID string) (bool, error)
}
