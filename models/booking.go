package models

import "time"

// Booking status values. Cancelled is terminal; cancelled bookings are
// retained for reporting, never deleted.
const (
	BookingStatusPending   = "pending"
	BookingStatusConfirmed = "confirmed"
	BookingStatusCancelled = "cancelled"
)

// Booking represents an appointment record.
type Booking struct {
	ID             string    `bson:"id" json:"id"`                             // Unique booking identifier (UUID)
	ProviderID     string    `bson:"provider_id" json:"provider_id"`           // Stylist who was booked
	SenderPhone    string    `bson:"sender_phone" json:"sender_phone"`         // Client phone number (conversation key)
	ClientName     string    `bson:"client_name" json:"client_name"`           // Client display name
	Start          time.Time `bson:"start" json:"start"`                       // Appointment start
	End            time.Time `bson:"end" json:"end"`                           // Appointment end (exclusive)
	Services       []string  `bson:"services" json:"services"`                 // Service names included in the appointment
	TotalPrice     float64   `bson:"total_price" json:"total_price"`           // Sum of service prices
	Status         string    `bson:"status" json:"status"`                     // pending | confirmed | cancelled
	ExternalRef    string    `bson:"external_ref,omitempty" json:"external_ref,omitempty"` // Calendar event id
	Notes          string    `bson:"notes,omitempty" json:"notes,omitempty"`
	CreatedAt      time.Time `bson:"created_at" json:"created_at"`
	UpdatedAt      time.Time `bson:"updated_at" json:"updated_at"`
	ReminderSentAt *time.Time `bson:"reminder_sent_at,omitempty" json:"reminder_sent_at,omitempty"`
}

// Active reports whether the booking still occupies its interval.
func (b *Booking) Active() bool {
	return b.Status == BookingStatusPending || b.Status == BookingStatusConfirmed
}

// Interval returns the booked [start, end) range.
func (b *Booking) Interval() Interval {
	return Interval{Start: b.Start, End: b.End}
}

// BookingInput carries the validated fields for a new appointment.
type BookingInput struct {
	SenderPhone string    `json:"sender_phone"`
	ClientName  string    `json:"client_name"`
	ProviderID  string    `json:"provider_id"`
	Services    []string  `json:"services"`
	Start       time.Time `json:"start"`
	Notes       string    `json:"notes,omitempty"`
}

// BookingChanges describes a partial update to an existing booking.
// Nil fields are left untouched.
type BookingChanges struct {
	Start    *time.Time `json:"start,omitempty"`
	Services []string   `json:"services,omitempty"`
	Notes    *string    `json:"notes,omitempty"`
}
