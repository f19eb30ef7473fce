package models

import "time"

// DailyStats is one day's activity counters, updated best-effort.
type DailyStats struct {
	Date              time.Time `bson:"date" json:"date"` // Midnight, salon timezone
	MessagesReceived  int64     `bson:"messages_received" json:"messages_received"`
	TurnsProcessed    int64     `bson:"turns_processed" json:"turns_processed"`
	BookingsCreated   int64     `bson:"bookings_created" json:"bookings_created"`
	BookingsUpdated   int64     `bson:"bookings_updated" json:"bookings_updated"`
	BookingsCancelled int64     `bson:"bookings_cancelled" json:"bookings_cancelled"`
	HumanHandoffs     int64     `bson:"human_handoffs" json:"human_handoffs"`
	RateLimited       int64     `bson:"rate_limited" json:"rate_limited"`
	Errors            int64     `bson:"errors" json:"errors"`
}

// StatsDelta is a set of increments applied to a day's counters.
type StatsDelta struct {
	MessagesReceived  int64
	TurnsProcessed    int64
	BookingsCreated   int64
	BookingsUpdated   int64
	BookingsCancelled int64
	HumanHandoffs     int64
	RateLimited       int64
	Errors            int64
}
