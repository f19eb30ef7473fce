package models

// WeeklyBlock is a recurring availability block in a provider's week.
// Weekday follows time.Weekday (0 = Sunday). Times are "HH:MM" local.
type WeeklyBlock struct {
	Weekday   int    `bson:"weekday" json:"weekday"`
	StartTime string `bson:"start_time" json:"start_time"`
	EndTime   string `bson:"end_time" json:"end_time"`
}

// Provider is a stylist bookings and availability are tracked against.
type Provider struct {
	ID          string        `bson:"id" json:"id"`
	Name        string        `bson:"name" json:"name"`
	Specialties []string      `bson:"specialties" json:"specialties"` // Service names this provider offers
	Weekly      []WeeklyBlock `bson:"weekly" json:"weekly"`           // Recurring availability blocks
	CalendarID  string        `bson:"calendar_id,omitempty" json:"calendar_id,omitempty"` // Dedicated calendar, falls back to the salon calendar
	Active      bool          `bson:"active" json:"active"`
}

// Offers reports whether the provider can perform the named service.
func (p *Provider) Offers(service string) bool {
	for _, s := range p.Specialties {
		if s == service {
			return true
		}
	}
	return false
}

// WorksOn returns the provider's availability blocks for a weekday.
func (p *Provider) WorksOn(weekday int) []WeeklyBlock {
	var blocks []WeeklyBlock
	for _, b := range p.Weekly {
		if b.Weekday == weekday {
			blocks = append(blocks, b)
		}
	}
	return blocks
}
