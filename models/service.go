package models

// Service is a bookable salon service.
type Service struct {
	ID              string   `bson:"id" json:"id"`
	Name            string   `bson:"name" json:"name"`
	Description     string   `bson:"description,omitempty" json:"description,omitempty"`
	Price           float64  `bson:"price" json:"price"`
	DurationMinutes int      `bson:"duration_minutes" json:"duration_minutes"`
	ProviderIDs     []string `bson:"provider_ids" json:"provider_ids"` // Eligible providers; empty means any active provider
	Active          bool     `bson:"active" json:"active"`
}

// EligibleProvider reports whether the provider may perform this service.
func (s *Service) EligibleProvider(providerID string) bool {
	if len(s.ProviderIDs) == 0 {
		return true
	}
	for _, id := range s.ProviderIDs {
		if id == providerID {
			return true
		}
	}
	return false
}

// SalonInfo holds the salon identity shown in informational replies.
type SalonInfo struct {
	Name    string `bson:"name" json:"name"`
	Address string `bson:"address,omitempty" json:"address,omitempty"`
	Phone   string `bson:"phone,omitempty" json:"phone,omitempty"`
	Hours   string `bson:"hours,omitempty" json:"hours,omitempty"`
}
