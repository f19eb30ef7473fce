package agent

import (
	"context"
	"time"

	"salonflow/models"
)

// DecisionInput is everything the decision model sees for one turn.
type DecisionInput struct {
	SenderPhone string
	ClientName  string
	Turn        string
	History     []models.ContextMessage
	Services    []models.Service
	Providers   []models.Provider
	Salon       *models.SalonInfo
	Upcoming    *models.Booking
	Now         time.Time
}

// Decider turns a merged client turn into exactly one command from the
// closed command set.
type Decider interface {
	Decide(ctx context.Context, input DecisionInput) (*models.Command, error)
}
