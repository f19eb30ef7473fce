package calendar

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"salonflow/models"
	"salonflow/utils"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

type googleClient struct {
	svc      *gcal.Service
	timezone string
}

// NewGoogleClient builds a calendar client authenticated with a service
// account key file.
func NewGoogleClient(ctx context.Context, credentialsFile, timezone string) (Client, error) {
	svc, err := gcal.NewService(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("failed to create calendar service: %w", err)
	}
	return &googleClient{svc: svc, timezone: timezone}, nil
}

func (c *googleClient) FreeBusy(ctx context.Context, calendarID string, from, to time.Time) ([]models.Interval, error) {
	req := &gcal.FreeBusyRequest{
		TimeMin:  from.Format(time.RFC3339),
		TimeMax:  to.Format(time.RFC3339),
		TimeZone: c.timezone,
		Items:    []*gcal.FreeBusyRequestItem{{Id: calendarID}},
	}

	var resp *gcal.FreeBusyResponse
	err := utils.Retry(ctx, 3, 500*time.Millisecond, "calendar freebusy", func(ctx context.Context) error {
		var callErr error
		resp, callErr = c.svc.Freebusy.Query(req).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("freebusy query failed: %w", err)
	}

	cal, ok := resp.Calendars[calendarID]
	if !ok {
		return nil, nil
	}
	busy := make([]models.Interval, 0, len(cal.Busy))
	for _, period := range cal.Busy {
		start, err := time.Parse(time.RFC3339, period.Start)
		if err != nil {
			return nil, fmt.Errorf("bad busy start %q: %w", period.Start, err)
		}
		end, err := time.Parse(time.RFC3339, period.End)
		if err != nil {
			return nil, fmt.Errorf("bad busy end %q: %w", period.End, err)
		}
		busy = append(busy, models.Interval{Start: start, End: end})
	}
	return busy, nil
}

func (c *googleClient) CreateEvent(ctx context.Context, calendarID string, event Event) (string, error) {
	entry := c.toEntry(event)
	var created *gcal.Event
	err := utils.Retry(ctx, 3, 500*time.Millisecond, "calendar create", func(ctx context.Context) error {
		var callErr error
		created, callErr = c.svc.Events.Insert(calendarID, entry).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return "", fmt.Errorf("event insert failed: %w", err)
	}
	return created.Id, nil
}

func (c *googleClient) UpdateEvent(ctx context.Context, calendarID string, event Event) error {
	entry := c.toEntry(event)
	err := utils.Retry(ctx, 3, 500*time.Millisecond, "calendar update", func(ctx context.Context) error {
		_, callErr := c.svc.Events.Update(calendarID, event.ID, entry).Context(ctx).Do()
		return callErr
	})
	if err != nil {
		return fmt.Errorf("event update failed: %w", err)
	}
	return nil
}

func (c *googleClient) DeleteEvent(ctx context.Context, calendarID, eventID string) error {
	err := utils.Retry(ctx, 3, 500*time.Millisecond, "calendar delete", func(ctx context.Context) error {
		return c.svc.Events.Delete(calendarID, eventID).Context(ctx).Do()
	})
	if err != nil {
		return fmt.Errorf("event delete failed: %w", err)
	}
	return nil
}

func (c *googleClient) EventExists(ctx context.Context, calendarID, eventID string) (bool, error) {
	entry, err := c.svc.Events.Get(calendarID, eventID).Context(ctx).Do()
	if err != nil {
		if apiErr, ok := err.(*googleapi.Error); ok && apiErr.Code == http.StatusNotFound {
			return false, nil
		}
		return false, fmt.Errorf("event get failed: %w", err)
	}
	return entry.Status != "cancelled", nil
}

func (c *googleClient) toEntry(event Event) *gcal.Event {
	return &gcal.Event{
		Summary:     event.Summary,
		Description: event.Description,
		Start:       &gcal.EventDateTime{DateTime: event.Start.Format(time.RFC3339), TimeZone: c.timezone},
		End:         &gcal.EventDateTime{DateTime: event.End.Format(time.RFC3339), TimeZone: c.timezone},
	}
}
