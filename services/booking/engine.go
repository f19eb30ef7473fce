package booking

import (
	"context"
	"strings"
	"time"

	"salonflow/models"
	"salonflow/services/calendar"

	bookingRepo "salonflow/database/repository/booking"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CatalogSource resolves service and provider records for validation.
// Satisfied by the catalog service.
type CatalogSource interface {
	FindServiceByName(ctx context.Context, name string) (*models.Service, error)
	GetProviderByID(ctx context.Context, id string) (*models.Provider, error)
}

// AvailabilitySource answers free/busy questions and accepts cache
// invalidations after commits. Satisfied by the availability oracle.
type AvailabilitySource interface {
	IsFree(ctx context.Context, provider *models.Provider, interval models.Interval) (bool, string, error)
	Invalidate(ctx context.Context, providerID string, at time.Time)
}

// Locker serialises booking writes per provider. Satisfied by ProviderLocker.
type Locker interface {
	Acquire(ctx context.Context, providerID string) (func(), error)
}

// Engine owns every mutation of booking records. All writes funnel through
// a per-provider lock, and the stored overlap set is re-checked inside the
// lock so two concurrent requests for the same slot cannot both commit.
type Engine struct {
	repo              bookingRepo.BookingRepository
	catalog           CatalogSource
	availability      AvailabilitySource
	locker            Locker
	calendar          calendar.Client
	defaultCalendarID string
	openHour          int
	closeHour         int
	logger            *zap.Logger
}

func NewEngine(
	repo bookingRepo.BookingRepository,
	catalog CatalogSource,
	availability AvailabilitySource,
	locker Locker,
	cal calendar.Client,
	defaultCalendarID string,
	openHour, closeHour int,
	logger *zap.Logger,
) *Engine {
	return &Engine{
		repo:              repo,
		catalog:           catalog,
		availability:      availability,
		locker:            locker,
		calendar:          cal,
		defaultCalendarID: defaultCalendarID,
		openHour:          openHour,
		closeHour:         closeHour,
		logger:            logger,
	}
}

// Create books an appointment. The interval is derived from the sum of the
// requested service durations, and the total price from the sum of their
// prices. The booking is persisted pending, then confirmed once the
// calendar event exists; a calendar failure cancels it and surfaces a
// retryable error. Returns ErrConflict when the slot is taken and
// ErrProviderBusy when another writer holds the provider lock.
func (e *Engine) Create(ctx context.Context, input models.BookingInput) (*models.Booking, error) {
	provider, services, err := e.resolve(ctx, input.ProviderID, input.Services)
	if err != nil {
		return nil, err
	}
	interval, total, err := e.plan(input.Start, services)
	if err != nil {
		return nil, err
	}

	release, err := e.locker.Acquire(ctx, provider.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := e.checkFree(ctx, provider, interval, ""); err != nil {
		return nil, err
	}

	now := time.Now()
	booking := &models.Booking{
		ID:          uuid.NewString(),
		ProviderID:  provider.ID,
		SenderPhone: input.SenderPhone,
		ClientName:  input.ClientName,
		Start:       interval.Start,
		End:         interval.End,
		Services:    serviceNames(services),
		TotalPrice:  total,
		Status:      models.BookingStatusPending,
		Notes:       input.Notes,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := e.repo.Create(ctx, booking); err != nil {
		return nil, &PersistenceError{Op: "create", Err: err}
	}

	ref, err := e.createEvent(ctx, provider, booking)
	if err != nil {
		if serr := e.repo.SetStatus(ctx, booking.ID, models.BookingStatusCancelled, ""); serr != nil {
			e.logger.Error("failed to cancel booking after calendar failure",
				zap.String("booking", booking.ID), zap.Error(serr))
		}
		e.availability.Invalidate(ctx, provider.ID, booking.Start)
		return nil, &ExternalServiceError{Service: "calendar", Err: err}
	}
	booking.ExternalRef = ref
	booking.Status = models.BookingStatusConfirmed
	if err := e.repo.SetStatus(ctx, booking.ID, models.BookingStatusConfirmed, ref); err != nil {
		return nil, &PersistenceError{Op: "confirm", Err: err}
	}
	e.availability.Invalidate(ctx, provider.ID, booking.Start)

	e.logger.Info("booking created",
		zap.String("booking", booking.ID),
		zap.String("provider", provider.ID),
		zap.Time("start", booking.Start))
	return booking, nil
}

// Update reschedules or amends an existing booking. Changing the start or
// the service set revalidates the new interval under the provider lock,
// excluding the booking itself from the overlap check.
func (e *Engine) Update(ctx context.Context, id string, changes models.BookingChanges) (*models.Booking, error) {
	booking, err := e.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !booking.Active() {
		return nil, &ValidationError{Field: "booking", Msg: "appointment is cancelled"}
	}

	serviceList := booking.Services
	if len(changes.Services) > 0 {
		serviceList = changes.Services
	}
	start := booking.Start
	if changes.Start != nil {
		start = *changes.Start
	}

	provider, services, err := e.resolve(ctx, booking.ProviderID, serviceList)
	if err != nil {
		return nil, err
	}
	interval, total, err := e.plan(start, services)
	if err != nil {
		return nil, err
	}

	release, err := e.locker.Acquire(ctx, provider.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := e.checkFree(ctx, provider, interval, booking.ID); err != nil {
		return nil, err
	}

	oldStart := booking.Start
	booking.Start = interval.Start
	booking.End = interval.End
	booking.Services = serviceNames(services)
	booking.TotalPrice = total
	if changes.Notes != nil {
		booking.Notes = *changes.Notes
	}
	booking.UpdatedAt = time.Now()

	if err := e.repo.Update(ctx, booking); err != nil {
		return nil, &PersistenceError{Op: "update", Err: err}
	}

	e.mirrorUpdate(ctx, provider, booking)
	e.availability.Invalidate(ctx, provider.ID, oldStart)
	e.availability.Invalidate(ctx, provider.ID, booking.Start)

	e.logger.Info("booking updated",
		zap.String("booking", booking.ID),
		zap.Time("start", booking.Start))
	return booking, nil
}

// Cancel releases a booking's interval. Cancelling an already cancelled
// booking is a no-op.
func (e *Engine) Cancel(ctx context.Context, id string) error {
	booking, err := e.load(ctx, id)
	if err != nil {
		return err
	}
	if booking.Status == models.BookingStatusCancelled {
		return nil
	}

	if err := e.repo.SetStatus(ctx, id, models.BookingStatusCancelled, booking.ExternalRef); err != nil {
		return &PersistenceError{Op: "cancel", Err: err}
	}

	if booking.ExternalRef != "" {
		calendarID := e.calendarFor(ctx, booking.ProviderID)
		if err := e.calendar.DeleteEvent(ctx, calendarID, booking.ExternalRef); err != nil {
			e.logger.Warn("failed to remove calendar event for cancelled booking",
				zap.String("booking", id), zap.Error(err))
		}
	}
	e.availability.Invalidate(ctx, booking.ProviderID, booking.Start)

	e.logger.Info("booking cancelled", zap.String("booking", id))
	return nil
}

// NextUpcoming returns the sender's next active booking, or nil.
func (e *Engine) NextUpcoming(ctx context.Context, phone string) (*models.Booking, error) {
	booking, err := e.repo.NextUpcomingBySender(ctx, phone, time.Now())
	if err != nil {
		return nil, &PersistenceError{Op: "next upcoming", Err: err}
	}
	return booking, nil
}

// Appointments returns the sender's upcoming bookings plus their recent past
// ones for context.
func (e *Engine) Appointments(ctx context.Context, phone string) (upcoming, past []models.Booking, err error) {
	now := time.Now()
	upcoming, err = e.repo.ListUpcomingBySender(ctx, phone, now)
	if err != nil {
		return nil, nil, &PersistenceError{Op: "list upcoming", Err: err}
	}
	past, err = e.repo.ListPastBySender(ctx, phone, now, 3)
	if err != nil {
		return nil, nil, &PersistenceError{Op: "list past", Err: err}
	}
	return upcoming, past, nil
}

func (e *Engine) load(ctx context.Context, id string) (*models.Booking, error) {
	booking, err := e.repo.GetByID(ctx, id)
	if err == bookingRepo.ErrNotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &PersistenceError{Op: "get", Err: err}
	}
	return booking, nil
}

func (e *Engine) resolve(ctx context.Context, providerID string, names []string) (*models.Provider, []models.Service, error) {
	if len(names) == 0 {
		return nil, nil, &ValidationError{Field: "services", Msg: "at least one service is required"}
	}
	provider, err := e.catalog.GetProviderByID(ctx, providerID)
	if err != nil {
		return nil, nil, &PersistenceError{Op: "get provider", Err: err}
	}
	if provider == nil || !provider.Active {
		return nil, nil, &ValidationError{Field: "provider", Msg: "unknown or inactive provider"}
	}

	services := make([]models.Service, 0, len(names))
	for _, name := range names {
		svc, err := e.catalog.FindServiceByName(ctx, name)
		if err != nil {
			return nil, nil, &PersistenceError{Op: "find service", Err: err}
		}
		if svc == nil || !svc.Active {
			return nil, nil, &ValidationError{Field: "services", Msg: "unknown service " + name}
		}
		if !svc.EligibleProvider(provider.ID) {
			return nil, nil, &ValidationError{Field: "services", Msg: provider.Name + " does not offer " + svc.Name}
		}
		if len(provider.Specialties) > 0 && !provider.Offers(svc.Name) {
			return nil, nil, &ValidationError{Field: "services", Msg: provider.Name + " does not offer " + svc.Name}
		}
		services = append(services, *svc)
	}
	return provider, services, nil
}

// plan derives the appointment interval and total price from the service set.
func (e *Engine) plan(start time.Time, services []models.Service) (models.Interval, float64, error) {
	if start.IsZero() {
		return models.Interval{}, 0, &ValidationError{Field: "start", Msg: "missing start time"}
	}
	if start.Before(time.Now()) {
		return models.Interval{}, 0, &ValidationError{Field: "start", Msg: "appointment is in the past"}
	}

	var minutes int
	var total float64
	for _, svc := range services {
		minutes += svc.DurationMinutes
		total += svc.Price
	}
	if minutes <= 0 {
		return models.Interval{}, 0, &ValidationError{Field: "services", Msg: "services have no duration"}
	}
	end := start.Add(time.Duration(minutes) * time.Minute)

	open := time.Date(start.Year(), start.Month(), start.Day(), e.openHour, 0, 0, 0, start.Location())
	close := time.Date(start.Year(), start.Month(), start.Day(), e.closeHour, 0, 0, 0, start.Location())
	if start.Before(open) || end.After(close) {
		return models.Interval{}, 0, &ValidationError{Field: "start", Msg: "outside business hours"}
	}
	return models.Interval{Start: start, End: end}, total, nil
}

// checkFree consults the oracle and then re-checks the stored bookings.
// Both run inside the provider lock; the second check is what makes the
// no-overlap invariant hold even when the oracle served a stale snapshot.
func (e *Engine) checkFree(ctx context.Context, provider *models.Provider, interval models.Interval, excludeID string) error {
	free, source, err := e.availability.IsFree(ctx, provider, interval)
	if err != nil {
		return &ExternalServiceError{Service: "availability", Err: err}
	}
	if !free {
		return ErrConflict
	}
	if source == "stale" {
		e.logger.Warn("availability answered from stale snapshot, relying on stored overlap check",
			zap.String("provider", provider.ID))
	}

	taken, err := e.repo.HasActiveOverlap(ctx, provider.ID, interval.Start, interval.End, excludeID)
	if err != nil {
		return &PersistenceError{Op: "overlap check", Err: err}
	}
	if taken {
		return ErrConflict
	}
	return nil
}

// createEvent inserts the booking's calendar event and returns its id.
func (e *Engine) createEvent(ctx context.Context, provider *models.Provider, booking *models.Booking) (string, error) {
	calendarID := provider.CalendarID
	if calendarID == "" {
		calendarID = e.defaultCalendarID
	}
	return e.calendar.CreateEvent(ctx, calendarID, calendar.Event{
		Summary:     booking.ClientName + ": " + strings.Join(booking.Services, ", "),
		Description: "Booked via assistant for " + booking.SenderPhone,
		Start:       booking.Start,
		End:         booking.End,
	})
}

func (e *Engine) mirrorUpdate(ctx context.Context, provider *models.Provider, booking *models.Booking) {
	if booking.ExternalRef == "" {
		ref, err := e.createEvent(ctx, provider, booking)
		if err != nil {
			e.logger.Warn("failed to mirror booking to calendar",
				zap.String("booking", booking.ID), zap.Error(err))
			return
		}
		booking.ExternalRef = ref
		if err := e.repo.SetStatus(ctx, booking.ID, booking.Status, ref); err != nil {
			e.logger.Warn("failed to store calendar event ref",
				zap.String("booking", booking.ID), zap.Error(err))
		}
		return
	}
	calendarID := provider.CalendarID
	if calendarID == "" {
		calendarID = e.defaultCalendarID
	}
	err := e.calendar.UpdateEvent(ctx, calendarID, calendar.Event{
		ID:          booking.ExternalRef,
		Summary:     booking.ClientName + ": " + strings.Join(booking.Services, ", "),
		Description: "Booked via assistant for " + booking.SenderPhone,
		Start:       booking.Start,
		End:         booking.End,
	})
	if err != nil {
		e.logger.Warn("failed to update calendar event",
			zap.String("booking", booking.ID), zap.Error(err))
	}
}

func (e *Engine) calendarFor(ctx context.Context, providerID string) string {
	provider, err := e.catalog.GetProviderByID(ctx, providerID)
	if err == nil && provider != nil && provider.CalendarID != "" {
		return provider.CalendarID
	}
	return e.defaultCalendarID
}

func serviceNames(services []models.Service) []string {
	names := make([]string, len(services))
	for i, svc := range services {
		names[i] = svc.Name
	}
	return names
}

