package cron

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"salonflow/config"
	"salonflow/models"
	"salonflow/services/aggregator"
	"salonflow/services/availability"
	"salonflow/services/calendar"
	"salonflow/services/catalog"
	"salonflow/services/messaging"
	"salonflow/services/processor"
	"salonflow/utils"

	bookingRepo "salonflow/database/repository/booking"
	conversationRepo "salonflow/database/repository/conversation"
	statsRepo "salonflow/database/repository/stats"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// Periodic task types. Turn flushes use aggregator.TypeTurnFlush.
const (
	TypeReminderScan = "reminder:scan"
	TypeWeeklyReport = "report:weekly"
	TypeCalendarSync = "calendar:sync"
)

// Worker consumes the background queue: delayed turn flushes plus the
// periodic jobs registered by the scheduler.
type Worker struct {
	processor *processor.Processor
	bookings  bookingRepo.BookingRepository
	convs     conversationRepo.ConversationRepository
	messenger messaging.Messenger
	stats     statsRepo.StatsRepository
	catalog   *catalog.Service
	oracle    *availability.Oracle
	calendar  calendar.Client
	loc       *time.Location
	logger    *zap.Logger
}

func NewWorker(
	proc *processor.Processor,
	bookings bookingRepo.BookingRepository,
	convs conversationRepo.ConversationRepository,
	messenger messaging.Messenger,
	stats statsRepo.StatsRepository,
	cat *catalog.Service,
	oracle *availability.Oracle,
	cal calendar.Client,
	loc *time.Location,
) *Worker {
	return &Worker{
		processor: proc,
		bookings:  bookings,
		convs:     convs,
		messenger: messenger,
		stats:     stats,
		catalog:   cat,
		oracle:    oracle,
		calendar:  cal,
		loc:       loc,
		logger:    utils.GetLogger(),
	}
}

// Run starts the async worker in the background.
func (w *Worker) Run() {
	redisOpts := asynq.RedisClientOpt{
		Addr:     config.AppConfig.RedisAddr,
		Password: config.AppConfig.RedisPassword,
		DB:       config.AppConfig.RedisQueueDB,
	}

	srv := asynq.NewServer(redisOpts, asynq.Config{
		Concurrency: 10,
		Queues:      map[string]int{"default": 1},
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(aggregator.TypeTurnFlush, w.handleTurnFlush)
	mux.HandleFunc(TypeReminderScan, w.handleReminderScan)
	mux.HandleFunc(TypeWeeklyReport, w.handleWeeklyReport)
	mux.HandleFunc(TypeCalendarSync, w.handleCalendarSync)

	go func() {
		w.logger.Info("starting background worker")
		const maxAttempts = 5
		for attempt := 1; attempt <= maxAttempts; attempt++ {
			if err := srv.Run(mux); err != nil {
				w.logger.Error("background worker failed to start",
					zap.Int("attempt", attempt), zap.Error(err))
				if attempt == maxAttempts {
					w.logger.Fatal("background worker could not start, giving up")
				}
				time.Sleep(time.Duration(attempt*2) * time.Second)
				continue
			}
			break
		}
	}()
}

func (w *Worker) handleTurnFlush(ctx context.Context, task *asynq.Task) error {
	var payload aggregator.FlushPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		w.logger.Error("invalid flush payload", zap.Error(err))
		return err
	}
	return w.processor.ProcessTurn(ctx, payload.ConversationID)
}

// handleReminderScan messages every client with an appointment tomorrow
// that has not been reminded yet.
func (w *Worker) handleReminderScan(ctx context.Context, task *asynq.Task) error {
	now := time.Now().In(w.loc)
	from := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, w.loc).AddDate(0, 0, 1)
	to := from.AddDate(0, 0, 1)

	bookings, err := w.bookings.ListActiveBetween(ctx, from, to)
	if err != nil {
		return err
	}
	for _, b := range bookings {
		if b.ReminderSentAt != nil {
			continue
		}
		conv, err := w.convs.FindBySenderPhone(ctx, b.SenderPhone)
		if err != nil {
			w.logger.Warn("no conversation for reminder",
				zap.String("booking", b.ID), zap.String("phone", b.SenderPhone))
			continue
		}
		text := fmt.Sprintf("Hola %s, te recordamos tu cita de mañana a las %s: %s. ¡Te esperamos!",
			b.ClientName, b.Start.In(w.loc).Format("15:04"), strings.Join(b.Services, ", "))
		if err := w.messenger.SendReply(ctx, conv.ID, text); err != nil {
			w.logger.Warn("failed to send reminder", zap.String("booking", b.ID), zap.Error(err))
			continue
		}
		if err := w.bookings.MarkReminderSent(ctx, b.ID, time.Now()); err != nil {
			w.logger.Warn("failed to mark reminder sent", zap.String("booking", b.ID), zap.Error(err))
		}
	}
	w.logger.Info("reminder scan finished", zap.Int("bookings", len(bookings)))
	return nil
}

// handleWeeklyReport summarises the last seven days for the salon owner.
func (w *Worker) handleWeeklyReport(ctx context.Context, task *asynq.Task) error {
	to := time.Now().In(w.loc)
	from := to.AddDate(0, 0, -7)
	days, err := w.stats.Range(ctx, from, to)
	if err != nil {
		return err
	}

	var total models.DailyStats
	for _, d := range days {
		total.MessagesReceived += d.MessagesReceived
		total.TurnsProcessed += d.TurnsProcessed
		total.BookingsCreated += d.BookingsCreated
		total.BookingsUpdated += d.BookingsUpdated
		total.BookingsCancelled += d.BookingsCancelled
		total.HumanHandoffs += d.HumanHandoffs
		total.RateLimited += d.RateLimited
		total.Errors += d.Errors
	}

	report := fmt.Sprintf(
		"Resumen semanal (%s a %s):\n"+
			"• Mensajes recibidos: %d\n"+
			"• Turnos atendidos: %d\n"+
			"• Citas creadas: %d, modificadas: %d, canceladas: %d\n"+
			"• Transferencias a humano: %d\n"+
			"• Mensajes limitados: %d\n"+
			"• Errores: %d",
		from.Format("02/01"), to.Format("02/01"),
		total.MessagesReceived, total.TurnsProcessed,
		total.BookingsCreated, total.BookingsUpdated, total.BookingsCancelled,
		total.HumanHandoffs, total.RateLimited, total.Errors)

	owner := config.AppConfig.OwnerPhone
	if owner == "" {
		w.logger.Info("weekly report (no owner configured)", zap.String("report", report))
		return nil
	}
	conv, err := w.convs.FindBySenderPhone(ctx, owner)
	if err != nil {
		w.logger.Warn("no conversation for owner, logging report instead", zap.String("report", report))
		return nil
	}
	return w.messenger.SendReply(ctx, conv.ID, report)
}

// handleCalendarSync refreshes the availability snapshots for today and
// tomorrow so external calendar edits show up without waiting for a client
// to ask.
func (w *Worker) handleCalendarSync(ctx context.Context, task *asynq.Task) error {
	providers, err := w.catalog.ListProviders(ctx)
	if err != nil {
		return err
	}
	now := time.Now().In(w.loc)
	for i := range providers {
		for _, day := range []time.Time{now, now.AddDate(0, 0, 1)} {
			w.oracle.Invalidate(ctx, providers[i].ID, day)
			if _, err := w.oracle.BusyForDay(ctx, &providers[i], day); err != nil {
				w.logger.Warn("calendar sync failed for provider",
					zap.String("provider", providers[i].ID), zap.Error(err))
			}
		}
	}
	return w.reconcileDeletedEvents(ctx, providers, now)
}

// reconcileDeletedEvents cancels the local booking when its mirrored event
// was removed from the calendar by hand.
func (w *Worker) reconcileDeletedEvents(ctx context.Context, providers []models.Provider, now time.Time) error {
	bookings, err := w.bookings.ListActiveBetween(ctx, now, now.AddDate(0, 0, 2))
	if err != nil {
		return err
	}
	calendarIDs := make(map[string]string, len(providers))
	for _, p := range providers {
		calendarIDs[p.ID] = p.CalendarID
	}
	for _, b := range bookings {
		if b.ExternalRef == "" {
			continue
		}
		calID := calendarIDs[b.ProviderID]
		if calID == "" {
			calID = config.AppConfig.CalendarID
		}
		exists, err := w.calendar.EventExists(ctx, calID, b.ExternalRef)
		if err != nil {
			w.logger.Warn("event reconcile check failed",
				zap.String("booking", b.ID), zap.Error(err))
			continue
		}
		if exists {
			continue
		}
		if err := w.bookings.SetStatus(ctx, b.ID, models.BookingStatusCancelled, ""); err != nil {
			w.logger.Warn("failed to cancel booking for deleted event",
				zap.String("booking", b.ID), zap.Error(err))
			continue
		}
		w.oracle.Invalidate(ctx, b.ProviderID, b.Start)
		w.logger.Info("booking cancelled, calendar event removed externally",
			zap.String("booking", b.ID), zap.String("event", b.ExternalRef))
	}
	return nil
}
