package availability

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"salonflow/models"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// FreeBusySource yields the busy intervals of an external calendar.
// Satisfied by calendar.Client.
type FreeBusySource interface {
	FreeBusy(ctx context.Context, calendarID string, from, to time.Time) ([]models.Interval, error)
}

// BookingSource yields the locally stored active bookings that intersect a
// window. Satisfied by the booking repository.
type BookingSource interface {
	ListActiveOverlapping(ctx context.Context, providerID string, start, end time.Time) ([]models.Booking, error)
}

// Source tags where a busy snapshot came from.
const (
	SourceLive   = "live"
	SourceCached = "cached"
	SourceStale  = "stale"
)

const (
	busyKeyPrefix = "avail:busy:"
	// Snapshots persist far beyond their freshness window so a calendar
	// outage can fall back on the last known state.
	snapshotRetention = 24 * time.Hour

	// SlotStep is the granularity at which alternative slots are proposed.
	SlotStep = 30 * time.Minute
)

type snapshot struct {
	FetchedAt time.Time         `json:"fetched_at"`
	Busy      []models.Interval `json:"busy"`
}

// BusyDay is a provider's busy intervals for one day, tagged with how fresh
// the data is.
type BusyDay struct {
	Busy   []models.Interval
	Source string
}

// Oracle answers "is this provider free at this time". Busy time is the
// union of the provider's external calendar and the locally stored active
// bookings, cached per provider per day.
type Oracle struct {
	calendar  FreeBusySource
	bookings  BookingSource
	cache     *redis.Client
	ttl       time.Duration
	openHour  int
	closeHour int
	logger    *zap.Logger
}

func NewOracle(cal FreeBusySource, bookings BookingSource, cache *redis.Client, ttl time.Duration, openHour, closeHour int, logger *zap.Logger) *Oracle {
	return &Oracle{
		calendar:  cal,
		bookings:  bookings,
		cache:     cache,
		ttl:       ttl,
		openHour:  openHour,
		closeHour: closeHour,
		logger:    logger,
	}
}

// BusyForDay returns the provider's busy intervals for the day containing
// at. A snapshot younger than the TTL is served as-is; otherwise a live
// fetch refreshes it, and if the live fetch fails the stale snapshot is
// returned tagged as such.
func (o *Oracle) BusyForDay(ctx context.Context, provider *models.Provider, at time.Time) (*BusyDay, error) {
	dayStart := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	dayEnd := dayStart.Add(24 * time.Hour)
	key := o.busyKey(provider.ID, dayStart)

	cached := o.loadSnapshot(ctx, key)
	if cached != nil && time.Since(cached.FetchedAt) < o.ttl {
		return &BusyDay{Busy: cached.Busy, Source: SourceCached}, nil
	}

	busy, err := o.fetchBusy(ctx, provider, dayStart, dayEnd)
	if err != nil {
		if cached != nil {
			o.logger.Warn("live availability fetch failed, serving stale snapshot",
				zap.String("provider", provider.ID), zap.Error(err))
			return &BusyDay{Busy: cached.Busy, Source: SourceStale}, nil
		}
		return nil, err
	}

	o.storeSnapshot(ctx, key, &snapshot{FetchedAt: time.Now(), Busy: busy})
	return &BusyDay{Busy: busy, Source: SourceLive}, nil
}

// IsFree reports whether the provider has no busy interval overlapping the
// requested one. The source of the underlying snapshot is returned so
// callers can decide how much to trust a stale answer.
func (o *Oracle) IsFree(ctx context.Context, provider *models.Provider, interval models.Interval) (bool, string, error) {
	day, err := o.BusyForDay(ctx, provider, interval.Start)
	if err != nil {
		return false, "", err
	}
	for _, busy := range day.Busy {
		if interval.Overlaps(busy) {
			return false, day.Source, nil
		}
	}
	return true, day.Source, nil
}

// AvailableSlots proposes start times of the given duration on the day of
// at, stepping every SlotStep inside business hours. Slots in the past and
// slots outside the provider's working day are skipped.
func (o *Oracle) AvailableSlots(ctx context.Context, provider *models.Provider, at time.Time, duration time.Duration, limit int) ([]time.Time, error) {
	if len(provider.WorksOn(int(at.Weekday()))) == 0 {
		return nil, nil
	}
	day, err := o.BusyForDay(ctx, provider, at)
	if err != nil {
		return nil, err
	}

	open := time.Date(at.Year(), at.Month(), at.Day(), o.openHour, 0, 0, 0, at.Location())
	close := time.Date(at.Year(), at.Month(), at.Day(), o.closeHour, 0, 0, 0, at.Location())
	now := time.Now().In(at.Location())

	var slots []time.Time
	for start := open; !start.Add(duration).After(close); start = start.Add(SlotStep) {
		if start.Before(now) {
			continue
		}
		candidate := models.Interval{Start: start, End: start.Add(duration)}
		free := true
		for _, busy := range day.Busy {
			if candidate.Overlaps(busy) {
				free = false
				break
			}
		}
		if free {
			slots = append(slots, start)
			if limit > 0 && len(slots) >= limit {
				break
			}
		}
	}
	return slots, nil
}

// Invalidate drops the cached snapshot for a provider's day. Called after a
// booking commit so the next read reflects it immediately.
func (o *Oracle) Invalidate(ctx context.Context, providerID string, at time.Time) {
	dayStart := time.Date(at.Year(), at.Month(), at.Day(), 0, 0, 0, 0, at.Location())
	if err := o.cache.Del(ctx, o.busyKey(providerID, dayStart)).Err(); err != nil {
		o.logger.Warn("failed to invalidate availability snapshot",
			zap.String("provider", providerID), zap.Error(err))
	}
}

func (o *Oracle) fetchBusy(ctx context.Context, provider *models.Provider, from, to time.Time) ([]models.Interval, error) {
	var busy []models.Interval
	if provider.CalendarID != "" {
		external, err := o.calendar.FreeBusy(ctx, provider.CalendarID, from, to)
		if err != nil {
			return nil, fmt.Errorf("calendar busy fetch failed: %w", err)
		}
		busy = append(busy, external...)
	}

	local, err := o.bookings.ListActiveOverlapping(ctx, provider.ID, from, to)
	if err != nil {
		return nil, fmt.Errorf("local busy fetch failed: %w", err)
	}
	for _, b := range local {
		busy = append(busy, b.Interval())
	}

	sort.Slice(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })
	return busy, nil
}

func (o *Oracle) loadSnapshot(ctx context.Context, key string) *snapshot {
	raw, err := o.cache.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		o.logger.Warn("availability cache read failed", zap.Error(err))
		return nil
	}
	var snap snapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		o.logger.Warn("corrupt availability snapshot dropped", zap.Error(err))
		return nil
	}
	return &snap
}

func (o *Oracle) storeSnapshot(ctx context.Context, key string, snap *snapshot) {
	raw, err := json.Marshal(snap)
	if err != nil {
		return
	}
	if err := o.cache.Set(ctx, key, raw, snapshotRetention).Err(); err != nil {
		o.logger.Warn("availability cache write failed", zap.Error(err))
	}
}

func (o *Oracle) busyKey(providerID string, dayStart time.Time) string {
	return busyKeyPrefix + providerID + ":" + dayStart.Format("2006-01-02")
}
