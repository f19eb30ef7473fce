package availability

import (
	"context"
	"errors"
	"testing"
	"time"

	"salonflow/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

type fakeCalendar struct {
	busy  []models.Interval
	err   error
	calls int
}

func (f *fakeCalendar) FreeBusy(ctx context.Context, calendarID string, from, to time.Time) ([]models.Interval, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.busy, nil
}

type fakeBookings struct {
	active []models.Booking
	err    error
}

func (f *fakeBookings) ListActiveOverlapping(ctx context.Context, providerID string, start, end time.Time) ([]models.Booking, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.active, nil
}

func testProvider() *models.Provider {
	weekly := make([]models.WeeklyBlock, 0, 7)
	for d := 0; d < 7; d++ {
		weekly = append(weekly, models.WeeklyBlock{Weekday: d, StartTime: "09:00", EndTime: "20:00"})
	}
	return &models.Provider{ID: "prov-1", Name: "Lucia", CalendarID: "lucia@salon", Weekly: weekly, Active: true}
}

func newTestOracle(t *testing.T, cal *fakeCalendar, bookings *fakeBookings) (*Oracle, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewOracle(cal, bookings, cache, 5*time.Minute, 9, 20, zap.NewNop()), mr
}

func at(day time.Time, hour, min int) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), hour, min, 0, 0, day.Location())
}

func TestBusyIsUnionOfCalendarAndBookings(t *testing.T) {
	day := time.Now().AddDate(0, 0, 1)
	cal := &fakeCalendar{busy: []models.Interval{{Start: at(day, 10, 0), End: at(day, 11, 0)}}}
	bookings := &fakeBookings{active: []models.Booking{{
		ID: "b1", ProviderID: "prov-1", Status: models.BookingStatusConfirmed,
		Start: at(day, 12, 0), End: at(day, 13, 0),
	}}}
	oracle, _ := newTestOracle(t, cal, bookings)

	busy, err := oracle.BusyForDay(context.Background(), testProvider(), day)
	if err != nil {
		t.Fatalf("busy: %v", err)
	}
	if busy.Source != SourceLive {
		t.Fatalf("source = %q, want live", busy.Source)
	}
	if len(busy.Busy) != 2 {
		t.Fatalf("busy intervals = %d, want 2", len(busy.Busy))
	}
	if !busy.Busy[0].Start.Before(busy.Busy[1].Start) {
		t.Fatal("busy intervals not sorted by start")
	}
}

func TestFreshSnapshotSkipsLiveFetch(t *testing.T) {
	day := time.Now().AddDate(0, 0, 1)
	cal := &fakeCalendar{}
	oracle, _ := newTestOracle(t, cal, &fakeBookings{})
	ctx := context.Background()

	if _, err := oracle.BusyForDay(ctx, testProvider(), day); err != nil {
		t.Fatalf("first read: %v", err)
	}
	second, err := oracle.BusyForDay(ctx, testProvider(), day)
	if err != nil {
		t.Fatalf("second read: %v", err)
	}
	if second.Source != SourceCached {
		t.Fatalf("source = %q, want cached", second.Source)
	}
	if cal.calls != 1 {
		t.Fatalf("calendar calls = %d, want 1", cal.calls)
	}
}

func TestStaleSnapshotServedWhenLiveFetchFails(t *testing.T) {
	day := time.Now().AddDate(0, 0, 1)
	cal := &fakeCalendar{busy: []models.Interval{{Start: at(day, 10, 0), End: at(day, 11, 0)}}}
	oracle, mr := newTestOracle(t, cal, &fakeBookings{})
	ctx := context.Background()

	if _, err := oracle.BusyForDay(ctx, testProvider(), day); err != nil {
		t.Fatalf("warm read: %v", err)
	}

	// Age the snapshot past its freshness window, then break the calendar.
	mr.FastForward(6 * time.Minute)
	cal.err = errors.New("calendar unreachable")

	// miniredis FastForward only moves key expiry, not the wall clock the
	// oracle compares FetchedAt against, so rewrite the snapshot with an
	// old timestamp instead.
	key := oracle.busyKey("prov-1", at(day, 0, 0))
	oracle.storeSnapshot(ctx, key, &snapshot{
		FetchedAt: time.Now().Add(-10 * time.Minute),
		Busy:      []models.Interval{{Start: at(day, 10, 0), End: at(day, 11, 0)}},
	})

	busy, err := oracle.BusyForDay(ctx, testProvider(), day)
	if err != nil {
		t.Fatalf("stale read: %v", err)
	}
	if busy.Source != SourceStale {
		t.Fatalf("source = %q, want stale", busy.Source)
	}
	if len(busy.Busy) != 1 {
		t.Fatalf("busy intervals = %d, want 1", len(busy.Busy))
	}
}

func TestErrorWhenNoSnapshotAndFetchFails(t *testing.T) {
	day := time.Now().AddDate(0, 0, 1)
	cal := &fakeCalendar{err: errors.New("calendar unreachable")}
	oracle, _ := newTestOracle(t, cal, &fakeBookings{})

	if _, err := oracle.BusyForDay(context.Background(), testProvider(), day); err == nil {
		t.Fatal("expected error when no fallback snapshot exists")
	}
}

func TestIsFreeDetectsOverlap(t *testing.T) {
	day := time.Now().AddDate(0, 0, 1)
	cal := &fakeCalendar{busy: []models.Interval{{Start: at(day, 10, 0), End: at(day, 11, 0)}}}
	oracle, _ := newTestOracle(t, cal, &fakeBookings{})
	ctx := context.Background()

	cases := []struct {
		name     string
		interval models.Interval
		free     bool
	}{
		{"inside busy", models.Interval{Start: at(day, 10, 15), End: at(day, 10, 45)}, false},
		{"straddles start", models.Interval{Start: at(day, 9, 30), End: at(day, 10, 30)}, false},
		{"abuts end", models.Interval{Start: at(day, 11, 0), End: at(day, 12, 0)}, true},
		{"abuts start", models.Interval{Start: at(day, 9, 0), End: at(day, 10, 0)}, true},
		{"clear", models.Interval{Start: at(day, 14, 0), End: at(day, 15, 0)}, true},
	}
	for _, tc := range cases {
		free, _, err := oracle.IsFree(ctx, testProvider(), tc.interval)
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if free != tc.free {
			t.Errorf("%s: free = %v, want %v", tc.name, free, tc.free)
		}
	}
}

func TestAvailableSlotsRespectBusinessHoursAndBusy(t *testing.T) {
	day := time.Now().AddDate(0, 0, 1)
	cal := &fakeCalendar{busy: []models.Interval{{Start: at(day, 9, 0), End: at(day, 10, 0)}}}
	oracle, _ := newTestOracle(t, cal, &fakeBookings{})

	slots, err := oracle.AvailableSlots(context.Background(), testProvider(), day, time.Hour, 3)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(slots) != 3 {
		t.Fatalf("slots = %d, want 3", len(slots))
	}
	if !slots[0].Equal(at(day, 10, 0)) {
		t.Fatalf("first slot = %v, want 10:00", slots[0])
	}
	if !slots[1].Equal(at(day, 10, 30)) {
		t.Fatalf("second slot = %v, want 10:30", slots[1])
	}
	for _, slot := range slots {
		if slot.Hour() < 9 || slot.Add(time.Hour).Hour() > 20 {
			t.Fatalf("slot %v outside business hours", slot)
		}
	}
}

func TestAvailableSlotsEmptyOnNonWorkingDay(t *testing.T) {
	day := time.Now().AddDate(0, 0, 1)
	oracle, _ := newTestOracle(t, &fakeCalendar{}, &fakeBookings{})
	provider := testProvider()
	provider.Weekly = nil

	slots, err := oracle.AvailableSlots(context.Background(), provider, day, time.Hour, 3)
	if err != nil {
		t.Fatalf("slots: %v", err)
	}
	if len(slots) != 0 {
		t.Fatalf("slots = %d, want 0", len(slots))
	}
}

func TestInvalidateForcesLiveRefetch(t *testing.T) {
	day := time.Now().AddDate(0, 0, 1)
	cal := &fakeCalendar{}
	oracle, _ := newTestOracle(t, cal, &fakeBookings{})
	ctx := context.Background()

	if _, err := oracle.BusyForDay(ctx, testProvider(), day); err != nil {
		t.Fatalf("warm read: %v", err)
	}
	oracle.Invalidate(ctx, "prov-1", day)
	busy, err := oracle.BusyForDay(ctx, testProvider(), day)
	if err != nil {
		t.Fatalf("read after invalidate: %v", err)
	}
	if busy.Source != SourceLive {
		t.Fatalf("source = %q, want live after invalidation", busy.Source)
	}
	if cal.calls != 2 {
		t.Fatalf("calendar calls = %d, want 2", cal.calls)
	}
}
