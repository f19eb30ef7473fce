package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
)

func newTestLimiter(t *testing.T, capacity int, window time.Duration) (*Limiter, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewLimiter(client, capacity, window), mr
}

func TestCheckAdmitsUpToCapacity(t *testing.T) {
	limiter, _ := newTestLimiter(t, 3, time.Hour)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 3; i++ {
		res, err := limiter.Check(ctx, "5215550001", now)
		if err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
		if !res.Allowed {
			t.Fatalf("check %d: expected allowed", i)
		}
		if want := 3 - i - 1; res.Remaining != want {
			t.Fatalf("check %d: remaining = %d, want %d", i, res.Remaining, want)
		}
	}
}

func TestCheckDeniesBeyondCapacityWithoutCounting(t *testing.T) {
	limiter, mr := newTestLimiter(t, 2, time.Hour)
	ctx := context.Background()
	now := time.Now()

	for i := 0; i < 2; i++ {
		if _, err := limiter.Check(ctx, "5215550002", now); err != nil {
			t.Fatalf("check %d: %v", i, err)
		}
	}

	for i := 0; i < 5; i++ {
		res, err := limiter.Check(ctx, "5215550002", now)
		if err != nil {
			t.Fatalf("denied check %d: %v", i, err)
		}
		if res.Allowed {
			t.Fatalf("denied check %d: expected rejection", i)
		}
		if res.Remaining != 0 {
			t.Fatalf("denied check %d: remaining = %d, want 0", i, res.Remaining)
		}
	}

	// Denials must not have incremented the counter past capacity.
	got, err := mr.Get("rate:5215550002")
	if err != nil {
		t.Fatalf("get counter: %v", err)
	}
	if got != "2" {
		t.Fatalf("counter = %s, want 2", got)
	}
}

func TestCheckResetAtTracksWindowExpiry(t *testing.T) {
	limiter, mr := newTestLimiter(t, 1, time.Hour)
	ctx := context.Background()
	now := time.Now()

	if _, err := limiter.Check(ctx, "5215550003", now); err != nil {
		t.Fatalf("first check: %v", err)
	}

	res, err := limiter.Check(ctx, "5215550003", now)
	if err != nil {
		t.Fatalf("denied check: %v", err)
	}
	if res.Allowed {
		t.Fatal("expected denial at capacity 1")
	}
	// Reset must be within the window, not beyond it.
	if res.ResetAt.After(now.Add(time.Hour + time.Second)) {
		t.Fatalf("reset at %v beyond window end", res.ResetAt)
	}

	// Once the window elapses the sender is admitted again.
	mr.FastForward(time.Hour + time.Minute)
	res, err = limiter.Check(ctx, "5215550003", now.Add(time.Hour+time.Minute))
	if err != nil {
		t.Fatalf("post-window check: %v", err)
	}
	if !res.Allowed {
		t.Fatal("expected admission after window reset")
	}
}

func TestCheckIsolatesSenders(t *testing.T) {
	limiter, _ := newTestLimiter(t, 1, time.Hour)
	ctx := context.Background()
	now := time.Now()

	if _, err := limiter.Check(ctx, "5215550004", now); err != nil {
		t.Fatalf("first sender: %v", err)
	}
	res, err := limiter.Check(ctx, "5215550005", now)
	if err != nil {
		t.Fatalf("second sender: %v", err)
	}
	if !res.Allowed {
		t.Fatal("second sender should have its own window")
	}
}
