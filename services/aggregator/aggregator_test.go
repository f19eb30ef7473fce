package aggregator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"salonflow/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

// fakeScheduler records schedule calls instead of touching a queue.
type fakeScheduler struct {
	calls []scheduleCall
}

type scheduleCall struct {
	ConversationID string
	Delay          time.Duration
}

func (f *fakeScheduler) Schedule(ctx context.Context, conversationID string, delay time.Duration) error {
	f.calls = append(f.calls, scheduleCall{ConversationID: conversationID, Delay: delay})
	return nil
}

func newTestAggregator(t *testing.T) (*Aggregator, *fakeScheduler, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	sched := &fakeScheduler{}
	return NewAggregator(client, sched, 3*time.Second, zap.NewNop()), sched, client
}

func frag(id, content string) models.Fragment {
	return models.Fragment{MessageID: id, Content: content, Timestamp: time.Now()}
}

func TestEnqueueReschedulesFlushPerFragment(t *testing.T) {
	agg, sched, _ := newTestAggregator(t)
	ctx := context.Background()

	if err := agg.Enqueue(ctx, "conv-1", frag("m1", "Hola")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := agg.Enqueue(ctx, "conv-1", frag("m2", "quiero una cita")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	if len(sched.calls) != 2 {
		t.Fatalf("schedule calls = %d, want 2", len(sched.calls))
	}
	for _, call := range sched.calls {
		if call.ConversationID != "conv-1" || call.Delay != 3*time.Second {
			t.Fatalf("unexpected schedule call %+v", call)
		}
	}
}

func TestCollectMergesFragmentsInArrivalOrder(t *testing.T) {
	agg, _, _ := newTestAggregator(t)
	ctx := context.Background()

	for _, f := range []models.Fragment{frag("m1", "Hola"), frag("m2", "quiero una cita")} {
		if err := agg.Enqueue(ctx, "conv-2", f); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	turn, err := agg.Collect(ctx, "conv-2")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if turn == nil {
		t.Fatal("expected a turn")
	}
	if turn.Content != "Hola quiero una cita" {
		t.Fatalf("content = %q, want %q", turn.Content, "Hola quiero una cita")
	}
	if len(turn.Fragments) != 2 {
		t.Fatalf("fragments = %d, want 2", len(turn.Fragments))
	}
}

func TestCollectFlushesAtMostOnce(t *testing.T) {
	agg, _, _ := newTestAggregator(t)
	ctx := context.Background()

	if err := agg.Enqueue(ctx, "conv-3", frag("m1", "Hola")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	first, err := agg.Collect(ctx, "conv-3")
	if err != nil {
		t.Fatalf("first collect: %v", err)
	}
	if first == nil {
		t.Fatal("expected first collect to yield a turn")
	}

	second, err := agg.Collect(ctx, "conv-3")
	if err != nil {
		t.Fatalf("second collect: %v", err)
	}
	if second != nil {
		t.Fatalf("second collect yielded %+v, want nil", second)
	}
}

func TestCollectSkipsWhenLockHeld(t *testing.T) {
	agg, _, client := newTestAggregator(t)
	ctx := context.Background()

	if err := agg.Enqueue(ctx, "conv-4", frag("m1", "Hola")); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	// Simulate another worker mid-flush.
	if err := client.Set(ctx, "turn:lock:conv-4", "1", time.Minute).Err(); err != nil {
		t.Fatalf("seed lock: %v", err)
	}

	turn, err := agg.Collect(ctx, "conv-4")
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	if turn != nil {
		t.Fatal("collect should skip while lock is held")
	}

	// The buffer must survive for the worker that owns the lock.
	count, err := agg.PendingCount(ctx, "conv-4")
	if err != nil {
		t.Fatalf("pending count: %v", err)
	}
	if count != 1 {
		t.Fatalf("pending = %d, want 1", count)
	}
}

func TestNoFragmentLostWhenEnqueueRacesCollect(t *testing.T) {
	agg, _, _ := newTestAggregator(t)
	ctx := context.Background()

	// A fragment pushed while a drain is in flight must end up either in
	// that turn or buffered for the next flush, never dropped.
	const total = 50
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < total; i++ {
			if err := agg.Enqueue(ctx, "conv-5", frag(fmt.Sprintf("m%d", i), "hola")); err != nil {
				t.Errorf("enqueue %d: %v", i, err)
				return
			}
		}
	}()

	collected := 0
	for {
		turn, err := agg.Collect(ctx, "conv-5")
		if err != nil {
			t.Fatalf("collect: %v", err)
		}
		if turn != nil {
			collected += len(turn.Fragments)
		}
		select {
		case <-done:
			if turn, err := agg.Collect(ctx, "conv-5"); err == nil && turn != nil {
				collected += len(turn.Fragments)
			}
			if collected != total {
				t.Fatalf("collected = %d fragments, want %d", collected, total)
			}
			return
		default:
		}
	}
}

func TestSendersDoNotInterleave(t *testing.T) {
	agg, _, _ := newTestAggregator(t)
	ctx := context.Background()

	if err := agg.Enqueue(ctx, "conv-a", frag("a1", "corte")); err != nil {
		t.Fatalf("enqueue a: %v", err)
	}
	if err := agg.Enqueue(ctx, "conv-b", frag("b1", "tinte")); err != nil {
		t.Fatalf("enqueue b: %v", err)
	}

	turnA, err := agg.Collect(ctx, "conv-a")
	if err != nil || turnA == nil {
		t.Fatalf("collect a: turn=%v err=%v", turnA, err)
	}
	if turnA.Content != "corte" {
		t.Fatalf("conv-a content = %q", turnA.Content)
	}

	turnB, err := agg.Collect(ctx, "conv-b")
	if err != nil || turnB == nil {
		t.Fatalf("collect b: turn=%v err=%v", turnB, err)
	}
	if turnB.Content != "tinte" {
		t.Fatalf("conv-b content = %q", turnB.Content)
	}
}
