package queue_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/omnirelay/omnirelay/internal/queue"
)

func TestScheduleOrExtend_SinglePendingJobPerKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := queue.NewMemQueue(3)

	job1, extended, err := q.ScheduleOrExtend(ctx, "buffer-timeout", "buffer:th-1", time.Minute, json.RawMessage(`{}`), queue.Options{})
	if err != nil || extended {
		t.Fatalf("first schedule: extended=%v err=%v", extended, err)
	}
	job2, extended, err := q.ScheduleOrExtend(ctx, "buffer-timeout", "buffer:th-1", time.Minute, json.RawMessage(`{}`), queue.Options{})
	if err != nil || !extended {
		t.Fatalf("second schedule: extended=%v err=%v", extended, err)
	}
	if job1.ID != job2.ID {
		t.Fatal("extend must reuse the existing job")
	}
	if got := q.PendingCount("buffer:th-1"); got != 1 {
		t.Fatalf("pending jobs = %d, want 1", got)
	}
}

func TestScheduleOrExtend_ConcurrentCallsNeverDuplicate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := queue.NewMemQueue(3)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = q.ScheduleOrExtend(ctx, "buffer-timeout", "buffer:th-1", time.Minute, json.RawMessage(`{}`), queue.Options{})
		}()
	}
	wg.Wait()

	if got := q.PendingCount("buffer:th-1"); got != 1 {
		t.Fatalf("pending jobs = %d, want 1", got)
	}
}

func TestClaim_TakesEarliestDueJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := queue.NewMemQueue(3)
	now := time.Now()
	q.SetClock(func() time.Time { return now })

	late, _ := q.Enqueue(ctx, "webhook-whaticket-default", json.RawMessage(`{"n":2}`), queue.Options{Delay: -time.Second})
	early, _ := q.Enqueue(ctx, "webhook-whaticket-default", json.RawMessage(`{"n":1}`), queue.Options{Delay: -time.Minute})

	claimed, err := q.Claim(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if claimed.ID != early.ID {
		t.Fatalf("claimed %s, want earliest %s (late was %s)", claimed.ID, early.ID, late.ID)
	}
	if claimed.Attempts != 1 {
		t.Fatalf("attempts = %d, want 1", claimed.Attempts)
	}
}

func TestClaim_RespectsRunAt(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := queue.NewMemQueue(3)
	now := time.Now()
	q.SetClock(func() time.Time { return now })

	if _, _, err := q.ScheduleOrExtend(ctx, "buffer-timeout", "buffer:th-1", 10*time.Second, json.RawMessage(`{}`), queue.Options{}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if _, err := q.Claim(ctx); !errors.Is(err, queue.ErrNoWork) {
		t.Fatalf("claim before run_at: %v", err)
	}

	now = now.Add(11 * time.Second)
	if _, err := q.Claim(ctx); err != nil {
		t.Fatalf("claim after run_at: %v", err)
	}
}

func TestMarkRetry_SupersededByNewerDedupeJob(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := queue.NewMemQueue(3)
	now := time.Now()
	q.SetClock(func() time.Time { return now })

	_, _, err := q.ScheduleOrExtend(ctx, "buffer-timeout", "buffer:th-1", 0, json.RawMessage(`{}`), queue.Options{})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	claimed, err := q.Claim(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	// A new burst schedules a fresh job for the same thread while the old
	// flush is still processing.
	_, extended, err := q.ScheduleOrExtend(ctx, "buffer-timeout", "buffer:th-1", time.Minute, json.RawMessage(`{}`), queue.Options{})
	if err != nil || extended {
		t.Fatalf("reschedule: extended=%v err=%v", extended, err)
	}

	// Retrying the old job must not violate the one-pending-job guarantee.
	if err := q.MarkRetry(ctx, claimed.ID, "transient", now.Add(time.Second)); err != nil {
		t.Fatalf("mark retry: %v", err)
	}
	if got := q.PendingCount("buffer:th-1"); got != 1 {
		t.Fatalf("pending jobs = %d, want 1 (old job must be parked, not retried)", got)
	}
}

func TestRemove_OnlyPendingJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := queue.NewMemQueue(3)

	job, _ := q.Enqueue(ctx, "buffer-timeout", json.RawMessage(`{}`), queue.Options{Delay: -time.Second})
	if _, err := q.Claim(ctx); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := q.Remove(ctx, job.ID); !errors.Is(err, queue.ErrJobNotFound) {
		t.Fatalf("remove of claimed job: %v, want ErrJobNotFound", err)
	}
}
