package buffer_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/omnirelay/omnirelay/internal/buffer"
	"github.com/omnirelay/omnirelay/internal/kvstore"
	"github.com/omnirelay/omnirelay/internal/protocol"
	"github.com/omnirelay/omnirelay/internal/queue"
)

func textMessage(id, body string) protocol.TypedMessage {
	return protocol.TypedMessage{
		ID:        id,
		Type:      protocol.TypeText,
		Direction: protocol.DirectionIncoming,
		Timestamp: time.Unix(1700000000, 0),
		Content:   protocol.Content{Text: &protocol.TextContent{Body: body}},
	}
}

func newEngine(t *testing.T) (*buffer.Engine, *queue.MemQueue) {
	t.Helper()
	q := queue.NewMemQueue(3)
	return buffer.NewEngine(nil, kvstore.NewMemory(), q, 0), q
}

func TestEngine_BufferPreservesArrivalOrder(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, _ := newEngine(t)

	for i, body := range []string{"first", "second", "third"} {
		if err := engine.AddMessage(ctx, "th-1", textMessage(string(rune('a'+i)), body)); err != nil {
			t.Fatalf("add: %v", err)
		}
	}

	messages, err := engine.GetBufferedMessages(ctx, "th-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(messages) != 3 {
		t.Fatalf("buffered = %d", len(messages))
	}
	for i, want := range []string{"first", "second", "third"} {
		if messages[i].Body() != want {
			t.Fatalf("message %d = %q, want %q", i, messages[i].Body(), want)
		}
	}
}

func TestEngine_EmptyBufferIsNotAnError(t *testing.T) {
	t.Parallel()
	engine, _ := newEngine(t)

	messages, err := engine.GetBufferedMessages(context.Background(), "th-none")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("buffered = %d, want 0", len(messages))
	}
}

func TestEngine_ScheduleProcessingDebounces(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, q := newEngine(t)

	job1, err := engine.ScheduleProcessing(ctx, "th-1", 10*time.Second, buffer.FlushPayload{TenantID: "t1"})
	if err != nil {
		t.Fatalf("schedule: %v", err)
	}
	job2, err := engine.ScheduleProcessing(ctx, "th-1", 10*time.Second, buffer.FlushPayload{TenantID: "t1"})
	if err != nil {
		t.Fatalf("reschedule: %v", err)
	}
	if job1 != job2 {
		t.Fatalf("debounce must extend the same job: %s vs %s", job1, job2)
	}
	if got := q.PendingCount(""); got != 1 {
		t.Fatalf("pending jobs = %d, want 1", got)
	}

	pointer, err := engine.ScheduledJobID(ctx, "th-1")
	if err != nil || pointer != job1 {
		t.Fatalf("job pointer = %q err=%v", pointer, err)
	}
}

func TestEngine_IndependentThreadsGetIndependentJobs(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, q := newEngine(t)

	if _, err := engine.ScheduleProcessing(ctx, "th-1", time.Second, buffer.FlushPayload{}); err != nil {
		t.Fatalf("schedule th-1: %v", err)
	}
	if _, err := engine.ScheduleProcessing(ctx, "th-2", time.Second, buffer.FlushPayload{}); err != nil {
		t.Fatalf("schedule th-2: %v", err)
	}
	if got := q.PendingCount(""); got != 2 {
		t.Fatalf("pending jobs = %d, want 2", got)
	}
}

func TestEngine_ClearBufferRemovesMessagesAndPointer(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, _ := newEngine(t)

	_ = engine.AddMessage(ctx, "th-1", textMessage("a", "hello"))
	_, _ = engine.ScheduleProcessing(ctx, "th-1", time.Second, buffer.FlushPayload{})

	if err := engine.ClearBuffer(ctx, "th-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	messages, _ := engine.GetBufferedMessages(ctx, "th-1")
	if len(messages) != 0 {
		t.Fatal("messages survived clear")
	}
	pointer, _ := engine.ScheduledJobID(ctx, "th-1")
	if pointer != "" {
		t.Fatal("job pointer survived clear")
	}
}

func TestEngine_CancelScheduledProcessing(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	engine, q := newEngine(t)

	if _, err := engine.ScheduleProcessing(ctx, "th-1", time.Minute, buffer.FlushPayload{}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := engine.CancelScheduledProcessing(ctx, "th-1"); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if got := q.PendingCount(""); got != 0 {
		t.Fatalf("pending jobs = %d, want 0", got)
	}
	// Canceling again is a no-op.
	if err := engine.CancelScheduledProcessing(ctx, "th-1"); err != nil {
		t.Fatalf("second cancel: %v", err)
	}
}

func TestEngine_SkipsCorruptLines(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	kv := kvstore.NewMemory()
	engine := buffer.NewEngine(nil, kv, queue.NewMemQueue(3), 0)

	_ = engine.AddMessage(ctx, "th-1", textMessage("a", "ok"))
	_ = kv.Append(ctx, "buffer:msgs:th-1", []byte("{not json\n"), 0)
	_ = engine.AddMessage(ctx, "th-1", textMessage("b", "also ok"))

	messages, err := engine.GetBufferedMessages(ctx, "th-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(messages) != 2 {
		t.Fatalf("buffered = %d, want corrupt line skipped", len(messages))
	}
}

func TestEngine_FlushPayloadRoundTrip(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	q := queue.NewMemQueue(3)
	engine := buffer.NewEngine(nil, kvstore.NewMemory(), q, 0)

	if _, err := engine.ScheduleProcessing(ctx, "th-9", 0, buffer.FlushPayload{TenantID: "t1", ProjectID: "p1"}); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	job, err := q.Claim(ctx)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if job.Queue != buffer.TimeoutQueue {
		t.Fatalf("queue = %q", job.Queue)
	}
	var decoded buffer.FlushPayload
	if err := json.Unmarshal(job.Payload, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.ThreadID != "th-9" || decoded.TenantID != "t1" || decoded.ProjectID != "p1" {
		t.Fatalf("payload = %+v", decoded)
	}
}
