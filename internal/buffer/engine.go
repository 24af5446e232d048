package buffer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/omnirelay/omnirelay/internal/kvstore"
	"github.com/omnirelay/omnirelay/internal/protocol"
	"github.com/omnirelay/omnirelay/internal/queue"
)

// TimeoutQueue is the queue delayed flush jobs are published on.
const TimeoutQueue = "buffer-timeout"

// DefaultTTL bounds worst-case buffer staleness if cleanup never runs.
const DefaultTTL = 300 * time.Second

// FlushPayload is the delayed job body: everything the POST_BUFFER run
// needs to resume without re-reading the webhook event.
type FlushPayload struct {
	ThreadID  string         `json:"thread_id"`
	TenantID  string         `json:"tenant_id"`
	ProjectID string         `json:"project_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Engine coalesces bursts of messages on one thread into a single delayed
// pipeline execution. All coordination state lives in the shared key-value
// store and the job queue, so any worker process can buffer or flush.
type Engine struct {
	kv     kvstore.Store
	queue  queue.Queue
	ttl    time.Duration
	logger *slog.Logger
}

// NewEngine creates a buffer engine. ttl <= 0 applies DefaultTTL.
func NewEngine(log *slog.Logger, kv kvstore.Store, q queue.Queue, ttl time.Duration) *Engine {
	if log == nil {
		log = slog.Default()
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Engine{
		kv:     kv,
		queue:  q,
		ttl:    ttl,
		logger: log.With(slog.String("service", "buffer")),
	}
}

// AddMessage appends one message to the thread's buffer and refreshes the
// safety TTL. Appends from concurrent producers are preserved in arrival
// order by the store's atomic append.
func (e *Engine) AddMessage(ctx context.Context, threadID string, msg protocol.TypedMessage) error {
	line, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode buffered message: %w", err)
	}
	line = append(line, '\n')
	if err := e.kv.Append(ctx, messagesKey(threadID), line, e.ttl); err != nil {
		return fmt.Errorf("append buffered message: %w", err)
	}
	return nil
}

// ScheduleProcessing arranges the delayed flush: an existing pending job
// for the thread has its fire time pushed to now+timeout (the debounce
// mechanic), otherwise a new job is created. Create-or-extend is a single
// atomic queue operation, so two near-simultaneous calls cannot produce two
// jobs.
func (e *Engine) ScheduleProcessing(ctx context.Context, threadID string, timeout time.Duration, payload FlushPayload) (string, error) {
	payload.ThreadID = threadID
	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode flush payload: %w", err)
	}
	job, extended, err := e.queue.ScheduleOrExtend(ctx, TimeoutQueue, dedupeKey(threadID), timeout, body, queue.Options{})
	if err != nil {
		return "", fmt.Errorf("schedule flush: %w", err)
	}
	if err := e.kv.Set(ctx, jobKey(threadID), []byte(job.ID), e.ttl); err != nil {
		return "", fmt.Errorf("record job pointer: %w", err)
	}
	if extended {
		e.logger.Debug("flush delay extended",
			slog.String("thread_id", threadID),
			slog.String("job_id", job.ID),
			slog.Duration("timeout", timeout))
	} else {
		e.logger.Debug("flush scheduled",
			slog.String("thread_id", threadID),
			slog.String("job_id", job.ID),
			slog.Duration("timeout", timeout))
	}
	return job.ID, nil
}

// GetBufferedMessages returns the thread's buffered messages in arrival
// order. An empty buffer returns an empty slice, not an error.
func (e *Engine) GetBufferedMessages(ctx context.Context, threadID string) ([]protocol.TypedMessage, error) {
	raw, ok, err := e.kv.Get(ctx, messagesKey(threadID))
	if err != nil {
		return nil, fmt.Errorf("read buffer: %w", err)
	}
	if !ok {
		return nil, nil
	}
	var messages []protocol.TypedMessage
	for _, line := range bytes.Split(raw, []byte{'\n'}) {
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var msg protocol.TypedMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			// One corrupt line must not discard the rest of the burst.
			e.logger.Warn("skip corrupt buffered message",
				slog.String("thread_id", threadID),
				slog.Any("error", err))
			continue
		}
		messages = append(messages, msg)
	}
	return messages, nil
}

// ClearBuffer removes the message list and the job pointer together, the
// terminal step of POST_BUFFER processing.
func (e *Engine) ClearBuffer(ctx context.Context, threadID string) error {
	msgErr := e.kv.Delete(ctx, messagesKey(threadID))
	jobErr := e.kv.Delete(ctx, jobKey(threadID))
	return errors.Join(msgErr, jobErr)
}

// CancelScheduledProcessing abandons the pending flush, if any. A missing
// pointer or an already-fired job is not an error.
func (e *Engine) CancelScheduledProcessing(ctx context.Context, threadID string) error {
	raw, ok, err := e.kv.Get(ctx, jobKey(threadID))
	if err != nil {
		return fmt.Errorf("read job pointer: %w", err)
	}
	if !ok {
		return nil
	}
	if err := e.queue.Remove(ctx, string(raw)); err != nil && !errors.Is(err, queue.ErrJobNotFound) {
		return fmt.Errorf("remove flush job: %w", err)
	}
	return e.kv.Delete(ctx, jobKey(threadID))
}

// ScheduledJobID returns the pending flush job id for the thread, empty if
// none is recorded.
func (e *Engine) ScheduledJobID(ctx context.Context, threadID string) (string, error) {
	raw, ok, err := e.kv.Get(ctx, jobKey(threadID))
	if err != nil || !ok {
		return "", err
	}
	return string(raw), nil
}

func messagesKey(threadID string) string { return "buffer:msgs:" + threadID }
func jobKey(threadID string) string      { return "buffer:job:" + threadID }
func dedupeKey(threadID string) string   { return "buffer:" + threadID }
