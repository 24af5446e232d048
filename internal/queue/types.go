package queue

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Status values for a job row.
const (
	statusPending    = "pending"
	statusProcessing = "processing"
	statusDone       = "done"
	statusFailed     = "failed"
)

var (
	ErrJobNotFound = errors.New("job not found")
	// ErrNoWork signals an empty claim, not a failure.
	ErrNoWork = errors.New("no job due")
)

// Job is one queued unit of work.
type Job struct {
	ID          string          `json:"id"`
	Queue       string          `json:"queue"`
	Payload     json.RawMessage `json:"payload"`
	DedupeKey   string          `json:"dedupe_key,omitempty"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	RunAt       time.Time       `json:"run_at"`
}

// Options controls enqueue behavior.
type Options struct {
	// MaxAttempts bounds delivery retries; zero applies the queue default.
	MaxAttempts int
	// Delay postpones the first delivery.
	Delay time.Duration
}

// Queue is the job boundary shared by the gateway, the buffer engine, and
// the workers.
type Queue interface {
	// Enqueue adds a job for delivery after opts.Delay.
	Enqueue(ctx context.Context, queueName string, payload json.RawMessage, opts Options) (Job, error)
	// ScheduleOrExtend is the debounce primitive: if a pending job with the
	// dedupe key exists its delivery time is pushed to now+delay, otherwise
	// a new job is created. The create-or-extend decision is atomic per key,
	// so concurrent calls never produce two pending jobs. extended reports
	// which branch was taken.
	ScheduleOrExtend(ctx context.Context, queueName, dedupeKey string, delay time.Duration, payload json.RawMessage, opts Options) (job Job, extended bool, err error)
	// ChangeDelay reschedules a not-yet-claimed job.
	ChangeDelay(ctx context.Context, jobID string, delay time.Duration) error
	// Remove cancels a job that has not been claimed yet.
	Remove(ctx context.Context, jobID string) error

	// Claim atomically takes the next due job and marks it processing.
	Claim(ctx context.Context) (Job, error)
	// MarkDone finishes a claimed job.
	MarkDone(ctx context.Context, jobID string) error
	// MarkRetry returns a claimed job to the pending state for redelivery at
	// retryAt.
	MarkRetry(ctx context.Context, jobID, lastError string, retryAt time.Time) error
	// MarkDead terminates a claimed job without further delivery.
	MarkDead(ctx context.Context, jobID, lastError string) error
}

// permanentError wraps an error that must not be retried.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks an error as non-retryable: the job is terminated on the
// first occurrence instead of exhausting the backoff schedule.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err carries the Permanent marker.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
