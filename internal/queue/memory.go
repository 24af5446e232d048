package queue

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

type memJob struct {
	Job
	status    string
	lastError string
}

// MemQueue is an in-process Queue used by tests. It mirrors the Postgres
// semantics: one pending job per dedupe key, claim takes the earliest due
// pending job.
type MemQueue struct {
	mu              sync.Mutex
	jobs            map[string]*memJob
	defaultAttempts int
	now             func() time.Time
}

// NewMemQueue creates an empty in-memory queue.
func NewMemQueue(defaultAttempts int) *MemQueue {
	if defaultAttempts <= 0 {
		defaultAttempts = 3
	}
	return &MemQueue{
		jobs:            map[string]*memJob{},
		defaultAttempts: defaultAttempts,
		now:             time.Now,
	}
}

// SetClock overrides the queue clock; tests use it to fire delayed jobs
// without sleeping.
func (q *MemQueue) SetClock(now func() time.Time) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.now = now
}

func (q *MemQueue) Enqueue(_ context.Context, queueName string, payload json.RawMessage, opts Options) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.insert(queueName, "", payload, opts), nil
}

func (q *MemQueue) ScheduleOrExtend(_ context.Context, queueName, dedupeKey string, delay time.Duration, payload json.RawMessage, opts Options) (Job, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, j := range q.jobs {
		if j.status == statusPending && j.DedupeKey == dedupeKey && dedupeKey != "" {
			j.RunAt = q.now().Add(delay)
			j.Payload = payload
			return j.Job, true, nil
		}
	}
	opts.Delay = delay
	return q.insert(queueName, dedupeKey, payload, opts), false, nil
}

func (q *MemQueue) ChangeDelay(_ context.Context, jobID string, delay time.Duration) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok || j.status != statusPending {
		return ErrJobNotFound
	}
	j.RunAt = q.now().Add(delay)
	return nil
}

func (q *MemQueue) Remove(_ context.Context, jobID string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok || j.status != statusPending {
		return ErrJobNotFound
	}
	delete(q.jobs, jobID)
	return nil
}

func (q *MemQueue) Claim(_ context.Context) (Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var next *memJob
	now := q.now()
	for _, j := range q.jobs {
		if j.status != statusPending || j.RunAt.After(now) {
			continue
		}
		if next == nil || j.RunAt.Before(next.RunAt) {
			next = j
		}
	}
	if next == nil {
		return Job{}, ErrNoWork
	}
	next.status = statusProcessing
	next.Attempts++
	return next.Job, nil
}

func (q *MemQueue) MarkDone(_ context.Context, jobID string) error {
	return q.setStatus(jobID, statusDone, "")
}

func (q *MemQueue) MarkRetry(_ context.Context, jobID, lastError string, retryAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	if j.DedupeKey != "" {
		for id, other := range q.jobs {
			if id != jobID && other.status == statusPending && other.DedupeKey == j.DedupeKey {
				j.status = statusFailed
				j.lastError = lastError + " (superseded by newer job)"
				return nil
			}
		}
	}
	j.status = statusPending
	j.lastError = lastError
	j.RunAt = retryAt
	return nil
}

func (q *MemQueue) MarkDead(_ context.Context, jobID, lastError string) error {
	return q.setStatus(jobID, statusFailed, lastError)
}

// PendingCount reports pending jobs, optionally filtered by dedupe key.
// Test helper.
func (q *MemQueue) PendingCount(dedupeKey string) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	count := 0
	for _, j := range q.jobs {
		if j.status != statusPending {
			continue
		}
		if dedupeKey == "" || j.DedupeKey == dedupeKey {
			count++
		}
	}
	return count
}

func (q *MemQueue) insert(queueName, dedupeKey string, payload json.RawMessage, opts Options) Job {
	attempts := opts.MaxAttempts
	if attempts <= 0 {
		attempts = q.defaultAttempts
	}
	j := &memJob{
		Job: Job{
			ID:          uuid.NewString(),
			Queue:       queueName,
			Payload:     payload,
			DedupeKey:   dedupeKey,
			MaxAttempts: attempts,
			RunAt:       q.now().Add(opts.Delay),
		},
		status: statusPending,
	}
	q.jobs[j.ID] = j
	return j.Job
}

func (q *MemQueue) setStatus(jobID, status, lastError string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	j, ok := q.jobs[jobID]
	if !ok {
		return ErrJobNotFound
	}
	j.status = status
	j.lastError = lastError
	return nil
}
