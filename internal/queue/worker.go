package queue

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"strings"
	"time"
)

// Handler processes one claimed job. Returning nil finishes the job; a
// Permanent error terminates it; any other error schedules a retry until
// the attempt limit is reached.
type Handler func(ctx context.Context, job Job) error

// WorkerConfig tunes the polling loop.
type WorkerConfig struct {
	Interval  time.Duration
	Burst     int
	IdleDelay time.Duration
	Backoff   BackoffConfig
}

// DefaultWorkerConfig returns the polling defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		Interval:  500 * time.Millisecond,
		Burst:     5,
		IdleDelay: 800 * time.Millisecond,
		Backoff:   DefaultBackoff(),
	}
}

// Worker claims due jobs and dispatches them to handlers by queue-name
// prefix. Queue names are dynamic (webhook-{provider}-...), so handlers
// register a prefix rather than an exact name; the longest matching prefix
// wins.
type Worker struct {
	queue    Queue
	cfg      WorkerConfig
	logger   *slog.Logger
	handlers map[string]Handler
	prefixes []string
	rng      *rand.Rand
}

// NewWorker creates a worker over the queue.
func NewWorker(log *slog.Logger, q Queue, cfg WorkerConfig) *Worker {
	if log == nil {
		log = slog.Default()
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 500 * time.Millisecond
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.IdleDelay <= 0 {
		cfg.IdleDelay = 800 * time.Millisecond
	}
	return &Worker{
		queue:    q,
		cfg:      cfg,
		logger:   log.With(slog.String("service", "queue-worker")),
		handlers: map[string]Handler{},
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// HandlePrefix registers a handler for all queues whose name starts with
// prefix. Duplicate prefixes are a wiring bug.
func (w *Worker) HandlePrefix(prefix string, handler Handler) error {
	if prefix == "" || handler == nil {
		return fmt.Errorf("prefix and handler are required")
	}
	if _, exists := w.handlers[prefix]; exists {
		return fmt.Errorf("handler already registered for prefix: %s", prefix)
	}
	w.handlers[prefix] = handler
	w.prefixes = append(w.prefixes, prefix)
	sort.Slice(w.prefixes, func(i, j int) bool { return len(w.prefixes[i]) > len(w.prefixes[j]) })
	return nil
}

// Run polls until ctx is canceled. Handler panics and errors never crash
// the worker; they drive the job's retry schedule.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	w.logger.Info("worker started",
		slog.Duration("interval", w.cfg.Interval),
		slog.Int("burst", w.cfg.Burst))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("worker stopping")
			return
		case <-ticker.C:
			processedAny := false
			for i := 0; i < w.cfg.Burst; i++ {
				processed, err := w.ProcessOnce(ctx)
				if err != nil {
					w.logger.Error("process job", slog.Any("error", err))
				}
				if !processed {
					break
				}
				processedAny = true
			}
			if !processedAny {
				select {
				case <-ctx.Done():
					return
				case <-time.After(w.cfg.IdleDelay):
				}
			}
		}
	}
}

// ProcessOnce claims and runs at most one job. It reports whether a job was
// claimed; the error covers queue infrastructure only, handler outcomes are
// absorbed into the job's status.
func (w *Worker) ProcessOnce(ctx context.Context) (bool, error) {
	job, err := w.queue.Claim(ctx)
	if err != nil {
		if err == ErrNoWork {
			return false, nil
		}
		return false, fmt.Errorf("claim job: %w", err)
	}

	handler := w.handlerFor(job.Queue)
	if handler == nil {
		// No consumer for this queue is a deployment gap, not a payload
		// problem; park the job as dead so it is visible.
		w.logger.Error("no handler for queue", slog.String("queue", job.Queue), slog.String("job_id", job.ID))
		return true, w.queue.MarkDead(ctx, job.ID, "no handler for queue "+job.Queue)
	}

	handlerErr := w.runHandler(ctx, handler, job)
	if handlerErr == nil {
		return true, w.queue.MarkDone(ctx, job.ID)
	}

	if IsPermanent(handlerErr) {
		w.logger.Warn("job terminated",
			slog.String("job_id", job.ID),
			slog.String("queue", job.Queue),
			slog.Any("error", handlerErr))
		return true, w.queue.MarkDead(ctx, job.ID, handlerErr.Error())
	}

	if job.Attempts >= job.MaxAttempts {
		w.logger.Warn("job attempts exhausted",
			slog.String("job_id", job.ID),
			slog.String("queue", job.Queue),
			slog.Int("attempts", job.Attempts),
			slog.Any("error", handlerErr))
		return true, w.queue.MarkDead(ctx, job.ID, handlerErr.Error())
	}

	retryAt := NextRetryAt(time.Now(), job.Attempts, w.cfg.Backoff, w.rng)
	w.logger.Warn("job retry scheduled",
		slog.String("job_id", job.ID),
		slog.String("queue", job.Queue),
		slog.Int("attempt", job.Attempts),
		slog.Time("retry_at", retryAt),
		slog.Any("error", handlerErr))
	return true, w.queue.MarkRetry(ctx, job.ID, handlerErr.Error(), retryAt)
}

func (w *Worker) runHandler(ctx context.Context, handler Handler, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler(ctx, job)
}

func (w *Worker) handlerFor(queueName string) Handler {
	for _, prefix := range w.prefixes {
		if strings.HasPrefix(queueName, prefix) {
			return w.handlers[prefix]
		}
	}
	return nil
}
