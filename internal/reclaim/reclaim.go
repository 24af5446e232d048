// Package reclaim recovers webhook events whose job was lost: events stuck
// in PROCESSING by a crashed worker, and PENDING events whose
// ingestion-time enqueue failed. The sweep is optional and off by default;
// deployments that prefer manual reprocessing leave it disabled.
package reclaim

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/omnirelay/omnirelay/internal/queue"
	"github.com/omnirelay/omnirelay/internal/webhook"
)

// Sweeper periodically resets stale PROCESSING events and re-enqueues them.
type Sweeper struct {
	events *webhook.Service
	queue  queue.Queue
	lease  time.Duration
	cron   *cron.Cron
	logger *slog.Logger
}

// NewSweeper creates a sweeper with the given processing lease.
func NewSweeper(log *slog.Logger, events *webhook.Service, q queue.Queue, lease time.Duration) *Sweeper {
	if log == nil {
		log = slog.Default()
	}
	if lease <= 0 {
		lease = 10 * time.Minute
	}
	return &Sweeper{
		events: events,
		queue:  q,
		lease:  lease,
		logger: log.With(slog.String("service", "reclaim")),
	}
}

// Start schedules the sweep on the cron expression and begins running.
func (s *Sweeper) Start(schedule string) error {
	c := cron.New()
	if _, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		s.Sweep(ctx)
	}); err != nil {
		return err
	}
	s.cron = c
	c.Start()
	s.logger.Info("reclaim sweep scheduled",
		slog.String("schedule", schedule),
		slog.Duration("lease", s.lease))
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron != nil {
		<-s.cron.Stop().Done()
	}
}

// Sweep runs one pass. Per-event failures are logged and skipped so one
// bad row cannot block recovery of the rest.
func (s *Sweeper) Sweep(ctx context.Context) {
	stale, err := s.events.StaleProcessing(ctx, s.lease)
	if err != nil {
		s.logger.Error("list stale events", slog.Any("error", err))
		return
	}
	for _, event := range stale {
		if err := s.events.ReclaimStale(ctx, event.ID); err != nil {
			s.logger.Error("reclaim event",
				slog.String("event_id", event.ID),
				slog.Any("error", err))
			continue
		}
		if s.enqueue(ctx, event) {
			s.logger.Warn("stale event reclaimed",
				slog.String("event_id", event.ID),
				slog.String("queue", event.QueueName))
		}
	}

	// PENDING events past the lease lost their job at enqueue time. They
	// need no status change, only a new job; the webhook handler tolerates
	// the duplicate if the original job turns out to still exist.
	stranded, err := s.events.StalePending(ctx, s.lease)
	if err != nil {
		s.logger.Error("list stranded events", slog.Any("error", err))
		return
	}
	for _, event := range stranded {
		if s.enqueue(ctx, event) {
			s.logger.Warn("stranded event re-enqueued",
				slog.String("event_id", event.ID),
				slog.String("queue", event.QueueName))
		}
	}
}

func (s *Sweeper) enqueue(ctx context.Context, event webhook.Event) bool {
	payload, err := json.Marshal(webhook.JobPayload{EventID: event.ID})
	if err != nil {
		return false
	}
	if _, err := s.queue.Enqueue(ctx, event.QueueName, payload, queue.Options{}); err != nil {
		s.logger.Error("re-enqueue event",
			slog.String("event_id", event.ID),
			slog.Any("error", err))
		return false
	}
	return true
}
