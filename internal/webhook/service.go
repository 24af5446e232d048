package webhook

import (
	"context"
	"log/slog"
	"time"
)

// Service wraps the event store with lifecycle logging. All status
// mutations flow through here so operational logs tell the full story of
// every event.
type Service struct {
	store  Store
	logger *slog.Logger
}

// NewService creates a webhook event lifecycle service.
func NewService(log *slog.Logger, store Store) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		store:  store,
		logger: log.With(slog.String("service", "webhook")),
	}
}

// Record persists a new PENDING event.
func (s *Service) Record(ctx context.Context, input CreateInput) (Event, error) {
	event, err := s.store.Create(ctx, input)
	if err != nil {
		return Event{}, err
	}
	s.logger.Info("webhook event recorded",
		slog.String("event_id", event.ID),
		slog.String("tenant_id", event.TenantID),
		slog.String("provider", event.Provider),
		slog.String("queue", event.QueueName))
	return event, nil
}

// Get returns one event by id.
func (s *Service) Get(ctx context.Context, id string) (Event, error) {
	return s.store.Get(ctx, id)
}

// ListByTenant returns recent events for a tenant.
func (s *Service) ListByTenant(ctx context.Context, tenantID string, limit int32) ([]Event, error) {
	return s.store.ListByTenant(ctx, tenantID, limit)
}

// BeginProcessing transitions PENDING to PROCESSING before any parsing
// starts.
func (s *Service) BeginProcessing(ctx context.Context, id string) error {
	return s.store.MarkProcessing(ctx, id)
}

// Complete transitions PROCESSING to the PROCESSED terminal state.
func (s *Service) Complete(ctx context.Context, id string) error {
	if err := s.store.MarkProcessed(ctx, id); err != nil {
		return err
	}
	s.logger.Info("webhook event processed", slog.String("event_id", id))
	return nil
}

// Fail transitions PROCESSING to the FAILED terminal state with the
// captured error message.
func (s *Service) Fail(ctx context.Context, id string, cause error) error {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	if err := s.store.MarkFailed(ctx, id, msg); err != nil {
		return err
	}
	s.logger.Warn("webhook event failed",
		slog.String("event_id", id),
		slog.String("error", msg))
	return nil
}

// Reprocess resets a terminal event back to PENDING. This is the
// administrative corrective path; PENDING/PROCESSING events are rejected.
func (s *Service) Reprocess(ctx context.Context, id string) (Event, error) {
	if err := s.store.ResetToPending(ctx, id); err != nil {
		return Event{}, err
	}
	s.logger.Info("webhook event queued for reprocessing", slog.String("event_id", id))
	return s.store.Get(ctx, id)
}

// StaleProcessing lists events stuck in PROCESSING longer than the lease.
func (s *Service) StaleProcessing(ctx context.Context, lease time.Duration) ([]Event, error) {
	return s.store.ListStaleProcessing(ctx, time.Now().Add(-lease))
}

// StalePending lists PENDING events older than the lease. A PENDING event
// that old has lost its processing job, typically to an enqueue failure
// right after ingestion.
func (s *Service) StalePending(ctx context.Context, lease time.Duration) ([]Event, error) {
	return s.store.ListStalePending(ctx, time.Now().Add(-lease))
}

// ReclaimStale forces a stuck PROCESSING event back to PENDING so it can be
// re-enqueued. Used only by the reclaim sweep.
func (s *Service) ReclaimStale(ctx context.Context, id string) error {
	// MarkFailed then ResetToPending keeps the transition table closed: a
	// PROCESSING row never jumps straight back to PENDING.
	if err := s.store.MarkFailed(ctx, id, "processing lease expired"); err != nil {
		return err
	}
	return s.store.ResetToPending(ctx, id)
}
