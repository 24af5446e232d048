package audit

import (
	"context"
	"log/slog"
	"time"
)

// Event is one domain event delivered to audit subscribers.
type Event struct {
	EventName  string         `json:"event_name"`
	TenantID   string         `json:"tenant_id"`
	Payload    map[string]any `json:"payload,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Subscriber receives published events. Subscriber failures must never
// reach the pipeline, so implementations handle their own errors.
type Subscriber interface {
	Notify(ctx context.Context, event Event)
}

// SubscriberFunc adapts a function to the Subscriber interface.
type SubscriberFunc func(ctx context.Context, event Event)

func (f SubscriberFunc) Notify(ctx context.Context, event Event) { f(ctx, event) }

// Hub fans published events out to subscribers from a background drain
// goroutine. Publish is fire-and-forget: it never blocks the caller, and a
// full queue drops the event with a log line instead of stalling message
// processing.
type Hub struct {
	ch          chan Event
	subscribers []Subscriber
	logger      *slog.Logger
}

// NewHub creates an audit hub with a bounded publish queue.
func NewHub(log *slog.Logger, subscribers ...Subscriber) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{
		ch:          make(chan Event, 256),
		subscribers: subscribers,
		logger:      log.With(slog.String("service", "audit")),
	}
}

// Publish queues an event for delivery. Missing timestamps are filled in.
func (h *Hub) Publish(event Event) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}
	select {
	case h.ch <- event:
	default:
		h.logger.Warn("audit queue full, dropping event",
			slog.String("event_name", event.EventName),
			slog.String("tenant_id", event.TenantID))
	}
}

// Run drains the queue until ctx is canceled. A panicking subscriber is
// logged and skipped.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-h.ch:
			for _, sub := range h.subscribers {
				h.notify(ctx, sub, event)
			}
		}
	}
}

func (h *Hub) notify(ctx context.Context, sub Subscriber, event Event) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("audit subscriber panic",
				slog.String("event_name", event.EventName),
				slog.Any("panic", r))
		}
	}()
	sub.Notify(ctx, event)
}

// LogSubscriber writes every event to the structured log, the minimal
// audit sink.
func LogSubscriber(log *slog.Logger) Subscriber {
	if log == nil {
		log = slog.Default()
	}
	audit := log.With(slog.String("component", "audit-log"))
	return SubscriberFunc(func(_ context.Context, event Event) {
		audit.Info("domain event",
			slog.String("event_name", event.EventName),
			slog.String("tenant_id", event.TenantID),
			slog.Time("occurred_at", event.OccurredAt))
	})
}
