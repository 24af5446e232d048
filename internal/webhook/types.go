package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Status is the lifecycle state of an inbound webhook event.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusProcessed  Status = "PROCESSED"
	StatusFailed     Status = "FAILED"
)

// Terminal reports whether no further automatic transition may occur.
func (s Status) Terminal() bool {
	return s == StatusProcessed || s == StatusFailed
}

// Kind classifies the webhook's business domain.
type Kind string

const (
	KindChat    Kind = "CHAT"
	KindPayment Kind = "PAYMENT"
)

var (
	ErrNotFound = errors.New("webhook event not found")
	// ErrInvalidTransition is returned when a status mutation does not match
	// the expected current state, e.g. marking a terminal event processed.
	ErrInvalidTransition = errors.New("invalid webhook event status transition")
)

// Event is one durably recorded inbound call.
type Event struct {
	ID             string          `json:"id"`
	TenantID       string          `json:"tenant_id"`
	ProjectID      string          `json:"project_id,omitempty"`
	Kind           Kind            `json:"kind"`
	Provider       string          `json:"provider"`
	Channel        string          `json:"channel,omitempty"`
	Implementation string          `json:"implementation,omitempty"`
	Status         Status          `json:"status"`
	Payload        json.RawMessage `json:"payload"`
	QueueName      string          `json:"queue_name"`
	ErrorMessage   string          `json:"error_message,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	ProcessingAt   *time.Time      `json:"processing_at,omitempty"`
	ProcessedAt    *time.Time      `json:"processed_at,omitempty"`
}

// CreateInput is the input for persisting a new PENDING event.
type CreateInput struct {
	TenantID       string
	ProjectID      string
	Kind           Kind
	Provider       string
	Channel        string
	Implementation string
	Payload        json.RawMessage
	QueueName      string
}

// JobPayload is the queue job body that points a worker at a recorded
// event. The payload itself stays in the store; the queue carries only the
// reference.
type JobPayload struct {
	EventID string `json:"webhook_event_id"`
}

// Store is the persistence boundary for webhook events. Status mutations
// are conditional on the expected current state and report
// ErrInvalidTransition on mismatch.
type Store interface {
	Create(ctx context.Context, input CreateInput) (Event, error)
	Get(ctx context.Context, id string) (Event, error)
	ListByTenant(ctx context.Context, tenantID string, limit int32) ([]Event, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkProcessed(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id, errorMessage string) error
	ResetToPending(ctx context.Context, id string) error
	ListStaleProcessing(ctx context.Context, olderThan time.Time) ([]Event, error)
	ListStalePending(ctx context.Context, olderThan time.Time) ([]Event, error)
}
