package thread

import (
	"context"
	"errors"
	"time"

	"github.com/omnirelay/omnirelay/internal/protocol"
)

// Status tracks whether a conversation thread is open.
type Status string

const (
	StatusOpen   Status = "OPEN"
	StatusClosed Status = "CLOSED"
)

var (
	ErrNotFound = errors.New("thread not found")
	// ErrDuplicate signals a create that lost a race against a concurrent
	// create for the same identity; the caller re-reads instead of failing.
	ErrDuplicate = errors.New("thread already exists")
)

// Thread is one conversation between a sender and a project.
type Thread struct {
	ID             string    `json:"id"`
	TenantID       string    `json:"tenant_id"`
	ProjectID      string    `json:"project_id"`
	SenderID       string    `json:"sender_id"`
	SenderName     string    `json:"sender_name,omitempty"`
	SenderPhone    string    `json:"sender_phone,omitempty"`
	Channel        string    `json:"channel"`
	Provider       string    `json:"provider"`
	Implementation string    `json:"implementation,omitempty"`
	ExternalID     string    `json:"external_id,omitempty"`
	Status         Status    `json:"status"`
	LastMessageAt  time.Time `json:"last_message_at"`
	CreatedAt      time.Time `json:"created_at"`
}

// ResolveInput identifies the thread a message belongs to.
type ResolveInput struct {
	TenantID       string
	ProjectID      string
	Sender         protocol.Participant
	Channel        string
	Provider       string
	Implementation string
	ExternalID     string
}

// NaturalKey is the composite fallback identity used when no external id is
// present.
type NaturalKey struct {
	TenantID  string
	ProjectID string
	SenderID  string
	Channel   string
	Provider  string
}

// Store is the thread persistence boundary.
type Store interface {
	FindByExternalID(ctx context.Context, tenantID, externalID string) (Thread, error)
	FindByNaturalKey(ctx context.Context, key NaturalKey) (Thread, error)
	Create(ctx context.Context, input ResolveInput) (Thread, error)
	TouchLastMessage(ctx context.Context, id string, at time.Time) error
}
