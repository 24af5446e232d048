package normalizer

import (
	"errors"

	"github.com/omnirelay/omnirelay/internal/parser"
	"github.com/omnirelay/omnirelay/internal/protocol"
)

// ErrNoMessageParser is returned when no registered message parser can
// handle a provider combination.
var ErrNoMessageParser = errors.New("no message parser registered")

// EventContext carries the webhook event identity into normalization.
type EventContext struct {
	WebhookEventID string
	TenantID       string
	ProjectID      string
	Provider       string
	Channel        string
	Implementation string
}

// BatchContext is extracted exactly once per webhook call, not per message:
// a burst delivered in one HTTP call shares one sender identity and one set
// of thread-identifying keys, and downstream thread lookup must not be
// recomputed per message.
type BatchContext struct {
	Sender           protocol.Participant
	ExternalThreadID string
	Provider         string
	Channel          string
	Implementation   string
}

// ParseResult is the output of one normalization pass.
type ParseResult struct {
	Messages []protocol.TypedMessage
	Batch    BatchContext
}

// MessageParser turns provider-level parsed data into typed messages plus
// shared batch context.
type MessageParser interface {
	CanHandle(provider, channel, implementation string) bool
	Parse(data parser.ParsedWebhookData, eventCtx EventContext) (ParseResult, error)
}
