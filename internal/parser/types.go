package parser

import (
	"encoding/json"
	"errors"
)

// ErrNoParser is returned when no parser is registered for a provider
// combination. Unknown combinations are expected while new integrations are
// onboarded, so callers must record this instead of treating it as fatal.
var ErrNoParser = errors.New("no payload parser registered")

// ParsedWebhookData is the provider-level decode of a raw webhook payload.
// It names the provider event and suggests a routing queue; message-level
// normalization happens later.
type ParsedWebhookData struct {
	EventName       string          `json:"event_name"`
	QueueSuggestion string          `json:"queue_suggestion,omitempty"`
	Metadata        map[string]any  `json:"metadata,omitempty"`
	Payload         json.RawMessage `json:"payload"`
}

// Parser decodes one provider's raw payload. Parsers are pure functions:
// no side effects, no shared state.
type Parser interface {
	Parse(payload []byte) (ParsedWebhookData, error)
}

// ParserFunc adapts a function to the Parser interface.
type ParserFunc func(payload []byte) (ParsedWebhookData, error)

func (f ParserFunc) Parse(payload []byte) (ParsedWebhookData, error) { return f(payload) }
