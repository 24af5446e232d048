package normalizer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/omnirelay/omnirelay/internal/parser"
	"github.com/omnirelay/omnirelay/internal/protocol"
)

// WhaticketParser normalizes whaticket webhook payloads. One webhook call
// may carry a burst of messages sharing a single ticket and contact.
type WhaticketParser struct{}

// NewWhaticketParser creates the whaticket message parser.
func NewWhaticketParser() *WhaticketParser { return &WhaticketParser{} }

// CanHandle accepts any whaticket combination regardless of channel or
// implementation; the payload envelope is the same across them.
func (p *WhaticketParser) CanHandle(provider, channel, implementation string) bool {
	return strings.EqualFold(strings.TrimSpace(provider), parser.ProviderWhaticket)
}

type whaticketPayload struct {
	Action string `json:"action"`
	Ticket struct {
		ID      json.Number `json:"id"`
		Contact struct {
			Number string `json:"number"`
			Name   string `json:"name"`
		} `json:"contact"`
	} `json:"ticket"`
	Messages []whaticketMessage `json:"messages"`
}

type whaticketMessage struct {
	ID        string      `json:"id"`
	FromMe    bool        `json:"fromMe"`
	Body      string      `json:"body"`
	Type      string      `json:"type"`
	MediaType string      `json:"mediaType"`
	MediaURL  string      `json:"mediaUrl"`
	Data      string      `json:"data"`
	MimeType  string      `json:"mimetype"`
	Filename  string      `json:"filename"`
	VCard     string      `json:"vcard"`
	Latitude  float64     `json:"latitude"`
	Longitude float64     `json:"longitude"`
	Timestamp json.Number `json:"timestamp"`
}

// Parse extracts the shared batch context once, then maps each message of
// the burst onto the internal protocol.
func (p *WhaticketParser) Parse(data parser.ParsedWebhookData, eventCtx EventContext) (ParseResult, error) {
	var payload whaticketPayload
	if err := json.Unmarshal(data.Payload, &payload); err != nil {
		return ParseResult{}, fmt.Errorf("decode whaticket messages: %w", err)
	}

	batch := BatchContext{
		Sender: protocol.Participant{
			ID:    strings.TrimSpace(payload.Ticket.Contact.Number),
			Name:  strings.TrimSpace(payload.Ticket.Contact.Name),
			Phone: strings.TrimSpace(payload.Ticket.Contact.Number),
		},
		ExternalThreadID: payload.Ticket.ID.String(),
		Provider:         eventCtx.Provider,
		Channel:          eventCtx.Channel,
		Implementation:   eventCtx.Implementation,
	}

	messages := make([]protocol.TypedMessage, 0, len(payload.Messages))
	for _, raw := range payload.Messages {
		messages = append(messages, p.toTypedMessage(raw, batch, eventCtx))
	}
	return ParseResult{Messages: messages, Batch: batch}, nil
}

func (p *WhaticketParser) toTypedMessage(raw whaticketMessage, batch BatchContext, eventCtx EventContext) protocol.TypedMessage {
	msgType := detectType(raw.Type, raw.MediaType)
	direction := protocol.DirectionIncoming
	if raw.FromMe {
		direction = protocol.DirectionOutgoing
	}

	var content protocol.Content
	switch {
	case msgType.IsMedia():
		content.Media = mediaContent(raw.MediaURL, raw.Data, raw.MimeType, raw.Filename, raw.Body)
	case msgType == protocol.TypeContact:
		content.Contact = &protocol.ContactContent{Name: raw.Body, VCard: raw.VCard}
	case msgType == protocol.TypeLocation:
		content.Location = &protocol.LocationContent{
			Latitude:  raw.Latitude,
			Longitude: raw.Longitude,
			Label:     raw.Body,
		}
	default:
		content.Text = &protocol.TextContent{Body: raw.Body}
	}

	id := strings.TrimSpace(raw.ID)
	if id == "" {
		id = uuid.NewString()
	}
	ts := time.Now()
	if secs, err := raw.Timestamp.Int64(); err == nil && secs > 0 {
		ts = time.Unix(secs, 0)
	}

	return protocol.TypedMessage{
		ID:        id,
		Type:      msgType,
		Direction: direction,
		Timestamp: ts,
		Content:   content,
		Metadata: protocol.MessageMetadata{
			TenantID:          eventCtx.TenantID,
			ProjectID:         eventCtx.ProjectID,
			Provider:          eventCtx.Provider,
			Channel:           eventCtx.Channel,
			Implementation:    eventCtx.Implementation,
			Sender:            batch.Sender,
			ExternalMessageID: strings.TrimSpace(raw.ID),
			ExternalThreadID:  batch.ExternalThreadID,
		},
	}
}
