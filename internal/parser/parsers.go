package parser

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Provider identifiers known at build time. New combinations are onboarded
// by adding a parser and a registry entry here.
const (
	ProviderWhaticket       = "whaticket"
	ProviderNotificationHub = "notification-hub"
	ProviderPaygate         = "paygate"

	ChannelWhatsApp = "whatsapp"

	ImplementationOfficial = "official"
	ImplementationBaileys  = "baileys"
)

// NewDefaultRegistry builds the process-wide parser table. Registration
// failures indicate duplicate wiring and abort startup.
func NewDefaultRegistry() (*Registry, error) {
	r := NewRegistry()
	entries := []struct {
		provider, channel, implementation string
		parser                            Parser
	}{
		{ProviderWhaticket, "", "", ParserFunc(ParseWhaticket)},
		{ProviderWhaticket, ChannelWhatsApp, ImplementationOfficial, ParserFunc(ParseWhaticketOfficial)},
		{ProviderNotificationHub, ChannelWhatsApp, ImplementationBaileys, ParserFunc(ParseNotificationHubBaileys)},
		{ProviderNotificationHub, ChannelWhatsApp, ImplementationOfficial, ParserFunc(ParseNotificationHubOfficial)},
		{ProviderPaygate, "", "", ParserFunc(ParsePaygate)},
	}
	for _, e := range entries {
		if err := r.Register(e.provider, e.channel, e.implementation, e.parser); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// whaticketEnvelope is the outer shape shared by whaticket webhook actions.
type whaticketEnvelope struct {
	Action string `json:"action"`
	Ticket struct {
		ID json.Number `json:"id"`
	} `json:"ticket"`
	Messages []json.RawMessage `json:"messages"`
}

// ParseWhaticket decodes the generic whaticket webhook envelope.
func ParseWhaticket(payload []byte) (ParsedWebhookData, error) {
	var env whaticketEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return ParsedWebhookData{}, fmt.Errorf("decode whaticket payload: %w", err)
	}
	action := strings.TrimSpace(env.Action)
	if action == "" {
		action = "message.received"
	}
	meta := map[string]any{
		"message_count": len(env.Messages),
	}
	if env.Ticket.ID != "" {
		meta["ticket_id"] = env.Ticket.ID.String()
	}
	return ParsedWebhookData{
		EventName:       "whaticket." + action,
		QueueSuggestion: "webhook-whaticket-default",
		Metadata:        meta,
		Payload:         json.RawMessage(payload),
	}, nil
}

// ParseWhaticketOfficial decodes whaticket payloads carried over the
// official WhatsApp integration. Same envelope, channel-specific queue.
func ParseWhaticketOfficial(payload []byte) (ParsedWebhookData, error) {
	data, err := ParseWhaticket(payload)
	if err != nil {
		return ParsedWebhookData{}, err
	}
	data.QueueSuggestion = "webhook-whaticket-whatsapp-official"
	return data, nil
}

type notificationHubEnvelope struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

// ParseNotificationHubBaileys decodes notification-hub events produced by
// the baileys implementation.
func ParseNotificationHubBaileys(payload []byte) (ParsedWebhookData, error) {
	var env notificationHubEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return ParsedWebhookData{}, fmt.Errorf("decode notification-hub payload: %w", err)
	}
	event := strings.TrimSpace(env.Event)
	if event == "" {
		event = "messages.upsert"
	}
	return ParsedWebhookData{
		EventName:       "notification-hub." + event,
		QueueSuggestion: "webhook-notification-hub-whatsapp-baileys",
		Metadata:        map[string]any{"instance": env.Instance},
		Payload:         json.RawMessage(payload),
	}, nil
}

// officialEnvelope is the WhatsApp cloud-API change-notification shape.
type officialEnvelope struct {
	Entry []struct {
		ID      string `json:"id"`
		Changes []struct {
			Field string          `json:"field"`
			Value json.RawMessage `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseNotificationHubOfficial decodes official cloud-API change
// notifications relayed through notification-hub.
func ParseNotificationHubOfficial(payload []byte) (ParsedWebhookData, error) {
	var env officialEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return ParsedWebhookData{}, fmt.Errorf("decode official payload: %w", err)
	}
	field := "messages"
	if len(env.Entry) > 0 && len(env.Entry[0].Changes) > 0 {
		if f := strings.TrimSpace(env.Entry[0].Changes[0].Field); f != "" {
			field = f
		}
	}
	return ParsedWebhookData{
		EventName:       "notification-hub.official." + field,
		QueueSuggestion: "webhook-notification-hub-whatsapp-official",
		Metadata:        map[string]any{"entries": len(env.Entry)},
		Payload:         json.RawMessage(payload),
	}, nil
}

type paygateEnvelope struct {
	Type      string          `json:"type"`
	Reference string          `json:"reference"`
	Data      json.RawMessage `json:"data"`
}

// ParsePaygate decodes payment provider callbacks (PAYMENT webhook kind).
func ParsePaygate(payload []byte) (ParsedWebhookData, error) {
	var env paygateEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return ParsedWebhookData{}, fmt.Errorf("decode paygate payload: %w", err)
	}
	typ := strings.TrimSpace(env.Type)
	if typ == "" {
		typ = "unknown"
	}
	return ParsedWebhookData{
		EventName:       "paygate." + typ,
		QueueSuggestion: "webhook-paygate-default",
		Metadata:        map[string]any{"reference": env.Reference},
		Payload:         json.RawMessage(payload),
	}, nil
}
