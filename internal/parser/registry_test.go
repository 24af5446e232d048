package parser_test

import (
	"errors"
	"testing"

	"github.com/omnirelay/omnirelay/internal/parser"
)

func stub(event string) parser.Parser {
	return parser.ParserFunc(func(payload []byte) (parser.ParsedWebhookData, error) {
		return parser.ParsedWebhookData{EventName: event, Payload: payload}, nil
	})
}

func TestRegistryResolve_ExactBeforeFallback(t *testing.T) {
	t.Parallel()

	r := parser.NewRegistry()
	r.MustRegister("whaticket", "", "", stub("fallback"))
	r.MustRegister("whaticket", "whatsapp", "official", stub("exact"))

	p, err := r.Resolve("whaticket", "whatsapp", "official")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	data, _ := p.Parse(nil)
	if data.EventName != "exact" {
		t.Fatalf("want exact parser, got %q", data.EventName)
	}
}

func TestRegistryResolve_ProviderFallback(t *testing.T) {
	t.Parallel()

	r := parser.NewRegistry()
	r.MustRegister("whaticket", "", "", stub("fallback"))

	p, err := r.Resolve("whaticket", "whatsapp", "baileys")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	data, _ := p.Parse(nil)
	if data.EventName != "fallback" {
		t.Fatalf("want provider fallback, got %q", data.EventName)
	}
}

func TestRegistryResolve_Unknown(t *testing.T) {
	t.Parallel()

	r := parser.NewRegistry()
	_, err := r.Resolve("mystery", "whatsapp", "")
	if !errors.Is(err, parser.ErrNoParser) {
		t.Fatalf("want ErrNoParser, got %v", err)
	}
}

func TestRegistryResolve_NormalizesTokens(t *testing.T) {
	t.Parallel()

	r := parser.NewRegistry()
	r.MustRegister("Notification_Hub", "WhatsApp", "Baileys", stub("normalized"))

	p, err := r.Resolve("notification-hub", "whatsapp", "baileys")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	data, _ := p.Parse(nil)
	if data.EventName != "normalized" {
		t.Fatalf("want normalized match, got %q", data.EventName)
	}
}

func TestRegistryRegister_Duplicate(t *testing.T) {
	t.Parallel()

	r := parser.NewRegistry()
	if err := r.Register("paygate", "", "", stub("a")); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register("paygate", "", "", stub("b")); err == nil {
		t.Fatal("want duplicate registration error")
	}
}

func TestDefaultRegistry(t *testing.T) {
	t.Parallel()

	r, err := parser.NewDefaultRegistry()
	if err != nil {
		t.Fatalf("default registry: %v", err)
	}
	for _, combo := range [][3]string{
		{"whaticket", "", ""},
		{"whaticket", "whatsapp", "official"},
		{"notification-hub", "whatsapp", "baileys"},
		{"notification-hub", "whatsapp", "official"},
		{"paygate", "", ""},
	} {
		if _, err := r.Resolve(combo[0], combo[1], combo[2]); err != nil {
			t.Fatalf("resolve %v: %v", combo, err)
		}
	}
}

func TestParseWhaticket(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"action":"create","ticket":{"id":42},"messages":[{},{}]}`)
	data, err := parser.ParseWhaticket(payload)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if data.EventName != "whaticket.create" {
		t.Fatalf("event name = %q", data.EventName)
	}
	if data.Metadata["ticket_id"] != "42" {
		t.Fatalf("ticket_id = %v", data.Metadata["ticket_id"])
	}
	if data.Metadata["message_count"] != 2 {
		t.Fatalf("message_count = %v", data.Metadata["message_count"])
	}
}

func TestParsePaygate(t *testing.T) {
	t.Parallel()

	data, err := parser.ParsePaygate([]byte(`{"type":"payment.approved","reference":"ref-1"}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if data.EventName != "paygate.payment.approved" {
		t.Fatalf("event name = %q", data.EventName)
	}
	if data.QueueSuggestion != "webhook-paygate-default" {
		t.Fatalf("queue = %q", data.QueueSuggestion)
	}
}
