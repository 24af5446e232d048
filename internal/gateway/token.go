// Package gateway exposes the public webhook ingestion surface: the
// routing-token codec and the HTTP handlers providers call.
package gateway

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/omnirelay/omnirelay/internal/webhook"
)

var validate = validator.New()

// RoutingToken is the self-describing ingestion address. Providers are
// given an opaque URL segment; decoding it yields everything needed to
// route the payload without a registration lookup.
type RoutingToken struct {
	TenantID       string       `json:"tenantId" validate:"required"`
	ProjectID      string       `json:"projectId,omitempty"`
	Kind           webhook.Kind `json:"webhookKind" validate:"required,oneof=CHAT PAYMENT"`
	Provider       string       `json:"provider" validate:"required"`
	Channel        string       `json:"channel,omitempty"`
	Implementation string       `json:"implementation,omitempty"`
}

// Encode serializes the token to its URL-safe form.
func Encode(token RoutingToken) (string, error) {
	if err := validate.Struct(token); err != nil {
		return "", fmt.Errorf("invalid routing token: %w", err)
	}
	raw, err := json.Marshal(token)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

// Decode parses a URL segment back into a routing token. Any defect, from
// bad encoding to missing fields, is one error class: the caller rejects
// the request before anything is persisted. Both padded and unpadded
// URL-safe base64 are accepted; Encode emits unpadded.
func Decode(segment string) (RoutingToken, error) {
	segment = strings.TrimRight(strings.TrimSpace(segment), "=")
	raw, err := base64.RawURLEncoding.DecodeString(segment)
	if err != nil {
		return RoutingToken{}, fmt.Errorf("decode routing token: %w", err)
	}
	var token RoutingToken
	if err := json.Unmarshal(raw, &token); err != nil {
		return RoutingToken{}, fmt.Errorf("decode routing token: %w", err)
	}
	if err := validate.Struct(token); err != nil {
		return RoutingToken{}, fmt.Errorf("invalid routing token: %w", err)
	}
	return token, nil
}

// QueueName derives the processing queue from the token's routing fields,
// most specific combination first. Workers dispatch on the longest
// matching queue prefix, so specificity here is what lets a dedicated
// handler own one provider/channel/implementation combination.
func (t RoutingToken) QueueName() string {
	parts := []string{"webhook", normalize(t.Provider)}
	if c := normalize(t.Channel); c != "" {
		parts = append(parts, c)
		if i := normalize(t.Implementation); i != "" {
			parts = append(parts, i)
		}
	} else {
		parts = append(parts, "default")
	}
	return strings.Join(parts, "-")
}

func normalize(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "-")
	return strings.ReplaceAll(s, " ", "-")
}
