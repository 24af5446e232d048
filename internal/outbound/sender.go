package outbound

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Sender delivers a reply through the provider's channel adapter. Delivery
// is at-least-once; the returned delivery id is for tracing only.
type Sender interface {
	Send(ctx context.Context, channel, provider, implementation, recipient, text string) (string, error)
}

// HTTPSender calls the channel delivery service over JSON HTTP.
type HTTPSender struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPSender creates a sender against the configured endpoint.
func NewHTTPSender(baseURL, apiKey string, timeout time.Duration) *HTTPSender {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPSender{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type sendRequest struct {
	Channel        string `json:"channel"`
	Provider       string `json:"provider"`
	Implementation string `json:"implementation,omitempty"`
	Recipient      string `json:"recipient"`
	Text           string `json:"text"`
}

type sendResponse struct {
	DeliveryID string `json:"delivery_id"`
	Error      string `json:"error,omitempty"`
}

func (s *HTTPSender) Send(ctx context.Context, channel, provider, implementation, recipient, text string) (string, error) {
	if s.baseURL == "" {
		return "", fmt.Errorf("outbound endpoint not configured")
	}
	body, err := json.Marshal(sendRequest{
		Channel:        channel,
		Provider:       provider,
		Implementation: implementation,
		Recipient:      recipient,
		Text:           text,
	})
	if err != nil {
		return "", fmt.Errorf("encode send request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/send", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call outbound service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("outbound service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode send response: %w", err)
	}
	if decoded.Error != "" {
		return "", fmt.Errorf("outbound service error: %s", decoded.Error)
	}
	return decoded.DeliveryID, nil
}
