package vision

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

// MediaRef points at a media payload to transcribe or describe. URL is
// preferred; Data carries inline bytes when no URL exists.
type MediaRef struct {
	URL      string `json:"url,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	Data     []byte `json:"data,omitempty"`
}

// Describer turns media (audio, image, video, document) into text. Audio is
// transcribed, visual media described; the distinction is the service's
// concern, not the pipeline's.
type Describer interface {
	Describe(ctx context.Context, ref MediaRef) (string, error)
}

// HTTPDescriber calls a transcription/vision service over JSON HTTP.
type HTTPDescriber struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPDescriber creates a describer against the configured endpoint.
func NewHTTPDescriber(baseURL, apiKey string, timeout time.Duration) *HTTPDescriber {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &HTTPDescriber{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type describeResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

func (d *HTTPDescriber) Describe(ctx context.Context, ref MediaRef) (string, error) {
	if d.baseURL == "" {
		return "", fmt.Errorf("vision endpoint not configured")
	}
	body, err := json.Marshal(ref)
	if err != nil {
		return "", fmt.Errorf("encode media ref: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+"/v1/describe", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if d.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+d.apiKey)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call vision service: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("vision service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded describeResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode describe response: %w", err)
	}
	if decoded.Error != "" {
		return "", fmt.Errorf("vision service error: %s", decoded.Error)
	}
	return decoded.Text, nil
}
