package ai

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

// ModelConfig selects and tunes the response model per project.
type ModelConfig struct {
	Model        string  `json:"model,omitempty"`
	SystemPrompt string  `json:"system_prompt,omitempty"`
	Temperature  float64 `json:"temperature,omitempty"`
	MaxTokens    int     `json:"max_tokens,omitempty"`
}

// Generator produces a reply text for a prompt. The implementation is an
// external service; only this interface is part of the core contract.
type Generator interface {
	Generate(ctx context.Context, prompt string, cfg ModelConfig) (string, error)
}

// HTTPGenerator calls a response-generation service over JSON HTTP.
type HTTPGenerator struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPGenerator creates a generator against the configured endpoint.
func NewHTTPGenerator(baseURL, apiKey string, timeout time.Duration) *HTTPGenerator {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPGenerator{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

type generateRequest struct {
	Prompt string      `json:"prompt"`
	Config ModelConfig `json:"config"`
}

type generateResponse struct {
	Text  string `json:"text"`
	Error string `json:"error,omitempty"`
}

func (g *HTTPGenerator) Generate(ctx context.Context, prompt string, cfg ModelConfig) (string, error) {
	if g.baseURL == "" {
		return "", fmt.Errorf("ai generator endpoint not configured")
	}
	body, err := json.Marshal(generateRequest{Prompt: prompt, Config: cfg})
	if err != nil {
		return "", fmt.Errorf("encode generate request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/v1/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	if g.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+g.apiKey)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("call ai generator: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("ai generator returned %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var decoded generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if decoded.Error != "" {
		return "", fmt.Errorf("ai generator error: %s", decoded.Error)
	}
	return decoded.Text, nil
}
