package protocol

import (
	"time"
)

// StepOutcome records how a pipeline step finished.
type StepOutcome string

const (
	OutcomeContinued StepOutcome = "continued"
	OutcomeStopped   StepOutcome = "stopped"
	OutcomeFailed    StepOutcome = "failed"
)

// StepExecution is one entry in a MessageContext's execution history.
type StepExecution struct {
	Step       string      `json:"step"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Outcome    StepOutcome `json:"outcome"`
	Detail     string      `json:"detail,omitempty"`
}

// MessageContext is the mutable carrier that flows through one pipeline run.
// It is owned exclusively by the executing worker for the duration of the
// run and discarded afterward; the history survives only through logs.
type MessageContext struct {
	Message        TypedMessage   `json:"message"`
	TenantID       string         `json:"tenant_id"`
	ProjectID      string         `json:"project_id"`
	ThreadID       string         `json:"thread_id"`
	WebhookEventID string         `json:"webhook_event_id,omitempty"`
	StartedAt      time.Time      `json:"started_at"`
	Metadata       map[string]any `json:"metadata"`
	History        []StepExecution
}

// NewMessageContext creates a context for one pipeline run.
func NewMessageContext(msg TypedMessage, tenantID, projectID, threadID, webhookEventID string) *MessageContext {
	return &MessageContext{
		Message:        msg,
		TenantID:       tenantID,
		ProjectID:      projectID,
		ThreadID:       threadID,
		WebhookEventID: webhookEventID,
		StartedAt:      time.Now(),
		Metadata:       map[string]any{},
	}
}

// RecordStep appends one execution record. History is append-only.
func (c *MessageContext) RecordStep(exec StepExecution) {
	c.History = append(c.History, exec)
}

// Set writes a metadata value. Per-key ownership is part of each step's
// contract; steps must only write keys they own.
func (c *MessageContext) Set(key string, value any) {
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	c.Metadata[key] = value
}

// Get reads a metadata value.
func (c *MessageContext) Get(key string) (any, bool) {
	v, ok := c.Metadata[key]
	return v, ok
}

// GetString reads a metadata value as a string, empty if absent or not a
// string.
func (c *MessageContext) GetString(key string) string {
	if v, ok := c.Metadata[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// GetMessages reads a metadata value as a message slice.
func (c *MessageContext) GetMessages(key string) []TypedMessage {
	if v, ok := c.Metadata[key]; ok {
		if msgs, ok := v.([]TypedMessage); ok {
			return msgs
		}
	}
	return nil
}

// PipelineResult is returned by each step and by the pipeline as a whole.
type PipelineResult struct {
	ShouldContinue bool
	Context        *MessageContext
	StopReason     string
	Metadata       map[string]any
}

// Continue builds a result that lets the pipeline proceed.
func Continue(ctx *MessageContext) PipelineResult {
	return PipelineResult{ShouldContinue: true, Context: ctx}
}

// Stop builds a terminal result with a human-readable reason. A stop is a
// normal outcome, not an error.
func Stop(ctx *MessageContext, reason string) PipelineResult {
	return PipelineResult{ShouldContinue: false, Context: ctx, StopReason: reason}
}
