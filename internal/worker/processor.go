// Package worker consumes queued webhook jobs and drives them through
// parsing, thread resolution, and the project pipeline.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/omnirelay/omnirelay/internal/audit"
	"github.com/omnirelay/omnirelay/internal/buffer"
	"github.com/omnirelay/omnirelay/internal/normalizer"
	"github.com/omnirelay/omnirelay/internal/parser"
	"github.com/omnirelay/omnirelay/internal/pipeline"
	"github.com/omnirelay/omnirelay/internal/project"
	"github.com/omnirelay/omnirelay/internal/protocol"
	"github.com/omnirelay/omnirelay/internal/queue"
	"github.com/omnirelay/omnirelay/internal/steps"
	"github.com/omnirelay/omnirelay/internal/thread"
	"github.com/omnirelay/omnirelay/internal/webhook"
)

// WebhookQueuePrefix matches every provider processing queue.
const WebhookQueuePrefix = "webhook-"

// Processor owns the two job handlers: webhook events and buffer flushes.
type Processor struct {
	events           *webhook.Service
	parsers          *parser.Registry
	normalizers      *normalizer.Registry
	threads          *thread.Resolver
	projects         project.Store
	factory          *pipeline.Factory
	executor         *pipeline.Executor
	audit            *audit.Hub
	defaultTimeoutMs int
	logger           *slog.Logger
}

// Config collects the processor's dependencies.
type Config struct {
	Events           *webhook.Service
	Parsers          *parser.Registry
	Normalizers      *normalizer.Registry
	Threads          *thread.Resolver
	Projects         project.Store
	Factory          *pipeline.Factory
	Executor         *pipeline.Executor
	Audit            *audit.Hub
	DefaultTimeoutMs int
}

// NewProcessor creates the job processor.
func NewProcessor(log *slog.Logger, cfg Config) *Processor {
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		events:           cfg.Events,
		parsers:          cfg.Parsers,
		normalizers:      cfg.Normalizers,
		threads:          cfg.Threads,
		projects:         cfg.Projects,
		factory:          cfg.Factory,
		executor:         cfg.Executor,
		audit:            cfg.Audit,
		defaultTimeoutMs: cfg.DefaultTimeoutMs,
		logger:           log.With(slog.String("service", "worker")),
	}
}

// RegisterHandlers wires the processor into the queue worker.
func (p *Processor) RegisterHandlers(w *queue.Worker) error {
	if err := w.HandlePrefix(WebhookQueuePrefix, p.HandleWebhookJob); err != nil {
		return err
	}
	return w.HandlePrefix(buffer.TimeoutQueue, p.HandleBufferFlush)
}

// HandleWebhookJob processes one recorded webhook event. The handler is
// idempotent under redelivery: already-processed events are acknowledged,
// failed ones are reset and retried.
func (p *Processor) HandleWebhookJob(ctx context.Context, job queue.Job) error {
	var payload webhook.JobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return queue.Permanent(fmt.Errorf("decode job payload: %w", err))
	}

	event, err := p.events.Get(ctx, payload.EventID)
	if errors.Is(err, webhook.ErrNotFound) {
		return queue.Permanent(err)
	}
	if err != nil {
		return err
	}

	switch event.Status {
	case webhook.StatusProcessed:
		return nil
	case webhook.StatusProcessing:
		// Another worker holds it, or a crashed attempt left it stuck; the
		// retry (or the reclaim sweep) sorts it out.
		return fmt.Errorf("event %s is already processing", event.ID)
	case webhook.StatusFailed:
		if event, err = p.events.Reprocess(ctx, event.ID); err != nil {
			return err
		}
	}

	if err := p.events.BeginProcessing(ctx, event.ID); err != nil {
		return err
	}

	if err := p.process(ctx, event); err != nil {
		if failErr := p.events.Fail(ctx, event.ID, err); failErr != nil {
			p.logger.Error("mark event failed",
				slog.String("event_id", event.ID),
				slog.Any("error", failErr))
		}
		return err
	}
	return p.events.Complete(ctx, event.ID)
}

func (p *Processor) process(ctx context.Context, event webhook.Event) error {
	payloadParser, err := p.parsers.Resolve(event.Provider, event.Channel, event.Implementation)
	if err != nil {
		// An unknown combination will not fix itself on retry.
		return queue.Permanent(err)
	}
	parsed, err := payloadParser.Parse(event.Payload)
	if err != nil {
		return queue.Permanent(fmt.Errorf("parse payload: %w", err))
	}

	if event.Kind == webhook.KindPayment {
		return p.processPayment(event, parsed)
	}
	return p.processChat(ctx, event, parsed)
}

// processPayment records the payment event for downstream consumers. No
// thread or pipeline is involved.
func (p *Processor) processPayment(event webhook.Event, parsed parser.ParsedWebhookData) error {
	p.audit.Publish(audit.Event{
		EventName: "payment." + strings.ToLower(parsed.EventName),
		TenantID:  event.TenantID,
		Payload: map[string]any{
			"webhook_event_id": event.ID,
			"provider":         event.Provider,
			"metadata":         parsed.Metadata,
		},
	})
	return nil
}

func (p *Processor) processChat(ctx context.Context, event webhook.Event, parsed parser.ParsedWebhookData) error {
	messageParser, err := p.normalizers.Find(event.Provider, event.Channel, event.Implementation)
	if err != nil {
		return queue.Permanent(err)
	}
	result, err := messageParser.Parse(parsed, normalizer.EventContext{
		WebhookEventID: event.ID,
		TenantID:       event.TenantID,
		ProjectID:      event.ProjectID,
		Provider:       event.Provider,
		Channel:        event.Channel,
		Implementation: event.Implementation,
	})
	if err != nil {
		return queue.Permanent(fmt.Errorf("normalize payload: %w", err))
	}
	if len(result.Messages) == 0 {
		p.logger.Debug("webhook carried no messages",
			slog.String("event_id", event.ID),
			slog.String("event_name", parsed.EventName))
		return nil
	}

	th, err := p.threads.FindOrCreate(ctx, thread.ResolveInput{
		TenantID:       event.TenantID,
		ProjectID:      event.ProjectID,
		Sender:         result.Batch.Sender,
		Channel:        event.Channel,
		Provider:       event.Provider,
		Implementation: event.Implementation,
		ExternalID:     result.Batch.ExternalThreadID,
	})
	if err != nil {
		return fmt.Errorf("resolve thread: %w", err)
	}

	cfg, err := p.projectConfig(ctx, event.TenantID, event.ProjectID)
	if err != nil {
		return err
	}

	mode := pipeline.ModeFull
	if cfg.BufferingEnabled && cfg.BufferTimeoutMs > 0 {
		mode = pipeline.ModePreBuffer
	}
	pl, err := p.factory.CreatePipeline(cfg.Type, mode)
	if err != nil {
		return fmt.Errorf("resolve pipeline: %w", err)
	}

	for _, msg := range result.Messages {
		mc := protocol.NewMessageContext(msg, event.TenantID, event.ProjectID, th.ID, event.ID)
		mc.Set(steps.KeyProjectConfig, cfg)
		run := p.executor.Execute(ctx, pl, mc)
		if err := runError(run); err != nil {
			return err
		}
		if mode == pipeline.ModePreBuffer && run.ShouldContinue {
			// The buffering step let the message through instead of
			// parking it (buffer infrastructure unavailable). Finish it
			// with the rest of the full chain so the reply still goes out.
			resume, err := p.factory.CreatePipeline(cfg.Type, pipeline.ModeResume)
			if err != nil {
				return fmt.Errorf("resolve pipeline: %w", err)
			}
			p.logger.Warn("buffering bypassed, finishing message unbuffered",
				slog.String("event_id", event.ID),
				slog.String("thread_id", th.ID))
			if err := runError(p.executor.Execute(ctx, resume, mc)); err != nil {
				return err
			}
		}
		if err := p.threads.Touch(ctx, th.ID, msg.Timestamp); err != nil {
			p.logger.Warn("touch thread",
				slog.String("thread_id", th.ID),
				slog.Any("error", err))
		}
	}
	return nil
}

// HandleBufferFlush runs the POST_BUFFER chain when a debounce window
// closes. An already-drained buffer is a logged no-op, not an error.
func (p *Processor) HandleBufferFlush(ctx context.Context, job queue.Job) error {
	var payload buffer.FlushPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return queue.Permanent(fmt.Errorf("decode flush payload: %w", err))
	}
	if payload.ThreadID == "" {
		return queue.Permanent(fmt.Errorf("flush payload has no thread id"))
	}

	cfg, err := p.projectConfig(ctx, payload.TenantID, payload.ProjectID)
	if err != nil {
		return err
	}
	pl, err := p.factory.CreatePipeline(cfg.Type, pipeline.ModePostBuffer)
	if err != nil {
		return fmt.Errorf("resolve pipeline: %w", err)
	}

	mc := protocol.NewMessageContext(protocol.TypedMessage{}, payload.TenantID, payload.ProjectID, payload.ThreadID, "")
	mc.Set(steps.KeyProjectConfig, cfg)
	run := p.executor.Execute(ctx, pl, mc)
	if err := runError(run); err != nil {
		return err
	}
	if !run.ShouldContinue {
		p.logger.Debug("flush stopped",
			slog.String("thread_id", payload.ThreadID),
			slog.String("reason", run.StopReason))
	}
	return nil
}

func (p *Processor) projectConfig(ctx context.Context, tenantID, projectID string) (project.Config, error) {
	cfg, err := p.projects.GetConfig(ctx, tenantID, projectID)
	if errors.Is(err, project.ErrNotFound) {
		return project.Defaults(tenantID, projectID, p.defaultTimeoutMs), nil
	}
	if err != nil {
		return project.Config{}, fmt.Errorf("load project config: %w", err)
	}
	return cfg, nil
}

// runError distinguishes a business stop (a normal outcome) from a step
// failure, which must propagate so the job retries.
func runError(run protocol.PipelineResult) error {
	if run.ShouldContinue {
		return nil
	}
	if h := run.Context.History; len(h) > 0 && h[len(h)-1].Outcome == protocol.OutcomeFailed {
		return errors.New(run.StopReason)
	}
	return nil
}
