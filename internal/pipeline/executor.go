package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/omnirelay/omnirelay/internal/protocol"
)

// Executor runs pipelines step by step. It never returns an error: step
// failures become stop results carrying the step name and cause, and the
// full outcome is always readable from the context's execution history.
type Executor struct {
	logger *slog.Logger
}

// NewExecutor creates a pipeline executor.
func NewExecutor(log *slog.Logger) *Executor {
	if log == nil {
		log = slog.Default()
	}
	return &Executor{logger: log.With(slog.String("service", "pipeline"))}
}

// Execute runs the steps strictly in order against the context. A step
// returning ShouldContinue=false stops the run immediately and its result
// is returned; a step error (or panic) stops the run with a failure reason.
// If every step continues, the final step's result is returned.
func (e *Executor) Execute(ctx context.Context, p Pipeline, mc *protocol.MessageContext) protocol.PipelineResult {
	result := protocol.Continue(mc)

	for _, step := range p.Steps {
		started := time.Now()
		stepResult, err := e.runStep(ctx, step, mc)
		finished := time.Now()

		if err != nil {
			mc.RecordStep(protocol.StepExecution{
				Step:       step.Name(),
				StartedAt:  started,
				FinishedAt: finished,
				Outcome:    protocol.OutcomeFailed,
				Detail:     err.Error(),
			})
			e.logger.Error("pipeline step failed",
				slog.String("step", step.Name()),
				slog.String("project_type", p.ProjectType),
				slog.String("mode", string(p.Mode)),
				slog.String("thread_id", mc.ThreadID),
				slog.Any("error", err))
			return protocol.PipelineResult{
				ShouldContinue: false,
				Context:        mc,
				StopReason:     fmt.Sprintf("step %s failed: %s", step.Name(), err.Error()),
			}
		}

		if !stepResult.ShouldContinue {
			mc.RecordStep(protocol.StepExecution{
				Step:       step.Name(),
				StartedAt:  started,
				FinishedAt: finished,
				Outcome:    protocol.OutcomeStopped,
				Detail:     stepResult.StopReason,
			})
			e.logger.Debug("pipeline stopped",
				slog.String("step", step.Name()),
				slog.String("reason", stepResult.StopReason),
				slog.String("thread_id", mc.ThreadID))
			return stepResult
		}

		mc.RecordStep(protocol.StepExecution{
			Step:       step.Name(),
			StartedAt:  started,
			FinishedAt: finished,
			Outcome:    protocol.OutcomeContinued,
		})
		result = stepResult
	}
	return result
}

// runStep isolates panics so a misbehaving step cannot take the worker
// down.
func (e *Executor) runStep(ctx context.Context, step Step, mc *protocol.MessageContext) (result protocol.PipelineResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return step.Execute(ctx, mc)
}
