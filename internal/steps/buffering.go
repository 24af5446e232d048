package steps

import (
	"context"
	"log/slog"
	"time"

	"github.com/omnirelay/omnirelay/internal/buffer"
	"github.com/omnirelay/omnirelay/internal/pipeline"
	"github.com/omnirelay/omnirelay/internal/protocol"
)

// BufferMessages is the tail of every PRE_BUFFER chain: it parks the
// message in the thread buffer, pushes the flush job out by the project's
// debounce window, and halts the run. Buffering fails open: if the buffer
// or queue is unreachable the message continues through the chain alone
// rather than being lost.
func BufferMessages(log *slog.Logger, engine *buffer.Engine) pipeline.Step {
	if log == nil {
		log = slog.Default()
	}
	stepLog := log.With(slog.String("service", "buffer-messages"))
	return pipeline.StepFunc{
		StepName: "buffer-messages",
		Fn: func(ctx context.Context, mc *protocol.MessageContext) (protocol.PipelineResult, error) {
			cfg, _ := projectConfig(mc)
			if !cfg.BufferingEnabled || cfg.BufferTimeoutMs <= 0 {
				return protocol.Continue(mc), nil
			}
			if err := engine.AddMessage(ctx, mc.ThreadID, mc.Message); err != nil {
				stepLog.Warn("buffering unavailable, processing message directly",
					slog.String("thread_id", mc.ThreadID),
					slog.Any("error", err))
				return protocol.Continue(mc), nil
			}
			timeout := time.Duration(cfg.BufferTimeoutMs) * time.Millisecond
			jobID, err := engine.ScheduleProcessing(ctx, mc.ThreadID, timeout, buffer.FlushPayload{
				TenantID:  mc.TenantID,
				ProjectID: mc.ProjectID,
			})
			if err != nil {
				stepLog.Warn("flush scheduling failed, processing message directly",
					slog.String("thread_id", mc.ThreadID),
					slog.Any("error", err))
				return protocol.Continue(mc), nil
			}
			mc.Set(KeyBufferJobID, jobID)
			return protocol.Stop(mc, "buffered"), nil
		},
	}
}

// LoadBuffered is the head of every POST_BUFFER chain: it pulls the
// coalesced burst out of the buffer. An empty buffer means another flush
// already handled the burst, so the run stops as a no-op.
func LoadBuffered(engine *buffer.Engine) pipeline.Step {
	return pipeline.StepFunc{
		StepName: "load-buffered",
		Fn: func(ctx context.Context, mc *protocol.MessageContext) (protocol.PipelineResult, error) {
			messages, err := engine.GetBufferedMessages(ctx, mc.ThreadID)
			if err != nil {
				return protocol.PipelineResult{}, err
			}
			if len(messages) == 0 {
				return protocol.Stop(mc, "buffer empty"), nil
			}
			// The newest message stands in as the context's current
			// message so downstream steps have a concrete sender.
			mc.Message = messages[len(messages)-1]
			mc.Set(KeyBufferedMessages, messages)
			return protocol.Continue(mc), nil
		},
	}
}

// ClearBuffer is the tail of every POST_BUFFER chain: it discards the
// consumed burst. A failed clear is logged, not fatal; the TTL bounds how
// long remnants survive.
func ClearBuffer(log *slog.Logger, engine *buffer.Engine) pipeline.Step {
	if log == nil {
		log = slog.Default()
	}
	stepLog := log.With(slog.String("service", "clear-buffer"))
	return pipeline.StepFunc{
		StepName: "clear-buffer",
		Fn: func(ctx context.Context, mc *protocol.MessageContext) (protocol.PipelineResult, error) {
			if err := engine.ClearBuffer(ctx, mc.ThreadID); err != nil {
				stepLog.Warn("buffer clear failed",
					slog.String("thread_id", mc.ThreadID),
					slog.Any("error", err))
			}
			return protocol.Continue(mc), nil
		},
	}
}
