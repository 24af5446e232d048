package steps

import (
	"context"
	"log/slog"

	"github.com/omnirelay/omnirelay/internal/message"
	"github.com/omnirelay/omnirelay/internal/pipeline"
	"github.com/omnirelay/omnirelay/internal/protocol"
	"github.com/omnirelay/omnirelay/internal/vision"
)

// PersistMessage stores the normalized inbound message. A persistence
// failure aborts the run so the webhook event retries rather than losing
// the message.
func PersistMessage(store message.Store) pipeline.Step {
	return pipeline.StepFunc{
		StepName: "persist-message",
		Fn: func(ctx context.Context, mc *protocol.MessageContext) (protocol.PipelineResult, error) {
			if _, err := store.Persist(ctx, mc.TenantID, mc.ProjectID, mc.ThreadID, mc.Message); err != nil {
				return protocol.PipelineResult{}, err
			}
			return protocol.Continue(mc), nil
		},
	}
}

// MediaDescribe turns media payloads into text for downstream steps. It is
// best-effort: a describer failure is logged and the run continues without
// a description.
func MediaDescribe(log *slog.Logger, describer vision.Describer) pipeline.Step {
	if log == nil {
		log = slog.Default()
	}
	stepLog := log.With(slog.String("service", "media-describe"))
	return pipeline.StepFunc{
		StepName: "media-describe",
		Fn: func(ctx context.Context, mc *protocol.MessageContext) (protocol.PipelineResult, error) {
			media := mc.Message.Content.Media
			if !mc.Message.Type.IsMedia() || media == nil {
				return protocol.Continue(mc), nil
			}
			text, err := describer.Describe(ctx, vision.MediaRef{
				URL:      media.URL,
				MimeType: media.MimeType,
				Data:     media.Data,
			})
			if err != nil {
				stepLog.Warn("media description failed",
					slog.String("thread_id", mc.ThreadID),
					slog.String("type", mc.Message.Type.String()),
					slog.Any("error", err))
				return protocol.Continue(mc), nil
			}
			mc.Set(KeyMediaDescription, text)
			return protocol.Continue(mc), nil
		},
	}
}
