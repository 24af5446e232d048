package steps

import (
	"context"

	"github.com/omnirelay/omnirelay/internal/audit"
	"github.com/omnirelay/omnirelay/internal/pipeline"
	"github.com/omnirelay/omnirelay/internal/protocol"
)

// AuditPublish emits a message-processed event. Publishing is fire-and-
// forget, so this step cannot fail the run.
func AuditPublish(hub *audit.Hub) pipeline.Step {
	return pipeline.StepFunc{
		StepName: "audit-publish",
		Fn: func(_ context.Context, mc *protocol.MessageContext) (protocol.PipelineResult, error) {
			payload := map[string]any{
				"project_id": mc.ProjectID,
				"thread_id":  mc.ThreadID,
				"type":       mc.Message.Type.String(),
				"provider":   mc.Message.Metadata.Provider,
			}
			if id := mc.GetString(KeyDeliveryID); id != "" {
				payload["delivery_id"] = id
			}
			if mc.WebhookEventID != "" {
				payload["webhook_event_id"] = mc.WebhookEventID
			}
			hub.Publish(audit.Event{
				EventName: "message.processed",
				TenantID:  mc.TenantID,
				Payload:   payload,
			})
			return protocol.Continue(mc), nil
		},
	}
}
