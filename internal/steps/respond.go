package steps

import (
	"context"
	"strings"

	"github.com/omnirelay/omnirelay/internal/ai"
	"github.com/omnirelay/omnirelay/internal/outbound"
	"github.com/omnirelay/omnirelay/internal/pipeline"
	"github.com/omnirelay/omnirelay/internal/protocol"
)

var commandReplies = map[string]string{
	"help":  "You can send text, voice notes, images or documents. Use /human to reach a person or /reset to start over.",
	"reset": "Conversation reset. How can I help?",
	"human": "Got it, a human agent will take over this conversation shortly.",
}

// AIResponse produces the reply text. Recognized commands short-circuit to
// canned replies; everything else goes through the generator with the
// coalesced burst as the prompt. Generator failures abort the run so the
// flush retries.
func AIResponse(generator ai.Generator) pipeline.Step {
	return pipeline.StepFunc{
		StepName: "ai-response",
		Fn: func(ctx context.Context, mc *protocol.MessageContext) (protocol.PipelineResult, error) {
			if cmd := mc.GetString(KeyCommand); cmd != "" {
				mc.Set(KeyAIResponse, commandReplies[cmd])
				return protocol.Continue(mc), nil
			}
			prompt := buildPrompt(mc)
			if prompt == "" {
				return protocol.Stop(mc, "nothing to respond to"), nil
			}
			cfg, _ := projectConfig(mc)
			text, err := generator.Generate(ctx, prompt, cfg.Model)
			if err != nil {
				return protocol.PipelineResult{}, err
			}
			if strings.TrimSpace(text) == "" {
				return protocol.Stop(mc, "empty model response"), nil
			}
			mc.Set(KeyAIResponse, text)
			return protocol.Continue(mc), nil
		},
	}
}

// buildPrompt flattens the burst (or the single message) into prompt text.
// Media messages contribute their description when one was produced.
func buildPrompt(mc *protocol.MessageContext) string {
	messages := mc.GetMessages(KeyBufferedMessages)
	if len(messages) == 0 {
		messages = []protocol.TypedMessage{mc.Message}
	}
	var parts []string
	for _, msg := range messages {
		if body := strings.TrimSpace(msg.Body()); body != "" {
			parts = append(parts, body)
		}
	}
	if desc := strings.TrimSpace(mc.GetString(KeyMediaDescription)); desc != "" {
		parts = append(parts, "[media: "+desc+"]")
	}
	return strings.Join(parts, "\n")
}

// SendResponse delivers the reply back through the channel the message
// arrived on. A delivery failure aborts the run; delivery is at-least-once
// by way of the job retry.
func SendResponse(sender outbound.Sender) pipeline.Step {
	return pipeline.StepFunc{
		StepName: "send-response",
		Fn: func(ctx context.Context, mc *protocol.MessageContext) (protocol.PipelineResult, error) {
			text := mc.GetString(KeyAIResponse)
			if strings.TrimSpace(text) == "" {
				return protocol.Stop(mc, "no response to send"), nil
			}
			meta := mc.Message.Metadata
			deliveryID, err := sender.Send(ctx, meta.Channel, meta.Provider, meta.Implementation, meta.Sender.ID, text)
			if err != nil {
				return protocol.PipelineResult{}, err
			}
			mc.Set(KeyDeliveryID, deliveryID)
			return protocol.Continue(mc), nil
		},
	}
}
