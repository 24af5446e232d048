package steps

import (
	"context"
	"strings"

	"github.com/omnirelay/omnirelay/internal/pipeline"
	"github.com/omnirelay/omnirelay/internal/protocol"
)

// ProjectStatus stops processing for inactive projects. It reads the
// configuration the worker resolved before the run started.
func ProjectStatus() pipeline.Step {
	return pipeline.StepFunc{
		StepName: "project-status",
		Fn: func(_ context.Context, mc *protocol.MessageContext) (protocol.PipelineResult, error) {
			cfg, ok := projectConfig(mc)
			if !ok {
				return protocol.Stop(mc, "project configuration missing"), nil
			}
			if !cfg.Active {
				return protocol.Stop(mc, "project inactive"), nil
			}
			return protocol.Continue(mc), nil
		},
	}
}

// SenderAuthorization stops processing for senders on the project's block
// list. Matching is exact on the normalized sender id.
func SenderAuthorization() pipeline.Step {
	return pipeline.StepFunc{
		StepName: "sender-authorization",
		Fn: func(_ context.Context, mc *protocol.MessageContext) (protocol.PipelineResult, error) {
			cfg, ok := projectConfig(mc)
			if !ok {
				return protocol.Continue(mc), nil
			}
			sender := strings.TrimSpace(mc.Message.Metadata.Sender.ID)
			for _, blocked := range cfg.BlockedSenders {
				if sender != "" && sender == strings.TrimSpace(blocked) {
					return protocol.Stop(mc, "sender blocked"), nil
				}
			}
			return protocol.Continue(mc), nil
		},
	}
}

// knownCommands are the slash commands the responder understands. Anything
// else starting with a slash is rejected before it reaches the model.
var knownCommands = map[string]struct{}{
	"help":  {},
	"reset": {},
	"human": {},
}

// CommandDetect recognizes slash commands in the message body. Known
// commands are recorded for later steps; unknown ones stop the run.
func CommandDetect() pipeline.Step {
	return pipeline.StepFunc{
		StepName: "command-detect",
		Fn: func(_ context.Context, mc *protocol.MessageContext) (protocol.PipelineResult, error) {
			body := strings.TrimSpace(mc.Message.Body())
			if !strings.HasPrefix(body, "/") {
				return protocol.Continue(mc), nil
			}
			name := strings.ToLower(strings.TrimPrefix(strings.Fields(body)[0], "/"))
			if _, ok := knownCommands[name]; !ok {
				return protocol.Stop(mc, "unknown command: /"+name), nil
			}
			mc.Set(KeyCommand, name)
			return protocol.Continue(mc), nil
		},
	}
}
