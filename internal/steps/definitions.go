package steps

import (
	"log/slog"

	"github.com/omnirelay/omnirelay/internal/ai"
	"github.com/omnirelay/omnirelay/internal/audit"
	"github.com/omnirelay/omnirelay/internal/buffer"
	"github.com/omnirelay/omnirelay/internal/message"
	"github.com/omnirelay/omnirelay/internal/outbound"
	"github.com/omnirelay/omnirelay/internal/pipeline"
	"github.com/omnirelay/omnirelay/internal/project"
	"github.com/omnirelay/omnirelay/internal/vision"
)

// Deps collects everything the concrete steps need.
type Deps struct {
	Logger    *slog.Logger
	Messages  message.Store
	Buffer    *buffer.Engine
	Describer vision.Describer
	Generator ai.Generator
	Sender    outbound.Sender
	Audit     *audit.Hub
}

// NewRegistry builds the step registry with every concrete step wired to
// its dependencies.
func NewRegistry(deps Deps) *pipeline.Registry {
	registry := pipeline.NewRegistry()
	registry.MustRegister(ProjectStatus())
	registry.MustRegister(SenderAuthorization())
	registry.MustRegister(CommandDetect())
	registry.MustRegister(PersistMessage(deps.Messages))
	registry.MustRegister(MediaDescribe(deps.Logger, deps.Describer))
	registry.MustRegister(BufferMessages(deps.Logger, deps.Buffer))
	registry.MustRegister(LoadBuffered(deps.Buffer))
	registry.MustRegister(ClearBuffer(deps.Logger, deps.Buffer))
	registry.MustRegister(AIResponse(deps.Generator))
	registry.MustRegister(SendResponse(deps.Sender))
	registry.MustRegister(AuditPublish(deps.Audit))
	return registry
}

// Definitions is the static project-type table the pipeline factory
// resolves against. PRE_BUFFER chains end in buffer-messages, POST_BUFFER
// chains load the burst first and clear it last, and FULL chains are the
// unbuffered equivalent.
func Definitions() map[string]pipeline.ModeSteps {
	return map[string]pipeline.ModeSteps{
		// Minimal processing for projects without a responder: validate,
		// persist, record. No model, no outbound reply.
		project.DefaultType: {
			PreBuffer:  []string{"project-status", "sender-authorization", "persist-message", "buffer-messages"},
			PostBuffer: []string{"load-buffered", "audit-publish", "clear-buffer"},
			Full:       []string{"project-status", "sender-authorization", "persist-message", "audit-publish"},
		},
		// Conversational responder with media understanding and slash
		// commands.
		"assistant": {
			PreBuffer:  []string{"project-status", "sender-authorization", "persist-message", "media-describe", "buffer-messages"},
			PostBuffer: []string{"load-buffered", "command-detect", "ai-response", "send-response", "audit-publish", "clear-buffer"},
			Full:       []string{"project-status", "sender-authorization", "persist-message", "media-describe", "command-detect", "ai-response", "send-response", "audit-publish"},
		},
		// Support desk variant: replies to everything, no slash commands,
		// no media description.
		"support": {
			PreBuffer:  []string{"project-status", "sender-authorization", "persist-message", "buffer-messages"},
			PostBuffer: []string{"load-buffered", "ai-response", "send-response", "audit-publish", "clear-buffer"},
			Full:       []string{"project-status", "sender-authorization", "persist-message", "ai-response", "send-response", "audit-publish"},
		},
	}
}
