// Package steps provides the concrete pipeline steps and the static
// project-type step tables the pipeline factory resolves against.
package steps

import (
	"github.com/omnirelay/omnirelay/internal/project"
	"github.com/omnirelay/omnirelay/internal/protocol"
)

// Metadata keys shared across steps. Each key has exactly one writer; every
// other step treats it as read-only.
const (
	// KeyProjectConfig is written by the worker before the pipeline runs.
	KeyProjectConfig = "project_config"
	// KeyBufferedMessages is written by the load-buffered step: the full
	// burst, oldest first.
	KeyBufferedMessages = "buffered_messages"
	// KeyMediaDescription is written by the media-describe step.
	KeyMediaDescription = "media_description"
	// KeyCommand is written by the command-detect step.
	KeyCommand = "command"
	// KeyAIResponse is written by the ai-response step.
	KeyAIResponse = "ai_response"
	// KeyDeliveryID is written by the send-response step.
	KeyDeliveryID = "delivery_id"
	// KeyBufferJobID is written by the buffer-messages step.
	KeyBufferJobID = "buffer_job_id"
)

func projectConfig(mc *protocol.MessageContext) (project.Config, bool) {
	v, ok := mc.Get(KeyProjectConfig)
	if !ok {
		return project.Config{}, false
	}
	cfg, ok := v.(project.Config)
	return cfg, ok
}
