package pipeline

import (
	"context"

	"github.com/omnirelay/omnirelay/internal/protocol"
)

// Mode selects which slice of a project's processing chain runs.
type Mode string

const (
	// ModePreBuffer runs up to and including the buffering step, which
	// halts execution until the debounce window closes.
	ModePreBuffer Mode = "PRE_BUFFER"
	// ModePostBuffer resumes after the debounce window: it loads the
	// buffered burst first and clears the buffer last.
	ModePostBuffer Mode = "POST_BUFFER"
	// ModeFull runs the complete chain without a buffering split, for
	// projects that opt out of debouncing.
	ModeFull Mode = "FULL"
	// ModeResume runs the full chain's steps that the pre-buffer chain has
	// not already executed. It finishes a message the buffering step let
	// through because the buffer infrastructure was unavailable, so the
	// reply still goes out.
	ModeResume Mode = "RESUME"
)

// Step is one named, composable processing unit. Execute returns a stop
// result to short-circuit the run; an error aborts it and is recorded by
// the executor.
type Step interface {
	Name() string
	Execute(ctx context.Context, mc *protocol.MessageContext) (protocol.PipelineResult, error)
}

// StepFunc adapts a function to the Step interface.
type StepFunc struct {
	StepName string
	Fn       func(ctx context.Context, mc *protocol.MessageContext) (protocol.PipelineResult, error)
}

func (s StepFunc) Name() string { return s.StepName }

func (s StepFunc) Execute(ctx context.Context, mc *protocol.MessageContext) (protocol.PipelineResult, error) {
	return s.Fn(ctx, mc)
}

// Pipeline is an ordered step chain resolved for one project type and mode.
type Pipeline struct {
	ProjectType string
	Mode        Mode
	Steps       []Step
}
