package pipeline

import (
	"fmt"
	"log/slog"
)

// ModeSteps holds the three ordered step-name lists for one project type.
type ModeSteps struct {
	PreBuffer  []string
	PostBuffer []string
	Full       []string
}

// Factory resolves (project type, mode) into an executable pipeline from a
// static definition table. An unknown project type falls back to the
// default definition so new or misconfigured tenants degrade gracefully
// instead of losing messages.
type Factory struct {
	registry    *Registry
	definitions map[string]ModeSteps
	defaultType string
	logger      *slog.Logger
}

// NewFactory builds a factory and eagerly verifies that every referenced
// step name resolves, so a typo in the table fails at startup instead of on
// the first message.
func NewFactory(log *slog.Logger, registry *Registry, definitions map[string]ModeSteps, defaultType string) (*Factory, error) {
	if log == nil {
		log = slog.Default()
	}
	if _, ok := definitions[defaultType]; !ok {
		return nil, fmt.Errorf("default project type %q has no pipeline definition", defaultType)
	}
	for projectType, modes := range definitions {
		for _, names := range [][]string{modes.PreBuffer, modes.PostBuffer, modes.Full} {
			for _, name := range names {
				if _, err := registry.Get(name); err != nil {
					return nil, fmt.Errorf("pipeline for %q: %w", projectType, err)
				}
			}
		}
	}
	return &Factory{
		registry:    registry,
		definitions: definitions,
		defaultType: defaultType,
		logger:      log.With(slog.String("service", "pipeline-factory")),
	}, nil
}

// CreatePipeline resolves the step chain for a project type and mode.
func (f *Factory) CreatePipeline(projectType string, mode Mode) (Pipeline, error) {
	modes, ok := f.definitions[projectType]
	if !ok {
		f.logger.Warn("unknown project type, using default pipeline",
			slog.String("project_type", projectType))
		projectType = f.defaultType
		modes = f.definitions[f.defaultType]
	}

	var names []string
	switch mode {
	case ModePreBuffer:
		names = modes.PreBuffer
	case ModePostBuffer:
		names = modes.PostBuffer
	case ModeFull:
		names = modes.Full
	case ModeResume:
		names = resumeNames(modes.Full, modes.PreBuffer)
	default:
		return Pipeline{}, fmt.Errorf("unknown pipeline mode: %s", mode)
	}

	steps := make([]Step, 0, len(names))
	for _, name := range names {
		step, err := f.registry.Get(name)
		if err != nil {
			return Pipeline{}, err
		}
		steps = append(steps, step)
	}
	return Pipeline{ProjectType: projectType, Mode: mode, Steps: steps}, nil
}

// resumeNames returns the full-chain steps the pre-buffer chain did not
// already run, in full-chain order.
func resumeNames(full, preBuffer []string) []string {
	ran := make(map[string]struct{}, len(preBuffer))
	for _, name := range preBuffer {
		ran[name] = struct{}{}
	}
	var names []string
	for _, name := range full {
		if _, ok := ran[name]; !ok {
			names = append(names, name)
		}
	}
	return names
}
