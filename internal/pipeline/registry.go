package pipeline

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Registry maps step names to implementations. It is populated once at
// startup; duplicate names are a configuration bug that must surface
// immediately rather than silently overwrite.
type Registry struct {
	mu    sync.RWMutex
	steps map[string]Step
}

// NewRegistry creates an empty step registry.
func NewRegistry() *Registry {
	return &Registry{steps: map[string]Step{}}
}

// Register adds a step under its own name.
func (r *Registry) Register(step Step) error {
	if step == nil {
		return fmt.Errorf("step is nil")
	}
	name := strings.TrimSpace(step.Name())
	if name == "" {
		return fmt.Errorf("step name is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.steps[name]; exists {
		return fmt.Errorf("step already registered: %s", name)
	}
	r.steps[name] = step
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(step Step) {
	if err := r.Register(step); err != nil {
		panic(err)
	}
}

// Get returns the step for a name. The error lists the registered names so
// a misconfigured pipeline is diagnosable from the message alone.
func (r *Registry) Get(name string) (Step, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if step, ok := r.steps[name]; ok {
		return step, nil
	}
	return nil, fmt.Errorf("step not registered: %q (available: %s)", name, strings.Join(r.names(), ", "))
}

// Names returns the registered step names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.names()
}

func (r *Registry) names() []string {
	names := make([]string, 0, len(r.steps))
	for name := range r.steps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
