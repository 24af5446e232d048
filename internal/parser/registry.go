package parser

import (
	"fmt"
	"strings"
	"sync"
)

// Registry maps (provider, channel, implementation) combinations to payload
// parsers. It is built once at process initialization and passed explicitly
// to the components that resolve parsers.
type Registry struct {
	mu      sync.RWMutex
	parsers map[string]Parser
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{parsers: map[string]Parser{}}
}

// Register adds a parser for an exact provider-channel-implementation
// combination. Channel and implementation may be empty to register a
// provider-wide fallback. Duplicate registrations are a configuration bug
// and fail immediately.
func (r *Registry) Register(provider, channel, implementation string, p Parser) error {
	if p == nil {
		return fmt.Errorf("parser is nil")
	}
	key := comboKey(provider, channel, implementation)
	if key == "" {
		return fmt.Errorf("provider is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.parsers[key]; exists {
		return fmt.Errorf("parser already registered: %s", key)
	}
	r.parsers[key] = p
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(provider, channel, implementation string, p Parser) {
	if err := r.Register(provider, channel, implementation, p); err != nil {
		panic(err)
	}
}

// Resolve picks the parser for a combination: exact
// provider-channel-implementation key first, then the provider-only
// fallback. Returns ErrNoParser when neither is registered.
func (r *Registry) Resolve(provider, channel, implementation string) (Parser, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if key := comboKey(provider, channel, implementation); key != "" {
		if p, ok := r.parsers[key]; ok {
			return p, nil
		}
	}
	if p, ok := r.parsers[normalizeToken(provider)]; ok {
		return p, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNoParser, comboKey(provider, channel, implementation))
}

// Combinations returns the registered combination keys, for diagnostics.
func (r *Registry) Combinations() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.parsers))
	for k := range r.parsers {
		keys = append(keys, k)
	}
	return keys
}

// comboKey joins non-empty normalized tokens with hyphens, so
// ("WhatICket", "WhatsApp", "") becomes "whaticket-whatsapp".
func comboKey(provider, channel, implementation string) string {
	parts := make([]string, 0, 3)
	for _, raw := range []string{provider, channel, implementation} {
		if t := normalizeToken(raw); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "-")
}

func normalizeToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "-")
	s = strings.ReplaceAll(s, " ", "-")
	return s
}
