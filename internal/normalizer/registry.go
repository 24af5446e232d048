package normalizer

import (
	"fmt"
)

// Registry holds the message parsers in registration order. Lookup returns
// the first parser whose CanHandle accepts the combination, so more
// specific parsers must be registered before provider-wide ones.
type Registry struct {
	parsers []MessageParser
}

// NewRegistry creates a registry from an ordered parser list. It is built
// once at startup and read-only afterward.
func NewRegistry(parsers ...MessageParser) *Registry {
	return &Registry{parsers: parsers}
}

// Find returns the first message parser that can handle the combination.
func (r *Registry) Find(provider, channel, implementation string) (MessageParser, error) {
	for _, p := range r.parsers {
		if p.CanHandle(provider, channel, implementation) {
			return p, nil
		}
	}
	return nil, fmt.Errorf("%w: %s/%s/%s", ErrNoMessageParser, provider, channel, implementation)
}

// NewDefaultRegistry wires the built-in message parsers.
func NewDefaultRegistry() *Registry {
	return NewRegistry(
		NewNotificationHubBaileysParser(),
		NewNotificationHubOfficialParser(),
		NewWhaticketParser(),
	)
}
