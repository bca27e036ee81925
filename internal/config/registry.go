package config

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/voicebridge/byova/pkg/connector"
)

// ErrConnectorNotRegistered is returned by Create when no factory has been
// registered under the requested connector name.
var ErrConnectorNotRegistered = errors.New("config: connector not registered")

// Factory constructs a connector from its config entry.
type Factory func(ctx context.Context, entry ConnectorEntry) (connector.Connector, error)

// Registry maps connector names to their constructor functions. Names are
// bound at compile time by main; the config file only selects among them.
// Safe for concurrent use.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register adds a connector factory under name. Subsequent calls with the
// same name overwrite the previous registration.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates the connector registered under name with the given
// entry.
func (r *Registry) Create(ctx context.Context, name string, entry ConnectorEntry) (connector.Connector, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("config: connector %q: %w", name, ErrConnectorNotRegistered)
	}
	return factory(ctx, entry)
}

// Names lists the registered connector names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
