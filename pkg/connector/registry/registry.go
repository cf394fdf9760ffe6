// Package registry maps connector names to factories so entry points can
// build a connector from configuration alone.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ajitpratap0/logevents/pkg/config"
	"github.com/ajitpratap0/logevents/pkg/connector/core"
	"github.com/ajitpratap0/logevents/pkg/errors"
	"github.com/ajitpratap0/logevents/pkg/logger"
	"go.uber.org/zap"
)

// FunctionFactory builds a connector from configuration
type FunctionFactory func(cfg *config.Config, logger *zap.Logger) (core.Function, error)

// Registry manages connector registration and instantiation
type Registry struct {
	functions map[string]FunctionFactory
	mu        sync.RWMutex
}

var globalRegistry = NewRegistry()

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		functions: make(map[string]FunctionFactory),
	}
}

// Register adds a connector factory. Registering a name twice fails.
func (r *Registry) Register(name string, factory FunctionFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.functions[name]; exists {
		return errors.New(errors.ErrorTypeConfig, fmt.Sprintf("connector %s already registered", name))
	}
	r.functions[name] = factory
	return nil
}

// Create builds the connector registered under name
func (r *Registry) Create(name string, cfg *config.Config, log *zap.Logger) (core.Function, error) {
	r.mu.RLock()
	factory, exists := r.functions[name]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.New(errors.ErrorTypeConfig, fmt.Sprintf("connector %s not found", name))
	}
	if log == nil {
		log = logger.Get()
	}

	fn, err := factory(cfg, log)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, fmt.Sprintf("failed to create connector %s", name))
	}
	log.Debug("connector created", zap.String("name", name))
	return fn, nil
}

// List returns the registered connector names in sorted order
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.functions))
	for name := range r.functions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Has checks if a connector is registered
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.functions[name]
	return exists
}

// Register registers a connector in the global registry
func Register(name string, factory FunctionFactory) error {
	return globalRegistry.Register(name, factory)
}

// Create builds a connector from the global registry
func Create(name string, cfg *config.Config, log *zap.Logger) (core.Function, error) {
	return globalRegistry.Create(name, cfg, log)
}

// List returns connectors registered in the global registry
func List() []string {
	return globalRegistry.List()
}

// Has checks if a connector is registered in the global registry
func Has(name string) bool {
	return globalRegistry.Has(name)
}
