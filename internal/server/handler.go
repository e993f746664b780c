package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"example.com/chunkcast/internal/broadcast"
	"example.com/chunkcast/internal/config"
	"example.com/chunkcast/internal/logger"
	"example.com/chunkcast/internal/metrics"
	"example.com/chunkcast/internal/reaper"
)

// Env carries the shared services a handler factory may wire into the
// handler it builds.
type Env struct {
	Log         *logger.Logger
	Metrics     *metrics.Metrics
	Gatherer    prometheus.Gatherer // served by Metrics routes; nil means the default registry
	Broadcaster *broadcast.Broadcaster
	Reaper      *reaper.Reaper // nil when idle reaping is disabled
	Writer      *config.WriterConfig
}

// HandlerFactory builds a handler from a route's opaque handler_config.
type HandlerFactory func(handlerConfig json.RawMessage, env *Env) (http.Handler, error)

// HandlerRegistry maps HandlerType strings from configuration to factories.
type HandlerRegistry struct {
	mu        sync.RWMutex
	factories map[string]HandlerFactory
}

func NewHandlerRegistry() *HandlerRegistry {
	return &HandlerRegistry{
		factories: make(map[string]HandlerFactory),
	}
}

// Register associates handlerType with factory. Registering the same type
// twice is an error.
func (r *HandlerRegistry) Register(handlerType string, factory HandlerFactory) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[handlerType]; exists {
		return fmt.Errorf("handler type '%s' already registered", handlerType)
	}
	r.factories[handlerType] = factory
	return nil
}

func (r *HandlerRegistry) GetFactory(handlerType string) (HandlerFactory, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	factory, ok := r.factories[handlerType]
	return factory, ok
}

// CreateHandler builds a handler for handlerType. It fails if the type is not
// registered, env is nil, or the factory rejects the config.
func (r *HandlerRegistry) CreateHandler(handlerType string, handlerConfig json.RawMessage, env *Env) (http.Handler, error) {
	factory, ok := r.GetFactory(handlerType)
	if !ok {
		return nil, fmt.Errorf("no handler factory registered for type '%s'", handlerType)
	}
	if env == nil || env.Log == nil {
		return nil, fmt.Errorf("environment with a logger is required to create handler type '%s'", handlerType)
	}
	h, err := factory(handlerConfig, env)
	if err != nil {
		return nil, fmt.Errorf("creating handler type '%s': %w", handlerType, err)
	}
	return h, nil
}

// Types returns the registered handler types.
func (r *HandlerRegistry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	return types
}
