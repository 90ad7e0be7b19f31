package jobs

import (
	"context"
	"fmt"
	"sync"

	types "github.com/coursegraph/catalog-backend/internal/domain"
)

// Handler executes one claimed job run to completion.
type Handler func(ctx context.Context, job *types.JobRun) error

// Registry maps job kinds to handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewRegistry() *Registry {
	return &Registry{handlers: map[string]Handler{}}
}

func (r *Registry) Register(kind string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = h
}

func (r *Registry) Get(kind string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[kind]
	return h, ok
}

type missingHandlerError struct {
	Kind string
}

func (e *missingHandlerError) Error() string {
	return fmt.Sprintf("no handler registered for job kind %q", e.Kind)
}
