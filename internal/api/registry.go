package api

import (
	"context"
	"sort"
)

// Handler serves one JSON-RPC method
type Handler interface {
	// Handle processes the call and returns the result
	Handle(ctx context.Context, params []string) (interface{}, error)

	// Name returns the method name
	Name() string

	// Description returns a human-readable description
	Description() string
}

// Registry maps method names to handlers
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a handler, replacing any with the same name
func (r *Registry) Register(h Handler) {
	r.handlers[h.Name()] = h
}

// Get returns the handler for name
func (r *Registry) Get(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// List returns the registered method names in order
func (r *Registry) List() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ParamsError reports a call with unusable params. It maps to -32602.
type ParamsError struct {
	Message string
}

func (e *ParamsError) Error() string {
	return e.Message
}

// HandlerFunc adapts a function to a Handler
type HandlerFunc struct {
	name        string
	description string
	fn          func(ctx context.Context, params []string) (interface{}, error)
}

// NewHandlerFunc wraps fn as a named Handler
func NewHandlerFunc(name, description string, fn func(ctx context.Context, params []string) (interface{}, error)) *HandlerFunc {
	return &HandlerFunc{name: name, description: description, fn: fn}
}

func (h *HandlerFunc) Handle(ctx context.Context, params []string) (interface{}, error) {
	return h.fn(ctx, params)
}

func (h *HandlerFunc) Name() string        { return h.name }
func (h *HandlerFunc) Description() string { return h.description }
