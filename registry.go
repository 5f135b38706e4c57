package cellar

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// Handler transforms a raw field value into its canonical stored form.
// It receives the Model performing the operation and the field's definition.
type Handler interface {
	Transform(ctx context.Context, m *Model, def FieldDef, value any) (any, error)
}

// HandlerFunc adapts an ordinary function to the Handler interface.
type HandlerFunc func(ctx context.Context, m *Model, def FieldDef, value any) (any, error)

func (f HandlerFunc) Transform(ctx context.Context, m *Model, def FieldDef, value any) (any, error) {
	return f(ctx, m, def, value)
}

// Identity returns a handler that passes values through unchanged.
func Identity() Handler {
	return HandlerFunc(func(_ context.Context, _ *Model, _ FieldDef, value any) (any, error) {
		return value, nil
	})
}

// Registry maps case-insensitive type names to handlers. A Registry is
// safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

type registryOptions struct {
	hasher Hasher
}

// RegistryOption configures the built-in handlers of a new Registry.
type RegistryOption func(*registryOptions)

// WithHasher sets the hasher used by the password type.
func WithHasher(h Hasher) RegistryOption {
	return func(o *registryOptions) {
		o.hasher = h
	}
}

// NewRegistry returns a registry holding the built-in JSON, text, datetime
// and password types.
func NewRegistry(opts ...RegistryOption) *Registry {
	o := &registryOptions{hasher: NewBcryptHasher(DefaultBcryptCost)}
	for _, opt := range opts {
		opt(o)
	}

	r := &Registry{handlers: make(map[string]Handler)}
	r.Use("JSON", HandlerFunc(jsonHandler))
	r.Use("text", HandlerFunc(textHandler))
	r.Use("datetime", HandlerFunc(datetimeHandler))
	r.Use("password", passwordHandler(o.hasher))
	return r
}

// Use registers h under name, replacing any handler of the same name.
func (r *Registry) Use(name string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[strings.ToLower(name)] = h
}

// Resolve looks up the handler registered under name.
func (r *Registry) Resolve(name string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[strings.ToLower(name)]
	return h, ok
}

// Names returns the registered type names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
