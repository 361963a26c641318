package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// TaskFunc is a registered workflow function. It returns its results in the
// order they are bound to the task outputs.
type TaskFunc func(ctx context.Context, env *Env, in Params) ([]any, error)

// Registry maps dotted function names to implementations
type Registry struct {
	mu    sync.RWMutex
	funcs map[string]TaskFunc
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{funcs: make(map[string]TaskFunc)}
}

// DefaultRegistry returns a registry holding the built-in functions
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for name, fn := range builtins {
		if err := r.Register(name, fn); err != nil {
			panic(err)
		}
	}
	return r
}

// Register adds fn under name, which must be dotted and unused
func (r *Registry) Register(name string, fn TaskFunc) error {
	if !strings.Contains(name, ".") {
		return fmt.Errorf("function name %q must be of the form module.function", name)
	}
	if fn == nil {
		return fmt.Errorf("function %q is nil", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.funcs[name]; exists {
		return fmt.Errorf("function %q is already registered", name)
	}
	r.funcs[name] = fn
	return nil
}

// Lookup returns the function registered under name
func (r *Registry) Lookup(name string) (TaskFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.funcs[strings.TrimSpace(name)]
	return fn, ok
}

// Names returns the registered names in sorted order
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.funcs))
	for name := range r.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
