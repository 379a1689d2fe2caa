// Package registry holds the process-wide dependency registry used to
// inject shared collaborators into worker modules at construction time.
// The registry is an explicit value threaded through module factories, not
// a hidden global: written during single-threaded worker bootstrap, read
// during module construction, never mutated at runtime.
package registry

import (
	"reflect"
	"sync"

	"github.com/jobgate/jobgate/internal/envelope"
	"github.com/jobgate/jobgate/internal/log"
)

// Registry maps a type identity to a shared instance.
type Registry struct {
	mu        sync.RWMutex
	instances map[reflect.Type]any
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{instances: make(map[reflect.Type]any)}
}

// Register stores v keyed by its type. Re-registering a type overwrites the
// prior instance; the overwrite is logged so wiring mistakes surface during
// bootstrap.
func Register[T any](r *Registry, v T) {
	key := reflect.TypeOf((*T)(nil)).Elem()

	r.mu.Lock()
	if _, exists := r.instances[key]; exists {
		log.WithComponent("registry").Debug("overwriting registered dependency", "type", key.String())
	}
	r.instances[key] = v
	r.mu.Unlock()
}

// Resolve returns the instance registered for T. A missing entry is a
// wiring bug, not a transient failure, so it resolves to a fatal internal
// error.
func Resolve[T any](r *Registry) (T, error) {
	key := reflect.TypeOf((*T)(nil)).Elem()

	r.mu.RLock()
	v, ok := r.instances[key]
	r.mu.RUnlock()

	if !ok {
		var zero T
		return zero, envelope.Internal("dependency not found: %s", key.String())
	}
	return v.(T), nil
}

// MustResolve is Resolve for bootstrap paths where a missing dependency
// should stop module construction immediately.
func MustResolve[T any](r *Registry) T {
	v, err := Resolve[T](r)
	if err != nil {
		panic(err)
	}
	return v
}
