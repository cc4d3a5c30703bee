// Package manifest maps a wire kind id to a component/message
// constructor, and constructs a live replica from a byte stream. It is
// the concrete implementation applications register against the
// world.Manifest contract; the manifest is the sole authority on how
// many bytes a component payload consumes, since payloads are
// self-delimiting per kind.
package manifest

import (
	"fmt"
	"io"
	"reflect"
	"sync"

	"github.com/ettle/strcase"

	"github.com/replisync/go-entity-replicator/pkg/world"
)

// Factory constructs a replica by reading its self-delimited payload
// from r.
type Factory func(r io.Reader) (world.Replica, error)

// Registry is a Manifest built from per-kind factories registered at
// startup, grounded on the same "collect factories under a kind,
// panic on duplicate registration" shape the crud action registry
// uses for entity types.
type Registry struct {
	mu        sync.RWMutex
	factories map[uint16]Factory
	kinds     map[uint16]world.Kind
}

// NewRegistry constructs an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[uint16]Factory),
		kinds:     make(map[uint16]world.Kind),
	}
}

// MustRegister associates kind with factory. Registering the same
// wire id twice is a programmer error and panics -- schemas are fixed
// at startup, never mutated at runtime.
func (reg *Registry) MustRegister(kind world.Kind, factory Factory) {
	reg.mu.Lock()
	defer reg.mu.Unlock()
	id := kind.ToU16()
	if _, ok := reg.factories[id]; ok {
		panic(fmt.Sprintf("manifest: kind id %d already registered", id))
	}
	reg.factories[id] = factory
	reg.kinds[id] = kind
}

// CreateReplica constructs a new replica of kind by reading its
// payload from r.
func (reg *Registry) CreateReplica(kind world.Kind, r io.Reader) (world.Replica, error) {
	reg.mu.RLock()
	factory, ok := reg.factories[kind.ToU16()]
	reg.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("manifest: unknown kind id %d", kind.ToU16())
	}
	return factory(r)
}

// KindOf returns the kind of a live replica.
func (reg *Registry) KindOf(p world.Replica) world.Kind {
	return p.Kind()
}

// KindByID resolves a wire id back to the registered Kind, or
// ok=false if the id is unknown -- the caller must treat that as a
// protocol violation (log and drop), never as fatal.
func (reg *Registry) KindByID(id uint16) (world.Kind, bool) {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	k, ok := reg.kinds[id]
	return k, ok
}

// DebugName derives a human-readable, kebab-case label for a kind from
// its Go type name, for use in log lines and the colored event
// printer -- e.g. *game.PositionComponent -> "position-component".
func DebugName(kind world.Kind) string {
	t := reflect.TypeOf(kind)
	for t != nil && t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t == nil {
		return strcase.ToKebab(fmt.Sprintf("kind-%d", kind.ToU16()))
	}
	return strcase.ToKebab(t.Name())
}
