package entity

import (
	"context"
	"fmt"
	"sort"

	"github.com/inclue/pulse/internal/expr"
)

// Accessor is the read-only contract the card engine requires from an
// entity-type backend. Implementations must be safe for concurrent use.
type Accessor interface {
	// Count returns the number of records matching the predicate.
	Count(ctx context.Context, p expr.Predicate) (int, error)

	// Fetch returns the records matching the predicate.
	Fetch(ctx context.Context, p expr.Predicate) (RecordSet, error)

	// FieldNames returns the set of fields records of this type carry.
	FieldNames() map[string]struct{}
}

// Registry maps entity-type names to their accessors.
// It is populated during startup wiring and read-only afterwards, so lookups
// need no synchronization.
type Registry struct {
	accessors map[string]Accessor
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{accessors: make(map[string]Accessor)}
}

// Register binds an accessor to an entity-type name.
// Call only during startup, before the registry is shared.
func (r *Registry) Register(name string, a Accessor) {
	if name == "" {
		panic("entity: accessor name cannot be empty")
	}
	if a == nil {
		panic(fmt.Sprintf("entity: accessor for %q cannot be nil", name))
	}
	if _, dup := r.accessors[name]; dup {
		panic(fmt.Sprintf("entity: accessor %q registered twice", name))
	}
	r.accessors[name] = a
}

// Exists reports whether an entity type is registered.
func (r *Registry) Exists(name string) bool {
	_, ok := r.accessors[name]
	return ok
}

// Get returns the accessor for the given entity type.
func (r *Registry) Get(name string) (Accessor, bool) {
	a, ok := r.accessors[name]
	return a, ok
}

// Names returns the registered entity-type names, sorted for stable logging.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.accessors))
	for name := range r.accessors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
