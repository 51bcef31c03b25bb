// Package registry holds the process-wide, reflection-free type metadata
// cache described in the runtime's design notes: for each module type, a
// descriptor recording whether it is a singleton and which members must be
// set to other modules at insertion time. Registration happens once per
// type (typically from that type's own package init); lookups take a
// shared read lock, so they never block one another.
package registry

import (
	"reflect"
	"sync"
)

// DependencyKind classifies how a constructor parameter or required member
// is satisfied during module insertion.
type DependencyKind int

const (
	// KindService is satisfied by the external ServiceProvider.
	KindService DependencyKind = iota
	// KindAgent is satisfied by the owning Agent itself.
	KindAgent
	// KindModule is satisfied by an existing (or auto-inserted) module of
	// exactly the requested concrete type.
	KindModule
	// KindModuleAssignable is satisfied by any existing module assignable
	// to the requested interface type.
	KindModuleAssignable
)

// RequiredMember describes one RequiredModule-tagged field: a field that
// must be set, at insertion time, to an instance of RequiredType.
type RequiredMember struct {
	Name         string
	RequiredType reflect.Type
	Set          func(owner, value any)
}

// Descriptor is the static metadata the agent consults when inserting a
// module of a given type, in place of runtime reflection over constructor
// signatures.
type Descriptor struct {
	Type reflect.Type
	// New constructs a zero-configured instance of Type, used by Add
	// when the caller supplies no explicit factory. Nil means the type
	// can only be inserted via an explicit factory.
	New       func() any
	Singleton bool
	// RequiredMembers lists the fields that must be set at insertion
	// time. Dependencies classifies how the member at the same index is
	// resolved (service, agent, module, or module-assignable); each member
	// is resolved by its own kind only. A
	// Dependencies entry missing for an index (including an entirely nil
	// Dependencies) defaults that member to KindModuleAssignable, the
	// behavior before this field existed.
	RequiredMembers []RequiredMember
	Dependencies    []DependencyKind
}

var (
	mu    sync.RWMutex
	store = map[reflect.Type]*Descriptor{}
)

// Register publishes d for d.Type. Safe to call from package init
// functions of module types; registering the same type twice overwrites
// the previous descriptor (the last registration wins), which keeps
// re-registration in tests harmless.
func Register(d Descriptor) {
	mu.Lock()
	defer mu.Unlock()
	cp := d
	store[d.Type] = &cp
}

// Lookup returns the descriptor for t, or a zero-value descriptor
// (non-singleton, no required members) if t was never registered —
// unregistered module types are legal; they simply carry no declarative
// metadata.
func Lookup(t reflect.Type) Descriptor {
	mu.RLock()
	defer mu.RUnlock()
	if d, ok := store[t]; ok {
		return *d
	}
	return Descriptor{Type: t}
}
