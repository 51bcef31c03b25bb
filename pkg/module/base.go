package module

import (
	"sync"

	"github.com/google/uuid"
)

// Base is the embeddable module implementation concrete module types
// build on for identity and lifecycle plumbing. It implements Module;
// concrete types additionally implement Initializer, Disposer, and/or
// Runner as needed.
type Base struct {
	id       string
	typeName string

	mu       sync.Mutex
	agent    AgentHandle
	deferred []func()
}

// NewBase constructs a Base for a module whose display type name is
// typeName (typically reflect.TypeOf(self).Elem().Name()).
func NewBase(typeName string) *Base {
	return &Base{id: uuid.NewString(), typeName: typeName}
}

func (b *Base) ModuleID() string       { return b.id }
func (b *Base) ModuleTypeName() string { return b.typeName }

// SetAgent assigns the owning agent and drains any subscriptions buffered
// before the module had one (constructor-time subscriptions).
func (b *Base) SetAgent(a AgentHandle) {
	b.mu.Lock()
	b.agent = a
	pending := b.deferred
	b.deferred = nil
	b.mu.Unlock()

	for _, fn := range pending {
		fn()
	}
}

// ClearAgent detaches the module on removal.
func (b *Base) ClearAgent() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.agent = nil
}

// Agent returns the owning agent handle, if the module is currently
// inserted into one.
func (b *Base) Agent() (AgentHandle, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.agent == nil {
		return nil, false
	}
	return b.agent, true
}

// withAgent runs fn immediately against the current agent handle if one
// is assigned, or buffers it to run on the next SetAgent otherwise. fn is
// responsible for its own cancellation checks (see subHandle in
// facade.go) since a buffered action may become moot before it fires.
func (b *Base) withAgent(fn func(a AgentHandle)) {
	b.mu.Lock()
	if b.agent != nil {
		a := b.agent
		b.mu.Unlock()
		fn(a)
		return
	}
	b.deferred = append(b.deferred, func() {
		b.mu.Lock()
		a := b.agent
		b.mu.Unlock()
		fn(a)
	})
	b.mu.Unlock()
}
