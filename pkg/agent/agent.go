// Package agent implements the Agent container: the lifecycle-managed
// owner of a set of Modules and the per-signal-type Signalers they
// communicate through.
package agent

import (
	"context"
	"reflect"
	"sync"

	"github.com/google/uuid"
	"github.com/signalkit/agentrt/pkg/agenterr"
	"github.com/signalkit/agentrt/pkg/logx"
	"github.com/signalkit/agentrt/pkg/metrics"
	"github.com/signalkit/agentrt/pkg/module"
)

// ServiceProvider resolves external, non-module dependencies by type. A
// nil ServiceProvider behaves as one that always reports absent, per the
// external-interfaces contract.
type ServiceProvider interface {
	Resolve(t reflect.Type) (any, bool)
}

type nopServiceProvider struct{}

func (nopServiceProvider) Resolve(reflect.Type) (any, bool) { return nil, false }

// Option configures an Agent at construction time.
type Option func(*Agent)

// WithServiceProvider installs the external dependency resolver consulted
// during module insertion.
func WithServiceProvider(p ServiceProvider) Option {
	return func(a *Agent) { a.services = p }
}

// WithMetricsRecorder installs the Prometheus-backed recorder instrumenting
// module counts, dispatch latency, init outcomes, and supervisor restarts.
// Omitting it leaves the agent instrumentation-free.
func WithMetricsRecorder(r metrics.Recorder) Option {
	return func(a *Agent) { a.metrics = r }
}

// Agent owns an ordered sequence of Modules, a lifecycle state machine,
// and a map of per-signal-type Signalers those modules dispatch through.
type Agent struct {
	id          string
	Name        string
	Description string

	sm       *stateMachine
	services ServiceProvider
	metrics  metrics.Recorder
	log      *logx.Logger

	mu           sync.Mutex
	modules      []module.Module
	signalers    map[reflect.Type]any // *signal.Signaler[T], boxed
	preferredIDs map[reflect.Type][]string
	requiredBy   map[string]map[string]bool // module type name -> set of dependent module type names

	initDone     chan error
	initOnce     sync.Once
	runCancel    context.CancelFunc
	runActive    bool
	membershipCh chan struct{}
}

// New constructs an Agent in state Uninitialized.
func New(name, description string, opts ...Option) *Agent {
	a := &Agent{
		id:           uuid.NewString(),
		Name:         name,
		Description:  description,
		sm:           newStateMachine(),
		services:     nopServiceProvider{},
		metrics:      metrics.Nop(),
		signalers:    map[reflect.Type]any{},
		preferredIDs: map[reflect.Type][]string{},
		requiredBy:   map[string]map[string]bool{},
		initDone:     make(chan error, 1),
		membershipCh: make(chan struct{}, 1),
	}
	a.log = logx.NewLogger(name)
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// ID returns the agent's identity, satisfying module.AgentHandle.
func (a *Agent) ID() string { return a.id }

// State returns the current lifecycle state.
func (a *Agent) State() State { return a.sm.get() }

// StateChanges returns a channel that immediately yields the current
// state, then every subsequent transition.
func (a *Agent) StateChanges() <-chan State { return a.sm.subscribe() }

// InitializationDone returns a channel that receives the aggregate error
// from Initialize (nil on full success) exactly once, after the agent
// reaches Initialized.
func (a *Agent) InitializationDone() <-chan error { return a.initDone }

// Modules returns a read-only snapshot of the agent's current module
// sequence, in insertion order.
func (a *Agent) Modules() []module.Module {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]module.Module, len(a.modules))
	copy(out, a.modules)
	return out
}

// ModuleOfType implements module.AgentHandle: it returns the first module
// assignable to t.
func (a *Agent) ModuleOfType(t reflect.Type) (module.Module, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, m := range a.modules {
		if reflect.TypeOf(m).AssignableTo(t) {
			return m, true
		}
	}
	return nil, false
}

// SignalerFor implements module.AgentHandle: it returns the boxed
// Signaler for t, publishing one via create() on first touch.
func (a *Agent) SignalerFor(t reflect.Type, create func() any) any {
	a.mu.Lock()
	defer a.mu.Unlock()
	if s, ok := a.signalers[t]; ok {
		return s
	}
	s := create()
	a.signalers[t] = s
	return s
}

// notifyMembershipChanged wakes a running supervisor after Add/Remove
// mutates the module set. The channel is buffered to 1 and the send is
// non-blocking: a pending notification already covers any new mutation,
// since the supervisor always reconciles against the live module list.
func (a *Agent) notifyMembershipChanged() {
	select {
	case a.membershipCh <- struct{}{}:
	default:
	}
}

func (a *Agent) requireState(allowed ...State) error {
	cur := a.sm.get()
	for _, s := range allowed {
		if cur == s {
			return nil
		}
	}
	return agenterr.ErrInvalidState
}
