// Package module defines the Module contract and the generic signal-API
// façade that concrete modules use to subscribe to and publish signals
// without any direct dependency on the agent package (avoiding an import
// cycle: agent owns modules, modules talk back to their agent only
// through the AgentHandle interface declared here).
package module

import (
	"context"
	"reflect"
)

// AgentHandle is the minimal surface a Module needs from its owning
// Agent. The concrete *agent.Agent implements this without module ever
// importing agent.
type AgentHandle interface {
	// ID returns the agent's identity, used for log tagging.
	ID() string
	// SignalerFor returns the existing boxed *signal.Signaler[T] for t,
	// creating one via create() and publishing it on first touch.
	SignalerFor(t reflect.Type, create func() any) any
	// ModuleOfType returns a module assignable to t, if one exists.
	ModuleOfType(t reflect.Type) (Module, bool)
}

// Module is the identity and lifecycle contract every agent member
// satisfies. Initialize, Dispose, and RunLoop are optional capabilities:
// the agent detects them via type assertion against Initializer,
// Disposer, and Runner respectively, so a module implements only what it
// needs.
type Module interface {
	ModuleID() string
	ModuleTypeName() string
	SetAgent(a AgentHandle)
	ClearAgent()
	Agent() (AgentHandle, bool)
}

// Initializer is implemented by modules with setup work to run once
// inserted into an Initializing or Initialized agent.
type Initializer interface {
	Initialize(ctx context.Context) error
}

// Disposer is implemented by modules with teardown work to run on
// removal. Returning an error wrapped with agenterr.ErrVeto vetoes the
// module's own removal. In RemoveModules any other error is aggregated
// into ModuleDisposeError and that module also stays in the agent;
// Agent.Dispose removes every module whatever its Dispose returns.
type Disposer interface {
	Dispose(ctx context.Context) error
}

// Runner is implemented by modules with a long-lived loop the run
// supervisor should keep alive. RunLoop returning nil means the module has
// finished its work for this Run invocation, not that it failed.
type Runner interface {
	RunLoop(ctx context.Context) error
}

// Requires is implemented by module types the registry should treat as
// requiring a setter-injected member of RequiredType. Most modules
// instead register this declaratively at package init via
// registry.Register; Requires exists for call sites that prefer doing it
// inline on the type itself.
type Requires interface {
	RequiredMembers() []RequiredMemberSpec
}

// RequiredMemberSpec names one required-module member and how to set it.
type RequiredMemberSpec struct {
	Name         string
	RequiredType reflect.Type
	Set          func(value any)
}
