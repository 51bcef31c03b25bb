package agent

import (
	"context"
	"fmt"
	"reflect"

	"github.com/signalkit/agentrt/internal/registry"
	"github.com/signalkit/agentrt/pkg/agenterr"
	"github.com/signalkit/agentrt/pkg/logx"
	"github.com/signalkit/agentrt/pkg/module"
)

// Add inserts a module of type T, constructing it via the registered
// constructor (see registry.Register) and resolving its required members.
// configure callbacks run against both freshly constructed and (for
// singletons) pre-existing instances.
func Add[T module.Module](a *Agent, configure ...func(T)) (T, error) {
	return AddFactory(a, nil, configure...)
}

// AddFactory inserts a module of type T built by factory instead of the
// registered constructor. factory may be nil to fall back to the
// registered constructor.
func AddFactory[T module.Module](a *Agent, factory func(*Agent) (T, error), configure ...func(T)) (T, error) {
	var zero T
	t := reflect.TypeOf(zero)

	if err := a.requireState(Uninitialized, Initializing, Initialized); err != nil {
		return zero, err
	}

	desc := registry.Lookup(t)

	if desc.Singleton {
		if existing, ok := Get[T](a); ok {
			for _, cfg := range configure {
				cfg(existing)
			}
			return existing, nil
		}
	}

	a.mu.Lock()
	snapshot := append([]module.Module{}, a.modules...)
	a.mu.Unlock()

	var m T
	var err error
	if factory != nil {
		m, err = factory(a)
	} else if desc.New != nil {
		m, _ = desc.New().(T)
	} else {
		err = fmt.Errorf("agent: no factory given and no constructor registered for %s", t)
	}
	if err != nil {
		a.rollbackTo(snapshot)
		return zero, &agenterr.ModuleInsertError{ModuleType: t.String(), Cause: err}
	}

	mm := module.Module(m)
	mm.SetAgent(a)

	a.mu.Lock()
	a.modules = append(a.modules, mm)
	a.mu.Unlock()

	if err := a.resolveRequiredMembers(mm, desc); err != nil {
		a.rollbackTo(snapshot)
		return zero, &agenterr.ModuleInsertError{ModuleType: t.String(), Cause: err}
	}

	for _, cfg := range configure {
		cfg(m)
	}

	a.metrics.SetModuleCount(a.Name, a.moduleCountLocked())

	if st := a.State(); st == Initializing || st == Initialized {
		go a.initializeOne(context.Background(), mm)
		a.notifyMembershipChanged()
	}

	logx.Debug(context.Background(), "agent", "inserted module %s[%s]", mm.ModuleTypeName(), mm.ModuleID())
	return m, nil
}

// AddType inserts a module identified dynamically by its reflect.Type, for
// callers that do not know T at compile time.
func (a *Agent) AddType(t reflect.Type, configure func(module.Module)) (module.Module, error) {
	if err := a.requireState(Uninitialized, Initializing, Initialized); err != nil {
		return nil, err
	}
	desc := registry.Lookup(t)

	if desc.Singleton {
		if existing, ok := a.ModuleOfType(t); ok {
			if configure != nil {
				configure(existing)
			}
			return existing, nil
		}
	}

	a.mu.Lock()
	snapshot := append([]module.Module{}, a.modules...)
	a.mu.Unlock()

	if desc.New == nil {
		return nil, &agenterr.ModuleInsertError{ModuleType: t.String(), Cause: fmt.Errorf("no constructor registered for %s", t)}
	}
	raw := desc.New()
	mm, ok := raw.(module.Module)
	if !ok {
		return nil, &agenterr.ModuleInsertError{ModuleType: t.String(), Cause: fmt.Errorf("%s does not implement Module", t)}
	}
	mm.SetAgent(a)

	a.mu.Lock()
	a.modules = append(a.modules, mm)
	a.mu.Unlock()

	if err := a.resolveRequiredMembers(mm, desc); err != nil {
		a.rollbackTo(snapshot)
		return nil, &agenterr.ModuleInsertError{ModuleType: t.String(), Cause: err}
	}
	if configure != nil {
		configure(mm)
	}

	a.metrics.SetModuleCount(a.Name, a.moduleCountLocked())

	if st := a.State(); st == Initializing || st == Initialized {
		go a.initializeOne(context.Background(), mm)
		a.notifyMembershipChanged()
	}
	return mm, nil
}

// GetOrAdd returns the existing module of type T if present, else inserts
// one via factory (or the registered constructor if factory is nil).
func GetOrAdd[T module.Module](a *Agent, factory func(*Agent) (T, error), configure ...func(T)) (T, error) {
	if existing, ok := Get[T](a); ok {
		for _, cfg := range configure {
			cfg(existing)
		}
		return existing, nil
	}
	return AddFactory(a, factory, configure...)
}

// Get returns the first module assignable to T.
func Get[T module.Module](a *Agent) (T, bool) {
	var zero T
	t := reflect.TypeOf(zero)
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, m := range a.modules {
		if v, ok := m.(T); ok && reflect.TypeOf(m).AssignableTo(t) {
			return v, true
		}
	}
	return zero, false
}

// GetOrDefault returns the first module assignable to T, or T's zero value.
func GetOrDefault[T module.Module](a *Agent) T {
	v, _ := Get[T](a)
	return v
}

// GetModules returns every module assignable to T, in agent order.
func GetModules[T module.Module](a *Agent) []T {
	a.mu.Lock()
	defer a.mu.Unlock()
	var out []T
	for _, m := range a.modules {
		if v, ok := m.(T); ok {
			out = append(out, v)
		}
	}
	return out
}

func (a *Agent) moduleCountLocked() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.modules)
}

// resolveRequiredMembers resolves each declared required member by its
// own declared DependencyKind (service, agent, module, or
// module-assignable; other kinds are not tried as a fallback) and invokes
// the setter, recording the required-by edge when the resolved value is a
// module. Members declared via
// registry.Register take precedence; a
// module that instead implements module.Requires inline is honored as a
// fallback when the registry has nothing registered for its type — such
// members always resolve as KindModuleAssignable, matching the behavior
// before Dependencies existed.
func (a *Agent) resolveRequiredMembers(owner module.Module, desc registry.Descriptor) error {
	members := desc.RequiredMembers
	kinds := desc.Dependencies
	if len(members) == 0 {
		if r, ok := owner.(module.Requires); ok {
			for _, spec := range r.RequiredMembers() {
				spec := spec
				members = append(members, registry.RequiredMember{
					Name:         spec.Name,
					RequiredType: spec.RequiredType,
					Set:          func(_, value any) { spec.Set(value) },
				})
			}
			kinds = nil
		}
	}
	for i, rm := range members {
		kind := registry.KindModuleAssignable
		if i < len(kinds) {
			kind = kinds[i]
		}
		dep, err := a.resolveDependency(rm, kind)
		if err != nil {
			return fmt.Errorf("resolving required member %s: %w", rm.Name, err)
		}
		rm.Set(owner, dep)
		if m, ok := dep.(module.Module); ok {
			a.addRequiredByEdge(m.ModuleTypeName(), owner.ModuleTypeName())
		}
	}
	return nil
}

// resolveDependency satisfies a single required member according to kind,
// auto-inserting a missing module-kind dependency.
func (a *Agent) resolveDependency(rm registry.RequiredMember, kind registry.DependencyKind) (any, error) {
	switch kind {
	case registry.KindService:
		if v, ok := a.services.Resolve(rm.RequiredType); ok {
			return v, nil
		}
		return nil, agenterr.ErrDependencyUnresolved
	case registry.KindAgent:
		return a, nil
	case registry.KindModule:
		a.mu.Lock()
		for _, m := range a.modules {
			if reflect.TypeOf(m) == rm.RequiredType {
				a.mu.Unlock()
				return m, nil
			}
		}
		a.mu.Unlock()
		return a.autoInsertRequiredModule(rm)
	default: // registry.KindModuleAssignable
		if dep, ok := a.ModuleOfType(rm.RequiredType); ok {
			return dep, nil
		}
		return a.autoInsertRequiredModule(rm)
	}
}

func (a *Agent) autoInsertRequiredModule(rm registry.RequiredMember) (any, error) {
	inserted, err := a.AddType(rm.RequiredType, nil)
	if err != nil {
		return nil, agenterr.ErrDependencyUnresolved
	}
	return inserted, nil
}

func (a *Agent) addRequiredByEdge(requiredType, dependentType string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	set, ok := a.requiredBy[requiredType]
	if !ok {
		set = map[string]bool{}
		a.requiredBy[requiredType] = set
	}
	set[dependentType] = true
}

// rollbackTo removes every module not present in snapshot, undoing a
// partially completed insertion.
func (a *Agent) rollbackTo(snapshot []module.Module) {
	present := map[string]bool{}
	for _, m := range snapshot {
		present[m.ModuleID()] = true
	}
	a.mu.Lock()
	var toRemove []module.Module
	var kept []module.Module
	for _, m := range a.modules {
		if present[m.ModuleID()] {
			kept = append(kept, m)
		} else {
			toRemove = append(toRemove, m)
		}
	}
	a.modules = kept
	a.mu.Unlock()

	for _, m := range toRemove {
		m.ClearAgent()
		a.removeFromSignalers(m.ModuleID())
	}
}

func (a *Agent) initializeOne(ctx context.Context, m module.Module) {
	init, ok := m.(module.Initializer)
	if !ok {
		return
	}
	ctx = logx.WithAgentID(ctx, a.Name)
	if err := init.Initialize(ctx); err != nil {
		a.metrics.IncModuleInit(a.Name, m.ModuleTypeName(), "failed")
		logx.Debug(ctx, "agent", "async initialize of %s failed: %v", m.ModuleTypeName(), err)
		return
	}
	a.metrics.IncModuleInit(a.Name, m.ModuleTypeName(), "ok")
}
