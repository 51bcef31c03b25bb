package agent

import (
	"context"

	"github.com/signalkit/agentrt/pkg/agenterr"
	"github.com/signalkit/agentrt/pkg/logx"
	"github.com/signalkit/agentrt/pkg/module"
)

// ownerRemover is satisfied by every *signal.Signaler[T] regardless of T,
// since RemoveOwner's signature does not mention the type parameter.
type ownerRemover interface {
	RemoveOwner(moduleID string)
}

func (a *Agent) removeFromSignalers(moduleID string) {
	a.mu.Lock()
	signalers := make([]any, 0, len(a.signalers))
	for _, s := range a.signalers {
		signalers = append(signalers, s)
	}
	a.mu.Unlock()

	for _, s := range signalers {
		if r, ok := s.(ownerRemover); ok {
			r.RemoveOwner(moduleID)
		}
	}
}

// Remove removes every module assignable to T. It returns true iff at
// least one module was removed.
func Remove[T module.Module](a *Agent) (bool, error) {
	targets := GetModules[T](a)
	if len(targets) == 0 {
		return false, nil
	}
	mods := make([]module.Module, len(targets))
	for i, t := range targets {
		mods[i] = t
	}
	return a.RemoveModules(context.Background(), mods...)
}

// RemoveModules removes the given set of modules together: dependents must
// also be in the batch or the whole batch is refused; a dispose-time veto
// keeps that module and every transitive requirer of it in the batch.
func (a *Agent) RemoveModules(ctx context.Context, targets ...module.Module) (bool, error) {
	if a.State() == Initializing {
		return false, agenterr.ErrInvalidState
	}
	if st := a.State(); st == Disposing || st == Disposed {
		return false, nil
	}
	if len(targets) == 0 {
		return false, nil
	}

	set := map[string]module.Module{}
	for _, m := range targets {
		set[m.ModuleID()] = m
	}

	// Step 3: every direct dependent of a target must itself be a target.
	for _, m := range targets {
		for dependent := range a.requiredBy[m.ModuleTypeName()] {
			if !a.anyTargetHasType(set, dependent) {
				a.log.Warn("removal refused: %s is required by %s which is not in the batch", m.ModuleTypeName(), dependent)
				return false, nil
			}
		}
	}

	order := a.topoSortDependenciesFirst(targets)

	vetoed := map[string]bool{}
	var failures []agenterr.ModuleFailure
	removed := map[string]bool{}

	for _, m := range order {
		if a.transitivelyRequiresVetoed(m, vetoed) {
			vetoed[m.ModuleTypeName()] = true
			continue
		}
		if d, ok := m.(module.Disposer); ok {
			ctxAgent := logx.WithAgentID(ctx, a.Name)
			if err := d.Dispose(ctxAgent); err != nil {
				if agenterr.IsVeto(err) {
					vetoed[m.ModuleTypeName()] = true
					a.log.Warn("module %s vetoed its own removal", m.ModuleTypeName())
					continue
				}
				failures = append(failures, agenterr.ModuleFailure{ModuleType: m.ModuleTypeName(), ModuleID: m.ModuleID(), Err: err})
				continue
			}
		}
		a.finishRemoval(m)
		removed[m.ModuleID()] = true
	}

	if len(removed) > 0 {
		a.notifyMembershipChanged()
		a.metrics.SetModuleCount(a.Name, a.moduleCountLocked())
	}

	if len(failures) > 0 {
		return len(removed) > 0, &agenterr.ModuleDisposeError{Failures: failures}
	}
	return len(removed) > 0, nil
}

func (a *Agent) anyTargetHasType(set map[string]module.Module, typeName string) bool {
	for _, m := range set {
		if m.ModuleTypeName() == typeName {
			return true
		}
	}
	return false
}

// topoSortDependenciesFirst orders targets so that a module's own
// requirements are disposed (and, on veto, evaluated) before the module
// itself, letting a dependency's veto propagate forward to the modules
// that transitively required it.
func (a *Agent) topoSortDependenciesFirst(targets []module.Module) []module.Module {
	visited := map[string]bool{}
	var order []module.Module

	var visit func(m module.Module)
	visit = func(m module.Module) {
		if visited[m.ModuleID()] {
			return
		}
		visited[m.ModuleID()] = true
		for requiredType := range a.requirementsOf(m.ModuleTypeName()) {
			for _, other := range targets {
				if other.ModuleTypeName() == requiredType && !visited[other.ModuleID()] {
					visit(other)
				}
			}
		}
		order = append(order, m)
	}
	for _, m := range targets {
		visit(m)
	}
	return order
}

// requirementsOf returns the set of module type names that typeName
// requires, derived from the reverse required-by graph.
func (a *Agent) requirementsOf(typeName string) map[string]bool {
	out := map[string]bool{}
	for req, dependents := range a.requiredBy {
		if dependents[typeName] {
			out[req] = true
		}
	}
	return out
}

func (a *Agent) transitivelyRequiresVetoed(m module.Module, vetoed map[string]bool) bool {
	if len(vetoed) == 0 {
		return false
	}
	seen := map[string]bool{}
	var walk func(typeName string) bool
	walk = func(typeName string) bool {
		if seen[typeName] {
			return false
		}
		seen[typeName] = true
		for req := range a.requiredBy {
			if a.requiredBy[req][typeName] {
				if vetoed[req] {
					return true
				}
				if walk(req) {
					return true
				}
			}
		}
		return false
	}
	return walk(m.ModuleTypeName())
}

func (a *Agent) finishRemoval(m module.Module) {
	m.ClearAgent()
	a.removeFromSignalers(m.ModuleID())

	a.mu.Lock()
	kept := make([]module.Module, 0, len(a.modules))
	for _, existing := range a.modules {
		if existing.ModuleID() != m.ModuleID() {
			kept = append(kept, existing)
		}
	}
	a.modules = kept
	for t, ids := range a.preferredIDs {
		out := make([]string, 0, len(ids))
		for _, id := range ids {
			if id != m.ModuleID() {
				out = append(out, id)
			}
		}
		a.preferredIDs[t] = out
	}
	a.mu.Unlock()
}
