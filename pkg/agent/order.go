package agent

import (
	"reflect"

	"github.com/signalkit/agentrt/pkg/agenterr"
	"github.com/signalkit/agentrt/pkg/module"
)

func typeOf[T any]() reflect.Type {
	var zero T
	return reflect.TypeOf(&zero).Elem()
}

// SetSignalProcessingOrder declares the preferred dispatch order for
// signal type T's chain: processors owned by a module in modules run
// first, in the given order, followed by every other processor in
// subscription-insertion order. It is rejected once the agent starts
// disposing.
func SetSignalProcessingOrder[T any](a *Agent, modules []module.Module) error {
	if st := a.State(); st == Disposing || st == Disposed {
		return agenterr.ErrInvalidState
	}

	ids := make([]string, len(modules))
	for i, m := range modules {
		ids[i] = m.ModuleID()
	}

	s := signalerFor[T](a)
	s.SetPreferredOrder(ids)

	a.mu.Lock()
	a.preferredIDs[typeOf[T]()] = ids
	a.mu.Unlock()
	return nil
}
