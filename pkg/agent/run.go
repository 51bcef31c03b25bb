package agent

import (
	"context"
	"reflect"
	"sync"

	"github.com/signalkit/agentrt/internal/supervisor"
	"github.com/signalkit/agentrt/pkg/agenterr"
	"github.com/signalkit/agentrt/pkg/logx"
	"github.com/signalkit/agentrt/pkg/module"
)

// Initialize transitions the agent from Uninitialized to Initializing, runs
// every current module's Initialize concurrently, then transitions to
// Initialized regardless of individual failures. The aggregate error (nil
// on full success) is both returned and delivered on InitializationDone.
func (a *Agent) Initialize(ctx context.Context) error {
	switch a.State() {
	case Initializing, Initialized:
		return nil
	case Disposing, Disposed:
		return agenterr.ErrInvalidState
	}
	if !a.sm.transition(Initializing) {
		return agenterr.ErrInvalidState
	}

	a.mu.Lock()
	mods := append([]module.Module{}, a.modules...)
	a.mu.Unlock()

	ctx = logx.WithAgentID(ctx, a.Name)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var failures []agenterr.ModuleFailure

	for _, m := range mods {
		init, ok := m.(module.Initializer)
		if !ok {
			continue
		}
		wg.Add(1)
		go func(m module.Module, init module.Initializer) {
			defer wg.Done()
			if err := init.Initialize(ctx); err != nil {
				a.metrics.IncModuleInit(a.Name, m.ModuleTypeName(), "failed")
				a.log.Error("module %s failed to initialize: %v", m.ModuleTypeName(), err)
				mu.Lock()
				failures = append(failures, agenterr.ModuleFailure{ModuleType: m.ModuleTypeName(), ModuleID: m.ModuleID(), Err: err})
				mu.Unlock()
				return
			}
			a.metrics.IncModuleInit(a.Name, m.ModuleTypeName(), "ok")
		}(m, init)
	}
	wg.Wait()

	a.sm.transition(Initialized)

	var result error
	if len(failures) > 0 {
		result = &agenterr.ModuleInitError{Failures: failures}
	}

	a.initOnce.Do(func() { a.initDone <- result })
	return result
}

// Run starts the run supervisor for every currently-present module that
// implements module.Runner, following the given exception policy. It
// blocks until ctx is cancelled, Stop is called, every module's run loop
// exhausts with no pending membership change, or the policy terminates the
// run outright (LogAndStopAll, RethrowAndStopAll).
func (a *Agent) Run(ctx context.Context, policy supervisor.Policy) error {
	if err := a.requireState(Initialized); err != nil {
		return err
	}

	a.mu.Lock()
	if a.runActive {
		a.mu.Unlock()
		return agenterr.ErrInvalidState
	}
	runCtx, cancel := context.WithCancel(ctx)
	a.runCancel = cancel
	a.runActive = true
	a.mu.Unlock()

	defer func() {
		a.mu.Lock()
		a.runActive = false
		a.runCancel = nil
		a.mu.Unlock()
	}()

	return supervisor.Run(runCtx, a, a.membershipCh, policy, a.Name, a.metrics)
}

// Stop cancels an in-progress Run. It is a no-op if no run is active.
func (a *Agent) Stop() {
	a.mu.Lock()
	cancel := a.runCancel
	a.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Dispose transitions the agent to Disposing, then Disposed, disposing
// every remaining module in reverse-insertion order. A module vetoing its
// own removal during Dispose cannot keep the agent from disposing: Dispose
// is a hard shutdown, unlike RemoveModules.
func (a *Agent) Dispose(ctx context.Context) error {
	switch a.State() {
	case Disposing, Disposed:
		return nil
	case Initializing:
		return agenterr.ErrInvalidState
	}
	if !a.sm.transition(Disposing) {
		return agenterr.ErrInvalidState
	}
	a.Stop()

	a.mu.Lock()
	mods := append([]module.Module{}, a.modules...)
	a.mu.Unlock()

	ctx = logx.WithAgentID(ctx, a.Name)

	var failures []agenterr.ModuleFailure
	for i := len(mods) - 1; i >= 0; i-- {
		m := mods[i]
		if d, ok := m.(module.Disposer); ok {
			if err := d.Dispose(ctx); err != nil && !agenterr.IsVeto(err) {
				failures = append(failures, agenterr.ModuleFailure{ModuleType: m.ModuleTypeName(), ModuleID: m.ModuleID(), Err: err})
			}
		}
		m.ClearAgent()
		a.removeFromSignalers(m.ModuleID())
	}

	a.mu.Lock()
	a.modules = nil
	a.preferredIDs = map[reflect.Type][]string{}
	a.mu.Unlock()

	a.sm.transition(Disposed)

	if len(failures) > 0 {
		return &agenterr.ModuleDisposeError{Failures: failures}
	}
	return nil
}
