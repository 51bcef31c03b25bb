// Package testkit provides shared test doubles and assertion helpers for
// exercising the agent runtime's dependency graph and run supervisor
// without real business logic, in a testify-based style.
package testkit

import (
	"context"
	"sync"

	"github.com/signalkit/agentrt/pkg/module"
)

// FakeModule is a module.Module (optionally Initializer, Disposer, Runner)
// whose behavior is entirely caller-configured: hooks to run, errors to
// inject, and counters to assert against afterward.
type FakeModule struct {
	*module.Base

	mu sync.Mutex

	InitializeFunc func(ctx context.Context) error
	DisposeFunc    func(ctx context.Context) error
	RunLoopFunc    func(ctx context.Context) error

	initCount  int
	disposeCount int
	runCount   int
}

// NewFakeModule returns a FakeModule registered under typeName, the name
// that appears in logs, DebugState lines, and the required-by graph.
func NewFakeModule(typeName string) *FakeModule {
	return &FakeModule{Base: module.NewBase(typeName)}
}

// Initialize satisfies module.Initializer, delegating to InitializeFunc
// when set and recording the call regardless.
func (f *FakeModule) Initialize(ctx context.Context) error {
	f.mu.Lock()
	f.initCount++
	f.mu.Unlock()
	if f.InitializeFunc != nil {
		return f.InitializeFunc(ctx)
	}
	return nil
}

// Dispose satisfies module.Disposer.
func (f *FakeModule) Dispose(ctx context.Context) error {
	f.mu.Lock()
	f.disposeCount++
	f.mu.Unlock()
	if f.DisposeFunc != nil {
		return f.DisposeFunc(ctx)
	}
	return nil
}

// RunLoop satisfies module.Runner. A FakeModule with no RunLoopFunc blocks
// until ctx is cancelled, matching a well-behaved long-running module.
func (f *FakeModule) RunLoop(ctx context.Context) error {
	f.mu.Lock()
	f.runCount++
	f.mu.Unlock()
	if f.RunLoopFunc != nil {
		return f.RunLoopFunc(ctx)
	}
	<-ctx.Done()
	return ctx.Err()
}

// InitCount, DisposeCount, and RunCount report how many times each
// lifecycle hook has fired, for assertions after the agent has acted.
func (f *FakeModule) InitCount() int    { f.mu.Lock(); defer f.mu.Unlock(); return f.initCount }
func (f *FakeModule) DisposeCount() int { f.mu.Lock(); defer f.mu.Unlock(); return f.disposeCount }
func (f *FakeModule) RunCount() int     { f.mu.Lock(); defer f.mu.Unlock(); return f.runCount }
