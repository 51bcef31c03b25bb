package agent

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalkit/agentrt/internal/registry"
	"github.com/signalkit/agentrt/internal/supervisor"
	"github.com/signalkit/agentrt/pkg/agenterr"
	"github.com/signalkit/agentrt/pkg/metrics"
	"github.com/signalkit/agentrt/pkg/module"
	"github.com/signalkit/agentrt/pkg/signal"
)

// pingModule is a minimal concrete module used across these tests: it
// counts Initialize/Dispose calls and can be told to veto its own removal
// or fail its run loop.
type pingModule struct {
	*module.Base
	initErr    error
	disposeErr error
	runErr     error
	initCalls  int
}

func newPingModule() *pingModule { return &pingModule{Base: module.NewBase("pingModule")} }

func (m *pingModule) Initialize(context.Context) error {
	m.initCalls++
	return m.initErr
}

func (m *pingModule) Dispose(context.Context) error { return m.disposeErr }

func (m *pingModule) RunLoop(ctx context.Context) error {
	if m.runErr != nil {
		return m.runErr
	}
	<-ctx.Done()
	return nil
}

// dependentModule requires a *pingModule, exercising resolveRequiredMembers.
type dependentModule struct {
	*module.Base
	ping *pingModule
}

func newDependentModule() *dependentModule { return &dependentModule{Base: module.NewBase("dependentModule")} }

func TestAdd_InsertsAndTracksModule(t *testing.T) {
	a := New("test-agent", "")
	m, err := AddFactory(a, func(*Agent) (*pingModule, error) { return newPingModule(), nil })
	require.NoError(t, err)
	assert.NotEmpty(t, m.ModuleID())

	got, ok := Get[*pingModule](a)
	require.True(t, ok)
	assert.Equal(t, m.ModuleID(), got.ModuleID())
}

func TestAdd_RollsBackOnFactoryError(t *testing.T) {
	a := New("test-agent", "")
	boom := assert.AnError
	_, err := AddFactory(a, func(*Agent) (*pingModule, error) { return nil, boom })
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)

	_, ok := Get[*pingModule](a)
	assert.False(t, ok, "a failed insertion must leave no trace")
}

func TestAddType_ResolvesRequiredMemberAndAutoInserts(t *testing.T) {
	a := New("test-agent", "")
	registry.Register(registry.Descriptor{
		Type: reflectTypeOf[*dependentModule](),
		New:  func() any { return newDependentModule() },
		RequiredMembers: []registry.RequiredMember{{
			Name:         "ping",
			RequiredType: reflectTypeOf[*pingModule](),
			Set: func(owner, value any) {
				owner.(*dependentModule).ping = value.(*pingModule)
			},
		}},
	})
	registry.Register(registry.Descriptor{
		Type: reflectTypeOf[*pingModule](),
		New:  func() any { return newPingModule() },
	})

	dep, err := Add[*dependentModule](a)
	require.NoError(t, err)
	require.NotNil(t, dep.ping, "required member must be auto-inserted and wired")

	_, ok := Get[*pingModule](a)
	assert.True(t, ok, "the auto-inserted dependency must also be a tracked module")
}

func TestInitialize_TransitionsStateAndAggregatesFailures(t *testing.T) {
	a := New("test-agent", "")
	ok := newPingModule()
	bad := newPingModule()
	bad.initErr = assert.AnError
	_, _ = AddFactory(a, func(*Agent) (*pingModule, error) { return ok, nil })
	_, _ = AddFactory(a, func(*Agent) (*pingModule, error) { return bad, nil })

	err := a.Initialize(context.Background())
	require.Error(t, err)
	var initErr *agenterr.ModuleInitError
	require.ErrorAs(t, err, &initErr)
	assert.Len(t, initErr.Failures, 1)

	assert.Equal(t, Initialized, a.State(), "partial init failure still reaches Initialized")
	assert.Equal(t, 1, ok.initCalls)
	assert.Equal(t, 1, bad.initCalls)
}

func TestInitialize_TwiceIsIdempotent(t *testing.T) {
	a := New("test-agent", "")
	require.NoError(t, a.Initialize(context.Background()))
	assert.NoError(t, a.Initialize(context.Background()), "re-calling Initialize once Initialized must be a no-op, not an error")
	assert.Equal(t, Initialized, a.State())
}

func TestDispose_DuringInitializingIsRejected(t *testing.T) {
	a := New("test-agent", "")
	slow := newPingModule()
	slow.initErr = nil
	_, err := AddFactory(a, func(*Agent) (*pingModule, error) { return slow, nil })
	require.NoError(t, err)

	require.True(t, a.sm.transition(Initializing))
	err = a.Dispose(context.Background())
	assert.ErrorIs(t, err, agenterr.ErrInvalidState)
}

func TestRemoveModules_VetoCascadesToTransitiveRequirer(t *testing.T) {
	// A has no dependencies, B requires A, A vetoes its own disposal.
	// Both must remain and RemoveModules must report false.
	a := New("test-agent", "")

	registry.Register(registry.Descriptor{
		Type: reflectTypeOf[*dependentModule](),
		New:  func() any { return newDependentModule() },
		RequiredMembers: []registry.RequiredMember{{
			Name:         "ping",
			RequiredType: reflectTypeOf[*pingModule](),
			Set: func(owner, value any) {
				owner.(*dependentModule).ping = value.(*pingModule)
			},
		}},
	})

	pingM := newPingModule()
	pingM.disposeErr = agenterr.ErrVeto
	registry.Register(registry.Descriptor{
		Type: reflectTypeOf[*pingModule](),
		New:  func() any { return pingM },
	})

	dep, err := Add[*dependentModule](a)
	require.NoError(t, err)
	require.NotNil(t, dep.ping)

	removed, err := a.RemoveModules(context.Background(), dep.ping, dep)
	require.NoError(t, err)
	assert.False(t, removed, "a vetoed dependency must keep both it and its requirer in place")

	_, stillThere := Get[*pingModule](a)
	assert.True(t, stillThere)
	_, depStillThere := Get[*dependentModule](a)
	assert.True(t, depStillThere)
}

func TestRemoveModules_RefusesBatchMissingADirectDependent(t *testing.T) {
	a := New("test-agent", "")
	registry.Register(registry.Descriptor{
		Type: reflectTypeOf[*dependentModule](),
		New:  func() any { return newDependentModule() },
		RequiredMembers: []registry.RequiredMember{{
			Name:         "ping",
			RequiredType: reflectTypeOf[*pingModule](),
			Set: func(owner, value any) {
				owner.(*dependentModule).ping = value.(*pingModule)
			},
		}},
	})
	registry.Register(registry.Descriptor{
		Type: reflectTypeOf[*pingModule](),
		New:  func() any { return newPingModule() },
	})

	dep, err := Add[*dependentModule](a)
	require.NoError(t, err)

	removed, err := a.RemoveModules(context.Background(), dep.ping)
	require.NoError(t, err)
	assert.False(t, removed, "removing a dependency without its dependent in the batch must be refused")
}

func TestRemoveModules_SuccessClearsAgentAndSignalers(t *testing.T) {
	a := New("test-agent", "")
	m, err := AddFactory(a, func(*Agent) (*pingModule, error) { return newPingModule(), nil })
	require.NoError(t, err)

	removed, err := a.RemoveModules(context.Background(), m)
	require.NoError(t, err)
	assert.True(t, removed)

	_, ok := m.Agent()
	assert.False(t, ok)
	_, ok = Get[*pingModule](a)
	assert.False(t, ok)
}

func TestRun_StopsOnModuleFailureWithLogAndStopModulePolicy(t *testing.T) {
	a := New("test-agent", "")
	failing := newPingModule()
	failing.runErr = assert.AnError
	_, err := AddFactory(a, func(*Agent) (*pingModule, error) { return failing, nil })
	require.NoError(t, err)
	require.NoError(t, a.Initialize(context.Background()))

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background(), supervisor.LogAndStopModule) }()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after its only module failed under LogAndStopModule")
	}
}

func TestRun_RethrowAndStopAllPropagatesTheFailure(t *testing.T) {
	a := New("test-agent", "")
	failing := newPingModule()
	failing.runErr = assert.AnError
	_, err := AddFactory(a, func(*Agent) (*pingModule, error) { return failing, nil })
	require.NoError(t, err)
	require.NoError(t, a.Initialize(context.Background()))

	done := make(chan error, 1)
	go func() { done <- a.Run(context.Background(), supervisor.RethrowAndStopAll) }()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.ErrorIs(t, err, agenterr.ErrRunPolicy)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not propagate the module failure under RethrowAndStopAll")
	}
}

func TestDispose_TransitionsToDisposedAndClearsModules(t *testing.T) {
	a := New("test-agent", "")
	_, err := AddFactory(a, func(*Agent) (*pingModule, error) { return newPingModule(), nil })
	require.NoError(t, err)
	require.NoError(t, a.Initialize(context.Background()))

	require.NoError(t, a.Dispose(context.Background()))
	assert.Equal(t, Disposed, a.State())
	assert.Empty(t, a.Modules())
}

func reflectTypeOf[T any]() reflect.Type {
	var zero T
	return reflect.TypeOf(zero)
}

// fooModule and barModule reproduce a string-reversal chain using the
// module facade, so SetSignalProcessingOrder can be exercised end-to-end
// through the agent instead of against a bare signal.Signaler.
type fooModule struct{ *module.Base }

func newFooModule() *fooModule {
	f := &fooModule{Base: module.NewBase("Foo")}
	module.InterceptAsync[string, int](f.Base, f.intercept)
	return f
}

func (f *fooModule) intercept(_ context.Context, sc *signal.SignalContext[string, int]) signal.Seq[int] {
	downstream := sc.NextWith(reverseString(sc.Value))
	out := make(chan int)
	go func() {
		defer close(out)
		for v := range downstream {
			out <- 2 * v
		}
		out <- -1
	}()
	return signal.Seq[int](out)
}

func reverseString(s string) string {
	r := []rune(s)
	for i, j := 0, len(r)-1; i < j; i, j = i+1, j-1 {
		r[i], r[j] = r[j], r[i]
	}
	return string(r)
}

type barModule struct {
	*module.Base
	saw string
}

func newBarModule() *barModule {
	b := &barModule{Base: module.NewBase("Bar")}
	module.ReceiveReturning[string, int](b.Base, func(_ context.Context, v string) (int, error) {
		b.saw = v
		return 44, nil
	})
	return b
}

type triggerModule struct{ *module.Base }

func newTriggerModule() *triggerModule { return &triggerModule{Base: module.NewBase("trigger")} }

func TestSetSignalProcessingOrder_ExercisesS1EndToEndThroughAgent(t *testing.T) {
	a := New("test-agent", "")
	// Subscribe Bar before Foo, so only an agent-level preferred order
	// (not subscription order) can put Foo ahead of Bar in the chain.
	bar, err := AddFactory(a, func(*Agent) (*barModule, error) { return newBarModule(), nil })
	require.NoError(t, err)
	foo, err := AddFactory(a, func(*Agent) (*fooModule, error) { return newFooModule(), nil })
	require.NoError(t, err)
	driver, err := AddFactory(a, func(*Agent) (*triggerModule, error) { return newTriggerModule(), nil })
	require.NoError(t, err)

	require.NoError(t, SetSignalProcessingOrder[string](a, []module.Module{foo, bar}))

	got := module.SendReturning[string, int](driver.Base, context.Background(), "!olleH")
	assert.Equal(t, []int{88, -1}, got)
	assert.Equal(t, "Hello!", bar.saw)
}

func TestSetSignalProcessingOrder_RejectedOnceDisposing(t *testing.T) {
	a := New("test-agent", "")
	require.NoError(t, a.Initialize(context.Background()))
	require.NoError(t, a.Dispose(context.Background()))

	err := SetSignalProcessingOrder[string](a, nil)
	assert.ErrorIs(t, err, agenterr.ErrInvalidState)
}

// widget is a plain non-module value resolved via a ServiceProvider, to
// exercise registry.KindService.
type widget struct{ name string }

type stubServiceProvider struct {
	values map[reflect.Type]any
}

func (p stubServiceProvider) Resolve(t reflect.Type) (any, bool) {
	v, ok := p.values[t]
	return v, ok
}

// serviceConsumerModule requires a service-kind widget and an agent-kind
// reference to its own owning Agent.
type serviceConsumerModule struct {
	*module.Base
	widget *widget
	agent  *Agent
}

func newServiceConsumerModule() *serviceConsumerModule {
	return &serviceConsumerModule{Base: module.NewBase("serviceConsumerModule")}
}

func TestResolveRequiredMembers_ServiceAndAgentDependencyKinds(t *testing.T) {
	widgetType := reflectTypeOf[*widget]()
	want := &widget{name: "svc-widget"}

	a := New("test-agent", "", WithServiceProvider(stubServiceProvider{
		values: map[reflect.Type]any{widgetType: want},
	}))

	registry.Register(registry.Descriptor{
		Type: reflectTypeOf[*serviceConsumerModule](),
		New:  func() any { return newServiceConsumerModule() },
		RequiredMembers: []registry.RequiredMember{
			{
				Name:         "widget",
				RequiredType: widgetType,
				Set:          func(owner, value any) { owner.(*serviceConsumerModule).widget = value.(*widget) },
			},
			{
				Name:         "self",
				RequiredType: reflectTypeOf[*Agent](),
				Set:          func(owner, value any) { owner.(*serviceConsumerModule).agent = value.(*Agent) },
			},
		},
		Dependencies: []registry.DependencyKind{registry.KindService, registry.KindAgent},
	})

	m, err := Add[*serviceConsumerModule](a)
	require.NoError(t, err)
	assert.Same(t, want, m.widget)
	assert.Same(t, a, m.agent)
	assert.Len(t, a.Modules(), 1, "a service-kind dependency must not be tracked as an agent module")
}

func TestResolveRequiredMembers_ServiceKindUnresolvedIsAnError(t *testing.T) {
	a := New("test-agent", "") // no ServiceProvider installed

	registry.Register(registry.Descriptor{
		Type: reflectTypeOf[*serviceConsumerModule](),
		New:  func() any { return newServiceConsumerModule() },
		RequiredMembers: []registry.RequiredMember{
			{
				Name:         "widget",
				RequiredType: reflectTypeOf[*widget](),
				Set:          func(owner, value any) { owner.(*serviceConsumerModule).widget = value.(*widget) },
			},
		},
		Dependencies: []registry.DependencyKind{registry.KindService},
	})

	_, err := Add[*serviceConsumerModule](a)
	require.Error(t, err)
	assert.ErrorIs(t, err, agenterr.ErrDependencyUnresolved)

	_, ok := Get[*serviceConsumerModule](a)
	assert.False(t, ok, "a failed insertion must roll back")
}

func TestRun_SecondConcurrentRunIsRejected(t *testing.T) {
	a := New("test-agent", "")
	_, err := AddFactory(a, func(*Agent) (*pingModule, error) { return newPingModule(), nil })
	require.NoError(t, err)
	require.NoError(t, a.Initialize(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstDone := make(chan error, 1)
	go func() { firstDone <- a.Run(ctx, supervisor.LogAndStopModule) }()

	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.runActive
	}, time.Second, time.Millisecond, "first Run must mark the agent active before the second is attempted")

	err = a.Run(context.Background(), supervisor.LogAndStopModule)
	assert.ErrorIs(t, err, agenterr.ErrInvalidState)

	cancel()
	<-firstDone
}

// fakeRecorder is a metrics.Recorder that records every call for
// assertion, used to verify the agent-level Send family instruments
// dispatch the way pkg/metrics.PrometheusRecorder would.
type fakeRecorder struct {
	mu            sync.Mutex
	dispatchCalls []string
	observeCalls  int
}

func (f *fakeRecorder) SetModuleCount(string, int) {}
func (f *fakeRecorder) IncSignalDispatch(_, signalType string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatchCalls = append(f.dispatchCalls, signalType)
}
func (f *fakeRecorder) ObserveDispatch(string, string, time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.observeCalls++
}
func (f *fakeRecorder) IncModuleInit(string, string, string) {}
func (f *fakeRecorder) IncRunRestart(string, string, string) {}
func (f *fakeRecorder) SetActiveModules(string, int)         {}

var _ metrics.Recorder = (*fakeRecorder)(nil)

func TestSend_DispatchesToSubscribersAndRecordsMetrics(t *testing.T) {
	rec := &fakeRecorder{}
	a := New("test-agent", "", WithMetricsRecorder(rec))
	bar, err := AddFactory(a, func(*Agent) (*barModule, error) { return newBarModule(), nil })
	require.NoError(t, err)

	Send[string](a, context.Background(), "ping")

	assert.Equal(t, "ping", bar.saw)
	rec.mu.Lock()
	assert.Equal(t, []string{"string"}, rec.dispatchCalls)
	assert.Equal(t, 1, rec.observeCalls)
	rec.mu.Unlock()
}

func TestSend_NoOpOnceDisposed(t *testing.T) {
	a := New("test-agent", "")
	require.NoError(t, a.Initialize(context.Background()))
	seen := make(chan string, 1)
	unsub := Observe[string](a, func(_ context.Context, v string) error {
		seen <- v
		return nil
	})
	defer unsub()
	require.NoError(t, a.Dispose(context.Background()))

	Send[string](a, context.Background(), "too-late")

	select {
	case v := <-seen:
		t.Fatalf("Send must be a no-op once the agent is Disposed, but the observer saw %q", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestSendAsync_RunsChainWithoutBlockingCaller(t *testing.T) {
	a := New("test-agent", "")
	done := make(chan string, 1)
	unsub := Observe[string](a, func(_ context.Context, v string) error {
		done <- v
		return nil
	})
	defer unsub()

	SendAsync[string](a, context.Background(), "async-hi")

	select {
	case v := <-done:
		assert.Equal(t, "async-hi", v)
	case <-time.After(time.Second):
		t.Fatal("SendAsync did not deliver to the observer in time")
	}
}

func TestSend2_BlockingCollectsResponses(t *testing.T) {
	a := New("test-agent", "")
	_, err := AddFactory(a, func(*Agent) (*barModule, error) { return newBarModule(), nil })
	require.NoError(t, err)

	got := Send2[string, int](a, context.Background(), "x", true)
	assert.Equal(t, []int{44}, got)
}

func TestSend2_NonBlockingRunsChainWithoutReturningResponses(t *testing.T) {
	a := New("test-agent", "")
	done := make(chan string, 1)
	unsub := Observe[string](a, func(_ context.Context, v string) error {
		done <- v
		return nil
	})
	defer unsub()

	got := Send2[string, int](a, context.Background(), "later", false)
	assert.Nil(t, got)

	select {
	case v := <-done:
		assert.Equal(t, "later", v)
	case <-time.After(time.Second):
		t.Fatal("Send2 with blocking=false never ran the chain")
	}
}

func TestSendAsync2_ReturnsPullableSequence(t *testing.T) {
	a := New("test-agent", "")
	_, err := AddFactory(a, func(*Agent) (*barModule, error) { return newBarModule(), nil })
	require.NoError(t, err)

	seq := SendAsync2[string, int](a, context.Background(), "pull")
	var got []int
	for v := range seq {
		got = append(got, v)
	}
	assert.Equal(t, []int{44}, got)
}

func TestObserve_ExternalSubscriberSeesDispatchedValues(t *testing.T) {
	a := New("test-agent", "")
	var mu sync.Mutex
	var seen []string
	unsub := Observe[string](a, func(_ context.Context, v string) error {
		mu.Lock()
		seen = append(seen, v)
		mu.Unlock()
		return nil
	})
	defer unsub()

	Send[string](a, context.Background(), "watched")

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"watched"}, seen)
}

func TestObserve_RejectedOnceDisposed(t *testing.T) {
	a := New("test-agent", "")
	require.NoError(t, a.Initialize(context.Background()))
	require.NoError(t, a.Dispose(context.Background()))

	unsub := Observe[string](a, func(context.Context, string) error { return nil })
	assert.NotPanics(t, func() { unsub() })
}
