package module

import (
	"context"
	"reflect"
	"sync"

	"github.com/signalkit/agentrt/pkg/signal"
)

// subHandle implements the proxy-unsubscribe-handle design note: callers
// may dispose of a subscription before the owning module has an agent
// (and hence before a real signal.Signaler subscription exists). The
// handle remembers the cancellation and either skips the deferred
// subscribe entirely, or forwards to the real unsubscribe once one
// exists.
type subHandle struct {
	mu        sync.Mutex
	cancelled bool
	real      func()
}

func (h *subHandle) setReal(f func()) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.real = f
}

// Unsubscribe cancels the subscription, whether or not it has become real
// yet.
func (h *subHandle) Unsubscribe() {
	h.mu.Lock()
	if h.real != nil {
		f := h.real
		h.mu.Unlock()
		f()
		return
	}
	h.cancelled = true
	h.mu.Unlock()
}

func (h *subHandle) isCancelled() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.cancelled
}

func typeOf[T any]() reflect.Type {
	var zero T
	return reflect.TypeOf(&zero).Elem()
}

func signalerFor[T any](a AgentHandle) *signal.Signaler[T] {
	t := typeOf[T]()
	raw := a.SignalerFor(t, func() any { return signal.NewSignaler[T](t.String()) })
	return raw.(*signal.Signaler[T])
}

func subscribe[T any](b *Base, p signal.Processor[T]) func() {
	h := &subHandle{}
	b.withAgent(func(a AgentHandle) {
		if h.isCancelled() {
			return
		}
		s := signalerFor[T](a)
		h.setReal(s.Subscribe(p))
	})
	return h.Unsubscribe
}

func owner(b *Base) Owner { return Owner{ModuleID: b.ModuleID(), ModuleType: b.ModuleTypeName()} }

// Owner re-exports signal.Owner so module-facing call sites never need to
// import the signal package directly just to build one.
type Owner = signal.Owner

// Receive subscribes fn as a synchronous, response-less receiver of
// signal type T.
func Receive[T any](b *Base, fn func(context.Context, T) error) func() {
	return subscribe(b, signal.NewReceiverVoid[T](owner(b), fn))
}

// ReceiveReturning subscribes fn as a synchronous receiver that also
// contributes a response of type R.
func ReceiveReturning[T, R any](b *Base, fn func(context.Context, T) (R, error)) func() {
	return subscribe(b, signal.NewReceiverReturning[T, R](owner(b), fn))
}

// ReceiveAsync subscribes the asynchronous counterpart of Receive.
func ReceiveAsync[T any](b *Base, fn func(context.Context, T) error) func() {
	return subscribe(b, signal.NewAsyncReceiverVoid[T](owner(b), fn))
}

// ReceiveReturningAsync subscribes the asynchronous counterpart of
// ReceiveReturning.
func ReceiveReturningAsync[T, R any](b *Base, fn func(context.Context, T) (R, error)) func() {
	return subscribe(b, signal.NewAsyncReceiverReturning[T, R](owner(b), fn))
}

// Observe subscribes fn as a push-style observer of signal type T; it
// never contributes to the response sequence.
func Observe[T any](b *Base, fn func(context.Context, T) error) func() {
	return subscribe(b, signal.NewObserver[T](owner(b), fn))
}

// InterceptAsync subscribes fn as an interceptor controlling whether and
// with what value the chain continues, producing responses of type R.
func InterceptAsync[T, R any](b *Base, fn func(context.Context, *signal.SignalContext[T, R]) signal.Seq[R]) func() {
	return subscribe(b, signal.NewInterceptor[T, R](owner(b), fn))
}

// Send forwards a signal of type T to the owning agent, discarding any
// response (R defaults to T so a no-processor signaler still type-checks).
func Send[T any](b *Base, ctx context.Context, v T) {
	b.withAgent(func(a AgentHandle) {
		s := signalerFor[T](a)
		_ = signal.Drain(ctx, signal.Send[T, T](ctx, s, v))
	})
}

// SendReturning forwards a signal of type T and collects responses of
// type R.
func SendReturning[T, R any](b *Base, ctx context.Context, v T) []R {
	a, ok := b.Agent()
	if !ok {
		return nil
	}
	s := signalerFor[T](a)
	return signal.SendBlocking[T, R](ctx, s, v)
}

// GetModuleOrDefault returns the sibling module of type T, if the owning
// agent currently has one.
func GetModuleOrDefault[T Module](b *Base) (T, bool) {
	var zero T
	a, ok := b.Agent()
	if !ok {
		return zero, false
	}
	m, ok := a.ModuleOfType(reflect.TypeOf(zero))
	if !ok {
		return zero, false
	}
	t, ok := m.(T)
	return t, ok
}
