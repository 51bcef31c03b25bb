package agent

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/signalkit/agentrt/pkg/signal"
)

// signalerFor returns a's Signaler[T], creating it on first touch.
func signalerFor[T any](a *Agent) *signal.Signaler[T] {
	t := typeOf[T]()
	raw := a.SignalerFor(t, func() any { return signal.NewSignaler[T](t.String()) })
	return raw.(*signal.Signaler[T])
}

// startDispatch records the dispatch counter immediately and returns a
// function that records the chain-walk latency when the dispatch
// completes.
func (a *Agent) startDispatch(signalType string) func() {
	a.metrics.IncSignalDispatch(a.Name, signalType)
	start := time.Now()
	return func() { a.metrics.ObserveDispatch(a.Name, signalType, time.Since(start)) }
}

// Send dispatches a signal of type T to a's chain, discarding any
// responses, and blocks until the full chain has run. It is a no-op once
// the agent is Disposed.
func Send[T any](a *Agent, ctx context.Context, v T) {
	if a.State() == Disposed {
		return
	}
	t := typeOf[T]()
	s := signalerFor[T](a)
	stop := a.startDispatch(t.String())
	defer stop()
	signal.Drain(ctx, signal.Send[T, T](ctx, s, v))
}

// SendAsync dispatches a signal of type T without waiting for the chain to
// finish; the chain runs on its own goroutine. It is a no-op once the
// agent is Disposed.
func SendAsync[T any](a *Agent, ctx context.Context, v T) {
	if a.State() == Disposed {
		return
	}
	go Send[T](a, ctx, v)
}

// Send2 dispatches a signal of type T and collects responses of type R. If
// blocking is true, it waits for the full chain and returns every
// response; if false, the chain still runs to completion but on its own
// goroutine, and Send2 returns immediately with a nil slice. It is a no-op
// once the agent is Disposed.
func Send2[T, R any](a *Agent, ctx context.Context, v T, blocking bool) []R {
	if a.State() == Disposed {
		return nil
	}
	if !blocking {
		go Send2[T, R](a, ctx, v, true)
		return nil
	}
	t := typeOf[T]()
	s := signalerFor[T](a)
	stop := a.startDispatch(t.String())
	defer stop()
	return signal.SendBlocking[T, R](ctx, s, v)
}

// SendAsync2 dispatches a signal of type T and returns the lazy sequence of
// responses of type R directly, without draining it: the caller pulls
// values at its own pace, and the chain suspends between pulls. It returns
// a closed, empty sequence once the agent is Disposed.
func SendAsync2[T, R any](a *Agent, ctx context.Context, v T) signal.Seq[R] {
	if a.State() == Disposed {
		return signal.Empty[R]()
	}
	t := typeOf[T]()
	s := signalerFor[T](a)
	stop := a.startDispatch(t.String())
	seq := signal.Send[T, R](ctx, s, v)
	out := make(chan R)
	go func() {
		defer close(out)
		defer stop()
		for r := range seq {
			out <- r
		}
	}()
	return signal.Seq[R](out)
}

// Observe subscribes fn as an external, non-module observer of signal type
// T: it is invoked for every dispatched value but never contributes a
// response. Unlike a module's subscription, it needs no owning module and
// takes effect immediately. It is rejected (a no-op unsubscribe) once the
// agent starts disposing.
func Observe[T any](a *Agent, fn func(context.Context, T) error) (unsubscribe func()) {
	if st := a.State(); st == Disposing || st == Disposed {
		return func() {}
	}
	owner := signal.Owner{ModuleID: "external:" + uuid.NewString(), ModuleType: "external-observer"}
	s := signalerFor[T](a)
	return s.Subscribe(signal.NewObserver[T](owner, fn))
}
