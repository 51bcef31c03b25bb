package signal

import (
	"context"

	"github.com/signalkit/agentrt/pkg/logx"
)

// Processor is one element of a Signaler's dispatch chain: an observer,
// receiver, or interceptor. Every variant is represented uniformly as a
// run closure so a Signaler[T] can hold them in a single slice regardless
// of each processor's own declared response type.
type Processor[T any] struct {
	Owner Owner
	run   func(ctx context.Context, v T, next func(context.Context, T) Seq[any]) Seq[any]

	// id is assigned by Signaler.Subscribe and used to remove exactly
	// this subscription later; zero until subscribed.
	id uint64
}

// chainLog reports a processor error at error level, tagged with domain;
// the chain continues regardless.
func chainLog(domain, format string, args ...any) {
	logx.NewLogger(domain).Error(format, args...)
}

// NewObserver wraps a push-style observer: it is notified of every value
// but never contributes to the response sequence. A returned error is
// logged and otherwise ignored; the chain always continues.
func NewObserver[T any](owner Owner, fn func(context.Context, T) error) Processor[T] {
	return Processor[T]{
		Owner: owner,
		run: func(ctx context.Context, v T, next func(context.Context, T) Seq[any]) Seq[any] {
			if err := fn(ctx, v); err != nil {
				chainLog("signal", "observer %s error: %v", owner.ModuleType, err)
			}
			return next(ctx, v)
		},
	}
}

// NewReceiverVoid wraps a synchronous receiver with no response value.
func NewReceiverVoid[T any](owner Owner, fn func(context.Context, T) error) Processor[T] {
	return Processor[T]{
		Owner: owner,
		run: func(ctx context.Context, v T, next func(context.Context, T) Seq[any]) Seq[any] {
			if err := fn(ctx, v); err != nil {
				chainLog("signal", "receiver %s error: %v", owner.ModuleType, err)
			}
			return next(ctx, v)
		},
	}
}

// NewReceiverReturning wraps a synchronous receiver that produces a
// response of type R, concatenated ahead of the rest of the chain.
func NewReceiverReturning[T, R any](owner Owner, fn func(context.Context, T) (R, error)) Processor[T] {
	return Processor[T]{
		Owner: owner,
		run: func(ctx context.Context, v T, next func(context.Context, T) Seq[any]) Seq[any] {
			r, err := fn(ctx, v)
			tail := next(ctx, v)
			if err != nil {
				chainLog("signal", "receiver %s error: %v", owner.ModuleType, err)
				return tail
			}
			return Prepend[any](r, tail)
		},
	}
}

// NewAsyncReceiverVoid wraps the asynchronous counterpart of
// NewReceiverVoid: the receiver is awaited before any downstream item is
// produced.
func NewAsyncReceiverVoid[T any](owner Owner, fn func(context.Context, T) error) Processor[T] {
	return NewReceiverVoid(owner, fn)
}

// NewAsyncReceiverReturning wraps the asynchronous counterpart of
// NewReceiverReturning.
func NewAsyncReceiverReturning[T, R any](owner Owner, fn func(context.Context, T) (R, error)) Processor[T] {
	return NewReceiverReturning(owner, fn)
}

// NewInterceptor wraps an interceptor: it receives a SignalContext and
// returns a lazy sequence of R. Not calling ctx.Next() suppresses the
// remainder of the chain; calling it more than once concatenates the
// resulting tail sequences.
func NewInterceptor[T, R any](owner Owner, fn func(context.Context, *SignalContext[T, R]) Seq[R]) Processor[T] {
	return Processor[T]{
		Owner: owner,
		run: func(ctx context.Context, v T, next func(context.Context, T) Seq[any]) Seq[any] {
			sc := &SignalContext[T, R]{Value: v, ctx: ctx, cont: next}
			return box(fn(ctx, sc))
		},
	}
}

// chain walks procs starting at index i, returning the boxed sequence of
// responses produced by the remainder of the chain.
func chain[T any](ctx context.Context, procs []Processor[T], i int, v T) Seq[any] {
	if i >= len(procs) {
		return Empty[any]()
	}
	next := func(ctx context.Context, v2 T) Seq[any] {
		return chain(ctx, procs, i+1, v2)
	}
	return procs[i].run(ctx, v, next)
}
