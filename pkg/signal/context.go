package signal

import "context"

// Owner identifies the module a Processor belongs to, for ordering and
// removal bookkeeping. It carries no live reference to the module itself.
type Owner struct {
	ModuleID   string
	ModuleType string
}

// SignalContext is handed to an Interceptor. It carries the current signal
// value and a continuation that invokes the remainder of the chain. The
// continuation is pure: calling it does not mutate the interceptor's own
// state, and may be called zero, one, or more times.
type SignalContext[T, R any] struct {
	// Value is the signal value as it arrived at this interceptor.
	Value T

	ctx  context.Context
	cont func(context.Context, T) Seq[any]
}

// Next invokes the rest of the chain with the original value.
func (c *SignalContext[T, R]) Next() Seq[R] {
	return cast[R](c.cont(c.ctx, c.Value))
}

// NextWith invokes the rest of the chain with a replacement value.
func (c *SignalContext[T, R]) NextWith(v T) Seq[R] {
	return cast[R](c.cont(c.ctx, v))
}
