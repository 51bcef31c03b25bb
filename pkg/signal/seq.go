// Package signal implements the per-signal-type dispatch chain: ordered
// Processors, the SignalContext handed to interceptors, and the lazy
// asynchronous response sequence that Send produces.
package signal

import "context"

// Seq is a lazy asynchronous sequence of values. Producers close the
// channel once exhausted; consumers range over it or call Drain.
type Seq[R any] <-chan R

// Empty returns an already-closed sequence.
func Empty[R any]() Seq[R] {
	ch := make(chan R)
	close(ch)
	return ch
}

// Single returns a sequence yielding exactly v.
func Single[R any](v R) Seq[R] {
	ch := make(chan R, 1)
	ch <- v
	close(ch)
	return ch
}

// Prepend returns a sequence yielding v, then every item of tail.
func Prepend[R any](v R, tail Seq[R]) Seq[R] {
	out := make(chan R)
	go func() {
		defer close(out)
		out <- v
		for item := range tail {
			out <- item
		}
	}()
	return out
}

// Concat drains each sequence in order into a single output sequence.
func Concat[R any](ctx context.Context, seqs ...Seq[R]) Seq[R] {
	out := make(chan R)
	go func() {
		defer close(out)
		for _, s := range seqs {
			for v := range s {
				select {
				case out <- v:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

// Drain collects every item of s into a slice, blocking until s closes or
// ctx is cancelled.
func Drain[R any](ctx context.Context, s Seq[R]) []R {
	var out []R
	for {
		select {
		case v, ok := <-s:
			if !ok {
				return out
			}
			out = append(out, v)
		case <-ctx.Done():
			return out
		}
	}
}

// box converts a typed sequence into a boxed any-sequence.
func box[R any](s Seq[R]) Seq[any] {
	out := make(chan any)
	go func() {
		defer close(out)
		for v := range s {
			out <- v
		}
	}()
	return out
}

// cast converts a boxed any-sequence into a typed sequence, silently
// dropping items whose dynamic type does not assign to R.
func cast[R any](s Seq[any]) Seq[R] {
	out := make(chan R)
	go func() {
		defer close(out)
		for v := range s {
			if rv, ok := v.(R); ok {
				out <- rv
			}
		}
	}()
	return out
}
