package signal

import (
	"context"
	"sync"
)

// Signaler is the per-signal-type ordered chain of Processors for a single
// value type T. Its two arrays (processors, preferred order) are
// copy-on-write: mutated only under mu, read lock-free via a snapshot.
type Signaler[T any] struct {
	TypeName string

	mu         sync.Mutex
	processors []Processor[T]
	preferred  []string // module IDs, in preferred order
	nextID     uint64
}

// NewSignaler constructs an empty Signaler for signal type typeName (a
// display name, e.g. the Go type's String()).
func NewSignaler[T any](typeName string) *Signaler[T] {
	return &Signaler[T]{TypeName: typeName}
}

// snapshot returns the current processor array without locking beyond the
// swap read; callers must treat the returned slice as immutable.
func (s *Signaler[T]) snapshot() []Processor[T] {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processors
}

// Subscribe appends p to the chain and recomputes ordering if p's owner is
// part of the preferred order. It returns an unsubscribe function that
// removes p from the chain (copy-on-write) when called.
func (s *Signaler[T]) Subscribe(p Processor[T]) (unsubscribe func()) {
	s.mu.Lock()
	s.nextID++
	p.id = s.nextID
	id := p.id
	next := append(append([]Processor[T]{}, s.processors...), p)
	s.processors = s.reorder(next)
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		out := make([]Processor[T], 0, len(s.processors))
		for _, existing := range s.processors {
			if existing.id != id {
				out = append(out, existing)
			}
		}
		s.processors = out
	}
}

// SetPreferredOrder declares the relative order of the named module IDs.
// Processors whose owner is in this list appear first, in this order;
// remaining processors keep subscription-insertion order.
func (s *Signaler[T]) SetPreferredOrder(moduleIDs []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.preferred = append([]string{}, moduleIDs...)
	s.processors = s.reorder(s.processors)
}

// RemoveOwner removes every processor belonging to moduleID and strips it
// from the preferred-order array too (used when a module is removed from
// the agent).
func (s *Signaler[T]) RemoveOwner(moduleID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Processor[T], 0, len(s.processors))
	for _, p := range s.processors {
		if p.Owner.ModuleID != moduleID {
			out = append(out, p)
		}
	}
	s.processors = out

	preferred := make([]string, 0, len(s.preferred))
	for _, id := range s.preferred {
		if id != moduleID {
			preferred = append(preferred, id)
		}
	}
	s.preferred = preferred
}

// reorder must be called with mu held. It stably partitions procs into
// preferred-order processors (in preferred's relative order, ties broken
// by subscription order) followed by the rest in subscription order.
func (s *Signaler[T]) reorder(procs []Processor[T]) []Processor[T] {
	if len(s.preferred) == 0 {
		return procs
	}
	rank := make(map[string]int, len(s.preferred))
	for i, id := range s.preferred {
		rank[id] = i
	}
	const unranked = -1
	indexed := make([]struct {
		p    Processor[T]
		rank int
		seq  int
	}, len(procs))
	for i, p := range procs {
		r, ok := rank[p.Owner.ModuleID]
		if !ok {
			r = len(s.preferred) // after every preferred module
		}
		indexed[i] = struct {
			p    Processor[T]
			rank int
			seq  int
		}{p, r, i}
	}
	// Stable sort by (rank, seq): unranked entries share rank
	// len(preferred) and keep relative order via seq.
	out := make([]Processor[T], len(indexed))
	copy(out, procs)
	for i := 1; i < len(indexed); i++ {
		j := i
		for j > 0 && less(indexed[j], indexed[j-1]) {
			indexed[j], indexed[j-1] = indexed[j-1], indexed[j]
			j--
		}
	}
	for i, e := range indexed {
		out[i] = e.p
	}
	_ = unranked
	return out
}

func less[T any](a, b struct {
	p    Processor[T]
	rank int
	seq  int
}) bool {
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	return a.seq < b.seq
}

// Send dispatches v through s, returning the lazy sequence of responses of
// type R. If s has no processors and R is assignable from T, the value is
// returned as its own single response; otherwise an empty sequence.
func Send[T, R any](ctx context.Context, s *Signaler[T], v T) Seq[R] {
	procs := s.snapshot()
	if len(procs) == 0 {
		if rv, ok := any(v).(R); ok {
			return Single(rv)
		}
		return Empty[R]()
	}
	return cast[R](chain(ctx, procs, 0, v))
}

// SendBlocking drains Send's sequence on the caller's goroutine.
func SendBlocking[T, R any](ctx context.Context, s *Signaler[T], v T) []R {
	return Drain(ctx, Send[T, R](ctx, s, v))
}
