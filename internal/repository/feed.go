package repository

import (
	"context"
	"sync"
)

// Subscription delivers the latest state of one collection query.
// C holds at most one pending value; a newer state replaces an unread one.
type Subscription[T any] struct {
	C <-chan T

	ch     chan T
	load   func(context.Context) T
	mu     sync.Mutex
	closed bool
	done   chan struct{}
	remove func(*Subscription[T])
}

// Close stops delivery and closes C. It is safe to call more than once.
func (s *Subscription[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	close(s.done)
	close(s.ch)
	s.mu.Unlock()
	s.remove(s)
}

func (s *Subscription[T]) refresh(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	v := s.load(ctx)
	select {
	case <-s.ch:
	default:
	}
	s.ch <- v
}

// feed fans a collection change out to every live subscription.
type feed[T any] struct {
	mu   sync.Mutex
	subs map[*Subscription[T]]struct{}
}

func (f *feed[T]) subscribe(ctx context.Context, load func(context.Context) T) *Subscription[T] {
	ch := make(chan T, 1)
	s := &Subscription[T]{
		C:      ch,
		ch:     ch,
		load:   load,
		done:   make(chan struct{}),
		remove: f.unsubscribe,
	}

	f.mu.Lock()
	if f.subs == nil {
		f.subs = make(map[*Subscription[T]]struct{})
	}
	f.subs[s] = struct{}{}
	f.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	s.refresh(context.WithoutCancel(ctx))
	return s
}

func (f *feed[T]) unsubscribe(s *Subscription[T]) {
	f.mu.Lock()
	delete(f.subs, s)
	f.mu.Unlock()
}

// publish reloads every subscription. Reads use a context detached from the writer's cancellation.
func (f *feed[T]) publish(ctx context.Context) {
	f.mu.Lock()
	subs := make([]*Subscription[T], 0, len(f.subs))
	for s := range f.subs {
		subs = append(subs, s)
	}
	f.mu.Unlock()

	ctx = context.WithoutCancel(ctx)
	for _, s := range subs {
		s.refresh(ctx)
	}
}

func (f *feed[T]) size() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subs)
}
