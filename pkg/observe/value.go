// Package observe provides Value, a single-writer observable that replays
// its latest state to every new subscriber.
package observe

import (
	"context"
	"sync"
)

// Value holds a state of type T. Subscribers receive the current value on
// subscription and then every change. A slow subscriber only ever sees the
// latest value: intermediate states are dropped, never queued.
type Value[T comparable] struct {
	mu   sync.Mutex
	cur  T
	subs map[chan T]struct{}
}

// New creates a Value holding initial.
func New[T comparable](initial T) *Value[T] {
	return &Value[T]{
		cur:  initial,
		subs: make(map[chan T]struct{}),
	}
}

// Get returns the current value.
func (v *Value[T]) Get() T {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cur
}

// Set publishes next and reports whether it differed from the current value.
// Equal values are not republished.
func (v *Value[T]) Set(next T) bool {
	v.mu.Lock()
	defer v.mu.Unlock()

	if next == v.cur {
		return false
	}
	v.cur = next
	for ch := range v.subs {
		offer(ch, next)
	}
	return true
}

// Subscribe returns a channel fed with the current value and later changes.
// The channel is closed when ctx is done.
func (v *Value[T]) Subscribe(ctx context.Context) <-chan T {
	ch := make(chan T, 1)

	v.mu.Lock()
	ch <- v.cur
	v.subs[ch] = struct{}{}
	v.mu.Unlock()

	go func() {
		<-ctx.Done()
		v.mu.Lock()
		delete(v.subs, ch)
		close(ch)
		v.mu.Unlock()
	}()

	return ch
}

// offer replaces any unread value in ch with val.
func offer[T any](ch chan T, val T) {
	for {
		select {
		case ch <- val:
			return
		default:
		}
		select {
		case <-ch:
		default:
		}
	}
}
