// Package pool wraps sync.Pool with a typed API.
package pool

import "sync"

// Pool hands out reusable values of type T.
type Pool[T any] struct {
	internal sync.Pool
	reset    func(T)
}

// New creates a Pool. reset, if not nil, runs on every value handed back to
// Put so Get never returns stale state.
func New[T any](newFn func() T, reset func(T)) *Pool[T] {
	return &Pool[T]{
		internal: sync.Pool{
			New: func() any { return newFn() },
		},
		reset: reset,
	}
}

// Get retrieves a value, creating one if the pool is empty.
func (p *Pool[T]) Get() T {
	return p.internal.Get().(T)
}

// Put resets item and returns it to the pool.
func (p *Pool[T]) Put(item T) {
	if p.reset != nil {
		p.reset(item)
	}
	p.internal.Put(item)
}
