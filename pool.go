package gutter

import (
	"context"
	"runtime"

	"golang.org/x/sync/semaphore"
)

// Pool bounds the number of recomputations and poll cycles running at once
// across all controllers. It satisfies baseline.Locker.
type Pool struct {
	sem  *semaphore.Weighted
	size int
}

// NewPool returns a pool with the given number of slots. A non-positive
// size means GOMAXPROCS.
func NewPool(size int) *Pool {
	if size <= 0 {
		size = runtime.GOMAXPROCS(0)
	}
	return &Pool{sem: semaphore.NewWeighted(int64(size)), size: size}
}

// Size returns the number of slots.
func (p *Pool) Size() int { return p.size }

// Lock acquires a slot, blocking until one is free or ctx is done.
func (p *Pool) Lock(ctx context.Context) error {
	return p.sem.Acquire(ctx, 1)
}

// Unlock releases a slot.
func (p *Pool) Unlock() {
	p.sem.Release(1)
}
