package nkftl

import (
	"context"
	"sync"
)

// RegionLockPool gives the FTL facade and the garbage collector the
// mutual exclusion described in spec.md §4.9 and §5: one exclusive,
// FIFO-ordered lock per RegionID, acquired before any mapping/OOB
// mutation touching that region. A bare sync.Mutex per key doesn't give
// FIFO ordering in Go, so each region's lock is a small hand-rolled
// ticket queue of wakeup channels — the same "channel as a suspension
// point" idiom internal/storage/concurrency.go uses for its worker-pool
// semaphores, applied to a keyed lock instead of a counting one.
type RegionLockPool struct {
	mu    sync.Mutex
	locks map[RegionID]*regionLock
}

type regionLock struct {
	mu      sync.Mutex
	locked  bool
	waiters []chan struct{}
}

// NewRegionLockPool creates an empty pool; locks are created lazily.
func NewRegionLockPool() *RegionLockPool {
	return &RegionLockPool{locks: make(map[RegionID]*regionLock)}
}

func (p *RegionLockPool) get(region RegionID) *regionLock {
	p.mu.Lock()
	defer p.mu.Unlock()
	rl, ok := p.locks[region]
	if !ok {
		rl = &regionLock{}
		p.locks[region] = rl
	}
	return rl
}

// Acquire blocks until region's lock is held, or ctx is done first.
// spec.md §5 notes the core itself never cancels a lock wait — this
// plumbs context.Context anyway, the way flash.Device's suspending calls
// do, so a host embedding the FTL can still bound how long it waits.
// On success it returns a release function that must be called exactly
// once.
func (p *RegionLockPool) Acquire(ctx context.Context, region RegionID) (func(), error) {
	rl := p.get(region)

	rl.mu.Lock()
	if !rl.locked {
		rl.locked = true
		rl.mu.Unlock()
		return func() { p.release(rl) }, nil
	}
	ch := make(chan struct{})
	rl.waiters = append(rl.waiters, ch)
	rl.mu.Unlock()

	select {
	case <-ch:
		return func() { p.release(rl) }, nil
	case <-ctx.Done():
		rl.mu.Lock()
		for i, w := range rl.waiters {
			if w == ch {
				rl.waiters = append(rl.waiters[:i], rl.waiters[i+1:]...)
				rl.mu.Unlock()
				return nil, ctx.Err()
			}
		}
		// We lost the race: Release already popped us and handed over the
		// lock. Take it and immediately give it back to avoid leaking it.
		rl.mu.Unlock()
		p.release(rl)
		return nil, ctx.Err()
	}
}

func (p *RegionLockPool) release(rl *regionLock) {
	rl.mu.Lock()
	if len(rl.waiters) == 0 {
		rl.locked = false
		rl.mu.Unlock()
		return
	}
	next := rl.waiters[0]
	rl.waiters = rl.waiters[1:]
	rl.mu.Unlock()
	close(next)
}
