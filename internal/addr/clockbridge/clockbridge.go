// Package clockbridge connects the address-space manager to whatever tracks
// happens-before between interpreter threads.
//
// The manager treats synchronization clocks as opaque data: on free it asks
// the bridge for the freeing thread's release clock, stores it with the
// pooled range, and on cross-thread reuse it hands the stored clock back for
// an acquire. The bridge is where a race detector plugs in.
//
// Two implementations ship here:
//   - Nop: race detection off; clocks are nil and every operation is free.
//   - Threads: a minimal real bridge keeping one vector clock per thread,
//     following the usual acquire/release rules. Good enough for tests,
//     examples, and embedders without a full detector.
package clockbridge

import (
	"sync"

	"github.com/kolkov/addrspace/internal/addr/vclock"
)

// Bridge supplies release clocks on free and merges clocks on reuse.
//
// Release returns a snapshot of thread t's current clock; the caller owns
// the returned value. Acquire merges c into thread t's view; a nil c is a
// no-op. Both must be safe for concurrent use.
type Bridge interface {
	Release(t vclock.ThreadID) *vclock.VClock
	Acquire(t vclock.ThreadID, c *vclock.VClock)
}

// Nop is the bridge used when race detection is disabled.
//
// Release yields nil clocks, so the reuse pool stores nothing and reuse
// carries no synchronization. The manager stays correct; only external
// race reporting loses the reuse edge.
type Nop struct{}

// Release always returns nil.
func (Nop) Release(vclock.ThreadID) *vclock.VClock { return nil }

// Acquire does nothing.
func (Nop) Acquire(vclock.ThreadID, *vclock.VClock) {}

// Threads is a self-contained bridge holding one clock per thread.
//
// Release(t) snapshots t's clock and then ticks it, so the release point is
// ordered before t's subsequent events. Acquire(t, c) joins c into t's clock
// and ticks, so everything the releaser had observed is now observed by t.
//
// Safe for concurrent use. The zero value is ready to use.
type Threads struct {
	mu     sync.Mutex
	clocks map[vclock.ThreadID]*vclock.VClock
}

// NewThreads creates an empty per-thread clock table.
func NewThreads() *Threads {
	return &Threads{clocks: make(map[vclock.ThreadID]*vclock.VClock)}
}

// Release snapshots thread t's clock and advances t past the release point.
func (b *Threads) Release(t vclock.ThreadID) *vclock.VClock {
	b.mu.Lock()
	defer b.mu.Unlock()
	c := b.clockOfLocked(t)
	snap := c.Clone()
	c.Tick(t)
	return snap
}

// Acquire merges c into thread t's view and advances t past the acquire.
func (b *Threads) Acquire(t vclock.ThreadID, c *vclock.VClock) {
	if c == nil {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	own := b.clockOfLocked(t)
	own.Join(c)
	own.Tick(t)
}

// ClockOf returns a snapshot of thread t's current clock. Test support.
func (b *Threads) ClockOf(t vclock.ThreadID) *vclock.VClock {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.clockOfLocked(t).Clone()
}

// Tick advances thread t's clock by one, modeling a local event.
func (b *Threads) Tick(t vclock.ThreadID) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.clockOfLocked(t).Tick(t)
}

// clockOfLocked returns t's clock, creating it at logical time t:1 on first
// use so every thread's very first release is already non-zero.
func (b *Threads) clockOfLocked(t vclock.ThreadID) *vclock.VClock {
	if b.clocks == nil {
		b.clocks = make(map[vclock.ThreadID]*vclock.VClock)
	}
	c, ok := b.clocks[t]
	if !ok {
		c = vclock.New()
		c.Tick(t)
		b.clocks[t] = c
	}
	return c
}
