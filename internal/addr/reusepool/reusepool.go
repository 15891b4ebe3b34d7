// Package reusepool keeps freed address ranges around for reassignment.
//
// Real allocators hand addresses back out after a free, and programs notice:
// pointer equality across malloc/free/malloc pairs, address-keyed hash maps,
// ABA patterns. The pool makes the simulated address space behave the same
// way, probabilistically, while keeping the reuse safe for an external race
// detector: each pooled range carries the freeing thread's release clock, and
// a cross-thread take returns that clock so the caller can establish
// happens-before with the free before anything touches the address.
//
// Structure mirrors the allocation keying: one bounded subpool per
// (region kind, alignment class), entries sorted by (size, freeing thread).
// Only exact size matches are handed out; a range never satisfies a request
// with different size or stricter alignment than it was freed with.
//
// Pool is not safe for concurrent use; the owning manager serializes access.
package reusepool

import (
	"sort"

	"github.com/kolkov/addrspace/internal/addr/handle"
	"github.com/kolkov/addrspace/internal/addr/region"
	"github.com/kolkov/addrspace/internal/addr/rng"
	"github.com/kolkov/addrspace/internal/addr/vclock"
)

// maxSubpool bounds each subpool. A full subpool evicts in place rather than
// growing; address reuse is best-effort, not a guarantee.
const maxSubpool = 64

// Options configures pooling probabilities.
//
// Rate is the chance a freed range is remembered and the chance a request
// attempts reuse. CrossThreadRate is the chance a reuse attempt may take a
// range freed by a different thread, which is rarer because it forces
// synchronization with the freeing thread. Zero rates disable the behavior.
type Options struct {
	Rate            float64
	CrossThreadRate float64
}

// DefaultOptions returns the production pooling probabilities.
func DefaultOptions() Options {
	return Options{
		Rate:            0.5,
		CrossThreadRate: 0.1,
	}
}

// Stats counts pool activity.
type Stats struct {
	Added   uint64 // Ranges remembered.
	Evicted uint64 // Ranges overwritten because a subpool was full.
	Taken   uint64 // Ranges handed back out.
	Size    int    // Ranges currently pooled.
}

type entry struct {
	addr   uint64
	size   uint64
	thread vclock.ThreadID
	clock  *vclock.VClock
}

type subpoolKey struct {
	kind  region.Kind
	align uint8 // log2 of the alignment
}

// Pool is the freed-range store.
type Pool struct {
	opts  Options
	pools map[subpoolKey][]entry
	stats Stats
}

// New creates an empty pool with the given probabilities.
func New(opts Options) *Pool {
	return &Pool{
		opts:  opts,
		pools: make(map[subpoolKey][]entry),
	}
}

// Add offers a freed range to the pool.
//
// Stack ranges are never pooled: there are many of them and reusing one
// across threads would force synchronization edges no real program has.
// Otherwise the range is remembered with probability Rate.
//
// clockFn produces the freeing thread's release clock and runs only if the
// range is actually remembered, so disabled race detection pays nothing.
// A nil result is stored as-is and simply yields no clock on reuse.
func (p *Pool) Add(r rng.Rand, addr uint64, layout handle.Layout, kind region.Kind, thread vclock.ThreadID, clockFn func() *vclock.VClock) {
	if kind == region.Stack || r.Float64() >= p.opts.Rate {
		return
	}
	clock := clockFn()

	key := subpoolKey{kind: kind, align: region.AlignClass(layout.Align)}
	sub := p.pools[key]
	pos := sort.Search(len(sub), func(i int) bool {
		if sub[i].size != layout.Size {
			return sub[i].size > layout.Size
		}
		return sub[i].thread >= thread
	})

	e := entry{addr: addr, size: layout.Size, thread: thread, clock: clock}
	if len(sub) >= maxSubpool {
		// Full: overwrite the entry at the insertion point, or the last one
		// if the new entry would sort past the end.
		clamped := pos
		if clamped > len(sub)-1 {
			clamped = len(sub) - 1
		}
		sub[clamped] = e
		p.stats.Evicted++
		p.stats.Added++
		return
	}
	sub = append(sub, entry{})
	copy(sub[pos+1:], sub[pos:])
	sub[pos] = e
	p.pools[key] = sub
	p.stats.Added++
	p.stats.Size++
}

// Take attempts to reuse a pooled range for a new allocation.
//
// The attempt itself happens with probability Rate; within an attempt,
// cross-thread ranges are eligible with probability CrossThreadRate. Only
// ranges with exactly the requested size, alignment class, and region kind
// qualify; among those, one is picked uniformly and removed.
//
// The returned clock is non-nil only when the range was freed by a different
// thread and race detection recorded a clock; the caller must merge it into
// the requesting thread's view before the address is handed out. Same-thread
// reuse needs no synchronization.
func (p *Pool) Take(r rng.Rand, layout handle.Layout, kind region.Kind, thread vclock.ThreadID) (uint64, *vclock.VClock, bool) {
	if kind == region.Stack || r.Float64() >= p.opts.Rate {
		return 0, nil, false
	}
	crossThread := r.Float64() < p.opts.CrossThreadRate

	key := subpoolKey{kind: kind, align: region.AlignClass(layout.Align)}
	sub := p.pools[key]

	// Find the run of candidate entries: all have the requested size, and
	// without cross-thread reuse, the requesting thread as well. Entries are
	// sorted by (size, thread), so the run is contiguous.
	begin := sort.Search(len(sub), func(i int) bool {
		if sub[i].size != layout.Size {
			return sub[i].size > layout.Size
		}
		return crossThread || sub[i].thread >= thread
	})
	end := begin
	for end < len(sub) {
		if sub[end].size != layout.Size {
			break
		}
		if !crossThread && sub[end].thread != thread {
			break
		}
		end++
	}
	if end == begin {
		return 0, nil, false
	}

	idx := begin + r.IntN(end-begin)
	chosen := sub[idx]
	p.pools[key] = append(sub[:idx], sub[idx+1:]...)
	p.stats.Taken++
	p.stats.Size--

	if chosen.thread == thread {
		// No synchronization needed when reusing from the current thread.
		return chosen.addr, nil, true
	}
	return chosen.addr, chosen.clock, true
}

// Stats returns a copy of the activity counters.
func (p *Pool) Stats() Stats {
	return p.stats
}
