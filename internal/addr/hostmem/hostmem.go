// Package hostmem allocates real, pinned host memory for mirrored-address
// mode.
//
// When the interpreter must interoperate with native code, simulated
// addresses are not good enough: the program under interpretation and the
// native side have to agree on what every address means. In that mode the
// manager assigns each allocation the address of actual host bytes obtained
// here, so both worlds share one view of memory.
//
// Memory comes from private anonymous mappings carved into slabs and bump
// allocated, like an arena. Nothing is individually freed; Close drops the
// whole pool. Addresses handed out stay stable for the pool's lifetime,
// which is exactly the property mirrored addressing needs.
package hostmem

import (
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/kolkov/addrspace/internal/addr/region"
)

// slabSize is the default reservation unit. Oversized requests get a
// dedicated slab instead.
const slabSize = 1 << 20

// ErrClosed is returned by Alloc after Close.
var ErrClosed = errors.New("hostmem: pool is closed")

// Pool is a bump allocator over private anonymous mappings.
//
// Safe for concurrent use.
type Pool struct {
	mu        sync.Mutex
	slabs     [][]byte
	cur       []byte
	off       uint64
	allocated uint64
	closed    bool
}

// New creates an empty pool. No memory is reserved until the first Alloc.
func New() *Pool {
	return &Pool{}
}

// Alloc returns size bytes of zeroed host memory aligned to align, plus the
// numeric address of the first byte.
//
// size 0 is bumped to 1 so every allocation has a unique address. align 0
// is treated as 1.
func (p *Pool) Alloc(size, align uint64) ([]byte, uint64, error) {
	if size == 0 {
		size = 1
	}
	if align == 0 {
		align = 1
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, 0, ErrClosed
	}

	need := size + align // worst case including alignment waste
	if p.cur == nil || p.off+need > uint64(len(p.cur)) {
		n := uint64(slabSize)
		if need > n {
			n = region.AlignUp(need, slabSize)
		}
		slab, err := mapSlab(int(n))
		if err != nil {
			return nil, 0, fmt.Errorf("hostmem: cannot reserve %d-byte slab: %w", n, err)
		}
		p.slabs = append(p.slabs, slab)
		p.cur = slab
		p.off = 0
	}

	base := uint64(uintptr(unsafe.Pointer(&p.cur[0])))
	aligned := region.AlignUp(base+p.off, align)
	start := aligned - base
	block := p.cur[start : start+size : start+size]
	p.off = start + size
	p.allocated += size
	return block, aligned, nil
}

// Allocated returns the total bytes handed out so far.
func (p *Pool) Allocated() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.allocated
}

// Close releases every slab. Outstanding blocks become invalid; subsequent
// Alloc calls fail with ErrClosed.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	var firstErr error
	for _, slab := range p.slabs {
		if err := unmapSlab(slab); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	p.slabs = nil
	p.cur = nil
	return firstErr
}
