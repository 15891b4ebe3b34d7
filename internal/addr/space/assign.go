package space

import (
	"fmt"
	"unsafe"

	"github.com/kolkov/addrspace/internal/addr/handle"
	"github.com/kolkov/addrspace/internal/addr/region"
	"github.com/kolkov/addrspace/internal/addr/vclock"
)

// AddrOf returns the virtual base address of h, assigning one first if h has
// never been addressed.
//
// Assignment tries, in order: the native mirror when configured, an exact
// match from the reuse pool (acquiring the releaser's clock on cross-thread
// handover), and finally a fresh cut from the region cursor selected by
// kind. The chosen address is recorded in both maps before returning, so the
// same handle always answers with the same address afterwards.
func (m *Manager) AddrOf(h handle.Handle, kind region.Kind, t vclock.ThreadID) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if paddr, ok := m.forward[h]; ok {
		return m.virtualLocked(paddr), nil
	}
	if !m.opts.Oracle.Live(h) {
		panic(fmt.Sprintf("addrspace: address assignment for dead %v", h))
	}

	vaddr, err := m.freshLocked(h, kind, t)
	if err != nil {
		return 0, err
	}
	// Cursor regions must translate: a page table that does not direct-map
	// them is an embedder misconfiguration, reported on the first address
	// it swallows.
	paddr, ok := m.physicalLocked(vaddr)
	if !ok {
		return 0, fmt.Errorf("fresh address %#x: %w", vaddr, ErrNoMapping)
	}
	m.setAddressLocked(h, paddr)
	m.stats.Assigned++
	return vaddr, nil
}

// setAddressLocked records h's physical base in both maps. Both maps are
// keyed by physical addresses: resolution probes arrive walked, and
// synthesized allocations live at frames only their window maps, so the
// physical base is the one stable name for an allocation.
func (m *Manager) setAddressLocked(h handle.Handle, paddr uint64) {
	m.forward[h] = paddr
	m.reverse.Insert(paddr, h)
}

// freshLocked picks a never-before-used (or pooled) virtual address for h.
func (m *Manager) freshLocked(h handle.Handle, kind region.Kind, t vclock.ThreadID) (uint64, error) {
	if m.opts.Native != nil {
		return m.nativeLocked(h)
	}

	layout, _, ok := m.opts.Oracle.Info(h)
	if !ok {
		panic(fmt.Sprintf("addrspace: no layout for %v", h))
	}

	if addr, clock, ok := m.pool.Take(m.rng, layout, kind, t); ok {
		if clock != nil {
			m.opts.Clocks.Acquire(t, clock)
		}
		m.stats.Reused++
		return addr, nil
	}

	if kind == region.Stack {
		return m.stackLocked(layout, t)
	}
	return m.cursorLocked(h, layout, kind)
}

// stackLocked cuts a stack slot for the calling thread: subtract the size,
// round down to the alignment, check the floor, move the top.
func (m *Manager) stackLocked(layout handle.Layout, t vclock.ThreadID) (uint64, error) {
	ts := m.threadLocked(t)

	size := max(layout.Size, 1)
	if size > ts.stackTop {
		return 0, fmt.Errorf("%w: stack of thread %d", ErrAddressSpaceExhausted, t)
	}
	base := region.AlignDown(ts.stackTop-size, layout.Align)
	if base < ts.stackFloor {
		return 0, fmt.Errorf("%w: stack of thread %d", ErrAddressSpaceExhausted, t)
	}
	ts.stackTop = base
	return base, nil
}

// cursorLocked bumps the heap or CPU-local cursor: random slack below 16
// bytes, round up to the alignment, fit against the region limit, advance
// past the allocation. Region limits never exceed the address width
// (region.Layout.Validate), so fitting the limit fits the address space.
func (m *Manager) cursorLocked(h handle.Handle, layout handle.Layout, kind region.Kind) (uint64, error) {
	cursor := &m.heapCursor
	limit := m.layout.HeapLimit
	_, marked := m.cpuLocal[h]
	if marked || kind == region.CPULocal {
		cursor = &m.cpuCursor
		limit = m.layout.CPULimit
	} else if kind == region.Kernel {
		panic("addrspace: kernel region has no allocation cursor")
	}

	slack := uint64(m.rng.IntN(16))
	base := *cursor + slack
	if base < *cursor {
		return 0, fmt.Errorf("%w: %v region", ErrAddressSpaceExhausted, kind)
	}
	base = region.AlignUp(base, layout.Align)
	if base >= limit {
		return 0, fmt.Errorf("%w: %v region", ErrAddressSpaceExhausted, kind)
	}
	next := base + max(layout.Size, 1)
	if next < base || next > limit {
		return 0, fmt.Errorf("%w: %v region", ErrAddressSpaceExhausted, kind)
	}
	*cursor = next
	return base, nil
}

// nativeLocked mirrors native addressing: the simulated address of an
// allocation is the real address of its backing bytes. Allocations without
// backing bytes yet get host memory up front; the bytes wait in the prepared
// set until the embedder claims them with TakePrepared. Functions and
// vtables have no bytes and get one-byte placeholders, which guarantees the
// distinct-address rule that code addresses rely on.
func (m *Manager) nativeLocked(h handle.Handle) (uint64, error) {
	layout, kind, ok := m.opts.Oracle.Info(h)
	if !ok {
		panic(fmt.Sprintf("addrspace: no layout for %v", h))
	}

	if kind != handle.Data {
		_, addr, err := m.opts.Native.Alloc(1, 1)
		return addr, err
	}
	if b, ok := m.opts.Backing.NativeBytes(h); ok {
		return uint64(uintptr(unsafe.Pointer(&b[0]))), nil
	}
	b, addr, err := m.opts.Native.Alloc(max(layout.Size, 1), layout.Align)
	if err != nil {
		return 0, err
	}
	m.prepared[h] = b
	return addr, nil
}
