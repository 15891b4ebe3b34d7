// Package region defines the address-space geometry: which disjoint interval
// each allocation class lives in, and the alignment arithmetic shared by the
// allocators.
package region

import (
	"fmt"
	"math"
	"math/bits"
)

// Kind names one allocation region.
//
// Each kind owns a disjoint address interval. Heap and CPULocal grow upward
// from a shared cursor each; Stack grows downward per thread; Kernel has no
// cursor at all, its allocations are synthesized at addresses dictated by
// typed-page classification.
type Kind uint8

const (
	// Heap covers ordinary heap and global allocations.
	Heap Kind = iota
	// Stack covers per-thread stack allocations.
	Stack
	// CPULocal covers per-thread materializations of CPU-local memory.
	CPULocal
	// Kernel covers lazily synthesized typed-page allocations.
	Kernel
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	switch k {
	case Heap:
		return "heap"
	case Stack:
		return "stack"
	case CPULocal:
		return "cpu-local"
	case Kernel:
		return "kernel"
	default:
		return "unknown"
	}
}

// Layout fixes the geometry of one simulated address space.
//
// All bounds are virtual addresses; intervals are half-open [Base, Limit).
// VirtBase is the constant offset of the direct-mapped window: without a page
// table every virtual address translates to virtual − VirtBase, and with one
// the table is expected to map the cursor regions the same way (see
// pagetable.DirectMap). AddrMax is the greatest representable address;
// AddrMax+1 must be a power of two so pointer arithmetic can wrap by masking.
type Layout struct {
	HeapBase  uint64
	HeapLimit uint64

	StackBase  uint64
	StackLimit uint64
	// StackSize is the stack strip carved per thread when the embedder does
	// not place stacks explicitly.
	StackSize uint64

	CPUBase  uint64
	CPULimit uint64
	// WindowSize is the span of one thread's CPU-local window.
	WindowSize uint64

	KernelBase  uint64
	KernelLimit uint64

	PageSize uint64
	VirtBase uint64
	AddrMax  uint64
}

// Default returns the geometry used when the embedder does not supply one:
// a 48-bit space with generous disjoint bands.
func Default() Layout {
	return Layout{
		HeapBase:  0x0000_0000_0001_0000,
		HeapLimit: 0x0000_4000_0000_0000,

		StackBase:  0x0000_4000_0000_0000,
		StackLimit: 0x0000_6000_0000_0000,
		StackSize:  0x0000_0000_0010_0000, // 1 MiB per thread

		CPUBase:    0x0000_6000_0000_0000,
		CPULimit:   0x0000_7000_0000_0000,
		WindowSize: 0x0000_0000_0010_0000, // 1 MiB per thread

		KernelBase:  0x0000_7000_0000_0000,
		KernelLimit: 0x0000_8000_0000_0000,

		PageSize: 0x1000,
		VirtBase: 0,
		AddrMax:  1<<48 - 1,
	}
}

// Validate checks that the layout is internally consistent.
func (l Layout) Validate() error {
	if l.PageSize == 0 || l.PageSize&(l.PageSize-1) != 0 {
		return fmt.Errorf("page size %#x is not a power of two", l.PageSize)
	}
	if l.AddrMax != math.MaxUint64 && (l.AddrMax+1)&l.AddrMax != 0 {
		return fmt.Errorf("AddrMax %#x is not a power of two minus one", l.AddrMax)
	}
	type band struct {
		kind        Kind
		base, limit uint64
	}
	bands := []band{
		{Heap, l.HeapBase, l.HeapLimit},
		{Stack, l.StackBase, l.StackLimit},
		{CPULocal, l.CPUBase, l.CPULimit},
		{Kernel, l.KernelBase, l.KernelLimit},
	}
	for i, b := range bands {
		if b.base >= b.limit {
			return fmt.Errorf("%v region [%#x, %#x) is empty or inverted", b.kind, b.base, b.limit)
		}
		if b.limit-1 > l.AddrMax {
			return fmt.Errorf("%v region exceeds AddrMax %#x", b.kind, l.AddrMax)
		}
		for _, o := range bands[i+1:] {
			if b.base < o.limit && o.base < b.limit {
				return fmt.Errorf("%v region overlaps %v region", b.kind, o.kind)
			}
		}
	}
	if l.StackSize == 0 || l.StackSize > l.StackLimit-l.StackBase {
		return fmt.Errorf("stack strip size %#x does not fit the stack region", l.StackSize)
	}
	if l.WindowSize == 0 || l.WindowSize > l.CPULimit-l.CPUBase {
		return fmt.Errorf("window size %#x does not fit the cpu-local region", l.WindowSize)
	}
	return nil
}

// RegionOf returns which region a virtual address falls in.
func (l Layout) RegionOf(addr uint64) (Kind, bool) {
	switch {
	case addr >= l.HeapBase && addr < l.HeapLimit:
		return Heap, true
	case addr >= l.StackBase && addr < l.StackLimit:
		return Stack, true
	case addr >= l.CPUBase && addr < l.CPULimit:
		return CPULocal, true
	case addr >= l.KernelBase && addr < l.KernelLimit:
		return Kernel, true
	default:
		return 0, false
	}
}

// AlignUp rounds addr up to the smallest multiple of align that is >= addr.
//
// align must be non-zero. Works for any alignment, not just powers of two.
// The caller guarantees addr+align does not overflow; cursor limits sit far
// below the top of the address space.
func AlignUp(addr, align uint64) uint64 {
	rem := addr % align
	if rem == 0 {
		return addr
	}
	return addr + align - rem
}

// AlignDown rounds addr down to the largest multiple of align that is <= addr.
//
// align must be non-zero.
func AlignDown(addr, align uint64) uint64 {
	return addr - addr%align
}

// AlignClass returns log2 of an alignment, used to key reuse subpools.
//
// align must be a power of two, minimum 1.
func AlignClass(align uint64) uint8 {
	return uint8(bits.TrailingZeros64(align))
}
