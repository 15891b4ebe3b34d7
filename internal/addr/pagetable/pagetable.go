// Package pagetable implements the optional virtual-memory layer.
//
// With a table active, every address entering the manager is virtual and is
// walked to a physical address first; an unmapped address is a fault, which
// resolution reports as a miss and assignment as an error.
//
// Physical pages additionally carry a classification. An Untyped page is
// ordinary memory. A Typed page is declared to hold fixed-size elements that
// were never explicitly allocated: the first dereference landing in one
// synthesizes an allocation covering the element slot on demand, which is how
// pre-existing kernel structures become visible to the interpreter without
// anyone having allocated them.
//
// Mappings come in two granularities: explicit per-page entries, and
// direct-mapped intervals (virtual = physical + constant) that cover the
// cursor regions without materializing one entry per page. Explicit entries
// win over intervals.
//
// Table is not safe for concurrent use; the owning manager serializes access.
package pagetable

import (
	"github.com/kolkov/addrspace/internal/addr/region"
)

// PageClass classifies a physical page.
type PageClass uint8

const (
	// Untyped marks ordinary memory with no synthesis behavior.
	Untyped PageClass = iota
	// Typed marks a page holding fixed-size elements, materialized into
	// allocations lazily on first touch.
	Typed
)

// String returns the string representation of a PageClass.
func (c PageClass) String() string {
	switch c {
	case Untyped:
		return "untyped"
	case Typed:
		return "typed"
	default:
		return "unknown"
	}
}

// PageState is the classification of one physical page.
//
// ElemSize is meaningful only for Typed pages.
type PageState struct {
	Class    PageClass
	ElemSize uint64
}

// Stats counts table activity.
type Stats struct {
	PagesMapped uint64 // Explicit page mappings installed.
	TypedPages  uint64 // Pages currently classified as typed.
	Walks       uint64 // Translations attempted.
	Faults      uint64 // Translations that found no mapping.
}

// directRange direct-maps [base, limit) with paddr = vaddr − offset.
type directRange struct {
	base, limit, offset uint64
}

// Table is one virtual→physical translation.
type Table struct {
	pageSize uint64
	frames   map[uint64]uint64    // virtual page number → physical page number
	states   map[uint64]PageState // physical page number → classification
	direct   []directRange
	stats    Stats
}

// New creates an empty table.
//
// pageSize must be a power of two; anything else is a programming error and
// panics.
func New(pageSize uint64) *Table {
	if pageSize == 0 || pageSize&(pageSize-1) != 0 {
		panic("addrspace: page size must be a power of two")
	}
	return &Table{
		pageSize: pageSize,
		frames:   make(map[uint64]uint64),
		states:   make(map[uint64]PageState),
	}
}

// PageSize returns the table's page size.
func (t *Table) PageSize() uint64 {
	return t.pageSize
}

// Map installs one explicit page mapping from virtual vaddr to physical
// paddr. Both must be page-aligned.
func (t *Table) Map(vaddr, paddr uint64) {
	if vaddr%t.pageSize != 0 || paddr%t.pageSize != 0 {
		panic("addrspace: page mapping addresses must be page-aligned")
	}
	t.frames[vaddr/t.pageSize] = paddr / t.pageSize
	t.stats.PagesMapped++
}

// MapRange installs explicit mappings covering n bytes starting at vaddr.
//
// n is rounded up to whole pages.
func (t *Table) MapRange(vaddr, paddr, n uint64) {
	for off := uint64(0); off < n; off += t.pageSize {
		t.Map(vaddr+off, paddr+off)
	}
}

// DirectMap direct-maps the four cursor regions of a layout with
// paddr = vaddr − VirtBase, without materializing per-page entries.
//
// This is the standing assumption of the manager's address cache: any region
// a cursor allocates from must translate this way so a cached physical base
// can be turned back into a virtual address by adding VirtBase.
func (t *Table) DirectMap(l region.Layout) {
	for _, band := range [][2]uint64{
		{l.HeapBase, l.HeapLimit},
		{l.StackBase, l.StackLimit},
		{l.CPUBase, l.CPULimit},
		{l.KernelBase, l.KernelLimit},
	} {
		if band[0] < l.VirtBase {
			panic("addrspace: direct-mapped region starts below VirtBase")
		}
		t.direct = append(t.direct, directRange{base: band[0], limit: band[1], offset: l.VirtBase})
	}
}

// Walk translates a virtual address.
//
// Returns the physical address and true, or false if no mapping covers
// vaddr.
func (t *Table) Walk(vaddr uint64) (uint64, bool) {
	t.stats.Walks++
	if pfn, ok := t.frames[vaddr/t.pageSize]; ok {
		return pfn*t.pageSize + vaddr%t.pageSize, true
	}
	for _, d := range t.direct {
		if vaddr >= d.base && vaddr < d.limit {
			return vaddr - d.offset, true
		}
	}
	t.stats.Faults++
	return 0, false
}

// MarkTyped classifies n bytes of physical memory starting at paddr as
// holding elements of elemSize bytes each.
//
// elemSize must be a power of two so element slots have a well-defined
// alignment; anything else panics. n is rounded up to whole pages.
func (t *Table) MarkTyped(paddr, n, elemSize uint64) {
	if elemSize == 0 || elemSize&(elemSize-1) != 0 {
		panic("addrspace: typed page element size must be a power of two")
	}
	for off := uint64(0); off < n; off += t.pageSize {
		pfn := (paddr + off) / t.pageSize
		if t.states[pfn].Class != Typed {
			t.stats.TypedPages++
		}
		t.states[pfn] = PageState{Class: Typed, ElemSize: elemSize}
	}
}

// MarkUntyped removes typed classification from n bytes of physical memory
// starting at paddr.
func (t *Table) MarkUntyped(paddr, n uint64) {
	for off := uint64(0); off < n; off += t.pageSize {
		pfn := (paddr + off) / t.pageSize
		if t.states[pfn].Class == Typed {
			t.stats.TypedPages--
		}
		delete(t.states, pfn)
	}
}

// StateAt returns the classification of the physical page containing paddr.
//
// Unclassified pages read as Untyped.
func (t *Table) StateAt(paddr uint64) PageState {
	return t.states[paddr/t.pageSize]
}

// Stats returns a copy of the activity counters.
func (t *Table) Stats() Stats {
	return t.stats
}
