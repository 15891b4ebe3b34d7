// Package addrmap implements the address-to-handle side of the allocation
// mapping.
//
// The map is an ordered sequence of (base address, handle) pairs. Resolution
// of an arbitrary address works by nearest-predecessor search: the candidate
// owner of address X is the allocation with the greatest base address <= X.
// Whether X is actually inside that allocation is the caller's check, since
// only the caller knows allocation sizes.
//
// Entries exist only for live allocations: the manager inserts on address
// assignment and removes on free. This asymmetry with the forward (handle to
// address) map is deliberate; dead allocations must disappear from
// address resolution while staying identifiable for diagnostics.
//
// Insertion has an append fast path because fresh addresses usually grow
// upward past the current maximum; only reused addresses pay the full
// binary-search insert.
//
// Map is not safe for concurrent use; the owning manager serializes access.
package addrmap

import (
	"sort"

	"github.com/kolkov/addrspace/internal/addr/handle"
)

// Entry is one (base address, handle) pair.
type Entry struct {
	Addr   uint64
	Handle handle.Handle
}

// Map is an address-ordered collection of live allocation bases.
//
// The zero value is an empty map ready to use.
type Map struct {
	entries []Entry
}

// New creates an empty map.
func New() *Map {
	return &Map{}
}

// Len returns the number of entries.
func (m *Map) Len() int {
	return len(m.entries)
}

// Insert adds an entry for addr.
//
// Fast path: if addr is greater than the current maximum, the entry is
// appended without searching. Otherwise the insertion point is found by
// binary search. Inserting an address that is already present is a caller
// bug; the new entry would shadow the old one in predecessor queries.
func (m *Map) Insert(addr uint64, h handle.Handle) {
	n := len(m.entries)
	if n == 0 || m.entries[n-1].Addr < addr {
		m.entries = append(m.entries, Entry{Addr: addr, Handle: h})
		return
	}
	pos := sort.Search(n, func(i int) bool { return m.entries[i].Addr >= addr })
	m.entries = append(m.entries, Entry{})
	copy(m.entries[pos+1:], m.entries[pos:])
	m.entries[pos] = Entry{Addr: addr, Handle: h}
}

// Remove deletes the entry with exactly this address and returns its handle.
//
// Returns false if no entry has this base address.
func (m *Map) Remove(addr uint64) (handle.Handle, bool) {
	pos, ok := m.find(addr)
	if !ok {
		return handle.Invalid, false
	}
	h := m.entries[pos].Handle
	m.entries = append(m.entries[:pos], m.entries[pos+1:]...)
	return h, true
}

// At returns the handle whose base address is exactly addr.
func (m *Map) At(addr uint64) (handle.Handle, bool) {
	pos, ok := m.find(addr)
	if !ok {
		return handle.Invalid, false
	}
	return m.entries[pos].Handle, true
}

// Predecessor returns the entry with the greatest base address <= probe.
//
// Returns false if every entry has a base address greater than probe (or
// the map is empty); in that case no allocation can own the probe.
func (m *Map) Predecessor(probe uint64) (Entry, bool) {
	// First index with Addr > probe; the predecessor sits just before it.
	pos := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].Addr > probe })
	if pos == 0 {
		return Entry{}, false
	}
	return m.entries[pos-1], true
}

// All returns the entries in address order.
//
// The returned slice is the map's backing storage; callers must not modify
// it and must not hold it across mutations.
func (m *Map) All() []Entry {
	return m.entries
}

// find locates the index of the entry with exactly this address.
func (m *Map) find(addr uint64) (int, bool) {
	pos := sort.Search(len(m.entries), func(i int) bool { return m.entries[i].Addr >= addr })
	if pos == len(m.entries) || m.entries[pos].Addr != addr {
		return 0, false
	}
	return pos, true
}
