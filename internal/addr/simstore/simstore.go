// Package simstore is a reference allocation registry for the address-space
// manager's collaborator interfaces.
//
// The manager itself never stores bytes; it asks a lifetime oracle whether
// handles are live and a byte-storage backend to create or duplicate backing
// on its behalf. Store implements both sides with plain in-memory state:
// per-allocation bytes, a per-byte initialization mask, embedded pointer
// provenance, and a liveness flag. Tests, examples, and the replay tool all
// embed it; a production interpreter supplies its own storage instead.
package simstore

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kolkov/addrspace/internal/addr/handle"
)

// Allocation is the stored state of one allocation.
type Allocation struct {
	Layout handle.Layout
	Kind   handle.Kind
	Live   bool

	// Base is the dictated base address for allocations created by
	// synthesis, zero for ordinary allocations whose address the manager
	// assigns on first use.
	Base uint64

	// Data holds the allocation's bytes, Init the per-byte initialization
	// mask, Prov any pointer provenance embedded at a byte offset.
	Data []byte
	Init []bool
	Prov map[uint64]handle.Handle
}

// Store is an in-memory allocation registry.
//
// Safe for concurrent use.
type Store struct {
	mu     sync.Mutex
	src    handle.Source
	allocs map[handle.Handle]*Allocation
}

// New creates an empty store.
func New() *Store {
	return &Store{allocs: make(map[handle.Handle]*Allocation)}
}

// NewAllocation registers a fresh live allocation and returns its handle.
func (s *Store) NewAllocation(layout handle.Layout, kind handle.Kind) handle.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.src.Next()
	s.allocs[h] = &Allocation{
		Layout: layout,
		Kind:   kind,
		Live:   true,
		Data:   make([]byte, layout.Size),
		Init:   make([]bool, layout.Size),
		Prov:   make(map[uint64]handle.Handle),
	}
	return h
}

// Kill marks an allocation dead. The entry stays queryable (dead) forever,
// mirroring how handles outlive their allocations.
func (s *Store) Kill(h handle.Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.allocs[h]
	if !ok {
		panic(fmt.Sprintf("simstore: kill of unknown handle %v", h))
	}
	a.Live = false
}

// Write copies data into the allocation at off and marks those bytes
// initialized.
func (s *Store) Write(h handle.Handle, off uint64, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.get(h)
	if err != nil {
		return err
	}
	if off+uint64(len(data)) > a.Layout.Size {
		return fmt.Errorf("simstore: write of %d bytes at offset %d exceeds %v", len(data), off, a.Layout)
	}
	copy(a.Data[off:], data)
	for i := range data {
		a.Init[off+uint64(i)] = true
	}
	return nil
}

// Read returns a copy of n bytes at off.
func (s *Store) Read(h handle.Handle, off, n uint64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.get(h)
	if err != nil {
		return nil, err
	}
	if off+n > a.Layout.Size {
		return nil, fmt.Errorf("simstore: read of %d bytes at offset %d exceeds %v", n, off, a.Layout)
	}
	out := make([]byte, n)
	copy(out, a.Data[off:off+n])
	return out, nil
}

// SetProv embeds pointer provenance at a byte offset.
func (s *Store) SetProv(h handle.Handle, off uint64, target handle.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.get(h)
	if err != nil {
		return err
	}
	a.Prov[off] = target
	return nil
}

// ProvAt returns the provenance embedded at a byte offset, if any.
func (s *Store) ProvAt(h handle.Handle, off uint64) (handle.Handle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.allocs[h]
	if !ok {
		return handle.Invalid, false
	}
	target, ok := a.Prov[off]
	return target, ok
}

// Adopt replaces the allocation's backing bytes, used in mirrored native
// mode to hand ownership of manager-prepared memory to the store.
func (s *Store) Adopt(h handle.Handle, bytes []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, err := s.get(h)
	if err != nil {
		return err
	}
	if uint64(len(bytes)) < a.Layout.Size {
		return fmt.Errorf("simstore: adopting %d bytes for %v", len(bytes), a.Layout)
	}
	a.Data = bytes[:a.Layout.Size]
	return nil
}

// Lookup returns a snapshot of the allocation's bookkeeping state (layout,
// kind, liveness, base), without its contents.
func (s *Store) Lookup(h handle.Handle) (Allocation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.allocs[h]
	if !ok {
		return Allocation{}, false
	}
	return Allocation{Layout: a.Layout, Kind: a.Kind, Live: a.Live, Base: a.Base}, true
}

// All returns every known handle in creation order.
func (s *Store) All() []handle.Handle {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]handle.Handle, 0, len(s.allocs))
	for h := range s.allocs {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Live reports whether the handle's allocation is still live.
//
// This is the lifetime-oracle side consumed by the manager.
func (s *Store) Live(h handle.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.allocs[h]
	return ok && a.Live
}

// Info returns the handle's layout and kind.
//
// Lifetime-oracle side; answers for dead handles too, which resolution
// needs for offset checks against retired allocations.
func (s *Store) Info(h handle.Handle) (handle.Layout, handle.Kind, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.allocs[h]
	if !ok {
		return handle.Layout{}, 0, false
	}
	return a.Layout, a.Kind, true
}

// Create registers a fresh live allocation at a dictated base address.
//
// Byte-storage backend side: the manager calls this during typed-page and
// CPU-local synthesis, where the address is fixed by the page geometry
// before the allocation exists.
func (s *Store) Create(addr uint64, layout handle.Layout, kind handle.Kind) (handle.Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h := s.src.Next()
	s.allocs[h] = &Allocation{
		Layout: layout,
		Kind:   kind,
		Live:   true,
		Base:   addr,
		Data:   make([]byte, layout.Size),
		Init:   make([]bool, layout.Size),
		Prov:   make(map[uint64]handle.Handle),
	}
	return h, nil
}

// CopyOnMaterialize deep-copies bytes, initialization state, and embedded
// provenance from src into dst.
//
// Byte-storage backend side: dst is a fresh CPU-local materialization and
// must become an independent, initially-identical copy of the template.
func (s *Store) CopyOnMaterialize(dst, src handle.Handle) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	from, err := s.get(src)
	if err != nil {
		return err
	}
	to, err := s.get(dst)
	if err != nil {
		return err
	}
	if to.Layout.Size != from.Layout.Size {
		return fmt.Errorf("simstore: materialize copy between %v and %v", from.Layout, to.Layout)
	}
	copy(to.Data, from.Data)
	copy(to.Init, from.Init)
	to.Prov = make(map[uint64]handle.Handle, len(from.Prov))
	for off, target := range from.Prov {
		to.Prov[off] = target
	}
	return nil
}

// FullyUninit reports whether no byte of the allocation was ever
// initialized, letting synthesis skip the copy entirely.
func (s *Store) FullyUninit(h handle.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.allocs[h]
	if !ok {
		return true
	}
	for _, init := range a.Init {
		if init {
			return false
		}
	}
	return true
}

// NativeBytes returns the allocation's backing bytes for mirrored native
// addressing, or false when it has none (zero-sized, function, vtable).
func (s *Store) NativeBytes(h handle.Handle) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.allocs[h]
	if !ok || len(a.Data) == 0 {
		return nil, false
	}
	return a.Data, true
}

// get returns the allocation or an error naming the handle.
func (s *Store) get(h handle.Handle) (*Allocation, error) {
	a, ok := s.allocs[h]
	if !ok {
		return nil, fmt.Errorf("simstore: unknown handle %v", h)
	}
	return a, nil
}
