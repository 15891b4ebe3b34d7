// Package space implements the address-space manager, the shared bookkeeping
// core that turns opaque allocation handles into concrete addresses and back.
//
// One Manager owns four pieces of state and every rule connecting them:
//
//   - the forward map (handle → physical base address), written once per
//     handle and retained even after the handle dies;
//   - the reverse map (address → handle), holding live handles only and
//     answering "who owns this address" by nearest-predecessor search;
//   - the exposed set, gating which handles wildcard pointers may resolve to;
//   - the region cursors handing out fresh addresses (heap and CPU-local grow
//     up with randomized slack, stacks grow down per thread).
//
// The forward/reverse asymmetry is deliberate: a stale pointer into freed
// memory must keep resolving to the handle it pointed to, so upstream
// diagnostics can say "use after free of allocation X" instead of naming
// whatever reuse put there later. Freed ranges go to a reuse pool tagged with
// release clocks; an optional page table adds virtual translation, typed-page
// synthesis, and per-thread CPU-local materialization on top.
//
// All state is guarded by one mutex; each exported operation is atomic with
// respect to the others and none of them blocks on anything but that lock.
package space

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/kolkov/addrspace/internal/addr/addrmap"
	"github.com/kolkov/addrspace/internal/addr/clockbridge"
	"github.com/kolkov/addrspace/internal/addr/handle"
	"github.com/kolkov/addrspace/internal/addr/hostmem"
	"github.com/kolkov/addrspace/internal/addr/pagetable"
	"github.com/kolkov/addrspace/internal/addr/region"
	"github.com/kolkov/addrspace/internal/addr/reusepool"
	"github.com/kolkov/addrspace/internal/addr/rng"
	"github.com/kolkov/addrspace/internal/addr/sitedepot"
	"github.com/kolkov/addrspace/internal/addr/vclock"
)

// Terminal errors surfaced to callers. Everything else in this package is
// either a boolean miss (resolution) or a panic (broken internal invariant).
var (
	// ErrAddressSpaceExhausted means no region has room for a new address.
	ErrAddressSpaceExhausted = errors.New("address space exhausted")

	// ErrStrictProvenance rejects integer-to-pointer casts under ModeStrict.
	ErrStrictProvenance = errors.New("integer-to-pointer cast forbidden by strict provenance")

	// ErrNoMapping means a page walk found no mapping for an address.
	ErrNoMapping = errors.New("address has no page mapping")
)

// ProvenanceMode governs integer-to-pointer casts.
type ProvenanceMode uint8

const (
	// ModeDefault permits casts but warns once per source location.
	ModeDefault ProvenanceMode = iota
	// ModePermissive permits casts silently.
	ModePermissive
	// ModeStrict rejects casts; wildcard pointers cannot exist.
	ModeStrict
)

// String returns the string representation of a ProvenanceMode.
func (p ProvenanceMode) String() string {
	switch p {
	case ModeDefault:
		return "default"
	case ModePermissive:
		return "permissive"
	case ModeStrict:
		return "strict"
	default:
		return "unknown"
	}
}

// Oracle is the lifetime side of the embedder: who is live, and what shape
// each allocation has. Queried on every resolve and assignment.
//
// Info must keep answering for dead handles; resolution performs offset
// checks against retired allocations.
type Oracle interface {
	Live(h handle.Handle) bool
	Info(h handle.Handle) (handle.Layout, handle.Kind, bool)
}

// Backing is the byte-storage side of the embedder. The manager never holds
// allocation contents itself; synthesis asks Backing to create storage at a
// dictated address and to deep-copy contents on CPU-local materialization.
//
// NativeBytes serves mirrored native addressing: if the allocation already
// has backing bytes, their real address becomes the simulated address.
type Backing interface {
	Create(addr uint64, layout handle.Layout, kind handle.Kind) (handle.Handle, error)
	CopyOnMaterialize(dst, src handle.Handle) error
	FullyUninit(h handle.Handle) bool
	NativeBytes(h handle.Handle) ([]byte, bool)
}

// ThreadConfig places one thread's private address ranges.
//
// Zero fields are carved automatically from the layout's stack and CPU-local
// bands: stacks from the top of the stack band downward, windows from the
// top of the CPU-local band downward (away from the materialization cursor).
type ThreadConfig struct {
	StackTop   uint64
	StackFloor uint64
	WindowBase uint64
}

// threadState is the per-thread slice of manager state.
type threadState struct {
	stackTop   uint64 // next stack allocation ends here, grows down
	stackFloor uint64
	windowBase uint64 // base of this thread's CPU-local window
}

// Options configures a Manager. Oracle and Backing are required; everything
// else has a working default.
type Options struct {
	// Layout is the address-space geometry. Zero value → region.Default().
	Layout region.Layout

	// Provenance selects the integer-to-pointer cast policy.
	Provenance ProvenanceMode

	// Seed drives the default randomness source when Rand is nil.
	Seed uint64

	// Reuse sets the pooling probabilities. The zero value disables
	// address reuse; use reusepool.DefaultOptions() for production rates.
	Reuse reusepool.Options

	// Oracle and Backing are the embedder's collaborator halves. Required.
	Oracle  Oracle
	Backing Backing

	// Clocks bridges to the race detector. Nil → clockbridge.Nop.
	Clocks clockbridge.Bridge

	// OnExpose, if set, forwards exposure events to an external tag
	// tracker. Called under the manager lock; it must not call back in.
	OnExpose func(handle.Handle)

	// Rand overrides the randomness source, for scripted tests.
	Rand rng.Rand

	// Warnings receives provenance warnings. Nil → os.Stderr.
	Warnings io.Writer

	// Table enables the virtual-memory layer. The table must direct-map
	// the layout's cursor regions (pagetable.DirectMap).
	Table *pagetable.Table

	// Native enables mirrored native addressing: every handle's address is
	// the real address of host backing memory. Incompatible with Table and
	// with a non-zero VirtBase.
	Native *hostmem.Pool
}

// DefaultOptions returns production defaults: the standard layout and
// pooling rates, everything else zero.
func DefaultOptions() Options {
	return Options{
		Layout: region.Default(),
		Reuse:  reusepool.DefaultOptions(),
	}
}

// Manager is the address-space manager. Create with New; safe for concurrent
// use, with every operation atomic under one lock.
type Manager struct {
	mu   sync.Mutex
	opts Options

	layout region.Layout

	forward  map[handle.Handle]uint64 // physical base, survives death
	reverse  *addrmap.Map             // live handles only
	exposed  map[handle.Handle]struct{}
	cpuLocal map[handle.Handle]struct{} // draws from the CPU-local cursor
	prepared map[handle.Handle][]byte   // native mode: pre-allocated backing

	heapCursor uint64
	cpuCursor  uint64

	threads      map[vclock.ThreadID]*threadState
	template     vclock.ThreadID // owner of the template CPU-local window
	haveTemplate bool
	stackCarve   uint64 // next auto-carved stack strip top, grows down
	windowCarve  uint64 // next auto-carved window base, grows down

	pool  *reusepool.Pool
	table *pagetable.Table
	rng   rng.Rand
	sites *sitedepot.Depot

	stats Stats
}

// New builds a Manager from opts.
func New(opts Options) (*Manager, error) {
	if opts.Oracle == nil {
		return nil, errors.New("space: Options.Oracle is required")
	}
	if opts.Backing == nil {
		return nil, errors.New("space: Options.Backing is required")
	}
	if opts.Layout == (region.Layout{}) {
		opts.Layout = region.Default()
	}
	if err := opts.Layout.Validate(); err != nil {
		return nil, fmt.Errorf("space: %w", err)
	}
	if opts.Native != nil && (opts.Table != nil || opts.Layout.VirtBase != 0) {
		return nil, errors.New("space: mirrored native addressing cannot combine with virtual translation")
	}
	if opts.Clocks == nil {
		opts.Clocks = clockbridge.Nop{}
	}
	if opts.Rand == nil {
		opts.Rand = rng.New(opts.Seed)
	}
	if opts.Warnings == nil {
		opts.Warnings = os.Stderr
	}

	return &Manager{
		opts:        opts,
		layout:      opts.Layout,
		forward:     make(map[handle.Handle]uint64),
		reverse:     addrmap.New(),
		exposed:     make(map[handle.Handle]struct{}),
		cpuLocal:    make(map[handle.Handle]struct{}),
		prepared:    make(map[handle.Handle][]byte),
		heapCursor:  opts.Layout.HeapBase,
		cpuCursor:   opts.Layout.CPUBase,
		threads:     make(map[vclock.ThreadID]*threadState),
		stackCarve:  opts.Layout.StackLimit,
		windowCarve: opts.Layout.CPULimit,
		pool:        reusepool.New(opts.Reuse),
		table:       opts.Table,
		rng:         opts.Rand,
		sites:       sitedepot.New(),
	}, nil
}

// RegisterThread creates the per-thread state for t.
//
// The first registered thread becomes the template whose CPU-local window
// other threads mirror. Registering the same thread twice is a programming
// error and panics; running out of carving room is an exhaustion error.
func (m *Manager) RegisterThread(t vclock.ThreadID, cfg ThreadConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, dup := m.threads[t]; dup {
		panic(fmt.Sprintf("addrspace: thread %d registered twice", t))
	}

	ts := &threadState{
		stackTop:   cfg.StackTop,
		stackFloor: cfg.StackFloor,
		windowBase: cfg.WindowBase,
	}
	if ts.stackTop == 0 {
		if m.stackCarve < m.layout.StackSize || m.stackCarve-m.layout.StackSize < m.layout.StackBase {
			return fmt.Errorf("%w: no stack strip left for thread %d", ErrAddressSpaceExhausted, t)
		}
		ts.stackTop = m.stackCarve
		ts.stackFloor = m.stackCarve - m.layout.StackSize
		m.stackCarve = ts.stackFloor
	}
	if ts.windowBase == 0 {
		if m.windowCarve < m.layout.WindowSize || m.windowCarve-m.layout.WindowSize < m.layout.CPUBase {
			return fmt.Errorf("%w: no cpu-local window left for thread %d", ErrAddressSpaceExhausted, t)
		}
		ts.windowBase = m.windowCarve - m.layout.WindowSize
		m.windowCarve = ts.windowBase
	}

	m.threads[t] = ts
	if !m.haveTemplate {
		m.template = t
		m.haveTemplate = true
	}
	return nil
}

// Expose marks h's address as a valid wildcard-resolution target.
//
// No-op under strict provenance (wildcards cannot exist, so exposure is
// meaningless) and for dead handles. Forwards to the OnExpose hook when one
// is configured.
func (m *Manager) Expose(h handle.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.opts.Provenance == ModeStrict {
		return
	}
	if !m.opts.Oracle.Live(h) {
		return
	}
	m.exposed[h] = struct{}{}
	m.stats.Exposed++
	if m.opts.OnExpose != nil {
		m.opts.OnExpose(h)
	}
}

// Free retires h's address mapping when its allocation dies.
//
// The reverse-map entry is removed so the address stops resolving to h; the
// forward-map entry is retained so stale pointers still identify h for
// use-after-free diagnostics. The freed range is offered to the reuse pool
// tagged with the freeing thread's release clock, computed lazily.
//
// Freeing a handle with no assigned address, or one whose reverse-map entry
// does not match, means the manager's state is corrupt and panics.
func (m *Manager) Free(h handle.Handle, layout handle.Layout, kind region.Kind, t vclock.ThreadID) {
	m.mu.Lock()
	defer m.mu.Unlock()

	paddr, ok := m.forward[h]
	if !ok {
		panic(fmt.Sprintf("addrspace: free of %v with no assigned address", h))
	}
	removed, ok := m.reverse.Remove(paddr)
	if !ok || removed != h {
		panic(fmt.Sprintf("addrspace: forward/reverse mismatch freeing %v at %#x", h, paddr))
	}
	delete(m.exposed, h)

	// Pool the range in virtual coordinates, the ones fresh assignment
	// hands out. A frame reachable only through a thread's window does not
	// round-trip through the direct map and must not re-enter circulation.
	vaddr := m.virtualLocked(paddr)
	if back, ok := m.physicalLocked(vaddr); ok && back == paddr {
		m.pool.Add(m.rng, vaddr, layout, kind, t, func() *vclock.VClock {
			return m.opts.Clocks.Release(t)
		})
	}
	m.stats.Freed++
}

// MarkCPULocal routes h's future fresh assignment through the CPU-local
// cursor instead of the heap cursor. Materialized window copies are marked
// automatically; embedders mark per-CPU state they create themselves.
func (m *Manager) MarkCPULocal(h handle.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cpuLocal[h] = struct{}{}
}

// RemoveUnreachable drops forward-map entries for handles the embedder has
// garbage-collected, identified by keep returning false.
//
// Only the forward map is pruned: live handles are always kept by their
// owner, and dead handles were already removed from everything else when
// they were freed.
func (m *Manager) RemoveUnreachable(keep func(handle.Handle) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for h := range m.forward {
		if !keep(h) {
			delete(m.forward, h)
		}
	}
}

// TakePrepared hands over backing bytes pre-allocated during a native-mode
// assignment, transferring ownership to the caller. Second and later calls
// for the same handle return false.
func (m *Manager) TakePrepared(h handle.Handle) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.prepared[h]
	if ok {
		delete(m.prepared, h)
	}
	return b, ok
}

// CheckInvariants validates the structural invariants of the maps:
// the reverse map is sorted, holds only live handles, agrees with the
// forward map, and no two live allocations overlap.
//
// Intended for tests and the replay tool; cost is linear in live
// allocations.
func (m *Manager) CheckInvariants() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	entries := m.reverse.All()
	prevEnd := uint64(0)
	for i, e := range entries {
		if i > 0 && entries[i-1].Addr >= e.Addr {
			return fmt.Errorf("reverse map out of order at %#x", e.Addr)
		}
		if !m.opts.Oracle.Live(e.Handle) {
			return fmt.Errorf("reverse map holds dead %v at %#x", e.Handle, e.Addr)
		}
		base, ok := m.forward[e.Handle]
		if !ok {
			return fmt.Errorf("reverse map %v at %#x missing from forward map", e.Handle, e.Addr)
		}
		if base != e.Addr {
			return fmt.Errorf("forward map says %v is at %#x, reverse map says %#x", e.Handle, base, e.Addr)
		}
		l, _, ok := m.opts.Oracle.Info(e.Handle)
		if !ok {
			return fmt.Errorf("no layout for live %v", e.Handle)
		}
		if i > 0 && e.Addr < prevEnd {
			return fmt.Errorf("%v at %#x overlaps previous allocation ending at %#x", e.Handle, e.Addr, prevEnd)
		}
		prevEnd = e.Addr + l.Size
	}
	return nil
}

// threadLocked returns t's state, panicking if t was never registered.
func (m *Manager) threadLocked(t vclock.ThreadID) *threadState {
	ts := m.threads[t]
	if ts == nil {
		panic(fmt.Sprintf("addrspace: operation on unregistered thread %d", t))
	}
	return ts
}

// virtualLocked converts a stored physical base back to the virtual address
// callers see. Cursor regions are direct-mapped, so this is the constant
// offset in both translation modes.
func (m *Manager) virtualLocked(paddr uint64) uint64 {
	return paddr + m.layout.VirtBase
}

// physicalLocked translates a virtual address: a page walk when a table is
// active, the direct-map offset otherwise.
func (m *Manager) physicalLocked(vaddr uint64) (uint64, bool) {
	if m.table != nil {
		return m.table.Walk(vaddr)
	}
	if vaddr < m.layout.VirtBase {
		return 0, false
	}
	return vaddr - m.layout.VirtBase, true
}
