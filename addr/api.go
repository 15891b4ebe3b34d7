// Package addr provides the public API for the simulated address-space
// manager.
//
// See doc.go for detailed documentation and examples.
package addr

import (
	"io"

	"github.com/kolkov/addrspace/internal/addr/clockbridge"
	"github.com/kolkov/addrspace/internal/addr/handle"
	"github.com/kolkov/addrspace/internal/addr/hostmem"
	"github.com/kolkov/addrspace/internal/addr/pagetable"
	"github.com/kolkov/addrspace/internal/addr/region"
	"github.com/kolkov/addrspace/internal/addr/reusepool"
	"github.com/kolkov/addrspace/internal/addr/sitedepot"
	"github.com/kolkov/addrspace/internal/addr/space"
	"github.com/kolkov/addrspace/internal/addr/vclock"
)

// Handle opaquely identifies one allocation. The zero Handle is invalid.
type Handle = handle.Handle

// InvalidHandle never identifies an allocation.
const InvalidHandle = handle.Invalid

// Layout is an allocation's size and alignment in bytes.
type Layout = handle.Layout

// AllocKind distinguishes data allocations from function and vtable
// placeholders.
type AllocKind = handle.Kind

// Allocation kinds.
const (
	Data     = handle.Data
	Function = handle.Function
	VTable   = handle.VTable
)

// HandleSource mints fresh handles, one at a time, safely concurrently.
type HandleSource = handle.Source

// Region names one band of the simulated address space.
type Region = region.Kind

// Address-space regions.
const (
	Heap     = region.Heap
	Stack    = region.Stack
	CPULocal = region.CPULocal
	Kernel   = region.Kernel
)

// Geometry fixes the bounds of every region, the page size, and the
// virtual-addressing constants.
type Geometry = region.Layout

// DefaultGeometry returns the production 48-bit geometry.
func DefaultGeometry() Geometry {
	return region.Default()
}

// ThreadID identifies one interpreter thread.
type ThreadID = vclock.ThreadID

// ThreadConfig places one thread's stack strip and CPU-local window.
// Zero fields are carved from the geometry automatically.
type ThreadConfig = space.ThreadConfig

// Pointer is a simulated pointer value: an address plus provenance.
type Pointer = space.Pointer

// Site identifies a source location in the interpreted program, used to
// deduplicate provenance warnings.
type Site = sitedepot.Site

// CallerSite captures the Go caller's own location as a Site. skip counts
// stack frames above the caller, as in runtime.Caller.
func CallerSite(skip int) Site {
	return sitedepot.Caller(skip + 1)
}

// ProvenanceMode governs integer-to-pointer casts.
type ProvenanceMode = space.ProvenanceMode

// Provenance modes.
const (
	// ProvenanceDefault permits casts with a once-per-site warning.
	ProvenanceDefault = space.ModeDefault
	// ProvenancePermissive permits casts silently.
	ProvenancePermissive = space.ModePermissive
	// ProvenanceStrict rejects casts outright.
	ProvenanceStrict = space.ModeStrict
)

// Oracle is the embedder's lifetime side: liveness and layout per handle.
type Oracle = space.Oracle

// Backing is the embedder's byte-storage side, consulted when the manager
// synthesizes allocations or mirrors native memory.
type Backing = space.Backing

// ClockBridge connects address reuse to an external happens-before tracker.
type ClockBridge = clockbridge.Bridge

// NopClocks is the bridge used when race detection is disabled.
func NopClocks() ClockBridge { return clockbridge.Nop{} }

// ThreadClocks returns a self-contained bridge keeping one vector clock per
// thread, sufficient when no full race detector is attached.
func ThreadClocks() ClockBridge { return clockbridge.NewThreads() }

// ReuseOptions sets the address-reuse probabilities.
type ReuseOptions = reusepool.Options

// DefaultReuseOptions returns the production reuse probabilities.
func DefaultReuseOptions() ReuseOptions {
	return reusepool.DefaultOptions()
}

// PageTable is the optional virtual-memory layer.
type PageTable = pagetable.Table

// NewPageTable creates a page table that direct-maps the geometry's
// regions, the baseline the manager requires. Map explicit pages and mark
// typed ones on top of it.
func NewPageTable(g Geometry) *PageTable {
	t := pagetable.New(g.PageSize)
	t.DirectMap(g)
	return t
}

// Stats counts manager activity.
type Stats = space.Stats

// Snapshot is a point-in-time view of the manager, serializable as JSON.
type Snapshot = space.Snapshot

// SnapshotFromJSON parses a snapshot previously written with
// Snapshot.WriteJSON.
func SnapshotFromJSON(r io.Reader) (*Snapshot, error) {
	return space.FromJSON(r)
}

// Terminal errors.
var (
	// ErrAddressSpaceExhausted means no region has room for a new address.
	ErrAddressSpaceExhausted = space.ErrAddressSpaceExhausted

	// ErrStrictProvenance rejects integer-to-pointer casts under
	// ProvenanceStrict.
	ErrStrictProvenance = space.ErrStrictProvenance

	// ErrNoMapping means a page walk found no mapping for an address.
	ErrNoMapping = space.ErrNoMapping
)

// Config configures an AddressSpace. Oracle and Backing are required;
// every other field has a working default.
type Config struct {
	// Geometry is the address-space shape. Zero value → DefaultGeometry().
	Geometry Geometry

	// Provenance selects the integer-to-pointer cast policy.
	Provenance ProvenanceMode

	// Seed drives address randomization. The same seed over the same
	// operation sequence reproduces the same addresses.
	Seed uint64

	// Reuse sets the address-reuse probabilities. Nil → defaults; point
	// at a zero ReuseOptions to disable reuse entirely.
	Reuse *ReuseOptions

	// Oracle and Backing are the embedder's two halves. Required.
	Oracle  Oracle
	Backing Backing

	// Clocks bridges to a race detector. Nil → NopClocks().
	Clocks ClockBridge

	// OnExpose, if set, observes every exposure event.
	OnExpose func(Handle)

	// Warnings receives provenance warnings. Nil → standard error.
	Warnings io.Writer

	// PageTable enables virtual translation, typed-page synthesis, and
	// CPU-local materialization. Build it with NewPageTable.
	PageTable *PageTable

	// NativeAddressing mirrors real memory: every allocation's simulated
	// address is the host address of its backing bytes. Incompatible with
	// PageTable and a non-zero Geometry.VirtBase.
	NativeAddressing bool
}

// AddressSpace is the top-level manager handed to an interpreter.
//
// All methods are safe for concurrent use; each operation is atomic.
type AddressSpace struct {
	m      *space.Manager
	native *hostmem.Pool
}

// New builds an AddressSpace from cfg.
func New(cfg Config) (*AddressSpace, error) {
	opts := space.Options{
		Layout:     cfg.Geometry,
		Provenance: cfg.Provenance,
		Seed:       cfg.Seed,
		Reuse:      reusepool.DefaultOptions(),
		Oracle:     cfg.Oracle,
		Backing:    cfg.Backing,
		Clocks:     cfg.Clocks,
		OnExpose:   cfg.OnExpose,
		Warnings:   cfg.Warnings,
		Table:      cfg.PageTable,
	}
	if cfg.Reuse != nil {
		opts.Reuse = *cfg.Reuse
	}

	var native *hostmem.Pool
	if cfg.NativeAddressing {
		native = hostmem.New()
		opts.Native = native
	}

	m, err := space.New(opts)
	if err != nil {
		if native != nil {
			native.Close()
		}
		return nil, err
	}
	return &AddressSpace{m: m, native: native}, nil
}

// Close releases resources held by the address space. Only native
// addressing holds any; Close on other configurations is a no-op.
// The AddressSpace must not be used afterwards.
func (s *AddressSpace) Close() error {
	if s.native != nil {
		return s.native.Close()
	}
	return nil
}

// RegisterThread creates per-thread state for t before its first stack
// allocation or window access. The first registered thread owns the
// CPU-local template window.
func (s *AddressSpace) RegisterThread(t ThreadID, cfg ThreadConfig) error {
	return s.m.RegisterThread(t, cfg)
}

// AddrOf returns h's base address, assigning one on first use: from the
// native mirror, the reuse pool, or a fresh cut of the region cursor, in
// that order. The address never changes afterwards, even after h dies.
func (s *AddressSpace) AddrOf(h Handle, r Region, t ThreadID) (uint64, error) {
	return s.m.AddrOf(h, r, t)
}

// PtrToInt casts a pointer with concrete provenance to its integer
// address. The allocation is not exposed by this alone.
func (s *AddressSpace) PtrToInt(h Handle, r Region, t ThreadID) (uint64, error) {
	return s.m.PtrToInt(h, r, t)
}

// IntToPtr casts an integer to a wildcard pointer under the configured
// provenance policy. Pass the interpreted program's cast location as site,
// or the zero Site to use the Go caller's location.
func (s *AddressSpace) IntToPtr(value uint64, site Site) (Pointer, error) {
	return s.m.IntToPtr(value, site)
}

// Expose marks h's address as a valid target for wildcard resolution.
func (s *AddressSpace) Expose(h Handle) {
	s.m.Expose(h)
}

// Resolve finds the exposed allocation covering a wildcard address, if
// any. accessSize < 0 probes the byte below the address, so downward
// accesses land in the allocation they actually touch.
func (s *AddressSpace) Resolve(addr uint64, accessSize int64, t ThreadID) (Handle, bool) {
	return s.m.Resolve(addr, accessSize, t)
}

// Locate turns a pointer into (handle, offset) for an access of the given
// size, resolving wildcards first. The offset wraps to the address width;
// bounds checking stays with the caller.
func (s *AddressSpace) Locate(p Pointer, accessSize int64, t ThreadID) (Handle, uint64, bool) {
	return s.m.Locate(p, accessSize, t)
}

// Free retires h's address when its allocation dies. The address stops
// resolving but h keeps answering AddrOf with it, so stale pointers can
// still be diagnosed. The range may be reused for later allocations.
func (s *AddressSpace) Free(h Handle, layout Layout, r Region, t ThreadID) {
	s.m.Free(h, layout, r, t)
}

// MarkCPULocal routes h's future address assignment through the CPU-local
// region.
func (s *AddressSpace) MarkCPULocal(h Handle) {
	s.m.MarkCPULocal(h)
}

// RemoveUnreachable drops retained address records for handles the
// embedder has garbage-collected; keep reports the ones still reachable.
func (s *AddressSpace) RemoveUnreachable(keep func(Handle) bool) {
	s.m.RemoveUnreachable(keep)
}

// TakePrepared claims backing bytes pre-allocated by a native-mode
// assignment, at most once per handle.
func (s *AddressSpace) TakePrepared(h Handle) ([]byte, bool) {
	return s.m.TakePrepared(h)
}

// Snapshot captures the current state for inspection or serialization.
func (s *AddressSpace) Snapshot() *Snapshot {
	return s.m.Snapshot()
}

// Stats returns the activity counters.
func (s *AddressSpace) Stats() Stats {
	return s.m.Stats()
}

// CheckInvariants validates the internal map invariants, for tests and
// debugging tools.
func (s *AddressSpace) CheckInvariants() error {
	return s.m.CheckInvariants()
}
