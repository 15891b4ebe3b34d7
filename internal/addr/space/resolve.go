package space

import (
	"fmt"
	"math"

	"github.com/kolkov/addrspace/internal/addr/handle"
	"github.com/kolkov/addrspace/internal/addr/pagetable"
	"github.com/kolkov/addrspace/internal/addr/region"
	"github.com/kolkov/addrspace/internal/addr/sitedepot"
	"github.com/kolkov/addrspace/internal/addr/vclock"
)

// Pointer is a simulated pointer value: an absolute virtual address plus
// provenance. Concrete pointers name their allocation; wildcard pointers
// (minted by integer-to-pointer casts) carry only the address and resolve
// lazily against the exposed set at access time.
type Pointer struct {
	Addr     uint64
	Handle   handle.Handle // Invalid when Wildcard
	Wildcard bool
}

// String returns the string representation of a Pointer.
func (p Pointer) String() string {
	if p.Wildcard {
		return fmt.Sprintf("%#x[wildcard]", p.Addr)
	}
	if !p.Handle.Valid() {
		return fmt.Sprintf("%#x[dangling]", p.Addr)
	}
	return fmt.Sprintf("%#x[%v]", p.Addr, p.Handle)
}

// IntToPtr casts an integer to a pointer under the configured provenance
// policy: rejected outright under strict, silent under permissive, and
// under the default policy permitted with a once-per-site warning. The
// resulting pointer is a wildcard; no resolution happens here.
//
// site identifies the cast location for warning deduplication; the zero
// Site substitutes the caller's own location.
func (m *Manager) IntToPtr(value uint64, site sitedepot.Site) (Pointer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.opts.Provenance {
	case ModeStrict:
		return Pointer{}, fmt.Errorf("cast of %#x: %w", value, ErrStrictProvenance)
	case ModeDefault:
		if site == (sitedepot.Site{}) {
			site = sitedepot.Caller(1)
		}
		if newSite, firstEver := m.sites.Observe(site); newSite {
			m.warnIntToPtrLocked(site, firstEver)
		}
	}
	return Pointer{Addr: value, Wildcard: true}, nil
}

// PtrToInt casts a pointer with concrete provenance to its integer address,
// assigning an address first if the handle never had one. The handle is not
// exposed; that is the embedder's separate decision.
func (m *Manager) PtrToInt(h handle.Handle, kind region.Kind, t vclock.ThreadID) (uint64, error) {
	return m.AddrOf(h, kind, t)
}

// Resolve finds the allocation a wildcard address points into.
//
// The address is translated to physical, then matched against the reverse
// map by nearest-predecessor search; a hit counts only when the address
// falls inside the predecessor's extent and the handle is exposed. For
// accesses of negative size the byte below the address is probed instead,
// so one-past-the-end pointers of the neighbouring allocation do not
// shadow the true target.
//
// When a page table is active, reverse-map misses fall through to synthesis:
// a typed page manufactures its covering element, and thread-private window
// addresses materialize a copy of the template thread's allocation.
//
// A false result means no exposed allocation covers the address. Calling
// Resolve under strict provenance panics; wildcard pointers cannot exist
// there, so a resolution request is itself the bug.
func (m *Manager) Resolve(vaddr uint64, accessSize int64, t vclock.ThreadID) (handle.Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.resolveLocked(vaddr, accessSize, t)
}

func (m *Manager) resolveLocked(vaddr uint64, accessSize int64, t vclock.ThreadID) (handle.Handle, bool) {
	if m.opts.Provenance == ModeStrict {
		panic("addrspace: wildcard resolution under strict provenance")
	}
	m.stats.Resolves++

	vprobe := vaddr
	if accessSize < 0 && vprobe > 0 {
		vprobe--
	}
	probe, ok := m.physicalLocked(vprobe)
	if !ok {
		return handle.Invalid, false
	}

	h, _, ok := m.ownerLocked(probe)
	if !ok {
		if m.table == nil {
			return handle.Invalid, false
		}
		if h, _, ok := m.synthTypedLocked(probe); ok {
			return h, true
		}
		return m.materializeWindowLocked(vprobe, probe, t)
	}

	if _, exposed := m.exposed[h]; !exposed {
		return handle.Invalid, false
	}
	if !m.opts.Oracle.Live(h) {
		panic(fmt.Sprintf("addrspace: reverse map holds dead %v", h))
	}
	return h, true
}

// ownerLocked finds the existing allocation covering the physical address,
// returning the handle and the offset into it. Exposure is not checked.
func (m *Manager) ownerLocked(paddr uint64) (handle.Handle, uint64, bool) {
	e, found := m.reverse.Predecessor(paddr)
	if !found {
		return handle.Invalid, 0, false
	}
	if e.Addr == paddr {
		return e.Handle, 0, true
	}
	off := paddr - e.Addr
	if l, _, ok := m.opts.Oracle.Info(e.Handle); ok && off < l.Size {
		return e.Handle, off, true
	}
	return handle.Invalid, 0, false
}

// synthTypedLocked manufactures the allocation covering paddr on a typed
// page: one element of the page's element size, based at the element
// boundary below the probe. The new handle is registered and exposed in one
// step, since only a wildcard access can reach it. Returns the handle, its
// base, and whether the page was typed at all.
func (m *Manager) synthTypedLocked(paddr uint64) (handle.Handle, uint64, bool) {
	st := m.table.StateAt(paddr)
	if st.Class != pagetable.Typed {
		return handle.Invalid, 0, false
	}
	base := region.AlignDown(paddr, st.ElemSize)
	layout := handle.Layout{Size: st.ElemSize, Align: st.ElemSize}
	h, err := m.opts.Backing.Create(base, layout, handle.Data)
	if err != nil {
		panic(fmt.Sprintf("addrspace: backing store refused typed-page element at %#x: %v", base, err))
	}
	m.setAddressLocked(h, base)
	m.exposed[h] = struct{}{}
	m.stats.Synthesized++
	return h, base, true
}

// materializeWindowLocked serves a miss inside the calling thread's
// CPU-local window by cloning the template thread's allocation at the same
// window offset: same layout and kind, same offset from the window base,
// contents deep-copied unless the template is fully uninitialized. The copy
// is marked CPU-local and exposed.
//
// Misses stay misses: an unregistered thread, an address outside the
// window, a template thread, or a template offset with no allocation behind
// it all return false.
func (m *Manager) materializeWindowLocked(vprobe, probe uint64, t vclock.ThreadID) (handle.Handle, bool) {
	ts := m.threads[t]
	if ts == nil || !m.haveTemplate || t == m.template {
		return handle.Invalid, false
	}
	if vprobe < ts.windowBase || vprobe-ts.windowBase >= m.layout.WindowSize {
		return handle.Invalid, false
	}

	tmpl := m.threads[m.template]
	tmplVaddr := tmpl.windowBase + (vprobe - ts.windowBase)
	tmplPaddr, ok := m.table.Walk(tmplVaddr)
	if !ok {
		return handle.Invalid, false
	}

	src, off, ok := m.ownerLocked(tmplPaddr)
	if !ok {
		// The template slot may itself be an untouched typed page.
		var base uint64
		src, base, ok = m.synthTypedLocked(tmplPaddr)
		if !ok {
			return handle.Invalid, false
		}
		off = tmplPaddr - base
	}

	srcLayout, srcKind, ok := m.opts.Oracle.Info(src)
	if !ok {
		panic(fmt.Sprintf("addrspace: no layout for template allocation %v", src))
	}

	base := probe - off
	h, err := m.opts.Backing.Create(base, srcLayout, srcKind)
	if err != nil {
		panic(fmt.Sprintf("addrspace: backing store refused cpu-local copy at %#x: %v", base, err))
	}
	if !m.opts.Backing.FullyUninit(src) {
		if err := m.opts.Backing.CopyOnMaterialize(h, src); err != nil {
			panic(fmt.Sprintf("addrspace: copying %v into %v: %v", src, h, err))
		}
	}
	m.cpuLocal[h] = struct{}{}
	m.setAddressLocked(h, base)
	m.exposed[h] = struct{}{}
	m.stats.Materialized++
	return h, true
}

// Locate turns a pointer into (handle, offset) for an access of the given
// size. Wildcard pointers resolve first; concrete pointers use their own
// provenance. The offset is the distance from the allocation's base,
// wrapped to the address width, so an out-of-bounds pointer still reports
// the allocation it was derived from and bounds checking stays upstream.
func (m *Manager) Locate(p Pointer, accessSize int64, t vclock.ThreadID) (handle.Handle, uint64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := p.Handle
	if p.Wildcard {
		var ok bool
		h, ok = m.resolveLocked(p.Addr, accessSize, t)
		if !ok {
			return handle.Invalid, 0, false
		}
	} else if !h.Valid() {
		return handle.Invalid, 0, false
	}

	base, ok := m.forward[h]
	if !ok {
		panic(fmt.Sprintf("addrspace: locating %v with no assigned address", h))
	}
	paddr, ok := m.physicalLocked(p.Addr)
	if !ok {
		return handle.Invalid, 0, false
	}
	off := paddr - base
	if m.layout.AddrMax != math.MaxUint64 {
		off &= m.layout.AddrMax
	}
	return h, off, true
}
