package space

import (
	"io"
	"sort"

	jsoniter "github.com/json-iterator/go"

	"github.com/kolkov/addrspace/internal/addr/pagetable"
	"github.com/kolkov/addrspace/internal/addr/reusepool"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// AllocationSnapshot describes one addressed allocation at snapshot time.
// Dead allocations appear too; the forward map keeps them for diagnostics.
type AllocationSnapshot struct {
	Handle   uint64 `json:"handle"`
	Addr     uint64 `json:"addr"`      // physical base
	VirtAddr uint64 `json:"virt_addr"` // what callers see
	Size     uint64 `json:"size"`
	Align    uint64 `json:"align"`
	Region   string `json:"region"`
	Live     bool   `json:"live"`
	Exposed  bool   `json:"exposed"`
	CPULocal bool   `json:"cpu_local,omitempty"`
}

// ThreadSnapshot describes one registered thread's private ranges.
type ThreadSnapshot struct {
	ID         uint32 `json:"id"`
	StackTop   uint64 `json:"stack_top"`
	StackFloor uint64 `json:"stack_floor"`
	WindowBase uint64 `json:"window_base"`
	Template   bool   `json:"template,omitempty"`
}

// Snapshot is a point-in-time view of the whole manager, stable enough to
// serialize and diff between runs.
type Snapshot struct {
	Provenance  string               `json:"provenance"`
	HeapCursor  uint64               `json:"heap_cursor"`
	CPUCursor   uint64               `json:"cpu_cursor"`
	Threads     []ThreadSnapshot     `json:"threads,omitempty"`
	Allocations []AllocationSnapshot `json:"allocations"`
	Reuse       reusepool.Stats      `json:"reuse"`
	PageTable   *pagetable.Stats     `json:"page_table,omitempty"`
	Stats       Stats                `json:"stats"`
}

// Snapshot captures the current state. The result shares nothing with the
// manager and stays valid while the manager keeps running.
func (m *Manager) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Snapshot{
		Provenance: m.opts.Provenance.String(),
		HeapCursor: m.heapCursor,
		CPUCursor:  m.cpuCursor,
		Reuse:      m.pool.Stats(),
		Stats:      m.stats,
	}
	if m.table != nil {
		ts := m.table.Stats()
		s.PageTable = &ts
	}

	for id, th := range m.threads {
		s.Threads = append(s.Threads, ThreadSnapshot{
			ID:         uint32(id),
			StackTop:   th.stackTop,
			StackFloor: th.stackFloor,
			WindowBase: th.windowBase,
			Template:   m.haveTemplate && id == m.template,
		})
	}
	sort.Slice(s.Threads, func(i, j int) bool { return s.Threads[i].ID < s.Threads[j].ID })

	for h, paddr := range m.forward {
		a := AllocationSnapshot{
			Handle:   uint64(h),
			Addr:     paddr,
			VirtAddr: m.virtualLocked(paddr),
			Live:     m.opts.Oracle.Live(h),
		}
		if l, _, ok := m.opts.Oracle.Info(h); ok {
			a.Size = l.Size
			a.Align = l.Align
		}
		if kind, ok := m.layout.RegionOf(a.VirtAddr); ok {
			a.Region = kind.String()
		} else {
			a.Region = "native"
		}
		_, a.Exposed = m.exposed[h]
		_, a.CPULocal = m.cpuLocal[h]
		s.Allocations = append(s.Allocations, a)
	}
	sort.Slice(s.Allocations, func(i, j int) bool { return s.Allocations[i].Handle < s.Allocations[j].Handle })

	return s
}

// WriteJSON serializes the snapshot as a single JSON document.
func (s *Snapshot) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// FromJSON parses a snapshot previously produced by WriteJSON.
func FromJSON(r io.Reader) (*Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return nil, err
	}
	return &s, nil
}
