package addrmap

import (
	"math/rand/v2"
	"sort"
	"testing"

	"github.com/kolkov/addrspace/internal/addr/handle"
)

// TestInsert_AppendFastPath tests that ascending inserts keep the map sorted.
func TestInsert_AppendFastPath(t *testing.T) {
	m := New()
	m.Insert(0x1000, handle.Handle(1))
	m.Insert(0x2000, handle.Handle(2))
	m.Insert(0x3000, handle.Handle(3))

	if m.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", m.Len())
	}
	checkSorted(t, m)
}

// TestInsert_MiddleAndFront tests binary-search inserts below the maximum.
func TestInsert_MiddleAndFront(t *testing.T) {
	m := New()
	m.Insert(0x3000, handle.Handle(3))
	m.Insert(0x1000, handle.Handle(1)) // front
	m.Insert(0x2000, handle.Handle(2)) // middle

	checkSorted(t, m)

	for addr, want := range map[uint64]handle.Handle{
		0x1000: 1,
		0x2000: 2,
		0x3000: 3,
	} {
		got, ok := m.At(addr)
		if !ok || got != want {
			t.Errorf("At(%#x) = %v, %v, want %v, true", addr, got, ok, want)
		}
	}
}

// TestPredecessor tests nearest-predecessor queries around entry boundaries.
func TestPredecessor(t *testing.T) {
	m := New()
	m.Insert(0x1000, handle.Handle(1))
	m.Insert(0x2000, handle.Handle(2))

	tests := []struct {
		name       string
		probe      uint64
		wantHandle handle.Handle
		wantOK     bool
	}{
		{"below all", 0xFFF, handle.Invalid, false},
		{"exact first", 0x1000, 1, true},
		{"inside first", 0x1500, 1, true},
		{"just before second", 0x1FFF, 1, true},
		{"exact second", 0x2000, 2, true},
		{"past second", 0x9999, 2, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, ok := m.Predecessor(tt.probe)
			if ok != tt.wantOK {
				t.Fatalf("Predecessor(%#x) ok = %v, want %v", tt.probe, ok, tt.wantOK)
			}
			if ok && e.Handle != tt.wantHandle {
				t.Errorf("Predecessor(%#x) = %v, want %v", tt.probe, e.Handle, tt.wantHandle)
			}
		})
	}
}

// TestPredecessor_Empty tests that an empty map has no predecessor.
func TestPredecessor_Empty(t *testing.T) {
	m := New()
	if _, ok := m.Predecessor(0x1000); ok {
		t.Error("Predecessor on empty map returned an entry")
	}
}

// TestRemove tests exact-address removal.
func TestRemove(t *testing.T) {
	m := New()
	m.Insert(0x1000, handle.Handle(1))
	m.Insert(0x2000, handle.Handle(2))

	h, ok := m.Remove(0x1000)
	if !ok || h != handle.Handle(1) {
		t.Fatalf("Remove(0x1000) = %v, %v, want alloc#1, true", h, ok)
	}
	if m.Len() != 1 {
		t.Errorf("Len() after remove = %d, want 1", m.Len())
	}
	if _, ok := m.At(0x1000); ok {
		t.Error("At(0x1000) still present after Remove")
	}

	// Removing a non-base address fails without touching the map.
	if _, ok := m.Remove(0x1500); ok {
		t.Error("Remove(0x1500) succeeded for an address that is not a base")
	}
	if m.Len() != 1 {
		t.Errorf("Len() after failed remove = %d, want 1", m.Len())
	}

	// After removal, the freed range no longer resolves.
	if e, ok := m.Predecessor(0x1500); ok {
		t.Errorf("Predecessor(0x1500) = %+v after removal, want miss", e)
	}
}

// TestRandomized tests sortedness and lookup consistency under a random
// mix of inserts and removals.
func TestRandomized(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 7))
	m := New()
	shadow := map[uint64]handle.Handle{}

	next := handle.Handle(0)
	for i := 0; i < 2000; i++ {
		if rng.IntN(3) != 0 || len(shadow) == 0 {
			addr := uint64(rng.IntN(1 << 20))
			if _, dup := shadow[addr]; dup {
				continue
			}
			next++
			m.Insert(addr, next)
			shadow[addr] = next
		} else {
			for addr := range shadow {
				m.Remove(addr)
				delete(shadow, addr)
				break
			}
		}
	}

	checkSorted(t, m)
	if m.Len() != len(shadow) {
		t.Fatalf("Len() = %d, want %d", m.Len(), len(shadow))
	}
	for addr, want := range shadow {
		got, ok := m.At(addr)
		if !ok || got != want {
			t.Errorf("At(%#x) = %v, %v, want %v, true", addr, got, ok, want)
		}
	}
}

// checkSorted fails the test if entries are not in strictly ascending
// address order.
func checkSorted(t *testing.T, m *Map) {
	t.Helper()
	entries := m.All()
	sorted := sort.SliceIsSorted(entries, func(i, j int) bool {
		return entries[i].Addr < entries[j].Addr
	})
	if !sorted {
		t.Fatalf("entries out of order: %+v", entries)
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Addr == entries[i-1].Addr {
			t.Fatalf("duplicate address %#x in map", entries[i].Addr)
		}
	}
}
