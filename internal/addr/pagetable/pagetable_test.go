package pagetable

import (
	"testing"

	"github.com/kolkov/addrspace/internal/addr/region"
)

// TestNew_RejectsBadPageSize tests the power-of-two page size requirement.
func TestNew_RejectsBadPageSize(t *testing.T) {
	for _, size := range []uint64{0, 3, 1000, 0x1001} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("New(%#x) did not panic", size)
				}
			}()
			New(size)
		}()
	}
}

// TestWalk_ExplicitMapping tests translation through per-page entries,
// including offset preservation within a page.
func TestWalk_ExplicitMapping(t *testing.T) {
	pt := New(0x1000)
	pt.Map(0x8000_0000, 0x4000)

	tests := []struct {
		name   string
		vaddr  uint64
		want   uint64
		wantOK bool
	}{
		{"page start", 0x8000_0000, 0x4000, true},
		{"mid page", 0x8000_0030, 0x4030, true},
		{"last byte", 0x8000_0FFF, 0x4FFF, true},
		{"next page unmapped", 0x8000_1000, 0, false},
		{"unrelated address", 0x1234, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := pt.Walk(tt.vaddr)
			if ok != tt.wantOK || (ok && got != tt.want) {
				t.Errorf("Walk(%#x) = %#x, %v, want %#x, %v", tt.vaddr, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// TestMap_RejectsUnaligned tests that unaligned mappings panic.
func TestMap_RejectsUnaligned(t *testing.T) {
	pt := New(0x1000)
	defer func() {
		if recover() == nil {
			t.Error("Map with unaligned vaddr did not panic")
		}
	}()
	pt.Map(0x8000_0800, 0x4000)
}

// TestMapRange tests multi-page contiguous mapping.
func TestMapRange(t *testing.T) {
	pt := New(0x1000)
	pt.MapRange(0x10_0000, 0x20_0000, 0x2800) // 2.5 pages → 3 pages

	for _, off := range []uint64{0, 0x1000, 0x2000} {
		got, ok := pt.Walk(0x10_0000 + off)
		if !ok || got != 0x20_0000+off {
			t.Errorf("Walk(%#x) = %#x, %v, want %#x, true", 0x10_0000+off, got, ok, 0x20_0000+off)
		}
	}
	if _, ok := pt.Walk(0x10_3000); ok {
		t.Error("page past the mapped range translates")
	}
}

// TestWalk_DirectMap tests interval-based translation over the cursor
// regions and precedence of explicit entries.
func TestWalk_DirectMap(t *testing.T) {
	l := region.Default()
	l.VirtBase = 0 // identity direct map
	pt := New(l.PageSize)
	pt.DirectMap(l)

	got, ok := pt.Walk(l.HeapBase + 0x123)
	if !ok || got != l.HeapBase+0x123 {
		t.Errorf("direct Walk(heap+0x123) = %#x, %v, want identity", got, ok)
	}
	if _, ok := pt.Walk(l.KernelLimit); ok {
		t.Error("address past every region translates")
	}

	// An explicit entry shadows the interval.
	page := region.AlignDown(l.HeapBase+0x10_0000, l.PageSize)
	pt.Map(page, 0x4000)
	got, ok = pt.Walk(page + 5)
	if !ok || got != 0x4005 {
		t.Errorf("explicit mapping did not win over direct map: got %#x, %v", got, ok)
	}
}

// TestWalk_DirectMapOffset tests a non-zero VirtBase direct map.
func TestWalk_DirectMapOffset(t *testing.T) {
	l := region.Layout{
		HeapBase: 0x8000_1000, HeapLimit: 0x8000_5000,
		StackBase: 0x8000_5000, StackLimit: 0x8000_9000, StackSize: 0x1000,
		CPUBase: 0x8000_9000, CPULimit: 0x8000_B000, WindowSize: 0x1000,
		KernelBase: 0x8000_B000, KernelLimit: 0x8000_F000,
		PageSize: 0x1000,
		VirtBase: 0x8000_0000,
		AddrMax:  1<<48 - 1,
	}
	if err := l.Validate(); err != nil {
		t.Fatalf("layout invalid: %v", err)
	}

	pt := New(l.PageSize)
	pt.DirectMap(l)

	got, ok := pt.Walk(0x8000_1040)
	if !ok || got != 0x1040 {
		t.Errorf("Walk(0x80001040) = %#x, %v, want 0x1040, true", got, ok)
	}
}

// TestTypedClassification tests marking, querying, and clearing typed pages.
func TestTypedClassification(t *testing.T) {
	pt := New(0x1000)

	pt.MarkTyped(0x4000, 0x1000, 64)

	st := pt.StateAt(0x4030)
	if st.Class != Typed || st.ElemSize != 64 {
		t.Errorf("StateAt(0x4030) = %+v, want typed/64", st)
	}
	if st := pt.StateAt(0x5000); st.Class != Untyped {
		t.Errorf("StateAt(0x5000) = %+v, want untyped", st)
	}

	if got := pt.Stats().TypedPages; got != 1 {
		t.Errorf("TypedPages = %d, want 1", got)
	}

	pt.MarkUntyped(0x4000, 0x1000)
	if st := pt.StateAt(0x4030); st.Class != Untyped {
		t.Errorf("StateAt after MarkUntyped = %+v, want untyped", st)
	}
	if got := pt.Stats().TypedPages; got != 0 {
		t.Errorf("TypedPages after MarkUntyped = %d, want 0", got)
	}
}

// TestMarkTyped_RejectsBadElemSize tests the power-of-two element size
// requirement.
func TestMarkTyped_RejectsBadElemSize(t *testing.T) {
	pt := New(0x1000)
	for _, elem := range []uint64{0, 3, 24} {
		func() {
			defer func() {
				if recover() == nil {
					t.Errorf("MarkTyped with element size %d did not panic", elem)
				}
			}()
			pt.MarkTyped(0x4000, 0x1000, elem)
		}()
	}
}

// TestStats_WalksAndFaults tests the translation counters.
func TestStats_WalksAndFaults(t *testing.T) {
	pt := New(0x1000)
	pt.Map(0x2000, 0x3000)

	pt.Walk(0x2000) // hit
	pt.Walk(0x9000) // fault
	pt.Walk(0x2FFF) // hit

	st := pt.Stats()
	if st.Walks != 3 {
		t.Errorf("Walks = %d, want 3", st.Walks)
	}
	if st.Faults != 1 {
		t.Errorf("Faults = %d, want 1", st.Faults)
	}
}
