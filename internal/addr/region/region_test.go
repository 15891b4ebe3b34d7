package region

import "testing"

// TestAlignUp tests upward alignment rounding.
func TestAlignUp(t *testing.T) {
	tests := []struct {
		addr, align, want uint64
	}{
		{0x1000, 8, 0x1000},  // already aligned
		{0x1001, 8, 0x1008},  // round up
		{0x1007, 8, 0x1008},  // just below boundary
		{0x1001, 1, 0x1001},  // alignment 1 never moves
		{0x1001, 16, 0x1010}, // larger alignment
		{0, 4096, 0},         // zero stays zero
		{1, 4096, 4096},
		{30, 24, 48}, // non-power-of-two alignment
	}
	for _, tt := range tests {
		if got := AlignUp(tt.addr, tt.align); got != tt.want {
			t.Errorf("AlignUp(%#x, %d) = %#x, want %#x", tt.addr, tt.align, got, tt.want)
		}
	}
}

// TestAlignDown tests downward alignment rounding.
func TestAlignDown(t *testing.T) {
	tests := []struct {
		addr, align, want uint64
	}{
		{0x1000, 8, 0x1000},
		{0x1007, 8, 0x1000},
		{0x4030, 64, 0x4000},
		{0x1001, 1, 0x1001},
	}
	for _, tt := range tests {
		if got := AlignDown(tt.addr, tt.align); got != tt.want {
			t.Errorf("AlignDown(%#x, %d) = %#x, want %#x", tt.addr, tt.align, got, tt.want)
		}
	}
}

// TestAlignClass tests the log2 subpool keying.
func TestAlignClass(t *testing.T) {
	tests := []struct {
		align uint64
		want  uint8
	}{
		{1, 0},
		{2, 1},
		{8, 3},
		{4096, 12},
	}
	for _, tt := range tests {
		if got := AlignClass(tt.align); got != tt.want {
			t.Errorf("AlignClass(%d) = %d, want %d", tt.align, got, tt.want)
		}
	}
}

// TestDefault_Validate tests that the default layout is self-consistent.
func TestDefault_Validate(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v, want nil", err)
	}
}

// TestValidate_Rejects tests that broken geometries are rejected.
func TestValidate_Rejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Layout)
	}{
		{"non-power-of-two page size", func(l *Layout) { l.PageSize = 3000 }},
		{"zero page size", func(l *Layout) { l.PageSize = 0 }},
		{"inverted region", func(l *Layout) { l.HeapLimit = l.HeapBase }},
		{"overlapping regions", func(l *Layout) { l.StackBase = l.HeapBase + 1 }},
		{"bad AddrMax", func(l *Layout) { l.AddrMax = 1 << 48 }},
		{"region past AddrMax", func(l *Layout) { l.AddrMax = 1<<40 - 1 }},
		{"oversized window", func(l *Layout) { l.WindowSize = l.CPULimit - l.CPUBase + 1 }},
		{"zero stack strip", func(l *Layout) { l.StackSize = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := Default()
			tt.mutate(&l)
			if err := l.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

// TestRegionOf tests address classification into regions.
func TestRegionOf(t *testing.T) {
	l := Default()

	tests := []struct {
		addr   uint64
		want   Kind
		wantOK bool
	}{
		{l.HeapBase, Heap, true},
		{l.HeapLimit - 1, Heap, true},
		{l.StackBase, Stack, true},
		{l.CPUBase, CPULocal, true},
		{l.KernelBase, Kernel, true},
		{l.KernelLimit, 0, false}, // past every band
		{0, 0, false},             // below every band
	}
	for _, tt := range tests {
		got, ok := l.RegionOf(tt.addr)
		if ok != tt.wantOK || (ok && got != tt.want) {
			t.Errorf("RegionOf(%#x) = %v, %v, want %v, %v", tt.addr, got, ok, tt.want, tt.wantOK)
		}
	}
}

// TestKind_String tests region kind names.
func TestKind_String(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{Heap, "heap"},
		{Stack, "stack"},
		{CPULocal, "cpu-local"},
		{Kernel, "kernel"},
		{Kind(42), "unknown"},
	}
	for _, tt := range tests {
		if got := tt.kind.String(); got != tt.want {
			t.Errorf("Kind(%d).String() = %q, want %q", tt.kind, got, tt.want)
		}
	}
}
