package hostmem

import (
	"errors"
	"testing"
	"unsafe"
)

// TestAlloc_AddressMatchesBytes tests that the returned address really is
// the address of the returned bytes.
func TestAlloc_AddressMatchesBytes(t *testing.T) {
	p := New()
	defer p.Close()

	block, addr, err := p.Alloc(64, 8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if len(block) != 64 {
		t.Errorf("len(block) = %d, want 64", len(block))
	}
	if got := uint64(uintptr(unsafe.Pointer(&block[0]))); got != addr {
		t.Errorf("returned address %#x != byte address %#x", addr, got)
	}
}

// TestAlloc_Alignment tests that addresses honor the requested alignment.
func TestAlloc_Alignment(t *testing.T) {
	p := New()
	defer p.Close()

	for _, align := range []uint64{1, 8, 64, 4096} {
		_, addr, err := p.Alloc(10, align)
		if err != nil {
			t.Fatalf("Alloc(10, %d): %v", align, err)
		}
		if addr%align != 0 {
			t.Errorf("Alloc(10, %d) address %#x not aligned", align, addr)
		}
	}
}

// TestAlloc_UniqueAddresses tests that allocations never overlap, including
// zero-size ones.
func TestAlloc_UniqueAddresses(t *testing.T) {
	p := New()
	defer p.Close()

	seen := map[uint64]bool{}
	for i := 0; i < 100; i++ {
		_, addr, err := p.Alloc(0, 1) // zero-size gets a 1-byte dummy
		if err != nil {
			t.Fatalf("Alloc: %v", err)
		}
		if seen[addr] {
			t.Fatalf("address %#x handed out twice", addr)
		}
		seen[addr] = true
	}
}

// TestAlloc_LargeRequest tests requests bigger than the slab unit.
func TestAlloc_LargeRequest(t *testing.T) {
	p := New()
	defer p.Close()

	block, addr, err := p.Alloc(3*slabSize, 64)
	if err != nil {
		t.Fatalf("Alloc(3*slabSize): %v", err)
	}
	if uint64(len(block)) != 3*slabSize {
		t.Errorf("len(block) = %d, want %d", len(block), 3*slabSize)
	}
	if addr%64 != 0 {
		t.Errorf("large allocation address %#x not aligned", addr)
	}

	// The pool must keep working on the next ordinary request.
	if _, _, err := p.Alloc(16, 8); err != nil {
		t.Fatalf("Alloc after large request: %v", err)
	}
}

// TestAlloc_Writable tests that allocated memory is zeroed and writable.
func TestAlloc_Writable(t *testing.T) {
	p := New()
	defer p.Close()

	block, _, err := p.Alloc(128, 8)
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	for i, b := range block {
		if b != 0 {
			t.Fatalf("byte %d = %#x, want zeroed memory", i, b)
		}
	}
	block[0] = 0xAB
	block[127] = 0xCD
	if block[0] != 0xAB || block[127] != 0xCD {
		t.Error("writes to allocated memory did not stick")
	}
}

// TestClose tests that a closed pool rejects further allocation.
func TestClose(t *testing.T) {
	p := New()
	if _, _, err := p.Alloc(16, 8); err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := p.Alloc(16, 8); !errors.Is(err, ErrClosed) {
		t.Errorf("Alloc after Close error = %v, want ErrClosed", err)
	}
	// Double close is fine.
	if err := p.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
}

// TestAllocated tests the running byte counter.
func TestAllocated(t *testing.T) {
	p := New()
	defer p.Close()

	p.Alloc(100, 1)
	p.Alloc(0, 1) // counts as 1
	if got := p.Allocated(); got != 101 {
		t.Errorf("Allocated() = %d, want 101", got)
	}
}
