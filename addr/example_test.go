package addr_test

import (
	"fmt"

	"github.com/kolkov/addrspace/addr"
	"github.com/kolkov/addrspace/internal/addr/simstore"
)

// Example demonstrates the basic allocation lifecycle: an opaque handle
// receives an address on first request, keeps it, and becomes resolvable
// once it is exposed.
func Example() {
	store := simstore.New()
	space, err := addr.New(addr.Config{Oracle: store, Backing: store})
	if err != nil {
		panic(err)
	}
	defer space.Close()
	_ = space.RegisterThread(0, addr.ThreadConfig{})

	h := store.NewAllocation(addr.Layout{Size: 16, Align: 8}, addr.Data)

	a, _ := space.AddrOf(h, addr.Heap, 0)
	b, _ := space.AddrOf(h, addr.Heap, 0)
	fmt.Println("stable address:", a == b)
	fmt.Println("aligned to 8:", a%8 == 0)

	// The address is known but not exposed, so an integer probe at it
	// finds nothing.
	_, found := space.Resolve(a, 1, 0)
	fmt.Println("found before expose:", found)

	space.Expose(h)
	owner, _ := space.Resolve(a, 1, 0)
	fmt.Println("found after expose:", owner)

	// Output:
	// stable address: true
	// aligned to 8: true
	// found before expose: false
	// found after expose: alloc#1
}

// Example_addressReuse demonstrates address reuse across a free. With the
// reuse rate forced to 1.0 the freed range is always remembered and always
// handed back out for a matching request.
func Example_addressReuse() {
	store := simstore.New()
	reuse := addr.ReuseOptions{Rate: 1.0}
	space, err := addr.New(addr.Config{Oracle: store, Backing: store, Reuse: &reuse})
	if err != nil {
		panic(err)
	}
	defer space.Close()
	_ = space.RegisterThread(0, addr.ThreadConfig{})

	first := store.NewAllocation(addr.Layout{Size: 32, Align: 8}, addr.Data)
	a, _ := space.AddrOf(first, addr.Heap, 0)

	store.Kill(first)
	space.Free(first, addr.Layout{Size: 32, Align: 8}, addr.Heap, 0)

	second := store.NewAllocation(addr.Layout{Size: 32, Align: 8}, addr.Data)
	b, _ := space.AddrOf(second, addr.Heap, 0)

	fmt.Println("address reused:", a == b)
	fmt.Println("reuses counted:", space.Stats().Reused)

	// Output:
	// address reused: true
	// reuses counted: 1
}

// Example_stackAddresses demonstrates per-thread stack placement: frames
// are carved downward from the thread's stack top, with no randomization.
func Example_stackAddresses() {
	store := simstore.New()
	space, err := addr.New(addr.Config{Oracle: store, Backing: store})
	if err != nil {
		panic(err)
	}
	defer space.Close()
	_ = space.RegisterThread(0, addr.ThreadConfig{})

	frame1 := store.NewAllocation(addr.Layout{Size: 64, Align: 16}, addr.Data)
	frame2 := store.NewAllocation(addr.Layout{Size: 64, Align: 16}, addr.Data)

	a, _ := space.AddrOf(frame1, addr.Stack, 0)
	b, _ := space.AddrOf(frame2, addr.Stack, 0)

	fmt.Printf("first frame:  %#x\n", a)
	fmt.Printf("second frame: %#x\n", b)
	fmt.Println("grows down:", b < a)

	// Output:
	// first frame:  0x5fffffffffc0
	// second frame: 0x5fffffffff80
	// grows down: true
}

// Example_provenance demonstrates an integer-to-pointer cast: the result
// carries wildcard provenance and locates whichever exposed allocation
// spans the address.
func Example_provenance() {
	store := simstore.New()
	space, err := addr.New(addr.Config{
		Oracle:     store,
		Backing:    store,
		Provenance: addr.ProvenancePermissive,
	})
	if err != nil {
		panic(err)
	}
	defer space.Close()
	_ = space.RegisterThread(0, addr.ThreadConfig{})

	h := store.NewAllocation(addr.Layout{Size: 64, Align: 8}, addr.Data)
	a, _ := space.AddrOf(h, addr.Heap, 0)
	space.Expose(h)

	p, _ := space.IntToPtr(a+8, addr.Site{})
	owner, off, ok := space.Locate(p, 1, 0)

	fmt.Println("wildcard:", p.Wildcard)
	fmt.Println("landed in:", owner, "at offset", off, ok)

	// Output:
	// wildcard: true
	// landed in: alloc#1 at offset 8 true
}
