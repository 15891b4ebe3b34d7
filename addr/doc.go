// Package addr manages a simulated address space for interpreters that
// execute programs against opaque allocation handles.
//
// An interpreter that wants full control over memory semantics cannot hand
// out real machine addresses: it identifies every allocation by an opaque
// [Handle] and keeps the bytes wherever it likes. The moment the interpreted
// program observes an address, though, the handle needs a concrete integer.
// This package owns that assignment and everything downstream of it:
// translation from addresses back to handles, reuse of freed ranges,
// use-after-free attribution, and the provenance rules for casting integers
// to pointers.
//
// # Quick Start
//
// The embedder supplies two collaborator halves: an [Oracle] answering
// liveness and layout questions, and a [Backing] creating byte storage when
// the manager synthesizes allocations. Everything else is optional:
//
//	space, err := addr.New(addr.Config{
//		Oracle:  store,
//		Backing: store,
//		Seed:    42,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	// The program takes the address of an allocation.
//	a, err := space.AddrOf(h, addr.Heap, thread)
//
//	// The program casts an integer back to a pointer and dereferences it.
//	p, err := space.IntToPtr(a+8, site)
//	owner, off, ok := space.Locate(p, 4, thread)
//
// # Address Assignment
//
// Addresses are assigned lazily, once per handle, and never change. Heap
// and CPU-local allocations grow upward from region cursors with a little
// random slack between neighbours; stacks grow downward per thread. Freed
// ranges enter a probabilistic reuse pool, so programs exercising
// malloc/free/malloc address equality behave the way they would against a
// real allocator. All randomness derives from Config.Seed: same seed, same
// operations, same addresses.
//
// # Resolution and Exposure
//
// A wildcard pointer, minted by an integer-to-pointer cast, carries no
// provenance. Resolving one walks the reverse map by nearest predecessor
// and succeeds only when the address falls inside an allocation that was
// explicitly exposed with [AddressSpace.Expose]. Freed allocations leave
// the reverse map immediately but keep their forward entry forever, which
// is what lets a stale pointer be reported as "use after free of X" rather
// than resolving to whoever reused the range.
//
// # Virtual Memory
//
// With a [PageTable] configured, addresses translate through page mappings
// before resolution, and two synthesis rules fill misses: an access to a
// page marked as typed manufactures the covering element in place, and an
// access inside a thread's CPU-local window clones the template thread's
// allocation at the matching offset. Both serve interpreters running
// kernel-style images where memory exists before any allocation event.
//
// # Provenance Policy
//
// Integer-to-pointer casts follow [Config.Provenance]: the default warns
// once per cast site and resolves lazily, permissive does the same
// silently, and strict refuses the cast, which keeps every pointer's
// provenance concrete. See [ProvenanceDefault], [ProvenancePermissive],
// [ProvenanceStrict].
//
// # Race Detector Integration
//
// Address reuse creates happens-before obligations: a thread receiving a
// range another thread freed must observe everything the freeing thread
// did to it. The manager routes those edges through a [ClockBridge];
// plug in [ThreadClocks] for a standalone tracker or adapt your detector's
// clocks behind the interface.
package addr
