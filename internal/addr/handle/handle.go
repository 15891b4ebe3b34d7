// Package handle defines allocation handles, the stable identity of every
// simulated allocation.
//
// A Handle is deliberately opaque: it carries no address information and is
// never reused for a different allocation, even after the original allocation
// dies. Address assignment and reuse happen one layer up; the handle itself
// stays valid as a diagnostic identity forever. This is what makes
// "use after free" reportable against the original allocation instead of
// whatever currently occupies the address.
package handle

import (
	"strconv"
	"sync/atomic"
)

// Handle identifies one allocation for its entire lifetime and beyond.
//
// The zero value is Invalid and never identifies an allocation. Handles are
// ordered by creation; the numeric value has no other meaning.
type Handle uint64

// Invalid is the zero Handle. It never identifies an allocation.
const Invalid Handle = 0

// Valid reports whether h identifies an allocation.
func (h Handle) Valid() bool {
	return h != Invalid
}

// String returns a debug representation, e.g. "alloc#42".
func (h Handle) String() string {
	if h == Invalid {
		return "alloc#invalid"
	}
	return "alloc#" + strconv.FormatUint(uint64(h), 10)
}

// Kind classifies what a handle's backing allocation is.
//
// The distinction matters in mirrored native addressing: function and vtable
// handles have no meaningful bytes but must still receive unique addresses,
// so they get minimum-size dummy backing.
type Kind uint8

const (
	// Data is an ordinary allocation with readable/writable bytes.
	Data Kind = iota
	// Function is a function pointer target; it has no data bytes.
	Function
	// VTable is a virtual dispatch table target; it has no data bytes.
	VTable
)

// String returns the string representation of a Kind.
func (k Kind) String() string {
	switch k {
	case Data:
		return "data"
	case Function:
		return "function"
	case VTable:
		return "vtable"
	default:
		return "unknown"
	}
}

// Layout describes the size and alignment of an allocation.
//
// Align must be a power of two, minimum 1. Size may be zero; zero-sized
// allocations still receive unique addresses.
type Layout struct {
	Size  uint64
	Align uint64
}

// String returns a debug representation, e.g. "16b/8".
func (l Layout) String() string {
	return strconv.FormatUint(l.Size, 10) + "b/" + strconv.FormatUint(l.Align, 10)
}

// Source mints fresh handles.
//
// Handles increase monotonically and are never recycled, so a Source must
// outlive every allocation it identified. The zero value is ready to use and
// starts minting at 1 (Invalid is skipped).
//
// Safe for concurrent use.
type Source struct {
	next atomic.Uint64
}

// Next returns a handle that has never been returned before.
func (s *Source) Next() Handle {
	return Handle(s.next.Add(1))
}
