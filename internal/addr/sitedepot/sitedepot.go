// Package sitedepot implements call-site interning for one-shot diagnostics.
//
// The Default provenance policy warns about an integer-to-pointer cast only
// the first time it happens at a given source location. The depot remembers
// which locations have already warned: sites are hashed with FNV-1a and
// deduplicated in a sync.Map, so the hot path of an already-warned site is
// a single lock-free lookup.
//
// A hash collision would suppress a warning for a distinct site. Warnings
// are advisory, so this is acceptable; it cannot affect correctness.
package sitedepot

import (
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
)

// FNV-1a constants, same as hash/fnv but inlined to keep the hot path
// allocation-free.
const (
	offset64 = 14695981039346656037
	prime64  = 1099511628211
)

// Site is one source location in the interpreted program.
//
// The embedder supplies the location of the cast in the program under
// interpretation. The zero Site means "unknown"; callers that have no
// source mapping can fall back to Caller for a host-side location.
type Site struct {
	File string
	Line int
}

// String returns the conventional "file:line" form.
func (s Site) String() string {
	if s == (Site{}) {
		return "<unknown>"
	}
	return s.File + ":" + strconv.Itoa(s.Line)
}

// Caller returns the host call site skip frames above the caller.
//
// Used as a fallback when the embedder does not track interpreted source
// locations.
func Caller(skip int) Site {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return Site{}
	}
	return Site{File: file, Line: line}
}

// Depot deduplicates sites.
//
// Safe for concurrent use. The zero value is ready to use.
type Depot struct {
	// seen maps site hash → struct{}{}. Entries are never removed except
	// by Reset.
	seen sync.Map

	// distinct counts distinct sites observed, for stats and the
	// "very first warning" detail.
	distinct atomic.Uint64
}

// New creates an empty depot.
func New() *Depot {
	return &Depot{}
}

// Observe records a visit to site.
//
// Returns (newSite, firstEver): newSite is true if this site has not been
// observed before; firstEver is true only for the first new site the depot
// has ever seen, which is when diagnostics attach their extended
// explanation.
func (d *Depot) Observe(s Site) (newSite, firstEver bool) {
	h := hashSite(s)
	if _, loaded := d.seen.LoadOrStore(h, struct{}{}); loaded {
		return false, false
	}
	return true, d.distinct.Add(1) == 1
}

// Count returns the number of distinct sites observed.
func (d *Depot) Count() uint64 {
	return d.distinct.Load()
}

// Reset forgets all observed sites. Test support.
func (d *Depot) Reset() {
	d.seen.Range(func(k, _ any) bool {
		d.seen.Delete(k)
		return true
	})
	d.distinct.Store(0)
}

// hashSite computes the FNV-1a hash of a site.
func hashSite(s Site) uint64 {
	h := uint64(offset64)
	for i := 0; i < len(s.File); i++ {
		h ^= uint64(s.File[i])
		h *= prime64
	}
	h ^= uint64(uint32(s.Line))
	h *= prime64
	return h
}
