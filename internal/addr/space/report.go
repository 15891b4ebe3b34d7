package space

import (
	"fmt"
	"strings"

	"github.com/kolkov/addrspace/internal/addr/sitedepot"
)

// Stats counts manager activity. All counters are cumulative since New.
type Stats struct {
	Assigned     uint64 // fresh address assignments, including reuse
	Reused       uint64 // assignments served from the reuse pool
	Freed        uint64 // retired address mappings
	Resolves     uint64 // wildcard resolution attempts
	Synthesized  uint64 // allocations manufactured on typed pages
	Materialized uint64 // CPU-local copies cloned from the template
	Exposed      uint64 // exposure events
	Warnings     uint64 // provenance warnings emitted
}

// Stats returns a copy of the current counters.
func (m *Manager) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// WarnSiteCount reports how many distinct cast sites have warned so far.
func (m *Manager) WarnSiteCount() uint64 {
	return m.sites.Count()
}

// warnIntToPtrLocked emits the once-per-site provenance warning. The first
// warning of the whole run carries the full explanation; later sites get
// the short form.
func (m *Manager) warnIntToPtrLocked(site sitedepot.Site, firstEver bool) {
	var b strings.Builder
	b.WriteString("==================\n")
	b.WriteString("WARNING: integer-to-pointer cast\n")
	fmt.Fprintf(&b, "  at %s\n", site)
	if firstEver {
		b.WriteString("  Casting an integer to a pointer erases provenance. The resulting\n")
		b.WriteString("  wildcard pointer resolves against any exposed allocation covering\n")
		b.WriteString("  its address, which can mask accesses a concrete pointer would have\n")
		b.WriteString("  rejected.\n")
		b.WriteString("  Select permissive provenance to silence these warnings, or strict\n")
		b.WriteString("  provenance to reject such casts outright.\n")
	}
	b.WriteString("==================\n")
	fmt.Fprint(m.opts.Warnings, b.String())
	m.stats.Warnings++
}
