// Package vclock implements vector clocks for ordering address reuse.
//
// When a freed address range is handed back out to a new allocation, the
// reusing thread must observe the freeing thread's release point, otherwise an
// external race detector would see the new allocation's first access as racing
// with the old allocation's last access. The reuse pool stores one clock
// snapshot per pooled range and the manager merges it into the reusing
// thread's view on a cross-thread hit.
//
// Key operations:
//   - Join: synchronization (point-wise maximum), used on reuse acquire
//   - LessOrEqual: happens-before check, used by tests and bridge consumers
//
// Clocks are sparse: storage grows to the highest thread ID actually observed,
// so a run with a handful of threads pays a handful of words per clock.
package vclock

import (
	"strconv"
	"strings"
)

// ThreadID identifies one interpreter thread.
//
// Thread IDs are assigned by the embedder and are dense small integers in
// practice; clock storage is proportional to the highest ID observed.
type ThreadID uint32

// VClock represents logical time across interpreter threads.
//
// Element t stores the clock value for thread t. Missing elements are zero.
// The zero value is a valid clock at the beginning of logical time.
//
// VClock is not safe for concurrent use; callers synchronize.
type VClock struct {
	ticks []uint32
}

// New creates a zero-initialized vector clock.
func New() *VClock {
	return &VClock{}
}

// Clone creates a deep copy of the clock.
//
// Used when a snapshot of logical time must be preserved, for example when a
// release clock is stored alongside a pooled address range.
func (c *VClock) Clone() *VClock {
	clone := &VClock{}
	if len(c.ticks) > 0 {
		clone.ticks = make([]uint32, len(c.ticks))
		copy(clone.ticks, c.ticks)
	}
	return clone
}

// Join performs point-wise maximum: c = c ⊔ other.
//
// This is the synchronization operation: after Join, every event other has
// observed is also observed by c.
func (c *VClock) Join(other *VClock) {
	if other == nil {
		return
	}
	if len(other.ticks) > len(c.ticks) {
		c.grow(len(other.ticks))
	}
	for i, v := range other.ticks {
		if v > c.ticks[i] {
			c.ticks[i] = v
		}
	}
}

// LessOrEqual checks partial order: c ⊑ other.
//
// Returns true if c[t] <= other[t] for all threads t, meaning every event
// observed by c has also been observed by other.
func (c *VClock) LessOrEqual(other *VClock) bool {
	for i, v := range c.ticks {
		if v == 0 {
			continue
		}
		if other == nil || i >= len(other.ticks) || v > other.ticks[i] {
			return false
		}
	}
	return true
}

// HappensBefore reports whether this clock happened-before other.
//
// Alias for LessOrEqual for call-site readability.
func (c *VClock) HappensBefore(other *VClock) bool {
	return c.LessOrEqual(other)
}

// Tick advances the clock for thread t by one.
func (c *VClock) Tick(t ThreadID) {
	c.grow(int(t) + 1)
	c.ticks[t]++
}

// Get returns the clock value for thread t.
func (c *VClock) Get(t ThreadID) uint32 {
	if int(t) >= len(c.ticks) {
		return 0
	}
	return c.ticks[t]
}

// Set sets the clock value for thread t.
func (c *VClock) Set(t ThreadID, v uint32) {
	c.grow(int(t) + 1)
	c.ticks[t] = v
}

// grow extends storage to at least n elements.
func (c *VClock) grow(n int) {
	if n <= len(c.ticks) {
		return
	}
	ticks := make([]uint32, n)
	copy(ticks, c.ticks)
	c.ticks = ticks
}

// String returns a debug representation of the clock.
//
// Format: "{t1:v1, t2:v2, ...}" showing only non-zero entries.
// Example: "{0:50, 1:30, 5:42}" means thread 0 at 50, thread 1 at 30,
// thread 5 at 42.
func (c *VClock) String() string {
	var parts []string
	for i, v := range c.ticks {
		if v != 0 {
			parts = append(parts, strconv.Itoa(i)+":"+strconv.FormatUint(uint64(v), 10))
		}
	}
	if len(parts) == 0 {
		return "{}"
	}
	return "{" + strings.Join(parts, ", ") + "}"
}
