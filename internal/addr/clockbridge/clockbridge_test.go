package clockbridge

import (
	"testing"

	"github.com/kolkov/addrspace/internal/addr/vclock"
)

// TestNop tests that the disabled bridge yields nil clocks and accepts
// anything.
func TestNop(t *testing.T) {
	var b Bridge = Nop{}

	if c := b.Release(1); c != nil {
		t.Errorf("Nop.Release = %v, want nil", c)
	}
	// Must not panic on nil or real clocks.
	b.Acquire(1, nil)
	b.Acquire(1, vclock.New())
}

// TestThreads_ReleaseAcquire tests the happens-before edge from a release
// on one thread to an acquire on another.
func TestThreads_ReleaseAcquire(t *testing.T) {
	b := NewThreads()

	// Thread 1 does some local work, then releases.
	b.Tick(1)
	b.Tick(1)
	release := b.Release(1)
	if release == nil {
		t.Fatal("Release returned nil clock")
	}

	// Thread 2 acquires the release clock.
	b.Acquire(2, release)

	after := b.ClockOf(2)
	if !release.HappensBefore(after) {
		t.Errorf("release clock %v must happen-before acquirer clock %v", release, after)
	}
}

// TestThreads_ReleaseAdvances tests that a release point is ordered before
// the releasing thread's later events.
func TestThreads_ReleaseAdvances(t *testing.T) {
	b := NewThreads()

	first := b.Release(1)
	second := b.Release(1)

	if !first.HappensBefore(second) {
		t.Errorf("first release %v must happen-before second release %v", first, second)
	}
	if second.HappensBefore(first) {
		t.Errorf("second release %v must not happen-before first %v", second, first)
	}
}

// TestThreads_SnapshotIsolated tests that a released snapshot does not
// change when the thread keeps running.
func TestThreads_SnapshotIsolated(t *testing.T) {
	b := NewThreads()

	release := b.Release(3)
	was := release.Get(3)

	b.Tick(3)
	b.Tick(3)

	if got := release.Get(3); got != was {
		t.Errorf("snapshot mutated after later ticks: %d, want %d", got, was)
	}
}

// TestThreads_AcquireNil tests that acquiring a nil clock is a no-op.
func TestThreads_AcquireNil(t *testing.T) {
	b := NewThreads()
	before := b.ClockOf(2)
	b.Acquire(2, nil)
	after := b.ClockOf(2)

	if !before.LessOrEqual(after) || !after.LessOrEqual(before) {
		t.Errorf("Acquire(nil) changed the clock: %v -> %v", before, after)
	}
}

// TestThreads_ZeroValue tests that the zero value works without NewThreads.
func TestThreads_ZeroValue(t *testing.T) {
	var b Threads
	c := b.Release(0)
	if c == nil {
		t.Fatal("zero-value Threads Release returned nil")
	}
	if c.Get(0) == 0 {
		t.Error("first release clock should already be non-zero")
	}
}
