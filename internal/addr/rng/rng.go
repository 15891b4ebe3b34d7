// Package rng provides the injected randomness source for address slack and
// reuse-pool selection.
//
// Everything probabilistic in the address-space manager flows through one
// Rand value handed in at construction, never through global randomness, so
// a fixed seed reproduces an entire run bit-for-bit. Tests go one step
// further and script the exact draws.
package rng

import "math/rand/v2"

// Rand is the randomness surface the manager consumes.
//
// IntN returns a uniform int in [0, n); Float64 a uniform float in [0, 1).
type Rand interface {
	IntN(n int) int
	Float64() float64
}

// New returns a seeded PCG-backed source.
//
// The same seed always yields the same draw sequence.
func New(seed uint64) Rand {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// Script is a deterministic Rand for tests: IntN and Float64 replay
// pre-recorded draws.
//
// Exhausted scripts return zero, which reads as "no slack" for IntN and
// "below any positive rate" for Float64. An empty Script is therefore the
// all-deterministic source: zero slack, every probabilistic gate passes.
type Script struct {
	Ints   []int
	Floats []float64

	intPos   int
	floatPos int
}

// IntN replays the next scripted int draw, clamped into [0, n).
func (s *Script) IntN(n int) int {
	if s.intPos >= len(s.Ints) {
		return 0
	}
	v := s.Ints[s.intPos]
	s.intPos++
	if v < 0 || v >= n {
		return 0
	}
	return v
}

// Float64 replays the next scripted float draw.
func (s *Script) Float64() float64 {
	if s.floatPos >= len(s.Floats) {
		return 0
	}
	v := s.Floats[s.floatPos]
	s.floatPos++
	return v
}
