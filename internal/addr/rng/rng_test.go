package rng

import "testing"

// TestNew_Deterministic tests that equal seeds produce equal sequences.
func TestNew_Deterministic(t *testing.T) {
	a := New(42)
	b := New(42)
	for i := 0; i < 100; i++ {
		if got, want := a.IntN(16), b.IntN(16); got != want {
			t.Fatalf("draw %d: %d != %d for identical seeds", i, got, want)
		}
	}

	c := New(43)
	same := true
	a42 := New(42)
	for i := 0; i < 100; i++ {
		if a42.IntN(1<<30) != c.IntN(1<<30) {
			same = false
			break
		}
	}
	if same {
		t.Error("different seeds produced identical 100-draw sequences")
	}
}

// TestNew_Bounds tests that draws respect their ranges.
func TestNew_Bounds(t *testing.T) {
	r := New(7)
	for i := 0; i < 1000; i++ {
		if v := r.IntN(16); v < 0 || v >= 16 {
			t.Fatalf("IntN(16) = %d out of range", v)
		}
		if f := r.Float64(); f < 0 || f >= 1 {
			t.Fatalf("Float64() = %v out of range", f)
		}
	}
}

// TestScript_Replay tests that a script replays its draws in order.
func TestScript_Replay(t *testing.T) {
	s := &Script{
		Ints:   []int{3, 15, 99},
		Floats: []float64{0.4, 0.99},
	}

	if got := s.IntN(16); got != 3 {
		t.Errorf("first IntN = %d, want 3", got)
	}
	if got := s.IntN(16); got != 15 {
		t.Errorf("second IntN = %d, want 15", got)
	}
	// 99 is out of range for n=16 and clamps to 0.
	if got := s.IntN(16); got != 0 {
		t.Errorf("out-of-range scripted IntN = %d, want 0", got)
	}

	if got := s.Float64(); got != 0.4 {
		t.Errorf("first Float64 = %v, want 0.4", got)
	}
	if got := s.Float64(); got != 0.99 {
		t.Errorf("second Float64 = %v, want 0.99", got)
	}
}

// TestScript_Exhausted tests that an exhausted (or empty) script returns zero.
func TestScript_Exhausted(t *testing.T) {
	s := &Script{}
	if got := s.IntN(16); got != 0 {
		t.Errorf("empty script IntN = %d, want 0", got)
	}
	if got := s.Float64(); got != 0 {
		t.Errorf("empty script Float64 = %v, want 0", got)
	}
}
