package grid

import (
	"math"
	"math/cmplx"
	"math/rand"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	g, err := New(256, 950e-9, 490e-9)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tr, err := NewTransform(g)
	if err != nil {
		t.Fatalf("NewTransform: %v", err)
	}

	rng := rand.New(rand.NewSource(42))

	spec := make([]complex128, g.Points())
	for k := range spec {
		spec[k] = complex(rng.Float64()*2-1, rng.Float64()*2-1)
	}

	field, err := tr.Inverse(spec)
	if err != nil {
		t.Fatalf("Inverse: %v", err)
	}

	back, err := tr.Forward(field)
	if err != nil {
		t.Fatalf("Forward: %v", err)
	}

	for k := range spec {
		if cmplx.Abs(back[k]-spec[k]) > 1e-9 {
			t.Fatalf("round trip mismatch at %d: got %v, want %v", k, back[k], spec[k])
		}
	}
}

func TestInverseCentersFlatPhasePeak(t *testing.T) {
	g, err := New(256, 950e-9, 490e-9)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tr, err := NewTransform(g)
	if err != nil {
		t.Fatalf("NewTransform: %v", err)
	}

	// Gaussian amplitude, flat phase: the field must peak at t=0.
	sigma := -g.W0() / 4

	spec := make([]complex128, g.Points())
	for k, w := range g.W() {
		spec[k] = complex(math.Exp(-w*w/(2*sigma*sigma)), 0)
	}

	field, err := tr.Inverse(spec)
	if err != nil {
		t.Fatalf("Inverse: %v", err)
	}

	peak := 0
	for n := range field {
		if cmplx.Abs(field[n]) > cmplx.Abs(field[peak]) {
			peak = n
		}
	}

	if peak != g.Points()/2 {
		t.Fatalf("peak at sample %d, want %d", peak, g.Points()/2)
	}
}

func TestTransformLengthMismatch(t *testing.T) {
	g, err := New(64, 950e-9, 490e-9)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	tr, err := NewTransform(g)
	if err != nil {
		t.Fatalf("NewTransform: %v", err)
	}

	_, err = tr.Forward(make([]complex128, 10))
	if err == nil {
		t.Fatal("Forward accepted mismatched length")
	}

	_, err = tr.Inverse(make([]complex128, 10))
	if err == nil {
		t.Fatal("Inverse accepted mismatched length")
	}
}
