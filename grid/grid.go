// Package grid builds the paired angular-frequency/time sampling axes
// shared by every pulse and trace in a retrieval run.
//
// A Grid is defined by a point count N, a uniform angular-frequency
// step dw and an offset w0, and derives the matching time step from the
// discrete Fourier relation dt = 2*pi/(N*dw). The frequency axis is a
// detuning axis centered on zero; the absolute carrier frequency is
// carried by the pulse, not the grid.
package grid

import (
	"errors"
	"math"
)

// SpeedOfLight is the vacuum speed of light in m/s.
const SpeedOfLight = 2.998e8

// Errors returned by grid construction.
var (
	ErrInvalidPoints     = errors.New("grid: point count must be >= 2")
	ErrInvalidBandwidth  = errors.New("grid: bandwidth must be positive")
	ErrInvalidWavelength = errors.New("grid: center wavelength must be positive")
)

// Grid holds the frequency/time sampling of a retrieval run.
// It is immutable after construction.
type Grid struct {
	n  int
	dw float64
	w0 float64
	dt float64
}

// New creates a grid spanning the given wavelength bandwidth (in
// meters) around centerWavelength (in meters).
//
// The angular-frequency span is bandwidth*2*pi*c/centerWavelength^2.
// points is rounded up to the next power of two so transforms can use a
// radix-2 plan; the frequency step is rounded to a whole rad/s.
func New(points int, bandwidth, centerWavelength float64) (*Grid, error) {
	if points < 2 {
		return nil, ErrInvalidPoints
	}

	if bandwidth <= 0 || math.IsNaN(bandwidth) || math.IsInf(bandwidth, 0) {
		return nil, ErrInvalidBandwidth
	}

	if centerWavelength <= 0 || math.IsNaN(centerWavelength) || math.IsInf(centerWavelength, 0) {
		return nil, ErrInvalidWavelength
	}

	n := nextPowerOf2(points)

	span := bandwidth * 2 * math.Pi * SpeedOfLight / (centerWavelength * centerWavelength)

	dw := math.Round(span / float64(n-1))
	if dw == 0 {
		// Rounding only matters at instrument scales; keep the exact
		// step when the span is too small for whole rad/s steps.
		dw = span / float64(n-1)
	}

	return &Grid{
		n:  n,
		dw: dw,
		w0: -span / 2,
		dt: 2 * math.Pi / (float64(n) * dw),
	}, nil
}

// Points returns the number of samples N.
func (g *Grid) Points() int { return g.n }

// Dw returns the angular-frequency step in rad/s.
func (g *Grid) Dw() float64 { return g.dw }

// W0 returns the frequency offset of the first sample in rad/s.
func (g *Grid) W0() float64 { return g.w0 }

// Dt returns the derived time step in seconds.
func (g *Grid) Dt() float64 { return g.dt }

// W returns the detuning frequency axis w0 + k*dw.
func (g *Grid) W() []float64 {
	out := make([]float64, g.n)
	for k := range out {
		out[k] = g.w0 + float64(k)*g.dw
	}

	return out
}

// T returns the centered time axis (k - N/2)*dt.
func (g *Grid) T() []float64 {
	out := make([]float64, g.n)

	mid := g.n / 2
	for k := range out {
		out[k] = float64(k-mid) * g.dt
	}

	return out
}

// nextPowerOf2 returns the next power of 2 >= n.
func nextPowerOf2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}

	return p
}
