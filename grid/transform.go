package grid

import (
	"errors"
	"fmt"
	"math"
	"math/cmplx"

	algofft "github.com/MeKo-Christian/algo-fft"
)

// ErrLengthMismatch is returned when an input array does not match the
// grid's point count.
var ErrLengthMismatch = errors.New("grid: array length does not match grid size")

// Transform converts fields between the time and frequency domain with
// the grid's sampling convention:
//
//	forward:  S(w_k) = dt * sum_n  E(t_n) * exp(-i*w_k*t_n)
//	inverse:  E(t_n) = dw/(2*pi) * sum_k  S(w_k) * exp(+i*w_k*t_n)
//
// The pair is an exact inverse for any frequency offset w0. Both
// directions are realized as a phase ramp, one FFT call and an
// alternating sign correction for the centered time axis.
//
// A Transform is not safe for concurrent use; create one per goroutine.
type Transform struct {
	g    *Grid
	plan *algofft.Plan[complex128]
	ramp []complex128 // exp(-i*w0*t_n)
	buf  []complex128
}

// NewTransform creates a transform for the given grid.
func NewTransform(g *Grid) (*Transform, error) {
	plan, err := algofft.NewPlan64(g.n)
	if err != nil {
		return nil, fmt.Errorf("grid: failed to create FFT plan: %w", err)
	}

	ramp := make([]complex128, g.n)
	for n, t := range g.T() {
		ramp[n] = cmplx.Exp(complex(0, -g.w0*t))
	}

	return &Transform{
		g:    g,
		plan: plan,
		ramp: ramp,
		buf:  make([]complex128, g.n),
	}, nil
}

// Grid returns the grid the transform operates on.
func (tr *Transform) Grid() *Grid { return tr.g }

// Forward transforms a time-domain field to the frequency domain.
func (tr *Transform) Forward(field []complex128) ([]complex128, error) {
	if len(field) != tr.g.n {
		return nil, ErrLengthMismatch
	}

	for n := range field {
		tr.buf[n] = field[n] * tr.ramp[n]
	}

	out := make([]complex128, tr.g.n)

	err := tr.plan.Forward(out, tr.buf)
	if err != nil {
		return nil, fmt.Errorf("grid: forward FFT failed: %w", err)
	}

	dt := tr.g.dt
	for k := range out {
		if k&1 == 0 {
			out[k] *= complex(dt, 0)
		} else {
			out[k] *= complex(-dt, 0)
		}
	}

	return out, nil
}

// Inverse transforms a frequency-domain spectrum to the time domain.
func (tr *Transform) Inverse(spectrum []complex128) ([]complex128, error) {
	if len(spectrum) != tr.g.n {
		return nil, ErrLengthMismatch
	}

	for k := range spectrum {
		if k&1 == 0 {
			tr.buf[k] = spectrum[k]
		} else {
			tr.buf[k] = -spectrum[k]
		}
	}

	out := make([]complex128, tr.g.n)

	err := tr.plan.Inverse(out, tr.buf)
	if err != nil {
		return nil, fmt.Errorf("grid: inverse FFT failed: %w", err)
	}

	invDt := complex(1/tr.g.dt, 0)
	for n := range out {
		out[n] *= cmplx.Conj(tr.ramp[n]) * invDt
	}

	return out, nil
}

// Wavelengths converts the detuning axis to absolute wavelengths for a
// carrier at centerWavelength. Frequencies at or below zero map to +Inf.
func (g *Grid) Wavelengths(centerWavelength float64) []float64 {
	w0abs := 2 * math.Pi * SpeedOfLight / centerWavelength

	out := make([]float64, g.n)
	for k, w := range g.W() {
		abs := w + w0abs
		if abs <= 0 {
			out[k] = math.Inf(1)
			continue
		}

		out[k] = 2 * math.Pi * SpeedOfLight / abs
	}

	return out
}
