// Package trace holds measured 2D scan traces and the preprocessing
// pipeline that turns raw instrument data into retrieval-ready input.
//
// Traces are immutable snapshots: every preprocessing step returns a
// new Trace and never mutates its input.
package trace

import (
	"errors"

	vecmath "github.com/cwbudde/algo-vecmath"
)

// Errors returned by trace preprocessing.
var (
	ErrShapeMismatch      = errors.New("trace: intensity shape does not match axes")
	ErrEmptyTrace         = errors.New("trace: trace has no samples")
	ErrEmptyRange         = errors.New("trace: wavelength crop leaves no samples")
	ErrDegenerateSpectrum = errors.New("trace: spectrum has no signal above background")
)

// Trace is a 2D intensity measurement indexed by (scan-parameter index,
// spectral index). Axis is the spectral axis the columns are defined
// on: wavelength in meters for raw traces, angular frequency in rad/s
// after resampling onto a retrieval grid.
type Trace struct {
	Parameter []float64
	Axis      []float64
	Intensity [][]float64
}

// New validates shapes and wraps the given arrays into a Trace.
func New(parameter, axis []float64, intensity [][]float64) (*Trace, error) {
	if len(parameter) == 0 || len(axis) == 0 {
		return nil, ErrEmptyTrace
	}

	if len(intensity) != len(parameter) {
		return nil, ErrShapeMismatch
	}

	for _, row := range intensity {
		if len(row) != len(axis) {
			return nil, ErrShapeMismatch
		}
	}

	return &Trace{Parameter: parameter, Axis: axis, Intensity: intensity}, nil
}

// Clone returns a deep copy.
func (tr *Trace) Clone() *Trace {
	out := &Trace{
		Parameter: append([]float64(nil), tr.Parameter...),
		Axis:      append([]float64(nil), tr.Axis...),
		Intensity: make([][]float64, len(tr.Intensity)),
	}

	for i, row := range tr.Intensity {
		out.Intensity[i] = append([]float64(nil), row...)
	}

	return out
}

// Peak returns the maximum absolute intensity over all samples.
func (tr *Trace) Peak() float64 {
	peak := 0.0
	for _, row := range tr.Intensity {
		if m := vecmath.MaxAbs(row); m > peak {
			peak = m
		}
	}

	return peak
}

// TotalEnergy returns the sum of all intensity samples.
func (tr *Trace) TotalEnergy() float64 {
	sum := 0.0
	for _, row := range tr.Intensity {
		sum += vecmath.Sum(row)
	}

	return sum
}
