// Package interp provides the 1-D interpolation primitives used to move
// measured spectra between instrument axes and the retrieval grid.
package interp

import (
	"errors"
	"sort"
)

// Errors returned by resampling functions.
var (
	ErrLengthMismatch = errors.New("interp: x and y must have the same length")
	ErrTooFewSamples  = errors.New("interp: need at least 2 samples")
	ErrUnsortedAxis   = errors.New("interp: x must be sorted in ascending order")
)

// Linear interpolates between y0 and y1 at frac in [0,1].
func Linear(y0, y1, frac float64) float64 {
	return y0 + frac*(y1-y0)
}

// Resample evaluates the piecewise-linear curve (x, y) at every point
// of xNew. x must be sorted in ascending order. Query points outside
// [x[0], x[len(x)-1]] receive fill instead of being extrapolated.
func Resample(x, y, xNew []float64, fill float64) ([]float64, error) {
	if len(x) != len(y) {
		return nil, ErrLengthMismatch
	}

	if len(x) < 2 {
		return nil, ErrTooFewSamples
	}

	for i := 1; i < len(x); i++ {
		if x[i] < x[i-1] {
			return nil, ErrUnsortedAxis
		}
	}

	out := make([]float64, len(xNew))

	for i, xq := range xNew {
		if xq < x[0] || xq > x[len(x)-1] {
			out[i] = fill
			continue
		}

		// Index of the first sample >= xq.
		j := sort.SearchFloat64s(x, xq)
		if j == 0 {
			out[i] = y[0]
			continue
		}

		x0, x1 := x[j-1], x[j]
		if x1 == x0 {
			out[i] = y[j]
			continue
		}

		out[i] = Linear(y[j-1], y[j], (xq-x0)/(x1-x0))
	}

	return out, nil
}

// Oversample expands uniformly sampled data by an integer factor using
// linear interpolation. The result has (len(y)-1)*factor + 1 samples.
func Oversample(y []float64, factor int) []float64 {
	if factor <= 1 || len(y) < 2 {
		out := make([]float64, len(y))
		copy(out, y)

		return out
	}

	out := make([]float64, (len(y)-1)*factor+1)

	for i := 0; i < len(y)-1; i++ {
		for s := range factor {
			out[i*factor+s] = Linear(y[i], y[i+1], float64(s)/float64(factor))
		}
	}

	out[len(out)-1] = y[len(y)-1]

	return out
}
