// Package compress scans the insertion axis of a retrieved pulse for
// the glass position producing the shortest temporal intensity profile.
package compress

import (
	"errors"
	"math"

	"github.com/cwbudde/algo-dscan/grid"
	"github.com/cwbudde/algo-dscan/internal/cvec"
	"github.com/cwbudde/algo-dscan/interp"
	"github.com/cwbudde/algo-dscan/pnps"
	"github.com/cwbudde/algo-dscan/pulse"
	vecmath "github.com/cwbudde/algo-vecmath"
)

// Errors returned by the compression search.
var (
	ErrNoPositions   = errors.New("compress: no insertion positions")
	ErrNoOptimum     = errors.New("compress: no position has a defined duration")
	ErrShapeMismatch = errors.New("compress: spectrum does not match the model grid")
)

// Config tunes the search. Zero values select the defaults.
type Config struct {
	Oversampling int      // profile oversampling for the width estimate
	Target       *float64 // explicit insertion overriding the minimum search
}

func (c Config) withDefaults() Config {
	if c.Oversampling <= 0 {
		c.Oversampling = pulse.DefaultOversampling
	}

	return c
}

// Report describes the compression behaviour over the insertion axis.
type Report struct {
	Positions []float64   // insertion axis, m
	FWHM      []float64   // duration per position, s; NaN when undefined
	Profiles  [][]float64 // peak-aligned temporal intensity per position

	OptimalIndex    int
	OptimalPosition float64
	OptimalFWHM     float64

	// SpectrumRMSError compares the retrieved spectrum against the
	// measured fundamental; filled by SpectrumRMS.
	SpectrumRMSError float64
}

// Search propagates the spectrum through the dispersion mask at every
// position and measures the temporal duration of the result.
//
// The optimum is the lowest-index minimum over the defined durations.
// A Target insertion instead selects the axis index nearest to it.
func Search(model *pnps.Model, spectrum []complex128, positions []float64, cfg Config) (*Report, error) {
	cfg = cfg.withDefaults()

	if len(positions) == 0 {
		return nil, ErrNoPositions
	}

	g := model.Grid()
	if len(spectrum) != g.Points() {
		return nil, ErrShapeMismatch
	}

	tr, err := grid.NewTransform(g)
	if err != nil {
		return nil, err
	}

	rep := &Report{
		Positions: append([]float64(nil), positions...),
		FWHM:      make([]float64, len(positions)),
		Profiles:  make([][]float64, len(positions)),
	}

	n := g.Points()
	masked := make([]complex128, n)

	for i, z := range positions {
		mask := model.Mask(z)
		for k := range masked {
			masked[k] = spectrum[k] * mask[k]
		}

		field, err := tr.Inverse(masked)
		if err != nil {
			return nil, err
		}

		profile := rollPeakToCenter(cvec.Power(field))

		rep.Profiles[i] = profile

		if w, ok := pulse.FWHMOfIntensity(profile, g.Dt(), cfg.Oversampling); ok {
			rep.FWHM[i] = w
		} else {
			rep.FWHM[i] = math.NaN()
		}
	}

	if cfg.Target != nil {
		rep.OptimalIndex = nearestIndex(rep.Positions, *cfg.Target)
	} else {
		idx, ok := minDefined(rep.FWHM)
		if !ok {
			return nil, ErrNoOptimum
		}

		rep.OptimalIndex = idx
	}

	rep.OptimalPosition = rep.Positions[rep.OptimalIndex]
	rep.OptimalFWHM = rep.FWHM[rep.OptimalIndex]

	return rep, nil
}

// rollPeakToCenter circularly shifts the profile so its first maximum
// lands at sample N/2+1, keeping profiles comparable across positions.
func rollPeakToCenter(profile []float64) []float64 {
	n := len(profile)
	center := n/2 + 1

	argmax := 0
	for i, v := range profile {
		if v > profile[argmax] {
			argmax = i
		}
	}

	shift := ((center-argmax)%n + n) % n

	out := make([]float64, n)
	for i, v := range profile {
		out[(i+shift)%n] = v
	}

	return out
}

// minDefined returns the lowest index of the smallest non-NaN value.
func minDefined(values []float64) (int, bool) {
	idx, found := 0, false

	for i, v := range values {
		if math.IsNaN(v) {
			continue
		}

		if !found || v < values[idx] {
			idx, found = i, true
		}
	}

	return idx, found
}

// nearestIndex returns the index whose position is closest to target.
func nearestIndex(positions []float64, target float64) int {
	idx := 0
	best := math.Abs(positions[0] - target)

	for i, p := range positions[1:] {
		if d := math.Abs(p - target); d < best {
			idx, best = i+1, d
		}
	}

	return idx
}

// SpectrumRMS computes the normalized RMS deviation between the
// measured fundamental spectrum and the retrieved spectral intensity,
// after interpolating the latter onto the measured wavelength axis and
// applying the least-squares amplitude scale.
func SpectrumRMS(g *grid.Grid, spectrum []complex128, wavelength, measured []float64, centerWavelength float64) (float64, error) {
	if len(wavelength) != len(measured) {
		return 0, ErrShapeMismatch
	}

	intensity := cvec.Power(spectrum)
	axis := g.Wavelengths(centerWavelength)

	// The wavelength axis descends with frequency; flip both for the
	// ascending order interpolation requires. Non-positive frequencies
	// map to +Inf wavelengths and carry no signal.
	n := len(axis)
	ascAxis := make([]float64, 0, n)
	ascInt := make([]float64, 0, n)

	for i := range axis {
		if math.IsInf(axis[n-1-i], 0) {
			continue
		}

		ascAxis = append(ascAxis, axis[n-1-i])
		ascInt = append(ascInt, intensity[n-1-i])
	}

	retrieved, err := interp.Resample(ascAxis, ascInt, wavelength, 0)
	if err != nil {
		return 0, err
	}

	num := vecmath.DotProduct(measured, retrieved)
	den := vecmath.DotProduct(retrieved, retrieved)

	scale := 1.0
	if den > 0 {
		scale = num / den
	}

	var residual float64
	for i := range measured {
		d := measured[i] - scale*retrieved[i]
		residual += d * d
	}

	peak := vecmath.MaxAbs(measured)
	if peak == 0 {
		return 0, nil
	}

	return math.Sqrt(residual/float64(len(measured))) / peak, nil
}
