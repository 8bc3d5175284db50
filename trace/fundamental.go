package trace

import (
	vecmath "github.com/cwbudde/algo-vecmath"
)

// Defaults for fundamental-spectrum cleaning, matching the instrument
// behavior the pipeline was calibrated against.
const (
	DefaultDCSamples      = 7
	DefaultEdgeFitSamples = 15
	DefaultClampFraction  = 0.0025
)

// FundamentalConfig controls fundamental-spectrum preprocessing.
// Zero values select the defaults; the wavelength bounds are required.
type FundamentalConfig struct {
	RangeLow       float64 // m, exclusive lower crop bound
	RangeHigh      float64 // m, exclusive upper crop bound
	DCSamples      int     // leading samples averaged as DC offset
	EdgeFitSamples int     // samples per edge for the linear background fit
	ClampFraction  float64 // of peak; residuals below are zeroed
}

func (c FundamentalConfig) withDefaults() FundamentalConfig {
	if c.DCSamples <= 0 {
		c.DCSamples = DefaultDCSamples
	}

	if c.EdgeFitSamples <= 0 {
		c.EdgeFitSamples = DefaultEdgeFitSamples
	}

	if c.ClampFraction <= 0 {
		c.ClampFraction = DefaultClampFraction
	}

	return c
}

// Fundamental is a cleaned fundamental spectrum.
type Fundamental struct {
	Wavelength       []float64
	Intensity        []float64
	CenterWavelength float64 // intensity-weighted centroid
}

// PrepareFundamental cleans a raw (wavelength, intensity) fundamental
// spectrum: DC offset from the leading samples, exclusive wavelength
// crop, linear edge-fit background removal, unit-peak normalization and
// clamping of near-zero residual noise to exactly zero.
func PrepareFundamental(wavelength, intensity []float64, cfg FundamentalConfig) (*Fundamental, error) {
	if len(wavelength) != len(intensity) {
		return nil, ErrShapeMismatch
	}

	if len(wavelength) == 0 {
		return nil, ErrEmptyTrace
	}

	cfg = cfg.withDefaults()

	work := append([]float64(nil), intensity...)

	// DC offset from the first few detector samples.
	dc := cfg.DCSamples
	if dc > len(work) {
		dc = len(work)
	}

	offset := vecmath.Sum(work[:dc]) / float64(dc)
	for i := range work {
		work[i] -= offset
	}

	// Exclusive crop to the configured window.
	wl := make([]float64, 0, len(wavelength))
	in := make([]float64, 0, len(work))

	for i, l := range wavelength {
		if l > cfg.RangeLow && l < cfg.RangeHigh {
			wl = append(wl, l)
			in = append(in, work[i])
		}
	}

	if len(wl) == 0 {
		return nil, ErrEmptyRange
	}

	err := subtractEdgeFit(wl, in, cfg.EdgeFitSamples)
	if err != nil {
		return nil, err
	}

	peak := 0.0
	for _, v := range in {
		if v > peak {
			peak = v
		}
	}

	if peak <= 0 {
		return nil, ErrDegenerateSpectrum
	}

	vecmath.ScaleBlockInPlace(in, 1/peak)

	for i := range in {
		if in[i] < cfg.ClampFraction {
			in[i] = 0
		}
	}

	total := vecmath.Sum(in)
	if total <= 0 {
		return nil, ErrDegenerateSpectrum
	}

	return &Fundamental{
		Wavelength:       wl,
		Intensity:        in,
		CenterWavelength: vecmath.DotProduct(wl, in) / total,
	}, nil
}
