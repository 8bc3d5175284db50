package trace

import (
	"math"

	"github.com/cwbudde/algo-dscan/grid"
	"github.com/cwbudde/algo-dscan/interp"
	vecmath "github.com/cwbudde/algo-vecmath"
)

// DefaultDarkSamples is the number of leading spectral columns averaged
// as the per-row dark signal during resampling.
const DefaultDarkSamples = 10

// ScanConfig controls raw scan-trace preprocessing.
type ScanConfig struct {
	RangeLow       float64 // m, exclusive lower crop bound
	RangeHigh      float64 // m, exclusive upper crop bound
	EdgeFitSamples int     // samples per edge for the per-row background fit
	BlurSigma      float64 // Gaussian blur width in samples, 0 disables
	Coefficient    float64 // stage-position to insertion conversion
}

// PrepareScan cleans a raw scan trace whose Axis is wavelength in
// meters (ascending) and whose Parameter is raw stage position:
// unit-global-peak normalization, optional Gaussian blur, wavelength
// crop, per-row linear edge-fit background subtraction, and conversion
// of the parameter axis to physical insertion starting at zero.
func PrepareScan(raw *Trace, cfg ScanConfig) (*Trace, error) {
	if len(raw.Parameter) == 0 || len(raw.Axis) == 0 {
		return nil, ErrEmptyTrace
	}

	if cfg.EdgeFitSamples <= 0 {
		cfg.EdgeFitSamples = DefaultEdgeFitSamples
	}

	if cfg.Coefficient == 0 {
		cfg.Coefficient = 1
	}

	work := raw.Clone()

	peak := work.Peak()
	if peak <= 0 {
		return nil, ErrDegenerateSpectrum
	}

	for _, row := range work.Intensity {
		vecmath.ScaleBlockInPlace(row, 1/peak)
	}

	if cfg.BlurSigma > 0 {
		blur2D(work.Intensity, cfg.BlurSigma)
	}

	// Crop the spectral axis.
	keep := make([]int, 0, len(work.Axis))
	for i, l := range work.Axis {
		if l > cfg.RangeLow && l < cfg.RangeHigh {
			keep = append(keep, i)
		}
	}

	if len(keep) == 0 {
		return nil, ErrEmptyRange
	}

	axis := make([]float64, len(keep))
	for j, i := range keep {
		axis[j] = work.Axis[i]
	}

	intensity := make([][]float64, len(work.Intensity))
	for r, row := range work.Intensity {
		cropped := make([]float64, len(keep))
		for j, i := range keep {
			cropped[j] = row[i]
		}

		err := subtractEdgeFit(axis, cropped, cfg.EdgeFitSamples)
		if err != nil {
			return nil, err
		}

		intensity[r] = cropped
	}

	// Stage position to insertion, anchored at the scan start.
	minPos := work.Parameter[0]
	for _, p := range work.Parameter {
		if p < minPos {
			minPos = p
		}
	}

	parameter := make([]float64, len(work.Parameter))
	for i, p := range work.Parameter {
		parameter[i] = cfg.Coefficient * (p - minPos)
	}

	return &Trace{Parameter: parameter, Axis: axis, Intensity: intensity}, nil
}

// ResampleConfig controls the interpolation of a cleaned scan trace
// onto a retrieval frequency axis.
type ResampleConfig struct {
	DarkSamples int     // leading columns averaged as dark signal per row
	DarkFill    float64 // baseline for samples outside the measured range
}

// ResampleToFrequency converts a cleaned wavelength-domain scan trace
// onto the given ascending angular-frequency axis. The per-row dark
// signal is subtracted, negatives are clamped, samples outside the
// measured range receive the configured dark baseline, and the result
// is normalized to unit peak.
func ResampleToFrequency(tr *Trace, targetW []float64, cfg ResampleConfig) (*Trace, error) {
	if len(tr.Parameter) == 0 || len(tr.Axis) < 2 {
		return nil, ErrEmptyTrace
	}

	if cfg.DarkSamples <= 0 {
		cfg.DarkSamples = DefaultDarkSamples
	}

	if cfg.DarkSamples > len(tr.Axis) {
		cfg.DarkSamples = len(tr.Axis)
	}

	// Ascending wavelength maps to descending frequency.
	n := len(tr.Axis)

	w := make([]float64, n)
	for i, l := range tr.Axis {
		w[n-1-i] = 2 * math.Pi * grid.SpeedOfLight / l
	}

	intensity := make([][]float64, len(tr.Parameter))

	for r, row := range tr.Intensity {
		dark := vecmath.Sum(row[:cfg.DarkSamples]) / float64(cfg.DarkSamples)

		flipped := make([]float64, n)
		for i, v := range row {
			clean := v - dark
			if clean < 0 {
				clean = 0
			}

			flipped[n-1-i] = clean
		}

		resampled, err := interp.Resample(w, flipped, targetW, cfg.DarkFill)
		if err != nil {
			return nil, err
		}

		intensity[r] = resampled
	}

	out := &Trace{
		Parameter: append([]float64(nil), tr.Parameter...),
		Axis:      append([]float64(nil), targetW...),
		Intensity: intensity,
	}

	peak := out.Peak()
	if peak <= 0 {
		return nil, ErrDegenerateSpectrum
	}

	for _, row := range out.Intensity {
		vecmath.ScaleBlockInPlace(row, 1/peak)
	}

	return out, nil
}
