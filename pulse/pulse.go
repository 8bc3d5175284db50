// Package pulse models an ultrashort laser pulse as a complex spectral
// envelope on a retrieval grid.
//
// The time-domain field is always derived from the spectral array by
// inverse transform, never stored, so the two representations cannot
// drift apart.
package pulse

import (
	"errors"
	"math"

	"github.com/cwbudde/algo-dscan/grid"
	"github.com/cwbudde/algo-dscan/internal/cvec"
	"github.com/cwbudde/algo-dscan/interp"
	vecmath "github.com/cwbudde/algo-vecmath"
)

// DefaultOversampling is the FWHM sub-sample interpolation factor used
// when the caller passes a non-positive value.
const DefaultOversampling = 100

// Errors returned by pulse construction.
var (
	ErrLengthMismatch    = errors.New("pulse: array length does not match grid size")
	ErrInvalidWavelength = errors.New("pulse: center wavelength must be positive")
)

// Pulse is a complex spectral envelope on a grid, plus the carrier
// wavelength used for unit conversions.
type Pulse struct {
	g        *grid.Grid
	tr       *grid.Transform
	spectrum []complex128
	centerWl float64
}

// New creates a pulse with a zero spectrum.
func New(g *grid.Grid, centerWavelength float64) (*Pulse, error) {
	if centerWavelength <= 0 {
		return nil, ErrInvalidWavelength
	}

	tr, err := grid.NewTransform(g)
	if err != nil {
		return nil, err
	}

	return &Pulse{
		g:        g,
		tr:       tr,
		spectrum: make([]complex128, g.Points()),
		centerWl: centerWavelength,
	}, nil
}

// Grid returns the sampling grid.
func (p *Pulse) Grid() *grid.Grid { return p.g }

// CenterWavelength returns the carrier wavelength in meters.
func (p *Pulse) CenterWavelength() float64 { return p.centerWl }

// CenterFrequency returns the carrier angular frequency in rad/s.
func (p *Pulse) CenterFrequency() float64 {
	return 2 * math.Pi * grid.SpeedOfLight / p.centerWl
}

// Spectrum returns a copy of the spectral envelope.
func (p *Pulse) Spectrum() []complex128 {
	out := make([]complex128, len(p.spectrum))
	copy(out, p.spectrum)

	return out
}

// SetSpectrum replaces the spectral envelope.
func (p *Pulse) SetSpectrum(spectrum []complex128) error {
	if len(spectrum) != p.g.Points() {
		return ErrLengthMismatch
	}

	copy(p.spectrum, spectrum)

	return nil
}

// Field returns the time-domain field derived from the spectrum.
func (p *Pulse) Field() ([]complex128, error) {
	return p.tr.Inverse(p.spectrum)
}

// SpectralIntensity returns |S(w)|^2.
func (p *Pulse) SpectralIntensity() []float64 {
	return cvec.Power(p.spectrum)
}

// SpectralPhase returns arg S(w).
func (p *Pulse) SpectralPhase() []float64 {
	out := make([]float64, len(p.spectrum))
	for i, c := range p.spectrum {
		out[i] = math.Atan2(imag(c), real(c))
	}

	return out
}

// TemporalIntensity returns |E(t)|^2.
func (p *Pulse) TemporalIntensity() ([]float64, error) {
	field, err := p.Field()
	if err != nil {
		return nil, err
	}

	return cvec.Power(field), nil
}

// FWHM returns the full width at half maximum of the temporal intensity
// in seconds. The profile is oversampled by linear interpolation to
// avoid grid-resolution bias. The second return value is false when the
// profile has fewer than two half-maximum crossings.
func (p *Pulse) FWHM(oversample int) (float64, bool) {
	profile, err := p.TemporalIntensity()
	if err != nil {
		return 0, false
	}

	return FWHMOfIntensity(profile, p.g.Dt(), oversample)
}

// FWHMOfIntensity computes the full width at half maximum of a sampled
// intensity profile with time step dt, using sub-sample linear
// interpolation at the given oversampling factor.
//
// Returns false for profiles without a left and a right half-maximum
// crossing (flat, empty, or edge-peaked profiles).
func FWHMOfIntensity(profile []float64, dt float64, oversample int) (float64, bool) {
	if len(profile) < 2 || dt <= 0 {
		return 0, false
	}

	if oversample <= 0 {
		oversample = DefaultOversampling
	}

	fine := interp.Oversample(profile, oversample)

	peak := vecmath.MaxAbs(fine)
	if peak <= 0 {
		return 0, false
	}

	half := peak / 2

	first, last := -1, -1
	for i, v := range fine {
		if v >= half {
			if first < 0 {
				first = i
			}

			last = i
		}
	}

	if first <= 0 || last >= len(fine)-1 {
		return 0, false
	}

	fineDt := dt / float64(oversample)

	// Sub-sample refinement of both crossings.
	left := float64(first-1) + (half-fine[first-1])/(fine[first]-fine[first-1])
	right := float64(last) + (fine[last]-half)/(fine[last]-fine[last+1])

	return (right - left) * fineDt, true
}

// FromWavelengthSpectrum builds a flat-phase pulse from a measured
// (wavelength, intensity) spectrum. The intensity is converted to the
// angular-frequency domain with the lambda^2/(2*pi*c) Jacobian,
// resampled onto the grid's absolute frequency axis (zero outside the
// measured range), and its square root becomes the spectral amplitude.
// wavelength must be sorted ascending.
func FromWavelengthSpectrum(g *grid.Grid, wavelength, intensity []float64, centerWavelength float64) (*Pulse, error) {
	if len(wavelength) != len(intensity) {
		return nil, ErrLengthMismatch
	}

	p, err := New(g, centerWavelength)
	if err != nil {
		return nil, err
	}

	// Convert to ascending angular frequency.
	n := len(wavelength)

	w := make([]float64, n)
	iw := make([]float64, n)

	for j := range wavelength {
		k := n - 1 - j // wavelength ascending -> frequency descending

		w[k] = 2 * math.Pi * grid.SpeedOfLight / wavelength[j]
		iw[k] = intensity[j] * wavelength[j] * wavelength[j] / (2 * math.Pi * grid.SpeedOfLight)
	}

	w0 := p.CenterFrequency()

	axis := make([]float64, g.Points())
	for k, det := range g.W() {
		axis[k] = det + w0
	}

	resampled, err := interp.Resample(w, iw, axis, 0)
	if err != nil {
		return nil, err
	}

	for k, v := range resampled {
		if v > 0 {
			p.spectrum[k] = complex(math.Sqrt(v), 0)
		}
	}

	return p, nil
}
