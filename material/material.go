// Package material maps the dispersive element of a scan to its stage
// geometry coefficient and its spectral phase per unit insertion.
package material

import (
	"errors"
	"math"

	"github.com/cwbudde/algo-dscan/grid"
)

// ErrUnknownMaterial is returned for material tags outside the
// supported set.
var ErrUnknownMaterial = errors.New("material: unknown material")

// Material identifies the dispersive element varied during a scan.
type Material int

// Supported materials.
const (
	FusedSilica Material = iota + 1
	BK7
	GratingA
	GratingC
)

// String returns the material tag name.
func (m Material) String() string {
	switch m {
	case FusedSilica:
		return "FS"
	case BK7:
		return "BK7"
	case GratingA:
		return "gratinga"
	case GratingC:
		return "gratingc"
	default:
		return "unknown"
	}
}

// coefficient functions, dispatched by tag.
var coefficients = map[Material]func(wedgeAngleDeg float64) float64{
	FusedSilica: wedgeCoefficient,
	BK7:         wedgeCoefficient,
	GratingA:    gratingCoefficient,
	GratingC:    gratingCoefficient,
}

// Coefficient converts a stage displacement into effective physical
// insertion. Grating pairs use a fixed retro-geometry factor; glass
// wedges use the wedge angle (in degrees).
func (m Material) Coefficient(wedgeAngleDeg float64) (float64, error) {
	fn, ok := coefficients[m]
	if !ok {
		return 0, ErrUnknownMaterial
	}

	return fn(wedgeAngleDeg), nil
}

func gratingCoefficient(float64) float64 { return 4.0 }

func wedgeCoefficient(angleDeg float64) float64 {
	return math.Tan(angleDeg*math.Pi/180) * math.Cos(angleDeg*math.Pi/360)
}

// sellmeier holds a three-term Sellmeier fit, wavelengths in um.
type sellmeier struct {
	b     [3]float64
	c     [3]float64 // um^2
	wlMin float64    // um, fit validity bounds
	wlMax float64
}

var sellmeiers = map[Material]sellmeier{
	// Malitson 1965.
	FusedSilica: {
		b:     [3]float64{0.6961663, 0.4079426, 0.8974794},
		c:     [3]float64{0.0684043 * 0.0684043, 0.1162414 * 0.1162414, 9.896161 * 9.896161},
		wlMin: 0.21, wlMax: 3.71,
	},
	// Schott N-BK7.
	BK7: {
		b:     [3]float64{1.03961212, 0.231792344, 1.01046945},
		c:     [3]float64{0.00600069867, 0.0200179144, 103.560653},
		wlMin: 0.30, wlMax: 2.50,
	},
}

// RefractiveIndex returns the refractive index of a glass material at
// the given vacuum wavelength (in meters). Wavelengths outside the
// Sellmeier fit range are evaluated at the nearest validity bound so
// masks stay smooth at the grid edges. Grating tags have no bulk index.
func (m Material) RefractiveIndex(wavelength float64) (float64, error) {
	s, ok := sellmeiers[m]
	if !ok {
		return 0, ErrUnknownMaterial
	}

	um := wavelength * 1e6
	if um < s.wlMin {
		um = s.wlMin
	}

	if um > s.wlMax {
		um = s.wlMax
	}

	l2 := um * um

	n2 := 1.0
	for i := range s.b {
		n2 += s.b[i] * l2 / (l2 - s.c[i])
	}

	return math.Sqrt(n2), nil
}

// grating groove spacings in meters.
var grooveSpacings = map[Material]float64{
	GratingA: 1e-3 / 600,  // 600 lines/mm
	GratingC: 1e-3 / 1500, // 1500 lines/mm
}

// DispersionPhase returns the spectral phase accrued per unit insertion
// at every absolute angular frequency in w, for a scan centered on the
// carrier w0.
//
// Glass materials use the bulk wavenumber k(w) = n(w)*w/c; grating
// materials use the Treacy grating-pair phase at Littrow incidence for
// the carrier. In both cases the constant and group-delay Taylor terms
// at w0 are removed, so the phase encodes only the dispersion that
// reshapes the pulse.
func (m Material) DispersionPhase(w []float64, w0 float64) ([]float64, error) {
	raw, err := m.rawPhase(w0)
	if err != nil {
		return nil, err
	}

	// Remove phi(w0) + phi'(w0)*(w - w0), slope by central difference.
	h := w0 * 1e-6
	p0 := raw(w0)
	slope := (raw(w0+h) - raw(w0-h)) / (2 * h)

	out := make([]float64, len(w))
	for i, wi := range w {
		if wi <= 0 {
			continue
		}

		out[i] = raw(wi) - p0 - slope*(wi-w0)
	}

	return out, nil
}

func (m Material) rawPhase(w0 float64) (func(float64) float64, error) {
	switch m {
	case FusedSilica, BK7:
		return func(w float64) float64 {
			wl := 2 * math.Pi * grid.SpeedOfLight / w

			n, _ := m.RefractiveIndex(wl)

			return n * w / grid.SpeedOfLight
		}, nil

	case GratingA, GratingC:
		d := grooveSpacings[m]

		// Littrow incidence for the carrier: sin(theta) = lambda0/(2d).
		sinIn := math.Pi * grid.SpeedOfLight / (w0 * d)
		if sinIn >= 1 {
			return nil, ErrUnknownMaterial
		}

		return func(w float64) float64 {
			sinOut := 2*math.Pi*grid.SpeedOfLight/(w*d) - sinIn

			arg := 1 - sinOut*sinOut
			if arg <= 0 {
				return 0
			}

			return 2 * w / grid.SpeedOfLight * math.Sqrt(arg)
		}, nil

	default:
		return nil, ErrUnknownMaterial
	}
}
