package testutil

import (
	"math"

	"github.com/cwbudde/algo-dscan/grid"
)

// GaussianSpectrum returns a flat-phase Gaussian amplitude spectrum
// exp(-w^2/(2*sigma^2)) on the grid's detuning axis.
func GaussianSpectrum(g *grid.Grid, sigma float64) []complex128 {
	out := make([]complex128, g.Points())
	for k, w := range g.W() {
		out[k] = complex(math.Exp(-w*w/(2*sigma*sigma)), 0)
	}

	return out
}

// ChirpedGaussianSpectrum returns a Gaussian amplitude spectrum with a
// quadratic spectral phase gdd/2 * w^2 (group-delay dispersion in s^2).
func ChirpedGaussianSpectrum(g *grid.Grid, sigma, gdd float64) []complex128 {
	out := GaussianSpectrum(g, sigma)
	for k, w := range g.W() {
		phase := gdd / 2 * w * w

		out[k] *= complex(math.Cos(phase), math.Sin(phase))
	}

	return out
}

// GaussianFWHM returns the analytic temporal intensity FWHM of a
// flat-phase Gaussian amplitude spectrum with width sigma.
func GaussianFWHM(sigma float64) float64 {
	return 2 * math.Sqrt(math.Ln2) / sigma
}
