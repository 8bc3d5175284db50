package compress_test

import (
	"errors"
	"math"
	"testing"

	"github.com/cwbudde/algo-dscan/compress"
	"github.com/cwbudde/algo-dscan/grid"
	"github.com/cwbudde/algo-dscan/internal/cvec"
	"github.com/cwbudde/algo-dscan/internal/testutil"
	"github.com/cwbudde/algo-dscan/material"
	"github.com/cwbudde/algo-dscan/pnps"
)

func newModel(t *testing.T) (*grid.Grid, *pnps.Model) {
	t.Helper()

	g, err := grid.New(256, 950e-9, 490e-9)
	if err != nil {
		t.Fatalf("grid.New: %v", err)
	}

	m, err := pnps.NewModel(g, 490e-9, pnps.SHG, material.BK7)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}

	return g, m
}

func TestSearchFindsCompensatingInsertion(t *testing.T) {
	g, m := newModel(t)

	// Positive chirp is undone by removing glass, so the optimum must
	// sit at a negative insertion.
	spec := testutil.ChirpedGaussianSpectrum(g, -g.W0()/8, 30e-30)

	positions := make([]float64, 41)
	for i := range positions {
		positions[i] = -2e-3 + float64(i)*1e-4
	}

	rep, err := compress.Search(m, spec, positions, compress.Config{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if rep.OptimalPosition >= 0 || rep.OptimalPosition <= -1e-3 {
		t.Fatalf("optimal position = %g, want in (-1mm, 0)", rep.OptimalPosition)
	}

	if math.IsNaN(rep.OptimalFWHM) {
		t.Fatal("optimal FWHM is undefined")
	}

	edge := math.Max(rep.FWHM[0], rep.FWHM[len(rep.FWHM)-1])
	if rep.OptimalFWHM > 0.5*edge {
		t.Fatalf("optimal FWHM %g not clearly below edge FWHM %g", rep.OptimalFWHM, edge)
	}

	center := g.Points()/2 + 1
	for i, profile := range rep.Profiles {
		argmax := 0
		for k, v := range profile {
			if v > profile[argmax] {
				argmax = k
			}
		}

		if argmax != center {
			t.Fatalf("profile %d peak at %d, want %d", i, argmax, center)
		}
	}
}

func TestSearchTieSelectsLowestIndex(t *testing.T) {
	g, m := newModel(t)

	spec := testutil.GaussianSpectrum(g, -g.W0()/8)

	rep, err := compress.Search(m, spec, []float64{0.5e-3, 0.5e-3}, compress.Config{})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if rep.OptimalIndex != 0 {
		t.Fatalf("optimal index = %d, want 0 on a tie", rep.OptimalIndex)
	}
}

func TestSearchTargetOverridesMinimum(t *testing.T) {
	g, m := newModel(t)

	spec := testutil.GaussianSpectrum(g, -g.W0()/8)

	positions := make([]float64, 11)
	for i := range positions {
		positions[i] = -0.5e-3 + float64(i)*1e-4
	}

	target := 0.42e-3

	rep, err := compress.Search(m, spec, positions, compress.Config{Target: &target})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if math.Abs(rep.OptimalPosition-0.4e-3) > 1e-12 {
		t.Fatalf("optimal position = %g, want nearest axis point 0.4mm", rep.OptimalPosition)
	}
}

func TestSearchValidation(t *testing.T) {
	g, m := newModel(t)

	spec := testutil.GaussianSpectrum(g, -g.W0()/8)

	if _, err := compress.Search(m, spec, nil, compress.Config{}); !errors.Is(err, compress.ErrNoPositions) {
		t.Fatalf("err = %v, want ErrNoPositions", err)
	}

	if _, err := compress.Search(m, spec[:1], []float64{0}, compress.Config{}); !errors.Is(err, compress.ErrShapeMismatch) {
		t.Fatalf("err = %v, want ErrShapeMismatch", err)
	}
}

func TestSpectrumRMSOfMatchingSpectraIsZero(t *testing.T) {
	g, _ := newModel(t)

	spec := testutil.GaussianSpectrum(g, -g.W0()/8)
	intensity := cvec.Power(spec)
	axis := g.Wavelengths(490e-9)

	n := g.Points()

	// Sample the retrieved spectrum on its own wavelength axis, in
	// ascending order and with an arbitrary amplitude scale.
	var wavelength, measured []float64
	for k := n - n/4; k >= n/4; k-- {
		wavelength = append(wavelength, axis[k])
		measured = append(measured, 3*intensity[k])
	}

	rms, err := compress.SpectrumRMS(g, spec, wavelength, measured, 490e-9)
	if err != nil {
		t.Fatalf("SpectrumRMS: %v", err)
	}

	if rms > 1e-9 {
		t.Fatalf("rms = %g, want ~0 for identical spectra", rms)
	}
}
