package retrieve_test

import (
	"errors"
	"math"
	"math/cmplx"
	"testing"

	"github.com/cwbudde/algo-dscan/grid"
	"github.com/cwbudde/algo-dscan/internal/cvec"
	"github.com/cwbudde/algo-dscan/internal/testutil"
	"github.com/cwbudde/algo-dscan/material"
	"github.com/cwbudde/algo-dscan/pnps"
	"github.com/cwbudde/algo-dscan/pulse"
	"github.com/cwbudde/algo-dscan/retrieve"
	"github.com/cwbudde/algo-dscan/trace"
	vecmath "github.com/cwbudde/algo-vecmath"
	"gonum.org/v1/gonum/mat"
)

// newScan builds an SHG model and a noise-free measured trace from a
// chirped Gaussian pulse, returning the model, the trace and the true
// spectrum.
func newScan(t *testing.T) (*pnps.Model, *trace.Trace, []complex128) {
	t.Helper()

	g, err := grid.New(256, 950e-9, 490e-9)
	if err != nil {
		t.Fatalf("grid.New: %v", err)
	}

	m, err := pnps.NewModel(g, 490e-9, pnps.SHG, material.BK7)
	if err != nil {
		t.Fatalf("NewModel: %v", err)
	}

	truth := testutil.ChirpedGaussianSpectrum(g, -g.W0()/8, 30e-30)

	params := make([]float64, 32)
	for i := range params {
		params[i] = -2e-3 + float64(i)*(4e-3/31)
	}

	measured, err := m.Calculate(truth, params)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	return m, measured, truth
}

func TestRunReducesTraceError(t *testing.T) {
	m, measured, truth := newScan(t)

	res, err := retrieve.Run(m, measured, truth, retrieve.Options{
		MaxIterations: 50,
		Seed:          7,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(res.Errors) == 0 {
		t.Fatal("no error history recorded")
	}

	for i := 1; i < len(res.Errors); i++ {
		if res.Errors[i] > res.Errors[i-1]+1e-12 {
			t.Fatalf("error increased at iteration %d: %g -> %g",
				i, res.Errors[i-1], res.Errors[i])
		}
	}

	first, last := res.Errors[0], res.Errors[len(res.Errors)-1]
	if last > 0.7*first {
		t.Fatalf("final error %g did not improve on initial %g", last, first)
	}

	if len(res.Spectrum) != m.Grid().Points() {
		t.Fatalf("spectrum length = %d, want %d", len(res.Spectrum), m.Grid().Points())
	}

	if len(res.Fields) != len(measured.Parameter) {
		t.Fatalf("fields = %d rows, want %d", len(res.Fields), len(measured.Parameter))
	}

	for i, f := range res.Fields {
		if len(f) != m.Grid().Points() {
			t.Fatalf("field %d length = %d, want %d", i, len(f), m.Grid().Points())
		}
	}
}

// fwhmAtZeroInsertion measures the temporal duration of the bare
// spectrum, i.e. the pulse with no glass in the beam.
func fwhmAtZeroInsertion(t *testing.T, tr *grid.Transform, spectrum []complex128) float64 {
	t.Helper()

	field, err := tr.Inverse(spectrum)
	if err != nil {
		t.Fatalf("Inverse: %v", err)
	}

	w, ok := pulse.FWHMOfIntensity(cvec.Power(field), tr.Grid().Dt(), pulse.DefaultOversampling)
	if !ok {
		t.Fatal("temporal duration undefined")
	}

	return w
}

// phaseResidual compares two spectral phases up to the constant and
// linear ambiguities: the wrapped phase difference over the samples
// carrying at least 10% of the peak amplitude is unwrapped, a
// least-squares affine term is removed and the largest remaining
// deviation is returned.
func phaseResidual(t *testing.T, g *grid.Grid, got, want []complex128) float64 {
	t.Helper()

	amp := cvec.Magnitude(want)
	peak := vecmath.MaxAbs(amp)

	var ws, diff []float64

	for k, w := range g.W() {
		if amp[k] < 0.1*peak {
			continue
		}

		ws = append(ws, w)
		diff = append(diff, cmplx.Phase(got[k]*cmplx.Conj(want[k])))
	}

	if len(ws) < 3 {
		t.Fatal("too few samples above the amplitude threshold")
	}

	for i := 1; i < len(diff); i++ {
		for diff[i]-diff[i-1] > math.Pi {
			diff[i] -= 2 * math.Pi
		}

		for diff[i]-diff[i-1] < -math.Pi {
			diff[i] += 2 * math.Pi
		}
	}

	design := mat.NewDense(len(ws), 2, nil)
	for i, w := range ws {
		design.Set(i, 0, 1)
		design.Set(i, 1, w)
	}

	var qr mat.QR

	qr.Factorize(design)

	coef := mat.NewVecDense(2, nil)
	if err := qr.SolveVecTo(coef, false, mat.NewVecDense(len(diff), diff)); err != nil {
		t.Fatalf("affine phase fit: %v", err)
	}

	var worst float64

	for i, w := range ws {
		r := math.Abs(diff[i] - coef.AtVec(0) - coef.AtVec(1)*w)
		if r > worst {
			worst = r
		}
	}

	return worst
}

func TestRunRecoversChirpedPulse(t *testing.T) {
	m, measured, truth := newScan(t)

	res, err := retrieve.Run(m, measured, truth, retrieve.Options{
		MaxIterations: 150,
		Seed:          7,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if last := res.Errors[len(res.Errors)-1]; last > 5e-3 {
		t.Fatalf("final trace error %g, want < 5e-3", last)
	}

	tr, err := grid.NewTransform(m.Grid())
	if err != nil {
		t.Fatalf("NewTransform: %v", err)
	}

	trueFWHM := fwhmAtZeroInsertion(t, tr, truth)
	gotFWHM := fwhmAtZeroInsertion(t, tr, res.Spectrum)

	if rel := math.Abs(gotFWHM-trueFWHM) / trueFWHM; rel > 0.03 {
		t.Fatalf("zero-insertion FWHM %g vs true %g (rel %g), want within 3%%",
			gotFWHM, trueFWHM, rel)
	}

	if r := phaseResidual(t, m.Grid(), res.Spectrum, truth); r > 0.15 {
		t.Fatalf("spectral phase residual %g rad after affine removal, want < 0.15", r)
	}
}

func TestRunIsDeterministicForSeed(t *testing.T) {
	m, measured, truth := newScan(t)

	opts := retrieve.Options{MaxIterations: 5, Seed: 3}

	a, err := retrieve.Run(m, measured, truth, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	b, err := retrieve.Run(m, measured, truth, opts)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(a.Errors) != len(b.Errors) {
		t.Fatalf("error history lengths differ: %d vs %d", len(a.Errors), len(b.Errors))
	}

	for i := range a.Errors {
		if a.Errors[i] != b.Errors[i] {
			t.Fatalf("iteration %d error differs: %g vs %g", i, a.Errors[i], b.Errors[i])
		}
	}

	for k := range a.Spectrum {
		if a.Spectrum[k] != b.Spectrum[k] {
			t.Fatalf("spectrum sample %d differs", k)
		}
	}
}

func TestRunRejectsDegenerateTrace(t *testing.T) {
	m, measured, truth := newScan(t)

	for i := range measured.Intensity {
		for k := range measured.Intensity[i] {
			measured.Intensity[i][k] = 0
		}
	}

	_, err := retrieve.Run(m, measured, truth, retrieve.Options{})
	if !errors.Is(err, retrieve.ErrDegenerateTrace) {
		t.Fatalf("err = %v, want ErrDegenerateTrace", err)
	}
}

func TestRunRejectsShapeMismatch(t *testing.T) {
	m, measured, truth := newScan(t)

	_, err := retrieve.Run(m, measured, truth[:len(truth)-1], retrieve.Options{})
	if !errors.Is(err, retrieve.ErrShapeMismatch) {
		t.Fatalf("err = %v, want ErrShapeMismatch for short spectrum", err)
	}

	measured.Intensity = measured.Intensity[:len(measured.Intensity)-1]

	_, err = retrieve.Run(m, measured, truth, retrieve.Options{})
	if !errors.Is(err, retrieve.ErrShapeMismatch) {
		t.Fatalf("err = %v, want ErrShapeMismatch for row mismatch", err)
	}
}
