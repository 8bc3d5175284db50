// Package retrieve implements the iterative phase-retrieval optimizer.
//
// The algorithm is a COPRA-style alternating projection: at every scan
// position the simulated signal spectrum keeps its model phase but has
// its magnitude replaced by the measured one, the difference is
// back-projected through the nonlinear process and the dispersion mask
// into a spectral-domain gradient, and the candidate spectrum takes a
// bounded descent step. Steps that do not decrease the trace error are
// halved and ultimately discarded, so the error history is
// monotonically non-increasing.
package retrieve

import (
	"errors"
	"math"
	"math/cmplx"
	"math/rand"

	"github.com/cwbudde/algo-dscan/grid"
	"github.com/cwbudde/algo-dscan/internal/cvec"
	"github.com/cwbudde/algo-dscan/interp"
	"github.com/cwbudde/algo-dscan/pnps"
	"github.com/cwbudde/algo-dscan/trace"
	vecmath "github.com/cwbudde/algo-vecmath"
	"go.uber.org/zap"
)

// Defaults for the optimizer options.
const (
	DefaultMaxIterations = 30
	DefaultTolerance     = 1e-7
	DefaultPhaseMax      = 0.1
)

// maximum step halvings before a descent step is discarded.
const maxBacktracks = 25

// Errors returned before iteration starts.
var (
	ErrDegenerateTrace = errors.New("retrieve: measured trace has no energy")
	ErrShapeMismatch   = errors.New("retrieve: measured trace does not match the model grid")
)

// Options configures a retrieval run. Zero values select the defaults.
type Options struct {
	MaxIterations int
	Tolerance     float64 // error change below which iteration stops
	PhaseMax      float64 // peak magnitude of the random seed phase, rad
	Seed          int64
	Logger        *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.MaxIterations <= 0 {
		o.MaxIterations = DefaultMaxIterations
	}

	if o.Tolerance <= 0 {
		o.Tolerance = DefaultTolerance
	}

	if o.PhaseMax <= 0 {
		o.PhaseMax = DefaultPhaseMax
	}

	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}

	return o
}

// Result holds a finished retrieval.
type Result struct {
	Spectrum   []complex128   // converged candidate spectrum
	Parameter  []float64      // scan-parameter axis
	Fields     [][]complex128 // spectrum under each parameter's mask
	Errors     []float64      // per-iteration trace error
	Iterations int
	Converged  bool
}

// Run retrieves the pulse spectrum explaining the measured trace.
//
// initial provides the spectral amplitude of the starting candidate
// (typically the Fourier-limited pulse); its phase is replaced by a
// smooth random phase bounded by PhaseMax so convergence is seeded away
// from the trivial solution.
func Run(model *pnps.Model, measured *trace.Trace, initial []complex128, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	n := model.Grid().Points()
	if len(initial) != n || len(measured.Axis) != n {
		return nil, ErrShapeMismatch
	}

	if len(measured.Intensity) != len(measured.Parameter) {
		return nil, ErrShapeMismatch
	}

	for _, row := range measured.Intensity {
		if len(row) != n {
			return nil, ErrShapeMismatch
		}
	}

	if measured.TotalEnergy() <= 0 {
		return nil, ErrDegenerateTrace
	}

	tr, err := grid.NewTransform(model.Grid())
	if err != nil {
		return nil, err
	}

	rng := rand.New(rand.NewSource(opts.Seed))

	candidate := seedCandidate(initial, opts.PhaseMax, rng)

	st := &state{
		model:    model,
		tr:       tr,
		measured: measured,
		peak:     measured.Peak(),
	}

	res := &Result{Parameter: append([]float64(nil), measured.Parameter...)}

	log := opts.Logger

	for it := 0; it < opts.MaxIterations; it++ {
		slices, mu, errNow, err := st.evaluate(candidate)
		if err != nil {
			return nil, err
		}

		res.Errors = append(res.Errors, errNow)
		res.Iterations = it + 1

		log.Debug("retrieval iteration",
			zap.Int("iteration", it),
			zap.Float64("trace_error", errNow))

		if it > 0 && math.Abs(res.Errors[it-1]-errNow) < opts.Tolerance {
			res.Converged = true
			break
		}

		grad, err := st.gradient(candidate, slices, mu)
		if err != nil {
			return nil, err
		}

		next, ok, err := st.descend(candidate, grad, errNow)
		if err != nil {
			return nil, err
		}

		if !ok {
			// No step improves the error; the candidate has stalled.
			res.Converged = true
			break
		}

		candidate = next
	}

	res.Spectrum = candidate

	res.Fields = make([][]complex128, len(res.Parameter))
	for i, z := range res.Parameter {
		mask := model.Mask(z)

		field := make([]complex128, n)
		for k := range field {
			field[k] = candidate[k] * mask[k]
		}

		res.Fields[i] = field
	}

	log.Info("retrieval finished",
		zap.Int("iterations", res.Iterations),
		zap.Bool("converged", res.Converged),
		zap.Float64("final_error", res.Errors[len(res.Errors)-1]))

	return res, nil
}

// seedCandidate combines the initial amplitude with a smooth random
// phase of bounded peak magnitude.
func seedCandidate(initial []complex128, phaseMax float64, rng *rand.Rand) []complex128 {
	amp := cvec.Magnitude(initial)
	phase := smoothRandomPhase(len(initial), phaseMax, rng)

	out := make([]complex128, len(initial))
	for k := range out {
		out[k] = complex(amp[k], 0) * cmplx.Exp(complex(0, phase[k]))
	}

	return out
}

// smoothRandomPhase draws random values at coarse control points and
// linearly interpolates them to n samples, scaled to the given peak.
func smoothRandomPhase(n int, phaseMax float64, rng *rand.Rand) []float64 {
	const nodes = 32

	coarse := make([]float64, nodes+1)
	for i := range coarse {
		coarse[i] = rng.Float64()*2 - 1
	}

	factor := (n + nodes - 1) / nodes

	fine := interp.Oversample(coarse, factor)[:n]

	peak := vecmath.MaxAbs(fine)
	if peak > 0 {
		vecmath.ScaleBlockInPlace(fine, phaseMax/peak)
	}

	return fine
}

// state carries the immutable inputs of one retrieval run.
type state struct {
	model    *pnps.Model
	tr       *grid.Transform
	measured *trace.Trace
	peak     float64
}

// evaluate runs the forward model for every scan position and returns
// the slices, the optimal intensity scale and the normalized error.
func (st *state) evaluate(candidate []complex128) ([]*pnps.Slice, float64, float64, error) {
	m := len(st.measured.Parameter)

	slices := make([]*pnps.Slice, m)
	sim := make([][]float64, m)

	for i, z := range st.measured.Parameter {
		s, err := st.model.At(candidate, z)
		if err != nil {
			return nil, 0, 0, err
		}

		slices[i] = s
		sim[i] = cvec.Power(s.Spectrum)
	}

	mu := bestScale(st.measured.Intensity, sim)

	var residual float64

	count := 0
	for i := range sim {
		for k := range sim[i] {
			d := st.measured.Intensity[i][k] - mu*sim[i][k]
			residual += d * d
		}

		count += len(sim[i])
	}

	errNow := math.Sqrt(residual/float64(count)) / st.peak

	return slices, mu, errNow, nil
}

// bestScale returns the least-squares intensity scale between the
// measured and simulated traces. A degenerate simulation keeps scale 1.
func bestScale(measured, sim [][]float64) float64 {
	var num, den float64

	for i := range sim {
		num += vecmath.DotProduct(measured[i], sim[i])
		den += vecmath.DotProduct(sim[i], sim[i])
	}

	if den <= 0 || num <= 0 {
		return 1
	}

	return num / den
}

// gradient accumulates the spectral-domain descent direction from the
// magnitude-replacement projection at every scan position.
func (st *state) gradient(candidate []complex128, slices []*pnps.Slice, mu float64) ([]complex128, error) {
	n := len(candidate)
	a, b := st.model.Exponents()

	grad := make([]complex128, n)
	projected := make([]complex128, n)
	diff := make([]complex128, n)

	for i, z := range st.measured.Parameter {
		s := slices[i]

		// Magnitude replacement: keep the model phase, take the
		// measured magnitude (undone by the optimal scale).
		for k := range projected {
			target := st.measured.Intensity[i][k] / mu
			if target < 0 {
				target = 0
			}

			mag := math.Sqrt(target)

			if abs := cmplx.Abs(s.Spectrum[k]); abs > 0 {
				projected[k] = s.Spectrum[k] * complex(mag/abs, 0)
			} else {
				projected[k] = complex(mag, 0)
			}
		}

		for k := range diff {
			diff[k] = projected[k] - s.Spectrum[k]
		}

		// Back to the time domain and through the process derivative.
		ds, err := st.tr.Inverse(diff)
		if err != nil {
			return nil, err
		}

		contrib := make([]complex128, n)

		for t, e := range s.Field {
			dsdE := complex(float64(a), 0) * mixPow(e, a-1, b)

			c := cmplx.Conj(dsdE) * ds[t]

			if b > 0 {
				dsdConjE := complex(float64(b), 0) * mixPow(e, a, b-1)
				c += dsdConjE * cmplx.Conj(ds[t])
			}

			contrib[t] = c
		}

		dw, err := st.tr.Forward(contrib)
		if err != nil {
			return nil, err
		}

		mask := st.model.Mask(z)
		for k := range grad {
			grad[k] += cmplx.Conj(mask[k]) * dw[k]
		}
	}

	return grad, nil
}

// mixPow computes v^a * conj(v)^b for non-negative exponents.
func mixPow(v complex128, a, b int) complex128 {
	out := complex(1, 0)

	for range a {
		out *= v
	}

	c := cmplx.Conj(v)
	for range b {
		out *= c
	}

	return out
}

// descend applies a backtracking step along grad. The first trial moves
// the candidate by half its own norm; each rejection halves the step.
// Returns ok=false when no trial improves the error.
func (st *state) descend(candidate, grad []complex128, errNow float64) ([]complex128, bool, error) {
	gradNorm := norm(grad)
	if gradNorm == 0 {
		return nil, false, nil
	}

	step := 0.5 * norm(candidate) / gradNorm

	trial := make([]complex128, len(candidate))

	for range maxBacktracks {
		for k := range trial {
			trial[k] = candidate[k] + complex(step, 0)*grad[k]
		}

		_, _, errTrial, err := st.evaluate(trial)
		if err != nil {
			return nil, false, err
		}

		if errTrial < errNow {
			return trial, true, nil
		}

		step /= 2
	}

	return nil, false, nil
}

func norm(x []complex128) float64 {
	var acc float64
	for _, v := range x {
		acc += real(v)*real(v) + imag(v)*imag(v)
	}

	return math.Sqrt(acc)
}
