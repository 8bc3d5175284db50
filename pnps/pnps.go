// Package pnps implements the parametrized nonlinear-process spectrum:
// the forward model mapping a candidate pulse and a scan-parameter
// value to the expected nonlinear spectrum.
//
// The scan parameter perturbs the pulse through the material's
// dispersion mask before the nonlinear mixing step; all supported
// processes are collinear and reduce to s(t) = E(t)^a * conj(E(t))^b.
package pnps

import (
	"errors"
	"math"
	"math/cmplx"
	"runtime"
	"sync"

	"github.com/cwbudde/algo-dscan/grid"
	"github.com/cwbudde/algo-dscan/internal/cvec"
	"github.com/cwbudde/algo-dscan/material"
	"github.com/cwbudde/algo-dscan/trace"
)

// ErrUnknownProcess is returned for process tags outside the supported set.
var ErrUnknownProcess = errors.New("pnps: unknown nonlinear process")

// Process identifies the nonlinear process producing the scan trace.
type Process int

// Supported nonlinear processes.
const (
	SHG Process = iota + 1 // second harmonic generation
	THG                    // third harmonic generation
	SD                     // self diffraction
	PG                     // polarization gating
	XPW                    // cross-polarized wave generation
)

// String returns the process tag name.
func (p Process) String() string {
	switch p {
	case SHG:
		return "shg"
	case THG:
		return "thg"
	case SD:
		return "sd"
	case PG:
		return "pg"
	case XPW:
		return "xpw"
	default:
		return "unknown"
	}
}

// field exponents of s(t) = E^a * conj(E)^b per process.
var processExponents = map[Process]struct{ a, b int }{
	SHG: {2, 0},
	THG: {3, 0},
	SD:  {2, 1},
	PG:  {2, 1},
	XPW: {2, 1},
}

// Model simulates the nonlinear trace of a pulse for a given process
// and dispersive material.
//
// A Model's single-slice methods are not safe for concurrent use;
// Calculate parallelizes internally with per-worker transforms.
type Model struct {
	g          *grid.Grid
	tr         *grid.Transform
	process    Process
	a, b       int
	w0         float64
	dispersion []float64 // phase per unit insertion, fundamental axis
	signalW    []float64 // absolute signal frequency axis
}

// NewModel creates a forward model for a pulse carrier at
// centerWavelength (in meters).
func NewModel(g *grid.Grid, centerWavelength float64, process Process, mat material.Material) (*Model, error) {
	exp, ok := processExponents[process]
	if !ok {
		return nil, ErrUnknownProcess
	}

	tr, err := grid.NewTransform(g)
	if err != nil {
		return nil, err
	}

	w0 := 2 * math.Pi * grid.SpeedOfLight / centerWavelength

	det := g.W()

	wAbs := make([]float64, len(det))
	for k, w := range det {
		wAbs[k] = w + w0
	}

	dispersion, err := mat.DispersionPhase(wAbs, w0)
	if err != nil {
		return nil, err
	}

	order := float64(exp.a - exp.b)

	signalW := make([]float64, len(det))
	for k, w := range det {
		signalW[k] = w + order*w0
	}

	return &Model{
		g:          g,
		tr:         tr,
		process:    process,
		a:          exp.a,
		b:          exp.b,
		w0:         w0,
		dispersion: dispersion,
		signalW:    signalW,
	}, nil
}

// Grid returns the sampling grid.
func (m *Model) Grid() *grid.Grid { return m.g }

// Process returns the nonlinear process tag.
func (m *Model) Process() Process { return m.process }

// Exponents returns the field exponents (a, b) of s = E^a * conj(E)^b.
func (m *Model) Exponents() (int, int) { return m.a, m.b }

// SignalAxis returns the absolute angular-frequency axis the simulated
// signal spectrum lives on.
func (m *Model) SignalAxis() []float64 {
	return append([]float64(nil), m.signalW...)
}

// Mask returns the dispersion mask exp(i*z*phi(w)) for insertion z.
// Applying it to a retrieved spectrum reconstructs the comparably
// phased field at that scan position.
func (m *Model) Mask(z float64) []complex128 {
	out := make([]complex128, len(m.dispersion))
	for k, phi := range m.dispersion {
		out[k] = cmplx.Exp(complex(0, z*phi))
	}

	return out
}

// Slice holds the intermediate stages of one forward evaluation.
type Slice struct {
	Masked   []complex128 // mask(z) * spectrum
	Field    []complex128 // time-domain field after the mask
	Signal   []complex128 // time-domain nonlinear signal E^a * conj(E)^b
	Spectrum []complex128 // frequency-domain signal spectrum
}

// At evaluates the forward model at one scan-parameter value.
func (m *Model) At(spectrum []complex128, z float64) (*Slice, error) {
	return m.at(m.tr, spectrum, z)
}

func (m *Model) at(tr *grid.Transform, spectrum []complex128, z float64) (*Slice, error) {
	if len(spectrum) != m.g.Points() {
		return nil, grid.ErrLengthMismatch
	}

	masked := make([]complex128, len(spectrum))
	for k := range spectrum {
		masked[k] = spectrum[k] * cmplx.Exp(complex(0, z*m.dispersion[k]))
	}

	field, err := tr.Inverse(masked)
	if err != nil {
		return nil, err
	}

	signal := make([]complex128, len(field))
	for n, v := range field {
		signal[n] = mix(v, m.a, m.b)
	}

	spec, err := tr.Forward(signal)
	if err != nil {
		return nil, err
	}

	return &Slice{Masked: masked, Field: field, Signal: signal, Spectrum: spec}, nil
}

// mix computes v^a * conj(v)^b.
func mix(v complex128, a, b int) complex128 {
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

// SpectrumAt returns the simulated signal spectrum at one parameter value.
func (m *Model) SpectrumAt(spectrum []complex128, z float64) ([]complex128, error) {
	s, err := m.At(spectrum, z)
	if err != nil {
		return nil, err
	}

	return s.Spectrum, nil
}

// Calculate simulates the full intensity trace of a candidate spectrum
// over the given scan-parameter axis. Slices are evaluated
// concurrently; each row is written by exactly one worker, so the
// result is deterministic.
func (m *Model) Calculate(spectrum []complex128, parameter []float64) (*trace.Trace, error) {
	if len(parameter) == 0 {
		return nil, trace.ErrEmptyTrace
	}

	intensity := make([][]float64, len(parameter))

	workers := runtime.NumCPU()
	if workers > len(parameter) {
		workers = len(parameter)
	}

	// All transforms are created up front so no worker is left
	// blocking on the feed channel when one of them fails.
	transforms := make([]*grid.Transform, workers)
	for w := range transforms {
		tr, err := grid.NewTransform(m.g)
		if err != nil {
			return nil, err
		}

		transforms[w] = tr
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)

	next := make(chan int)

	for _, tr := range transforms {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range next {
				s, err := m.at(tr, spectrum, parameter[i])
				if err != nil {
					mu.Lock()
					if firstErr == nil {
						firstErr = err
					}
					mu.Unlock()

					continue
				}

				intensity[i] = cvec.Power(s.Spectrum)
			}
		}()
	}

	for i := range parameter {
		next <- i
	}

	close(next)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}

	return trace.New(append([]float64(nil), parameter...), m.SignalAxis(), intensity)
}
