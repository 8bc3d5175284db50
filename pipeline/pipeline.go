// Package pipeline wires the measurement tables, preprocessing, forward
// model, retrieval and compression search into one run.
package pipeline

import (
	"errors"
	"fmt"
	"math"

	"github.com/cwbudde/algo-dscan/compress"
	"github.com/cwbudde/algo-dscan/grid"
	"github.com/cwbudde/algo-dscan/material"
	"github.com/cwbudde/algo-dscan/pnps"
	"github.com/cwbudde/algo-dscan/pulse"
	"github.com/cwbudde/algo-dscan/retrieve"
	"github.com/cwbudde/algo-dscan/trace"
	"go.uber.org/zap"
)

// Errors returned by configuration and table decoding.
var (
	ErrInvalidConfig = errors.New("pipeline: invalid configuration")
	ErrBadTable      = errors.New("pipeline: malformed measurement table")
)

// Config collects every experiment parameter of a retrieval run.
type Config struct {
	GridPoints       int
	GridBandwidth    float64 // m
	CenterWavelength float64 // m; 0 derives it from the fundamental centroid

	FundamentalLow  float64 // m, fundamental crop window
	FundamentalHigh float64
	ScanLow         float64 // m, scan crop window
	ScanHigh        float64

	Material      material.Material
	WedgeAngleDeg float64
	Process       pnps.Process

	BlurSigma      float64 // scan blur width in samples, 0 disables
	EdgeFitSamples int
	DarkSamples    int

	MaxIterations int
	Tolerance     float64
	PhaseMax      float64
	Seed          int64

	TargetInsertion *float64 // overrides the compression minimum search

	Logger *zap.Logger
}

// DefaultConfig returns the parameters of a typical few-cycle SHG
// wedge scan.
func DefaultConfig() Config {
	return Config{
		GridPoints:      3000,
		GridBandwidth:   950e-9,
		FundamentalLow:  400e-9,
		FundamentalHigh: 600e-9,
		ScanLow:         200e-9,
		ScanHigh:        300e-9,
		Material:        material.BK7,
		WedgeAngleDeg:   8,
		Process:         pnps.SHG,
		MaxIterations:   30,
	}
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	switch {
	case c.GridPoints < 2:
		return fmt.Errorf("%w: grid points %d", ErrInvalidConfig, c.GridPoints)
	case c.GridBandwidth <= 0:
		return fmt.Errorf("%w: grid bandwidth %g", ErrInvalidConfig, c.GridBandwidth)
	case c.CenterWavelength < 0:
		return fmt.Errorf("%w: center wavelength %g", ErrInvalidConfig, c.CenterWavelength)
	case c.FundamentalLow <= 0 || c.FundamentalHigh <= c.FundamentalLow:
		return fmt.Errorf("%w: fundamental window [%g, %g]",
			ErrInvalidConfig, c.FundamentalLow, c.FundamentalHigh)
	case c.ScanLow <= 0 || c.ScanHigh <= c.ScanLow:
		return fmt.Errorf("%w: scan window [%g, %g]", ErrInvalidConfig, c.ScanLow, c.ScanHigh)
	case c.WedgeAngleDeg < 0 || c.WedgeAngleDeg >= 90:
		return fmt.Errorf("%w: wedge angle %g", ErrInvalidConfig, c.WedgeAngleDeg)
	case c.BlurSigma < 0:
		return fmt.Errorf("%w: blur sigma %g", ErrInvalidConfig, c.BlurSigma)
	}

	if _, err := c.Material.Coefficient(c.WedgeAngleDeg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	return nil
}

func (c Config) logger() *zap.Logger {
	if c.Logger == nil {
		return zap.NewNop()
	}

	return c.Logger
}

// DecodeFundamental parses a two-column (wavelength nm, intensity)
// table into SI axes.
func DecodeFundamental(rows [][]float64) (wavelength, intensity []float64, err error) {
	if len(rows) == 0 {
		return nil, nil, fmt.Errorf("%w: empty fundamental table", ErrBadTable)
	}

	wavelength = make([]float64, len(rows))
	intensity = make([]float64, len(rows))

	for i, row := range rows {
		if len(row) < 2 {
			return nil, nil, fmt.Errorf("%w: fundamental row %d has %d columns",
				ErrBadTable, i, len(row))
		}

		wavelength[i] = row[0] * 1e-9
		intensity[i] = row[1]
	}

	return wavelength, intensity, nil
}

// DecodeScan parses a scan table whose first row carries the stage
// positions in mm (first cell unused), whose first column carries the
// wavelengths in nm, and whose body holds one spectrum per column. The
// result is transposed to one spectrum per stage position.
func DecodeScan(rows [][]float64) (*trace.Trace, error) {
	if len(rows) < 2 || len(rows[0]) < 2 {
		return nil, fmt.Errorf("%w: scan table needs a header row and column", ErrBadTable)
	}

	cols := len(rows[0])

	positions := make([]float64, cols-1)
	for j := 1; j < cols; j++ {
		positions[j-1] = rows[0][j] * 1e-3
	}

	wavelength := make([]float64, len(rows)-1)
	intensity := make([][]float64, len(positions))

	for j := range intensity {
		intensity[j] = make([]float64, len(wavelength))
	}

	for i, row := range rows[1:] {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: scan row %d has %d columns, want %d",
				ErrBadTable, i+1, len(row), cols)
		}

		wavelength[i] = row[0] * 1e-9
		for j := 1; j < cols; j++ {
			intensity[j-1][i] = row[j]
		}
	}

	return trace.New(positions, wavelength, intensity)
}

// Result bundles the stages of a finished run.
type Result struct {
	Fundamental *trace.Fundamental
	Pulse       *pulse.Pulse
	FTL         float64 // Fourier-limit duration, s; NaN when undefined
	Retrieval   *retrieve.Result
	Report      *compress.Report
}

// Run executes the full retrieval: fundamental preprocessing, grid and
// Fourier-limited pulse construction, scan preprocessing and frequency
// resampling, phase retrieval and the compression search.
func Run(cfg Config, fundamental, scan [][]float64) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := cfg.logger()

	fundWl, fundInt, err := DecodeFundamental(fundamental)
	if err != nil {
		return nil, err
	}

	rawScan, err := DecodeScan(scan)
	if err != nil {
		return nil, err
	}

	fund, err := trace.PrepareFundamental(fundWl, fundInt, trace.FundamentalConfig{
		RangeLow:       cfg.FundamentalLow,
		RangeHigh:      cfg.FundamentalHigh,
		EdgeFitSamples: cfg.EdgeFitSamples,
	})
	if err != nil {
		return nil, err
	}

	centerWl := cfg.CenterWavelength
	if centerWl == 0 {
		centerWl = fund.CenterWavelength
	}

	log.Info("fundamental prepared",
		zap.Int("samples", len(fund.Wavelength)),
		zap.Float64("center_wavelength_m", centerWl))

	g, err := grid.New(cfg.GridPoints, cfg.GridBandwidth, centerWl)
	if err != nil {
		return nil, err
	}

	p, err := pulse.FromWavelengthSpectrum(g, fund.Wavelength, fund.Intensity, centerWl)
	if err != nil {
		return nil, err
	}

	ftl := math.NaN()
	if w, ok := p.FWHM(pulse.DefaultOversampling); ok {
		ftl = w
	}

	log.Info("Fourier limit estimated", zap.Float64("ftl_s", ftl))

	coef, err := cfg.Material.Coefficient(cfg.WedgeAngleDeg)
	if err != nil {
		return nil, err
	}

	prepared, err := trace.PrepareScan(rawScan, trace.ScanConfig{
		RangeLow:       cfg.ScanLow,
		RangeHigh:      cfg.ScanHigh,
		EdgeFitSamples: cfg.EdgeFitSamples,
		BlurSigma:      cfg.BlurSigma,
		Coefficient:    coef,
	})
	if err != nil {
		return nil, err
	}

	model, err := pnps.NewModel(g, centerWl, cfg.Process, cfg.Material)
	if err != nil {
		return nil, err
	}

	measured, err := trace.ResampleToFrequency(prepared, model.SignalAxis(), trace.ResampleConfig{
		DarkSamples: cfg.DarkSamples,
	})
	if err != nil {
		return nil, err
	}

	log.Info("scan trace prepared",
		zap.Int("positions", len(measured.Parameter)),
		zap.Float64("insertion_span_m",
			measured.Parameter[len(measured.Parameter)-1]-measured.Parameter[0]))

	ret, err := retrieve.Run(model, measured, p.Spectrum(), retrieve.Options{
		MaxIterations: cfg.MaxIterations,
		Tolerance:     cfg.Tolerance,
		PhaseMax:      cfg.PhaseMax,
		Seed:          cfg.Seed,
		Logger:        log,
	})
	if err != nil {
		return nil, err
	}

	rep, err := compress.Search(model, ret.Spectrum, measured.Parameter, compress.Config{
		Target: cfg.TargetInsertion,
	})
	if err != nil {
		return nil, err
	}

	rms, err := compress.SpectrumRMS(g, ret.Spectrum, fund.Wavelength, fund.Intensity, centerWl)
	if err != nil {
		return nil, err
	}

	rep.SpectrumRMSError = rms

	log.Info("run finished",
		zap.Float64("trace_error", ret.Errors[len(ret.Errors)-1]),
		zap.Float64("optimal_insertion_m", rep.OptimalPosition),
		zap.Float64("optimal_fwhm_s", rep.OptimalFWHM))

	return &Result{
		Fundamental: fund,
		Pulse:       p,
		FTL:         ftl,
		Retrieval:   ret,
		Report:      rep,
	}, nil
}
