package trace

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// linearFit solves the least-squares first-degree polynomial through
// (x, y) and returns slope and intercept.
func linearFit(x, y []float64) (float64, float64, error) {
	if len(x) != len(y) || len(x) < 2 {
		return 0, 0, ErrShapeMismatch
	}

	a := mat.NewDense(len(x), 2, nil)
	for i, v := range x {
		a.Set(i, 0, v)
		a.Set(i, 1, 1)
	}

	b := mat.NewVecDense(len(y), append([]float64(nil), y...))

	var qr mat.QR

	qr.Factorize(a)

	var sol mat.VecDense

	err := qr.SolveVecTo(&sol, false, b)
	if err != nil {
		return 0, 0, fmt.Errorf("trace: background fit failed: %w", err)
	}

	return sol.AtVec(0), sol.AtVec(1), nil
}

// subtractEdgeFit fits a line through the first and last edge samples
// of (x, y) and subtracts it from all of y in place.
func subtractEdgeFit(x, y []float64, edge int) error {
	if edge < 1 {
		edge = 1
	}

	if edge > len(x)/2 {
		edge = len(x) / 2
	}

	if edge < 1 {
		return nil
	}

	bx := make([]float64, 0, 2*edge)
	by := make([]float64, 0, 2*edge)

	bx = append(bx, x[:edge]...)
	bx = append(bx, x[len(x)-edge:]...)
	by = append(by, y[:edge]...)
	by = append(by, y[len(y)-edge:]...)

	slope, intercept, err := linearFit(bx, by)
	if err != nil {
		return err
	}

	for i := range y {
		y[i] -= slope*x[i] + intercept
	}

	return nil
}
