package trace

import "math"

// blur2D applies a separable Gaussian blur of the given sigma (in
// samples) to the intensity matrix in place.
func blur2D(data [][]float64, sigma float64) {
	kernel := gaussianKernel(sigma)
	if len(kernel) < 2 || len(data) == 0 {
		return
	}

	// Along the spectral axis.
	for r, row := range data {
		data[r] = convolveSame(row, kernel)
	}

	// Along the parameter axis.
	cols := len(data[0])
	col := make([]float64, len(data))

	for c := range cols {
		for r := range data {
			col[r] = data[r][c]
		}

		blurred := convolveSame(col, kernel)
		for r := range data {
			data[r][c] = blurred[r]
		}
	}
}

func gaussianKernel(sigma float64) []float64 {
	if sigma <= 0 {
		return nil
	}

	radius := int(math.Ceil(3 * sigma))

	kernel := make([]float64, 2*radius+1)

	sum := 0.0
	for i := range kernel {
		x := float64(i - radius)

		kernel[i] = math.Exp(-x * x / (2 * sigma * sigma))
		sum += kernel[i]
	}

	for i := range kernel {
		kernel[i] /= sum
	}

	return kernel
}

// convolveSame convolves x with a symmetric kernel, clamping at the
// edges so the output keeps the input length.
func convolveSame(x, kernel []float64) []float64 {
	radius := len(kernel) / 2

	out := make([]float64, len(x))

	for i := range x {
		acc := 0.0

		for k, w := range kernel {
			j := i + k - radius
			if j < 0 {
				j = 0
			}

			if j >= len(x) {
				j = len(x) - 1
			}

			acc += w * x[j]
		}

		out[i] = acc
	}

	return out
}
