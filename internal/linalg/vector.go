// Package linalg holds the few dense vector and matrix kernels used by the
// classifier and the calibration code. The vector kernels are thin wrappers
// around gonum's floats package: they never allocate, and a length mismatch
// makes floats panic, which is the only bounds check done at this level.
package linalg

import (
	"gonum.org/v1/gonum/floats"
)

// Norm returns the squared euclidean length of x.
func Norm(x []float64) float64 {
	return floats.Dot(x, x)
}

// Dot returns the inner product of x and y.
func Dot(x, y []float64) float64 {
	return floats.Dot(x, y)
}

// Axpy computes y += alpha*x in place.
func Axpy(alpha float64, x, y []float64) {
	floats.AddScaled(y, alpha, x)
}

// Scale computes x *= alpha in place.
func Scale(alpha float64, x []float64) {
	floats.Scale(alpha, x)
}

// Zero sets all elements of x to 0.
func Zero(x []float64) {
	for i := range x {
		x[i] = 0
	}
}
