package svm

import (
	"math"

	"github.com/524D/mzrescore/internal/linalg"
)

// cgls solves the regularised least squares problem
//
//	min_w 0.5*lambda*w'w + 0.5*sum_{i in active} C[i]*(Y[i] - w'x_i)^2
//
// by conjugate gradients on the normal equations, without forming X'CX.
// w and o (the outputs w'x_i of all examples) are the warm start and are
// updated in place; only the outputs of the active rows are kept current.
// It returns true when the residual test passed before iterMax iterations,
// the iteration count and the residual ratio that was tested against epsilon.
func (t *trainer) cgls(iterMax int, epsilon float64, w, o []float64) (bool, int, float64) {
	set := t.set
	lambda := t.hp.Lambda
	active := t.active[:t.nActive]
	z := t.z[:len(active)]
	q := t.q[:len(active)]
	r := t.r
	p := t.p

	if len(active) == 0 {
		// Only the regulariser is left, its minimum is w = 0
		linalg.Zero(w)
		return true, 0, 0
	}

	for j, i := range active {
		z[j] = set.C[i] * (set.Y[i] - o[i])
	}
	set.X.MulTransVecRows(active, z, r)
	linalg.Axpy(-lambda, w, r)
	copy(p, r)
	omega1 := linalg.Norm(r)
	omegaP := omega1
	epsilon2 := epsilon * epsilon

	if omega1 == 0 {
		return true, 0, 0
	}

	iter := 0
	residual := math.Inf(1)
	for iter < iterMax {
		iter++
		set.X.MulVecRows(active, p, q)
		omegaQ := 0.0
		for j, i := range active {
			omegaQ += set.C[i] * q[j] * q[j]
		}
		gamma := omega1 / (lambda*omegaP + omegaQ)
		invOmega2 := 1 / omega1

		linalg.Axpy(gamma, p, w)
		omegaZ := 0.0
		for j, i := range active {
			o[i] += gamma * q[j]
			z[j] -= gamma * set.C[i] * q[j]
			omegaZ += z[j] * z[j]
		}
		// Recompute the residual from z so that it does not drift
		set.X.MulTransVecRows(active, z, r)
		linalg.Axpy(-lambda, w, r)
		omega1 = linalg.Norm(r)
		if omegaZ > 0 {
			residual = math.Sqrt(omega1 / omegaZ)
		}
		if omega1 < epsilon2*omegaZ || omega1 == 0 {
			return true, iter, residual
		}
		scale := omega1 * invOmega2
		linalg.Scale(scale, p)
		linalg.Axpy(1, r, p)
		omegaP = linalg.Norm(p)
	}
	return false, iter, residual
}
