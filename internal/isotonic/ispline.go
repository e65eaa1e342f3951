package isotonic

import (
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Defaults for Ispline
const (
	DefaultBins   = 10000
	DefaultLambda = 1e-6
	DefaultKnots  = 50
	DefaultSkew   = 0.75
)

// Ispline fits a monotone cubic I-spline by weighted ridge regression and
// cleans up the fit with PAVA, since the unconstrained least squares fit
// is not guaranteed to be monotone.
type Ispline struct {
	Bins     int     // inputs longer than this are binned into equal count bins
	Lambda   float64 // ridge added to the diagonal of the normal equations
	MaxKnots int     // upper limit for the number of knot intervals
	Skew     float64 // < 1 places more knots at the start of the x range
}

// DefaultIspline returns an Ispline with the default settings
func DefaultIspline() Ispline {
	return Ispline{
		Bins:     DefaultBins,
		Lambda:   DefaultLambda,
		MaxKnots: DefaultKnots,
		Skew:     DefaultSkew,
	}
}

// IsplineFit is DefaultIspline().FitXY
func IsplineFit(x, y []float64, min, max float64) []float64 {
	return DefaultIspline().FitXY(x, y, min, max)
}

// Fit uses the rank as x
func (s Ispline) Fit(y []float64, min, max float64) []float64 {
	x := make([]float64, len(y))
	for i := range x {
		x[i] = float64(i)
	}
	return s.FitXY(x, y, min, max)
}

const badLength = "isotonic: slice lengths do not match"

type binnedData struct {
	x, y, w []float64
}

// FitXY fits y as a monotone function of x. It panics when len(x) != len(y).
func (s Ispline) FitXY(x, y []float64, min, max float64) []float64 {
	n := len(x)
	if n != len(y) {
		panic(badLength)
	}
	if n == 0 {
		return []float64{}
	}
	// Internally x is ascending
	u := make([]float64, n)
	sign := 1.0
	if x[0] > x[n-1] {
		sign = -1
	}
	for i, v := range x {
		u[i] = sign * v
	}
	xmin, xmax := u[0], u[n-1]
	if xmax <= xmin {
		// No spread in x, the only monotone function is a constant
		mean := stat.Mean(y, nil)
		v := math.Max(math.Min(mean, max), min)
		res := make([]float64, n)
		for i := range res {
			res[i] = v
		}
		return res
	}
	xscale := xmax - xmin
	for i := range u {
		u[i] = (u[i] - xmin) / xscale
	}

	data := s.bin(u, y)
	knots := s.knots(data)
	coef, ok := s.solve(data, knots)
	if !ok {
		return PAVA{}.Fit(y, min, max)
	}

	pred := make([]float64, n)
	basis := make([]float64, len(knots))
	for i, ui := range u {
		evalBasis(ui, knots, basis)
		pred[i] = math.Max(math.Min(floats.Dot(coef, basis), max), min)
	}
	return PAVA{}.Fit(pred, min, max)
}

// bin averages consecutive points into at most s.Bins equal count bins
func (s Ispline) bin(x, y []float64) binnedData {
	n := len(x)
	bins := s.Bins
	if bins <= 0 {
		bins = DefaultBins
	}
	if n <= bins {
		w := make([]float64, n)
		for i := range w {
			w[i] = 1
		}
		return binnedData{x: x, y: y, w: w}
	}
	xs := make([]float64, bins)
	ys := make([]float64, bins)
	ws := make([]float64, bins)
	binSize := float64(n) / float64(bins)
	for i := 0; i < n; i++ {
		b := int(float64(i) / binSize)
		if b >= bins {
			b = bins - 1
		}
		xs[b] += x[i]
		ys[b] += y[i]
		ws[b]++
	}
	var out binnedData
	for b := 0; b < bins; b++ {
		if ws[b] > 0 {
			out.x = append(out.x, xs[b]/ws[b])
			out.y = append(out.y, ys[b]/ws[b])
			out.w = append(out.w, ws[b])
		}
	}
	return out
}

// knots places the knot positions at skewed weighted quantiles of the
// (normalised, ascending) binned x. The first knot is 0 and the last 1.
func (s Ispline) knots(data binnedData) []float64 {
	maxKnots := s.MaxKnots
	if maxKnots <= 0 {
		maxKnots = DefaultKnots
	}
	skew := s.Skew
	if skew <= 0 {
		skew = DefaultSkew
	}
	k := int(math.Sqrt(float64(len(data.x))))
	if k > maxKnots {
		k = maxKnots
	}
	if k < 1 {
		k = 1
	}
	knots := []float64{0}
	for j := 1; j < k; j++ {
		p := math.Pow(float64(j)/float64(k), 1/skew)
		q := stat.Quantile(p, stat.Empirical, data.x, data.w)
		if q > knots[len(knots)-1]+1e-12 && q < 1 {
			knots = append(knots, q)
		}
	}
	return append(knots, 1)
}

// evalBasis fills basis with the intercept and the I-spline of each knot
// interval at x
func evalBasis(x float64, knots, basis []float64) {
	basis[0] = 1
	for j := 1; j < len(knots); j++ {
		basis[j] = cubicIspline(x, knots[j-1], knots[j])
	}
}

// cubicIspline rises monotonically from 0 at left to 1 at right
func cubicIspline(x, left, right float64) float64 {
	if x < left {
		return 0
	}
	if x >= right {
		return 1
	}
	u := (x - left) / (right - left)
	return 3*u*u - 2*u*u*u
}

// solve computes the ridge regression coefficients from the weighted
// normal equations (X'WX + lambda*I) c = X'Wy. Knot coefficients must not
// be negative: a negative one is fixed at 0 and the rest is solved again.
func (s Ispline) solve(data binnedData, knots []float64) ([]float64, bool) {
	p := len(knots)
	lambda := s.Lambda
	if lambda <= 0 {
		lambda = DefaultLambda
	}
	ata := mat.NewSymDense(p, nil)
	atb := mat.NewVecDense(p, nil)
	basis := make([]float64, p)
	for i, xi := range data.x {
		evalBasis(xi, knots, basis)
		w := data.w[i]
		for a := 0; a < p; a++ {
			if basis[a] == 0 {
				continue
			}
			atb.SetVec(a, atb.AtVec(a)+w*basis[a]*data.y[i])
			for b := a; b < p; b++ {
				ata.SetSym(a, b, ata.At(a, b)+w*basis[a]*basis[b])
			}
		}
	}

	free := make([]int, p)
	for a := range free {
		free[a] = a
	}
	for len(free) > 0 {
		c, ok := solveSubset(ata, atb, free, lambda)
		if !ok {
			return nil, false
		}
		// Drop the most negative knot coefficient, the intercept is free
		worst, worstVal := -1, 0.0
		for k, a := range free {
			if a > 0 && c[k] < worstVal {
				worst, worstVal = k, c[k]
			}
		}
		if worst < 0 {
			coef := make([]float64, p)
			for k, a := range free {
				coef[a] = c[k]
			}
			return coef, true
		}
		free = append(free[:worst], free[worst+1:]...)
	}
	return nil, false
}

// solveSubset solves the normal equations restricted to the columns in
// idx. The ridge is increased until the system is positive definite.
func solveSubset(ata *mat.SymDense, atb *mat.VecDense, idx []int, lambda float64) ([]float64, bool) {
	k := len(idx)
	rhs := mat.NewVecDense(k, nil)
	for i, a := range idx {
		rhs.SetVec(i, atb.AtVec(a))
	}
	for try := 0; try < 8; try++ {
		sys := mat.NewSymDense(k, nil)
		for i, a := range idx {
			for j := i; j < k; j++ {
				sys.SetSym(i, j, ata.At(a, idx[j]))
			}
			sys.SetSym(i, i, sys.At(i, i)+lambda)
		}
		var chol mat.Cholesky
		if chol.Factorize(sys) {
			var c mat.VecDense
			if err := chol.SolveVecTo(&c, rhs); err == nil {
				return mat.Col(nil, 0, &c), true
			}
		}
		lambda *= 10
	}
	return nil, false
}
