// Package logistic estimates posterior error probabilities with a binned
// logistic regression. The log odds of a bin being a decoy are modelled by
// a natural cubic smoothing spline over the bin medians, fitted by
// iteratively reweighted least squares with a roughness penalty. The
// penalty weight is chosen by generalised cross validation.
package logistic

import (
	"math"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// Errors returned by Regression
var (
	ErrTooFewPoints      = errors.New("logistic: need at least two bins")
	ErrDimensionMismatch = errors.New("logistic: medians, negatives and sizes differ in length")
	ErrNotIncreasing     = errors.New("logistic: medians must be strictly increasing")
	ErrInvalidCounts     = errors.New("logistic: bin counts must satisfy 0 <= negatives <= sizes, sizes > 0")
	ErrNotFitted         = errors.New("logistic: RoughnessPenaltyIRLS has not been run")
	ErrNotFinite         = errors.New("logistic: cross validation score is not finite")
)

const (
	probEpsilon    = 1e-15
	stepEpsilon    = 1e-8
	convergeEps    = 1e-4
	maxIRLSIter    = 20
	maxAlphaIter   = 100
	maxGoldenIter  = 200
	initialAlpha   = 0.05
	goldenStopRel  = 1e-6
	goldenStopDist = 1e-10
)

// inverse of the golden ratio
var tao = 2 / (1 + math.Sqrt(5))

// Regression holds the data and the fitted spline
type Regression struct {
	log *zap.Logger

	tf   transform
	x    []float64 // transformed medians
	y, m []float64 // negatives and sizes per bin
	dx   []float64

	g, gnew    []float64 // log odds at the knots
	gamma      []float64 // second derivatives at the interior knots
	w, z, p    []float64
	qa, qb, qc []float64 // the three non-zeros of each column of Q

	alpha  float64
	fitted bool
	pi0    float64
	cutOff float64
}

// New returns an empty Regression that logs to logger (nil for none)
func New(logger *zap.Logger) *Regression {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Regression{log: logger, pi0: 1, cutOff: math.Inf(-1)}
}

// SetData stores the bins. medians must be strictly increasing.
// Scores that all lie in [0,1] are logit transformed and non-negative
// scores are log transformed before fitting.
func (r *Regression) SetData(medians []float64, negatives, sizes []int) error {
	n := len(medians)
	if len(negatives) != n || len(sizes) != n {
		return errors.Wrapf(ErrDimensionMismatch, "%d medians, %d negatives, %d sizes",
			n, len(negatives), len(sizes))
	}
	if n < 2 {
		return errors.Wrapf(ErrTooFewPoints, "got %d", n)
	}
	r.tf = chooseTransform(medians)
	r.x = make([]float64, n)
	r.y = make([]float64, n)
	r.m = make([]float64, n)
	for i, v := range medians {
		if negatives[i] < 0 || sizes[i] <= 0 || negatives[i] > sizes[i] {
			return errors.Wrapf(ErrInvalidCounts, "bin %d: %d of %d", i, negatives[i], sizes[i])
		}
		r.x[i] = r.tf.apply(v)
		r.y[i] = float64(negatives[i])
		r.m[i] = float64(sizes[i])
	}
	r.dx = make([]float64, n-1)
	for i := range r.dx {
		r.dx[i] = r.x[i+1] - r.x[i]
		if !(r.dx[i] > 0) {
			return errors.Wrapf(ErrNotIncreasing, "at bin %d", i+1)
		}
	}
	r.fitted = false
	return nil
}

// Alpha returns the selected roughness penalty weight
func (r *Regression) Alpha() float64 {
	return r.alpha
}

// initg starts from the smoothed empirical log odds of each bin
func (r *Regression) initg() {
	n := len(r.x)
	r.g = make([]float64, n)
	r.gnew = make([]float64, n)
	r.w = make([]float64, n)
	r.z = make([]float64, n)
	r.p = make([]float64, n)
	if n > 2 {
		r.gamma = make([]float64, n-2)
	} else {
		r.gamma = nil
	}
	for i := range r.gnew {
		p := (r.y[i] + 0.1) / (r.m[i] + 0.2)
		r.gnew[i] = math.Log(p / (1 - p))
	}
}

// calcPZW computes the working response z and the weights w of IRLS
func (r *Regression) calcPZW() {
	for i, g := range r.g {
		e := math.Exp(g)
		p := math.Min(math.Max(e/(1+e), probEpsilon), 1-probEpsilon)
		r.p[i] = p
		r.w[i] = r.m[i] * p * (1 - p)
		r.z[i] = g + (r.y[i]-p*r.m[i])/r.w[i]
	}
}

// limitg keeps g inside the range where calcPZW does not saturate
func (r *Regression) limitg() {
	lim := math.Log((1 - probEpsilon) / probEpsilon)
	for i, v := range r.gnew {
		r.gnew[i] = math.Max(math.Min(v, lim), -lim)
	}
}

// initiateQ fills the band matrices of the natural cubic spline: Q is
// n x (n-2) with column j non-zero at rows j, j+1 and j+2, R is the
// (n-2) x (n-2) tridiagonal matrix
func (r *Regression) initiateQ() {
	k := len(r.x) - 2
	r.qa = make([]float64, k)
	r.qb = make([]float64, k)
	r.qc = make([]float64, k)
	for j := 0; j < k; j++ {
		r.qa[j] = 1 / r.dx[j]
		r.qb[j] = -1/r.dx[j] - 1/r.dx[j+1]
		r.qc[j] = 1 / r.dx[j+1]
	}
}

// qAt returns Q[i][j]
func (r *Regression) qAt(i, j int) float64 {
	switch i - j {
	case 0:
		return r.qa[j]
	case 1:
		return r.qb[j]
	case 2:
		return r.qc[j]
	}
	return 0
}

// system builds R + alpha*Q'W^-1 Q
func (r *Regression) system(alpha float64) *pentaBand {
	k := len(r.qa)
	b := newPentaBand(k)
	for j := 0; j < k; j++ {
		dj0, dj1, dj2 := 1/r.w[j], 1/r.w[j+1], 1/r.w[j+2]
		b.k0[j] = (r.dx[j]+r.dx[j+1])/3 +
			alpha*(r.qa[j]*r.qa[j]*dj0+r.qb[j]*r.qb[j]*dj1+r.qc[j]*r.qc[j]*dj2)
		if j+1 < k {
			b.k1[j] = r.dx[j+1]/6 +
				alpha*(r.qb[j]*r.qa[j+1]*dj1+r.qc[j]*r.qb[j+1]*dj2)
		}
		if j+2 < k {
			b.k2[j] = alpha * r.qc[j] * r.qa[j+2] * dj2
		}
	}
	return b
}

// irls iterates the penalised fit for a fixed alpha
func (r *Regression) irls(alpha float64) error {
	n := len(r.x)
	k := len(r.qa)
	qg := make([]float64, n)
	diff := make([]float64, n)
	for iter := 0; iter < maxIRLSIter; iter++ {
		copy(r.g, r.gnew)
		r.calcPZW()
		b := r.system(alpha)
		if !b.factor() {
			return errors.Errorf("logistic: penalised system is not positive definite (alpha %g)", alpha)
		}
		for j := 0; j < k; j++ {
			r.gamma[j] = r.qa[j]*r.z[j] + r.qb[j]*r.z[j+1] + r.qc[j]*r.z[j+2]
		}
		b.solve(r.gamma)
		for i := range qg {
			qg[i] = 0
			for j := i - 2; j <= i; j++ {
				if j >= 0 && j < k {
					qg[i] += r.qAt(i, j) * r.gamma[j]
				}
			}
			r.gnew[i] = r.z[i] - alpha*qg[i]/r.w[i]
		}
		r.limitg()
		floats.SubTo(diff, r.g, r.gnew)
		step := floats.Norm(diff, 2) / float64(n)
		if step <= stepEpsilon {
			break
		}
	}
	return nil
}

// crossValidation scores alpha with the weighted GCV criterion. The
// leverages come from the band of (R + alpha*Q'W^-1 Q)^-1.
func (r *Regression) crossValidation(alpha float64) float64 {
	n := len(r.x)
	k := len(r.qa)
	b := r.system(alpha)
	if !b.factor() {
		return math.Inf(1)
	}
	b0, b1, b2 := b.inverseBand()
	binv := func(j, l int) float64 {
		if j > l {
			j, l = l, j
		}
		switch l - j {
		case 0:
			return b0[j]
		case 1:
			return b1[j]
		case 2:
			return b2[j]
		}
		return 0
	}
	cv := 0.0
	for i := 0; i < n; i++ {
		a := 0.0
		for j := i - 2; j <= i; j++ {
			if j < 0 || j >= k {
				continue
			}
			for l := i - 2; l <= i; l++ {
				if l < 0 || l >= k {
					continue
				}
				a += r.qAt(i, j) * r.qAt(i, l) * binv(j, l)
			}
		}
		f := (r.z[i] - r.gnew[i]) * r.w[i] / (alpha * a)
		cv += f * f * r.w[i]
	}
	return cv
}

// alphaSearch does a golden section search for the penalty weight over
// p in (0,1) with alpha = -log(p). It returns alpha and its score.
func (r *Regression) alphaSearch() (float64, float64) {
	minP, maxP := 0.0, 1.0
	p1, p2 := 1-tao, tao
	cv1 := r.crossValidation(-math.Log(p1))
	cv2 := r.crossValidation(-math.Log(p2))
	for iter := 0; iter < maxGoldenIter; iter++ {
		var oldCV float64
		if cv1 > cv2 {
			minP = p1
			oldCV = cv1
			p1, cv1 = p2, cv2
			p2 = minP + tao*(maxP-minP)
			cv2 = r.crossValidation(-math.Log(p2))
		} else {
			maxP = p2
			oldCV = cv2
			p2, cv2 = p1, cv1
			p1 = minP + (1-tao)*(maxP-minP)
			cv1 = r.crossValidation(-math.Log(p1))
		}
		if oldCV == 0 || (oldCV-math.Min(cv1, cv2))/oldCV < goldenStopRel || math.Abs(p2-p1) < goldenStopDist {
			break
		}
	}
	if cv1 > cv2 {
		return -math.Log(p2), cv2
	}
	return -math.Log(p1), cv1
}

// RoughnessPenaltyIRLS fits the spline. The penalty weight alternates
// with the IRLS fit until the cross validation score stops improving.
func (r *Regression) RoughnessPenaltyIRLS() error {
	if len(r.x) < 2 {
		return ErrTooFewPoints
	}
	r.initg()
	if len(r.x) == 2 {
		// Two points leave nothing to smooth, the spline is a line
		r.limitg()
		copy(r.g, r.gnew)
		r.alpha = 0
		r.fitted = true
		return nil
	}
	r.initiateQ()

	alpha := initialAlpha
	cv := 1e100
	for alphaIter := 0; ; alphaIter++ {
		if err := r.irls(alpha); err != nil {
			return err
		}
		newAlpha, newCV := r.alphaSearch()
		if math.IsNaN(newCV) {
			return errors.Wrapf(ErrNotFinite, "alpha %g", newAlpha)
		}
		r.log.Debug("logistic spline alpha search",
			zap.Float64("alpha", newAlpha),
			zap.Float64("cv", newCV))
		if (cv-newCV)/cv < convergeEps || alphaIter >= maxAlphaIter {
			// The last alpha is rejected, g belongs to the previous one
			break
		}
		cv = newCV
		alpha = newAlpha
	}
	copy(r.g, r.gnew)
	r.alpha = alpha
	r.fitted = true
	return nil
}

// eval evaluates the spline at a transformed score. Outside the knots
// it continues linearly.
func (r *Regression) eval(xx float64) float64 {
	x, g := r.x, r.g
	n := len(x)
	gam := func(knot int) float64 {
		// second derivative at knot, zero at both ends
		if knot <= 0 || knot >= n-1 {
			return 0
		}
		return r.gamma[knot-1]
	}
	right := lowerBound(x, xx)
	if right == n {
		h := x[n-1] - x[n-2]
		der := (g[n-1]-g[n-2])/h + h/6*gam(n-2)
		return g[n-1] + (xx-x[n-1])*der
	}
	if x[right] == xx {
		return g[right]
	}
	if right == 0 {
		h := x[1] - x[0]
		der := (g[1]-g[0])/h - h/6*gam(1)
		return g[0] - (x[0]-xx)*der
	}
	left := right - 1
	dr := x[right] - xx
	dl := xx - x[left]
	h := x[right] - x[left]
	return (dl*g[right]+dr*g[left])/h -
		dl*dr/6*((1+dl/h)*gam(right)+(1+dr/h)*gam(left))
}

func lowerBound(x []float64, v float64) int {
	lo, hi := 0, len(x)
	for lo < hi {
		mid := (lo + hi) / 2
		if x[mid] < v {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// SetCutOff sets pi0 and the score below which every prediction is 1:
// the highest knot where pi0 times the fitted odds exceeds 1
func (r *Regression) SetCutOff(pi0 float64) {
	r.pi0 = pi0
	if !r.fitted {
		return
	}
	ix := len(r.g) - 1
	for ; ix >= 0; ix-- {
		if pi0*math.Exp(r.g[ix]) > 1 {
			break
		}
	}
	if ix < 0 {
		ix = 0
	}
	r.cutOff = r.x[ix]
}

// PredictOne returns the posterior error probability of score xx
func (r *Regression) PredictOne(xx float64) float64 {
	t := r.tf.apply(xx)
	if t < r.cutOff {
		return 1
	}
	return math.Min(1, r.pi0*math.Exp(r.eval(t)))
}

// Predict returns PredictOne for each score
func (r *Regression) Predict(xs []float64) ([]float64, error) {
	if !r.fitted {
		return nil, ErrNotFitted
	}
	res := make([]float64, len(xs))
	for i, v := range xs {
		res[i] = r.PredictOne(v)
	}
	return res, nil
}
