// Package isotonic contains monotone (non-decreasing) regressors used to turn
// noisy local error rates into posterior error probabilities.
package isotonic

import (
	"math"
)

// Regressor fits a non-decreasing sequence to y. The result has the same
// length as y and every value lies in [min, max].
type Regressor interface {
	// Fit uses the position in y as ordering key
	Fit(y []float64, min, max float64) []float64
	// FitXY uses x as ordering key. x must be sorted, either way round;
	// the result is non-decreasing in sequence order.
	FitXY(x, y []float64, min, max float64) []float64
}

// block is a run of merged points
type block struct {
	sum   float64
	count int
	avg   float64
}

// PAVA is the pool-adjacent-violators algorithm
type PAVA struct{}

// Fit returns the least squares non-decreasing fit to values, clamped to
// [min, max]
func (PAVA) Fit(values []float64, min, max float64) []float64 {
	n := len(values)
	if n == 0 {
		return []float64{}
	}
	stack := make([]block, 0, n)
	for _, v := range values {
		stack = append(stack, block{sum: v, count: 1, avg: v})
		// Merge while the second to top block breaks monotonicity
		for len(stack) > 1 {
			top := stack[len(stack)-1]
			sec := stack[len(stack)-2]
			if sec.avg <= top.avg {
				break
			}
			sum := sec.sum + top.sum
			count := sec.count + top.count
			stack = stack[:len(stack)-2]
			stack = append(stack, block{sum: sum, count: count, avg: sum / float64(count)})
		}
	}
	result := make([]float64, 0, n)
	for _, b := range stack {
		v := math.Max(math.Min(b.avg, max), min)
		for c := 0; c < b.count; c++ {
			result = append(result, v)
		}
	}
	return result
}

// FitXY ignores x: PAVA only needs the order of the points
func (p PAVA) FitXY(_, y []float64, min, max float64) []float64 {
	return p.Fit(y, min, max)
}

// DefaultLogitEpsilon keeps values away from 0 and 1 before the logit
const DefaultLogitEpsilon = 1e-15

// LogitPAVA runs PAVA on logit transformed values. Merged values are
// transformed back with the logistic function, so they stay inside (0,1).
type LogitPAVA struct {
	Epsilon float64 // clamp distance from 0 and 1, DefaultLogitEpsilon if 0
}

func (l LogitPAVA) eps() float64 {
	if l.Epsilon > 0 {
		return l.Epsilon
	}
	return DefaultLogitEpsilon
}

// Fit returns a non-decreasing sequence in (0,1) clamped to [min, max]
func (l LogitPAVA) Fit(values []float64, min, max float64) []float64 {
	eps := l.eps()
	lv := make([]float64, len(values))
	for i, v := range values {
		lv[i] = Logit(math.Max(math.Min(v, 1-eps), eps))
	}
	fit := PAVA{}.Fit(lv, math.Inf(-1), math.Inf(1))
	for i, v := range fit {
		fit[i] = math.Max(math.Min(Logistic(v), max), min)
	}
	return fit
}

// FitXY ignores x, see PAVA.FitXY
func (l LogitPAVA) FitXY(_, y []float64, min, max float64) []float64 {
	return l.Fit(y, min, max)
}

// Logit is log(p/(1-p))
func Logit(p float64) float64 {
	return math.Log(p / (1 - p))
}

// Logistic is the inverse of Logit
func Logistic(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// IsotonicFit is PAVA{}.Fit
func IsotonicFit(values []float64, min, max float64) []float64 {
	return PAVA{}.Fit(values, min, max)
}
