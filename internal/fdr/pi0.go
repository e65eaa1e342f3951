package fdr

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
)

// PValues returns one empirical p-value per target of a best first list:
// the fraction of decoys that score at least as well. The result is
// ascending.
func PValues(list CombinedList) ([]float64, error) {
	if len(list) == 0 {
		return nil, ErrEmptyList
	}
	_, nDecoys := list.Counts()
	if nDecoys == 0 {
		return nil, ErrNoDecoys
	}
	p := make([]float64, 0, len(list)-nDecoys)
	decoys := 0
	groupStart := 0
	for i := range list {
		if i+1 < len(list) && list[i+1].Score == list[i].Score {
			continue
		}
		// Decoys tied with a target count as better
		targets := 0
		for _, psm := range list[groupStart : i+1] {
			if psm.IsDecoy {
				decoys++
			} else {
				targets++
			}
		}
		v := float64(decoys) / float64(nDecoys)
		for ; targets > 0; targets-- {
			p = append(p, v)
		}
		groupStart = i + 1
	}
	return p, nil
}

// lambdaGrid returns the grid of thresholds and the pi0 estimate of each.
// Grid points that give no positive estimate are left out.
func lambdaGrid(p []float64, cfg Config) (lambdas, pi0s []float64) {
	numLambda := cfg.NumLambda
	if numLambda <= 0 {
		numLambda = DefaultNumLambda
	}
	maxLambda := cfg.MaxLambda
	if maxLambda <= 0 {
		maxLambda = DefaultMaxLambda
	}
	for k := 0; k <= numLambda; k++ {
		lambda := float64(k+1) / float64(numLambda) * maxLambda
		if lambda < cfg.MinLambda || lambda >= 1 {
			continue
		}
		pi0 := storey(p, lambda, len(p))
		if pi0 > 0 {
			lambdas = append(lambdas, lambda)
			pi0s = append(pi0s, pi0)
		}
	}
	return lambdas, pi0s
}

// storey is the fraction of p-values at or above lambda, scaled by the
// expected fraction under the null. p must be ascending.
func storey(p []float64, lambda float64, n int) float64 {
	wl := len(p) - sort.SearchFloat64s(p, lambda)
	return float64(wl) / float64(n) / (1 - lambda)
}

// EstimatePi0 estimates the fraction of null targets from ascending
// p-values. Of the estimates over the lambda grid it picks the one that is
// most stable under bootstrap resampling, measured as the mean squared
// distance of the bootstrap estimates to the smallest estimate.
func EstimatePi0(p []float64, cfg Config) (float64, error) {
	n := len(p)
	if n == 0 {
		return 0, ErrNoPValues
	}
	if !sort.Float64sAreSorted(p) {
		p = append([]float64(nil), p...)
		sort.Float64s(p)
	}
	log := cfg.logger()

	lambdas, pi0s := lambdaGrid(p, cfg)
	if len(pi0s) == 0 {
		if cfg.NoTerminate {
			log.Warn("no lambda gives a positive pi0, using pi0 = 1",
				zap.Int("pValues", n))
			return 1, nil
		}
		return 0, errors.Wrapf(ErrSeparation, "no positive pi0 estimate for %d p-values", n)
	}
	minPi0 := floats.Min(pi0s)

	numBoot := cfg.NumBoot
	if numBoot <= 0 {
		numBoot = DefaultNumBoot
	}
	size := cfg.MaxBootSize
	if size <= 0 {
		size = DefaultMaxBootSize
	}
	if size > n {
		size = n
	}
	rnd := cfg.rng()
	mse := make([]float64, len(lambdas))
	boot := make([]float64, size)
	for b := 0; b < numBoot; b++ {
		for i := range boot {
			boot[i] = p[rnd.Intn(n)]
		}
		sort.Float64s(boot)
		for k, lambda := range lambdas {
			d := storey(boot, lambda, size) - minPi0
			mse[k] += d * d
		}
	}
	best := floats.MinIdx(mse)
	pi0 := math.Max(math.Min(pi0s[best], 1), 0)
	log.Debug("estimated pi0",
		zap.Float64("pi0", pi0),
		zap.Float64("lambda", lambdas[best]))
	return pi0, nil
}
