package fdr

import (
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/524D/mzrescore/internal/isotonic"
	"github.com/524D/mzrescore/internal/logistic"
)

const decoyRateEpsilon = 1e-20

// PEPFromQValues converts the q-values of the targets of a best first
// list into posterior error probabilities. The local error rates from
// isotonic.RawPEP are smoothed by reg, LogitPAVA when reg is nil. scores
// may be nil; otherwise it holds the target scores and is used as the x
// axis of the regression.
func PEPFromQValues(q, scores []float64, reg isotonic.Regressor) []float64 {
	if reg == nil {
		reg = isotonic.LogitPAVA{}
	}
	raw := isotonic.RawPEP(q)
	if scores != nil && len(scores) == len(raw) {
		return reg.FitXY(scores, raw, 0, 1)
	}
	return reg.Fit(raw, 0, 1)
}

// PEPFromTargetDecoy estimates the PEP of every element of a best first
// list from the local decoy rate. The decoy indicator is regressed by
// reg (PAVA when nil) after a pseudo observation of 0.5 is put in front;
// with decoy rate d the PEP is d/(1-d), capped at 1.
func PEPFromTargetDecoy(list CombinedList, reg isotonic.Regressor) ([]float64, error) {
	n := len(list)
	if n == 0 {
		return nil, ErrEmptyList
	}
	if reg == nil {
		reg = isotonic.PAVA{}
	}
	isDecoy := make([]float64, n+1)
	scores := make([]float64, n+1)
	isDecoy[0] = 0.5
	scores[0] = list[0].Score
	for i, psm := range list {
		if psm.IsDecoy {
			isDecoy[i+1] = 1
		}
		scores[i+1] = psm.Score
	}
	rate := reg.FitXY(scores, isDecoy, 0, 1)
	if len(rate) != n+1 {
		return nil, errors.Errorf("fdr: regression returned %d values for %d points", len(rate), n+1)
	}
	pep := make([]float64, n)
	for i, d := range rate[1:] {
		d = math.Min(d, 1-decoyRateEpsilon)
		pep[i] = math.Min(d/(1-d), 1)
	}
	return pep, nil
}

// PEPFromLogistic estimates the PEP of every element of a best first list
// with the binned logistic regression of package logistic. The result is
// non-decreasing. When all
// scores fall into a single bin, ErrTooFewBins is returned, unless
// cfg.NoTerminate is set: then the scores are jittered once and binned
// again.
func PEPFromLogistic(list CombinedList, pi0 float64, cfg Config) ([]float64, error) {
	n := len(list)
	if n == 0 {
		return nil, ErrEmptyList
	}
	if !(pi0 > 0 && pi0 <= 1) {
		return nil, errors.Wrapf(ErrInvalidPi0, "got %g", pi0)
	}
	log := cfg.logger()

	// Worst first for binning
	asc := make(CombinedList, n)
	for i, psm := range list {
		asc[n-1-i] = psm
	}
	medians, negatives, sizes, err := binList(asc, cfg.Intervals)
	if err != nil {
		return nil, err
	}
	if len(medians) < 2 {
		if !cfg.NoTerminate {
			return nil, errors.Wrapf(ErrTooFewBins, "%d PSMs give %d bins", n, len(medians))
		}
		log.Warn("too few score bins, jittering scores", zap.Int("bins", len(medians)))
		jitter(asc, cfg.rng())
		medians, negatives, sizes, err = binList(asc, cfg.Intervals)
		if err != nil {
			return nil, err
		}
		if len(medians) < 2 {
			return nil, errors.Wrapf(ErrTooFewBins, "%d bins after jitter", len(medians))
		}
	}

	lr := logistic.New(log)
	if err := lr.SetData(medians, negatives, sizes); err != nil {
		return nil, err
	}
	if err := lr.RoughnessPenaltyIRLS(); err != nil {
		return nil, err
	}
	lr.SetCutOff(pi0)
	scores := make([]float64, n)
	for i, psm := range list {
		scores[i] = psm.Score
	}
	pep, err := lr.Predict(scores)
	if err != nil {
		return nil, err
	}
	// The spline need not be monotone, PEP must not drop towards worse scores
	for i := 1; i < n; i++ {
		pep[i] = math.Max(pep[i], pep[i-1])
	}
	return pep, nil
}

func binList(asc CombinedList, intervals int) ([]float64, []int, []int, error) {
	scores := make([]float64, len(asc))
	isDecoy := make([]bool, len(asc))
	for i, psm := range asc {
		scores[i] = psm.Score
		isDecoy[i] = psm.IsDecoy
	}
	if intervals <= 0 {
		intervals = DefaultIntervals
	}
	return logistic.BinData(scores, isDecoy, intervals)
}

// jitter adds small gaussian noise to the scores and restores the
// ascending order
func jitter(asc CombinedList, rnd *rand.Rand) {
	for i := range asc {
		scale := 1e-6 * math.Max(1, math.Abs(asc[i].Score))
		asc[i].Score += scale * rnd.NormFloat64()
	}
	sort.SliceStable(asc, func(i, j int) bool { return asc[i].Score < asc[j].Score })
}
