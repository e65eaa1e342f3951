// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"math"
	"math/rand"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"

	"github.com/524D/mzrescore/internal/fdr"
	"github.com/524D/mzrescore/internal/svm"
)

const (
	defaultFolds    = 3
	defaultMaxIter  = 10
	defaultTrainFDR = 0.01
	defaultTestFDR  = 0.01
	defaultSeed     = 1
)

// Candidate costs when they are not fixed by the user
var (
	cposCandidates  = []float64{10, 1, 0.1}
	cfracCandidates = []float64{1, 3, 10}
)

// ErrTooFewSpectra is returned when there are fewer spectra than folds
var ErrTooFewSpectra = errors.New("fewer spectra than cross validation folds")

type trainConfig struct {
	Folds    int     `yaml:"folds"`
	MaxIter  int     `yaml:"max_iter"`
	TrainFDR float64 `yaml:"train_fdr"` // q-value threshold for the positive training set
	TestFDR  float64 `yaml:"test_fdr"`
	Cpos     float64 `yaml:"cpos"` // 0 selects from cposCandidates
	Cneg     float64 `yaml:"cneg"` // 0 selects from cfracCandidates
	Seed     int64   `yaml:"seed"`
}

func defaultTrainConfig() trainConfig {
	return trainConfig{
		Folds:    defaultFolds,
		MaxIter:  defaultMaxIter,
		TrainFDR: defaultTrainFDR,
		TestFDR:  defaultTestFDR,
		Seed:     defaultSeed,
	}
}

// iterationInfo describes the training of one fold in one iteration
type iterationInfo struct {
	Iteration     int
	Fold          int
	Positives     int
	Negatives     int
	Cpos          float64
	Cneg          float64
	Status        string
	SVMIterations int
	// Found is the number of training targets below the training FDR
	// with the new weights
	Found int
}

// crossValidation trains one weight vector per fold on the PSMs of the
// other folds. Each weight vector only scores the PSMs of its own fold.
type crossValidation struct {
	cfg   trainConfig
	hp    svm.Hyperparameters
	log   *zap.Logger
	x     [][]float64 // normalized features
	decoy []bool
	fold  []int
	train [][]int // indices of the training PSMs of each fold
	test  [][]int
	w     [][]float64 // weights of each fold, bias last
	info  []iterationInfo
}

// assignFolds puts all PSMs of a spectrum into the same fold. Spectra are
// distributed over the folds in random order.
func assignFolds(specIDs []string, k int, rnd *rand.Rand) ([]int, error) {
	specIdx := make(map[string]int)
	var order []string
	for _, id := range specIDs {
		if _, ok := specIdx[id]; !ok {
			specIdx[id] = len(order)
			order = append(order, id)
		}
	}
	if len(order) < k {
		return nil, errors.Wrapf(ErrTooFewSpectra, "%d spectra for %d folds", len(order), k)
	}
	specFold := make([]int, len(order))
	for i, p := range rnd.Perm(len(order)) {
		specFold[p] = i % k
	}
	fold := make([]int, len(specIDs))
	for i, id := range specIDs {
		fold[i] = specFold[specIdx[id]]
	}
	return fold, nil
}

func newCrossValidation(x [][]float64, decoy []bool, fold []int,
	cfg trainConfig, hp svm.Hyperparameters, logger *zap.Logger) *crossValidation {
	cv := &crossValidation{
		cfg:   cfg,
		hp:    hp,
		log:   logger,
		x:     x,
		decoy: decoy,
		fold:  fold,
		train: make([][]int, cfg.Folds),
		test:  make([][]int, cfg.Folds),
		w:     make([][]float64, cfg.Folds),
	}
	for i, f := range fold {
		cv.test[f] = append(cv.test[f], i)
		for g := 0; g < cfg.Folds; g++ {
			if g != f {
				cv.train[g] = append(cv.train[g], i)
			}
		}
	}
	return cv
}

func (cv *crossValidation) dim() int {
	return len(cv.x[0]) + 1
}

func (cv *crossValidation) score(w []float64, rows []int) []float64 {
	s := make([]float64, len(rows))
	for k, i := range rows {
		s[k] = svm.Score(w, cv.x[i])
	}
	return s
}

// qValues returns target-decoy q-values for the PSMs in rows, scored by
// scores (parallel to rows)
func (cv *crossValidation) qValues(rows []int, scores []float64, skipDecoysPlusOne bool) ([]float64, error) {
	order := make([]int, len(rows))
	for k := range order {
		order[k] = k
	}
	sort.SliceStable(order, func(a, b int) bool { return scores[order[a]] > scores[order[b]] })
	list := make(fdr.CombinedList, len(rows))
	for k, o := range order {
		list[k] = fdr.ScoredPSM{Score: scores[o], IsDecoy: cv.decoy[rows[o]]}
	}
	cfg := fdr.Config{Mode: fdr.ModeTDC, SkipDecoysPlusOne: skipDecoysPlusOne, Logger: cv.log}
	q, err := fdr.QValues(list, 1, cfg)
	if err != nil {
		return nil, err
	}
	out := make([]float64, len(rows))
	for k, o := range order {
		out[o] = q[k]
	}
	return out, nil
}

// countTargets returns the number of targets in rows below q-value
// threshold level
func (cv *crossValidation) countTargets(w []float64, rows []int, level float64, skipDecoysPlusOne bool) (int, []float64, error) {
	q, err := cv.qValues(rows, cv.score(w, rows), skipDecoysPlusOne)
	if err != nil {
		return 0, nil, err
	}
	n := 0
	for k, i := range rows {
		if !cv.decoy[i] && q[k] <= level {
			n++
		}
	}
	return n, q, nil
}

// initialDirection uses initDir (already normalized, bias last) when
// given, otherwise the single feature that separates best on the
// training PSMs of each fold
func (cv *crossValidation) initialDirection(initDir []float64) error {
	for f := range cv.w {
		if initDir != nil {
			cv.w[f] = append([]float64(nil), initDir...)
			continue
		}
		bestCount := -1
		w := make([]float64, cv.dim())
		for j := 0; j < cv.dim()-1; j++ {
			for _, sign := range []float64{1, -1} {
				w[j] = sign
				n, _, err := cv.countTargets(w, cv.train[f], cv.cfg.TrainFDR, true)
				if err != nil {
					return err
				}
				if n > bestCount {
					bestCount = n
					cv.w[f] = append([]float64(nil), w...)
				}
			}
			w[j] = 0
		}
		cv.log.Debug("initial direction",
			zap.Int("fold", f),
			zap.Int("positives", bestCount))
	}
	return nil
}

func (cv *crossValidation) costCandidates() (cpos, cfrac []float64) {
	cpos = cposCandidates
	if cv.cfg.Cpos > 0 {
		cpos = []float64{cv.cfg.Cpos}
	}
	cfrac = cfracCandidates
	if cv.cfg.Cpos > 0 && cv.cfg.Cneg > 0 {
		cfrac = []float64{cv.cfg.Cneg / cv.cfg.Cpos}
	}
	return cpos, cfrac
}

// step trains new weights for every fold. The positive examples are the
// targets below the training FDR with the current weights, the negative
// examples are all decoys. It returns the estimated number of positives.
func (cv *crossValidation) step(iter int) (int, error) {
	cposList, cfracList := cv.costCandidates()
	total := 0
	for f := range cv.w {
		rows := cv.train[f]
		_, q, err := cv.countTargets(cv.w[f], rows, cv.cfg.TrainFDR, true)
		if err != nil {
			return 0, err
		}
		set, err := svm.NewTrainingSet(cv.dim() - 1)
		if err != nil {
			return 0, err
		}
		for k, i := range rows {
			switch {
			case cv.decoy[i]:
				err = set.Add(cv.x[i], -1)
			case q[k] <= cv.cfg.TrainFDR:
				err = set.Add(cv.x[i], 1)
			}
			if err != nil {
				return 0, err
			}
		}
		if set.Positives == 0 || set.Negatives == 0 {
			cv.log.Warn("no training examples of one class, keeping weights",
				zap.Int("fold", f),
				zap.Int("positives", set.Positives),
				zap.Int("negatives", set.Negatives))
			continue
		}

		var best *svm.Model
		bestFound := -1
		info := iterationInfo{Iteration: iter, Fold: f,
			Positives: set.Positives, Negatives: set.Negatives}
		for _, cpos := range cposList {
			for _, cfrac := range cfracList {
				hp := cv.hp
				hp.Cpos = cpos
				hp.Cneg = cpos * cfrac
				model, err := svm.Train(set, hp, cv.log)
				if err != nil {
					return 0, err
				}
				found, _, err := cv.countTargets(model.W, rows, cv.cfg.TrainFDR, true)
				if err != nil {
					return 0, err
				}
				if found > bestFound {
					best = model
					bestFound = found
					info.Cpos, info.Cneg = hp.Cpos, hp.Cneg
				}
			}
		}
		cv.w[f] = best.W
		info.Status = best.Status.String()
		info.SVMIterations = best.Iterations
		info.Found = bestFound
		cv.info = append(cv.info, info)
		total += bestFound
	}
	// Every PSM is in the training set of Folds-1 folds
	return total / (cv.cfg.Folds - 1), nil
}

func (cv *crossValidation) run(initDir []float64) error {
	err := cv.initialDirection(initDir)
	if err != nil {
		return err
	}
	for i := 0; i < cv.cfg.MaxIter; i++ {
		found, err := cv.step(i + 1)
		if err != nil {
			return err
		}
		cv.log.Info("training iteration",
			zap.Int("iteration", i+1),
			zap.Int("estimatedPositives", found),
			zap.Float64("fdr", cv.cfg.TrainFDR))
	}
	return nil
}

// testScores scores every PSM with the weights of its own fold. The
// scores of each fold are shifted and scaled so that the score at the test
// FDR threshold becomes 0 and the median decoy score -1, which makes the
// folds comparable.
func (cv *crossValidation) testScores() ([]float64, int, error) {
	out := make([]float64, len(cv.x))
	found := 0
	for f, rows := range cv.test {
		if len(rows) == 0 {
			continue
		}
		s := cv.score(cv.w[f], rows)
		q, err := cv.qValues(rows, s, false)
		if err != nil {
			return nil, 0, err
		}
		cutoff := math.Inf(1)
		var decoys []float64
		for k, i := range rows {
			if cv.decoy[i] {
				decoys = append(decoys, s[k])
			} else if q[k] <= cv.cfg.TestFDR {
				found++
				cutoff = math.Min(cutoff, s[k])
			}
		}
		if math.IsInf(cutoff, 1) {
			cutoff = maxOf(s)
		}
		median := cutoff - 1
		if len(decoys) > 0 {
			sort.Float64s(decoys)
			median = stat.Quantile(0.5, stat.Empirical, decoys, nil)
		}
		scale := cutoff - median
		if !(scale > 0) {
			scale = 1
		}
		for k, i := range rows {
			out[i] = (s[k] - cutoff) / scale
		}
	}
	cv.log.Info("cross validation done",
		zap.Int("testPositives", found),
		zap.Float64("fdr", cv.cfg.TestFDR))
	return out, found, nil
}

func maxOf(s []float64) float64 {
	m := math.Inf(-1)
	for _, v := range s {
		m = math.Max(m, v)
	}
	return m
}
