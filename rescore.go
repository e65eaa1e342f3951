// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/524D/mzrescore/internal/fdr"
	"github.com/524D/mzrescore/internal/isotonic"
)

// calibration holds q-values and PEPs of the PSMs in order, best first
type calibration struct {
	order []int // PSM indices
	pi0   float64
	q     []float64
	pep   []float64
}

func rescore(par params, set settings, logger *zap.Logger) error {
	data, err := readInput(*par.inputFilename, logger)
	if err != nil {
		return err
	}
	numFeatures := len(data.featureNames)
	rows := make([][]float64, len(data.psms))
	decoy := make([]bool, len(data.psms))
	specIDs := make([]string, len(data.psms))
	for i := range data.psms {
		p := &data.psms[i]
		if len(p.features) != numFeatures {
			return errors.Errorf("PSM %q has %d features, expected %d", p.id, len(p.features), numFeatures)
		}
		rows[i] = p.features
		decoy[i] = p.decoy
		specIDs[i] = p.specID
	}

	norm := newStdvNormalizer(rows, numFeatures)
	x := norm.normalize(rows)
	var initDir []float64
	if data.initDir != nil {
		initDir = norm.normalizedWeights(append(append([]float64(nil), data.initDir...), 0))
	}

	fold, err := assignFolds(specIDs, set.Train.Folds, set.newRand())
	if err != nil {
		return err
	}
	cv := newCrossValidation(x, decoy, fold, set.Train, set.SVM, logger)
	err = cv.run(initDir)
	if err != nil {
		return err
	}
	scores, _, err := cv.testScores()
	if err != nil {
		return err
	}
	debugLogPSMs(data, x, scores, fold)

	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	if set.TDC {
		idx = competition(specIDs, scores)
		logger.Info("target-decoy competition",
			zap.Int("psms", len(scores)),
			zap.Int("remaining", len(idx)))
	}
	cal, err := calibrate(idx, scores, decoy, set, logger)
	if err != nil {
		return err
	}

	report := newReport(par, set, data, norm, cv, scores, cal)
	logger.Info("rescoring done",
		zap.Float64("pi0", cal.pi0),
		zap.Int("targetsBelowTestFDR", report.TargetsBelowTestFDR),
		zap.Float64("testFDR", set.Train.TestFDR))
	err = writeReport(report, *par.outFilename)
	if err != nil {
		return err
	}
	if *par.resultsFilename != "" {
		err = writeResults(report.PSMs, *par.resultsFilename)
		if err != nil {
			return err
		}
	}
	return nil
}

// calibrate computes pi0, q-values and PEPs for the PSMs in idx
func calibrate(idx []int, scores []float64, decoy []bool, set settings, logger *zap.Logger) (calibration, error) {
	cal := calibration{order: append([]int(nil), idx...), pi0: 1}
	sort.SliceStable(cal.order, func(a, b int) bool {
		return scores[cal.order[a]] > scores[cal.order[b]]
	})
	list := make(fdr.CombinedList, len(cal.order))
	for k, i := range cal.order {
		list[k] = fdr.ScoredPSM{Score: scores[i], IsDecoy: decoy[i]}
	}

	cfg := set.FDR
	cfg.Logger = logger
	cfg.Rand = set.newRand()
	var err error
	if cfg.Mode == fdr.ModeMixMax {
		p, err := fdr.PValues(list)
		if err != nil {
			return cal, err
		}
		cal.pi0, err = fdr.EstimatePi0(p, cfg)
		if err != nil {
			return cal, err
		}
		logger.Info("estimated pi0", zap.Float64("pi0", cal.pi0))
	}
	cal.q, err = fdr.QValues(list, cal.pi0, cfg)
	if err != nil {
		return cal, err
	}

	switch set.PEP {
	case pepIsotonic:
		cal.pep, err = fdr.PEPFromTargetDecoy(list, isotonic.PAVA{})
	case pepIspline:
		cal.pep, err = fdr.PEPFromTargetDecoy(list, isotonic.DefaultIspline())
	case pepLogistic:
		cal.pep, err = fdr.PEPFromLogistic(list, cal.pi0, cfg)
	case pepQValue:
		cal.pep = pepFromTargetQValues(list, cal.q)
	default:
		err = errors.Errorf("unknown PEP method %q", set.PEP)
	}
	return cal, err
}

// pepFromTargetQValues derives the PEP of the targets from their
// q-values; decoys get PEP 1
func pepFromTargetQValues(list fdr.CombinedList, q []float64) []float64 {
	tq := fdr.TargetQValues(list, q)
	tpep := fdr.PEPFromQValues(tq, nil, nil)
	pep := make([]float64, len(list))
	k := 0
	for i, psm := range list {
		if psm.IsDecoy {
			pep[i] = 1
			continue
		}
		pep[i] = tpep[k]
		k++
	}
	return pep
}
