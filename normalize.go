// Copyright 2018 Rob Marissen.
// SPDX-License-Identifier: MIT

package main

import (
	"gonum.org/v1/gonum/stat"
)

// stdvNormalizer centres each feature on its mean and scales it to unit
// standard deviation. Constant features are only centred.
type stdvNormalizer struct {
	avg  []float64
	stdv []float64
}

func newStdvNormalizer(rows [][]float64, numFeatures int) stdvNormalizer {
	n := stdvNormalizer{
		avg:  make([]float64, numFeatures),
		stdv: make([]float64, numFeatures),
	}
	col := make([]float64, len(rows))
	for j := 0; j < numFeatures; j++ {
		for i, r := range rows {
			col[i] = r[j]
		}
		n.avg[j], n.stdv[j] = stat.PopMeanStdDev(col, nil)
		if !(n.stdv[j] > 0) {
			n.stdv[j] = 1
		}
	}
	return n
}

// normalize returns normalized copies of the rows
func (n stdvNormalizer) normalize(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		o := make([]float64, len(r))
		for j, v := range r {
			o[j] = (v - n.avg[j]) / n.stdv[j]
		}
		out[i] = o
	}
	return out
}

// rawWeights converts weights (bias last) for normalized features into
// weights for the raw features
func (n stdvNormalizer) rawWeights(w []float64) []float64 {
	out := make([]float64, len(w))
	last := len(w) - 1
	bias := w[last]
	for j := 0; j < last; j++ {
		out[j] = w[j] / n.stdv[j]
		bias -= n.avg[j] * w[j] / n.stdv[j]
	}
	out[last] = bias
	return out
}

// normalizedWeights is the inverse of rawWeights
func (n stdvNormalizer) normalizedWeights(w []float64) []float64 {
	out := make([]float64, len(w))
	last := len(w) - 1
	bias := w[last]
	for j := 0; j < last; j++ {
		out[j] = w[j] * n.stdv[j]
		bias += n.avg[j] * w[j]
	}
	out[last] = bias
	return out
}
