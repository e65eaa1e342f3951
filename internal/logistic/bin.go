package logistic

import (
	"math"

	"github.com/pkg/errors"
)

// DefaultIntervals is the default number of bins for BinData
const DefaultIntervals = 500

// BinData groups ascending scores into about intervals equal count bins.
// Each bin reports its median score, its number of decoys and its size.
// Neighbouring bins with the same median are merged, so the medians are
// strictly increasing.
func BinData(scores []float64, isDecoy []bool, intervals int) (medians []float64, negatives, sizes []int, err error) {
	n := len(scores)
	if len(isDecoy) != n {
		return nil, nil, nil, errors.Wrapf(ErrDimensionMismatch, "%d scores, %d labels", n, len(isDecoy))
	}
	if intervals <= 0 {
		intervals = DefaultIntervals
	}
	binSize := math.Max(float64(n)/float64(intervals), 1)
	pastIx := 0
	for binNo := 1; pastIx < n; binNo++ {
		firstIx := pastIx
		pastIx = int(float64(binNo) * binSize)
		if pastIx > n {
			pastIx = n
		}
		inBin := pastIx - firstIx
		if inBin <= 0 {
			continue
		}
		neg := 0
		for _, d := range isDecoy[firstIx:pastIx] {
			if d {
				neg++
			}
		}
		median := scores[firstIx+inBin/2]
		if last := len(medians) - 1; last >= 0 && medians[last] == median {
			sizes[last] += inBin
			negatives[last] += neg
		} else {
			medians = append(medians, median)
			sizes = append(sizes, inBin)
			negatives = append(negatives, neg)
		}
	}
	return medians, negatives, sizes, nil
}
