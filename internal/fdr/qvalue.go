package fdr

import (
	"math"

	"github.com/pkg/errors"
)

// mixMaxCounts scans a best first list from the worst element upwards and
// records, once per decoy, the number of targets and of decoys scoring at
// most as well as that decoy. Tied elements count with their group.
func mixMaxCounts(list CombinedList) (hw, hz []float64) {
	cntW, cntZ, queue := 0, 0, 0
	for i := len(list) - 1; i >= 0; i-- {
		if list[i].IsDecoy {
			cntZ++
			queue++
		} else {
			cntW++
		}
		if i > 0 && list[i-1].Score == list[i].Score {
			continue
		}
		for ; queue > 0; queue-- {
			hw = append(hw, float64(cntW))
			hz = append(hz, float64(cntZ))
		}
	}
	return hw, hz
}

// QValues returns a q-value for every element of a best first list, the
// smallest FDR at which the element is accepted. Elements with equal
// scores share one q-value.
//
// In ModeMixMax the decoy count is corrected for the fraction of null
// targets pi0; with pi0 = 1 the FDR is decoys/targets. ModeTDC ignores
// pi0 and uses (decoys+1)/targets.
func QValues(list CombinedList, pi0 float64, cfg Config) ([]float64, error) {
	n := len(list)
	if n == 0 {
		return nil, ErrEmptyList
	}
	if !(pi0 > 0 && pi0 <= 1) {
		return nil, errors.Wrapf(ErrInvalidPi0, "got %g", pi0)
	}
	if cfg.Mode != ModeMixMax && cfg.Mode != ModeTDC {
		return nil, errors.Wrapf(ErrUnknownMode, "%d", int(cfg.Mode))
	}

	mixMax := cfg.Mode == ModeMixMax
	var hw, hz []float64
	if mixMax && pi0 < 1 {
		hw, hz = mixMaxCounts(list)
	}
	plusOne := 1.0
	if cfg.SkipDecoysPlusOne {
		plusOne = 0
	}

	q := make([]float64, n)
	nz, nw, decoyQueue := 0, 0, 0
	ef1 := 0.0
	groupStart := 0
	for i, psm := range list {
		if psm.IsDecoy {
			nz++
			decoyQueue++
		} else {
			nw++
		}
		if i+1 < n && list[i+1].Score == psm.Score {
			continue
		}
		var fdr float64
		if mixMax {
			if pi0 < 1 && decoyQueue > 0 {
				// Estimated fraction of the null targets that score below
				// the current decoys
				j := len(hw) - nz
				cntW, cntZ := hw[j], hz[j]
				if cntZ > 0 {
					est := (cntW - pi0*cntZ) / ((1 - pi0) * cntZ)
					est = math.Max(math.Min(est, 1), 0)
					ef1 += float64(decoyQueue) * est * (1 - pi0)
				}
			}
			fdr = (float64(nz)*pi0 + ef1) / math.Max(1, float64(nw))
		} else {
			fdr = (float64(nz) + plusOne) / math.Max(1, float64(nw))
		}
		fdr = math.Min(fdr, 1)
		for k := groupStart; k <= i; k++ {
			q[k] = fdr
		}
		groupStart = i + 1
		decoyQueue = 0
	}
	for i := n - 2; i >= 0; i-- {
		q[i] = math.Min(q[i], q[i+1])
	}
	return q, nil
}

// TargetQValues returns the entries of q that belong to targets, in list
// order
func TargetQValues(list CombinedList, q []float64) []float64 {
	res := make([]float64, 0, len(list))
	for i, psm := range list {
		if !psm.IsDecoy && i < len(q) {
			res = append(res, q[i])
		}
	}
	return res
}
