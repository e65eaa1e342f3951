package logistic

import "math"

type transformKind int

const (
	identityTransform transformKind = iota
	logitTransform
	logTransform
)

// transform maps scores to the axis the spline is fitted on. lo and hi
// move scores off 0 and 1 before taking logarithms.
type transform struct {
	kind   transformKind
	lo, hi float64
}

// chooseTransform uses the logit for probability-like scores and the log
// for other non-negative scores
func chooseTransform(xs []float64) transform {
	minV, maxV := math.Inf(1), math.Inf(-1)
	for _, v := range xs {
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	var t transform
	switch {
	case minV >= 0 && maxV <= 1:
		t.kind = logitTransform
		if minV <= 0 {
			t.lo = 1e-20
		}
		if maxV >= 1 {
			t.hi = 1e-10
		}
	case minV >= 0:
		t.kind = logTransform
		if minV <= 0 {
			t.lo = 1e-20
		}
	}
	return t
}

func (t transform) apply(v float64) float64 {
	switch t.kind {
	case logitTransform:
		v = math.Min(math.Max(v, 0), 1)
		return math.Log((v + t.lo) / (1 - v + t.hi))
	case logTransform:
		return math.Log(math.Max(v, 0) + t.lo)
	}
	return v
}
