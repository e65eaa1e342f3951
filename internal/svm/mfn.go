package svm

import (
	"math"
	"sort"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/524D/mzrescore/internal/linalg"
)

// trainer owns the weights, the output cache and all scratch buffers for
// the duration of one training run
type trainer struct {
	set *TrainingSet
	hp  Hyperparameters
	log *zap.Logger

	w    []float64 // current weights
	o    []float64 // w'x_i for all examples
	wBar []float64 // Newton candidate
	oBar []float64

	// Active examples are stored at the front, satisfied ones from the back
	active  []int
	nActive int

	// CGLS scratch
	z, q []float64
	r, p []float64

	breaks []breakpoint
}

// Train minimises
//
//	0.5*lambda*w'w + 0.5*sum_i C[i]*max(0, 1 - Y[i]*w'x_i)^2
//
// starting from w = 0. Costs are taken from hp.Cpos and hp.Cneg.
// Hitting the iteration cap is not an error: the best iterate is returned
// and Model.Converged reports false.
func Train(set *TrainingSet, hp Hyperparameters, logger *zap.Logger) (*Model, error) {
	return TrainFrom(set, hp, nil, logger)
}

// TrainFrom is Train with a warm start. w0 may be nil.
func TrainFrom(set *TrainingSet, hp Hyperparameters, w0 []float64, logger *zap.Logger) (*Model, error) {
	if err := hp.Validate(); err != nil {
		return nil, err
	}
	if set == nil || set.Len() == 0 {
		return nil, ErrEmptyTrainingSet
	}
	m, n := set.Len(), set.Dim()
	if len(set.C) != m {
		return nil, errors.Wrapf(ErrDimensionMismatch, "%d costs for %d examples", len(set.C), m)
	}
	if w0 != nil && len(w0) != n {
		return nil, errors.Wrapf(ErrDimensionMismatch, "initial weights have length %d, want %d", len(w0), n)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	set.SetCost(hp.Cpos, hp.Cneg)

	t := &trainer{
		set:    set,
		hp:     hp,
		log:    logger,
		w:      make([]float64, n),
		o:      make([]float64, m),
		wBar:   make([]float64, n),
		oBar:   make([]float64, m),
		active: make([]int, m),
		z:      make([]float64, m),
		q:      make([]float64, m),
		r:      make([]float64, n),
		p:      make([]float64, n),
		breaks: make([]breakpoint, 0, m),
	}
	if w0 != nil {
		copy(t.w, w0)
		set.X.MulVec(t.w, t.o)
	}
	model := t.run()
	if !model.Converged() {
		logger.Warn("L2-SVM-MFN did not converge",
			zap.Int("iterations", model.Iterations),
			zap.Float64("epsilon", hp.Epsilon),
			zap.Float64("cgResidual", model.Residual),
			zap.Float64("relativeChange", model.RelativeChange),
			zap.Float64("objective", model.Objective[len(model.Objective)-1]))
	}
	return model, nil
}

// updateActive recomputes F for the current weights and outputs, and
// rebuilds the active set
func (t *trainer) updateActive() float64 {
	set := t.set
	m := set.Len()
	f := 0.5 * t.hp.Lambda * linalg.Norm(t.w)
	t.nActive = 0
	inactive := m - 1
	for i := 0; i < m; i++ {
		diff := 1 - set.Y[i]*t.o[i]
		if diff > 0 {
			t.active[t.nActive] = i
			t.nActive++
			f += 0.5 * set.C[i] * diff * diff
		} else {
			t.active[inactive] = i
			inactive--
		}
	}
	return f
}

// optimal checks the primal and dual conditions on the candidate outputs
func (t *trainer) optimal(epsilon float64) bool {
	set := t.set
	for k, i := range t.active {
		yo := set.Y[i] * t.oBar[i]
		if k < t.nActive {
			if yo > 1+epsilon {
				return false
			}
		} else if yo < 1-epsilon {
			return false
		}
	}
	return true
}

func (t *trainer) run() *Model {
	set := t.set
	hp := t.hp
	epsilon := hp.BigEpsilon
	cgIterMax := hp.SmallCGIterMax
	loose := true

	f := t.updateActive()
	model := &Model{Objective: []float64{f}}

	for model.Iterations < hp.MFNIterMax {
		model.Iterations++
		copy(t.wBar, t.w)
		copy(t.oBar, t.o)
		opt, cgIter, residual := t.cgls(cgIterMax, epsilon, t.wBar, t.oBar)
		model.Residual = residual
		// CGLS only keeps the active outputs current
		inactive := t.active[t.nActive:]
		set.X.MulVecRows(inactive, t.wBar, t.q[:len(inactive)])
		for j, i := range inactive {
			t.oBar[i] = t.q[j]
		}
		cgIterMax = hp.CGIterMax

		t.log.Debug("L2-SVM-MFN iteration",
			zap.Int("iteration", model.Iterations),
			zap.Int("active", t.nActive),
			zap.Int("cgIterations", cgIter),
			zap.Float64("objective", f))

		if opt && t.optimal(epsilon) {
			if loose {
				// Loose pass done, continue with the real tolerance
				loose = false
				epsilon = hp.Epsilon
				continue
			}
			copy(t.w, t.wBar)
			copy(t.o, t.oBar)
			f = t.updateActive()
			model.Objective = append(model.Objective, f)
			model.Status = Optimal
			break
		}

		delta := t.lineSearch()
		fOld := f
		for i := range t.w {
			t.w[i] += delta * (t.wBar[i] - t.w[i])
		}
		for i := range t.o {
			t.o[i] += delta * (t.oBar[i] - t.o[i])
		}
		f = t.updateActive()
		model.Objective = append(model.Objective, f)
		if fOld != 0 {
			model.RelativeChange = math.Abs(f-fOld) / math.Abs(fOld)
		}
		if math.Abs(f-fOld) < hp.RelativeStopEps*math.Abs(fOld) {
			model.Status = RelativeStop
			break
		}
	}
	model.W = t.w
	return model
}

// breakpoint is the step length at which example index crosses the margin
// along the segment from w to wBar. s is -1 when the example leaves the
// active set there and +1 when it enters it.
type breakpoint struct {
	delta float64
	index int
	s     float64
}

// lineSearch returns the exact minimiser t of F(w + t*(wBar - w)).
// The derivative of F along the segment is piecewise linear. L and R are
// its values at t=0 and t=1 for the current piece; passing a breakpoint
// adds or removes the contribution of one example.
func (t *trainer) lineSearch() float64 {
	set := t.set
	lambda := t.hp.Lambda
	w, wBar, o, oBar := t.w, t.wBar, t.o, t.oBar

	omegaL, omegaR := 0.0, 0.0
	for i := range w {
		diff := wBar[i] - w[i]
		omegaL += w[i] * diff
		omegaR += wBar[i] * diff
	}
	L := lambda * omegaL
	R := lambda * omegaR

	t.breaks = t.breaks[:0]
	for i := range o {
		y := set.Y[i]
		yo := y * o[i]
		if yo < 1 {
			diff := set.C[i] * (oBar[i] - o[i])
			L += (o[i] - y) * diff
			R += (oBar[i] - y) * diff
		}
		diff := y * (oBar[i] - o[i])
		if yo < 1 {
			if diff > 0 {
				t.breaks = append(t.breaks, breakpoint{delta: (1 - yo) / diff, index: i, s: -1})
			}
		} else if diff < 0 {
			t.breaks = append(t.breaks, breakpoint{delta: (1 - yo) / diff, index: i, s: 1})
		}
	}
	// Stable, so that ties are resolved in index order
	sort.SliceStable(t.breaks, func(a, b int) bool { return t.breaks[a].delta < t.breaks[b].delta })

	for _, b := range t.breaks {
		if L+b.delta*(R-L) >= 0 {
			break
		}
		i := b.index
		diff := b.s * set.C[i] * (oBar[i] - o[i])
		L += diff * (o[i] - set.Y[i])
		R += diff * (oBar[i] - set.Y[i])
	}
	if R-L <= 0 {
		// wBar == w, nothing to gain
		return 0
	}
	return -L / (R - L)
}
