package svm

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/optimize"
)

func separableSet(t *testing.T) *TrainingSet {
	t.Helper()
	set, err := NewTrainingSet(1)
	require.NoError(t, err)
	require.NoError(t, set.Add([]float64{1}, 1))
	require.NoError(t, set.Add([]float64{2}, 1))
	require.NoError(t, set.Add([]float64{-1}, -1))
	require.NoError(t, set.Add([]float64{-2}, -1))
	return set
}

// blobs returns two overlapping gaussian clouds in 3 dimensions
func blobs(t *testing.T, seed int64, m int) *TrainingSet {
	t.Helper()
	rnd := rand.New(rand.NewSource(seed))
	set, err := NewTrainingSet(3)
	require.NoError(t, err)
	for i := 0; i < m; i++ {
		y := 1
		if i%2 == 1 {
			y = -1
		}
		fy := float64(y)
		x := []float64{rnd.NormFloat64() + 0.8*fy, rnd.NormFloat64() - 0.5*fy, rnd.NormFloat64()}
		require.NoError(t, set.Add(x, y))
	}
	return set
}

// objective evaluates the squared hinge objective independently of the trainer
func objective(set *TrainingSet, lambda float64, w []float64) float64 {
	f := 0.0
	for _, wi := range w {
		f += wi * wi
	}
	f *= 0.5 * lambda
	for i := 0; i < set.Len(); i++ {
		o := 0.0
		for k, x := range set.X.Row(i) {
			o += w[k] * x
		}
		if d := 1 - set.Y[i]*o; d > 0 {
			f += 0.5 * set.C[i] * d * d
		}
	}
	return f
}

func gradient(set *TrainingSet, lambda float64, w, grad []float64) {
	for k := range grad {
		grad[k] = lambda * w[k]
	}
	for i := 0; i < set.Len(); i++ {
		row := set.X.Row(i)
		o := 0.0
		for k, x := range row {
			o += w[k] * x
		}
		if d := 1 - set.Y[i]*o; d > 0 {
			for k, x := range row {
				grad[k] -= set.C[i] * d * set.Y[i] * x
			}
		}
	}
}

func TestSeparableConvergesQuickly(t *testing.T) {
	set := separableSet(t)
	hp := DefaultHyperparameters()
	hp.Lambda = 1e-6

	model, err := Train(set, hp, nil)
	require.NoError(t, err)
	assert.True(t, model.Converged())
	assert.Equal(t, Optimal, model.Status)
	assert.LessOrEqual(t, model.Iterations, 5)
	assert.InDelta(t, 1.0, model.W[0], 1e-5)
	assert.InDelta(t, 0.0, model.W[1], 1e-9)

	// Every point is on or outside the margin
	scores := model.ScoreAll(set.X)
	for i, s := range scores {
		assert.GreaterOrEqual(t, set.Y[i]*s, 1-1e-5, "example %d", i)
	}
}

func TestRegularisedSeparable(t *testing.T) {
	set := separableSet(t)
	model, err := Train(set, DefaultHyperparameters(), nil)
	require.NoError(t, err)
	assert.Equal(t, Optimal, model.Status)
	// With lambda=1 the margin points are pulled inside: w = 2/3
	assert.InDelta(t, 2.0/3.0, model.W[0], 1e-9)
	assert.InDelta(t, 1.0/3.0, model.Objective[len(model.Objective)-1], 1e-9)
}

func TestObjectiveIsMonotone(t *testing.T) {
	for seed := int64(1); seed <= 10; seed++ {
		set := blobs(t, seed, 200)
		hp := DefaultHyperparameters()
		hp.Cneg = 2
		model, err := Train(set, hp, nil)
		require.NoError(t, err)
		require.True(t, model.Converged(), "seed %d", seed)
		for k := 1; k < len(model.Objective); k++ {
			prev, cur := model.Objective[k-1], model.Objective[k]
			assert.LessOrEqual(t, cur, prev*(1+1e-9)+1e-12,
				"seed %d: objective increased at step %d", seed, k)
		}
		// The reported trace agrees with a direct evaluation
		last := model.Objective[len(model.Objective)-1]
		assert.InDelta(t, objective(set, hp.Lambda, model.W), last, 1e-9*math.Max(1, last))
	}
}

func TestMatchesReferenceMinimiser(t *testing.T) {
	set := blobs(t, 42, 300)
	hp := DefaultHyperparameters()
	hp.Lambda = 0.5
	model, err := Train(set, hp, nil)
	require.NoError(t, err)
	require.True(t, model.Converged())

	grad := make([]float64, set.Dim())
	gradient(set, hp.Lambda, model.W, grad)
	for k, g := range grad {
		assert.InDelta(t, 0, g, 1e-4, "gradient component %d", k)
	}

	problem := optimize.Problem{
		Func: func(w []float64) float64 { return objective(set, hp.Lambda, w) },
		Grad: func(grad, w []float64) { gradient(set, hp.Lambda, w, grad) },
	}
	res, _ := optimize.Minimize(problem, make([]float64, set.Dim()), nil, &optimize.BFGS{})
	require.NotNil(t, res)
	f := objective(set, hp.Lambda, model.W)
	assert.LessOrEqual(t, f, res.F+1e-6)
	for k := range model.W {
		assert.InDelta(t, res.X[k], model.W[k], 1e-3)
	}
}

func TestIterationCap(t *testing.T) {
	set := blobs(t, 3, 200)
	hp := DefaultHyperparameters()
	hp.MFNIterMax = 1
	core, logs := observer.New(zapcore.WarnLevel)
	model, err := Train(set, hp, zap.New(core))
	require.NoError(t, err)
	assert.False(t, model.Converged())
	assert.Equal(t, MaxIterations, model.Status)
	assert.Equal(t, 1, model.Iterations)
	// The best iterate so far is returned, better than w = 0
	require.Len(t, model.Objective, 2)
	assert.Less(t, model.Objective[1], model.Objective[0])

	// The warning reports the tolerances reached, not only the configured one
	change := math.Abs(model.Objective[1]-model.Objective[0]) / model.Objective[0]
	assert.InDelta(t, change, model.RelativeChange, 1e-12)
	assert.False(t, math.IsNaN(model.Residual))
	assert.GreaterOrEqual(t, model.Residual, 0.0)
	entries := logs.FilterMessage("L2-SVM-MFN did not converge").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, model.RelativeChange, fields["relativeChange"])
	assert.Equal(t, model.Residual, fields["cgResidual"])
	assert.Equal(t, hp.Epsilon, fields["epsilon"])
}

func TestWarmStartOutsideMargin(t *testing.T) {
	// Starting with every example satisfied leaves an empty active set
	set := separableSet(t)
	model, err := TrainFrom(set, DefaultHyperparameters(), []float64{10, 0}, nil)
	require.NoError(t, err)
	assert.True(t, model.Converged())
	assert.InDelta(t, 2.0/3.0, model.W[0], 1e-9)
}

func TestValidation(t *testing.T) {
	set, err := NewTrainingSet(2)
	require.NoError(t, err)

	_, err = Train(set, DefaultHyperparameters(), nil)
	assert.ErrorIs(t, err, ErrEmptyTrainingSet)

	assert.ErrorIs(t, set.Add([]float64{1}, 1), ErrDimensionMismatch)
	assert.ErrorIs(t, set.Add([]float64{1, 2}, 0), ErrInvalidLabel)
	require.NoError(t, set.Add([]float64{1, 2}, -1))
	assert.Equal(t, 1, set.Negatives)
	assert.Equal(t, 0, set.Positives)

	hp := DefaultHyperparameters()
	hp.Lambda = 0
	_, err = Train(set, hp, nil)
	assert.ErrorIs(t, err, ErrInvalidHyperparameters)

	_, err = TrainFrom(set, DefaultHyperparameters(), []float64{1}, nil)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestSetCost(t *testing.T) {
	set := separableSet(t)
	set.SetCost(3, 0.5)
	assert.Equal(t, []float64{3, 3, 0.5, 0.5}, set.C)
}

func TestScore(t *testing.T) {
	w := []float64{0.5, -1, 2}
	assert.Equal(t, 0.5*4-1*1+2, Score(w, []float64{4, 1}))
}

func TestStatusString(t *testing.T) {
	assert.Equal(t, "optimal", Optimal.String())
	assert.Equal(t, "relative-stop", RelativeStop.String())
	assert.Equal(t, "max-iterations", MaxIterations.String())
}
