package fdr

import (
	"math"
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/524D/mzrescore/internal/isotonic"
)

var approx = cmpopts.EquateApprox(0, 1e-12)

func threeTargetsTwoDecoys() CombinedList {
	return CombinedList{
		{Score: 10}, {Score: 9}, {Score: 8, IsDecoy: true}, {Score: 7}, {Score: 6, IsDecoy: true},
	}
}

// synthetic returns nTargets targets, a fraction correct of them scoring
// higher, and as many decoys as targets, sorted best first
func synthetic(seed int64, nTargets int, correct float64) CombinedList {
	rnd := rand.New(rand.NewSource(seed))
	var l CombinedList
	for i := 0; i < nTargets; i++ {
		s := rnd.NormFloat64()
		if rnd.Float64() < correct {
			s += 3
		}
		l = append(l, ScoredPSM{Score: s})
		l = append(l, ScoredPSM{Score: rnd.NormFloat64(), IsDecoy: true})
	}
	l.SortBestFirst(false)
	return l
}

func assertNonDecreasing(t *testing.T, v []float64) {
	t.Helper()
	for i := 1; i < len(v); i++ {
		require.LessOrEqual(t, v[i-1], v[i], "position %d", i)
	}
}

func TestSortBestFirst(t *testing.T) {
	l := CombinedList{{Score: 1}, {Score: 3, IsDecoy: true}, {Score: 2}}
	l.SortBestFirst(false)
	assert.Equal(t, CombinedList{{Score: 3, IsDecoy: true}, {Score: 2}, {Score: 1}}, l)
	l.SortBestFirst(true)
	assert.Equal(t, CombinedList{{Score: 1}, {Score: 2}, {Score: 3, IsDecoy: true}}, l)
	targets, decoys := l.Counts()
	assert.Equal(t, 2, targets)
	assert.Equal(t, 1, decoys)
}

func TestQValuesDecoyCounting(t *testing.T) {
	q, err := QValues(threeTargetsTwoDecoys(), 1, DefaultConfig())
	require.NoError(t, err)
	want := []float64{0, 0, 1.0 / 3, 1.0 / 3, 2.0 / 3}
	if diff := cmp.Diff(want, q, approx); diff != "" {
		t.Errorf("QValues mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, []float64{0, 0, 1.0 / 3}, TargetQValues(threeTargetsTwoDecoys(), q))
}

func TestQValuesTDC(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Mode = ModeTDC
	q, err := QValues(threeTargetsTwoDecoys(), 0.3, cfg)
	require.NoError(t, err)
	want := []float64{0.5, 0.5, 2.0 / 3, 2.0 / 3, 1}
	if diff := cmp.Diff(want, q, approx); diff != "" {
		t.Errorf("QValues mismatch (-want +got):\n%s", diff)
	}

	cfg.SkipDecoysPlusOne = true
	q, err = QValues(threeTargetsTwoDecoys(), 0.3, cfg)
	require.NoError(t, err)
	want = []float64{0, 0, 1.0 / 3, 1.0 / 3, 2.0 / 3}
	if diff := cmp.Diff(want, q, approx); diff != "" {
		t.Errorf("QValues mismatch (-want +got):\n%s", diff)
	}
}

func TestQValuesTies(t *testing.T) {
	l := CombinedList{{Score: 5}, {Score: 5, IsDecoy: true}, {Score: 4}}
	q, err := QValues(l, 1, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, 0.5, 0.5}, q)
}

func TestQValuesMixMax(t *testing.T) {
	cfg := DefaultConfig()
	l := CombinedList{{Score: 4}, {Score: 3, IsDecoy: true}, {Score: 2}, {Score: 1, IsDecoy: true}}
	q, err := QValues(l, 0.5, cfg)
	require.NoError(t, err)
	if diff := cmp.Diff([]float64{0, 0.25, 0.25, 0.5}, q, approx); diff != "" {
		t.Errorf("QValues mismatch (-want +got):\n%s", diff)
	}

	// All null targets ranked below the decoy: the correction restores
	// the full decoy count
	l = CombinedList{{Score: 4}, {Score: 3}, {Score: 2, IsDecoy: true}, {Score: 1}}
	q, err = QValues(l, 0.5, cfg)
	require.NoError(t, err)
	if diff := cmp.Diff([]float64{0, 0, 1.0 / 3, 1.0 / 3}, q, approx); diff != "" {
		t.Errorf("QValues mismatch (-want +got):\n%s", diff)
	}
}

func TestQValuesProperties(t *testing.T) {
	l := synthetic(5, 1000, 0.5)
	cfg := DefaultConfig()
	counting, err := QValues(l, 1, cfg)
	require.NoError(t, err)
	mixMax, err := QValues(l, 0.6, cfg)
	require.NoError(t, err)
	require.Len(t, mixMax, len(l))
	assertNonDecreasing(t, counting)
	assertNonDecreasing(t, mixMax)
	for i := range l {
		assert.GreaterOrEqual(t, mixMax[i], 0.0)
		assert.LessOrEqual(t, mixMax[i], counting[i]+1e-12)
		assert.LessOrEqual(t, counting[i], 1.0)
	}
}

func TestQValuesErrors(t *testing.T) {
	_, err := QValues(nil, 1, DefaultConfig())
	assert.ErrorIs(t, err, ErrEmptyList)
	_, err = QValues(threeTargetsTwoDecoys(), 0, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidPi0)
	_, err = QValues(threeTargetsTwoDecoys(), 1.5, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidPi0)
	cfg := DefaultConfig()
	cfg.Mode = Mode(7)
	_, err = QValues(threeTargetsTwoDecoys(), 1, cfg)
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestPValues(t *testing.T) {
	p, err := PValues(threeTargetsTwoDecoys())
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0, 0.5}, p)

	p, err = PValues(CombinedList{{Score: 5, IsDecoy: true}, {Score: 5}})
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, p)

	_, err = PValues(CombinedList{{Score: 1}})
	assert.ErrorIs(t, err, ErrNoDecoys)
	_, err = PValues(nil)
	assert.ErrorIs(t, err, ErrEmptyList)
}

func TestEstimatePi0Uniform(t *testing.T) {
	rnd := rand.New(rand.NewSource(3))
	p := make([]float64, 2000)
	for i := range p {
		p[i] = rnd.Float64()
	}
	sort.Float64s(p)
	pi0, err := EstimatePi0(p, DefaultConfig())
	require.NoError(t, err)
	assert.InDelta(t, 1.0, pi0, 0.1)
	assert.LessOrEqual(t, pi0, 1.0)
}

func TestEstimatePi0Mixture(t *testing.T) {
	rnd := rand.New(rand.NewSource(4))
	p := make([]float64, 3000)
	for i := range p {
		if i%10 < 7 {
			p[i] = rnd.Float64()
		} else {
			p[i] = 0.01 * rnd.Float64()
		}
	}
	// Unsorted input is accepted
	pi0, err := EstimatePi0(p, DefaultConfig())
	require.NoError(t, err)
	assert.InDelta(t, 0.7, pi0, 0.1)

	// The same seed gives the same estimate
	again, err := EstimatePi0(p, DefaultConfig())
	require.NoError(t, err)
	assert.Equal(t, pi0, again)
}

func TestEstimatePi0FromList(t *testing.T) {
	l := synthetic(8, 2000, 0.6)
	p, err := PValues(l)
	require.NoError(t, err)
	assert.True(t, sort.Float64sAreSorted(p))
	pi0, err := EstimatePi0(p, DefaultConfig())
	require.NoError(t, err)
	assert.InDelta(t, 0.4, pi0, 0.1)
}

func TestEstimatePi0Separation(t *testing.T) {
	p := []float64{0, 0, 0, 0}
	_, err := EstimatePi0(p, DefaultConfig())
	assert.ErrorIs(t, err, ErrSeparation)
	assert.Contains(t, err.Error(), "insufficient separation between target and decoy populations")

	cfg := DefaultConfig()
	cfg.NoTerminate = true
	pi0, err := EstimatePi0(p, cfg)
	require.NoError(t, err)
	assert.Equal(t, 1.0, pi0)

	_, err = EstimatePi0(nil, DefaultConfig())
	assert.ErrorIs(t, err, ErrNoPValues)
}

func TestPEPFromTargetDecoy(t *testing.T) {
	pep, err := PEPFromTargetDecoy(threeTargetsTwoDecoys(), nil)
	require.NoError(t, err)
	want := []float64{0.2, 0.2, 1, 1, 1}
	if diff := cmp.Diff(want, pep, cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("PEPFromTargetDecoy mismatch (-want +got):\n%s", diff)
	}

	l := synthetic(9, 1000, 0.5)
	for _, reg := range []isotonic.Regressor{isotonic.PAVA{}, isotonic.DefaultIspline()} {
		pep, err = PEPFromTargetDecoy(l, reg)
		require.NoError(t, err)
		require.Len(t, pep, len(l))
		assertNonDecreasing(t, pep)
		assert.Less(t, pep[0], 0.1)
		assert.Equal(t, 1.0, pep[len(pep)-1])
	}

	_, err = PEPFromTargetDecoy(nil, nil)
	assert.ErrorIs(t, err, ErrEmptyList)
}

func TestPEPFromQValues(t *testing.T) {
	l := synthetic(10, 1000, 0.5)
	q, err := QValues(l, 0.5, DefaultConfig())
	require.NoError(t, err)
	tq := TargetQValues(l, q)
	pep := PEPFromQValues(tq, nil, nil)
	require.Len(t, pep, len(tq))
	assertNonDecreasing(t, pep)
	for _, v := range pep {
		assert.True(t, v > 0 && v < 1)
	}
	assert.Less(t, pep[0], 0.05)

	var scores []float64
	for _, psm := range l {
		if !psm.IsDecoy {
			scores = append(scores, psm.Score)
		}
	}
	pep = PEPFromQValues(tq, scores, isotonic.DefaultIspline())
	require.Len(t, pep, len(tq))
	assertNonDecreasing(t, pep)
}

func TestPEPFromLogistic(t *testing.T) {
	l := synthetic(11, 2000, 0.6)
	pep, err := PEPFromLogistic(l, 0.4, DefaultConfig())
	require.NoError(t, err)
	require.Len(t, pep, len(l))
	for _, v := range pep {
		assert.True(t, v >= 0 && v <= 1)
	}
	assert.Less(t, pep[0], 0.1)
	assert.Greater(t, pep[len(pep)-1], 0.7)

	_, err = PEPFromLogistic(l, 0, DefaultConfig())
	assert.ErrorIs(t, err, ErrInvalidPi0)
	_, err = PEPFromLogistic(nil, 1, DefaultConfig())
	assert.ErrorIs(t, err, ErrEmptyList)
}

func TestPEPFromLogisticNonDecreasing(t *testing.T) {
	rnd := rand.New(rand.NewSource(5))
	for trial := 0; trial < 50; trial++ {
		n := 50 + rnd.Intn(3000)
		l := synthetic(int64(trial), n, 0.1+0.8*rnd.Float64())
		p, err := PValues(l)
		require.NoError(t, err)
		pi0, err := EstimatePi0(p, DefaultConfig())
		require.NoError(t, err)
		pep, err := PEPFromLogistic(l, pi0, DefaultConfig())
		require.NoError(t, err, "trial %d", trial)
		require.Len(t, pep, len(l))
		assertNonDecreasing(t, pep)
	}
}

func TestPEPFromLogisticTooFewBins(t *testing.T) {
	var l CombinedList
	for i := 0; i < 5; i++ {
		l = append(l, ScoredPSM{Score: 5}, ScoredPSM{Score: 5, IsDecoy: true})
	}
	_, err := PEPFromLogistic(l, 1, DefaultConfig())
	assert.ErrorIs(t, err, ErrTooFewBins)

	cfg := DefaultConfig()
	cfg.NoTerminate = true
	pep, err := PEPFromLogistic(l, 1, cfg)
	require.NoError(t, err)
	require.Len(t, pep, len(l))
	for _, v := range pep {
		assert.False(t, math.IsNaN(v))
		assert.True(t, v >= 0 && v <= 1)
	}

	// A single PSM stays a single bin
	_, err = PEPFromLogistic(CombinedList{{Score: 1}}, 1, cfg)
	assert.ErrorIs(t, err, ErrTooFewBins)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("TDC")
	require.NoError(t, err)
	assert.Equal(t, ModeTDC, m)
	m, err = ParseMode("mix-max")
	require.NoError(t, err)
	assert.Equal(t, ModeMixMax, m)
	_, err = ParseMode("bogus")
	assert.ErrorIs(t, err, ErrUnknownMode)
	assert.Equal(t, "tdc", ModeTDC.String())
}
