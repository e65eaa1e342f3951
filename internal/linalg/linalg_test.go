package linalg

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVectorKernels(t *testing.T) {
	x := []float64{1, 2, 3}
	y := []float64{4, 5, 6}

	assert.Equal(t, 14.0, Norm(x))
	assert.Equal(t, 32.0, Dot(x, y))

	Axpy(2, x, y)
	assert.Equal(t, []float64{6, 9, 12}, y)

	Scale(0.5, y)
	assert.Equal(t, []float64{3, 4.5, 6}, y)

	Zero(y)
	assert.Equal(t, []float64{0, 0, 0}, y)
}

func TestLengthMismatchPanics(t *testing.T) {
	assert.Panics(t, func() { Dot([]float64{1, 2}, []float64{1}) })
}

func TestMatrixProducts(t *testing.T) {
	m, err := NewMatrixFromRows([][]float64{
		{1, 0, 1},
		{0, 2, 1},
		{3, 1, 1},
	})
	require.NoError(t, err)
	r, c := m.Dims()
	require.Equal(t, 3, r)
	require.Equal(t, 3, c)

	w := []float64{1, -1, 0.5}
	dst := make([]float64, 3)
	m.MulVec(w, dst)
	assert.Equal(t, []float64{1.5, -1.5, 2.5}, dst)

	sub := make([]float64, 2)
	m.MulVecRows([]int{2, 0}, w, sub)
	assert.Equal(t, []float64{2.5, 1.5}, sub)

	tr := make([]float64, 3)
	m.MulTransVecRows([]int{0, 2}, []float64{2, 1}, tr)
	assert.Equal(t, []float64{5, 1, 3}, tr)
}

func TestMatrixShape(t *testing.T) {
	_, err := NewMatrixFromRows([][]float64{{1, 2}, {3}})
	assert.ErrorIs(t, err, ErrShape)

	m, err := NewMatrix(0, 2)
	require.NoError(t, err)
	require.NoError(t, m.AppendRow([]float64{1, 2}))
	assert.ErrorIs(t, m.AppendRow([]float64{1}), ErrShape)
	assert.Equal(t, 2.0, m.At(0, 1))
	m.Set(0, 1, 7)
	assert.Equal(t, []float64{1, 7}, m.Row(0))
}
