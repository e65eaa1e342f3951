package linalg

import (
	"errors"

	"gonum.org/v1/gonum/blas"
	"gonum.org/v1/gonum/blas/blas64"
)

var (
	ErrShape = errors.New("linalg: invalid matrix shape")
)

// Matrix is a dense row-major matrix, one row per training example.
type Matrix struct {
	rows, cols int
	data       []float64
}

// NewMatrix allocates a zero rows x cols matrix
func NewMatrix(rows, cols int) (*Matrix, error) {
	if rows < 0 || cols <= 0 {
		return nil, ErrShape
	}
	return &Matrix{rows: rows, cols: cols, data: make([]float64, rows*cols)}, nil
}

// NewMatrixFromRows copies the given rows, which must all have the same length
func NewMatrixFromRows(rows [][]float64) (*Matrix, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, ErrShape
	}
	m, err := NewMatrix(len(rows), len(rows[0]))
	if err != nil {
		return nil, err
	}
	for i, r := range rows {
		if len(r) != m.cols {
			return nil, ErrShape
		}
		copy(m.Row(i), r)
	}
	return m, nil
}

// Dims returns the number of rows and columns
func (m *Matrix) Dims() (int, int) {
	return m.rows, m.cols
}

// Row returns row i as a slice sharing storage with the matrix
func (m *Matrix) Row(i int) []float64 {
	return m.data[i*m.cols : (i+1)*m.cols : (i+1)*m.cols]
}

// AppendRow adds a row at the end of the matrix. The row length must
// match the number of columns.
func (m *Matrix) AppendRow(r []float64) error {
	if len(r) != m.cols {
		return ErrShape
	}
	m.data = append(m.data, r...)
	m.rows++
	return nil
}

// At returns element (i, j)
func (m *Matrix) At(i, j int) float64 {
	return m.data[i*m.cols+j]
}

// Set sets element (i, j)
func (m *Matrix) Set(i, j int, v float64) {
	m.data[i*m.cols+j] = v
}

func (m *Matrix) general() blas64.General {
	return blas64.General{Rows: m.rows, Cols: m.cols, Stride: m.cols, Data: m.data}
}

// MulVec computes dst = M*x for all rows at once. len(x) must equal the
// number of columns and len(dst) the number of rows.
func (m *Matrix) MulVec(x, dst []float64) {
	if m.rows == 0 {
		return
	}
	blas64.Gemv(blas.NoTrans, 1,
		m.general(),
		blas64.Vector{N: len(x), Inc: 1, Data: x},
		0,
		blas64.Vector{N: len(dst), Inc: 1, Data: dst})
}

// MulVecRows computes dst[j] = row(idx[j]) . x for a subset of the rows
func (m *Matrix) MulVecRows(idx []int, x, dst []float64) {
	for j, i := range idx {
		dst[j] = Dot(m.Row(i), x)
	}
}

// MulTransVecRows computes dst = sum_j v[j]*row(idx[j]), the transposed
// product restricted to a subset of the rows. dst is overwritten.
func (m *Matrix) MulTransVecRows(idx []int, v, dst []float64) {
	Zero(dst)
	for j, i := range idx {
		Axpy(v[j], m.Row(i), dst)
	}
}
