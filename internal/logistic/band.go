package logistic

// pentaBand is a symmetric matrix with two sub-diagonals. k0 is the
// diagonal, k1[i] = B[i+1,i] and k2[i] = B[i+2,i].
type pentaBand struct {
	k0, k1, k2 []float64

	// LDL' factor, l1[i] = L[i+1,i], l2[i] = L[i+2,i]
	d, l1, l2 []float64
}

func newPentaBand(n int) *pentaBand {
	return &pentaBand{
		k0: make([]float64, n),
		k1: make([]float64, n),
		k2: make([]float64, n),
		d:  make([]float64, n),
		l1: make([]float64, n),
		l2: make([]float64, n),
	}
}

func (b *pentaBand) size() int { return len(b.k0) }

// factor computes the LDL' decomposition. It returns false when a pivot
// is not positive.
func (b *pentaBand) factor() bool {
	n := b.size()
	for i := 0; i < n; i++ {
		d := b.k0[i]
		if i >= 1 {
			d -= b.l1[i-1] * b.l1[i-1] * b.d[i-1]
		}
		if i >= 2 {
			d -= b.l2[i-2] * b.l2[i-2] * b.d[i-2]
		}
		if !(d > 0) {
			return false
		}
		b.d[i] = d
		l1 := b.k1[i]
		if i >= 1 {
			l1 -= b.l1[i-1] * b.l2[i-1] * b.d[i-1]
		}
		b.l1[i] = l1 / d
		b.l2[i] = b.k2[i] / d
	}
	return true
}

// solve overwrites rhs with B^-1 rhs; factor must have succeeded
func (b *pentaBand) solve(rhs []float64) {
	n := b.size()
	// L y = rhs
	for i := 0; i < n; i++ {
		if i >= 1 {
			rhs[i] -= b.l1[i-1] * rhs[i-1]
		}
		if i >= 2 {
			rhs[i] -= b.l2[i-2] * rhs[i-2]
		}
	}
	for i := 0; i < n; i++ {
		rhs[i] /= b.d[i]
	}
	// L' x = y
	for i := n - 1; i >= 0; i-- {
		if i+1 < n {
			rhs[i] -= b.l1[i] * rhs[i+1]
		}
		if i+2 < n {
			rhs[i] -= b.l2[i] * rhs[i+2]
		}
	}
}

// inverseBand returns the diagonal and the first two off-diagonals of
// B^-1 from the factor (Green & Silverman, section 3.5)
func (b *pentaBand) inverseBand() (b0, b1, b2 []float64) {
	n := b.size()
	b0 = make([]float64, n)
	b1 = make([]float64, n)
	b2 = make([]float64, n)
	at := func(v []float64, i int) float64 {
		if i < n {
			return v[i]
		}
		return 0
	}
	for i := n - 1; i >= 0; i-- {
		l1, l2 := b.l1[i], b.l2[i]
		if i+1 >= n {
			l1 = 0
		}
		if i+2 >= n {
			l2 = 0
		}
		b2[i] = -l1*at(b1, i+1) - l2*at(b0, i+2)
		b1[i] = -l1*at(b0, i+1) - l2*at(b1, i+1)
		b0[i] = 1/b.d[i] - l1*b1[i] - l2*b2[i]
	}
	return b0, b1, b2
}
