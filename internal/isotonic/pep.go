package isotonic

// RawPEP turns a best first sequence of q-values into local error rates.
// q[i]*(i+1) is the expected number of false discoveries among the first
// i+1 elements, so its consecutive differences estimate the probability
// that element i is false. Noise makes the differences fall outside (0,1);
// consecutive differences are merged into blocks until the block average
// lies inside (0,1). A trailing block that never gets there is clamped.
func RawPEP(q []float64) []float64 {
	n := len(q)
	res := make([]float64, n)
	if n == 0 {
		return res
	}
	prev := 0.0
	start := 0
	sum := 0.0
	for i, qi := range q {
		cum := qi * float64(i+1)
		sum += cum - prev
		prev = cum
		avg := sum / float64(i-start+1)
		if avg > 0 && avg < 1 {
			for k := start; k <= i; k++ {
				res[k] = avg
			}
			start = i + 1
			sum = 0
		}
	}
	if start < n {
		avg := sum / float64(n-start)
		if avg <= 0 {
			avg = DefaultLogitEpsilon
		} else if avg >= 1 {
			avg = 1 - DefaultLogitEpsilon
		}
		for k := start; k < n; k++ {
			res[k] = avg
		}
	}
	return res
}
