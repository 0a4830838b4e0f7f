package retrieval

import "math"

// Cosine returns the cosine similarity of a and b in [0, 1] for non-negative
// inputs ([-1, 1] in general). Degenerate inputs degrade to a defined zero
// score instead of NaN: mismatched dimensionality or a zero-norm vector
// scores 0. Identical non-zero vectors score exactly 1.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / math.Sqrt(na*nb)
}
