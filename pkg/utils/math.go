package utils

import "math"

// NormalizeL2 scales x in place to unit L2 norm so inner products over the
// result behave as cosine similarity. The squared sum accumulates in float64
// to keep long vectors from losing precision. A zero vector stays zero.
func NormalizeL2(x []float32) {
	var sum float64
	for _, v := range x {
		sum += float64(v) * float64(v)
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range x {
		x[i] = float32(float64(x[i]) * inv)
	}
}
