package embedding

import (
	"fmt"
	"math"
)

// Normalize scales v to unit length in place. Zero vectors are left untouched.
func Normalize(v []float32) []float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return v
	}
	inv := 1.0 / math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) * inv)
	}
	return v
}

// Dot returns the inner product of a and b over their common prefix.
func Dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// CheckBatch verifies a provider response has one vector of the expected dimension per input.
func CheckBatch(vectors [][]float32, inputs, dimension int) error {
	if len(vectors) != inputs {
		return fmt.Errorf("embedding count mismatch: got %d, want %d", len(vectors), inputs)
	}
	for i, v := range vectors {
		if dimension > 0 && len(v) != dimension {
			return fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), dimension)
		}
	}
	return nil
}
