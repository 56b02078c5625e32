package rag

import (
	"fmt"
	"math"
)

// CosineSimilarity computes the cosine of the angle between two vectors.
// A zero-norm vector yields 0 rather than NaN. Vectors of different
// lengths indicate mixed embedding models and fail outright.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("vector length mismatch: %d vs %d", len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0, nil
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
