// Package vecmath holds the vector arithmetic shared by ingestion, association
// and retrieval. Everything here is a pure function.
package vecmath

import (
	"fmt"
	"math"
)

// Cosine computes the cosine similarity between two vectors.
// Mismatched lengths, empty vectors and zero vectors all score 0.
func Cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	sim := dot / denom

	// Rounding can push identical vectors a hair past 1.
	if sim > 1 {
		return 1
	}
	if sim < -1 {
		return -1
	}
	return sim
}

// Validate checks that vec has exactly dims finite components.
func Validate(vec []float64, dims int) error {
	if len(vec) != dims {
		return fmt.Errorf("vector length %d, want %d", len(vec), dims)
	}
	for i, v := range vec {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("vector component %d is not finite", i)
		}
	}
	return nil
}

// Normalize performs in-place L2 normalization.
func Normalize(vec []float64) {
	var sum float64
	for _, v := range vec {
		sum += v * v
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range vec {
		vec[i] /= norm
	}
}

// Float64s widens a float32 embedding, the shape most embedding APIs return.
func Float64s(vec []float32) []float64 {
	out := make([]float64, len(vec))
	for i, v := range vec {
		out[i] = float64(v)
	}
	return out
}
