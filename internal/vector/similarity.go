package vector

import "math"

// CosineSimilarity computes the cosine similarity of two vectors.
// Accumulation happens in float64 regardless of the stored precision so the
// result stays stable for embedding dimensions in the hundreds to low
// thousands. A zero-norm input yields exactly 0, never NaN.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, ErrDimensionMismatch
	}

	var dot, normA, normB float64
	for i := range a {
		x := float64(a[i])
		y := float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}

	if normA == 0 || normB == 0 {
		return 0, nil
	}

	return dot / (math.Sqrt(normA) * math.Sqrt(normB)), nil
}
