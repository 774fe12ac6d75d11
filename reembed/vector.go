package reembed

import "github.com/poiesic/coverwise/core"

// NormalizeVector scales v to unit length and returns a new vector.
// A zero or empty vector comes back as zeros of the same length.
func NormalizeVector(v []float32) []float32 {
	result := make([]float32, len(v))
	norm := core.Norm(v)
	if norm == 0 {
		return result
	}
	for i, val := range v {
		result[i] = float32(float64(val) / norm)
	}
	return result
}
