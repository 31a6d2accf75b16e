package voiceprint

import (
	"fmt"
	"math"

	"github.com/johnquangdev/meeting-transcriber/internal/domain/entities"
)

// Norm returns the L2 norm of v
func Norm(v []float64) float64 {
	var sum float64
	for _, x := range v {
		sum += x * x
	}
	return math.Sqrt(sum)
}

// Normalize returns v scaled to unit length; a zero vector is returned as a copy
func Normalize(v []float64) []float64 {
	out := make([]float64, len(v))
	n := Norm(v)
	if n == 0 {
		copy(out, v)
		return out
	}
	for i, x := range v {
		out[i] = x / n
	}
	return out
}

// CosineSimilarity of a and b in [-1, 1]. Zero-norm or mismatched inputs give 0.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += a[i] * b[i]
		na += a[i] * a[i]
		nb += b[i] * b[i]
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Aggregate computes the L2-normalized mean of the sample embeddings
func Aggregate(samples [][]float64) ([]float64, error) {
	if len(samples) == 0 {
		return nil, entities.ErrEmptyEmbedding
	}
	dim := len(samples[0])
	if dim == 0 {
		return nil, entities.ErrEmptyEmbedding
	}
	mean := make([]float64, dim)
	for i, s := range samples {
		if len(s) != dim {
			return nil, fmt.Errorf("%w: sample %d has %d dims, want %d", entities.ErrDimensionMismatch, i, len(s), dim)
		}
		for j, x := range s {
			mean[j] += x
		}
	}
	for j := range mean {
		mean[j] /= float64(len(samples))
	}
	if Norm(mean) == 0 {
		return nil, entities.ErrEmptyEmbedding
	}
	return Normalize(mean), nil
}
