// Package metric implements the distance metrics used to compare
// face embeddings.
package metric

import (
	"fmt"
	"math"
)

// Metric identifies a distance function over embedding vectors.
type Metric string

const (
	Cosine      Metric = "cosine"
	Euclidean   Metric = "euclidean"
	EuclideanL2 Metric = "euclidean_l2"
)

// All lists the supported metrics.
var All = []Metric{Cosine, Euclidean, EuclideanL2}

// Parse converts a metric name into a Metric.
func Parse(name string) (Metric, error) {
	switch Metric(name) {
	case Cosine, Euclidean, EuclideanL2:
		return Metric(name), nil
	default:
		return "", fmt.Errorf("unsupported distance metric: %q (supported: cosine, euclidean, euclidean_l2)", name)
	}
}

func (m Metric) String() string {
	return string(m)
}

// Distance computes the distance between two embeddings using the metric.
func (m Metric) Distance(a, b []float32) float64 {
	switch m {
	case Euclidean:
		return EuclideanDistance(a, b)
	case EuclideanL2:
		return EuclideanL2Distance(a, b)
	default:
		return CosineDistance(a, b)
	}
}

// CosineDistance computes the cosine distance between two vectors.
// Returns a value between 0 (identical) and 2 (opposite).
// Cosine distance = 1 - cosine similarity.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0 // Maximum distance for invalid input
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 2.0 // Maximum distance for zero vectors
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return 1 - similarity
}

// EuclideanDistance computes the straight-line distance between two vectors.
// Returns +Inf for mismatched or empty inputs.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// EuclideanL2Distance computes the euclidean distance between the
// L2-normalized vectors. Equivalent up to scaling to cosine distance
// but kept as a separate metric because thresholds are published
// against it.
func EuclideanL2Distance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	return EuclideanDistance(l2Normalize(a), l2Normalize(b))
}

func l2Normalize(v []float32) []float32 {
	var norm float64
	for _, x := range v {
		norm += float64(x) * float64(x)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return v
	}

	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
