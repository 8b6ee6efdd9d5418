package embedder

import (
	"context"
	"hash/fnv"
	"math"
)

// DefaultDimension is the vector dimension used when none is configured.
const DefaultDimension = 384

// HashEmbedder derives a unit vector from an FNV-1a hash of the input text.
// Identical text always yields the identical vector, so self-similarity is
// exactly 1.0, but unrelated texts get uncorrelated directions rather than
// semantically meaningful ones. It is the placeholder provider; it never
// fails.
type HashEmbedder struct {
	dimension int
}

// NewHashEmbedder creates a hash-based embedder with the given dimension.
func NewHashEmbedder(dimension int) *HashEmbedder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &HashEmbedder{dimension: dimension}
}

func (h *HashEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	hasher := fnv.New64a()
	_, _ = hasher.Write([]byte(text))
	seed := hasher.Sum64()

	vec := make([]float32, h.dimension)
	for i := range vec {
		// LCG seeded by the text hash: cheap, deterministic, full-range.
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
	}
	normalize(vec)
	return vec, nil
}

func (h *HashEmbedder) Dimension() int {
	return h.dimension
}

// normalize scales vec to unit length in place. Zero vectors are left as-is.
func normalize(vec []float32) {
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
}
