package embedder

import (
	"context"
	"math"
)

// Embedder generates vector embeddings from text. Implementations must be
// deterministic for identical input text and must return an error rather
// than panic or fabricate a vector on failure.
type Embedder interface {
	// Embed returns a vector embedding for the given text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Dimension returns the embedding vector dimension, fixed for the
	// process lifetime.
	Dimension() int
}

// CosineSimilarity computes the cosine similarity between two float32
// vectors. Returns 0 if either vector is zero-length or zero-norm.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
