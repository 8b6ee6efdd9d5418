package embedder_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avensora/strata/internal/embedder"
)

// countingEmbedder wraps an inner embedder and counts how often the inner
// provider is asked for a vector.
type countingEmbedder struct {
	inner embedder.Embedder
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls++
	return c.inner.Embed(ctx, text)
}

func (c *countingEmbedder) Dimension() int { return c.inner.Dimension() }

// flakyEmbedder fails the first failures calls, then delegates.
type flakyEmbedder struct {
	inner    embedder.Embedder
	failures int
}

func (f *flakyEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.failures > 0 {
		f.failures--
		return nil, errors.New("provider offline")
	}
	return f.inner.Embed(ctx, text)
}

func (f *flakyEmbedder) Dimension() int { return f.inner.Dimension() }

func TestHashEmbedder_Deterministic(t *testing.T) {
	emb := embedder.NewHashEmbedder(64)
	ctx := context.Background()

	a, err := emb.Embed(ctx, "the deploy failed on friday")
	require.NoError(t, err)
	b, err := emb.Embed(ctx, "the deploy failed on friday")
	require.NoError(t, err)

	assert.Equal(t, a, b, "identical text must yield identical vectors")
	assert.InDelta(t, 1.0, embedder.CosineSimilarity(a, b), 1e-6)
}

func TestHashEmbedder_DifferentTextsDiffer(t *testing.T) {
	emb := embedder.NewHashEmbedder(64)
	ctx := context.Background()

	a, err := emb.Embed(ctx, "first text")
	require.NoError(t, err)
	b, err := emb.Embed(ctx, "second text")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestHashEmbedder_UnitNorm(t *testing.T) {
	emb := embedder.NewHashEmbedder(128)

	vec, err := emb.Embed(context.Background(), "normalize me")
	require.NoError(t, err)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestHashEmbedder_DimensionFallback(t *testing.T) {
	assert.Equal(t, 32, embedder.NewHashEmbedder(32).Dimension())
	assert.Equal(t, embedder.DefaultDimension, embedder.NewHashEmbedder(0).Dimension())
	assert.Equal(t, embedder.DefaultDimension, embedder.NewHashEmbedder(-5).Dimension())
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{0, 1, 0}
	opposite := []float32{-1, 0, 0}

	assert.InDelta(t, 1.0, embedder.CosineSimilarity(a, a), 1e-6)
	assert.InDelta(t, 0.0, embedder.CosineSimilarity(a, b), 1e-6)
	assert.InDelta(t, -1.0, embedder.CosineSimilarity(a, opposite), 1e-6)

	// Degenerate inputs score zero instead of erroring.
	assert.Zero(t, embedder.CosineSimilarity(a, []float32{1, 0}))
	assert.Zero(t, embedder.CosineSimilarity(nil, nil))
	assert.Zero(t, embedder.CosineSimilarity(a, []float32{0, 0, 0}))
}

func TestCachingEmbedder_SecondLookupHitsCache(t *testing.T) {
	counting := &countingEmbedder{inner: embedder.NewHashEmbedder(64)}
	cached, err := embedder.NewCachingEmbedder(counting, 128)
	require.NoError(t, err)
	ctx := context.Background()

	first, err := cached.Embed(ctx, "repeat after me")
	require.NoError(t, err)
	cached.Wait()

	second, err := cached.Embed(ctx, "repeat after me")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, counting.calls, "second lookup should be served from cache")
}

func TestCachingEmbedder_DistinctTextsMiss(t *testing.T) {
	counting := &countingEmbedder{inner: embedder.NewHashEmbedder(64)}
	cached, err := embedder.NewCachingEmbedder(counting, 128)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = cached.Embed(ctx, "alpha")
	require.NoError(t, err)
	_, err = cached.Embed(ctx, "beta")
	require.NoError(t, err)

	assert.Equal(t, 2, counting.calls)
}

func TestCachingEmbedder_FailuresNotCached(t *testing.T) {
	flaky := &flakyEmbedder{inner: embedder.NewHashEmbedder(64), failures: 1}
	cached, err := embedder.NewCachingEmbedder(flaky, 128)
	require.NoError(t, err)
	ctx := context.Background()

	_, err = cached.Embed(ctx, "transient")
	require.Error(t, err)

	// The failure must not poison the cache; the retry succeeds.
	vec, err := cached.Embed(ctx, "transient")
	require.NoError(t, err)
	assert.Len(t, vec, 64)
}

func TestNewCachingEmbedder_RejectsNonPositiveSize(t *testing.T) {
	_, err := embedder.NewCachingEmbedder(embedder.NewHashEmbedder(64), 0)
	assert.Error(t, err)

	_, err = embedder.NewCachingEmbedder(embedder.NewHashEmbedder(64), -1)
	assert.Error(t, err)
}
