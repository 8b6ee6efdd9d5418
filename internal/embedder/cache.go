package embedder

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// CachingEmbedder memoizes the vectors of an inner embedder. Providers are
// deterministic, so a cache hit is always identical to a fresh computation.
// Failures are never cached.
type CachingEmbedder struct {
	inner Embedder
	cache *ristretto.Cache
}

// NewCachingEmbedder wraps inner with a text-to-vector cache holding up to
// maxEntries embeddings.
func NewCachingEmbedder(inner Embedder, maxEntries int64) (*CachingEmbedder, error) {
	if maxEntries <= 0 {
		return nil, fmt.Errorf("embedding cache size must be > 0, got %d", maxEntries)
	}
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding cache: %w", err)
	}
	return &CachingEmbedder{inner: inner, cache: cache}, nil
}

func (c *CachingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		if vec, ok := v.([]float32); ok {
			return vec, nil
		}
	}
	vec, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, vec, 1)
	return vec, nil
}

func (c *CachingEmbedder) Dimension() int {
	return c.inner.Dimension()
}

// Wait blocks until pending cache writes are applied. Intended for tests;
// production callers never need the cache to be synchronously visible.
func (c *CachingEmbedder) Wait() {
	c.cache.Wait()
}
