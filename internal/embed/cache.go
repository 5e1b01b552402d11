package embed

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto"
)

// Cached memoizes another embedder's vectors in a ristretto cache keyed by
// model and text. Each vector costs 1, so size is the number of vectors kept.
type Cached struct {
	next  Embedder
	cache *ristretto.Cache
}

// NewCached wraps next with a cache holding up to size vectors.
func NewCached(next Embedder, size int64) (*Cached, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: size * 10,
		MaxCost:     size,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("embedding cache: %w", err)
	}
	return &Cached{next: next, cache: cache}, nil
}

func (c *Cached) Model() string   { return c.next.Model() }
func (c *Cached) Dimensions() int { return c.next.Dimensions() }

func (c *Cached) Embed(ctx context.Context, text string) ([]float64, error) {
	key := c.next.Model() + "\x00" + text
	if v, ok := c.cache.Get(key); ok {
		return append([]float64(nil), v.([]float64)...), nil
	}
	vec, err := c.next.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(key, append([]float64(nil), vec...), 1)
	return vec, nil
}

// Wait blocks until pending cache writes are applied.
func (c *Cached) Wait() { c.cache.Wait() }

// Close releases the cache's goroutines.
func (c *Cached) Close() { c.cache.Close() }
