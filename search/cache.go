package search

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Default query cache bounds.
const (
	DefaultCacheSize = 1024
	DefaultCacheTTL  = 10 * time.Minute
)

// vectorCache keeps recent query embeddings so repeated and paged searches
// skip the embedder.
type vectorCache struct {
	lru *expirable.LRU[string, []float32]
}

func newVectorCache(size int, ttl time.Duration) *vectorCache {
	return &vectorCache{lru: expirable.NewLRU[string, []float32](size, nil, ttl)}
}

func cacheKey(model, text string) string {
	return model + "\x00" + text
}

func (c *vectorCache) get(model, text string) ([]float32, bool) {
	if c == nil {
		return nil, false
	}
	vec, ok := c.lru.Get(cacheKey(model, text))
	if ok {
		cacheHitsTotal.Inc()
		return vec, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

func (c *vectorCache) put(model, text string, vec []float32) {
	if c == nil {
		return
	}
	c.lru.Add(cacheKey(model, text), vec)
}
