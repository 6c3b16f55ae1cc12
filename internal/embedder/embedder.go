package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/dshills/sentirag/pkg/types"
)

// Common errors. Every error returned by an Embedder wraps types.ErrEmbedding
// except dimension mismatches, which wrap types.ErrDimensionMismatch.
var (
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrUnsupportedModel  = errors.New("unsupported model")
	ErrEmptyText         = errors.New("text cannot be empty")
	ErrBatchTooLarge     = errors.New("batch size exceeds limit")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
)

// Embedder turns text into fixed-length vectors.
type Embedder interface {
	// Embed returns the vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one vector per text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the length of every vector this embedder produces.
	Dimension() int

	Provider() string
	Model() string
	Close() error
}

// Cache provides in-memory LRU caching of vectors by content hash
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates a new embedding cache with LRU eviction
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		cache, _ = lru.New[string, []float32](10000)
	}
	return &Cache{cache: cache}
}

// Get returns a copy of the cached vector so callers cannot mutate it.
func (c *Cache) Get(hash string) ([]float32, bool) {
	v, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Set stores a copy of vec.
func (c *Cache) Set(hash string, vec []float32) {
	stored := make([]float32, len(vec))
	copy(stored, vec)
	c.cache.Add(hash, stored)
}

// Size returns the current cache size
func (c *Cache) Size() int {
	return c.cache.Len()
}

// Clear empties the cache
func (c *Cache) Clear() {
	c.cache.Purge()
}

// ComputeHash computes SHA-256 of provider, model and text, so providers
// sharing a cache never collide.
func ComputeHash(provider, model, text string) string {
	h := sha256.Sum256([]byte(provider + "\x00" + model + "\x00" + text))
	return hex.EncodeToString(h[:])
}

// validateTexts rejects empty input.
func validateTexts(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: %w: no texts provided", types.ErrEmbedding, ErrEmptyText)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: %w: text at index %d", types.ErrEmbedding, ErrEmptyText, i)
		}
	}
	return nil
}

// checkDimension guards against a provider returning vectors of another
// length than configured.
func checkDimension(want int, vec []float32) error {
	if want > 0 && len(vec) != want {
		return fmt.Errorf("%w: provider returned %d, expected %d", types.ErrDimensionMismatch, len(vec), want)
	}
	return nil
}

// NormalizeVector normalizes a vector to unit length (for cosine similarity)
func NormalizeVector(v []float32) []float32 {
	var sum float64
	for _, val := range v {
		sum += float64(val) * float64(val)
	}
	if sum == 0 {
		return v
	}

	norm := float32(math.Sqrt(sum))
	result := make([]float32, len(v))
	for i, val := range v {
		result[i] = val / norm
	}
	return result
}
