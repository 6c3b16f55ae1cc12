package embedder

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/sentirag/internal/retry"
	"github.com/dshills/sentirag/internal/vector"
	"github.com/dshills/sentirag/pkg/types"
)

func fastRetry() retry.Config {
	return retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2}
}

func TestCache(t *testing.T) {
	t.Run("copy on read", func(t *testing.T) {
		c := NewCache(2)
		c.Set("a", []float32{1, 2})
		got, ok := c.Get("a")
		require.True(t, ok)
		got[0] = 99
		again, _ := c.Get("a")
		assert.Equal(t, float32(1), again[0])
	})

	t.Run("copy on write", func(t *testing.T) {
		c := NewCache(2)
		v := []float32{1, 2}
		c.Set("a", v)
		v[0] = 99
		got, _ := c.Get("a")
		assert.Equal(t, float32(1), got[0])
	})

	t.Run("lru eviction", func(t *testing.T) {
		c := NewCache(2)
		c.Set("a", []float32{1})
		c.Set("b", []float32{2})
		c.Set("c", []float32{3})
		assert.Equal(t, 2, c.Size())
		_, ok := c.Get("a")
		assert.False(t, ok)
		c.Clear()
		assert.Equal(t, 0, c.Size())
	})

	t.Run("non-positive size uses default", func(t *testing.T) {
		assert.NotNil(t, NewCache(0))
	})
}

func TestComputeHash(t *testing.T) {
	a := ComputeHash("local", "m", "enak")
	assert.Len(t, a, 64)
	assert.Equal(t, a, ComputeHash("local", "m", "enak"))
	assert.NotEqual(t, a, ComputeHash("jina", "m", "enak"))
	assert.NotEqual(t, a, ComputeHash("local", "m", "mahal"))
}

func TestNormalizeVector(t *testing.T) {
	v := NormalizeVector([]float32{3, 4})
	assert.InDelta(t, 0.6, v[0], 1e-6)
	assert.InDelta(t, 0.8, v[1], 1e-6)

	zero := []float32{0, 0}
	assert.Equal(t, zero, NormalizeVector(zero))
}

func TestLocalProvider(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider(nil, 0, NewCache(10))

	t.Run("deterministic and unit length", func(t *testing.T) {
		a, err := p.Embed(ctx, "rasanya enak banget")
		require.NoError(t, err)
		b, err := p.Embed(ctx, "rasanya enak banget")
		require.NoError(t, err)
		assert.Equal(t, a, b)
		assert.Len(t, a, LocalDimension)

		var sum float64
		for _, x := range a {
			sum += float64(x) * float64(x)
		}
		assert.InDelta(t, 1.0, math.Sqrt(sum), 1e-5)
	})

	t.Run("shared words are closer", func(t *testing.T) {
		q, _ := p.Embed(ctx, "harga mahal")
		near, _ := p.Embed(ctx, "harganya mahal sekali")
		far, _ := p.Embed(ctx, "pengiriman cepat")
		assert.Greater(t, vector.CosineSimilarity(q, near), vector.CosineSimilarity(q, far))
	})

	t.Run("stopword-only text still embeds", func(t *testing.T) {
		v, err := p.Embed(ctx, "yang dan di")
		require.NoError(t, err)
		assert.Len(t, v, LocalDimension)
	})

	t.Run("empty text", func(t *testing.T) {
		_, err := p.Embed(ctx, "   ")
		assert.ErrorIs(t, err, types.ErrEmbedding)
		assert.ErrorIs(t, err, ErrEmptyText)
	})

	t.Run("batch preserves order", func(t *testing.T) {
		vecs, err := p.EmbedBatch(ctx, []string{"enak", "mahal"})
		require.NoError(t, err)
		one, _ := p.Embed(ctx, "mahal")
		assert.Equal(t, one, vecs[1])
	})

	t.Run("empty batch", func(t *testing.T) {
		_, err := p.EmbedBatch(ctx, nil)
		assert.ErrorIs(t, err, ErrEmptyText)
	})

	t.Run("custom dimension", func(t *testing.T) {
		small := NewLocalProvider(nil, 32, nil)
		v, err := small.Embed(ctx, "enak")
		require.NoError(t, err)
		assert.Len(t, v, 32)
		assert.Equal(t, 32, small.Dimension())
		assert.Equal(t, "hashing-32", small.Model())
	})

	t.Run("canceled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := p.Embed(cctx, "enak")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func embeddingServer(t *testing.T, dim int, status *atomic.Int32, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		if s := status.Load(); s != 0 {
			w.WriteHeader(int(s))
			_, _ = w.Write([]byte(`{"error":"nope"}`))
			return
		}

		var req struct {
			Input []string `json:"input"`
			Model string   `json:"model"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		type item struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}
		// Reverse order to check the client sorts by index.
		data := make([]item, 0, len(req.Input))
		for i := len(req.Input) - 1; i >= 0; i-- {
			v := make([]float32, dim)
			v[0] = float32(len(req.Input[i]))
			data = append(data, item{Embedding: v, Index: i})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"model": req.Model, "data": data})
	}))
}

func TestHTTPProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("batch success and ordering", func(t *testing.T) {
		var status, calls atomic.Int32
		srv := embeddingServer(t, 4, &status, &calls)
		defer srv.Close()

		p, err := NewJinaProvider("test-key", NewCache(10), WithEndpoint(srv.URL), WithDimension(4), WithRetry(fastRetry()))
		require.NoError(t, err)
		defer p.Close()

		vecs, err := p.EmbedBatch(ctx, []string{"a", "bbb"})
		require.NoError(t, err)
		assert.Equal(t, float32(1), vecs[0][0])
		assert.Equal(t, float32(3), vecs[1][0])

		// Served from cache on the second call.
		_, err = p.Embed(ctx, "bbb")
		require.NoError(t, err)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		var status, calls atomic.Int32
		srv := embeddingServer(t, 3, &status, &calls)
		defer srv.Close()

		p, err := NewOpenAIProvider("test-key", nil, WithEndpoint(srv.URL), WithDimension(4), WithRetry(fastRetry()))
		require.NoError(t, err)
		_, err = p.Embed(ctx, "a")
		assert.ErrorIs(t, err, types.ErrDimensionMismatch)
	})

	t.Run("server error retries", func(t *testing.T) {
		var status, calls atomic.Int32
		status.Store(http.StatusInternalServerError)
		srv := embeddingServer(t, 4, &status, &calls)
		defer srv.Close()

		p, err := NewJinaProvider("test-key", nil, WithEndpoint(srv.URL), WithDimension(4), WithRetry(fastRetry()))
		require.NoError(t, err)
		_, err = p.Embed(ctx, "a")
		assert.ErrorIs(t, err, types.ErrEmbedding)
		assert.ErrorIs(t, err, ErrProviderFailed)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("client error does not retry", func(t *testing.T) {
		var status, calls atomic.Int32
		status.Store(http.StatusUnauthorized)
		srv := embeddingServer(t, 4, &status, &calls)
		defer srv.Close()

		p, err := NewJinaProvider("test-key", nil, WithEndpoint(srv.URL), WithRetry(fastRetry()))
		require.NoError(t, err)
		_, err = p.Embed(ctx, "a")
		assert.ErrorIs(t, err, types.ErrEmbedding)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("batch too large", func(t *testing.T) {
		p, err := NewJinaProvider("k", nil)
		require.NoError(t, err)
		texts := make([]string, MaxBatchSize+1)
		for i := range texts {
			texts[i] = "x"
		}
		_, err = p.EmbedBatch(ctx, texts)
		assert.ErrorIs(t, err, ErrBatchTooLarge)
	})

	t.Run("missing key", func(t *testing.T) {
		_, err := NewOpenAIProvider("", nil)
		assert.True(t, errors.Is(err, ErrNoProviderEnabled))
	})
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      Config
		provider string
		wantErr  error
	}{
		{"default is local", Config{}, ProviderLocal, nil},
		{"local", Config{Provider: "LOCAL", Dimension: 64}, ProviderLocal, nil},
		{"jina", Config{Provider: "jina", APIKey: "k"}, ProviderJina, nil},
		{"openai", Config{Provider: "openai", APIKey: "k", Model: "text-embedding-3-large", Dimension: 3072}, ProviderOpenAI, nil},
		{"jina without key", Config{Provider: "jina"}, "", ErrNoProviderEnabled},
		{"unknown", Config{Provider: "cohere"}, "", ErrUnsupportedModel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.cfg, nil)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, e)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.provider, e.Provider())
			if tt.cfg.Dimension > 0 {
				assert.Equal(t, tt.cfg.Dimension, e.Dimension())
			}
			if tt.cfg.Model != "" {
				assert.Equal(t, tt.cfg.Model, e.Model())
			}
		})
	}
}
