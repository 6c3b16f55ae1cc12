package corpus

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/dshills/sentirag/internal/lexical"
	"github.com/dshills/sentirag/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doc(set, id string, tokens []string, vec []float32) types.Document {
	return types.Document{
		ID:        types.DocumentID(set, id),
		SetKey:    set,
		CommentID: id,
		ContentID: set,
		Text:      id,
		Sentiment: types.SentimentNeutral,
		Tokens:    tokens,
		Vector:    vec,
	}
}

func TestCorpus_ReplaceSetOverwrites(t *testing.T) {
	ctx := context.Background()
	c := New(lexical.DefaultParams(), 0)

	first := []types.Document{
		doc("x1", "c1", []string{"enak"}, []float32{1, 0}),
		doc("x1", "c2", []string{"mahal"}, []float32{0, 1}),
	}
	require.NoError(t, c.ReplaceSet(ctx, "x1", first, nil))
	assert.Equal(t, []string{"x1:c1", "x1:c2"}, c.SetDocuments("x1"))

	second := []types.Document{
		doc("x1", "c1", []string{"murah"}, []float32{1, 1}),
	}
	require.NoError(t, c.ReplaceSet(ctx, "x1", second, nil))
	assert.Equal(t, []string{"x1:c1"}, c.SetDocuments("x1"))

	stats := c.Stats()
	assert.Equal(t, 1, stats.Documents)
	assert.Equal(t, uint64(2), stats.Version)
	assert.Empty(t, c.Inconsistent())

	r, err := c.Retrieve(ctx, RetrieveOptions{Tokens: []string{"enak"}, Vector: []float32{1, 0}})
	require.NoError(t, err)
	assert.Empty(t, r.Lexical, "stale postings must be gone")
	require.Len(t, r.Vector, 1)
	assert.Equal(t, "x1:c1", r.Vector[0].DocID)
}

func TestCorpus_SetsAreIndependent(t *testing.T) {
	ctx := context.Background()
	c := New(lexical.DefaultParams(), 0)
	require.NoError(t, c.ReplaceSet(ctx, "x1", []types.Document{doc("x1", "c1", []string{"enak"}, []float32{1, 0})}, nil))
	require.NoError(t, c.ReplaceSet(ctx, "x1_v2", []types.Document{doc("x1_v2", "c1", []string{"enak"}, []float32{1, 0})}, nil))

	assert.Equal(t, 2, c.Stats().Documents)
	assert.Equal(t, 2, c.Stats().Sets)
}

func TestCorpus_PersistFailureLeavesStateUntouched(t *testing.T) {
	ctx := context.Background()
	c := New(lexical.DefaultParams(), 0)
	require.NoError(t, c.ReplaceSet(ctx, "x1", []types.Document{doc("x1", "c1", []string{"enak"}, []float32{1, 0})}, nil))

	boom := errors.New("disk full")
	err := c.ReplaceSet(ctx, "x1", []types.Document{doc("x1", "c9", []string{"baru"}, []float32{0, 1})},
		func(context.Context) error { return boom })
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrIndexWrite)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, types.KindIndexWrite, types.KindOf(err))

	assert.Equal(t, []string{"x1:c1"}, c.SetDocuments("x1"))
	_, ok := c.Document("x1:c9")
	assert.False(t, ok)
	assert.Equal(t, uint64(1), c.Version())
	assert.Empty(t, c.Inconsistent())
}

func TestCorpus_DimensionMismatchRejectsWholeBatch(t *testing.T) {
	ctx := context.Background()
	c := New(lexical.DefaultParams(), 0)
	require.NoError(t, c.ReplaceSet(ctx, "x1", []types.Document{doc("x1", "c1", []string{"enak"}, []float32{1, 0})}, nil))

	called := false
	err := c.ReplaceSet(ctx, "x2", []types.Document{
		doc("x2", "c1", []string{"a1"}, []float32{1, 0}),
		doc("x2", "c2", []string{"b1"}, []float32{1, 0, 0}),
	}, func(context.Context) error { called = true; return nil })

	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
	assert.Equal(t, types.KindDimensionMismatch, types.KindOf(err))
	assert.False(t, called, "persist must not run for an invalid batch")
	assert.Empty(t, c.SetDocuments("x2"))
}

func TestCorpus_MixedDimensionsInFirstBatch(t *testing.T) {
	c := New(lexical.DefaultParams(), 0)
	err := c.ReplaceSet(context.Background(), "x1", []types.Document{
		doc("x1", "c1", []string{"a1"}, []float32{1, 0}),
		doc("x1", "c2", []string{"b1"}, []float32{1}),
	}, nil)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
	assert.Equal(t, 0, c.Dimension())
}

func TestCorpus_ValidateRejectsBadDocuments(t *testing.T) {
	c := New(lexical.DefaultParams(), 0)
	tests := []struct {
		name string
		docs []types.Document
	}{
		{"no tokens", []types.Document{doc("x", "c1", nil, []float32{1})}},
		{"no vector", []types.Document{doc("x", "c1", []string{"a1"}, nil)}},
		{"no id", []types.Document{{Tokens: []string{"a1"}, Vector: []float32{1}}}},
		{"duplicate id", []types.Document{
			doc("x", "c1", []string{"a1"}, []float32{1}),
			doc("x", "c1", []string{"a1"}, []float32{1}),
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, c.Validate(tt.docs))
		})
	}
}

func TestCorpus_EmptyReplaceClearsSet(t *testing.T) {
	ctx := context.Background()
	c := New(lexical.DefaultParams(), 0)
	require.NoError(t, c.ReplaceSet(ctx, "x1", []types.Document{doc("x1", "c1", []string{"enak"}, []float32{1, 0})}, nil))
	require.NoError(t, c.ReplaceSet(ctx, "x1", nil, nil))
	assert.Equal(t, 0, c.Stats().Documents)
	assert.Equal(t, 0, c.Stats().Sets)
}

func TestCorpus_Load(t *testing.T) {
	c := New(lexical.DefaultParams(), 0)
	err := c.Load(context.Background(), []types.Document{
		doc("b", "c1", []string{"enak"}, []float32{1, 0}),
		doc("a", "c1", []string{"enak"}, []float32{0, 1}),
		doc("a", "c2", []string{"mahal"}, []float32{1, 1}),
	})
	require.NoError(t, err)
	assert.Equal(t, 3, c.Stats().Documents)
	assert.Equal(t, []string{"a:c1", "a:c2"}, c.SetDocuments("a"))
	assert.Empty(t, c.Inconsistent())
}

func TestCorpus_RetrieveEmpty(t *testing.T) {
	c := New(lexical.DefaultParams(), 0)
	r, err := c.Retrieve(context.Background(), RetrieveOptions{Tokens: []string{"enak"}, Vector: []float32{1, 0}, LexicalLimit: 5, VectorLimit: 5})
	require.NoError(t, err)
	assert.Empty(t, r.Lexical)
	assert.Empty(t, r.Vector)
	assert.Empty(t, r.Docs)
}

func TestCorpus_RetrieveSkipsSides(t *testing.T) {
	ctx := context.Background()
	c := New(lexical.DefaultParams(), 0)
	require.NoError(t, c.ReplaceSet(ctx, "x1", []types.Document{doc("x1", "c1", []string{"enak"}, []float32{1, 0})}, nil))

	r, err := c.Retrieve(ctx, RetrieveOptions{Tokens: []string{"enak"}, SkipVector: true})
	require.NoError(t, err)
	assert.Len(t, r.Lexical, 1)
	assert.Nil(t, r.Vector)
	assert.Contains(t, r.Docs, "x1:c1")
}

// Readers never observe a half-applied commit: every document a query sees
// is present in both indexes.
func TestCorpus_ConcurrentReadersSeeConsistentState(t *testing.T) {
	ctx := context.Background()
	c := New(lexical.DefaultParams(), 0)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				r, err := c.Retrieve(ctx, RetrieveOptions{Tokens: []string{"enak"}, Vector: []float32{1, 0}})
				if !assert.NoError(t, err) {
					return
				}
				lexIDs := map[string]bool{}
				for _, h := range r.Lexical {
					lexIDs[h.DocID] = true
				}
				for _, h := range r.Vector {
					assert.True(t, lexIDs[h.DocID], "vector hit %s missing from lexical side", h.DocID)
				}
			}
		}()
	}

	for round := 0; round < 50; round++ {
		ids := []string{"c1", "c2", "c3"}
		if round%2 == 1 {
			ids = []string{"c4"}
		}
		var docs []types.Document
		for _, id := range ids {
			docs = append(docs, doc("x1", id, []string{"enak"}, []float32{1, 0}))
		}
		require.NoError(t, c.ReplaceSet(ctx, "x1", docs, nil))
	}
	close(stop)
	wg.Wait()
	assert.Empty(t, c.Inconsistent())
}
