package vector

import (
	"testing"

	"github.com/dshills/sentirag/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_DimensionFixedAtFirstInsert(t *testing.T) {
	ix := New(0)
	assert.Equal(t, 0, ix.Dimension())

	require.NoError(t, ix.Upsert("a", []float32{1, 0, 0}, Metadata{}))
	assert.Equal(t, 3, ix.Dimension())

	err := ix.Upsert("b", []float32{1, 0}, Metadata{})
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)
	assert.False(t, ix.Has("b"))

	_, err = ix.Search([]float32{1, 0, 0, 0}, 1)
	assert.ErrorIs(t, err, types.ErrDimensionMismatch)

	assert.ErrorIs(t, ix.Check([]float32{1}), types.ErrDimensionMismatch)
	assert.NoError(t, ix.Check([]float32{0, 0, 1}))
}

func TestIndex_PinnedDimension(t *testing.T) {
	ix := New(2)
	assert.ErrorIs(t, ix.Upsert("a", []float32{1, 2, 3}, Metadata{}), types.ErrDimensionMismatch)
}

func TestIndex_RejectsEmpty(t *testing.T) {
	ix := New(0)
	assert.ErrorIs(t, ix.Upsert("a", nil, Metadata{}), ErrEmptyVector)
	assert.ErrorIs(t, ix.Upsert("", []float32{1}, Metadata{}), types.ErrEmptyDocumentID)
}

func TestIndex_UpsertReplaces(t *testing.T) {
	ix := New(0)
	require.NoError(t, ix.Upsert("a", []float32{1, 0}, Metadata{TopicLabel: "old"}))
	require.NoError(t, ix.Upsert("a", []float32{0, 1}, Metadata{TopicLabel: "new"}))

	assert.Equal(t, 1, ix.Len())
	rec, ok := ix.Get("a")
	require.True(t, ok)
	assert.Equal(t, []float32{0, 1}, rec.Vector)
	assert.Equal(t, "new", rec.Metadata.TopicLabel)
}

func TestIndex_UpsertCopiesInput(t *testing.T) {
	ix := New(0)
	v := []float32{1, 0}
	require.NoError(t, ix.Upsert("a", v, Metadata{}))
	v[0] = 0
	rec, _ := ix.Get("a")
	assert.Equal(t, []float32{1, 0}, rec.Vector)
}

func TestIndex_SearchOrdering(t *testing.T) {
	ix := New(0)
	require.NoError(t, ix.Upsert("far", []float32{0, 1}, Metadata{}))
	require.NoError(t, ix.Upsert("near", []float32{1, 0.1}, Metadata{}))
	require.NoError(t, ix.Upsert("mid", []float32{1, 1}, Metadata{}))

	hits, err := ix.Search([]float32{1, 0}, 0)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "near", hits[0].DocID)
	assert.Equal(t, "mid", hits[1].DocID)
	assert.Equal(t, "far", hits[2].DocID)
	assert.InDelta(t, 0.0, hits[2].Similarity, 1e-9)
}

func TestIndex_SearchTieBreak(t *testing.T) {
	ix := New(0)
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, ix.Upsert(id, []float32{1, 1}, Metadata{}))
	}
	hits, err := ix.Search([]float32{1, 1}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "a", hits[0].DocID)
	assert.Equal(t, "b", hits[1].DocID)
}

func TestIndex_SearchEmpty(t *testing.T) {
	ix := New(0)
	hits, err := ix.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestIndex_KLargerThanCorpus(t *testing.T) {
	ix := New(0)
	require.NoError(t, ix.Upsert("a", []float32{1, 0}, Metadata{}))
	hits, err := ix.Search([]float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestIndex_Remove(t *testing.T) {
	ix := New(0)
	require.NoError(t, ix.Upsert("a", []float32{1, 0}, Metadata{}))
	assert.True(t, ix.Remove("a"))
	assert.False(t, ix.Remove("a"))
	assert.Equal(t, 0, ix.Len())
	// Dimension stays pinned after the index empties.
	assert.Equal(t, 2, ix.Dimension())
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-6)
		})
	}
}

func TestSerialize(t *testing.T) {
	v := []float32{0.5, -1.25, 3}
	assert.Equal(t, v, Deserialize(Serialize(v)))
	assert.Len(t, Serialize(v), 12)
}
