package vector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/dshills/sentirag/pkg/types"
)

// ErrEmptyVector is returned for zero-length embeddings.
var ErrEmptyVector = errors.New("vector: empty embedding")

// Metadata travels with a vector record.
type Metadata struct {
	ContentID   string
	ContentDate string
	Sentiment   types.Sentiment
	TopicID     int
	TopicLabel  string
}

// Record is one stored embedding.
type Record struct {
	DocID    string
	Vector   []float32
	Metadata Metadata
	norm     float64
}

// Hit is a scored document.
type Hit struct {
	DocID      string
	Similarity float64
}

// Index is a flat cosine-similarity index. Its dimension is fixed by the
// first insertion; later mismatches fail with types.ErrDimensionMismatch.
type Index struct {
	mu      sync.RWMutex
	dim     int
	records map[string]*Record
}

// New creates an empty index. A positive dim pins the dimension up front.
func New(dim int) *Index {
	return &Index{dim: dim, records: make(map[string]*Record)}
}

// Dimension returns the fixed dimension, or 0 before the first insertion.
func (ix *Index) Dimension() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.dim
}

// Check validates vec against the index dimension without inserting.
func (ix *Index) Check(vec []float32) error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return checkDim(ix.dim, vec)
}

func checkDim(dim int, vec []float32) error {
	if len(vec) == 0 {
		return ErrEmptyVector
	}
	if dim > 0 && len(vec) != dim {
		return fmt.Errorf("%w: index has %d, got %d", types.ErrDimensionMismatch, dim, len(vec))
	}
	return nil
}

// Upsert replaces any prior record for docID.
func (ix *Index) Upsert(docID string, vec []float32, meta Metadata) error {
	if docID == "" {
		return types.ErrEmptyDocumentID
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()
	if err := checkDim(ix.dim, vec); err != nil {
		return err
	}
	if ix.dim == 0 {
		ix.dim = len(vec)
	}
	stored := make([]float32, len(vec))
	copy(stored, vec)
	ix.records[docID] = &Record{DocID: docID, Vector: stored, Metadata: meta, norm: norm(stored)}
	return nil
}

// Remove drops docID and reports whether it was present.
func (ix *Index) Remove(docID string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	_, ok := ix.records[docID]
	delete(ix.records, docID)
	return ok
}

// Get returns a copy of the record for docID.
func (ix *Index) Get(docID string) (Record, bool) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	r, ok := ix.records[docID]
	if !ok {
		return Record{}, false
	}
	out := *r
	out.Vector = append([]float32(nil), r.Vector...)
	return out, true
}

// Has reports whether docID is stored.
func (ix *Index) Has(docID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.records[docID]
	return ok
}

// Len returns the number of records.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records)
}

// Search returns up to k nearest records by cosine similarity, ties broken
// by document id ascending. k <= 0 returns every record.
func (ix *Index) Search(query []float32, k int) ([]Hit, error) {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.records) == 0 {
		return []Hit{}, nil
	}
	if err := checkDim(ix.dim, query); err != nil {
		return nil, err
	}

	qn := norm(query)
	hits := make([]Hit, 0, len(ix.records))
	for id, r := range ix.records {
		hits = append(hits, Hit{DocID: id, Similarity: cosine(query, qn, r.Vector, r.norm)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].DocID < hits[j].DocID
	})
	if k > 0 && len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func norm(v []float32) float64 {
	var s float64
	for _, x := range v {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func cosine(a []float32, an float64, b []float32, bn float64) float64 {
	if an == 0 || bn == 0 {
		return 0
	}
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot / (an * bn)
}

// CosineSimilarity computes the cosine of the angle between a and b.
// Mismatched lengths or zero vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	return cosine(a, norm(a), b, norm(b))
}

// Serialize encodes a vector as little-endian float32s for blob storage.
func Serialize(vec []float32) []byte {
	blob := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// Deserialize decodes a blob produced by Serialize.
func Deserialize(blob []byte) []float32 {
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}
