package lexical

import (
	"errors"
	"math"
	"sort"
	"sync"
)

// ErrEmptyDocID is returned when indexing without a document id.
var ErrEmptyDocID = errors.New("lexical: empty document id")

// Params controls BM25 saturation (K1) and length normalization (B).
type Params struct {
	K1 float64
	B  float64
}

// DefaultParams matches the common Okapi defaults.
func DefaultParams() Params {
	return Params{K1: 1.5, B: 0.75}
}

// Posting is one (document, term frequency) pair.
type Posting struct {
	DocID string
	TF    int
}

// Hit is a scored document.
type Hit struct {
	DocID string
	Score float64
}

// Index is an in-memory BM25 inverted index. Posting lists are kept sorted
// by document id so scoring is deterministic for a given index state.
type Index struct {
	mu       sync.RWMutex
	params   Params
	postings map[string][]Posting
	docTerms map[string]map[string]int
	docLen   map[string]int
	totalLen int
}

// New creates an empty index.
func New(params Params) *Index {
	if params.K1 <= 0 {
		params.K1 = DefaultParams().K1
	}
	if params.B < 0 || params.B > 1 {
		params.B = DefaultParams().B
	}
	return &Index{
		params:   params,
		postings: make(map[string][]Posting),
		docTerms: make(map[string]map[string]int),
		docLen:   make(map[string]int),
	}
}

// Index inserts or replaces the postings for docID. Re-indexing fully
// replaces the prior contribution. An empty token list removes the document.
func (ix *Index) Index(docID string, tokens []string) error {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return ix.IndexCounts(docID, tf)
}

// IndexCounts is Index for callers that already hold term frequencies,
// such as hydration from storage.
func (ix *Index) IndexCounts(docID string, tf map[string]int) error {
	if docID == "" {
		return ErrEmptyDocID
	}
	ix.mu.Lock()
	defer ix.mu.Unlock()

	ix.removeLocked(docID)

	length := 0
	terms := make(map[string]int, len(tf))
	for term, n := range tf {
		if term == "" || n <= 0 {
			continue
		}
		terms[term] = n
		length += n
		ix.postings[term] = insertSorted(ix.postings[term], Posting{DocID: docID, TF: n})
	}
	if length == 0 {
		return nil
	}
	ix.docTerms[docID] = terms
	ix.docLen[docID] = length
	ix.totalLen += length
	return nil
}

// Remove drops docID. It reports whether the document was present.
func (ix *Index) Remove(docID string) bool {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	return ix.removeLocked(docID)
}

func (ix *Index) removeLocked(docID string) bool {
	terms, ok := ix.docTerms[docID]
	if !ok {
		return false
	}
	for term := range terms {
		list := ix.postings[term]
		i := sort.Search(len(list), func(i int) bool { return list[i].DocID >= docID })
		if i < len(list) && list[i].DocID == docID {
			list = append(list[:i], list[i+1:]...)
		}
		if len(list) == 0 {
			delete(ix.postings, term)
		} else {
			ix.postings[term] = list
		}
	}
	ix.totalLen -= ix.docLen[docID]
	delete(ix.docTerms, docID)
	delete(ix.docLen, docID)
	return true
}

func insertSorted(list []Posting, p Posting) []Posting {
	i := sort.Search(len(list), func(i int) bool { return list[i].DocID >= p.DocID })
	if i < len(list) && list[i].DocID == p.DocID {
		list[i] = p
		return list
	}
	list = append(list, Posting{})
	copy(list[i+1:], list[i:])
	list[i] = p
	return list
}

// Score ranks documents against the query tokens with BM25. Repeated query
// tokens contribute once per occurrence. Results are ordered by score
// descending, then document id ascending. limit <= 0 returns every match.
// An empty query returns an empty result.
func (ix *Index) Score(tokens []string, limit int) []Hit {
	if len(tokens) == 0 {
		return []Hit{}
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	n := len(ix.docLen)
	if n == 0 {
		return []Hit{}
	}
	avgdl := float64(ix.totalLen) / float64(n)
	k1, b := ix.params.K1, ix.params.B

	scores := make(map[string]float64)
	for _, term := range tokens {
		list := ix.postings[term]
		if len(list) == 0 {
			continue
		}
		idf := ix.idf(len(list), n)
		for _, p := range list {
			tf := float64(p.TF)
			dl := float64(ix.docLen[p.DocID])
			scores[p.DocID] += idf * (tf * (k1 + 1)) / (tf + k1*(1-b+b*dl/avgdl))
		}
	}

	hits := make([]Hit, 0, len(scores))
	for id, s := range scores {
		hits = append(hits, Hit{DocID: id, Score: s})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].DocID < hits[j].DocID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// idf uses the non-negative BM25+ style variant so very common terms never
// subtract from a document's score.
func (ix *Index) idf(df, n int) float64 {
	return math.Log(1 + (float64(n)-float64(df)+0.5)/(float64(df)+0.5))
}

// Postings returns a copy of the posting list for term.
func (ix *Index) Postings(term string) []Posting {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	list := ix.postings[term]
	out := make([]Posting, len(list))
	copy(out, list)
	return out
}

// Terms returns a copy of the term frequencies recorded for docID.
func (ix *Index) Terms(docID string) map[string]int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	terms, ok := ix.docTerms[docID]
	if !ok {
		return nil
	}
	out := make(map[string]int, len(terms))
	for k, v := range terms {
		out[k] = v
	}
	return out
}

// Has reports whether docID has postings.
func (ix *Index) Has(docID string) bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	_, ok := ix.docTerms[docID]
	return ok
}

// Len returns the number of indexed documents.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.docLen)
}

// Vocabulary returns the number of distinct terms.
func (ix *Index) Vocabulary() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.postings)
}
