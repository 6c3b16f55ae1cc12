package corpus

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/sentirag/internal/lexical"
	"github.com/dshills/sentirag/internal/vector"
	"github.com/dshills/sentirag/pkg/types"
)

// ErrNoTokens is returned when a document carries no index terms.
var ErrNoTokens = errors.New("corpus: document has no tokens")

// PersistFunc writes a staged batch to durable storage. It runs while the
// commit lock is held and before the batch becomes visible to queries.
type PersistFunc func(ctx context.Context) error

// Corpus owns the lexical and vector indexes plus the document records they
// point at, and keeps them consistent: a document is either in both indexes
// or in neither.
type Corpus struct {
	// mu guards visibility. Queries hold the read side for the duration of
	// a retrieval, commits hold the write side only while swapping.
	mu sync.RWMutex
	// commitMu serializes commits so validation, persist and swap happen
	// against a stable index state.
	commitMu sync.Mutex

	lex  *lexical.Index
	vec  *vector.Index
	docs map[string]*types.Document
	sets map[string]map[string]struct{}

	version atomic.Uint64
}

// New creates an empty corpus. dim pins the vector dimension when positive.
func New(params lexical.Params, dim int) *Corpus {
	return &Corpus{
		lex:  lexical.New(params),
		vec:  vector.New(dim),
		docs: make(map[string]*types.Document),
		sets: make(map[string]map[string]struct{}),
	}
}

// Validate checks a batch against the current index state without writing.
func (c *Corpus) Validate(docs []types.Document) error {
	dim := c.vec.Dimension()
	seen := make(map[string]struct{}, len(docs))
	for i := range docs {
		d := &docs[i]
		if d.ID == "" {
			return types.ErrEmptyDocumentID
		}
		if _, dup := seen[d.ID]; dup {
			return fmt.Errorf("corpus: duplicate document id %s in batch", d.ID)
		}
		seen[d.ID] = struct{}{}
		if len(d.Tokens) == 0 {
			return fmt.Errorf("%w: %s", ErrNoTokens, d.ID)
		}
		if len(d.Vector) == 0 {
			return fmt.Errorf("%w: %s", vector.ErrEmptyVector, d.ID)
		}
		if dim == 0 {
			dim = len(d.Vector)
		}
		if len(d.Vector) != dim {
			return fmt.Errorf("%w: expected %d, document %s has %d",
				types.ErrDimensionMismatch, dim, d.ID, len(d.Vector))
		}
	}
	return nil
}

// ReplaceSet makes docs the complete visible content of setKey. Documents
// previously in the set but absent from docs are removed. persist, when
// non-nil, runs after validation and before the swap; if it fails the
// visible state is untouched and the error wraps types.ErrIndexWrite.
func (c *Corpus) ReplaceSet(ctx context.Context, setKey string, docs []types.Document, persist PersistFunc) error {
	c.commitMu.Lock()
	defer c.commitMu.Unlock()

	if err := c.Validate(docs); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if persist != nil {
		if err := persist(ctx); err != nil {
			if errors.Is(err, types.ErrIndexWrite) {
				return err
			}
			return fmt.Errorf("%w: %w", types.ErrIndexWrite, err)
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	for id := range c.sets[setKey] {
		c.removeLocked(id)
	}
	members := make(map[string]struct{}, len(docs))
	for i := range docs {
		d := docs[i]
		// A document id lives in exactly one set, so a move evicts it from
		// its old set first.
		if prev, ok := c.docs[d.ID]; ok && prev.SetKey != setKey {
			c.removeLocked(d.ID)
		}
		if err := c.addLocked(&d, setKey); err != nil {
			// Validation makes this unreachable; keep both indexes aligned
			// regardless.
			c.removeLocked(d.ID)
			return fmt.Errorf("%w: %w", types.ErrIndexWrite, err)
		}
		members[d.ID] = struct{}{}
	}
	if len(members) == 0 {
		delete(c.sets, setKey)
	} else {
		c.sets[setKey] = members
	}
	c.version.Add(1)
	return nil
}

// Load hydrates the corpus from storage, grouping documents by set.
func (c *Corpus) Load(ctx context.Context, docs []types.Document) error {
	bySet := make(map[string][]types.Document)
	for _, d := range docs {
		bySet[d.SetKey] = append(bySet[d.SetKey], d)
	}
	keys := make([]string, 0, len(bySet))
	for k := range bySet {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if err := c.ReplaceSet(ctx, k, bySet[k], nil); err != nil {
			return fmt.Errorf("load set %s: %w", k, err)
		}
	}
	return nil
}

func (c *Corpus) addLocked(d *types.Document, setKey string) error {
	d.SetKey = setKey
	if err := c.lex.Index(d.ID, d.Tokens); err != nil {
		return err
	}
	meta := vector.Metadata{
		ContentID:   d.ContentID,
		ContentDate: d.ContentDate,
		Sentiment:   d.Sentiment,
		TopicID:     d.TopicID,
		TopicLabel:  d.TopicLabel,
	}
	if err := c.vec.Upsert(d.ID, d.Vector, meta); err != nil {
		return err
	}
	c.docs[d.ID] = d
	return nil
}

func (c *Corpus) removeLocked(id string) {
	if d, ok := c.docs[id]; ok {
		if members := c.sets[d.SetKey]; members != nil {
			delete(members, id)
		}
	}
	c.lex.Remove(id)
	c.vec.Remove(id)
	delete(c.docs, id)
}

// RetrieveOptions selects which sides to query and how deep.
type RetrieveOptions struct {
	Tokens       []string
	Vector       []float32
	LexicalLimit int
	VectorLimit  int
	SkipLexical  bool
	SkipVector   bool
}

// Retrieval is the raw output of both indexes plus the documents they
// reference, captured under a single read lock.
type Retrieval struct {
	Lexical []lexical.Hit
	Vector  []vector.Hit
	Docs    map[string]types.Document
	Version uint64
}

// Retrieve queries both indexes concurrently against one consistent state.
func (c *Corpus) Retrieve(ctx context.Context, opts RetrieveOptions) (*Retrieval, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := &Retrieval{Docs: make(map[string]types.Document), Version: c.version.Load()}

	g, gctx := errgroup.WithContext(ctx)
	if !opts.SkipLexical {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out.Lexical = c.lex.Score(opts.Tokens, opts.LexicalLimit)
			return nil
		})
	}
	if !opts.SkipVector {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			hits, err := c.vec.Search(opts.Vector, opts.VectorLimit)
			if err != nil {
				return err
			}
			out.Vector = hits
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for _, h := range out.Lexical {
		if d, ok := c.docs[h.DocID]; ok {
			out.Docs[h.DocID] = *d
		}
	}
	for _, h := range out.Vector {
		if d, ok := c.docs[h.DocID]; ok {
			out.Docs[h.DocID] = *d
		}
	}
	return out, nil
}

// Document returns a copy of the record for id.
func (c *Corpus) Document(id string) (types.Document, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.docs[id]
	if !ok {
		return types.Document{}, false
	}
	return *d, true
}

// SetDocuments returns the sorted document ids visible for setKey.
func (c *Corpus) SetDocuments(setKey string) []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]string, 0, len(c.sets[setKey]))
	for id := range c.sets[setKey] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Inconsistent lists document ids present in one index but not the other,
// or present in an index without a document record. It is empty whenever
// the dual-index invariant holds.
func (c *Corpus) Inconsistent() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var bad []string
	for id := range c.docs {
		if !c.lex.Has(id) || !c.vec.Has(id) {
			bad = append(bad, id)
		}
	}
	if c.lex.Len() != len(c.docs) || c.vec.Len() != len(c.docs) {
		bad = append(bad, fmt.Sprintf("count mismatch: docs=%d lexical=%d vector=%d",
			len(c.docs), c.lex.Len(), c.vec.Len()))
	}
	sort.Strings(bad)
	return bad
}

// Stats describes the corpus.
type Stats struct {
	Documents  int    `json:"documents"`
	Sets       int    `json:"sets"`
	Vocabulary int    `json:"vocabulary"`
	Dimension  int    `json:"dimension"`
	Version    uint64 `json:"version"`
}

// Stats returns a point-in-time summary.
func (c *Corpus) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return Stats{
		Documents:  len(c.docs),
		Sets:       len(c.sets),
		Vocabulary: c.lex.Vocabulary(),
		Dimension:  c.vec.Dimension(),
		Version:    c.version.Load(),
	}
}

// Version increments on every successful commit.
func (c *Corpus) Version() uint64 {
	return c.version.Load()
}

// Dimension returns the pinned vector dimension, 0 if still unset.
func (c *Corpus) Dimension() int {
	return c.vec.Dimension()
}
