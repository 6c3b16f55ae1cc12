package searcher

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dshills/sentirag/internal/corpus"
	"github.com/dshills/sentirag/internal/embedder"
	"github.com/dshills/sentirag/internal/generator"
	"github.com/dshills/sentirag/internal/lexical"
	"github.com/dshills/sentirag/internal/logging"
	"github.com/dshills/sentirag/internal/textproc"
	"github.com/dshills/sentirag/internal/vector"
	"github.com/dshills/sentirag/pkg/types"
)

const tracerName = "github.com/dshills/sentirag/internal/searcher"

// SearchMode selects which indexes take part in a query.
type SearchMode string

const (
	SearchModeHybrid  SearchMode = "hybrid"  // both sides, configured weights
	SearchModeVector  SearchMode = "vector"  // w_lexical forced to 0
	SearchModeKeyword SearchMode = "keyword" // w_vector forced to 0
)

// Normalization is the per-query score normalization method.
type Normalization string

const (
	NormMinMax Normalization = "minmax"
	NormZScore Normalization = "zscore"
)

// Weights are the fusion coefficients. A zero weight skips that index.
type Weights struct {
	Lexical float64 `json:"w_lexical"`
	Vector  float64 `json:"w_vector"`
}

// Config contains configuration for the searcher
type Config struct {
	Weights         Weights
	CandidateFactor int           // k_candidates = k * CandidateFactor (default: 2)
	Normalization   Normalization // default: minmax
	SnippetLength   int           // runes (default: 200)
	MaxK            int           // 0 means unbounded
	CacheSize       int           // 0 disables the answer cache
	CacheTTL        time.Duration // default: 5m
	GenerateTimeout time.Duration // default: 60s
}

func (c *Config) setDefaults() {
	if c.Weights.Lexical == 0 && c.Weights.Vector == 0 {
		c.Weights = Weights{Lexical: 0.5, Vector: 0.5}
	}
	if c.CandidateFactor < 1 {
		c.CandidateFactor = 2
	}
	if c.Normalization == "" {
		c.Normalization = NormMinMax
	}
	if c.SnippetLength <= 0 {
		c.SnippetLength = 200
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 5 * time.Minute
	}
	if c.GenerateTimeout <= 0 {
		c.GenerateTimeout = 60 * time.Second
	}
}

// SearchRequest contains parameters for a query.
type SearchRequest struct {
	Query string
	K     int
	Mode  SearchMode
	// Weights overrides the configured weights when non-nil.
	Weights *Weights
	// SkipGeneration returns citations only, with the no-generation answer.
	SkipGeneration bool
	NoCache        bool
}

// SearchResponse is the answer plus retrieval diagnostics.
type SearchResponse struct {
	Answer            types.Answer
	Results           []types.RetrievalResult
	Duration          time.Duration
	CacheHit          bool
	LexicalCandidates int
	VectorCandidates  int
	// VectorError is set when the query embedding failed and the answer
	// was ranked on the lexical side alone.
	VectorError string
}

// Searcher answers questions over the corpus with hybrid retrieval.
type Searcher struct {
	corpus    *corpus.Corpus
	embedder  embedder.Embedder
	analyzer  *textproc.Analyzer
	generator generator.Generator
	cfg       Config
	cache     *expirable.LRU[[32]byte, *SearchResponse]
	logger    *slog.Logger
	tracer    trace.Tracer
}

// Deps are the searcher collaborators. Generator and Logger may be nil.
type Deps struct {
	Corpus    *corpus.Corpus
	Embedder  embedder.Embedder
	Analyzer  *textproc.Analyzer
	Generator generator.Generator
	Logger    *slog.Logger
}

// New creates a Searcher. The analyzer must be the one used at ingestion so
// query tokens match indexed tokens.
func New(deps Deps, cfg Config) (*Searcher, error) {
	if deps.Corpus == nil {
		return nil, errors.New("searcher: corpus is required")
	}
	if deps.Embedder == nil {
		return nil, errors.New("searcher: embedder is required")
	}
	if deps.Analyzer == nil {
		deps.Analyzer = textproc.NewAnalyzer(nil)
	}
	if cfg.Weights.Lexical < 0 || cfg.Weights.Vector < 0 {
		return nil, fmt.Errorf("searcher: weights must be non-negative, got %+v", cfg.Weights)
	}
	switch cfg.Normalization {
	case "", NormMinMax, NormZScore:
	default:
		return nil, fmt.Errorf("searcher: unknown normalization %q", cfg.Normalization)
	}
	cfg.setDefaults()

	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	s := &Searcher{
		corpus:    deps.Corpus,
		embedder:  deps.Embedder,
		analyzer:  deps.Analyzer,
		generator: deps.Generator,
		cfg:       cfg,
		logger:    logger.With("component", "searcher"),
		tracer:    otel.Tracer(tracerName),
	}
	if cfg.CacheSize > 0 {
		s.cache = expirable.NewLRU[[32]byte, *SearchResponse](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return s, nil
}

// Search ranks the corpus against req.Query and assembles a cited answer.
// Errors wrap types.ErrQuery for malformed requests and never change state.
func (s *Searcher) Search(ctx context.Context, req SearchRequest) (*SearchResponse, error) {
	startTime := time.Now()

	weights, err := s.validateRequest(&req)
	if err != nil {
		return nil, err
	}

	ctx, span := s.tracer.Start(ctx, "searcher.search", trace.WithAttributes(
		attribute.Int("k", req.K),
		attribute.String("mode", string(req.Mode)),
	))
	defer span.End()

	version := s.corpus.Version()
	key := computeQueryHash(req, weights, version)
	if s.cache != nil && !req.NoCache {
		if cached, ok := s.cache.Get(key); ok {
			resp := copySearchResponse(cached)
			resp.CacheHit = true
			resp.Duration = time.Since(startTime)
			span.SetAttributes(attribute.Bool("cache_hit", true))
			return resp, nil
		}
	}

	resp, err := s.retrieve(ctx, req, weights)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	resp.Answer.Query = req.Query
	s.answer(ctx, req, resp)
	resp.Duration = time.Since(startTime)

	// Degraded answers are not cached so the next query retries.
	if s.cache != nil && !req.NoCache && resp.VectorError == "" && resp.Answer.GenerationError == "" {
		s.cache.Add(key, copySearchResponse(resp))
	}

	s.logger.DebugContext(ctx, "query answered",
		"k", req.K,
		"citations", len(resp.Answer.Sources),
		"lexical_candidates", resp.LexicalCandidates,
		"vector_candidates", resp.VectorCandidates,
		"generated", resp.Answer.Generated,
		"duration", resp.Duration)
	return resp, nil
}

func (s *Searcher) validateRequest(req *SearchRequest) (Weights, error) {
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		return Weights{}, fmt.Errorf("%w: query cannot be empty", types.ErrQuery)
	}
	if req.K <= 0 {
		return Weights{}, fmt.Errorf("%w: k must be positive, got %d", types.ErrQuery, req.K)
	}
	if s.cfg.MaxK > 0 && req.K > s.cfg.MaxK {
		return Weights{}, fmt.Errorf("%w: k must be at most %d, got %d", types.ErrQuery, s.cfg.MaxK, req.K)
	}

	w := s.cfg.Weights
	if req.Weights != nil {
		w = *req.Weights
	}
	switch req.Mode {
	case "", SearchModeHybrid:
		req.Mode = SearchModeHybrid
	case SearchModeVector:
		w.Lexical = 0
		if w.Vector == 0 {
			w.Vector = 1
		}
	case SearchModeKeyword:
		w.Vector = 0
		if w.Lexical == 0 {
			w.Lexical = 1
		}
	default:
		return Weights{}, fmt.Errorf("%w: unsupported search mode %q", types.ErrQuery, req.Mode)
	}
	if w.Lexical < 0 || w.Vector < 0 || math.IsNaN(w.Lexical) || math.IsNaN(w.Vector) {
		return Weights{}, fmt.Errorf("%w: weights must be non-negative", types.ErrQuery)
	}
	if w.Lexical == 0 && w.Vector == 0 {
		return Weights{}, fmt.Errorf("%w: at least one weight must be positive", types.ErrQuery)
	}
	return w, nil
}

// retrieve queries both indexes through one consistent corpus snapshot and
// fuses the candidates.
func (s *Searcher) retrieve(ctx context.Context, req SearchRequest, w Weights) (*SearchResponse, error) {
	resp := &SearchResponse{Answer: types.Answer{Sources: []types.Citation{}}}
	if s.corpus.Stats().Documents == 0 {
		return resp, nil
	}

	opts := corpus.RetrieveOptions{
		LexicalLimit: req.K * s.cfg.CandidateFactor,
		VectorLimit:  req.K * s.cfg.CandidateFactor,
		SkipLexical:  w.Lexical == 0,
		SkipVector:   w.Vector == 0,
	}
	if !opts.SkipLexical {
		opts.Tokens = s.analyzer.Analyze(req.Query)
	}
	if !opts.SkipVector {
		// Embedding happens before the corpus read lock is taken.
		vec, err := s.embedder.Embed(ctx, req.Query)
		switch {
		case errors.Is(err, types.ErrDimensionMismatch):
			return nil, err
		case err != nil && opts.SkipLexical:
			return nil, fmt.Errorf("failed to generate query embedding: %w", err)
		case err != nil:
			s.logger.WarnContext(ctx, "query embedding failed, ranking lexically", "error", err)
			resp.VectorError = err.Error()
			opts.SkipVector = true
		default:
			opts.Vector = vec
		}
	}

	r, err := s.corpus.Retrieve(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}
	resp.LexicalCandidates = len(r.Lexical)
	resp.VectorCandidates = len(r.Vector)

	if opts.SkipVector {
		w.Vector = 0
	}
	fused := Fuse(r.Lexical, r.Vector, w, s.cfg.Normalization)
	if len(fused) > req.K {
		fused = fused[:req.K]
	}
	resp.Results = fused
	resp.Answer.Sources = s.citations(fused, r.Docs)
	return resp, nil
}

func (s *Searcher) citations(results []types.RetrievalResult, docs map[string]types.Document) []types.Citation {
	out := make([]types.Citation, 0, len(results))
	for _, rr := range results {
		d, ok := docs[rr.DocumentID]
		if !ok {
			continue
		}
		out = append(out, types.Citation{
			Rank:         rr.Rank,
			DocumentID:   rr.DocumentID,
			Snippet:      snippet(d.Text, s.cfg.SnippetLength),
			Sentiment:    d.Sentiment,
			TopicID:      d.TopicID,
			TopicLabel:   d.TopicLabel,
			Metadata:     d.Metadata(),
			LexicalScore: rr.LexicalScore,
			VectorScore:  rr.VectorScore,
			FusedScore:   rr.FusedScore,
		})
	}
	return out
}

// answer fills in the generated text. Citations are never dropped here.
func (s *Searcher) answer(ctx context.Context, req SearchRequest, resp *SearchResponse) {
	a := &resp.Answer
	switch {
	case len(a.Sources) == 0:
		a.Answer = generator.NoContextAnswer
		return
	case s.generator == nil || req.SkipGeneration:
		a.Answer = generator.NoGenerationAnswer
		return
	}

	contexts := make([]string, len(a.Sources))
	for i, c := range a.Sources {
		contexts[i] = c.Snippet
	}

	ctx, span := s.tracer.Start(ctx, "searcher.generate", trace.WithAttributes(
		attribute.String("model", s.generator.Model()),
		attribute.Int("contexts", len(contexts)),
	))
	defer span.End()

	gctx, cancel := context.WithTimeout(ctx, s.cfg.GenerateTimeout)
	defer cancel()
	text, err := s.generator.Generate(gctx, req.Query, contexts)
	if err != nil {
		span.RecordError(err)
		s.logger.WarnContext(ctx, "generation failed, returning context fallback", "error", err)
		a.Answer = generator.FallbackAnswer(contexts)
		a.GenerationError = err.Error()
		return
	}
	a.Answer = text
	a.Generated = true
}

// Fuse normalizes each side, combines them with w and ranks the union.
// Ordering is fused score descending, then document id ascending.
func Fuse(lex []lexical.Hit, vec []vector.Hit, w Weights, method Normalization) []types.RetrievalResult {
	byID := make(map[string]*types.RetrievalResult, len(lex)+len(vec))
	get := func(id string) *types.RetrievalResult {
		r, ok := byID[id]
		if !ok {
			r = &types.RetrievalResult{DocumentID: id}
			byID[id] = r
		}
		return r
	}

	if w.Lexical > 0 {
		raw := make([]float64, len(lex))
		for i, h := range lex {
			raw[i] = h.Score
		}
		for i, n := range Normalize(raw, method) {
			r := get(lex[i].DocID)
			r.LexicalScore = lex[i].Score
			r.LexicalNorm = n
		}
	}
	if w.Vector > 0 {
		raw := make([]float64, len(vec))
		for i, h := range vec {
			raw[i] = h.Similarity
		}
		for i, n := range Normalize(raw, method) {
			r := get(vec[i].DocID)
			r.VectorScore = vec[i].Similarity
			r.VectorNorm = n
		}
	}

	results := make([]types.RetrievalResult, 0, len(byID))
	for _, r := range byID {
		r.FusedScore = w.Lexical*r.LexicalNorm + w.Vector*r.VectorNorm
		results = append(results, *r)
	}
	sortRankedResults(results)
	for i := range results {
		results[i].Rank = i + 1
	}
	return results
}

// Normalize rescales one side's scores so that every present candidate
// scores above 0, the contribution of a side that missed the document.
// Min-max maps into [0,1] and gives 1 to every score when all are equal.
// Z-score passes the standard score through a logistic into (0,1), so a
// score at the mean, and a lone or all-equal candidate, maps to 0.5.
func Normalize(scores []float64, method Normalization) []float64 {
	out := make([]float64, len(scores))
	if len(scores) == 0 {
		return out
	}
	switch method {
	case NormZScore:
		var mean float64
		for _, v := range scores {
			mean += v
		}
		mean /= float64(len(scores))
		var variance float64
		for _, v := range scores {
			variance += (v - mean) * (v - mean)
		}
		std := math.Sqrt(variance / float64(len(scores)))
		for i, v := range scores {
			z := 0.0
			if std > 0 {
				z = (v - mean) / std
			}
			out[i] = 1 / (1 + math.Exp(-z))
		}
	default:
		lo, hi := scores[0], scores[0]
		for _, v := range scores[1:] {
			lo = min(lo, v)
			hi = max(hi, v)
		}
		for i, v := range scores {
			if hi == lo {
				out[i] = 1
				continue
			}
			out[i] = (v - lo) / (hi - lo)
		}
	}
	return out
}

// sortRankedResults sorts by fused score descending with id as tie-break.
func sortRankedResults(results []types.RetrievalResult) {
	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		return results[i].DocumentID < results[j].DocumentID
	})
}

func snippet(text string, n int) string {
	r := []rune(strings.TrimSpace(text))
	if len(r) <= n {
		return string(r)
	}
	return string(r[:n])
}

// InvalidateCache drops every cached answer. Commits already change the
// cache key through the corpus version; this is for config reloads.
func (s *Searcher) InvalidateCache() {
	if s.cache != nil {
		s.cache.Purge()
	}
}

// copySearchResponse creates a deep copy of a SearchResponse
func copySearchResponse(src *SearchResponse) *SearchResponse {
	if src == nil {
		return nil
	}
	dst := *src
	dst.Results = append([]types.RetrievalResult(nil), src.Results...)
	dst.Answer.Sources = make([]types.Citation, len(src.Answer.Sources))
	for i, c := range src.Answer.Sources {
		c.Metadata = maps.Clone(c.Metadata)
		dst.Answer.Sources[i] = c
	}
	return &dst
}

// computeQueryHash keys the cache on everything that shapes the answer,
// including the corpus version so commits invalidate older entries.
func computeQueryHash(req SearchRequest, w Weights, version uint64) [32]byte {
	var data strings.Builder
	data.WriteString(req.Query)
	fmt.Fprintf(&data, "|%d|%s|%g|%g|%t|%d", req.K, req.Mode, w.Lexical, w.Vector, req.SkipGeneration, version)
	return sha256.Sum256([]byte(data.String()))
}
