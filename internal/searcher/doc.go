// Package searcher answers questions over the comment corpus with hybrid
// lexical + semantic retrieval and an optional generated answer.
//
// # Basic Usage
//
//	s, err := searcher.New(searcher.Deps{
//	    Corpus:    corp,
//	    Embedder:  emb,
//	    Analyzer:  analyzer,  // must match the ingestion analyzer
//	    Generator: gen,       // optional
//	}, searcher.Config{CacheSize: 256})
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    Query: "bagaimana rasanya?",
//	    K:     5,
//	})
//
//	fmt.Println(resp.Answer.Answer)
//	for _, c := range resp.Answer.Sources {
//	    fmt.Printf("[%d] %.3f %s (%s, %s)\n",
//	        c.Rank, c.FusedScore, c.Snippet, c.Sentiment, c.TopicLabel)
//	}
//
// # Search Modes
//
//   - Hybrid (default): both indexes with the configured weights
//   - Vector: embeddings only, no tokenization of the query
//   - Keyword: BM25 only, no embedding call (works offline)
//
// A request may also override the weights directly. A zero weight skips
// that index entirely.
//
// # Fusion
//
// Each index returns up to k * CandidateFactor candidates. Scores are
// normalized per query and per side:
//
//	minmax: (s - min) / (max - min), or 1 when every score is equal
//	zscore: (s - mean) / std, or 0 when std is 0
//
// and combined over the union of ids:
//
//	fused = w_lexical * n_lex + w_vector * n_vec
//
// A document missing from one side contributes 0 for that side. Results
// sort by fused score descending and then by document id ascending, so
// equal scores always come back in the same order.
//
// # Answers
//
//   - no citations: "Tidak ada dokumen relevan yang ditemukan."
//   - no generator: a fixed no-generation answer, citations still returned
//   - generator error: the top contexts as a fallback answer plus
//     GenerationError
//
// # Caching
//
// Answers are cached in an expiring LRU keyed by query, k, mode, weights
// and the corpus version. Every successful ingestion bumps the version, so
// cached answers never outlive the corpus they were computed from. Answers
// produced in a degraded state are not cached.
package searcher
