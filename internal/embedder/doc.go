// Package embedder turns comment and query text into vectors for the
// vector index.
//
// Three providers are available:
//
//   - jina: Jina AI embeddings API (JINA_API_KEY)
//   - openai: OpenAI embeddings API (OPENAI_API_KEY)
//   - local: offline feature hashing over the shared text analyzer
//
// The same embedder must serve ingestion and queries; vectors from
// different providers are not comparable and differ in dimension.
//
//	emb, err := embedder.New(embedder.Config{Provider: "local", CacheSize: 10000}, analyzer)
//	if err != nil {
//	    return err
//	}
//	vec, err := emb.Embed(ctx, "rasanya enak banget")
//
// # Errors
//
// Failures wrap types.ErrEmbedding, which the pipeline treats as a
// per-comment failure. A provider returning vectors of an unexpected length
// wraps types.ErrDimensionMismatch instead and fails the run.
//
// # Caching
//
// An LRU cache keyed by SHA-256 of provider, model and text avoids
// re-embedding repeated comments and queries. Cached vectors are copied on
// read and write.
//
// # Retries
//
// HTTP providers retry transient failures (network errors, 5xx, 429) with
// exponential backoff; other 4xx responses fail immediately.
package embedder
