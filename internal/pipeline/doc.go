// Package pipeline turns one content item's comments into queryable,
// annotated documents.
//
// # Basic Usage
//
//	p, err := pipeline.New(pipeline.Deps{
//	    Acquirer:   acq,
//	    Analyzer:   analyzer,
//	    Classifier: classifier,
//	    Topics:     topic.NewKeywordModel(topic.Config{}, analyzer.Tokenizer),
//	    Embedder:   emb,
//	    Storage:    store,
//	    Corpus:     corp,
//	    Exporter:   exporter,
//	    Logger:     logger,
//	}, pipeline.Config{Workers: 4})
//
//	res, err := p.Run(ctx, pipeline.Request{
//	    ContentID:   "7300000000000000000",
//	    Locator:     "https://www.tiktok.com/@shop/video/7300000000000000000",
//	    MaxComments: 100,
//	})
//
// # Stages
//
// Every run walks the same state machine:
//
//	PENDING -> ACQUIRING -> PROCESSING -> PERSISTING -> COMPLETED | PARTIAL
//	                  \____________\_____________\______> FAILED
//
// Inside PROCESSING the stages are clean, sentiment, topic and embed.
// Sentiment and embedding calls run on a bounded worker pool; each call
// has its own timeout.
//
// # Failure Policy
//
// A failure on a single comment drops that comment and is recorded on the
// run as an ItemFailure; the run ends PARTIAL. These are fatal and end the
// run FAILED with nothing visible to queries:
//
//   - acquisition errors or an empty acquisition
//   - a topic model error (topics are assigned to the whole batch)
//   - an embedding dimension mismatch
//   - a storage or index write error during persist
//   - every comment dropped
//   - cancellation of the run context
//
// # Persist
//
// The surviving documents of a run replace the previous content of the
// run's set key. The SQL transaction commits first; only then are the
// documents swapped into the lexical and vector indexes, so a failed
// persist leaves the previous set queryable.
//
// Runs for the same content id are serialized with a KeyedLock. Runs for
// different content ids proceed in parallel.
package pipeline
