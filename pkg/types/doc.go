// Package types provides shared type definitions for SentiRAG.
//
// # Core Types
//
// Comment is a raw comment returned by acquisition. AnnotatedComment adds
// the sentiment and topic assigned by the pipeline:
//
//	ac := types.AnnotatedComment{
//	    Comment:    types.Comment{ID: "c1", Text: "bagus sekali", ContentID: "x1"},
//	    Sentiment:  types.SentimentPositive,
//	    Confidence: 0.93,
//	    TopicID:    0,
//	    TopicLabel: "rasa",
//	}
//
// Document is the queryable form held by both the lexical and the vector
// index. Its ID is content-addressed by artifact set and comment id, so a
// re-run for the same set overwrites instead of duplicating:
//
//	id := types.DocumentID("x1", "c1") // "x1:c1"
//
// # Runs
//
// Run records one execution of the ingestion pipeline and follows a fixed
// state machine:
//
//	PENDING -> ACQUIRING -> PROCESSING -> PERSISTING -> COMPLETED | PARTIAL | FAILED
//
// Any non-terminal state may move to FAILED. Terminal runs reject further
// transitions with ErrRunFinalized.
//
// # Errors
//
// The error taxonomy is expressed as sentinel errors (ErrAcquisition,
// ErrClassification, ErrEmbedding, ErrIndexWrite, ErrDimensionMismatch,
// ErrQuery). KindOf maps any wrapped error back to its ErrorKind.
package types
