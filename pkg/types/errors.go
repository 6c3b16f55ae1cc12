package types

import (
	"context"
	"errors"
)

// Error taxonomy shared by the pipeline, the indexes and the query engine.
// Callers wrap these with fmt.Errorf("%w: ...") and test with errors.Is.
var (
	// ErrAcquisition is fatal to an ingestion run.
	ErrAcquisition = errors.New("acquisition failed")
	// ErrClassification is recoverable per comment, except when the topic
	// model fails for the whole batch.
	ErrClassification = errors.New("classification failed")
	// ErrEmbedding is recoverable per comment.
	ErrEmbedding = errors.New("embedding failed")
	// ErrIndexWrite is fatal and rolls back the persist step.
	ErrIndexWrite = errors.New("index write failed")
	// ErrDimensionMismatch signals a configuration bug: vectors of a
	// different length than the index was created with.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrQuery signals a malformed query request.
	ErrQuery = errors.New("invalid query")
	// ErrNoComments is returned when every comment was dropped before persist.
	ErrNoComments = errors.New("no comments survived processing")
)

// Domain validation errors
var (
	ErrInvalidRank         = errors.New("rank must be >= 1")
	ErrEmptyDocumentID     = errors.New("document id cannot be empty")
	ErrInvalidSentiment    = errors.New("unknown sentiment label")
	ErrInvalidConfidence   = errors.New("confidence must be between 0 and 1")
	ErrEmptyContentID      = errors.New("content id cannot be empty")
	ErrInvalidContentID    = errors.New("content id contains a reserved character")
	ErrDuplicateComment    = errors.New("duplicate comment id")
	ErrRunFinalized        = errors.New("run already finalized")
	ErrInvalidTransition   = errors.New("invalid run state transition")
	ErrInvalidMaxComments  = errors.New("max comments out of range")
	ErrInvalidSuffixPolicy = errors.New("unknown suffix policy")
)

// ErrorKind names an error class for run records and API responses.
type ErrorKind string

const (
	KindNone              ErrorKind = ""
	KindAcquisition       ErrorKind = "AcquisitionError"
	KindClassification    ErrorKind = "ClassificationError"
	KindEmbedding         ErrorKind = "EmbeddingError"
	KindIndexWrite        ErrorKind = "IndexWriteError"
	KindDimensionMismatch ErrorKind = "DimensionMismatchError"
	KindQuery             ErrorKind = "QueryError"
	KindCanceled          ErrorKind = "Canceled"
	KindInternal          ErrorKind = "InternalError"
)

// KindOf maps err onto the taxonomy. Dimension mismatch is checked before
// index write because the former is usually wrapped by the latter.
func KindOf(err error) ErrorKind {
	switch {
	case err == nil:
		return KindNone
	case errors.Is(err, ErrDimensionMismatch):
		return KindDimensionMismatch
	case errors.Is(err, ErrAcquisition):
		return KindAcquisition
	case errors.Is(err, ErrClassification), errors.Is(err, ErrNoComments):
		return KindClassification
	case errors.Is(err, ErrEmbedding):
		return KindEmbedding
	case errors.Is(err, ErrIndexWrite):
		return KindIndexWrite
	case errors.Is(err, ErrQuery):
		return KindQuery
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	default:
		return KindInternal
	}
}

// IsInvalidRequest reports whether err was caused by the caller's input
// rather than by a collaborator or the store.
func IsInvalidRequest(err error) bool {
	return errors.Is(err, ErrQuery) ||
		errors.Is(err, ErrEmptyContentID) ||
		errors.Is(err, ErrInvalidContentID) ||
		errors.Is(err, ErrInvalidMaxComments) ||
		errors.Is(err, ErrInvalidSuffixPolicy)
}
