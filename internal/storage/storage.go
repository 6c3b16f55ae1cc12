package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dshills/sentirag/pkg/types"
)

var (
	// ErrNotFound is returned when a requested entity doesn't exist
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when trying to create a duplicate entity
	ErrAlreadyExists = errors.New("already exists")
)

// Storage defines the interface for persisting runs, annotated comments and
// the queryable corpus behind both indexes.
type Storage interface {
	// Run operations
	CreateRun(ctx context.Context, run *types.Run) error
	// UpdateRun fails with types.ErrRunFinalized once the stored run is terminal.
	UpdateRun(ctx context.Context, run *types.Run) error
	GetRun(ctx context.Context, id string) (*types.Run, error)
	ListRuns(ctx context.Context, contentID string, limit int) ([]*types.Run, error)

	// Annotated comment history, keyed by run
	InsertComments(ctx context.Context, runID string, comments []types.AnnotatedComment) error
	ListComments(ctx context.Context, runID string) ([]types.AnnotatedComment, error)

	// Queryable corpus: documents, postings and embeddings
	DeleteSet(ctx context.Context, setKey string) (int, error)
	UpsertDocument(ctx context.Context, doc *types.Document) error
	ListDocuments(ctx context.Context) ([]types.Document, error)
	CountDocuments(ctx context.Context, setKey string) (int, error)

	// Insight operations
	UpsertInsight(ctx context.Context, setKey string, insight *types.Insight) error
	GetInsight(ctx context.Context, setKey string) (*types.Insight, error)

	// Status operations
	GetStatus(ctx context.Context) (*Status, error)

	// Database operations
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// Status contains storage-level counters.
type Status struct {
	Backend    string `json:"backend"`
	Runs       int    `json:"runs"`
	Comments   int    `json:"comments"`
	Documents  int    `json:"documents"`
	Postings   int    `json:"postings"`
	Embeddings int    `json:"embeddings"`
	Sets       int    `json:"sets"`
}

// WithTx runs fn inside a transaction, committing on success and rolling
// back on error or panic.
func WithTx(ctx context.Context, s Storage, fn func(tx Tx) error) (err error) {
	tx, err := s.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Batch is one finalized ingestion batch ready for the persist step.
type Batch struct {
	RunID     string
	SetKey    string
	Comments  []types.AnnotatedComment
	Documents []types.Document
	Insight   *types.Insight
}

// PersistBatch replaces the stored corpus of batch.SetKey in a single
// transaction: the previous documents of the set (and their postings and
// embeddings) are removed and the new ones written alongside the run's
// comment history and insight.
func PersistBatch(ctx context.Context, s Storage, batch *Batch) error {
	return WithTx(ctx, s, func(tx Tx) error {
		if _, err := tx.DeleteSet(ctx, batch.SetKey); err != nil {
			return fmt.Errorf("delete set %s: %w", batch.SetKey, err)
		}
		if err := tx.InsertComments(ctx, batch.RunID, batch.Comments); err != nil {
			return fmt.Errorf("insert comments: %w", err)
		}
		for i := range batch.Documents {
			if err := tx.UpsertDocument(ctx, &batch.Documents[i]); err != nil {
				return fmt.Errorf("upsert document %s: %w", batch.Documents[i].ID, err)
			}
		}
		if batch.Insight != nil {
			if err := tx.UpsertInsight(ctx, batch.SetKey, batch.Insight); err != nil {
				return fmt.Errorf("upsert insight: %w", err)
			}
		}
		return nil
	})
}

// tokensFromCounts expands stored term frequencies back into a token list,
// terms in lexical order.
func tokensFromCounts(tf map[string]int) []string {
	terms := make([]string, 0, len(tf))
	n := 0
	for term, c := range tf {
		terms = append(terms, term)
		n += c
	}
	sort.Strings(terms)
	out := make([]string, 0, n)
	for _, term := range terms {
		for i := 0; i < tf[term]; i++ {
			out = append(out, term)
		}
	}
	return out
}
