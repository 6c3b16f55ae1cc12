// Package storage persists ingestion runs, annotated comment history and the
// queryable corpus (documents, lexical postings and embeddings).
//
// Two backends implement Storage: SQLite (the default, see NewSQLiteStorage)
// and PostgreSQL with pgvector (NewPostgresStorage). Both are migrated on
// open.
//
// # Tables
//
//   - ingestion_runs: run state, stage summaries, per-item failures, artifacts
//   - annotated_comments: comments as annotated by a run, immutable
//   - documents: one row per visible document, grouped by set_key
//   - postings: term frequencies per document
//   - embeddings: vector per document
//   - content_insights: topic insight per set
//
// # Replacing a set
//
// PersistBatch deletes the previous documents of a set and writes the new
// batch in one transaction. Postings and embeddings cascade with their
// document:
//
//	err := storage.PersistBatch(ctx, db, &storage.Batch{
//	    RunID:     run.ID,
//	    SetKey:    run.SetKey,
//	    Comments:  annotated,
//	    Documents: docs,
//	    Insight:   insight,
//	})
//
// # Build Tags
//
// The SQLite backend supports two drivers:
//
//   - default: modernc.org/sqlite, pure Go
//   - cgo_sqlite: github.com/mattn/go-sqlite3, requires a C compiler
//
//     CGO_ENABLED=1 go build -tags "cgo_sqlite" ./...
package storage
