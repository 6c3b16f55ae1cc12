package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dshills/sentirag/internal/vector"
	"github.com/dshills/sentirag/pkg/types"
)

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite benefits from single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// Enable foreign keys
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

func (t *sqliteTx) querier() querier {
	return t.tx
}

func (s *SQLiteStorage) querier() querier {
	return s.db
}

// Run operations

const runColumns = `id, content_id, set_key, locator, content_date, max_comments,
	suffix_policy, suffix_label, state, stages, failures, artifacts,
	error_kind, error, persisted, started_at, finished_at`

func (s *SQLiteStorage) createRunWithQuerier(ctx context.Context, q querier, run *types.Run) error {
	stages, failures, artifacts, err := encodeRunJSON(run)
	if err != nil {
		return err
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	query := `INSERT INTO ingestion_runs (` + runColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = q.ExecContext(ctx, query,
		run.ID, run.ContentID, run.SetKey, run.Locator, run.ContentDate, run.MaxComments,
		string(run.Suffix.Policy), run.Suffix.Label, string(run.State), stages, failures, artifacts,
		string(run.ErrorKind), run.Error, run.Persisted, run.StartedAt, nullTime(run.FinishedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("run %s: %w", run.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) CreateRun(ctx context.Context, run *types.Run) error {
	return s.createRunWithQuerier(ctx, s.querier(), run)
}

func (s *SQLiteStorage) updateRunWithQuerier(ctx context.Context, q querier, run *types.Run) error {
	stages, failures, artifacts, err := encodeRunJSON(run)
	if err != nil {
		return err
	}
	query := `
		UPDATE ingestion_runs
		SET state = ?, stages = ?, failures = ?, artifacts = ?, error_kind = ?, error = ?,
		    persisted = ?, finished_at = ?
		WHERE id = ? AND state NOT IN ('COMPLETED', 'PARTIAL', 'FAILED')
	`
	res, err := q.ExecContext(ctx, query,
		string(run.State), stages, failures, artifacts, string(run.ErrorKind), run.Error,
		run.Persisted, nullTime(run.FinishedAt), run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.getRunWithQuerier(ctx, q, run.ID); err != nil {
			return err
		}
		return fmt.Errorf("run %s: %w", run.ID, types.ErrRunFinalized)
	}
	return nil
}

func (s *SQLiteStorage) UpdateRun(ctx context.Context, run *types.Run) error {
	return s.updateRunWithQuerier(ctx, s.querier(), run)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row rowScanner) (*types.Run, error) {
	var (
		run                         types.Run
		locator, date, label        sql.NullString
		policy, state               string
		stages, failures, artifacts string
		errKind, errMsg             sql.NullString
		finished                    sql.NullTime
	)
	err := row.Scan(&run.ID, &run.ContentID, &run.SetKey, &locator, &date, &run.MaxComments,
		&policy, &label, &state, &stages, &failures, &artifacts,
		&errKind, &errMsg, &run.Persisted, &run.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	run.Locator = locator.String
	run.ContentDate = date.String
	run.Suffix = types.Suffix{Policy: types.SuffixPolicy(policy), Label: label.String}
	run.State = types.RunState(state)
	run.ErrorKind = types.ErrorKind(errKind.String)
	run.Error = errMsg.String
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	if err := decodeRunJSON(&run, stages, failures, artifacts); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *SQLiteStorage) getRunWithQuerier(ctx context.Context, q querier, id string) (*types.Run, error) {
	query := `SELECT ` + runColumns + ` FROM ingestion_runs WHERE id = ?`
	run, err := scanRun(q.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (s *SQLiteStorage) GetRun(ctx context.Context, id string) (*types.Run, error) {
	return s.getRunWithQuerier(ctx, s.querier(), id)
}

func (s *SQLiteStorage) listRunsWithQuerier(ctx context.Context, q querier, contentID string, limit int) ([]*types.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + runColumns + ` FROM ingestion_runs`
	var args []interface{}
	if contentID != "" {
		query += ` WHERE content_id = ?`
		args = append(args, contentID)
	}
	query += ` ORDER BY started_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []*types.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *SQLiteStorage) ListRuns(ctx context.Context, contentID string, limit int) ([]*types.Run, error) {
	return s.listRunsWithQuerier(ctx, s.querier(), contentID, limit)
}

// Annotated comment operations

func (s *SQLiteStorage) insertCommentsWithQuerier(ctx context.Context, q querier, runID string, comments []types.AnnotatedComment) error {
	query := `
		INSERT INTO annotated_comments (
			run_id, comment_id, content_id, author_id, commented_at, text, cleaned_text,
			sentiment, confidence, topic_id, topic_label, keywords
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, c := range comments {
		keywords, err := json.Marshal(nonNil(c.Keywords))
		if err != nil {
			return err
		}
		var commentedAt interface{}
		if !c.Timestamp.IsZero() {
			commentedAt = c.Timestamp
		}
		_, err = q.ExecContext(ctx, query,
			runID, c.ID, c.ContentID, c.AuthorID, commentedAt, c.Text, c.CleanedText,
			string(c.Sentiment), c.Confidence, c.TopicID, c.TopicLabel, string(keywords))
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("comment %s in run %s: %w", c.ID, runID, ErrAlreadyExists)
			}
			return fmt.Errorf("failed to insert comment %s: %w", c.ID, err)
		}
	}
	return nil
}

func (s *SQLiteStorage) InsertComments(ctx context.Context, runID string, comments []types.AnnotatedComment) error {
	return s.insertCommentsWithQuerier(ctx, s.querier(), runID, comments)
}

func (s *SQLiteStorage) listCommentsWithQuerier(ctx context.Context, q querier, runID string) ([]types.AnnotatedComment, error) {
	query := `
		SELECT comment_id, content_id, author_id, commented_at, text, cleaned_text,
		       sentiment, confidence, topic_id, topic_label, keywords
		FROM annotated_comments
		WHERE run_id = ?
		ORDER BY rowid
	`
	rows, err := q.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []types.AnnotatedComment
	for rows.Next() {
		var (
			c           types.AnnotatedComment
			author      sql.NullString
			commentedAt sql.NullTime
			sentiment   string
			keywords    string
		)
		if err := rows.Scan(&c.ID, &c.ContentID, &author, &commentedAt, &c.Text, &c.CleanedText,
			&sentiment, &c.Confidence, &c.TopicID, &c.TopicLabel, &keywords); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		c.RunID = runID
		c.AuthorID = author.String
		if commentedAt.Valid {
			c.Timestamp = commentedAt.Time
		}
		c.Sentiment = types.Sentiment(sentiment)
		if err := json.Unmarshal([]byte(keywords), &c.Keywords); err != nil {
			return nil, fmt.Errorf("failed to decode keywords: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *SQLiteStorage) ListComments(ctx context.Context, runID string) ([]types.AnnotatedComment, error) {
	return s.listCommentsWithQuerier(ctx, s.querier(), runID)
}

// Corpus operations

func (s *SQLiteStorage) deleteSetWithQuerier(ctx context.Context, q querier, setKey string) (int, error) {
	// postings and embeddings cascade
	res, err := q.ExecContext(ctx, `DELETE FROM documents WHERE set_key = ?`, setKey)
	if err != nil {
		return 0, fmt.Errorf("failed to delete set: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *SQLiteStorage) DeleteSet(ctx context.Context, setKey string) (int, error) {
	return s.deleteSetWithQuerier(ctx, s.querier(), setKey)
}

func (s *SQLiteStorage) upsertDocumentWithQuerier(ctx context.Context, q querier, doc *types.Document) error {
	if doc.ID == "" {
		return types.ErrEmptyDocumentID
	}
	query := `
		INSERT INTO documents (
			doc_id, set_key, run_id, comment_id, content_id, content_date, text,
			sentiment, confidence, topic_id, topic_label, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(doc_id) DO UPDATE SET
			set_key = excluded.set_key,
			run_id = excluded.run_id,
			comment_id = excluded.comment_id,
			content_id = excluded.content_id,
			content_date = excluded.content_date,
			text = excluded.text,
			sentiment = excluded.sentiment,
			confidence = excluded.confidence,
			topic_id = excluded.topic_id,
			topic_label = excluded.topic_label,
			updated_at = excluded.updated_at
	`
	_, err := q.ExecContext(ctx, query,
		doc.ID, doc.SetKey, doc.RunID, doc.CommentID, doc.ContentID, doc.ContentDate, doc.Text,
		string(doc.Sentiment), doc.Confidence, doc.TopicID, doc.TopicLabel, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	// Replace postings wholesale so re-indexing never accumulates counts.
	if _, err := q.ExecContext(ctx, `DELETE FROM postings WHERE doc_id = ?`, doc.ID); err != nil {
		return fmt.Errorf("failed to clear postings: %w", err)
	}
	for term, tf := range termCounts(doc.Tokens) {
		if _, err := q.ExecContext(ctx,
			`INSERT INTO postings (term, doc_id, tf) VALUES (?, ?, ?)`, term, doc.ID, tf); err != nil {
			return fmt.Errorf("failed to insert posting: %w", err)
		}
	}

	if len(doc.Vector) > 0 {
		_, err = q.ExecContext(ctx, `
			INSERT INTO embeddings (doc_id, vector, dimension) VALUES (?, ?, ?)
			ON CONFLICT(doc_id) DO UPDATE SET vector = excluded.vector, dimension = excluded.dimension
		`, doc.ID, vector.Serialize(doc.Vector), len(doc.Vector))
		if err != nil {
			return fmt.Errorf("failed to upsert embedding: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStorage) UpsertDocument(ctx context.Context, doc *types.Document) error {
	return s.upsertDocumentWithQuerier(ctx, s.querier(), doc)
}

func (s *SQLiteStorage) listDocumentsWithQuerier(ctx context.Context, q querier) ([]types.Document, error) {
	rows, err := q.QueryContext(ctx, `
		SELECT d.doc_id, d.set_key, d.run_id, d.comment_id, d.content_id, d.content_date, d.text,
		       d.sentiment, d.confidence, d.topic_id, d.topic_label, e.vector
		FROM documents d
		LEFT JOIN embeddings e ON e.doc_id = d.doc_id
		ORDER BY d.doc_id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	var docs []types.Document
	index := make(map[string]int)
	for rows.Next() {
		var (
			d         types.Document
			date      sql.NullString
			sentiment string
			blob      []byte
		)
		if err := rows.Scan(&d.ID, &d.SetKey, &d.RunID, &d.CommentID, &d.ContentID, &date, &d.Text,
			&sentiment, &d.Confidence, &d.TopicID, &d.TopicLabel, &blob); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		d.ContentDate = date.String
		d.Sentiment = types.Sentiment(sentiment)
		if len(blob) > 0 {
			d.Vector = vector.Deserialize(blob)
		}
		index[d.ID] = len(docs)
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	postings, err := q.QueryContext(ctx, `SELECT doc_id, term, tf FROM postings ORDER BY doc_id, term`)
	if err != nil {
		return nil, fmt.Errorf("failed to list postings: %w", err)
	}
	defer func() { _ = postings.Close() }()

	counts := make(map[string]map[string]int)
	for postings.Next() {
		var id, term string
		var tf int
		if err := postings.Scan(&id, &term, &tf); err != nil {
			return nil, fmt.Errorf("failed to scan posting: %w", err)
		}
		if counts[id] == nil {
			counts[id] = make(map[string]int)
		}
		counts[id][term] = tf
	}
	if err := postings.Err(); err != nil {
		return nil, err
	}
	for id, tf := range counts {
		if i, ok := index[id]; ok {
			docs[i].Tokens = tokensFromCounts(tf)
		}
	}
	return docs, nil
}

func (s *SQLiteStorage) ListDocuments(ctx context.Context) ([]types.Document, error) {
	return s.listDocumentsWithQuerier(ctx, s.querier())
}

func (s *SQLiteStorage) countDocumentsWithQuerier(ctx context.Context, q querier, setKey string) (int, error) {
	var n int
	err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE set_key = ?`, setKey).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func (s *SQLiteStorage) CountDocuments(ctx context.Context, setKey string) (int, error) {
	return s.countDocumentsWithQuerier(ctx, s.querier(), setKey)
}

// Insight operations

func (s *SQLiteStorage) upsertInsightWithQuerier(ctx context.Context, q querier, setKey string, insight *types.Insight) error {
	payload, err := json.Marshal(insight)
	if err != nil {
		return err
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO content_insights (set_key, content_id, payload, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(set_key) DO UPDATE SET
			content_id = excluded.content_id,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`, setKey, insight.ContentID, string(payload), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert insight: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertInsight(ctx context.Context, setKey string, insight *types.Insight) error {
	return s.upsertInsightWithQuerier(ctx, s.querier(), setKey, insight)
}

func (s *SQLiteStorage) getInsightWithQuerier(ctx context.Context, q querier, setKey string) (*types.Insight, error) {
	var payload string
	err := q.QueryRowContext(ctx, `SELECT payload FROM content_insights WHERE set_key = ?`, setKey).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get insight: %w", err)
	}
	var insight types.Insight
	if err := json.Unmarshal([]byte(payload), &insight); err != nil {
		return nil, fmt.Errorf("failed to decode insight: %w", err)
	}
	return &insight, nil
}

func (s *SQLiteStorage) GetInsight(ctx context.Context, setKey string) (*types.Insight, error) {
	return s.getInsightWithQuerier(ctx, s.querier(), setKey)
}

// Status operations

func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier) (*Status, error) {
	status := &Status{Backend: "sqlite/" + BuildMode}
	counts := []struct {
		query string
		dest  *int
	}{
		{`SELECT COUNT(*) FROM ingestion_runs`, &status.Runs},
		{`SELECT COUNT(*) FROM annotated_comments`, &status.Comments},
		{`SELECT COUNT(*) FROM documents`, &status.Documents},
		{`SELECT COUNT(*) FROM postings`, &status.Postings},
		{`SELECT COUNT(*) FROM embeddings`, &status.Embeddings},
		{`SELECT COUNT(DISTINCT set_key) FROM documents`, &status.Sets},
	}
	for _, c := range counts {
		if err := q.QueryRowContext(ctx, c.query).Scan(c.dest); err != nil {
			return nil, fmt.Errorf("failed to get status: %w", err)
		}
	}
	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context) (*Status, error) {
	return s.getStatusWithQuerier(ctx, s.querier())
}

// Transaction wrappers

func (t *sqliteTx) CreateRun(ctx context.Context, run *types.Run) error {
	return t.storage.createRunWithQuerier(ctx, t.querier(), run)
}

func (t *sqliteTx) UpdateRun(ctx context.Context, run *types.Run) error {
	return t.storage.updateRunWithQuerier(ctx, t.querier(), run)
}

func (t *sqliteTx) GetRun(ctx context.Context, id string) (*types.Run, error) {
	return t.storage.getRunWithQuerier(ctx, t.querier(), id)
}

func (t *sqliteTx) ListRuns(ctx context.Context, contentID string, limit int) ([]*types.Run, error) {
	return t.storage.listRunsWithQuerier(ctx, t.querier(), contentID, limit)
}

func (t *sqliteTx) InsertComments(ctx context.Context, runID string, comments []types.AnnotatedComment) error {
	return t.storage.insertCommentsWithQuerier(ctx, t.querier(), runID, comments)
}

func (t *sqliteTx) ListComments(ctx context.Context, runID string) ([]types.AnnotatedComment, error) {
	return t.storage.listCommentsWithQuerier(ctx, t.querier(), runID)
}

func (t *sqliteTx) DeleteSet(ctx context.Context, setKey string) (int, error) {
	return t.storage.deleteSetWithQuerier(ctx, t.querier(), setKey)
}

func (t *sqliteTx) UpsertDocument(ctx context.Context, doc *types.Document) error {
	return t.storage.upsertDocumentWithQuerier(ctx, t.querier(), doc)
}

func (t *sqliteTx) ListDocuments(ctx context.Context) ([]types.Document, error) {
	return t.storage.listDocumentsWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) CountDocuments(ctx context.Context, setKey string) (int, error) {
	return t.storage.countDocumentsWithQuerier(ctx, t.querier(), setKey)
}

func (t *sqliteTx) UpsertInsight(ctx context.Context, setKey string, insight *types.Insight) error {
	return t.storage.upsertInsightWithQuerier(ctx, t.querier(), setKey, insight)
}

func (t *sqliteTx) GetInsight(ctx context.Context, setKey string) (*types.Insight, error) {
	return t.storage.getInsightWithQuerier(ctx, t.querier(), setKey)
}

func (t *sqliteTx) GetStatus(ctx context.Context) (*Status, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}

// Helpers

func encodeRunJSON(run *types.Run) (stages, failures, artifacts string, err error) {
	b, err := json.Marshal(nonNilStages(run.Stages))
	if err != nil {
		return "", "", "", fmt.Errorf("failed to encode stages: %w", err)
	}
	stages = string(b)
	if b, err = json.Marshal(nonNilFailures(run.Failures)); err != nil {
		return "", "", "", fmt.Errorf("failed to encode failures: %w", err)
	}
	failures = string(b)
	if b, err = json.Marshal(nonNilArtifacts(run.Artifacts)); err != nil {
		return "", "", "", fmt.Errorf("failed to encode artifacts: %w", err)
	}
	artifacts = string(b)
	return stages, failures, artifacts, nil
}

func decodeRunJSON(run *types.Run, stages, failures, artifacts string) error {
	if err := json.Unmarshal([]byte(stages), &run.Stages); err != nil {
		return fmt.Errorf("failed to decode stages: %w", err)
	}
	if err := json.Unmarshal([]byte(failures), &run.Failures); err != nil {
		return fmt.Errorf("failed to decode failures: %w", err)
	}
	if err := json.Unmarshal([]byte(artifacts), &run.Artifacts); err != nil {
		return fmt.Errorf("failed to decode artifacts: %w", err)
	}
	return nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilStages(s []types.StageSummary) []types.StageSummary {
	if s == nil {
		return []types.StageSummary{}
	}
	return s
}

func nonNilFailures(s []types.ItemFailure) []types.ItemFailure {
	if s == nil {
		return []types.ItemFailure{}
	}
	return s
}

func nonNilArtifacts(s []types.Artifact) []types.Artifact {
	if s == nil {
		return []types.Artifact{}
	}
	return s
}

func termCounts(tokens []string) map[string]int {
	tf := make(map[string]int, len(tokens))
	for _, t := range tokens {
		tf[t]++
	}
	return tf
}

func isUniqueViolation(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "PRIMARY KEY") ||
		strings.Contains(msg, "duplicate key value")
}
