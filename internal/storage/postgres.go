package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/dshills/sentirag/pkg/types"
)

// PoolConfig holds tunable parameters for the PostgreSQL connection pool.
type PoolConfig struct {
	MaxConns int
	MinConns int
}

// PostgresStorage implements the Storage interface on PostgreSQL with the
// pgvector extension.
type PostgresStorage struct {
	pool *pgxpool.Pool
}

// NewPostgresStorage connects to dsn, registers pgvector types and applies
// migrations.
func NewPostgresStorage(ctx context.Context, dsn string, opts ...PoolConfig) (*PostgresStorage, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if len(opts) > 0 && opts[0].MaxConns > 0 {
		config.MaxConns = int32(opts[0].MaxConns)
	} else {
		config.MaxConns = 10
	}
	if len(opts) > 0 && opts[0].MinConns > 0 {
		config.MinConns = int32(opts[0].MinConns)
	} else {
		config.MinConns = 2
	}
	config.MaxConnLifetime = 1 * time.Hour
	config.MaxConnIdleTime = 30 * time.Minute

	// The extension must exist before pgvector types can be registered on
	// a connection, so migrate over a plain connection first.
	if err := migratePostgres(ctx, config.ConnConfig); err != nil {
		return nil, err
	}

	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}
	return &PostgresStorage{pool: pool}, nil
}

func migratePostgres(ctx context.Context, cc *pgx.ConnConfig) error {
	conn, err := pgx.ConnectConfig(ctx, cc)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	defer func() { _ = conn.Close(ctx) }()
	if err := ApplyPostgresMigrations(ctx, conn); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

// PostgresMigrations mirrors AllMigrations for the PostgreSQL dialect.
var PostgresMigrations = []Migration{
	{
		Version: "1.0.0",
		Up: `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ingestion_runs (
    id TEXT PRIMARY KEY,
    content_id TEXT NOT NULL,
    set_key TEXT NOT NULL,
    locator TEXT NOT NULL DEFAULT '',
    content_date TEXT NOT NULL DEFAULT '',
    max_comments INTEGER NOT NULL DEFAULT 0,
    suffix_policy TEXT NOT NULL DEFAULT 'none',
    suffix_label TEXT NOT NULL DEFAULT '',
    state TEXT NOT NULL,
    stages JSONB NOT NULL DEFAULT '[]',
    failures JSONB NOT NULL DEFAULT '[]',
    artifacts JSONB NOT NULL DEFAULT '[]',
    error_kind TEXT NOT NULL DEFAULT '',
    error TEXT NOT NULL DEFAULT '',
    persisted INTEGER NOT NULL DEFAULT 0,
    started_at TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS idx_runs_content ON ingestion_runs(content_id, started_at);

CREATE TABLE IF NOT EXISTS annotated_comments (
    run_id TEXT NOT NULL REFERENCES ingestion_runs(id) ON DELETE CASCADE,
    comment_id TEXT NOT NULL,
    ordinal INTEGER NOT NULL,
    content_id TEXT NOT NULL,
    author_id TEXT NOT NULL DEFAULT '',
    commented_at TIMESTAMPTZ,
    text TEXT NOT NULL,
    cleaned_text TEXT NOT NULL,
    sentiment TEXT NOT NULL,
    confidence DOUBLE PRECISION NOT NULL,
    topic_id INTEGER NOT NULL,
    topic_label TEXT NOT NULL,
    keywords JSONB NOT NULL DEFAULT '[]',
    PRIMARY KEY (run_id, comment_id)
);

CREATE TABLE IF NOT EXISTS documents (
    doc_id TEXT PRIMARY KEY,
    set_key TEXT NOT NULL,
    run_id TEXT NOT NULL,
    comment_id TEXT NOT NULL,
    content_id TEXT NOT NULL,
    content_date TEXT NOT NULL DEFAULT '',
    text TEXT NOT NULL,
    sentiment TEXT NOT NULL,
    confidence DOUBLE PRECISION NOT NULL,
    topic_id INTEGER NOT NULL,
    topic_label TEXT NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_documents_set ON documents(set_key);

CREATE TABLE IF NOT EXISTS postings (
    term TEXT NOT NULL,
    doc_id TEXT NOT NULL REFERENCES documents(doc_id) ON DELETE CASCADE,
    tf INTEGER NOT NULL,
    PRIMARY KEY (term, doc_id)
);
CREATE INDEX IF NOT EXISTS idx_postings_doc ON postings(doc_id);

CREATE TABLE IF NOT EXISTS embeddings (
    doc_id TEXT PRIMARY KEY REFERENCES documents(doc_id) ON DELETE CASCADE,
    embedding vector NOT NULL,
    dimension INTEGER NOT NULL
);
`,
		Down: `
DROP TABLE IF EXISTS embeddings;
DROP TABLE IF EXISTS postings;
DROP TABLE IF EXISTS documents;
DROP TABLE IF EXISTS annotated_comments;
DROP TABLE IF EXISTS ingestion_runs;
DROP TABLE IF EXISTS schema_version;
`,
	},
	{
		Version: "1.1.0",
		Up: `
CREATE TABLE IF NOT EXISTS content_insights (
    set_key TEXT PRIMARY KEY,
    content_id TEXT NOT NULL,
    payload JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`,
		Down: `DROP TABLE IF EXISTS content_insights;`,
	},
}

// ApplyPostgresMigrations runs all pending PostgreSQL migrations.
func ApplyPostgresMigrations(ctx context.Context, conn *pgx.Conn) error {
	current := semver.MustParse("0.0.0")
	var exists bool
	err := conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'schema_version')`).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check schema_version table: %w", err)
	}
	if exists {
		rows, err := conn.Query(ctx, `SELECT version FROM schema_version`)
		if err != nil {
			return fmt.Errorf("failed to read schema_version: %w", err)
		}
		versions, err := pgx.CollectRows(rows, pgx.RowTo[string])
		if err != nil {
			return fmt.Errorf("failed to read schema_version: %w", err)
		}
		for _, v := range versions {
			parsed, err := semver.NewVersion(v)
			if err != nil {
				return fmt.Errorf("invalid current schema version %s: %w", v, err)
			}
			if parsed.GreaterThan(current) {
				current = parsed
			}
		}
	}

	for _, m := range PostgresMigrations {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return fmt.Errorf("invalid migration version %s: %w", m.Version, err)
		}
		if !current.LessThan(v) {
			continue
		}
		if _, err := conn.Exec(ctx, m.Up); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", m.Version, err)
		}
		if _, err := conn.Exec(ctx, `INSERT INTO schema_version (version) VALUES ($1)`, m.Version); err != nil {
			return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
		}
		current = v
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}

// BeginTx starts a new transaction
func (s *PostgresStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &pgTx{tx: tx, storage: s}, nil
}

// dbExecutor is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbExecutor interface {
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

type pgTx struct {
	tx      pgx.Tx
	storage *PostgresStorage
}

func (t *pgTx) Commit() error   { return t.tx.Commit(context.Background()) }
func (t *pgTx) Rollback() error { return t.tx.Rollback(context.Background()) }

const pgRunColumns = `id, content_id, set_key, locator, content_date, max_comments,
	suffix_policy, suffix_label, state, stages, failures, artifacts,
	error_kind, error, persisted, started_at, finished_at`

func (s *PostgresStorage) createRun(ctx context.Context, q dbExecutor, run *types.Run) error {
	stages, failures, artifacts, err := encodeRunJSON(run)
	if err != nil {
		return err
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	_, err = q.Exec(ctx, `INSERT INTO ingestion_runs (`+pgRunColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		run.ID, run.ContentID, run.SetKey, run.Locator, run.ContentDate, run.MaxComments,
		string(run.Suffix.Policy), run.Suffix.Label, string(run.State),
		[]byte(stages), []byte(failures), []byte(artifacts),
		string(run.ErrorKind), run.Error, run.Persisted, run.StartedAt, run.FinishedAt)
	if err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("run %s: %w", run.ID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (s *PostgresStorage) updateRun(ctx context.Context, q dbExecutor, run *types.Run) error {
	stages, failures, artifacts, err := encodeRunJSON(run)
	if err != nil {
		return err
	}
	tag, err := q.Exec(ctx, `
		UPDATE ingestion_runs
		SET state = $1, stages = $2, failures = $3, artifacts = $4, error_kind = $5, error = $6,
		    persisted = $7, finished_at = $8
		WHERE id = $9 AND state NOT IN ('COMPLETED', 'PARTIAL', 'FAILED')
	`, string(run.State), []byte(stages), []byte(failures), []byte(artifacts),
		string(run.ErrorKind), run.Error, run.Persisted, run.FinishedAt, run.ID)
	if err != nil {
		return fmt.Errorf("failed to update run: %w", err)
	}
	if tag.RowsAffected() == 0 {
		if _, err := s.getRun(ctx, q, run.ID); err != nil {
			return err
		}
		return fmt.Errorf("run %s: %w", run.ID, types.ErrRunFinalized)
	}
	return nil
}

func scanPgRun(row pgx.Row) (*types.Run, error) {
	var (
		run                         types.Run
		policy, state, errKind      string
		stages, failures, artifacts []byte
	)
	err := row.Scan(&run.ID, &run.ContentID, &run.SetKey, &run.Locator, &run.ContentDate, &run.MaxComments,
		&policy, &run.Suffix.Label, &state, &stages, &failures, &artifacts,
		&errKind, &run.Error, &run.Persisted, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		return nil, err
	}
	run.Suffix.Policy = types.SuffixPolicy(policy)
	run.State = types.RunState(state)
	run.ErrorKind = types.ErrorKind(errKind)
	if err := decodeRunJSON(&run, string(stages), string(failures), string(artifacts)); err != nil {
		return nil, err
	}
	return &run, nil
}

func (s *PostgresStorage) getRun(ctx context.Context, q dbExecutor, id string) (*types.Run, error) {
	run, err := scanPgRun(q.QueryRow(ctx, `SELECT `+pgRunColumns+` FROM ingestion_runs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return run, nil
}

func (s *PostgresStorage) listRuns(ctx context.Context, q dbExecutor, contentID string, limit int) ([]*types.Run, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT ` + pgRunColumns + ` FROM ingestion_runs`
	args := []interface{}{}
	if contentID != "" {
		query += ` WHERE content_id = $1 ORDER BY started_at DESC, id DESC LIMIT $2`
		args = append(args, contentID, limit)
	} else {
		query += ` ORDER BY started_at DESC, id DESC LIMIT $1`
		args = append(args, limit)
	}
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*types.Run
	for rows.Next() {
		run, err := scanPgRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func (s *PostgresStorage) insertComments(ctx context.Context, q dbExecutor, runID string, comments []types.AnnotatedComment) error {
	if len(comments) == 0 {
		return nil
	}
	rows := make([][]interface{}, len(comments))
	for i, c := range comments {
		keywords, err := json.Marshal(nonNil(c.Keywords))
		if err != nil {
			return err
		}
		var commentedAt *time.Time
		if !c.Timestamp.IsZero() {
			ts := c.Timestamp
			commentedAt = &ts
		}
		rows[i] = []interface{}{
			runID, c.ID, i, c.ContentID, c.AuthorID, commentedAt, c.Text, c.CleanedText,
			string(c.Sentiment), c.Confidence, c.TopicID, c.TopicLabel, keywords,
		}
	}
	_, err := q.CopyFrom(ctx,
		pgx.Identifier{"annotated_comments"},
		[]string{"run_id", "comment_id", "ordinal", "content_id", "author_id", "commented_at", "text",
			"cleaned_text", "sentiment", "confidence", "topic_id", "topic_label", "keywords"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		if isPgUniqueViolation(err) {
			return fmt.Errorf("comments in run %s: %w", runID, ErrAlreadyExists)
		}
		return fmt.Errorf("failed to insert comments: %w", err)
	}
	return nil
}

func (s *PostgresStorage) listComments(ctx context.Context, q dbExecutor, runID string) ([]types.AnnotatedComment, error) {
	rows, err := q.Query(ctx, `
		SELECT comment_id, content_id, author_id, commented_at, text, cleaned_text,
		       sentiment, confidence, topic_id, topic_label, keywords
		FROM annotated_comments
		WHERE run_id = $1
		ORDER BY ordinal
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var out []types.AnnotatedComment
	for rows.Next() {
		var (
			c           types.AnnotatedComment
			commentedAt *time.Time
			sentiment   string
			keywords    []byte
		)
		if err := rows.Scan(&c.ID, &c.ContentID, &c.AuthorID, &commentedAt, &c.Text, &c.CleanedText,
			&sentiment, &c.Confidence, &c.TopicID, &c.TopicLabel, &keywords); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		c.RunID = runID
		if commentedAt != nil {
			c.Timestamp = *commentedAt
		}
		c.Sentiment = types.Sentiment(sentiment)
		if err := json.Unmarshal(keywords, &c.Keywords); err != nil {
			return nil, fmt.Errorf("failed to decode keywords: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStorage) deleteSet(ctx context.Context, q dbExecutor, setKey string) (int, error) {
	tag, err := q.Exec(ctx, `DELETE FROM documents WHERE set_key = $1`, setKey)
	if err != nil {
		return 0, fmt.Errorf("failed to delete set: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (s *PostgresStorage) upsertDocument(ctx context.Context, q dbExecutor, doc *types.Document) error {
	if doc.ID == "" {
		return types.ErrEmptyDocumentID
	}
	_, err := q.Exec(ctx, `
		INSERT INTO documents (
			doc_id, set_key, run_id, comment_id, content_id, content_date, text,
			sentiment, confidence, topic_id, topic_label, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, now())
		ON CONFLICT (doc_id) DO UPDATE SET
			set_key = EXCLUDED.set_key,
			run_id = EXCLUDED.run_id,
			comment_id = EXCLUDED.comment_id,
			content_id = EXCLUDED.content_id,
			content_date = EXCLUDED.content_date,
			text = EXCLUDED.text,
			sentiment = EXCLUDED.sentiment,
			confidence = EXCLUDED.confidence,
			topic_id = EXCLUDED.topic_id,
			topic_label = EXCLUDED.topic_label,
			updated_at = now()
	`, doc.ID, doc.SetKey, doc.RunID, doc.CommentID, doc.ContentID, doc.ContentDate, doc.Text,
		string(doc.Sentiment), doc.Confidence, doc.TopicID, doc.TopicLabel)
	if err != nil {
		return fmt.Errorf("failed to upsert document: %w", err)
	}

	if _, err := q.Exec(ctx, `DELETE FROM postings WHERE doc_id = $1`, doc.ID); err != nil {
		return fmt.Errorf("failed to clear postings: %w", err)
	}
	counts := termCounts(doc.Tokens)
	if len(counts) > 0 {
		terms := make([]string, 0, len(counts))
		for term := range counts {
			terms = append(terms, term)
		}
		sort.Strings(terms)
		rows := make([][]interface{}, len(terms))
		for i, term := range terms {
			rows[i] = []interface{}{term, doc.ID, counts[term]}
		}
		if _, err := q.CopyFrom(ctx, pgx.Identifier{"postings"}, []string{"term", "doc_id", "tf"}, pgx.CopyFromRows(rows)); err != nil {
			return fmt.Errorf("failed to insert postings: %w", err)
		}
	}

	if len(doc.Vector) > 0 {
		_, err = q.Exec(ctx, `
			INSERT INTO embeddings (doc_id, embedding, dimension) VALUES ($1, $2, $3)
			ON CONFLICT (doc_id) DO UPDATE SET embedding = EXCLUDED.embedding, dimension = EXCLUDED.dimension
		`, doc.ID, pgvector.NewVector(doc.Vector), len(doc.Vector))
		if err != nil {
			return fmt.Errorf("failed to upsert embedding: %w", err)
		}
	}
	return nil
}

func (s *PostgresStorage) listDocuments(ctx context.Context, q dbExecutor) ([]types.Document, error) {
	rows, err := q.Query(ctx, `
		SELECT d.doc_id, d.set_key, d.run_id, d.comment_id, d.content_id, d.content_date, d.text,
		       d.sentiment, d.confidence, d.topic_id, d.topic_label, e.embedding
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
			sentiment string
			vec       *pgvector.Vector
		)
		if err := rows.Scan(&d.ID, &d.SetKey, &d.RunID, &d.CommentID, &d.ContentID, &d.ContentDate, &d.Text,
			&sentiment, &d.Confidence, &d.TopicID, &d.TopicLabel, &vec); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		d.Sentiment = types.Sentiment(sentiment)
		if vec != nil {
			d.Vector = vec.Slice()
		}
		index[d.ID] = len(docs)
		docs = append(docs, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	prow, err := q.Query(ctx, `SELECT doc_id, term, tf FROM postings ORDER BY doc_id, term`)
	if err != nil {
		return nil, fmt.Errorf("failed to list postings: %w", err)
	}
	defer prow.Close()
	counts := make(map[string]map[string]int)
	for prow.Next() {
		var id, term string
		var tf int
		if err := prow.Scan(&id, &term, &tf); err != nil {
			return nil, fmt.Errorf("failed to scan posting: %w", err)
		}
		if counts[id] == nil {
			counts[id] = make(map[string]int)
		}
		counts[id][term] = tf
	}
	if err := prow.Err(); err != nil {
		return nil, err
	}
	for id, tf := range counts {
		if i, ok := index[id]; ok {
			docs[i].Tokens = tokensFromCounts(tf)
		}
	}
	return docs, nil
}

func (s *PostgresStorage) countDocuments(ctx context.Context, q dbExecutor, setKey string) (int, error) {
	var n int
	if err := q.QueryRow(ctx, `SELECT COUNT(*) FROM documents WHERE set_key = $1`, setKey).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return n, nil
}

func (s *PostgresStorage) upsertInsight(ctx context.Context, q dbExecutor, setKey string, insight *types.Insight) error {
	payload, err := json.Marshal(insight)
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, `
		INSERT INTO content_insights (set_key, content_id, payload, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (set_key) DO UPDATE SET
			content_id = EXCLUDED.content_id,
			payload = EXCLUDED.payload,
			updated_at = now()
	`, setKey, insight.ContentID, payload)
	if err != nil {
		return fmt.Errorf("failed to upsert insight: %w", err)
	}
	return nil
}

func (s *PostgresStorage) getInsight(ctx context.Context, q dbExecutor, setKey string) (*types.Insight, error) {
	var payload []byte
	err := q.QueryRow(ctx, `SELECT payload FROM content_insights WHERE set_key = $1`, setKey).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get insight: %w", err)
	}
	var insight types.Insight
	if err := json.Unmarshal(payload, &insight); err != nil {
		return nil, fmt.Errorf("failed to decode insight: %w", err)
	}
	return &insight, nil
}

func (s *PostgresStorage) getStatus(ctx context.Context, q dbExecutor) (*Status, error) {
	status := &Status{Backend: "postgres"}
	err := q.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM ingestion_runs),
			(SELECT COUNT(*) FROM annotated_comments),
			(SELECT COUNT(*) FROM documents),
			(SELECT COUNT(*) FROM postings),
			(SELECT COUNT(*) FROM embeddings),
			(SELECT COUNT(DISTINCT set_key) FROM documents)
	`).Scan(&status.Runs, &status.Comments, &status.Documents, &status.Postings, &status.Embeddings, &status.Sets)
	if err != nil {
		return nil, fmt.Errorf("failed to get status: %w", err)
	}
	return status, nil
}

func isPgUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

// Pool-backed operations

func (s *PostgresStorage) CreateRun(ctx context.Context, run *types.Run) error {
	return s.createRun(ctx, s.pool, run)
}

func (s *PostgresStorage) UpdateRun(ctx context.Context, run *types.Run) error {
	return s.updateRun(ctx, s.pool, run)
}

func (s *PostgresStorage) GetRun(ctx context.Context, id string) (*types.Run, error) {
	return s.getRun(ctx, s.pool, id)
}

func (s *PostgresStorage) ListRuns(ctx context.Context, contentID string, limit int) ([]*types.Run, error) {
	return s.listRuns(ctx, s.pool, contentID, limit)
}

func (s *PostgresStorage) InsertComments(ctx context.Context, runID string, comments []types.AnnotatedComment) error {
	return s.insertComments(ctx, s.pool, runID, comments)
}

func (s *PostgresStorage) ListComments(ctx context.Context, runID string) ([]types.AnnotatedComment, error) {
	return s.listComments(ctx, s.pool, runID)
}

func (s *PostgresStorage) DeleteSet(ctx context.Context, setKey string) (int, error) {
	return s.deleteSet(ctx, s.pool, setKey)
}

func (s *PostgresStorage) UpsertDocument(ctx context.Context, doc *types.Document) error {
	return s.upsertDocument(ctx, s.pool, doc)
}

func (s *PostgresStorage) ListDocuments(ctx context.Context) ([]types.Document, error) {
	return s.listDocuments(ctx, s.pool)
}

func (s *PostgresStorage) CountDocuments(ctx context.Context, setKey string) (int, error) {
	return s.countDocuments(ctx, s.pool, setKey)
}

func (s *PostgresStorage) UpsertInsight(ctx context.Context, setKey string, insight *types.Insight) error {
	return s.upsertInsight(ctx, s.pool, setKey, insight)
}

func (s *PostgresStorage) GetInsight(ctx context.Context, setKey string) (*types.Insight, error) {
	return s.getInsight(ctx, s.pool, setKey)
}

func (s *PostgresStorage) GetStatus(ctx context.Context) (*Status, error) {
	return s.getStatus(ctx, s.pool)
}

// Transaction wrappers

func (t *pgTx) CreateRun(ctx context.Context, run *types.Run) error {
	return t.storage.createRun(ctx, t.tx, run)
}

func (t *pgTx) UpdateRun(ctx context.Context, run *types.Run) error {
	return t.storage.updateRun(ctx, t.tx, run)
}

func (t *pgTx) GetRun(ctx context.Context, id string) (*types.Run, error) {
	return t.storage.getRun(ctx, t.tx, id)
}

func (t *pgTx) ListRuns(ctx context.Context, contentID string, limit int) ([]*types.Run, error) {
	return t.storage.listRuns(ctx, t.tx, contentID, limit)
}

func (t *pgTx) InsertComments(ctx context.Context, runID string, comments []types.AnnotatedComment) error {
	return t.storage.insertComments(ctx, t.tx, runID, comments)
}

func (t *pgTx) ListComments(ctx context.Context, runID string) ([]types.AnnotatedComment, error) {
	return t.storage.listComments(ctx, t.tx, runID)
}

func (t *pgTx) DeleteSet(ctx context.Context, setKey string) (int, error) {
	return t.storage.deleteSet(ctx, t.tx, setKey)
}

func (t *pgTx) UpsertDocument(ctx context.Context, doc *types.Document) error {
	return t.storage.upsertDocument(ctx, t.tx, doc)
}

func (t *pgTx) ListDocuments(ctx context.Context) ([]types.Document, error) {
	return t.storage.listDocuments(ctx, t.tx)
}

func (t *pgTx) CountDocuments(ctx context.Context, setKey string) (int, error) {
	return t.storage.countDocuments(ctx, t.tx, setKey)
}

func (t *pgTx) UpsertInsight(ctx context.Context, setKey string, insight *types.Insight) error {
	return t.storage.upsertInsight(ctx, t.tx, setKey, insight)
}

func (t *pgTx) GetInsight(ctx context.Context, setKey string) (*types.Insight, error) {
	return t.storage.getInsight(ctx, t.tx, setKey)
}

func (t *pgTx) GetStatus(ctx context.Context) (*Status, error) {
	return t.storage.getStatus(ctx, t.tx)
}

func (t *pgTx) Close() error {
	return nil
}

func (t *pgTx) BeginTx(ctx context.Context) (Tx, error) {
	return nil, errors.New("nested transactions not supported")
}
