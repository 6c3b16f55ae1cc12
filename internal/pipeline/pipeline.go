package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/sentirag/internal/acquire"
	"github.com/dshills/sentirag/internal/artifacts"
	"github.com/dshills/sentirag/internal/corpus"
	"github.com/dshills/sentirag/internal/embedder"
	"github.com/dshills/sentirag/internal/logging"
	"github.com/dshills/sentirag/internal/sentiment"
	"github.com/dshills/sentirag/internal/storage"
	"github.com/dshills/sentirag/internal/textproc"
	"github.com/dshills/sentirag/internal/topic"
	"github.com/dshills/sentirag/pkg/types"
)

const tracerName = "github.com/dshills/sentirag/internal/pipeline"

// Request describes one ingestion.
type Request struct {
	ContentID   string       `json:"content_id"`
	Locator     string       `json:"locator"`
	ContentDate string       `json:"content_date,omitempty"`
	MaxComments int          `json:"max_comments,omitempty"`
	Suffix      types.Suffix `json:"suffix"`
}

// Result is what a run produced. Comments and Insight are empty for
// FAILED runs.
type Result struct {
	Run      *types.Run               `json:"run"`
	Comments []types.AnnotatedComment `json:"comments"`
	Insight  *types.Insight           `json:"insight,omitempty"`
}

// Config tunes concurrency, timeouts and limits.
type Config struct {
	Workers        int           // concurrent per-comment calls (default: 4)
	CallTimeout    time.Duration // per external call (default: 30s)
	AcquireTimeout time.Duration // whole acquisition stage (default: 15m)
	MaxComments    int           // used when a request leaves it zero (default: 50)
	MaxAllowed     int           // upper bound on MaxComments (default: 500)
}

func (c *Config) setDefaults() {
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 30 * time.Second
	}
	if c.AcquireTimeout <= 0 {
		c.AcquireTimeout = 15 * time.Minute
	}
	if c.MaxAllowed <= 0 {
		c.MaxAllowed = 500
	}
	if c.MaxComments <= 0 || c.MaxComments > c.MaxAllowed {
		c.MaxComments = min(50, c.MaxAllowed)
	}
}

// Deps are the collaborators of every stage. Exporter and Logger may be nil.
type Deps struct {
	Acquirer   acquire.Acquirer
	Analyzer   *textproc.Analyzer
	Classifier sentiment.Classifier
	Topics     topic.Model
	Embedder   embedder.Embedder
	Storage    storage.Storage
	Corpus     *corpus.Corpus
	Exporter   *artifacts.Exporter
	Logger     *slog.Logger
}

// Pipeline runs acquire -> clean -> sentiment -> topic -> embed -> persist
// for one content item at a time per content id.
type Pipeline struct {
	deps   Deps
	cfg    Config
	locks  *KeyedLock
	logger *slog.Logger
	tracer trace.Tracer
	now    func() time.Time
}

// New validates deps and builds a pipeline.
func New(deps Deps, cfg Config) (*Pipeline, error) {
	switch {
	case deps.Acquirer == nil:
		return nil, errors.New("pipeline: acquirer is required")
	case deps.Classifier == nil:
		return nil, errors.New("pipeline: sentiment classifier is required")
	case deps.Topics == nil:
		return nil, errors.New("pipeline: topic model is required")
	case deps.Embedder == nil:
		return nil, errors.New("pipeline: embedder is required")
	case deps.Storage == nil:
		return nil, errors.New("pipeline: storage is required")
	case deps.Corpus == nil:
		return nil, errors.New("pipeline: corpus is required")
	}
	if deps.Analyzer == nil {
		deps.Analyzer = textproc.NewAnalyzer(nil)
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	cfg.setDefaults()
	return &Pipeline{
		deps:   deps,
		cfg:    cfg,
		locks:  NewKeyedLock(),
		logger: logger.With("component", "pipeline"),
		tracer: otel.Tracer(tracerName),
		now:    time.Now,
	}, nil
}

// item carries one comment through the stages.
type item struct {
	comment   types.Comment
	cleaned   string
	tokens    []string
	sentiment sentiment.Result
	topic     topic.Assignment
	vector    []float32
	dropped   bool
}

// runState is the mutable bookkeeping of a single run.
type runState struct {
	run      *types.Run
	mu       sync.Mutex
	failures map[int]types.ItemFailure
}

func (s *runState) drop(idx int, it *item, stage types.Stage, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it.dropped = true
	s.failures[idx] = types.ItemFailure{
		CommentID: it.comment.ID,
		Stage:     stage,
		Kind:      types.KindOf(err),
		Reason:    err.Error(),
	}
}

// flush moves failures into the run in original comment order.
func (s *runState) flush() {
	idx := make([]int, 0, len(s.failures))
	for i := range s.failures {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	for _, i := range idx {
		s.run.Failures = append(s.run.Failures, s.failures[i])
	}
	clear(s.failures)
}

// Run executes one ingestion. Runs for the same content id are serialized.
// A validation error returns a nil Result. Once the run record exists the
// Result is always non-nil; for a FAILED run the error describes the cause.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if err := p.validate(&req); err != nil {
		return nil, err
	}

	release, err := p.locks.Lock(ctx, req.ContentID)
	if err != nil {
		return nil, fmt.Errorf("waiting for run on %s: %w", req.ContentID, err)
	}
	defer release()

	ctx, span := p.tracer.Start(ctx, "pipeline.run", trace.WithAttributes(
		attribute.String("content_id", req.ContentID),
		attribute.Int("max_comments", req.MaxComments),
	))
	defer span.End()

	started := p.now().UTC()
	token := p.suffixToken(req, started)
	run := &types.Run{
		ID:          uuid.NewString(),
		ContentID:   req.ContentID,
		SetKey:      types.SetKey(req.ContentID, token),
		Locator:     req.Locator,
		ContentDate: req.ContentDate,
		MaxComments: req.MaxComments,
		Suffix:      req.Suffix,
		State:       types.RunPending,
		StartedAt:   started,
	}
	if err := p.deps.Storage.CreateRun(ctx, run); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("create run: %w", err)
	}
	span.SetAttributes(attribute.String("run_id", run.ID))
	logger := p.logger.With("run_id", run.ID, "content_id", req.ContentID, "set_key", run.SetKey)
	logger.InfoContext(ctx, "run started", "locator", req.Locator, "max_comments", req.MaxComments)

	st := &runState{run: run, failures: map[int]types.ItemFailure{}}
	res := &Result{Run: run}

	// acquire
	if err := p.advance(ctx, run, types.RunAcquiring); err != nil {
		return res, p.fail(ctx, st, logger, types.StageAcquire, err)
	}
	items, err := p.acquire(ctx, st, req)
	if err != nil {
		return res, p.fail(ctx, st, logger, types.StageAcquire, err)
	}

	// clean, sentiment, topic, embed
	if err := p.advance(ctx, run, types.RunProcessing); err != nil {
		return res, p.fail(ctx, st, logger, types.StageClean, err)
	}
	if stage, err := p.process(ctx, st, items); err != nil {
		return res, p.fail(ctx, st, logger, stage, err)
	}
	st.flush()

	kept := make([]*item, 0, len(items))
	for _, it := range items {
		if !it.dropped {
			kept = append(kept, it)
		}
	}
	if len(kept) == 0 {
		return res, p.fail(ctx, st, logger, types.StageEmbed,
			fmt.Errorf("%w: %d comments acquired, all dropped", types.ErrNoComments, len(items)))
	}

	comments, docs, insight := p.finalize(run, req, kept)

	// persist
	if err := p.advance(ctx, run, types.RunPersisting); err != nil {
		return res, p.fail(ctx, st, logger, types.StagePersist, err)
	}
	if err := p.persist(ctx, run, comments, docs, &insight); err != nil {
		return res, p.fail(ctx, st, logger, types.StagePersist, err)
	}
	run.Persisted = len(docs)
	run.Stage(types.StagePersist).Succeeded = len(docs)
	res.Comments = comments
	res.Insight = &insight

	// Export is best effort and never changes the terminal state.
	if p.deps.Exporter != nil {
		arts, err := p.deps.Exporter.Export(req.ContentID, token, comments, insight)
		run.Artifacts = arts
		es := run.Stage(types.StageExport)
		es.Succeeded = len(arts)
		if err != nil {
			es.Failed = true
			es.Error = err.Error()
			logger.ErrorContext(ctx, "export failed", "error", err)
		}
	}

	final := types.RunCompleted
	if len(run.Failures) > 0 {
		final = types.RunPartial
	}
	if err := run.Transition(final); err != nil {
		return res, err
	}
	if err := p.save(ctx, run); err != nil {
		logger.ErrorContext(ctx, "failed to record final run state", "error", err)
		return res, fmt.Errorf("record run %s: %w", run.ID, err)
	}
	span.SetAttributes(attribute.String("state", string(final)), attribute.Int("persisted", run.Persisted))
	logger.InfoContext(ctx, "run finished",
		"state", final,
		"persisted", run.Persisted,
		"dropped", len(run.Failures),
		"duration", time.Since(started))
	return res, nil
}

func (p *Pipeline) validate(req *Request) error {
	req.ContentID = strings.TrimSpace(req.ContentID)
	if err := types.ValidateContentID(req.ContentID); err != nil {
		return err
	}
	if strings.TrimSpace(req.Locator) == "" {
		return fmt.Errorf("%w: locator is required", types.ErrAcquisition)
	}
	if req.MaxComments == 0 {
		req.MaxComments = p.cfg.MaxComments
	}
	if req.MaxComments < 1 || req.MaxComments > p.cfg.MaxAllowed {
		return fmt.Errorf("%w: %d not in [1, %d]", types.ErrInvalidMaxComments, req.MaxComments, p.cfg.MaxAllowed)
	}
	if req.Suffix.Policy == "" {
		req.Suffix.Policy = types.SuffixNone
	}
	if err := req.Suffix.Validate(); err != nil {
		return err
	}
	if req.ContentDate == "" {
		req.ContentDate = p.now().UTC().Format(time.DateOnly)
	}
	return nil
}

// suffixToken renders the run's suffix. A timestamp that names a set which
// is already queryable is moved forward so the earlier set survives; runs of
// one content id hold its lock, so only this goroutine can claim the key.
func (p *Pipeline) suffixToken(req Request, started time.Time) string {
	token := artifacts.SuffixToken(req.Suffix, started)
	if req.Suffix.Policy != types.SuffixTimestamp {
		return token
	}
	for stamp := started; len(p.deps.Corpus.SetDocuments(types.SetKey(req.ContentID, token))) > 0; {
		stamp = stamp.Add(time.Microsecond)
		token = artifacts.SuffixToken(req.Suffix, stamp)
	}
	return token
}

// advance transitions the run and records the new state.
func (p *Pipeline) advance(ctx context.Context, run *types.Run, next types.RunState) error {
	if err := run.Transition(next); err != nil {
		return err
	}
	return p.save(ctx, run)
}

// save survives cancellation of the run context so a canceled run still
// reaches storage as FAILED.
func (p *Pipeline) save(ctx context.Context, run *types.Run) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.CallTimeout)
	defer cancel()
	return p.deps.Storage.UpdateRun(ctx, run)
}

// fail finalizes the run as FAILED and returns err for the caller.
func (p *Pipeline) fail(ctx context.Context, st *runState, logger *slog.Logger, stage types.Stage, err error) error {
	st.flush()
	run := st.run
	ss := run.Stage(stage)
	ss.Failed = true
	ss.Error = err.Error()
	run.ErrorKind = types.KindOf(err)
	run.Error = err.Error()
	if terr := run.Transition(types.RunFailed); terr != nil {
		return errors.Join(err, terr)
	}
	if serr := p.save(ctx, run); serr != nil {
		logger.ErrorContext(ctx, "failed to record failed run", "error", serr)
		err = errors.Join(err, serr)
	}
	span := trace.SpanFromContext(ctx)
	span.RecordError(err)
	span.SetStatus(codes.Error, string(run.ErrorKind))
	logger.ErrorContext(ctx, "run failed", "stage", stage, "kind", run.ErrorKind, "error", err)
	return err
}

func (p *Pipeline) acquire(ctx context.Context, st *runState, req Request) ([]*item, error) {
	ctx, span := p.tracer.Start(ctx, "pipeline.acquire")
	defer span.End()

	actx, cancel := context.WithTimeout(ctx, p.cfg.AcquireTimeout)
	defer cancel()
	comments, err := p.deps.Acquirer.Fetch(actx, req.Locator, req.MaxComments)
	if err != nil {
		span.RecordError(err)
		if !errors.Is(err, types.ErrAcquisition) {
			err = fmt.Errorf("%w: %w", types.ErrAcquisition, err)
		}
		return nil, err
	}
	if len(comments) == 0 {
		return nil, fmt.Errorf("%w: no comments returned", types.ErrAcquisition)
	}
	if len(comments) > req.MaxComments {
		comments = comments[:req.MaxComments]
	}
	items := make([]*item, len(comments))
	for i, c := range comments {
		c.ContentID = req.ContentID
		items[i] = &item{comment: c}
	}
	st.run.Stage(types.StageAcquire).Succeeded = len(items)
	span.SetAttributes(attribute.Int("comments", len(items)))
	return items, nil
}

// process runs the per-comment and whole-batch stages. A non-nil error is
// fatal to the run and names the stage it happened in.
func (p *Pipeline) process(ctx context.Context, st *runState, items []*item) (types.Stage, error) {
	p.clean(st, items)

	if err := p.classify(ctx, st, items); err != nil {
		return types.StageSentiment, err
	}
	if err := p.assignTopics(ctx, st, items); err != nil {
		return types.StageTopic, err
	}
	if err := p.embed(ctx, st, items); err != nil {
		return types.StageEmbed, err
	}
	return "", nil
}

func (p *Pipeline) clean(st *runState, items []*item) {
	seen := make(map[string]struct{}, len(items))
	ss := st.run.Stage(types.StageClean)
	for i, it := range items {
		if _, dup := seen[it.comment.ID]; dup {
			st.drop(i, it, types.StageClean, fmt.Errorf("%w: %w %s", types.ErrAcquisition, types.ErrDuplicateComment, it.comment.ID))
			ss.Skipped++
			continue
		}
		seen[it.comment.ID] = struct{}{}

		it.cleaned = p.deps.Analyzer.Clean(it.comment.Text)
		it.tokens = p.deps.Analyzer.Tokenizer.Tokenize(it.cleaned)
		if it.cleaned == "" || len(it.tokens) == 0 {
			st.drop(i, it, types.StageClean, fmt.Errorf("%w: no index terms after cleaning", types.ErrClassification))
			ss.Skipped++
			continue
		}
		ss.Succeeded++
	}
}

// forEach runs fn over surviving items on the worker pool. fn reports
// per-item failures itself; a returned error aborts the stage.
func (p *Pipeline) forEach(ctx context.Context, items []*item, fn func(ctx context.Context, i int, it *item) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.cfg.Workers)
	for i, it := range items {
		if it.dropped {
			continue
		}
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			cctx, cancel := context.WithTimeout(gctx, p.cfg.CallTimeout)
			defer cancel()
			return fn(cctx, i, it)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	// Cancellation of the run itself is fatal, not a per-item failure.
	return ctx.Err()
}

func (p *Pipeline) classify(ctx context.Context, st *runState, items []*item) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.sentiment")
	defer span.End()

	var ok, skipped int32
	var mu sync.Mutex
	err := p.forEach(ctx, items, func(cctx context.Context, i int, it *item) error {
		res, err := p.deps.Classifier.Classify(cctx, it.cleaned)
		if err == nil {
			err = validateSentiment(res)
		}
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, types.ErrClassification) {
				err = fmt.Errorf("%w: %w", types.ErrClassification, err)
			}
			st.drop(i, it, types.StageSentiment, err)
			skipped++
			return nil
		}
		it.sentiment = res
		ok++
		return nil
	})
	ss := st.run.Stage(types.StageSentiment)
	ss.Succeeded, ss.Skipped = int(ok), int(skipped)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

func validateSentiment(r sentiment.Result) error {
	if _, err := types.ParseSentiment(string(r.Label)); err != nil {
		return err
	}
	if r.Confidence < 0 || r.Confidence > 1 {
		return fmt.Errorf("%w: %v", types.ErrInvalidConfidence, r.Confidence)
	}
	return nil
}

// assignTopics is whole-batch: a model error drops every surviving comment.
func (p *Pipeline) assignTopics(ctx context.Context, st *runState, items []*item) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.topic")
	defer span.End()

	var idx []int
	var texts []string
	for i, it := range items {
		if !it.dropped {
			idx = append(idx, i)
			texts = append(texts, it.cleaned)
		}
	}
	ss := st.run.Stage(types.StageTopic)
	if len(texts) == 0 {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, p.cfg.CallTimeout)
	defer cancel()
	assignments, err := p.deps.Topics.Assign(cctx, texts)
	if err == nil && len(assignments) != len(texts) {
		err = fmt.Errorf("topic model returned %d assignments for %d texts", len(assignments), len(texts))
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if !errors.Is(err, types.ErrClassification) {
			err = fmt.Errorf("%w: %w", types.ErrClassification, err)
		}
		span.RecordError(err)
		for _, i := range idx {
			st.drop(i, items[i], types.StageTopic, err)
		}
		ss.Skipped = len(idx)
		return err
	}
	for n, i := range idx {
		items[i].topic = assignments[n]
	}
	ss.Succeeded = len(idx)
	return nil
}

func (p *Pipeline) embed(ctx context.Context, st *runState, items []*item) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.embed")
	defer span.End()

	var ok, skipped int32
	var mu sync.Mutex
	err := p.forEach(ctx, items, func(cctx context.Context, i int, it *item) error {
		vec, err := p.deps.Embedder.Embed(cctx, it.comment.Text)
		if errors.Is(err, types.ErrDimensionMismatch) {
			return err
		}
		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, types.ErrEmbedding) {
				err = fmt.Errorf("%w: %w", types.ErrEmbedding, err)
			}
			st.drop(i, it, types.StageEmbed, err)
			skipped++
			return nil
		}
		it.vector = vec
		ok++
		return nil
	})
	ss := st.run.Stage(types.StageEmbed)
	ss.Succeeded, ss.Skipped = int(ok), int(skipped)
	if err != nil {
		span.RecordError(err)
	}
	return err
}

// finalize builds the immutable records of the surviving comments.
func (p *Pipeline) finalize(run *types.Run, req Request, kept []*item) ([]types.AnnotatedComment, []types.Document, types.Insight) {
	comments := make([]types.AnnotatedComment, len(kept))
	docs := make([]types.Document, len(kept))
	insightItems := make([]topic.Item, len(kept))
	for n, it := range kept {
		comments[n] = types.AnnotatedComment{
			Comment:     it.comment,
			RunID:       run.ID,
			CleanedText: it.cleaned,
			Sentiment:   it.sentiment.Label,
			Confidence:  it.sentiment.Confidence,
			TopicID:     it.topic.TopicID,
			TopicLabel:  it.topic.Label,
			Keywords:    it.topic.Keywords,
		}
		docs[n] = types.Document{
			ID:          types.DocumentID(run.SetKey, it.comment.ID),
			SetKey:      run.SetKey,
			RunID:       run.ID,
			CommentID:   it.comment.ID,
			ContentID:   req.ContentID,
			ContentDate: req.ContentDate,
			Text:        it.comment.Text,
			Sentiment:   it.sentiment.Label,
			Confidence:  it.sentiment.Confidence,
			TopicID:     it.topic.TopicID,
			TopicLabel:  it.topic.Label,
			Tokens:      it.tokens,
			Vector:      it.vector,
		}
		insightItems[n] = topic.Item{
			Text:       it.comment.Text,
			TopicID:    it.topic.TopicID,
			TopicLabel: it.topic.Label,
			Keywords:   it.topic.Keywords,
			Sentiment:  it.sentiment.Label,
		}
	}
	return comments, docs, topic.BuildInsight(req.ContentID, req.ContentDate, insightItems)
}

// persist writes the batch in one SQL transaction and swaps it into the
// in-memory indexes only after the commit succeeds.
func (p *Pipeline) persist(ctx context.Context, run *types.Run, comments []types.AnnotatedComment, docs []types.Document, insight *types.Insight) error {
	ctx, span := p.tracer.Start(ctx, "pipeline.persist", trace.WithAttributes(attribute.Int("documents", len(docs))))
	defer span.End()

	batch := &storage.Batch{
		RunID:     run.ID,
		SetKey:    run.SetKey,
		Comments:  comments,
		Documents: docs,
		Insight:   insight,
	}
	err := p.deps.Corpus.ReplaceSet(ctx, run.SetKey, docs, func(ctx context.Context) error {
		return storage.PersistBatch(ctx, p.deps.Storage, batch)
	})
	if err != nil {
		span.RecordError(err)
		if !errors.Is(err, types.ErrIndexWrite) && !errors.Is(err, types.ErrDimensionMismatch) {
			err = fmt.Errorf("%w: %w", types.ErrIndexWrite, err)
		}
		return err
	}
	return nil
}
