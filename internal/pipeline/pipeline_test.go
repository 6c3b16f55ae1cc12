package pipeline

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/sentirag/internal/artifacts"
	"github.com/dshills/sentirag/internal/corpus"
	"github.com/dshills/sentirag/internal/lexical"
	"github.com/dshills/sentirag/internal/sentiment"
	"github.com/dshills/sentirag/internal/storage"
	"github.com/dshills/sentirag/internal/textproc"
	"github.com/dshills/sentirag/internal/topic"
	"github.com/dshills/sentirag/pkg/types"
)

type fakeAcquirer struct {
	comments []types.Comment
	err      error
	calls    int
	mu       sync.Mutex
}

func (f *fakeAcquirer) Fetch(ctx context.Context, locator string, max int) ([]types.Comment, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	out := make([]types.Comment, len(f.comments))
	copy(out, f.comments)
	return out, nil
}

// fakeClassifier fails on any text containing "gagal" and otherwise keys
// the label off a few words.
type fakeClassifier struct{}

func (fakeClassifier) Name() string { return "fake" }

func (fakeClassifier) Classify(ctx context.Context, text string) (sentiment.Result, error) {
	switch {
	case strings.Contains(text, "gagal"):
		return sentiment.Result{}, fmt.Errorf("%w: model timeout", types.ErrClassification)
	case strings.Contains(text, "bagus"):
		return sentiment.Result{Label: types.SentimentPositive, Confidence: 0.9}, nil
	case strings.Contains(text, "kurang"):
		return sentiment.Result{Label: types.SentimentNegative, Confidence: 0.8}, nil
	default:
		return sentiment.Result{Label: types.SentimentNeutral, Confidence: 0.6}, nil
	}
}

type fakeTopics struct {
	err error
}

func (f fakeTopics) Assign(ctx context.Context, texts []string) ([]topic.Assignment, error) {
	if f.err != nil {
		return nil, f.err
	}
	out := make([]topic.Assignment, len(texts))
	for i := range texts {
		out[i] = topic.Assignment{TopicID: 0, Label: "rasa", Keywords: []string{"rasa"}}
	}
	return out, nil
}

// fakeEmbedder fails on "rusak" and reports a dimension mismatch on "dimensi".
type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	switch {
	case strings.Contains(text, "rusak"):
		return nil, fmt.Errorf("%w: upstream 503", types.ErrEmbedding)
	case strings.Contains(text, "dimensi"):
		return nil, fmt.Errorf("%w: expected 4, got 8", types.ErrDimensionMismatch)
	}
	return []float32{1, float32(len(text)%5) + 1, 0.5, 0.25}, nil
}

func (e fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := e.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (fakeEmbedder) Dimension() int   { return 4 }
func (fakeEmbedder) Provider() string { return "fake" }
func (fakeEmbedder) Model() string    { return "fake-4" }
func (fakeEmbedder) Close() error     { return nil }

// failingTxStorage refuses to open transactions, so every persist fails.
type failingTxStorage struct {
	storage.Storage
}

func (failingTxStorage) BeginTx(ctx context.Context) (storage.Tx, error) {
	return nil, errors.New("disk full")
}

type harness struct {
	pipe   *Pipeline
	acq    *fakeAcquirer
	store  storage.Storage
	corpus *corpus.Corpus
	export string
}

func newHarness(t *testing.T, comments []types.Comment, mutate func(*Deps)) *harness {
	t.Helper()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	dir := t.TempDir()
	exporter, err := artifacts.NewExporter(dir)
	require.NoError(t, err)

	acq := &fakeAcquirer{comments: comments}
	deps := Deps{
		Acquirer:   acq,
		Analyzer:   textproc.NewAnalyzer(nil),
		Classifier: fakeClassifier{},
		Topics:     fakeTopics{},
		Embedder:   fakeEmbedder{},
		Storage:    store,
		Corpus:     corpus.New(lexical.DefaultParams(), 0),
		Exporter:   exporter,
	}
	if mutate != nil {
		mutate(&deps)
	}
	p, err := New(deps, Config{Workers: 3, CallTimeout: time.Second})
	require.NoError(t, err)
	p.now = func() time.Time { return time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC) }
	return &harness{pipe: p, acq: acq, store: deps.Storage, corpus: deps.Corpus, export: dir}
}

func makeComments(texts ...string) []types.Comment {
	out := make([]types.Comment, len(texts))
	for i, t := range texts {
		out[i] = types.Comment{ID: fmt.Sprintf("c%d", i), Text: t, AuthorID: "u_abc"}
	}
	return out
}

func request(contentID string) Request {
	return Request{ContentID: contentID, Locator: "https://www.tiktok.com/@a/video/" + contentID, MaxComments: 50}
}

func TestNew(t *testing.T) {
	_, err := New(Deps{}, Config{})
	assert.Error(t, err)

	h := newHarness(t, nil, nil)
	assert.Equal(t, 3, h.pipe.cfg.Workers)
	assert.Equal(t, 15*time.Minute, h.pipe.cfg.AcquireTimeout)
	assert.Equal(t, 50, h.pipe.cfg.MaxComments)
	assert.Equal(t, 500, h.pipe.cfg.MaxAllowed)
}

func TestRunCompleted(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, makeComments("bagus sekali", "kurang enak", "lumayan"), nil)

	res, err := h.pipe.Run(ctx, request("x1"))
	require.NoError(t, err)
	require.NotNil(t, res)

	run := res.Run
	assert.Equal(t, types.RunCompleted, run.State)
	assert.Equal(t, "x1", run.SetKey)
	assert.Equal(t, 3, run.Persisted)
	assert.Empty(t, run.Failures)
	assert.Len(t, run.Artifacts, 3)
	assert.Equal(t, "2024-05-01", run.ContentDate)
	require.NotNil(t, run.FinishedAt)

	require.Len(t, res.Comments, 3)
	assert.Equal(t, types.SentimentPositive, res.Comments[0].Sentiment)
	assert.Equal(t, types.SentimentNegative, res.Comments[1].Sentiment)
	assert.Equal(t, types.SentimentNeutral, res.Comments[2].Sentiment)
	for _, c := range res.Comments {
		assert.Equal(t, "x1", c.ContentID)
		assert.Equal(t, run.ID, c.RunID)
		assert.Equal(t, "rasa", c.TopicLabel)
	}

	require.NotNil(t, res.Insight)
	assert.Equal(t, 3, res.Insight.TotalComments)
	assert.Equal(t, 1, res.Insight.SentimentCounts[types.SentimentPositive])

	assert.Equal(t, []string{"x1:c0", "x1:c1", "x1:c2"}, h.corpus.SetDocuments("x1"))
	assert.Empty(t, h.corpus.Inconsistent())

	n, err := h.store.CountDocuments(ctx, "x1")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	stored, err := h.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunCompleted, stored.State)
	assert.Equal(t, 3, stored.Persisted)

	ins, err := h.store.GetInsight(ctx, "x1")
	require.NoError(t, err)
	assert.Equal(t, res.Insight.Summary, ins.Summary)

	for _, s := range []types.Stage{types.StageAcquire, types.StageClean, types.StageSentiment, types.StageTopic, types.StageEmbed, types.StagePersist} {
		assert.Equal(t, 3, run.Stage(s).Succeeded, s)
	}
}

func TestRunPartial(t *testing.T) {
	ctx := context.Background()
	texts := []string{
		"kopi bagus", "teh manis", "roti lembut", "gagal paham harga", "es segar",
		"susu hangat", "nasi pulen", "bungkus rusak parah", "mie pedas", "sambal mantap",
	}
	h := newHarness(t, makeComments(texts...), nil)

	res, err := h.pipe.Run(ctx, request("x2"))
	require.NoError(t, err)

	run := res.Run
	assert.Equal(t, types.RunPartial, run.State)
	assert.Equal(t, 8, run.Persisted)
	require.Len(t, run.Failures, 2)
	assert.Equal(t, "c3", run.Failures[0].CommentID)
	assert.Equal(t, types.StageSentiment, run.Failures[0].Stage)
	assert.Equal(t, types.KindClassification, run.Failures[0].Kind)
	assert.Equal(t, "c7", run.Failures[1].CommentID)
	assert.Equal(t, types.StageEmbed, run.Failures[1].Stage)
	assert.Equal(t, types.KindEmbedding, run.Failures[1].Kind)

	assert.Equal(t, 1, run.Stage(types.StageSentiment).Skipped)
	assert.Equal(t, 1, run.Stage(types.StageEmbed).Skipped)
	assert.Len(t, h.corpus.SetDocuments("x2"), 8)

	_, ok := h.corpus.Document("x2:c3")
	assert.False(t, ok)

	stored, err := h.store.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, types.RunPartial, stored.State)
	assert.Len(t, stored.Failures, 2)
}

func TestRunPartialClassificationOnly(t *testing.T) {
	texts := []string{
		"kopi bagus", "gagal baca", "roti lembut", "teh manis", "es segar",
		"susu hangat", "nasi pulen", "gagal lagi", "mie pedas", "sambal mantap",
	}
	h := newHarness(t, makeComments(texts...), nil)

	res, err := h.pipe.Run(context.Background(), request("x3"))
	require.NoError(t, err)

	run := res.Run
	assert.Equal(t, types.RunPartial, run.State)
	assert.Equal(t, 8, run.Persisted)
	require.Len(t, run.Failures, 2)
	for i, id := range []string{"c1", "c7"} {
		f := run.Failures[i]
		assert.Equal(t, id, f.CommentID)
		assert.Equal(t, types.StageSentiment, f.Stage)
		assert.Equal(t, types.KindClassification, f.Kind)
		assert.Contains(t, f.Reason, "model timeout")
	}
	assert.Equal(t, 2, run.Stage(types.StageSentiment).Skipped)
	assert.Equal(t, 8, run.Stage(types.StageEmbed).Succeeded)
	assert.Len(t, h.corpus.SetDocuments("x3"), 8)
	assert.Empty(t, h.corpus.Inconsistent())
}

func TestRunRerunReplacesSet(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, makeComments("bagus sekali", "kurang enak", "lumayan"), nil)

	first, err := h.pipe.Run(ctx, request("x1"))
	require.NoError(t, err)
	v1 := h.corpus.Version()

	h.acq.comments = makeComments("bagus sekali", "lumayan")
	second, err := h.pipe.Run(ctx, request("x1"))
	require.NoError(t, err)

	assert.NotEqual(t, first.Run.ID, second.Run.ID)
	assert.Greater(t, h.corpus.Version(), v1)
	assert.Equal(t, []string{"x1:c0", "x1:c1"}, h.corpus.SetDocuments("x1"))
	assert.Equal(t, 2, h.corpus.Stats().Documents)

	n, err := h.store.CountDocuments(ctx, "x1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	runs, err := h.store.ListRuns(ctx, "x1", 10)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestRunLabelSuffixKeepsSets(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, makeComments("bagus sekali", "lumayan"), nil)

	_, err := h.pipe.Run(ctx, request("x1"))
	require.NoError(t, err)

	req := request("x1")
	req.Suffix = types.Suffix{Policy: types.SuffixLabel, Label: "v2"}
	res, err := h.pipe.Run(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, "x1#v2", res.Run.SetKey)
	assert.Len(t, h.corpus.SetDocuments("x1"), 2)
	assert.Len(t, h.corpus.SetDocuments("x1#v2"), 2)
	assert.Equal(t, 4, h.corpus.Stats().Documents)
	assert.FileExists(t, h.export+"/comments_x1.v2.json")
}

func TestRunSetKeysOfDistinctContentsNeverCollide(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, makeComments("bagus sekali"), nil)

	plain, err := h.pipe.Run(ctx, request("x1_a"))
	require.NoError(t, err)

	h.acq.comments = makeComments("kurang enak", "lumayan")
	req := request("x1")
	req.Suffix = types.Suffix{Policy: types.SuffixLabel, Label: "a"}
	labelled, err := h.pipe.Run(ctx, req)
	require.NoError(t, err)

	assert.NotEqual(t, plain.Run.SetKey, labelled.Run.SetKey)
	assert.Equal(t, []string{"x1_a:c0"}, h.corpus.SetDocuments("x1_a"))
	assert.Equal(t, []string{"x1#a:c0", "x1#a:c1"}, h.corpus.SetDocuments("x1#a"))
	assert.Equal(t, 3, h.corpus.Stats().Documents)

	n, err := h.store.CountDocuments(ctx, "x1_a")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.FileExists(t, h.export+"/comments_x1_a.json")
	assert.FileExists(t, h.export+"/comments_x1.a.json")
}

func TestRunTimestampSuffixWithinOneTickKeepsBothSets(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, makeComments("bagus sekali", "lumayan"), nil)

	req := request("x1")
	req.Suffix = types.Suffix{Policy: types.SuffixTimestamp}
	first, err := h.pipe.Run(ctx, req)
	require.NoError(t, err)
	second, err := h.pipe.Run(ctx, req)
	require.NoError(t, err)

	assert.Equal(t, "x1#20240501-100000.000000", first.Run.SetKey)
	assert.Equal(t, "x1#20240501-100000.000001", second.Run.SetKey)
	assert.Len(t, h.corpus.SetDocuments(first.Run.SetKey), 2)
	assert.Len(t, h.corpus.SetDocuments(second.Run.SetKey), 2)
	assert.NotEqual(t, first.Run.Artifacts[0].Path, second.Run.Artifacts[0].Path)
	assert.FileExists(t, first.Run.Artifacts[0].Path)
}

func TestRunFailures(t *testing.T) {
	ctx := context.Background()
	comments := makeComments("bagus sekali", "kurang enak", "lumayan")

	tests := []struct {
		name     string
		comments []types.Comment
		mutate   func(*Deps)
		acqErr   error
		wantErr  error
		wantKind types.ErrorKind
		stage    types.Stage
	}{
		{
			name:     "acquisition",
			comments: comments,
			acqErr:   errors.New("actor run FAILED"),
			wantErr:  types.ErrAcquisition,
			wantKind: types.KindAcquisition,
			stage:    types.StageAcquire,
		},
		{
			name:     "no comments acquired",
			comments: nil,
			wantErr:  types.ErrAcquisition,
			wantKind: types.KindAcquisition,
			stage:    types.StageAcquire,
		},
		{
			name:     "topic model",
			comments: comments,
			mutate:   func(d *Deps) { d.Topics = fakeTopics{err: errors.New("model crashed")} },
			wantErr:  types.ErrClassification,
			wantKind: types.KindClassification,
			stage:    types.StageTopic,
		},
		{
			name:     "every comment dropped",
			comments: makeComments("gagal satu", "gagal dua"),
			wantErr:  types.ErrNoComments,
			wantKind: types.KindClassification,
			stage:    types.StageEmbed,
		},
		{
			name:     "dimension mismatch",
			comments: makeComments("bagus", "dimensi salah"),
			wantErr:  types.ErrDimensionMismatch,
			wantKind: types.KindDimensionMismatch,
			stage:    types.StageEmbed,
		},
		{
			name:     "persist",
			comments: comments,
			mutate:   func(d *Deps) { d.Storage = failingTxStorage{d.Storage} },
			wantErr:  types.ErrIndexWrite,
			wantKind: types.KindIndexWrite,
			stage:    types.StagePersist,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, tt.comments, tt.mutate)
			h.acq.err = tt.acqErr

			res, err := h.pipe.Run(ctx, request("x1"))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			require.NotNil(t, res)

			run := res.Run
			assert.Equal(t, types.RunFailed, run.State)
			assert.Equal(t, tt.wantKind, run.ErrorKind)
			assert.True(t, run.Stage(tt.stage).Failed)
			assert.Zero(t, run.Persisted)
			assert.Nil(t, res.Insight)

			assert.Zero(t, h.corpus.Stats().Documents)
			assert.Empty(t, h.corpus.Inconsistent())

			stored, err := h.store.GetRun(ctx, run.ID)
			require.NoError(t, err)
			assert.Equal(t, types.RunFailed, stored.State)
			assert.Equal(t, tt.wantKind, stored.ErrorKind)
		})
	}
}

func TestRunFailedPersistKeepsPreviousSet(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	h := newHarness(t, makeComments("bagus sekali", "lumayan"), func(d *Deps) { d.Storage = store })
	_, err = h.pipe.Run(ctx, request("x1"))
	require.NoError(t, err)

	h.pipe.deps.Storage = failingTxStorage{store}
	h.acq.comments = makeComments("kurang enak")
	_, err = h.pipe.Run(ctx, request("x1"))
	require.ErrorIs(t, err, types.ErrIndexWrite)

	assert.Equal(t, []string{"x1:c0", "x1:c1"}, h.corpus.SetDocuments("x1"))
	n, err := store.CountDocuments(ctx, "x1")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestRunDropsDuplicatesAndEmptyText(t *testing.T) {
	comments := makeComments("bagus sekali", "lumayan", "!!! ...", "kurang enak")
	comments[3].ID = "c0"
	h := newHarness(t, comments, nil)

	res, err := h.pipe.Run(context.Background(), request("x1"))
	require.NoError(t, err)

	assert.Equal(t, types.RunPartial, res.Run.State)
	assert.Equal(t, 2, res.Run.Persisted)
	require.Len(t, res.Run.Failures, 2)
	assert.Equal(t, "c2", res.Run.Failures[0].CommentID)
	assert.Equal(t, types.KindClassification, res.Run.Failures[0].Kind)
	assert.Equal(t, "c0", res.Run.Failures[1].CommentID)
	assert.Equal(t, types.StageClean, res.Run.Failures[1].Stage)
	assert.Equal(t, types.KindAcquisition, res.Run.Failures[1].Kind)
	assert.Contains(t, res.Run.Failures[1].Reason, "duplicate comment id")
	assert.Equal(t, 2, res.Run.Stage(types.StageClean).Skipped)
}

func TestRunValidation(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, makeComments("bagus"), nil)

	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{"empty content id", Request{ContentID: "  ", Locator: "https://x"}, types.ErrEmptyContentID},
		{"reserved set separator", Request{ContentID: "x1#a", Locator: "https://x"}, types.ErrInvalidContentID},
		{"reserved document separator", Request{ContentID: "x1:a", Locator: "https://x"}, types.ErrInvalidContentID},
		{"missing locator", Request{ContentID: "x1"}, types.ErrAcquisition},
		{"too many comments", Request{ContentID: "x1", Locator: "https://x", MaxComments: 501}, types.ErrInvalidMaxComments},
		{"negative comments", Request{ContentID: "x1", Locator: "https://x", MaxComments: -1}, types.ErrInvalidMaxComments},
		{"label without label", Request{ContentID: "x1", Locator: "https://x", Suffix: types.Suffix{Policy: types.SuffixLabel}}, types.ErrInvalidSuffixPolicy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := h.pipe.Run(ctx, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Nil(t, res)
		})
	}
	assert.Zero(t, h.acq.calls)
}

func TestRunTruncatesToMaxComments(t *testing.T) {
	h := newHarness(t, makeComments("bagus", "lumayan", "kurang enak", "teh manis"), nil)
	req := request("x1")
	req.MaxComments = 2

	res, err := h.pipe.Run(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Run.Persisted)
	assert.Equal(t, 2, res.Run.Stage(types.StageAcquire).Succeeded)
}

func TestRunCanceled(t *testing.T) {
	h := newHarness(t, makeComments("bagus sekali"), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.pipe.Run(ctx, request("x1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.corpus.Stats().Documents)
}

func TestRunConcurrentSameContent(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, makeComments("bagus sekali", "kurang enak", "lumayan"), nil)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = h.pipe.Run(ctx, request("x1"))
		}()
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 3, h.corpus.Stats().Documents)
	assert.Empty(t, h.corpus.Inconsistent())
	assert.Equal(t, 4, h.acq.calls)
}
