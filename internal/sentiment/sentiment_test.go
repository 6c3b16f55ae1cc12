package sentiment

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/sentirag/internal/retry"
	"github.com/dshills/sentirag/pkg/types"
)

func TestMapLabel(t *testing.T) {
	tests := []struct {
		in      string
		want    types.Sentiment
		wantErr bool
	}{
		{"LABEL_0", types.SentimentNegative, false},
		{"label_1", types.SentimentNeutral, false},
		{"LABEL_2", types.SentimentPositive, false},
		{"Positive", types.SentimentPositive, false},
		{"NEGATIVE", types.SentimentNegative, false},
		{"LABEL_3", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := MapLabel(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, types.ErrInvalidSentiment)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTop(t *testing.T) {
	label, score, err := top(map[types.Sentiment]float64{
		types.SentimentPositive: 0.7,
		types.SentimentNegative: 0.2,
		types.SentimentNeutral:  0.1,
	})
	require.NoError(t, err)
	assert.Equal(t, types.SentimentPositive, label)
	assert.Equal(t, 0.7, score)

	// Ties resolve to neutral first.
	label, _, err = top(map[types.Sentiment]float64{
		types.SentimentPositive: 0.5,
		types.SentimentNeutral:  0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, types.SentimentNeutral, label)

	_, _, err = top(nil)
	assert.ErrorIs(t, err, types.ErrClassification)
}

func hfServer(t *testing.T, status *atomic.Int32, calls *atomic.Int32, body string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		assert.Equal(t, "/models/indobert", r.URL.Path)
		assert.Equal(t, "Bearer hf-token", r.Header.Get("Authorization"))

		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.NotEmpty(t, req["inputs"])

		if s := status.Load(); s != 0 {
			w.WriteHeader(int(s))
			_, _ = w.Write([]byte(`{"error":"loading"}`))
			return
		}
		_, _ = w.Write([]byte(body))
	}))
}

func newTestHF(t *testing.T, url string) *HuggingFace {
	t.Helper()
	h, err := NewHuggingFace(HuggingFaceConfig{
		Endpoint: url + "/models/",
		Model:    "indobert",
		Token:    "hf-token",
		Retry:    &retry.Config{MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond, Multiplier: 2},
	})
	require.NoError(t, err)
	return h
}

func TestHuggingFace(t *testing.T) {
	ctx := context.Background()

	t.Run("nested response", func(t *testing.T) {
		var status, calls atomic.Int32
		srv := hfServer(t, &status, &calls, `[[{"label":"LABEL_2","score":0.91},{"label":"LABEL_0","score":0.05},{"label":"LABEL_1","score":0.04}]]`)
		defer srv.Close()

		r, err := newTestHF(t, srv.URL).Classify(ctx, "enak banget")
		require.NoError(t, err)
		assert.Equal(t, types.SentimentPositive, r.Label)
		assert.InDelta(t, 0.91, r.Confidence, 1e-9)
		assert.Len(t, r.Scores, 3)
	})

	t.Run("flat response", func(t *testing.T) {
		var status, calls atomic.Int32
		srv := hfServer(t, &status, &calls, `[{"label":"negative","score":0.8},{"label":"positive","score":0.2}]`)
		defer srv.Close()

		r, err := newTestHF(t, srv.URL).Classify(ctx, "mahal")
		require.NoError(t, err)
		assert.Equal(t, types.SentimentNegative, r.Label)
	})

	t.Run("unavailable retries then fails", func(t *testing.T) {
		var status, calls atomic.Int32
		status.Store(http.StatusServiceUnavailable)
		srv := hfServer(t, &status, &calls, "")
		defer srv.Close()

		_, err := newTestHF(t, srv.URL).Classify(ctx, "enak")
		assert.ErrorIs(t, err, types.ErrClassification)
		assert.Equal(t, int32(3), calls.Load())
	})

	t.Run("bad request is permanent", func(t *testing.T) {
		var status, calls atomic.Int32
		status.Store(http.StatusBadRequest)
		srv := hfServer(t, &status, &calls, "")
		defer srv.Close()

		_, err := newTestHF(t, srv.URL).Classify(ctx, "enak")
		assert.ErrorIs(t, err, types.ErrClassification)
		assert.Equal(t, int32(1), calls.Load())
	})

	t.Run("unknown label", func(t *testing.T) {
		var status, calls atomic.Int32
		srv := hfServer(t, &status, &calls, `[{"label":"LABEL_9","score":1}]`)
		defer srv.Close()

		_, err := newTestHF(t, srv.URL).Classify(ctx, "enak")
		assert.ErrorIs(t, err, types.ErrClassification)
	})

	t.Run("empty text", func(t *testing.T) {
		h, err := NewHuggingFace(HuggingFaceConfig{Endpoint: "http://unused", Model: "m"})
		require.NoError(t, err)
		_, err = h.Classify(ctx, "  ")
		assert.ErrorIs(t, err, types.ErrClassification)
	})

	t.Run("missing model", func(t *testing.T) {
		_, err := NewHuggingFace(HuggingFaceConfig{Endpoint: "http://x"})
		assert.Error(t, err)
	})
}

func TestLexicon(t *testing.T) {
	ctx := context.Background()
	l := NewLexicon(nil)

	tests := []struct {
		text string
		want types.Sentiment
	}{
		{"Rasanya enak dan harganya murah", types.SentimentPositive},
		{"Mahal dan pelayanannya lambat", types.SentimentNegative},
		{"tidak enak sama sekali", types.SentimentNegative},
		{"bukan jelek kok", types.SentimentPositive},
		{"saya datang jam tujuh", types.SentimentNeutral},
		{"enak tapi mahal", types.SentimentNeutral},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			r, err := l.Classify(ctx, tt.text)
			require.NoError(t, err)
			assert.Equal(t, tt.want, r.Label)
			assert.GreaterOrEqual(t, r.Confidence, 0.0)
			assert.LessOrEqual(t, r.Confidence, 1.0)
		})
	}

	t.Run("intensifier raises confidence", func(t *testing.T) {
		plain, err := l.Classify(ctx, "enak")
		require.NoError(t, err)
		strong, err := l.Classify(ctx, "enak banget")
		require.NoError(t, err)
		assert.Greater(t, strong.Confidence, plain.Confidence)
	})

	t.Run("no words", func(t *testing.T) {
		_, err := l.Classify(ctx, "!!! ???")
		assert.ErrorIs(t, err, types.ErrClassification)
	})

	t.Run("canceled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := l.Classify(cctx, "enak")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestPredict(t *testing.T) {
	rs, err := Predict(context.Background(), NewLexicon(nil), []string{"enak", "jelek"})
	require.NoError(t, err)
	require.Len(t, rs, 2)
	assert.Equal(t, types.SentimentPositive, rs[0].Label)
	assert.Equal(t, types.SentimentNegative, rs[1].Label)

	_, err = Predict(context.Background(), NewLexicon(nil), []string{"enak", "..."})
	assert.ErrorIs(t, err, types.ErrClassification)
}

func TestNew(t *testing.T) {
	c, err := New(Config{}, nil)
	require.NoError(t, err)
	assert.Equal(t, ProviderLexicon, c.Name())

	c, err = New(Config{Provider: "HuggingFace", Endpoint: "http://x", Model: "m"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "huggingface:m", c.Name())

	_, err = New(Config{Provider: "vader"}, nil)
	assert.Error(t, err)
}
