package sentiment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dshills/sentirag/internal/retry"
	"github.com/dshills/sentirag/pkg/types"
)

// HuggingFace calls the hosted inference API for a text-classification
// model that emits LABEL_0..LABEL_2 or plain sentiment names.
type HuggingFace struct {
	endpoint   string
	model      string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
	retry      retry.Config
}

// HuggingFaceConfig configures the client.
type HuggingFaceConfig struct {
	Endpoint          string // base URL, model is appended
	Model             string
	Token             string
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Retry             *retry.Config
}

// NewHuggingFace builds a client. A zero RequestsPerSecond disables pacing.
func NewHuggingFace(cfg HuggingFaceConfig) (*HuggingFace, error) {
	if cfg.Endpoint == "" || cfg.Model == "" {
		return nil, fmt.Errorf("huggingface: endpoint and model are required")
	}
	h := &HuggingFace{
		endpoint:   strings.TrimRight(cfg.Endpoint, "/"),
		model:      cfg.Model,
		token:      cfg.Token,
		httpClient: cfg.HTTPClient,
		retry:      retry.Default(),
	}
	if h.httpClient == nil {
		h.httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if cfg.Retry != nil {
		h.retry = *cfg.Retry
	}
	if cfg.RequestsPerSecond > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return h, nil
}

func (h *HuggingFace) Name() string { return ProviderHuggingFace + ":" + h.model }

type hfScore struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

func (h *HuggingFace) Classify(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, fmt.Errorf("%w: empty text", types.ErrClassification)
	}
	scores, err := retry.Do(ctx, h.retry, func(ctx context.Context) ([]hfScore, error) {
		if h.limiter != nil {
			if err := h.limiter.Wait(ctx); err != nil {
				return nil, retry.Permanent(err)
			}
		}
		return h.call(ctx, text)
	})
	if err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", types.ErrClassification, h.model, err)
	}

	mapped := make(map[types.Sentiment]float64, len(scores))
	for _, s := range scores {
		label, err := MapLabel(s.Label)
		if err != nil {
			return Result{}, fmt.Errorf("%w: %w", types.ErrClassification, err)
		}
		mapped[label] = s.Score
	}
	label, conf, err := top(mapped)
	if err != nil {
		return Result{}, err
	}
	if conf < 0 || conf > 1 {
		return Result{}, fmt.Errorf("%w: %w: %v", types.ErrClassification, types.ErrInvalidConfidence, conf)
	}
	return Result{Label: label, Confidence: conf, Scores: mapped}, nil
}

func (h *HuggingFace) call(ctx context.Context, text string) ([]hfScore, error) {
	body, err := json.Marshal(map[string]any{
		"inputs":  text,
		"options": map[string]any{"wait_for_model": true},
	})
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.endpoint+"/"+h.model, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
		// 503 means the model is still loading.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(apiErr)
		}
		return nil, apiErr
	}
	return decodeScores(raw)
}

// decodeScores accepts both [[{label,score}]] and [{label,score}].
func decodeScores(raw []byte) ([]hfScore, error) {
	var nested [][]hfScore
	if err := json.Unmarshal(raw, &nested); err == nil && len(nested) > 0 {
		return nested[0], nil
	}
	var flat []hfScore
	if err := json.Unmarshal(raw, &flat); err != nil {
		return nil, retry.Permanent(fmt.Errorf("decode response: %w", err))
	}
	return flat, nil
}
