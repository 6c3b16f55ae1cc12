package acquire

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/dshills/sentirag/internal/logging"
	"github.com/dshills/sentirag/pkg/types"
)

// Apify run statuses.
const (
	statusSucceeded = "SUCCEEDED"
	statusFailed    = "FAILED"
	statusAborted   = "ABORTED"
	statusTimedOut  = "TIMED-OUT"
)

// ApifyConfig configures the actor client.
type ApifyConfig struct {
	BaseURL           string
	Token             string
	Actor             string
	PollInterval      time.Duration
	MaxWait           time.Duration
	MaxRetries        int
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            *slog.Logger
}

// Apify runs a comment-scraper actor and reads its default dataset.
type Apify struct {
	cfg     ApifyConfig
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// NewApify validates cfg and builds the client.
func NewApify(cfg ApifyConfig) (*Apify, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("apify: token is required")
	}
	if cfg.Actor == "" {
		return nil, fmt.Errorf("apify: actor is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.apify.com/v2"
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 3 * time.Second
	}
	if cfg.MaxWait <= 0 {
		cfg.MaxWait = 10 * time.Minute
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	a := &Apify{
		cfg:    cfg,
		client: client,
		logger: logger.With("component", "apify"),
	}
	if cfg.RequestsPerSecond > 0 {
		a.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}
	return a, nil
}

// Fetch starts an actor run, waits for it and returns the dataset as
// comments. The whole sequence is retried MaxRetries times.
func (a *Apify) Fetch(ctx context.Context, locator string, max int) ([]types.Comment, error) {
	u, err := url.Parse(locator)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: invalid locator %q", types.ErrAcquisition, locator)
	}

	var lastErr error
	for attempt := 1; attempt <= a.cfg.MaxRetries+1; attempt++ {
		comments, err := a.attempt(ctx, locator, max)
		if err == nil && len(comments) > 0 {
			a.logger.InfoContext(ctx, "fetched comments", "locator", locator, "count", len(comments), "attempt", attempt)
			return comments, nil
		}
		if err == nil {
			err = errors.New("dataset returned no comments")
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
		a.logger.WarnContext(ctx, "scrape attempt failed", "attempt", attempt, "error", err)
	}
	return nil, fmt.Errorf("%w: %w", types.ErrAcquisition, lastErr)
}

type apifyRun struct {
	ID               string `json:"id"`
	Status           string `json:"status"`
	DefaultDatasetID string `json:"defaultDatasetId"`
}

type apifyEnvelope struct {
	Data apifyRun `json:"data"`
}

func (a *Apify) attempt(ctx context.Context, locator string, max int) ([]types.Comment, error) {
	input := map[string]any{
		"postURLs":        []string{locator},
		"commentsPerPost": max,
	}
	var started apifyEnvelope
	if err := a.do(ctx, http.MethodPost, "/acts/"+url.PathEscape(a.cfg.Actor)+"/runs", nil, input, &started); err != nil {
		return nil, fmt.Errorf("start run: %w", err)
	}
	if started.Data.ID == "" {
		return nil, errors.New("start run: response has no run id")
	}

	run, err := a.wait(ctx, started.Data)
	if err != nil {
		return nil, err
	}
	if run.Status != statusSucceeded {
		return nil, fmt.Errorf("run %s ended with status %s", run.ID, run.Status)
	}
	if run.DefaultDatasetID == "" {
		return nil, fmt.Errorf("run %s has no dataset", run.ID)
	}

	query := url.Values{"format": {"json"}, "clean": {"true"}}
	if max > 0 {
		query.Set("limit", strconv.Itoa(max))
	}
	var items []map[string]any
	if err := a.do(ctx, http.MethodGet, "/datasets/"+url.PathEscape(run.DefaultDatasetID)+"/items", query, nil, &items); err != nil {
		return nil, fmt.Errorf("read dataset: %w", err)
	}
	return Normalize(items, max), nil
}

// wait polls the run until it reaches a terminal status or MaxWait passes.
func (a *Apify) wait(ctx context.Context, run apifyRun) (apifyRun, error) {
	ctx, cancel := context.WithTimeout(ctx, a.cfg.MaxWait)
	defer cancel()

	poll := rate.NewLimiter(rate.Every(a.cfg.PollInterval), 1)
	for {
		switch run.Status {
		case statusSucceeded, statusFailed, statusAborted, statusTimedOut:
			return run, nil
		}
		if err := poll.Wait(ctx); err != nil {
			return run, fmt.Errorf("waiting for run %s (last status %q): %w", run.ID, run.Status, err)
		}
		var env apifyEnvelope
		if err := a.do(ctx, http.MethodGet, "/actor-runs/"+url.PathEscape(run.ID), nil, nil, &env); err != nil {
			return run, fmt.Errorf("poll run %s: %w", run.ID, err)
		}
		env.Data.ID = run.ID
		run = env.Data
		a.logger.DebugContext(ctx, "polled run", "run", run.ID, "status", run.Status)
	}
}

func (a *Apify) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if a.limiter != nil {
		if err := a.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	target := a.cfg.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, target, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+a.cfg.Token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
