package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"hash/fnv"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/dshills/sentirag/internal/retry"
	"github.com/dshills/sentirag/internal/textproc"
	"github.com/dshills/sentirag/pkg/types"
)

// Provider configuration
const (
	ProviderJina   = "jina"
	ProviderOpenAI = "openai"
	ProviderLocal  = "local"

	// Default models
	DefaultJinaModel   = "jina-embeddings-v3"
	DefaultOpenAIModel = "text-embedding-3-small"

	// Endpoints
	JinaEndpoint   = "https://api.jina.ai/v1/embeddings"
	OpenAIEndpoint = "https://api.openai.com/v1/embeddings"

	// Dimensions
	JinaDimension   = 1024
	OpenAIDimension = 1536
	LocalDimension  = 256

	// Batch limits
	MaxBatchSize = 100
)

// HTTPProvider implements Embedder against an OpenAI-style /embeddings
// endpoint. Jina and OpenAI share the wire format.
type HTTPProvider struct {
	name       string
	endpoint   string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
	cache      *Cache
	retry      retry.Config
}

// Option customizes an HTTPProvider.
type Option func(*HTTPProvider)

// WithEndpoint overrides the API URL.
func WithEndpoint(url string) Option { return func(p *HTTPProvider) { p.endpoint = url } }

// WithModel overrides the model name.
func WithModel(model string) Option {
	return func(p *HTTPProvider) {
		if model != "" {
			p.model = model
		}
	}
}

// WithDimension overrides the expected vector length.
func WithDimension(dim int) Option {
	return func(p *HTTPProvider) {
		if dim > 0 {
			p.dimension = dim
		}
	}
}

// WithHTTPClient replaces the HTTP client.
func WithHTTPClient(c *http.Client) Option { return func(p *HTTPProvider) { p.httpClient = c } }

// WithRetry replaces the retry policy.
func WithRetry(cfg retry.Config) Option { return func(p *HTTPProvider) { p.retry = cfg } }

// NewJinaProvider creates a Jina AI embedder.
func NewJinaProvider(apiKey string, cache *Cache, opts ...Option) (*HTTPProvider, error) {
	return newHTTPProvider(ProviderJina, JinaEndpoint, DefaultJinaModel, JinaDimension, "JINA_API_KEY", apiKey, cache, opts)
}

// NewOpenAIProvider creates an OpenAI embedder.
func NewOpenAIProvider(apiKey string, cache *Cache, opts ...Option) (*HTTPProvider, error) {
	return newHTTPProvider(ProviderOpenAI, OpenAIEndpoint, DefaultOpenAIModel, OpenAIDimension, "OPENAI_API_KEY", apiKey, cache, opts)
}

func newHTTPProvider(name, endpoint, model string, dim int, keyVar, apiKey string, cache *Cache, opts []Option) (*HTTPProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: %s not set", ErrNoProviderEnabled, keyVar)
	}
	p := &HTTPProvider{
		name:      name,
		endpoint:  endpoint,
		apiKey:    apiKey,
		model:     model,
		dimension: dim,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		cache: cache,
		retry: retry.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

func (p *HTTPProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := p.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (p *HTTPProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}
	if len(texts) > MaxBatchSize {
		return nil, fmt.Errorf("%w: %w: max %d texts allowed", types.ErrEmbedding, ErrBatchTooLarge, MaxBatchSize)
	}

	out := make([][]float32, len(texts))
	var missing []int
	for i, text := range texts {
		if p.cache != nil {
			if v, ok := p.cache.Get(ComputeHash(p.name, p.model, text)); ok {
				out[i] = v
				continue
			}
		}
		missing = append(missing, i)
	}
	if len(missing) == 0 {
		return out, nil
	}

	pending := make([]string, len(missing))
	for j, i := range missing {
		pending[j] = texts[i]
	}
	vecs, err := retry.Do(ctx, p.retry, func(ctx context.Context) ([][]float32, error) {
		return p.callAPI(ctx, pending)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %s: %w", types.ErrEmbedding, ErrProviderFailed, p.name, err)
	}
	if len(vecs) != len(pending) {
		return nil, fmt.Errorf("%w: %w: %s returned %d vectors for %d texts",
			types.ErrEmbedding, ErrProviderFailed, p.name, len(vecs), len(pending))
	}

	for j, i := range missing {
		if err := checkDimension(p.dimension, vecs[j]); err != nil {
			return nil, err
		}
		out[i] = vecs[j]
		if p.cache != nil {
			p.cache.Set(ComputeHash(p.name, p.model, texts[i]), vecs[j])
		}
	}
	return out, nil
}

func (p *HTTPProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	body, err := json.Marshal(map[string]interface{}{
		"input": texts,
		"model": p.model,
	})
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("marshal request: %w", err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, retry.Permanent(fmt.Errorf("create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("api call: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		apiErr := fmt.Errorf("api error %d: %s", resp.StatusCode, strings.TrimSpace(string(bodyBytes)))
		// Client errors other than rate limiting will not improve on retry.
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return nil, retry.Permanent(apiErr)
		}
		return nil, apiErr
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	sort.SliceStable(apiResp.Data, func(i, j int) bool { return apiResp.Data[i].Index < apiResp.Data[j].Index })
	vecs := make([][]float32, len(apiResp.Data))
	for i, d := range apiResp.Data {
		vecs[i] = d.Embedding
	}
	return vecs, nil
}

func (p *HTTPProvider) Dimension() int   { return p.dimension }
func (p *HTTPProvider) Provider() string { return p.name }
func (p *HTTPProvider) Model() string    { return p.model }

func (p *HTTPProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}

// LocalProvider embeds text offline by feature hashing: analyzer tokens and
// their character trigrams are hashed into a fixed number of signed buckets
// and the result is L2-normalized. Texts sharing words or word stems land
// close together.
type LocalProvider struct {
	analyzer  *textproc.Analyzer
	dimension int
	cache     *Cache
}

// NewLocalProvider creates a hashing embedder. dim <= 0 selects
// LocalDimension. analyzer may be nil.
func NewLocalProvider(analyzer *textproc.Analyzer, dim int, cache *Cache) *LocalProvider {
	if analyzer == nil {
		analyzer = textproc.NewAnalyzer(nil)
	}
	if dim <= 0 {
		dim = LocalDimension
	}
	return &LocalProvider{analyzer: analyzer, dimension: dim, cache: cache}
}

func (l *LocalProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: %w", types.ErrEmbedding, ErrEmptyText)
	}

	hash := ComputeHash(ProviderLocal, l.Model(), text)
	if l.cache != nil {
		if v, ok := l.cache.Get(hash); ok {
			return v, nil
		}
	}

	features := l.features(text)
	if len(features) == 0 {
		return nil, fmt.Errorf("%w: no features in %q", types.ErrEmbedding, text)
	}
	vec := make([]float32, l.dimension)
	for _, f := range features {
		h := fnv.New64a()
		_, _ = h.Write([]byte(f.term))
		sum := h.Sum64()
		idx := int(sum % uint64(l.dimension))
		sign := float32(1)
		if sum>>63 == 1 {
			sign = -1
		}
		vec[idx] += sign * f.weight
	}
	vec = NormalizeVector(vec)

	if l.cache != nil {
		l.cache.Set(hash, vec)
	}
	return vec, nil
}

type feature struct {
	term   string
	weight float32
}

func (l *LocalProvider) features(text string) []feature {
	tokens := l.analyzer.Analyze(text)
	if len(tokens) == 0 {
		// Queries made only of stopwords still deserve a vector.
		tokens = strings.Fields(strings.ToLower(l.analyzer.Clean(text)))
	}
	var out []feature
	for _, tok := range tokens {
		out = append(out, feature{term: "w:" + tok, weight: 1})
		padded := []rune("^" + tok + "$")
		for i := 0; i+3 <= len(padded); i++ {
			out = append(out, feature{term: "g:" + string(padded[i:i+3]), weight: 0.5})
		}
	}
	return out
}

func (l *LocalProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateTexts(texts); err != nil {
		return nil, err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := l.Embed(ctx, text)
		if err != nil {
			return nil, fmt.Errorf("embedding text %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func (l *LocalProvider) Dimension() int   { return l.dimension }
func (l *LocalProvider) Provider() string { return ProviderLocal }
func (l *LocalProvider) Model() string    { return fmt.Sprintf("hashing-%d", l.dimension) }
func (l *LocalProvider) Close() error     { return nil }
