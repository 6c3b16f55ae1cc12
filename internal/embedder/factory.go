package embedder

import (
	"fmt"
	"strings"

	"github.com/dshills/sentirag/internal/textproc"
)

// Config holds embedder configuration
type Config struct {
	Provider  string
	APIKey    string
	Model     string
	Dimension int
	CacheSize int
}

// New creates an embedder with explicit configuration. analyzer is only
// used by the local provider and may be nil.
func New(cfg Config, analyzer *textproc.Analyzer) (Embedder, error) {
	var cache *Cache
	if cfg.CacheSize > 0 {
		cache = NewCache(cfg.CacheSize)
	}

	var (
		p   *HTTPProvider
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case ProviderJina:
		p, err = NewJinaProvider(cfg.APIKey, cache, WithModel(cfg.Model), WithDimension(cfg.Dimension))
	case ProviderOpenAI:
		p, err = NewOpenAIProvider(cfg.APIKey, cache, WithModel(cfg.Model), WithDimension(cfg.Dimension))
	case ProviderLocal, "":
		return NewLocalProvider(analyzer, cfg.Dimension, cache), nil
	default:
		return nil, fmt.Errorf("%w: unknown provider %s", ErrUnsupportedModel, cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}
