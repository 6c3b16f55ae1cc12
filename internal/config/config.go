// Package config loads sentirag settings from a TOML file with environment
// overrides applied on top.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/dshills/sentirag/pkg/types"
)

// DefaultFile is looked up in the working directory when no path is given.
const DefaultFile = "sentirag.toml"

// Normalization methods for score fusion.
const (
	NormMinMax = "minmax"
	NormZScore = "zscore"
)

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// Duration decodes TOML strings such as "30s" or "10m".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Config is the complete runtime configuration.
type Config struct {
	Storage     StorageConfig     `toml:"storage"`
	Retrieval   RetrievalConfig   `toml:"retrieval"`
	Pipeline    PipelineConfig    `toml:"pipeline"`
	Embedder    EmbedderConfig    `toml:"embedder"`
	Sentiment   SentimentConfig   `toml:"sentiment"`
	Topic       TopicConfig       `toml:"topic"`
	Acquisition AcquisitionConfig `toml:"acquisition"`
	Generator   GeneratorConfig   `toml:"generator"`
	Log         LogConfig         `toml:"log"`
	HTTP        HTTPConfig        `toml:"http"`
}

type StorageConfig struct {
	Driver string `toml:"driver"`
	Path   string `toml:"path"`
	DSN    string `toml:"dsn"`
}

type RetrievalConfig struct {
	WLexical        float64  `toml:"w_lexical"`
	WVector         float64  `toml:"w_vector"`
	CandidateFactor int      `toml:"candidate_factor"`
	Normalization   string   `toml:"normalization"`
	SnippetLength   int      `toml:"snippet_length"`
	BM25K1          float64  `toml:"bm25_k1"`
	BM25B           float64  `toml:"bm25_b"`
	CacheSize       int      `toml:"cache_size"`
	CacheTTL        Duration `toml:"cache_ttl"`
	DefaultK        int      `toml:"default_k"`
	MaxK            int      `toml:"max_k"`
}

type PipelineConfig struct {
	Workers        int      `toml:"workers"`
	CallTimeout    Duration `toml:"call_timeout"`
	AcquireTimeout Duration `toml:"acquire_timeout"`
	MaxComments    int      `toml:"max_comments"`
	MaxAllowed     int      `toml:"max_allowed"`
	Suffix         string   `toml:"suffix"`
	ExportDir      string   `toml:"export_dir"`
	SlangFiles     []string `toml:"slang_files"`
}

type EmbedderConfig struct {
	Provider  string `toml:"provider"`
	APIKey    string `toml:"api_key"`
	Model     string `toml:"model"`
	Dimension int    `toml:"dimension"`
	CacheSize int    `toml:"cache_size"`
}

type SentimentConfig struct {
	Provider          string  `toml:"provider"`
	Endpoint          string  `toml:"endpoint"`
	Model             string  `toml:"model"`
	Token             string  `toml:"token"`
	RequestsPerSecond float64 `toml:"requests_per_second"`
}

type TopicConfig struct {
	MinTopicSize int `toml:"min_topic_size"`
	MaxTopics    int `toml:"max_topics"`
}

type AcquisitionConfig struct {
	Provider          string   `toml:"provider"`
	Token             string   `toml:"token"`
	Actor             string   `toml:"actor"`
	BaseURL           string   `toml:"base_url"`
	PollInterval      Duration `toml:"poll_interval"`
	MaxWait           Duration `toml:"max_wait"`
	MaxRetries        int      `toml:"max_retries"`
	RequestsPerSecond float64  `toml:"requests_per_second"`
	FilePath          string   `toml:"file_path"`
}

type GeneratorConfig struct {
	Enabled     bool     `toml:"enabled"`
	BaseURL     string   `toml:"base_url"`
	Model       string   `toml:"model"`
	APIKey      string   `toml:"api_key"`
	Temperature float64  `toml:"temperature"`
	MaxTokens   int      `toml:"max_tokens"`
	Timeout     Duration `toml:"timeout"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type HTTPConfig struct {
	Addr string `toml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver: DriverSQLite,
			Path:   "sentirag.db",
		},
		Retrieval: RetrievalConfig{
			WLexical:        0.5,
			WVector:         0.5,
			CandidateFactor: 2,
			Normalization:   NormMinMax,
			SnippetLength:   200,
			BM25K1:          1.5,
			BM25B:           0.75,
			CacheSize:       256,
			CacheTTL:        Duration{5 * time.Minute},
			DefaultK:        5,
			MaxK:            20,
		},
		Pipeline: PipelineConfig{
			Workers:        4,
			CallTimeout:    Duration{30 * time.Second},
			AcquireTimeout: Duration{15 * time.Minute},
			MaxComments:    50,
			MaxAllowed:     500,
			Suffix:         "none",
			ExportDir:      "exports",
		},
		Embedder: EmbedderConfig{
			Provider:  "local",
			CacheSize: 10000,
		},
		Sentiment: SentimentConfig{
			Provider:          "lexicon",
			Endpoint:          "https://api-inference.huggingface.co/models",
			Model:             "niejanee/tokopedia-sentiment-analysis-indobert",
			RequestsPerSecond: 5,
		},
		Topic: TopicConfig{
			MinTopicSize: 3,
			MaxTopics:    8,
		},
		Acquisition: AcquisitionConfig{
			Provider:          "apify",
			Actor:             "BDec00yAmCm1QbMEI",
			BaseURL:           "https://api.apify.com/v2",
			PollInterval:      Duration{3 * time.Second},
			MaxWait:           Duration{10 * time.Minute},
			MaxRetries:        2,
			RequestsPerSecond: 2,
		},
		Generator: GeneratorConfig{
			BaseURL:     "https://dashscope-intl.aliyuncs.com/compatible-mode/v1",
			Model:       "qwen-flash",
			Temperature: 0.2,
			MaxTokens:   500,
			Timeout:     Duration{60 * time.Second},
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		HTTP: HTTPConfig{
			Addr: ":8000",
		},
	}
}

// Load reads path over the defaults and applies environment overrides.
// A missing file is not an error when path is DefaultFile or empty.
func Load(path string) (*Config, error) {
	cfg := Default()

	explicit := path != "" && path != DefaultFile
	if path == "" {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.ApplyEnv(os.LookupEnv)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables. lookup is os.LookupEnv outside
// of tests.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) {
	set := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	set("SENTIRAG_DB_PATH", &c.Storage.Path)
	if v, ok := lookup("SENTIRAG_PG_DSN"); ok && v != "" {
		c.Storage.DSN = v
		c.Storage.Driver = DriverPostgres
	}
	set("APIFY_TOKEN", &c.Acquisition.Token)
	set("HF_API_TOKEN", &c.Sentiment.Token)
	set("SAVE_TS_SUFFIX", &c.Pipeline.Suffix)
	set("SENTIRAG_LOG_LEVEL", &c.Log.Level)

	// Embedder keys follow the provider that is configured.
	switch strings.ToLower(c.Embedder.Provider) {
	case "jina":
		set("JINA_API_KEY", &c.Embedder.APIKey)
	case "openai":
		set("OPENAI_API_KEY", &c.Embedder.APIKey)
	}

	if v, ok := lookup("QWEN_API_KEY"); ok && v != "" {
		c.Generator.APIKey = v
		c.Generator.Enabled = true
	}
	set("QWEN_BASE_URL", &c.Generator.BaseURL)
}

// Validate rejects configurations the engine cannot run with.
func (c *Config) Validate() error {
	r := c.Retrieval
	if r.WLexical < 0 || r.WVector < 0 {
		return fmt.Errorf("%w: retrieval weights must be non-negative", ErrInvalidConfig)
	}
	if r.WLexical == 0 && r.WVector == 0 {
		return fmt.Errorf("%w: at least one retrieval weight must be positive", ErrInvalidConfig)
	}
	switch r.Normalization {
	case NormMinMax, NormZScore:
	default:
		return fmt.Errorf("%w: unknown normalization %q", ErrInvalidConfig, r.Normalization)
	}
	if r.CandidateFactor < 1 {
		return fmt.Errorf("%w: candidate_factor must be >= 1", ErrInvalidConfig)
	}
	if r.SnippetLength <= 0 {
		return fmt.Errorf("%w: snippet_length must be positive", ErrInvalidConfig)
	}
	if r.DefaultK < 1 || r.MaxK < r.DefaultK {
		return fmt.Errorf("%w: need 1 <= default_k <= max_k", ErrInvalidConfig)
	}

	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Storage.Path == "" {
			return fmt.Errorf("%w: storage.path is required for sqlite", ErrInvalidConfig)
		}
	case DriverPostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("%w: storage.dsn is required for postgres", ErrInvalidConfig)
		}
	default:
		return fmt.Errorf("%w: unknown storage driver %q", ErrInvalidConfig, c.Storage.Driver)
	}

	p := c.Pipeline
	if p.Workers < 1 {
		return fmt.Errorf("%w: pipeline.workers must be >= 1", ErrInvalidConfig)
	}
	if p.MaxAllowed < 1 || p.MaxComments < 1 || p.MaxComments > p.MaxAllowed {
		return fmt.Errorf("%w: need 1 <= max_comments <= max_allowed", ErrInvalidConfig)
	}
	if err := types.ParseSuffix(p.Suffix).Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.Topic.MinTopicSize < 2 {
		return fmt.Errorf("%w: topic.min_topic_size must be >= 2", ErrInvalidConfig)
	}
	return nil
}
