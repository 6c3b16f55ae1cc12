// Package app wires configuration into the long-lived components shared by
// every entry point: storage, the in-memory corpus, the ingestion pipeline
// and the query engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/dshills/sentirag/internal/acquire"
	"github.com/dshills/sentirag/internal/artifacts"
	"github.com/dshills/sentirag/internal/config"
	"github.com/dshills/sentirag/internal/corpus"
	"github.com/dshills/sentirag/internal/embedder"
	"github.com/dshills/sentirag/internal/generator"
	"github.com/dshills/sentirag/internal/lexical"
	"github.com/dshills/sentirag/internal/logging"
	"github.com/dshills/sentirag/internal/pipeline"
	"github.com/dshills/sentirag/internal/searcher"
	"github.com/dshills/sentirag/internal/sentiment"
	"github.com/dshills/sentirag/internal/storage"
	"github.com/dshills/sentirag/internal/textproc"
	"github.com/dshills/sentirag/internal/topic"
	"github.com/dshills/sentirag/pkg/types"
)

// Name and Version identify the service on every surface.
const (
	Name    = "sentirag"
	Version = "1.0.0"
)

// App holds the wired components. Fields are read-only after New.
type App struct {
	Config     *config.Config
	Logger     *slog.Logger
	Storage    storage.Storage
	Corpus     *corpus.Corpus
	Analyzer   *textproc.Analyzer
	Classifier sentiment.Classifier
	Embedder   embedder.Embedder
	Exporter   *artifacts.Exporter
	Pipeline   *pipeline.Pipeline
	Searcher   *searcher.Searcher
}

// Options replaces individual components, mostly for tests and for the
// file-based acquisition mode of the CLI.
type Options struct {
	Acquirer   acquire.Acquirer
	Classifier sentiment.Classifier
	Embedder   embedder.Embedder
	Generator  generator.Generator
}

// New builds every component from cfg and hydrates the corpus from storage.
// On error nothing is left open.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (_ *App, err error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.Discard()
	}

	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	if a.Storage, err = openStorage(ctx, cfg.Storage); err != nil {
		return nil, err
	}

	slang, slangPath, err := textproc.LoadSlangFile(cfg.Pipeline.SlangFiles...)
	if err != nil {
		return nil, err
	}
	if slangPath != "" {
		logger.Info("slang dictionary loaded", "path", slangPath, "entries", slang.Len())
	}
	a.Analyzer = textproc.NewAnalyzer(slang)

	a.Embedder = opts.Embedder
	if a.Embedder == nil {
		a.Embedder, err = embedder.New(embedder.Config{
			Provider:  cfg.Embedder.Provider,
			APIKey:    cfg.Embedder.APIKey,
			Model:     cfg.Embedder.Model,
			Dimension: cfg.Embedder.Dimension,
			CacheSize: cfg.Embedder.CacheSize,
		}, a.Analyzer)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize embedder: %w", err)
		}
	}

	a.Classifier = opts.Classifier
	if a.Classifier == nil {
		a.Classifier, err = sentiment.New(sentiment.Config{
			Provider:          cfg.Sentiment.Provider,
			Endpoint:          cfg.Sentiment.Endpoint,
			Model:             cfg.Sentiment.Model,
			Token:             cfg.Sentiment.Token,
			RequestsPerSecond: cfg.Sentiment.RequestsPerSecond,
		}, a.Analyzer.Cleaner)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize sentiment classifier: %w", err)
		}
	}

	acq := opts.Acquirer
	if acq == nil {
		acq, err = acquire.New(acquire.Config{
			Provider:          cfg.Acquisition.Provider,
			Token:             cfg.Acquisition.Token,
			Actor:             cfg.Acquisition.Actor,
			BaseURL:           cfg.Acquisition.BaseURL,
			PollInterval:      cfg.Acquisition.PollInterval.Duration,
			MaxWait:           cfg.Acquisition.MaxWait.Duration,
			MaxRetries:        cfg.Acquisition.MaxRetries,
			RequestsPerSecond: cfg.Acquisition.RequestsPerSecond,
			FilePath:          cfg.Acquisition.FilePath,
		}, logger.With("component", "acquire"))
		if err != nil {
			return nil, fmt.Errorf("failed to initialize acquirer: %w", err)
		}
	}

	if cfg.Pipeline.ExportDir != "" {
		if a.Exporter, err = artifacts.NewExporter(cfg.Pipeline.ExportDir); err != nil {
			return nil, err
		}
	}

	gen := opts.Generator
	if gen == nil && cfg.Generator.Enabled {
		gen, err = generator.NewChat(generator.Config{
			BaseURL:     cfg.Generator.BaseURL,
			Model:       cfg.Generator.Model,
			APIKey:      cfg.Generator.APIKey,
			Temperature: cfg.Generator.Temperature,
			MaxTokens:   cfg.Generator.MaxTokens,
			Timeout:     cfg.Generator.Timeout.Duration,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize generator: %w", err)
		}
	}

	a.Corpus = corpus.New(lexical.Params{K1: cfg.Retrieval.BM25K1, B: cfg.Retrieval.BM25B}, a.Embedder.Dimension())
	if err := a.hydrate(ctx); err != nil {
		return nil, err
	}

	a.Pipeline, err = pipeline.New(pipeline.Deps{
		Acquirer:   acq,
		Analyzer:   a.Analyzer,
		Classifier: a.Classifier,
		Topics: topic.NewKeywordModel(topic.Config{
			MinTopicSize: cfg.Topic.MinTopicSize,
			MaxTopics:    cfg.Topic.MaxTopics,
		}, a.Analyzer.Tokenizer),
		Embedder: a.Embedder,
		Storage:  a.Storage,
		Corpus:   a.Corpus,
		Exporter: a.Exporter,
		Logger:   logger,
	}, pipeline.Config{
		Workers:        cfg.Pipeline.Workers,
		CallTimeout:    cfg.Pipeline.CallTimeout.Duration,
		AcquireTimeout: cfg.Pipeline.AcquireTimeout.Duration,
		MaxComments:    cfg.Pipeline.MaxComments,
		MaxAllowed:     cfg.Pipeline.MaxAllowed,
	})
	if err != nil {
		return nil, err
	}

	a.Searcher, err = searcher.New(searcher.Deps{
		Corpus:    a.Corpus,
		Embedder:  a.Embedder,
		Analyzer:  a.Analyzer,
		Generator: gen,
		Logger:    logger,
	}, searcher.Config{
		Weights:         searcher.Weights{Lexical: cfg.Retrieval.WLexical, Vector: cfg.Retrieval.WVector},
		CandidateFactor: cfg.Retrieval.CandidateFactor,
		Normalization:   searcher.Normalization(cfg.Retrieval.Normalization),
		SnippetLength:   cfg.Retrieval.SnippetLength,
		MaxK:            cfg.Retrieval.MaxK,
		CacheSize:       cfg.Retrieval.CacheSize,
		CacheTTL:        cfg.Retrieval.CacheTTL.Duration,
		GenerateTimeout: cfg.Generator.Timeout.Duration,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("application ready",
		"storage", cfg.Storage.Driver,
		"embedder", a.Embedder.Provider(),
		"classifier", a.Classifier.Name(),
		"generator", gen != nil,
		"documents", a.Corpus.Stats().Documents)
	return a, nil
}

// Analyze runs one ingestion with the configured default suffix policy
// unless req carries its own.
func (a *App) Analyze(ctx context.Context, req pipeline.Request) (*pipeline.Result, error) {
	if req.Suffix.Policy == "" {
		req.Suffix = types.ParseSuffix(a.Config.Pipeline.Suffix)
	}
	return a.Pipeline.Run(ctx, req)
}

// DefaultK returns the configured result count for queries without one.
func (a *App) DefaultK() int {
	if a.Config.Retrieval.DefaultK > 0 {
		return a.Config.Retrieval.DefaultK
	}
	return 5
}

// Close releases storage and embedder resources.
func (a *App) Close() error {
	var errs []error
	if a.Embedder != nil {
		errs = append(errs, a.Embedder.Close())
	}
	if a.Storage != nil {
		errs = append(errs, a.Storage.Close())
	}
	return errors.Join(errs...)
}

// hydrate rebuilds both indexes from the documents in storage.
func (a *App) hydrate(ctx context.Context) error {
	docs, err := a.Storage.ListDocuments(ctx)
	if err != nil {
		return fmt.Errorf("failed to load documents: %w", err)
	}
	if err := a.Corpus.Load(ctx, docs); err != nil {
		return fmt.Errorf("failed to load corpus: %w", err)
	}
	if bad := a.Corpus.Inconsistent(); len(bad) > 0 {
		a.Logger.Warn("documents missing from one index", "count", len(bad), "first", bad[0])
	}
	return nil
}

func openStorage(ctx context.Context, cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := storage.NewPostgresStorage(ctx, cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return s, nil
	default:
		path, err := expandPath(cfg.Path)
		if err != nil {
			return nil, err
		}
		if path != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		s, err := storage.NewSQLiteStorage(path)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		return s, nil
	}
}

func expandPath(p string) (string, error) {
	if p == "~" || strings.HasPrefix(p, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(p, "~")), nil
	}
	return p, nil
}
