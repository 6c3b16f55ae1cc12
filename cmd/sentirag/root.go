package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dshills/sentirag/internal/app"
	"github.com/dshills/sentirag/internal/config"
	"github.com/dshills/sentirag/internal/logging"
)

// cli holds state shared by the subcommands of one invocation.
type cli struct {
	cfgFile   string
	logLevel  string
	logFormat string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "sentirag",
		Short: "Comment sentiment analysis with hybrid retrieval",
		Long: `sentirag acquires the comments of a content item, cleans and classifies
them, groups them into topics and indexes them for hybrid lexical and
vector retrieval with grounded answers.

Example usage:
  sentirag analyze --url https://youtu.be/abc --content-id abc
  sentirag query "apa keluhan soal pengiriman?"
  sentirag runs abc
  sentirag serve                  # MCP over stdio
  sentirag serve-http --addr :8000`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "version" {
				return nil
			}
			return c.init()
		},
	}

	root.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (default is ./"+config.DefaultFile+")")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "log level override (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&c.logFormat, "log-format", "", "log format override (text, json)")

	root.AddCommand(
		c.newServeCmd(),
		c.newServeHTTPCmd(),
		c.newAnalyzeCmd(),
		c.newQueryCmd(),
		c.newRunsCmd(),
		newVersionCmd(),
	)
	return root
}

// init loads configuration and builds the logger. Logs go to stderr since
// stdout carries the MCP protocol under serve.
func (c *cli) init() error {
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if c.logLevel != "" {
		cfg.Log.Level = c.logLevel
	}
	if c.logFormat != "" {
		cfg.Log.Format = c.logFormat
	}
	c.cfg = cfg
	c.logger = logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	c.logger.Debug("configuration loaded",
		"storage", cfg.Storage.Driver,
		"embedder", cfg.Embedder.Provider,
		"classifier", cfg.Sentiment.Provider,
		"acquisition", cfg.Acquisition.Provider,
	)
	return nil
}

func (c *cli) openApp(ctx context.Context) (*app.App, error) {
	return app.New(ctx, c.cfg, c.logger, app.Options{})
}

// signalContext is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
