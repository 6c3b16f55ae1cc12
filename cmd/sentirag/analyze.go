package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/dshills/sentirag/internal/pipeline"
	"github.com/dshills/sentirag/pkg/types"
)

func (c *cli) newAnalyzeCmd() *cobra.Command {
	var (
		req        pipeline.Request
		suffix     string
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Acquire, classify and index the comments of one content item",
		Long: `Run one ingestion: acquire comments, clean and classify them, build topics
and replace the indexed set for the content item.

Examples:
  sentirag analyze --url https://youtu.be/abc --content-id abc
  sentirag analyze --url comments.json --content-id abc --suffix batch1 --json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := c.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if cmd.Flags().Changed("suffix") {
				req.Suffix = types.ParseSuffix(suffix)
			}
			res, err := a.Analyze(ctx, req)
			if res != nil && res.Run != nil {
				if jsonOutput {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					if encErr := enc.Encode(res); encErr != nil {
						return encErr
					}
				} else {
					printRun(cmd.OutOrStdout(), res.Run)
					if res.Insight != nil {
						fmt.Fprintf(cmd.OutOrStdout(), "\n%s\n", res.Insight.Summary)
					}
				}
			}
			return err
		},
	}

	cmd.Flags().StringVar(&req.Locator, "url", "", "content URL or source locator")
	cmd.Flags().StringVar(&req.ContentID, "content-id", "", "content identifier")
	cmd.Flags().StringVar(&req.ContentDate, "date", "", "content date (YYYY-MM-DD)")
	cmd.Flags().IntVar(&req.MaxComments, "max-comments", 0, "maximum comments to acquire (default from config)")
	cmd.Flags().StringVar(&suffix, "suffix", "", `set suffix: "none", "timestamp" or a label`)
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("content-id")
	return cmd
}

func printRun(w io.Writer, run *types.Run) {
	fmt.Fprintf(w, "run:       %s\n", run.ID)
	fmt.Fprintf(w, "content:   %s (set %s)\n", run.ContentID, run.SetKey)
	fmt.Fprintf(w, "state:     %s\n", run.State)
	fmt.Fprintf(w, "persisted: %d\n", run.Persisted)
	for _, s := range run.Stages {
		status := "ok"
		if s.Failed {
			status = "failed: " + s.Error
		}
		fmt.Fprintf(w, "  %-10s succeeded=%d skipped=%d %s\n", s.Stage, s.Succeeded, s.Skipped, status)
	}
	if len(run.Failures) > 0 {
		fmt.Fprintf(w, "failures:  %d\n", len(run.Failures))
	}
	for _, art := range run.Artifacts {
		fmt.Fprintf(w, "artifact:  %s %s\n", art.Kind, art.Path)
	}
	if run.Error != "" {
		fmt.Fprintf(w, "error:     %s (%s)\n", run.Error, run.ErrorKind)
	}
}
