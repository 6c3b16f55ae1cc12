package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/sentirag/internal/searcher"
)

func (c *cli) newQueryCmd() *cobra.Command {
	var (
		k          int
		mode       string
		noGenerate bool
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Ask a question over the indexed comments",
		Long: `Retrieve the most relevant comments with hybrid search and answer from
them. Without a configured generator only the citations are returned.

Examples:
  sentirag query "apa keluhan soal pengiriman?"
  sentirag query -k 10 --mode keyword "harga mahal"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := c.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if k == 0 {
				k = a.DefaultK()
			}
			resp, err := a.Searcher.Search(ctx, searcher.SearchRequest{
				Query:          strings.Join(args, " "),
				K:              k,
				Mode:           searcher.SearchMode(mode),
				SkipGeneration: noGenerate,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(resp.Answer)
			}
			fmt.Fprintln(out, resp.Answer.Answer)
			if len(resp.Answer.Sources) > 0 {
				fmt.Fprintln(out)
			}
			for _, src := range resp.Answer.Sources {
				fmt.Fprintf(out, "[%d] %s (%s, %.3f) %s\n", src.Rank, src.DocumentID, src.Sentiment, src.FusedScore, src.Snippet)
			}
			if resp.VectorError != "" {
				c.logger.Warn("vector side unavailable, ranked lexically", "error", resp.VectorError)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&k, "top-k", "k", 0, "number of comments to cite (default from config)")
	cmd.Flags().StringVar(&mode, "mode", "hybrid", "search mode: hybrid, vector or keyword")
	cmd.Flags().BoolVar(&noGenerate, "no-generate", false, "return citations without generating an answer")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
