package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

func (c *cli) newRunsCmd() *cobra.Command {
	var (
		runID      string
		limit      int
		jsonOutput bool
	)
	cmd := &cobra.Command{
		Use:   "runs [content-id]",
		Short: "Show ingestion run history",
		Long: `List the runs of a content item, newest first, or show one run by id.

Examples:
  sentirag runs abc
  sentirag runs --id 5b3c...`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if runID == "" && len(args) == 0 {
				return fmt.Errorf("content-id argument or --id is required")
			}
			ctx := cmd.Context()
			a, err := c.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			if runID != "" {
				run, err := a.Storage.GetRun(ctx, runID)
				if err != nil {
					return err
				}
				if jsonOutput {
					enc := json.NewEncoder(out)
					enc.SetIndent("", "  ")
					return enc.Encode(run)
				}
				printRun(out, run)
				return nil
			}

			runs, err := a.Storage.ListRuns(ctx, args[0], limit)
			if err != nil {
				return err
			}
			if jsonOutput {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(runs)
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tSET\tSTATE\tPERSISTED\tSTARTED")
			for _, r := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", r.ID, r.SetKey, r.State, r.Persisted, r.StartedAt.Format(time.RFC3339))
			}
			return tw.Flush()
		},
	}
	cmd.Flags().StringVar(&runID, "id", "", "show a single run")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
