package main

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/dshills/sentirag/internal/app"
	"github.com/dshills/sentirag/internal/storage"
)

var buildTime = "unknown"

func newVersionCmd() *cobra.Command {
	var short, jsonOutput bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if short {
				fmt.Fprintln(out, version)
				return nil
			}
			if jsonOutput {
				return json.NewEncoder(out).Encode(map[string]string{
					"name":      app.Name,
					"version":   version,
					"built":     buildTime,
					"buildMode": storage.BuildMode,
					"driver":    storage.DriverName,
					"goVersion": runtime.Version(),
				})
			}
			fmt.Fprintf(out, "%s %s\n", app.Name, version)
			fmt.Fprintf(out, "  built:      %s\n", buildTime)
			fmt.Fprintf(out, "  build mode: %s\n", storage.BuildMode)
			fmt.Fprintf(out, "  driver:     %s\n", storage.DriverName)
			fmt.Fprintf(out, "  go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "  platform:   %s/%s\n", runtime.GOOS, runtime.GOARCH)
			return nil
		},
	}
	cmd.Flags().BoolVar(&short, "short", false, "print only the version")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "output as JSON")
	return cmd
}
