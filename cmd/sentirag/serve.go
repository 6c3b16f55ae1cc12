package main

import (
	"github.com/spf13/cobra"

	"github.com/dshills/sentirag/internal/httpapi"
	"github.com/dshills/sentirag/internal/mcp"
)

func (c *cli) newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the MCP tools over stdio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := c.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			srv, err := mcp.NewServer(a)
			if err != nil {
				return err
			}
			c.logger.Info("MCP server ready, listening on stdio")
			err = srv.Serve(ctx)
			c.logger.Info("server stopped")
			return err
		},
	}
}

func (c *cli) newServeHTTPCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve-http",
		Short: "Serve the REST API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			a, err := c.openApp(ctx)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = c.cfg.HTTP.Addr
			}
			return httpapi.Serve(ctx, a, addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
