package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/dshills/sentirag/internal/app"
)

const (
	// ServerName is the MCP server name
	ServerName = app.Name
	// ServerVersion is the current server version
	ServerVersion = app.Version
)

// Server exposes the application as MCP tools
type Server struct {
	mcp    *server.MCPServer
	app    *app.App
	logger *slog.Logger
}

// NewServer creates a new MCP server instance over a wired application.
// The caller keeps ownership of a and closes it after Serve returns.
func NewServer(a *app.App) (*Server, error) {
	if a == nil {
		return nil, errors.New("mcp: application is required")
	}

	mcpServer := server.NewMCPServer(
		ServerName,
		ServerVersion,
		server.WithToolCapabilities(false),
	)

	s := &Server{
		mcp:    mcpServer,
		app:    a,
		logger: a.Logger.With("component", "mcp"),
	}

	s.registerTools()
	return s, nil
}

// Serve starts the MCP server on stdio and blocks until ctx is done or
// stdin is closed.
func (s *Server) Serve(ctx context.Context) error {
	return s.ServeIO(ctx, os.Stdin, os.Stdout)
}

// ServeIO runs the stdio transport over arbitrary streams.
func (s *Server) ServeIO(ctx context.Context, in io.Reader, out io.Writer) error {
	stdio := server.NewStdioServer(s.mcp)
	stdio.SetErrorLogger(slog.NewLogLogger(s.logger.Handler(), slog.LevelError))

	s.logger.InfoContext(ctx, "MCP server ready, listening on stdio")
	err := stdio.Listen(ctx, in, out)
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(analyzeContentTool(), s.handleAnalyzeContent)
	s.mcp.AddTool(queryCommentsTool(), s.handleQueryComments)
	s.mcp.AddTool(getRunTool(), s.handleGetRun)
	s.mcp.AddTool(predictSentimentTool(), s.handlePredictSentiment)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
