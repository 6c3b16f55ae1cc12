// Package httpapi serves the REST surface of sentirag with gin.
//
// Routes:
//
//	GET  /health             liveness and index size
//	POST /analyze            {video_url, content_id, content_date?, max_comments?, suffix?}
//	POST /rag/query          {query, k?, mode?, w_lexical?, w_vector?, skip_generation?}
//	POST /sentiment/predict  {text} or {texts: [...]}
//	GET  /runs/:id           one run record
//	GET  /runs?content_id=   runs of a content item, newest first
//	GET  /files/:name        download an exported artifact
//
// Errors use a single body shape (APIError). Caller mistakes are 400, a
// failing comment source is 502 and everything else is 500.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dshills/sentirag/internal/app"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// NewRouter builds the gin engine with middleware and routes.
func NewRouter(a *app.App) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(LoggerMiddleware(a.Logger.With("component", "http")))
	router.Use(RequestSizeLimitMiddleware(maxBodyBytes))
	SetupRoutes(router, a)
	return router
}

// Serve listens on addr until ctx is done, then shuts down gracefully.
func Serve(ctx context.Context, a *app.App, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewRouter(a),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("HTTP server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	a.Logger.Info("HTTP server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
