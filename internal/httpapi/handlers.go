package httpapi

import (
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dshills/sentirag/internal/app"
	"github.com/dshills/sentirag/internal/pipeline"
	"github.com/dshills/sentirag/internal/searcher"
	"github.com/dshills/sentirag/internal/sentiment"
	"github.com/dshills/sentirag/pkg/types"
)

// API holds the dependencies of the handlers.
type API struct {
	app *app.App
}

// NewAPI creates the handler set over a wired application.
func NewAPI(a *app.App) *API {
	return &API{app: a}
}

// SetupRoutes registers every route on router.
func SetupRoutes(router *gin.Engine, a *app.App) {
	api := NewAPI(a)

	router.GET("/health", api.HealthHandler)
	router.POST("/analyze", api.AnalyzeHandler)
	router.POST("/rag/query", api.QueryHandler)
	router.POST("/sentiment/predict", api.PredictHandler)

	runRoutes := router.Group("/runs")
	{
		runRoutes.GET("", api.ListRunsHandler)
		runRoutes.GET("/:id", api.GetRunHandler)
	}

	router.GET("/files/:name", api.FileHandler)
}

// AnalyzeRequest is the body of POST /analyze.
type AnalyzeRequest struct {
	VideoURL    string  `json:"video_url"`
	ContentID   string  `json:"content_id"`
	ContentDate string  `json:"content_date"`
	MaxComments int     `json:"max_comments"`
	Suffix      *string `json:"suffix"`
}

// QueryRequest is the body of POST /rag/query.
type QueryRequest struct {
	Query          string   `json:"query"`
	K              int      `json:"k"`
	Mode           string   `json:"mode"`
	WLexical       *float64 `json:"w_lexical"`
	WVector        *float64 `json:"w_vector"`
	SkipGeneration bool     `json:"skip_generation"`
}

// QueryResponse is the body of a successful POST /rag/query.
type QueryResponse struct {
	Query           string           `json:"query"`
	Answer          string           `json:"answer"`
	Sources         []types.Citation `json:"sources"`
	Generated       bool             `json:"generated"`
	GenerationError string           `json:"generation_error,omitempty"`
	VectorError     string           `json:"vector_error,omitempty"`
	CacheHit        bool             `json:"cache_hit"`
	DurationMS      int64            `json:"duration_ms"`
}

// PredictRequest is the body of POST /sentiment/predict.
type PredictRequest struct {
	Text  string   `json:"text"`
	Texts []string `json:"texts"`
}

// Prediction is one classified text.
type Prediction struct {
	Text       string          `json:"text"`
	Sentiment  types.Sentiment `json:"sentiment"`
	Confidence float64         `json:"confidence"`
}

// HealthHandler reports liveness and index size.
func (api *API) HealthHandler(c *gin.Context) {
	stats := api.app.Corpus.Stats()
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"version":   app.Version,
		"documents": stats.Documents,
		"sets":      stats.Sets,
	})
}

// AnalyzeHandler runs one ingestion synchronously.
func (api *API) AnalyzeHandler(c *gin.Context) {
	var req AnalyzeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	if strings.TrimSpace(req.VideoURL) == "" {
		SendValidationError(c, "video_url", "video_url is required")
		return
	}
	if strings.TrimSpace(req.ContentID) == "" {
		SendValidationError(c, "content_id", "content_id is required")
		return
	}
	if req.ContentDate != "" {
		if _, err := time.Parse(time.DateOnly, req.ContentDate); err != nil {
			SendValidationError(c, "content_date", "content_date must be YYYY-MM-DD")
			return
		}
	}

	preq := pipeline.Request{
		ContentID:   req.ContentID,
		Locator:     strings.TrimSpace(req.VideoURL),
		ContentDate: req.ContentDate,
		MaxComments: req.MaxComments,
	}
	if req.Suffix != nil {
		preq.Suffix = types.ParseSuffix(*req.Suffix)
	}

	res, err := api.app.Analyze(c.Request.Context(), preq)
	if err != nil {
		var run *types.Run
		if res != nil {
			run = res.Run
		}
		SendDomainError(c, err, run)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"run":     res.Run,
		"insight": res.Insight,
	})
}

// QueryHandler answers a question with cited comments.
func (api *API) QueryHandler(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendInvalidJSONError(c, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		SendValidationError(c, "query", "query is required")
		return
	}
	if req.K == 0 {
		req.K = api.app.DefaultK()
	}
	if maxK := api.app.Config.Retrieval.MaxK; req.K < 1 || (maxK > 0 && req.K > maxK) {
		msg := "k must be at least 1"
		if maxK > 0 {
			msg = "k must be between 1 and " + strconv.Itoa(maxK)
		}
		SendValidationError(c, "k", msg)
		return
	}

	sreq := searcher.SearchRequest{
		Query:          req.Query,
		K:              req.K,
		Mode:           searcher.SearchMode(req.Mode),
		SkipGeneration: req.SkipGeneration,
	}
	if req.WLexical != nil || req.WVector != nil {
		w := searcher.Weights{Lexical: api.app.Config.Retrieval.WLexical, Vector: api.app.Config.Retrieval.WVector}
		if req.WLexical != nil {
			w.Lexical = *req.WLexical
		}
		if req.WVector != nil {
			w.Vector = *req.WVector
		}
		sreq.Weights = &w
	}

	resp, err := api.app.Searcher.Search(c.Request.Context(), sreq)
	if err != nil {
		SendDomainError(c, err, nil)
		return
	}

	sources := resp.Answer.Sources
	if sources == nil {
		sources = []types.Citation{}
	}
	c.JSON(http.StatusOK, QueryResponse{
		Query:           resp.Answer.Query,
		Answer:          resp.Answer.Answer,
		Sources:         sources,
		Generated:       resp.Answer.Generated,
		GenerationError: resp.Answer.GenerationError,
		VectorError:     resp.VectorError,
		CacheHit:        resp.CacheHit,
		DurationMS:      resp.Duration.Milliseconds(),
	})
}

// PredictHandler classifies ad-hoc texts.
func (api *API) PredictHandler(c *gin.Context) {
	var req PredictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		SendInvalidJSONError(c, err)
		return
	}

	var texts []string
	if strings.TrimSpace(req.Text) != "" {
		texts = append(texts, req.Text)
	}
	for _, t := range req.Texts {
		if strings.TrimSpace(t) != "" {
			texts = append(texts, t)
		}
	}
	if len(texts) == 0 {
		SendValidationError(c, "text", "text or texts is required")
		return
	}

	results, err := sentiment.Predict(c.Request.Context(), api.app.Classifier, texts)
	if err != nil {
		SendDomainError(c, err, nil)
		return
	}

	predictions := make([]Prediction, len(results))
	for i, r := range results {
		predictions[i] = Prediction{Text: texts[i], Sentiment: r.Label, Confidence: r.Confidence}
	}
	c.JSON(http.StatusOK, gin.H{
		"model":       api.app.Classifier.Name(),
		"predictions": predictions,
	})
}

// GetRunHandler shows one run.
func (api *API) GetRunHandler(c *gin.Context) {
	run, err := api.app.Storage.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		SendDomainError(c, err, nil)
		return
	}
	c.JSON(http.StatusOK, run)
}

// ListRunsHandler lists the runs of one content item, newest first.
func (api *API) ListRunsHandler(c *gin.Context) {
	contentID := strings.TrimSpace(c.Query("content_id"))
	if contentID == "" {
		SendValidationError(c, "content_id", "content_id is required")
		return
	}
	limit := 20
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 100 {
			SendValidationError(c, "limit", "limit must be between 1 and 100")
			return
		}
		limit = n
	}

	runs, err := api.app.Storage.ListRuns(c.Request.Context(), contentID, limit)
	if err != nil {
		SendDomainError(c, err, nil)
		return
	}
	if runs == nil {
		runs = []*types.Run{}
	}
	c.JSON(http.StatusOK, gin.H{
		"content_id": contentID,
		"runs":       runs,
	})
}

// FileHandler serves an exported artifact. Only names the exporter itself
// produces are served, and only from its directory.
func (api *API) FileHandler(c *gin.Context) {
	name := c.Param("name")
	if api.app.Exporter == nil {
		SendError(c, http.StatusNotFound, ErrorCodeFileNotFound, "exports are disabled")
		return
	}
	path, err := api.app.Exporter.Resolve(name)
	if err != nil {
		SendValidationError(c, "name", err.Error())
		return
	}
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			SendFileNotFoundError(c, name)
			return
		}
		SendDomainError(c, err, nil)
		return
	}
	c.FileAttachment(path, name)
}
