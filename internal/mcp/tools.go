package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/sentirag/internal/pipeline"
	"github.com/dshills/sentirag/internal/searcher"
	"github.com/dshills/sentirag/internal/sentiment"
	"github.com/dshills/sentirag/internal/storage"
	"github.com/dshills/sentirag/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams     = -32602 // Invalid method parameters
	ErrorCodeInternalError     = -32603 // Internal JSON-RPC error
	ErrorCodeAcquisitionFailed = -32001 // Comments could not be fetched
	ErrorCodeRunInProgress     = -32002 // Another run for the content item did not finish in time
	ErrorCodeRunNotFound       = -32003 // No run with the given id
	ErrorCodeEmptyQuery        = -32004 // Query parameter is empty
)

// handleAnalyzeContent handles the analyze_content tool invocation
func (s *Server) handleAnalyzeContent(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	locator := strings.TrimSpace(getStringDefault(args, "video_url", ""))
	if locator == "" {
		return nil, missingParam("video_url")
	}
	contentID := strings.TrimSpace(getStringDefault(args, "content_id", ""))
	if contentID == "" {
		return nil, missingParam("content_id")
	}

	contentDate := getStringDefault(args, "content_date", "")
	if contentDate != "" {
		if _, err := time.Parse(time.DateOnly, contentDate); err != nil {
			return nil, newMCPError(ErrorCodeInvalidParams, "content_date must be YYYY-MM-DD", map[string]interface{}{
				"param": "content_date",
				"value": contentDate,
			})
		}
	}

	req := pipeline.Request{
		ContentID:   contentID,
		Locator:     locator,
		ContentDate: contentDate,
		MaxComments: getIntDefault(args, "max_comments", 0),
	}
	if v, ok := args["suffix"].(string); ok {
		req.Suffix = types.ParseSuffix(v)
	}

	res, err := s.app.Analyze(ctx, req)
	if err != nil && (res == nil || res.Run == nil) {
		return nil, mapError(err)
	}

	response := map[string]interface{}{
		"run": res.Run,
	}
	if res.Insight != nil {
		response["insight"] = res.Insight
	}

	result := mcp.NewToolResultText(formatJSON(response))
	if res.Run.State == types.RunFailed {
		// FAILED runs are tool errors that still carry the run record.
		result.IsError = true
	}
	return result, nil
}

// handleQueryComments handles the query_comments tool invocation
func (s *Server) handleQueryComments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	maxK := s.app.Config.Retrieval.MaxK
	k := getIntDefault(args, "k", s.app.DefaultK())
	if k < 1 || (maxK > 0 && k > maxK) {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("k must be between 1 and %d", maxK), map[string]interface{}{
			"param": "k",
			"value": k,
		})
	}

	mode := searcher.SearchMode(getStringDefault(args, "search_mode", string(searcher.SearchModeHybrid)))
	switch mode {
	case searcher.SearchModeHybrid, searcher.SearchModeVector, searcher.SearchModeKeyword:
	default:
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search_mode", map[string]interface{}{
			"param":   "search_mode",
			"value":   mode,
			"allowed": []string{"hybrid", "vector", "keyword"},
		})
	}

	req := searcher.SearchRequest{
		Query:          query,
		K:              k,
		Mode:           mode,
		SkipGeneration: getBoolDefault(args, "skip_generation", false),
	}
	_, hasLex := args["w_lexical"]
	_, hasVec := args["w_vector"]
	if hasLex || hasVec {
		r := s.app.Config.Retrieval
		req.Weights = &searcher.Weights{
			Lexical: getFloatDefault(args, "w_lexical", r.WLexical),
			Vector:  getFloatDefault(args, "w_vector", r.WVector),
		}
	}

	resp, err := s.app.Searcher.Search(ctx, req)
	if err != nil {
		return nil, mapError(err)
	}

	response := map[string]interface{}{
		"query":       resp.Answer.Query,
		"answer":      resp.Answer.Answer,
		"sources":     resp.Answer.Sources,
		"generated":   resp.Answer.Generated,
		"cache_hit":   resp.CacheHit,
		"duration_ms": resp.Duration.Milliseconds(),
	}
	if resp.Answer.GenerationError != "" {
		response["generation_error"] = resp.Answer.GenerationError
	}
	if resp.VectorError != "" {
		response["vector_error"] = resp.VectorError
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGetRun handles the get_run tool invocation
func (s *Server) handleGetRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	if id := strings.TrimSpace(getStringDefault(args, "run_id", "")); id != "" {
		run, err := s.app.Storage.GetRun(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, newMCPError(ErrorCodeRunNotFound, "run not found", map[string]interface{}{
				"run_id": id,
			})
		}
		if err != nil {
			return nil, mapError(err)
		}
		return mcp.NewToolResultText(formatJSON(map[string]interface{}{"run": run})), nil
	}

	contentID := strings.TrimSpace(getStringDefault(args, "content_id", ""))
	if contentID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "run_id or content_id is required", map[string]interface{}{
			"param":  "run_id",
			"reason": "missing or empty",
		})
	}
	limit := getIntDefault(args, "limit", 20)
	if limit < 1 || limit > 100 {
		return nil, newMCPError(ErrorCodeInvalidParams, "limit must be between 1 and 100", map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	runs, err := s.app.Storage.ListRuns(ctx, contentID, limit)
	if err != nil {
		return nil, mapError(err)
	}
	if runs == nil {
		runs = []*types.Run{}
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"content_id": contentID,
		"runs":       runs,
	})), nil
}

// handlePredictSentiment handles the predict_sentiment tool invocation
func (s *Server) handlePredictSentiment(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	texts := getStringSlice(args, "texts")
	if text, ok := args["text"].(string); ok && strings.TrimSpace(text) != "" {
		texts = append([]string{text}, texts...)
	}
	if len(texts) == 0 {
		return nil, newMCPError(ErrorCodeInvalidParams, "text or texts is required", map[string]interface{}{
			"param":  "text",
			"reason": "missing or empty",
		})
	}

	results, err := sentiment.Predict(ctx, s.app.Classifier, texts)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "sentiment prediction failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	predictions := make([]map[string]interface{}, len(results))
	for i, r := range results {
		predictions[i] = map[string]interface{}{
			"text":       texts[i],
			"sentiment":  r.Label,
			"confidence": r.Confidence,
		}
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"model":       s.app.Classifier.Name(),
		"predictions": predictions,
	})), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.app.Storage.GetStatus(ctx)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to get status", map[string]interface{}{
			"error": err.Error(),
		})
	}
	stats := s.app.Corpus.Stats()

	response := map[string]interface{}{
		"storage": status,
		"index":   stats,
		"components": map[string]interface{}{
			"embedder":   s.app.Embedder.Provider() + ":" + s.app.Embedder.Model(),
			"classifier": s.app.Classifier.Name(),
		},
		"health": map[string]interface{}{
			"database_accessible": true,
			"index_consistent":    len(s.app.Corpus.Inconsistent()) == 0,
			"indexes_in_sync":     stats.Documents == status.Documents,
		},
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

func missingParam(name string) error {
	return newMCPError(ErrorCodeInvalidParams, name+" parameter is required", map[string]interface{}{
		"param":  name,
		"reason": "missing or empty",
	})
}

// mapError converts a domain error into an MCP error code.
func mapError(err error) error {
	data := map[string]interface{}{
		"kind":  types.KindOf(err),
		"error": err.Error(),
	}
	switch {
	case types.IsInvalidRequest(err):
		return newMCPError(ErrorCodeInvalidParams, "invalid request", data)
	case errors.Is(err, types.ErrAcquisition):
		return newMCPError(ErrorCodeAcquisitionFailed, "acquisition failed", data)
	case errors.Is(err, context.DeadlineExceeded):
		return newMCPError(ErrorCodeRunInProgress, "timed out waiting for the previous run", data)
	default:
		return newMCPError(ErrorCodeInternalError, "internal error", data)
	}
}

// formatJSON formats a value as indented JSON
func formatJSON(data any) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getBoolDefault extracts a boolean parameter with a default value
func getBoolDefault(args map[string]interface{}, key string, defaultValue bool) bool {
	if val, ok := args[key].(bool); ok {
		return val
	}
	return defaultValue
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getFloatDefault extracts a number parameter with a default value
func getFloatDefault(args map[string]interface{}, key string, defaultValue float64) float64 {
	switch val := args[key].(type) {
	case float64:
		return val
	case int:
		return float64(val)
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// getStringSlice extracts a string array, skipping blank and non-string items
func getStringSlice(args map[string]interface{}, key string) []string {
	var out []string
	switch val := args[key].(type) {
	case []interface{}:
		for _, v := range val {
			if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
	case []string:
		for _, s := range val {
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
	}
	return out
}
