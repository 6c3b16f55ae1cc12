package mcp

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/dshills/sentirag/internal/app"
	"github.com/dshills/sentirag/internal/config"
	"github.com/dshills/sentirag/internal/generator"
)

func TestNewServer_RequiresApp(t *testing.T) {
	s, err := NewServer(nil)
	assert.Error(t, err)
	assert.Nil(t, s)
}

func TestMCPError(t *testing.T) {
	err := newMCPError(ErrorCodeEmptyQuery, "query parameter is required", nil)

	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, ErrorCodeEmptyQuery, mcpErr.Code)
	assert.Equal(t, "MCP error -32004: query parameter is required", err.Error())
}

func TestErrorCodesAreUnique(t *testing.T) {
	seen := map[int]bool{}
	for _, code := range []int{
		ErrorCodeInvalidParams,
		ErrorCodeInternalError,
		ErrorCodeAcquisitionFailed,
		ErrorCodeRunInProgress,
		ErrorCodeRunNotFound,
		ErrorCodeEmptyQuery,
	} {
		assert.Less(t, code, 0)
		assert.False(t, seen[code], "duplicate code %d", code)
		seen[code] = true
	}
}

func TestArgumentHelpers(t *testing.T) {
	args := map[string]interface{}{
		"b":     true,
		"f":     float64(7),
		"i":     3,
		"s":     "x",
		"texts": []interface{}{"satu", " ", 2, "dua"},
	}
	assert.True(t, getBoolDefault(args, "b", false))
	assert.False(t, getBoolDefault(args, "missing", false))
	assert.Equal(t, 7, getIntDefault(args, "f", 0))
	assert.Equal(t, 3, getIntDefault(args, "i", 0))
	assert.Equal(t, 9, getIntDefault(args, "missing", 9))
	assert.Equal(t, 3.0, getFloatDefault(args, "i", 0))
	assert.Equal(t, 0.25, getFloatDefault(args, "missing", 0.25))
	assert.Equal(t, "x", getStringDefault(args, "s", ""))
	assert.Equal(t, []string{"satu", "dua"}, getStringSlice(args, "texts"))
	assert.Nil(t, getStringSlice(args, "missing"))
}

// ToolsTestSuite drives the tool handlers against a fully wired
// application backed by a temp SQLite file and local providers.
type ToolsTestSuite struct {
	suite.Suite
	ctx          context.Context
	server       *Server
	commentsFile string
}

func (s *ToolsTestSuite) SetupTest() {
	s.ctx = context.Background()
	dir := s.T().TempDir()

	items := []map[string]any{
		{"cid": "c1", "text": "Makanannya bagus sekali, rasanya enak"},
		{"cid": "c2", "text": "Pengiriman lambat, kecewa banget"},
		{"cid": "c3", "text": "Harga mahal tapi rasanya enak"},
		{"cid": "c4", "text": "Kemasan rapi dan aman"},
	}
	data, err := json.Marshal(items)
	s.Require().NoError(err)
	s.commentsFile = filepath.Join(dir, "comments.json")
	s.Require().NoError(os.WriteFile(s.commentsFile, data, 0o644))

	cfg := config.Default()
	cfg.Storage.Path = filepath.Join(dir, "sentirag.db")
	cfg.Pipeline.ExportDir = filepath.Join(dir, "exports")
	// An empty file path makes the file acquirer read the locator itself.
	cfg.Acquisition.Provider = "file"
	cfg.Acquisition.FilePath = ""

	a, err := app.New(s.ctx, cfg, nil, app.Options{})
	s.Require().NoError(err)
	s.T().Cleanup(func() { _ = a.Close() })

	s.server, err = NewServer(a)
	s.Require().NoError(err)
}

func (s *ToolsTestSuite) call(handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error), name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	return handler(s.ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
}

func (s *ToolsTestSuite) decode(res *mcp.CallToolResult) map[string]interface{} {
	s.Require().NotNil(res)
	s.Require().NotEmpty(res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	s.Require().True(ok, "expected text content")

	var out map[string]interface{}
	s.Require().NoError(json.Unmarshal([]byte(text.Text), &out))
	return out
}

func (s *ToolsTestSuite) requireCode(err error, code int) {
	var mcpErr *MCPError
	s.Require().ErrorAs(err, &mcpErr)
	s.Equal(code, mcpErr.Code, mcpErr.Message)
}

func (s *ToolsTestSuite) analyze() map[string]interface{} {
	res, err := s.call(s.server.handleAnalyzeContent, "analyze_content", map[string]interface{}{
		"video_url":    s.commentsFile,
		"content_id":   "x1",
		"content_date": "2024-05-01",
	})
	s.Require().NoError(err)
	s.Require().False(res.IsError)
	return s.decode(res)
}

func (s *ToolsTestSuite) TestAnalyzeContentCompleted() {
	out := s.analyze()

	run := out["run"].(map[string]interface{})
	s.Equal("COMPLETED", run["state"])
	s.Equal("x1", run["set_key"])
	s.Equal(float64(4), run["persisted"])
	s.Len(run["artifacts"], 3)

	insight := out["insight"].(map[string]interface{})
	s.Equal(float64(4), insight["total_comments"])
}

func (s *ToolsTestSuite) TestAnalyzeContentFailedRun() {
	res, err := s.call(s.server.handleAnalyzeContent, "analyze_content", map[string]interface{}{
		"video_url":  filepath.Join(s.T().TempDir(), "missing.json"),
		"content_id": "x1",
	})
	s.Require().NoError(err)
	s.True(res.IsError)

	run := s.decode(res)["run"].(map[string]interface{})
	s.Equal("FAILED", run["state"])
	s.Equal("AcquisitionError", run["error_kind"])
	s.Equal(float64(0), run["persisted"])
}

func (s *ToolsTestSuite) TestAnalyzeContentInvalidParams() {
	tests := []struct {
		name string
		args map[string]interface{}
	}{
		{"missing video_url", map[string]interface{}{"content_id": "x1"}},
		{"missing content_id", map[string]interface{}{"video_url": s.commentsFile}},
		{"blank content_id", map[string]interface{}{"video_url": s.commentsFile, "content_id": "  "}},
		{"bad date", map[string]interface{}{"video_url": s.commentsFile, "content_id": "x1", "content_date": "01/05/2024"}},
		{"max_comments too large", map[string]interface{}{"video_url": s.commentsFile, "content_id": "x1", "max_comments": float64(1000)}},
		{"max_comments negative", map[string]interface{}{"video_url": s.commentsFile, "content_id": "x1", "max_comments": float64(-1)}},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			res, err := s.call(s.server.handleAnalyzeContent, "analyze_content", tt.args)
			s.Nil(res)
			s.requireCode(err, ErrorCodeInvalidParams)
		})
	}

	_, err := s.server.handleAnalyzeContent(s.ctx, mcp.CallToolRequest{})
	s.requireCode(err, ErrorCodeInvalidParams)
}

func (s *ToolsTestSuite) TestQueryComments() {
	s.analyze()

	res, err := s.call(s.server.handleQueryComments, "query_comments", map[string]interface{}{
		"query": "rasanya enak",
		"k":     float64(2),
	})
	s.Require().NoError(err)
	out := s.decode(res)

	s.Equal(generator.NoGenerationAnswer, out["answer"])
	s.Equal(false, out["generated"])
	sources := out["sources"].([]interface{})
	s.Require().Len(sources, 2)
	first := sources[0].(map[string]interface{})
	s.Equal(float64(1), first["rank"])
	s.Contains([]string{"x1:c1", "x1:c3"}, first["document_id"])
	s.NotEmpty(first["snippet"])
	s.NotEmpty(first["sentiment"])
}

func (s *ToolsTestSuite) TestQueryCommentsKeywordModeAndWeights() {
	s.analyze()

	res, err := s.call(s.server.handleQueryComments, "query_comments", map[string]interface{}{
		"query":       "kemasan",
		"search_mode": "keyword",
	})
	s.Require().NoError(err)
	sources := s.decode(res)["sources"].([]interface{})
	s.Require().Len(sources, 1)
	s.Equal("x1:c4", sources[0].(map[string]interface{})["document_id"])

	res, err = s.call(s.server.handleQueryComments, "query_comments", map[string]interface{}{
		"query":     "kemasan",
		"w_lexical": float64(1),
		"w_vector":  float64(0),
	})
	s.Require().NoError(err)
	sources = s.decode(res)["sources"].([]interface{})
	s.Require().Len(sources, 1)
	s.Equal("x1:c4", sources[0].(map[string]interface{})["document_id"])
}

func (s *ToolsTestSuite) TestQueryCommentsEmptyCorpus() {
	res, err := s.call(s.server.handleQueryComments, "query_comments", map[string]interface{}{
		"query": "apa saja",
	})
	s.Require().NoError(err)
	out := s.decode(res)
	s.Equal(generator.NoContextAnswer, out["answer"])
	s.Empty(out["sources"])
}

func (s *ToolsTestSuite) TestQueryCommentsInvalidParams() {
	tests := []struct {
		name string
		args map[string]interface{}
		code int
	}{
		{"missing query", map[string]interface{}{}, ErrorCodeEmptyQuery},
		{"blank query", map[string]interface{}{"query": "   "}, ErrorCodeEmptyQuery},
		{"zero k", map[string]interface{}{"query": "rasa", "k": float64(0)}, ErrorCodeInvalidParams},
		{"k above max", map[string]interface{}{"query": "rasa", "k": float64(21)}, ErrorCodeInvalidParams},
		{"unknown mode", map[string]interface{}{"query": "rasa", "search_mode": "fuzzy"}, ErrorCodeInvalidParams},
		{"negative weight", map[string]interface{}{"query": "rasa", "w_lexical": float64(-1)}, ErrorCodeInvalidParams},
		{"zero weights", map[string]interface{}{"query": "rasa", "w_lexical": float64(0), "w_vector": float64(0)}, ErrorCodeInvalidParams},
	}
	for _, tt := range tests {
		s.Run(tt.name, func() {
			res, err := s.call(s.server.handleQueryComments, "query_comments", tt.args)
			s.Nil(res)
			s.requireCode(err, tt.code)
		})
	}
}

func (s *ToolsTestSuite) TestGetRun() {
	id := s.analyze()["run"].(map[string]interface{})["id"].(string)

	res, err := s.call(s.server.handleGetRun, "get_run", map[string]interface{}{"run_id": id})
	s.Require().NoError(err)
	run := s.decode(res)["run"].(map[string]interface{})
	s.Equal(id, run["id"])
	s.Equal("COMPLETED", run["state"])

	res, err = s.call(s.server.handleGetRun, "get_run", map[string]interface{}{"content_id": "x1"})
	s.Require().NoError(err)
	s.Len(s.decode(res)["runs"], 1)

	res, err = s.call(s.server.handleGetRun, "get_run", map[string]interface{}{"content_id": "unknown"})
	s.Require().NoError(err)
	s.Empty(s.decode(res)["runs"])

	_, err = s.call(s.server.handleGetRun, "get_run", map[string]interface{}{"run_id": "nope"})
	s.requireCode(err, ErrorCodeRunNotFound)

	_, err = s.call(s.server.handleGetRun, "get_run", map[string]interface{}{})
	s.requireCode(err, ErrorCodeInvalidParams)

	_, err = s.call(s.server.handleGetRun, "get_run", map[string]interface{}{"content_id": "x1", "limit": float64(500)})
	s.requireCode(err, ErrorCodeInvalidParams)
}

func (s *ToolsTestSuite) TestPredictSentiment() {
	res, err := s.call(s.server.handlePredictSentiment, "predict_sentiment", map[string]interface{}{
		"text":  "bagus sekali",
		"texts": []interface{}{"jelek dan kecewa"},
	})
	s.Require().NoError(err)
	out := s.decode(res)
	s.Equal("lexicon", out["model"])

	preds := out["predictions"].([]interface{})
	s.Require().Len(preds, 2)
	s.Equal("positive", preds[0].(map[string]interface{})["sentiment"])
	s.Equal("negative", preds[1].(map[string]interface{})["sentiment"])

	_, err = s.call(s.server.handlePredictSentiment, "predict_sentiment", map[string]interface{}{})
	s.requireCode(err, ErrorCodeInvalidParams)
}

func (s *ToolsTestSuite) TestGetStatus() {
	s.analyze()

	res, err := s.call(s.server.handleGetStatus, "get_status", map[string]interface{}{})
	s.Require().NoError(err)
	out := s.decode(res)

	st := out["storage"].(map[string]interface{})
	s.Equal(float64(4), st["documents"])
	s.Equal(float64(1), st["runs"])
	idx := out["index"].(map[string]interface{})
	s.Equal(float64(4), idx["documents"])
	health := out["health"].(map[string]interface{})
	s.Equal(true, health["indexes_in_sync"])
	s.Equal(true, health["index_consistent"])
}

func TestToolsTestSuite(t *testing.T) {
	suite.Run(t, new(ToolsTestSuite))
}
