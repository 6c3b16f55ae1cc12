package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// analyzeContentTool returns the tool definition for analyze_content
func analyzeContentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "analyze_content",
		Description: "Acquire the comments of a content item, annotate them with sentiment and topic, and make them searchable",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"video_url": map[string]interface{}{
					"type":        "string",
					"description": "Locator of the content item (e.g. a TikTok video URL)",
				},
				"content_id": map[string]interface{}{
					"type":        "string",
					"description": "Stable identifier of the content item; document ids are derived from it",
				},
				"content_date": map[string]interface{}{
					"type":        "string",
					"description": "Publication date (YYYY-MM-DD); defaults to today",
				},
				"max_comments": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of comments to acquire (1-500)",
					"default":     50,
					"minimum":     1,
					"maximum":     500,
				},
				"suffix": map[string]interface{}{
					"type":        "string",
					"description": "Artifact set suffix: none overwrites, auto adds a timestamp, anything else is a label",
				},
			},
			Required: []string{"video_url", "content_id"},
		},
	}
}

// queryCommentsTool returns the tool definition for query_comments
func queryCommentsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "query_comments",
		Description: "Ask a question over analyzed comments and get an answer with cited sources",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"query": map[string]interface{}{
					"type":        "string",
					"description": "Question or keywords (Indonesian or English)",
				},
				"k": map[string]interface{}{
					"type":        "integer",
					"description": "Number of sources to return (1-20)",
					"default":     5,
					"minimum":     1,
					"maximum":     20,
				},
				"search_mode": map[string]interface{}{
					"type":        "string",
					"description": "Retrieval strategy: hybrid (BM25 + vector), vector (semantic only), or keyword (BM25 only)",
					"enum":        []string{"hybrid", "vector", "keyword"},
					"default":     "hybrid",
				},
				"w_lexical": map[string]interface{}{
					"type":        "number",
					"description": "Override the lexical fusion weight",
					"minimum":     0.0,
				},
				"w_vector": map[string]interface{}{
					"type":        "number",
					"description": "Override the vector fusion weight",
					"minimum":     0.0,
				},
				"skip_generation": map[string]interface{}{
					"type":        "boolean",
					"description": "Return sources only, without calling the answer generator",
					"default":     false,
				},
			},
			Required: []string{"query"},
		},
	}
}

// getRunTool returns the tool definition for get_run
func getRunTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_run",
		Description: "Show one ingestion run by id, or list the runs of a content item",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"run_id": map[string]interface{}{
					"type":        "string",
					"description": "Run id returned by analyze_content",
				},
				"content_id": map[string]interface{}{
					"type":        "string",
					"description": "List runs of this content item instead, newest first",
				},
				"limit": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of runs to list (1-100)",
					"default":     20,
					"minimum":     1,
					"maximum":     100,
				},
			},
		},
	}
}

// predictSentimentTool returns the tool definition for predict_sentiment
func predictSentimentTool() mcp.Tool {
	return mcp.Tool{
		Name:        "predict_sentiment",
		Description: "Classify the sentiment of one or more texts without storing them",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"text": map[string]interface{}{
					"type":        "string",
					"description": "A single text",
				},
				"texts": map[string]interface{}{
					"type":        "array",
					"description": "Several texts, classified in order",
					"items": map[string]interface{}{
						"type": "string",
					},
				},
			},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report storage counters and the state of the in-memory indexes",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
