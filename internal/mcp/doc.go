// Package mcp implements the Model Context Protocol (MCP) server for sentirag.
//
// The MCP server exposes five tools to AI assistants:
//   - analyze_content: acquire, annotate and index the comments of a content item
//   - query_comments: ask a question and get an answer with cited comments
//   - get_run: look up an ingestion run or list the runs of a content item
//   - predict_sentiment: classify ad-hoc texts without storing them
//   - get_status: storage counters and index state
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// Stdout is reserved for the protocol; all logging goes to stderr.
//
// # Basic Usage
//
//	a, err := app.New(ctx, cfg, logger, app.Options{})
//	srv, err := mcp.NewServer(a)
//	err = srv.Serve(ctx)
//
// or from the command line:
//
//	sentirag serve
//
// # Tool: analyze_content
//
//	Request:
//	{
//	  "name": "analyze_content",
//	  "arguments": {
//	    "video_url": "https://www.tiktok.com/@shop/video/7300000000000000000",
//	    "content_id": "7300000000000000000",
//	    "content_date": "2024-05-01",
//	    "max_comments": 100
//	  }
//	}
//
//	Response:
//	{
//	  "run": {
//	    "id": "6f1c...",
//	    "state": "PARTIAL",
//	    "persisted": 97,
//	    "failures": [{"comment_id": "c_12", "stage": "sentiment", ...}],
//	    "artifacts": [{"kind": "json", "path": "exports/comments_7300..."}]
//	  },
//	  "insight": {"total_comments": 97, "dominant_topic": "rasa - enak", ...}
//	}
//
// A run that ends FAILED is returned with isError set and the run record
// as content, so the error kind and message reach the client.
//
// # Tool: query_comments
//
//	Request:
//	{
//	  "name": "query_comments",
//	  "arguments": {"query": "bagaimana rasanya?", "k": 5}
//	}
//
//	Response:
//	{
//	  "answer": "...",
//	  "sources": [
//	    {"rank": 1, "document_id": "7300...:c_3", "snippet": "...",
//	     "sentiment": "positive", "topic_label": "rasa - enak",
//	     "score_lex": 3.1, "score_sem": 0.82, "score_final": 0.91}
//	  ]
//	}
//
// # Error Handling
//
// Errors are returned as MCPError values:
//   - -32602: invalid parameters (missing ids, # or : in content_id, k out of range, bad suffix)
//   - -32603: internal error
//   - -32001: acquisition failed before a run could start
//   - -32002: timed out waiting for another run on the same content item
//   - -32003: run not found
//   - -32004: empty query
package mcp
