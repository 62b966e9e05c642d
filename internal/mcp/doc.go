// Package mcp implements the Model Context Protocol (MCP) server for reposcope.
//
// The server exposes nine tools to AI coding assistants:
//   - analyze_repository: Scan, chunk and summarize a repository into its index
//   - search_index: Semantic search over a repository's summaries
//   - read_chunk: Raw file contents of one analyzed chunk
//   - get_indexed_files: Index statistics and summarized files per repository
//   - retrieve_file: Contents of one checkout file, up to 100 KB
//   - get_file_tree: Directory tree of a checkout
//   - get_status: Per-folder statistics, running analyses and recent activity
//   - propose_code_change: Stage new content for an existing file
//   - resolve_proposal: Accept or reject a staged change
//
// Every tool call, response and error is recorded as an event in the
// server's trace, which get_status reports back.
//
// # Protocol Overview
//
// MCP is a JSON-RPC 2.0 protocol over stdio transport:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// # Basic Usage
//
// The MCP server is typically started via the serve command:
//
//	reposcope serve
//
// # Tool: search_index
//
//	Request:
//	{
//	  "name": "search_index",
//	  "arguments": {
//	    "folder_id": "my-repo",
//	    "query": "user authentication logic",
//	    "top_k": 5
//	  }
//	}
//
//	Response (text):
//	Found 2 relevant results:
//
//	--- Result 1 (distance: 0.4132) ---
//	File: internal/auth/service.go
//	Purpose: Authenticates users against the session store
//	...
//
// Scores are squared L2 distances; smaller is closer.
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "reposcope": {
//	      "command": "/usr/local/bin/reposcope",
//	      "args": ["serve"],
//	      "env": {
//	        "GEMINI_API_KEY": "your-api-key",
//	        "REPOSCOPE_ANALYSIS_API_KEY": "your-llm-key"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// Error codes:
//   - -32602: Invalid params (missing/invalid arguments)
//   - -32603: Internal error (index, filesystem, etc.)
//   - -32001: Repository, file or proposal not found
//   - -32002: Analysis of the folder already in progress
//   - -32003: No analysis backend configured
//   - -32004: Empty query
//
// # Logging
//
// The server logs to stderr; stdout is reserved for the MCP protocol.
package mcp
