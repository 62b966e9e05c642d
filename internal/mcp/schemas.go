package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/dshills/reposcope-mcp/internal/proposals"
)

// Tool names
const (
	toolAnalyzeRepository = "analyze_repository"
	toolSearchIndex       = "search_index"
	toolReadChunk         = "read_chunk"
	toolGetIndexedFiles   = "get_indexed_files"
	toolGetStatus         = "get_status"
	toolProposeCodeChange = "propose_code_change"
	toolResolveProposal   = "resolve_proposal"
	toolRetrieveFile      = "retrieve_file"
	toolGetFileTree       = "get_file_tree"
)

func folderIDProperty(description string) map[string]interface{} {
	return map[string]interface{}{
		"type":        "string",
		"description": description,
		"pattern":     "^[A-Za-z0-9][A-Za-z0-9._-]*$",
	}
}

// analyzeRepositoryTool returns the tool definition for analyze_repository
func analyzeRepositoryTool() mcp.Tool {
	return mcp.Tool{
		Name:        toolAnalyzeRepository,
		Description: "Scan a repository checkout, summarize it chunk by chunk and add the summaries to its search index",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"folder_id": folderIDProperty("Repository folder id; names the index"),
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path of the checkout (defaults to the configured repos directory joined with folder_id)",
				},
			},
			Required: []string{"folder_id"},
		},
	}
}

// searchIndexTool returns the tool definition for search_index
func searchIndexTool() mcp.Tool {
	return mcp.Tool{
		Name:        toolSearchIndex,
		Description: "Search a repository's summaries for files, functions and classes relevant to a natural language query",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"folder_id": folderIDProperty("Repository folder id to search"),
				"query": map[string]interface{}{
					"type":        "string",
					"description": "What you are looking for, e.g. \"authentication module\"",
				},
				"top_k": map[string]interface{}{
					"type":        "integer",
					"description": "Maximum number of results to return (1-100)",
					"default":     defaultTopK,
					"minimum":     1,
					"maximum":     maxTopK,
				},
			},
			Required: []string{"folder_id", "query"},
		},
	}
}

// readChunkTool returns the tool definition for read_chunk
func readChunkTool() mcp.Tool {
	return mcp.Tool{
		Name:        toolReadChunk,
		Description: "Return the raw file contents of one chunk of an analyzed repository",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"folder_id": folderIDProperty("Repository folder id whose session holds the chunk"),
				"chunk_id": map[string]interface{}{
					"type":        "string",
					"description": "Chunk id, e.g. chunk-1a2b3c4d",
				},
			},
			Required: []string{"folder_id", "chunk_id"},
		},
	}
}

// getIndexedFilesTool returns the tool definition for get_indexed_files
func getIndexedFilesTool() mcp.Tool {
	return mcp.Tool{
		Name:        toolGetIndexedFiles,
		Description: "List index statistics and the files summarized for each repository",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"folder_id": folderIDProperty("Optional folder id to restrict the listing to"),
			},
		},
	}
}

// retrieveFileTool returns the tool definition for retrieve_file
func retrieveFileTool() mcp.Tool {
	return mcp.Tool{
		Name:        toolRetrieveFile,
		Description: "Read a file from a repository checkout (at most 100 KB)",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"folder_id": folderIDProperty("Repository folder id"),
				"path": map[string]interface{}{
					"type":        "string",
					"description": "File path relative to the repository root",
				},
			},
			Required: []string{"folder_id", "path"},
		},
	}
}

// getFileTreeTool returns the tool definition for get_file_tree
func getFileTreeTool() mcp.Tool {
	return mcp.Tool{
		Name:        toolGetFileTree,
		Description: "List the directory tree of a repository checkout, skipping hidden, vendored and binary files",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"folder_id": folderIDProperty("Repository folder id"),
			},
			Required: []string{"folder_id"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        toolGetStatus,
		Description: "Report index statistics, running analyses and recent tool activity",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"folder_id": folderIDProperty("Optional folder id; all folders when omitted"),
				"recent_events": map[string]interface{}{
					"type":        "integer",
					"description": "Number of recent events to include (0-100)",
					"default":     defaultRecentEvents,
					"minimum":     0,
					"maximum":     maxRecentEvents,
				},
			},
		},
	}
}

// proposeCodeChangeTool returns the tool definition for propose_code_change
func proposeCodeChangeTool() mcp.Tool {
	return mcp.Tool{
		Name:        toolProposeCodeChange,
		Description: "Propose new content for an existing file; the change is applied only after the user accepts it",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"file_path": map[string]interface{}{
					"type":        "string",
					"description": "Path of the existing file to change",
				},
				"proposed_content": map[string]interface{}{
					"type":        "string",
					"description": "Complete new content of the file",
				},
			},
			Required: []string{"file_path", "proposed_content"},
		},
	}
}

// resolveProposalTool returns the tool definition for resolve_proposal
func resolveProposalTool() mcp.Tool {
	return mcp.Tool{
		Name:        toolResolveProposal,
		Description: "Accept or reject a pending code change proposal",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"proposal_id": map[string]interface{}{
					"type":        "string",
					"description": "Id returned by propose_code_change",
				},
				"action": map[string]interface{}{
					"type":        "string",
					"description": "accept writes the proposed content, reject discards it",
					"enum":        []string{string(proposals.ActionAccept), string(proposals.ActionReject)},
				},
			},
			Required: []string{"proposal_id", "action"},
		},
	}
}
