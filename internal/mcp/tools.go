package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/dshills/reposcope-mcp/internal/analyzer"
	"github.com/dshills/reposcope-mcp/internal/indexer"
	"github.com/dshills/reposcope-mcp/internal/ingest"
	"github.com/dshills/reposcope-mcp/internal/proposals"
	"github.com/dshills/reposcope-mcp/internal/searchengine"
)

// MCP error codes
const (
	ErrorCodeInvalidParams       = -32602 // Invalid method parameters
	ErrorCodeInternalError       = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound            = -32001 // Repository, file or proposal does not exist
	ErrorCodeAnalysisInProgress  = -32002 // Another analysis of the folder is already running
	ErrorCodeAnalysisUnavailable = -32003 // No analysis backend configured
	ErrorCodeEmptyQuery          = -32004 // Query parameter is empty
)

const (
	defaultTopK         = 5
	maxTopK             = 100
	defaultRecentEvents = 20
	maxRecentEvents     = 100
	maxReportedFailures = 5
)

// handleAnalyzeRepository handles the analyze_repository tool invocation
func (s *Server) handleAnalyzeRepository(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	folder, err := requireFolderID(args)
	if err != nil {
		return nil, err
	}
	if s.deps.Pipeline == nil {
		return nil, newMCPError(ErrorCodeAnalysisUnavailable, "analysis backend is not configured", map[string]interface{}{
			"hint": "set analysis.api_key or REPOSCOPE_ANALYSIS_API_KEY",
		})
	}

	path := getStringDefault(args, "path", "")
	if path == "" {
		path = filepath.Join(s.deps.ReposDir, folder)
	}
	if err := validatePath(path); err != nil {
		code := ErrorCodeInvalidParams
		if errors.Is(err, ErrPathNotFound) {
			code = ErrorCodeNotFound
		}
		return nil, newMCPError(code, "invalid path", map[string]interface{}{
			"param":  "path",
			"value":  path,
			"reason": err.Error(),
		})
	}

	report, err := s.deps.Pipeline.AnalyzeRepository(ctx, folder, path, s.trace)
	if errors.Is(err, analyzer.ErrAnalysisInProgress) {
		return nil, newMCPError(ErrorCodeAnalysisInProgress, "analysis already in progress", map[string]interface{}{
			"folder_id": folder,
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "analysis failed", map[string]interface{}{
			"folder_id": folder,
			"error":     err.Error(),
		})
	}

	batch := report.Batch
	response := map[string]interface{}{
		"folder_id":          folder,
		"status":             batch.Status,
		"files_indexed":      report.FilesIndexed,
		"files_skipped":      report.FilesSkipped,
		"files_failed":       report.FilesFailed,
		"chunks":             report.Chunks,
		"chunks_succeeded":   len(batch.Succeeded),
		"chunks_failed":      len(batch.Failed),
		"documents_ingested": batch.Documents,
		"duration_ms":        batch.Duration.Milliseconds(),
	}
	if len(batch.Failed) > 0 {
		failures := batch.Failed
		if len(failures) > maxReportedFailures {
			failures = failures[:maxReportedFailures]
		}
		response["failures"] = failures
	}

	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleSearchIndex handles the search_index tool invocation
func (s *Server) handleSearchIndex(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	folder, err := requireFolderID(args)
	if err != nil {
		return nil, err
	}

	query, ok := args["query"].(string)
	if !ok || strings.TrimSpace(query) == "" {
		return nil, newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	}

	topK := getIntDefault(args, "top_k", defaultTopK)
	if topK < 1 || topK > maxTopK {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("top_k must be between 1 and %d", maxTopK), map[string]interface{}{
			"param": "top_k",
			"value": topK,
		})
	}

	engine, err := s.deps.Registry.Engine(ctx, folder)
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to open index", map[string]interface{}{
			"folder_id": folder,
			"error":     err.Error(),
		})
	}
	if engine.Size() == 0 {
		return mcp.NewToolResultText(noDocumentsMessage), nil
	}

	results, err := engine.Search(ctx, query, topK)
	if errors.Is(err, searchengine.ErrInvalidArgument) {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid search request", map[string]interface{}{
			"error": err.Error(),
		})
	}
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "search failed", map[string]interface{}{
			"error": err.Error(),
		})
	}

	return mcp.NewToolResultText(FormatSearchResults(results)), nil
}

// handleReadChunk handles the read_chunk tool invocation.
// Missing sessions and chunks are reported in the status object, not as errors.
func (s *Server) handleReadChunk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	folder, err := requireFolderID(args)
	if err != nil {
		return nil, err
	}
	chunkID, ok := args["chunk_id"].(string)
	if !ok || chunkID == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "chunk_id parameter is required", map[string]interface{}{
			"param":  "chunk_id",
			"reason": "missing or empty",
		})
	}

	content := s.deps.Sessions.ReadChunk(folder, chunkID)
	return mcp.NewToolResultText(formatJSON(content)), nil
}

// handleGetIndexedFiles handles the get_indexed_files tool invocation
func (s *Server) handleGetIndexedFiles(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	folders, err := s.selectFolders(args)
	if err != nil {
		return nil, err
	}

	var listings []FolderListing
	for _, folder := range folders {
		engine, err := s.deps.Registry.Engine(ctx, folder)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to open index", map[string]interface{}{
				"folder_id": folder,
				"error":     err.Error(),
			})
		}
		listing := FolderListing{Folder: folder, Stats: engine.Stats()}

		ledger, err := s.deps.Ingestor.Ledger(folder)
		switch {
		case err == nil:
			listing.Files = ledger.Files()
		case !errors.Is(err, ingest.ErrNoLedger):
			s.logger.Warn("failed to read ledger", zap.String("folder", folder), zap.Error(err))
		}
		listings = append(listings, listing)
	}

	return mcp.NewToolResultText(FormatIndexedFiles(listings)), nil
}

// handleRetrieveFile handles the retrieve_file tool invocation
func (s *Server) handleRetrieveFile(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	folder, err := requireFolderID(args)
	if err != nil {
		return nil, err
	}
	path := getStringDefault(args, "path", "")
	if strings.TrimSpace(path) == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "path parameter is required", map[string]interface{}{
			"param":  "path",
			"reason": "missing or empty",
		})
	}

	content, err := indexer.ReadFile(filepath.Join(s.deps.ReposDir, folder), path)
	if err != nil {
		return nil, fileError(folder, path, err)
	}
	return mcp.NewToolResultText(formatJSON(content)), nil
}

// handleGetFileTree handles the get_file_tree tool invocation
func (s *Server) handleGetFileTree(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	folder, err := requireFolderID(args)
	if err != nil {
		return nil, err
	}

	tree, err := indexer.Tree(filepath.Join(s.deps.ReposDir, folder))
	if err != nil {
		return nil, fileError(folder, "", err)
	}
	return mcp.NewToolResultText(formatJSON(map[string]interface{}{
		"folder_id": folder,
		"tree":      tree,
	})), nil
}

// fileError maps checkout read failures to MCP error codes
func fileError(folder, path string, err error) error {
	data := map[string]interface{}{
		"folder_id": folder,
		"path":      path,
		"error":     err.Error(),
	}
	switch {
	case errors.Is(err, os.ErrNotExist), errors.Is(err, indexer.ErrNotDirectory):
		return newMCPError(ErrorCodeNotFound, "file not found", data)
	case errors.Is(err, indexer.ErrOutsideRoot),
		errors.Is(err, indexer.ErrFileTooLarge),
		errors.Is(err, indexer.ErrNotFile):
		return newMCPError(ErrorCodeInvalidParams, "cannot read path", data)
	default:
		return newMCPError(ErrorCodeInternalError, "failed to read checkout", data)
	}
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, _ := request.Params.Arguments.(map[string]interface{})
	folders, err := s.selectFolders(args)
	if err != nil {
		return nil, err
	}

	recent := getIntDefault(args, "recent_events", defaultRecentEvents)
	if recent < 0 || recent > maxRecentEvents {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("recent_events must be between 0 and %d", maxRecentEvents), map[string]interface{}{
			"param": "recent_events",
			"value": recent,
		})
	}

	statuses := make([]map[string]interface{}, 0, len(folders))
	for _, folder := range folders {
		engine, err := s.deps.Registry.Engine(ctx, folder)
		if err != nil {
			return nil, newMCPError(ErrorCodeInternalError, "failed to open index", map[string]interface{}{
				"folder_id": folder,
				"error":     err.Error(),
			})
		}
		stats := engine.Stats()
		status := map[string]interface{}{
			"folder_id":        folder,
			"total_documents":  stats.TotalDocuments,
			"doc_store_size":   stats.DocStoreSize,
			"dimension":        stats.Dimension,
			"analysis_running": s.deps.Pipeline != nil && s.deps.Pipeline.Running(folder),
		}
		if ledger, err := s.deps.Ingestor.Ledger(folder); err == nil {
			status["files_summarized"] = len(ledger.FilesIndex)
		}
		statuses = append(statuses, status)
	}

	response := map[string]interface{}{
		"folders":            statuses,
		"analysis_available": s.deps.Pipeline != nil,
		"pending_proposals":  s.deps.Proposals.Len(),
		"recent_events":      s.trace.Last(recent),
		"events_dropped":     s.trace.Dropped(),
		"tokens_used":        s.trace.TotalTokens().TotalTokens,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleProposeCodeChange handles the propose_code_change tool invocation
func (s *Server) handleProposeCodeChange(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	path, ok := args["file_path"].(string)
	if !ok || path == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "file_path parameter is required", map[string]interface{}{
			"param":  "file_path",
			"reason": "missing or empty",
		})
	}
	content, ok := args["proposed_content"].(string)
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "proposed_content parameter is required", map[string]interface{}{
			"param":  "proposed_content",
			"reason": "missing",
		})
	}

	p, err := s.deps.Proposals.Propose(path, content)
	if err != nil {
		return nil, proposalError(err)
	}

	response := map[string]interface{}{
		"success":          true,
		"status":           "pending",
		"proposal_id":      p.ID,
		"file_path":        p.FilePath,
		"original_content": p.OriginalContent,
		"proposed_content": p.ProposedContent,
		"message":          "Proposal created. Ask the user to accept or reject it.",
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleResolveProposal handles the resolve_proposal tool invocation
func (s *Server) handleResolveProposal(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}
	id, ok := args["proposal_id"].(string)
	if !ok || id == "" {
		return nil, newMCPError(ErrorCodeInvalidParams, "proposal_id parameter is required", map[string]interface{}{
			"param":  "proposal_id",
			"reason": "missing or empty",
		})
	}
	action := proposals.Action(getStringDefault(args, "action", ""))
	if action != proposals.ActionAccept && action != proposals.ActionReject {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid action", map[string]interface{}{
			"param":   "action",
			"value":   string(action),
			"allowed": []string{string(proposals.ActionAccept), string(proposals.ActionReject)},
		})
	}

	result, err := s.deps.Proposals.Resolve(id, action)
	if err != nil {
		return nil, proposalError(err)
	}
	return mcp.NewToolResultText(formatJSON(result)), nil
}

// Helper functions

// selectFolders returns the requested folder, or every folder with an index or ledger
func (s *Server) selectFolders(args map[string]interface{}) ([]string, error) {
	if folder := getStringDefault(args, "folder_id", ""); folder != "" {
		if err := searchengine.ValidateFolderID(folder); err != nil {
			return nil, invalidFolder(err)
		}
		return []string{folder}, nil
	}

	indexed, err := s.deps.Registry.Folders()
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list indices", map[string]interface{}{
			"error": err.Error(),
		})
	}
	ledgers, err := s.deps.Ingestor.ListLedgers()
	if err != nil {
		return nil, newMCPError(ErrorCodeInternalError, "failed to list ledgers", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return mergeSorted(indexed, ledgers), nil
}

func requireFolderID(args map[string]interface{}) (string, error) {
	folder, ok := args["folder_id"].(string)
	if !ok || folder == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "folder_id parameter is required", map[string]interface{}{
			"param":  "folder_id",
			"reason": "missing or empty",
		})
	}
	if err := searchengine.ValidateFolderID(folder); err != nil {
		return "", invalidFolder(err)
	}
	return folder, nil
}

func invalidFolder(err error) error {
	return newMCPError(ErrorCodeInvalidParams, "invalid folder_id", map[string]interface{}{
		"param":  "folder_id",
		"reason": err.Error(),
	})
}

// proposalError maps a proposal store failure to an MCP error
func proposalError(err error) error {
	data := map[string]interface{}{
		"code":  string(proposals.CodeOf(err)),
		"error": err.Error(),
	}
	switch proposals.CodeOf(err) {
	case proposals.CodeNotFound, proposals.CodeFileNotFound:
		return newMCPError(ErrorCodeNotFound, "proposal target not found", data)
	case proposals.CodeInvalidData:
		return newMCPError(ErrorCodeInvalidParams, "invalid proposal", data)
	default:
		return newMCPError(ErrorCodeInternalError, "proposal operation failed", data)
	}
}

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

// validatePath checks that path is an absolute, readable directory
func validatePath(path string) error {
	if path == "" {
		return ErrPathRequired
	}
	if !filepath.IsAbs(path) {
		return ErrPathNotAbsolute
	}

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return ErrPathNotFound
	}
	if err != nil {
		return ErrPathNotReadable
	}
	if !info.IsDir() {
		return ErrNotDirectory
	}

	f, err := os.Open(path)
	if err != nil {
		return ErrPathNotReadable
	}
	_ = f.Close()
	return nil
}

// formatJSON formats a value as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
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

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}

// Validation helpers

var (
	ErrPathRequired    = errors.New("path is required")
	ErrPathNotAbsolute = errors.New("path must be absolute")
	ErrPathNotFound    = errors.New("path does not exist")
	ErrPathNotReadable = errors.New("path is not readable")
	ErrNotDirectory    = errors.New("path is not a directory")
)
