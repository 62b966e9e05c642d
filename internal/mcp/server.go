package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"go.uber.org/zap"

	"github.com/dshills/reposcope-mcp/internal/analyzer"
	"github.com/dshills/reposcope-mcp/internal/chunker"
	"github.com/dshills/reposcope-mcp/internal/events"
	"github.com/dshills/reposcope-mcp/internal/ingest"
	"github.com/dshills/reposcope-mcp/internal/logging"
	"github.com/dshills/reposcope-mcp/internal/proposals"
	"github.com/dshills/reposcope-mcp/internal/searchengine"
)

const (
	// ServerName is the MCP server name
	ServerName = "reposcope-mcp"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
	// AgentName attributes tool events recorded by the server
	AgentName = "mcp_client"
)

// ErrMissingDependency is returned by NewServer when a required component is nil
var ErrMissingDependency = errors.New("mcp server dependency missing")

// Deps are the components the tools operate on. Pipeline may be nil when no
// analysis backend is configured; analyze_repository then reports an error.
type Deps struct {
	Registry  *searchengine.Registry
	Ingestor  *ingest.Ingestor
	Sessions  *chunker.Sessions
	Pipeline  *analyzer.Pipeline
	Proposals *proposals.Store
	ReposDir  string // Default checkout location, one directory per folder id
	Trace     *events.Trace
	Logger    *zap.Logger
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	deps    Deps
	trace   *events.Trace
	adapter *events.Adapter
	logger  *zap.Logger

	handlers map[string]server.ToolHandlerFunc
}

// NewServer creates a new MCP server instance
func NewServer(deps Deps) (*Server, error) {
	switch {
	case deps.Registry == nil:
		return nil, fmt.Errorf("%w: registry", ErrMissingDependency)
	case deps.Ingestor == nil:
		return nil, fmt.Errorf("%w: ingestor", ErrMissingDependency)
	case deps.Sessions == nil:
		return nil, fmt.Errorf("%w: sessions", ErrMissingDependency)
	case deps.Proposals == nil:
		return nil, fmt.Errorf("%w: proposals", ErrMissingDependency)
	}

	trace := deps.Trace
	if trace == nil {
		trace = events.NewTrace("mcp", 0)
	}

	s := &Server{
		mcp:     server.NewMCPServer(ServerName, ServerVersion),
		deps:    deps,
		trace:   trace,
		adapter: events.NewAdapter(),
		logger:  logging.OrNop(deps.Logger),
	}
	s.registerTools()
	return s, nil
}

// Trace returns the event trace of tool activity
func (s *Server) Trace() *events.Trace {
	return s.trace
}

// MCPServer exposes the underlying protocol server
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// Serve starts the MCP server on stdio and blocks until shutdown.
// Every loaded index is saved on the way out.
func (s *Server) Serve(ctx context.Context) error {
	defer func() {
		if err := s.deps.Registry.SaveAll(context.WithoutCancel(ctx)); err != nil {
			s.logger.Error("failed to save indices on shutdown", zap.Error(err))
		}
	}()
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	tools := []struct {
		tool    mcp.Tool
		handler server.ToolHandlerFunc
	}{
		{analyzeRepositoryTool(), s.handleAnalyzeRepository},
		{searchIndexTool(), s.handleSearchIndex},
		{readChunkTool(), s.handleReadChunk},
		{getIndexedFilesTool(), s.handleGetIndexedFiles},
		{retrieveFileTool(), s.handleRetrieveFile},
		{getFileTreeTool(), s.handleGetFileTree},
		{getStatusTool(), s.handleGetStatus},
		{proposeCodeChangeTool(), s.handleProposeCodeChange},
		{resolveProposalTool(), s.handleResolveProposal},
	}

	s.handlers = make(map[string]server.ToolHandlerFunc, len(tools))
	for _, t := range tools {
		h := s.traced(t.tool.Name, t.handler)
		s.handlers[t.tool.Name] = h
		s.mcp.AddTool(t.tool, h)
	}
}

// traced records the call, its response or its error in the server trace
func (s *Server) traced(name string, h server.ToolHandlerFunc) server.ToolHandlerFunc {
	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := request.Params.Arguments.(map[string]interface{})
		s.record(events.RawEvent{Calls: []events.RawCall{{Name: name, Args: args}}})

		result, err := h(ctx, request)
		if err != nil {
			code := "TOOL_ERROR"
			var mcpErr *MCPError
			if errors.As(err, &mcpErr) {
				code = strconv.Itoa(mcpErr.Code)
			}
			s.record(events.RawEvent{ErrorCode: code, ErrorMessage: name + ": " + err.Error()})
			s.logger.Warn("tool call failed", zap.String("tool", name), zap.Error(err))
			return nil, err
		}

		s.record(events.RawEvent{Responses: []events.RawResponse{{Name: name, Response: responsePayload(result)}}})
		return result, nil
	}
}

func (s *Server) record(raw events.RawEvent) {
	s.trace.Add(AgentName, s.adapter.Adapt(raw)...)
}

// responsePayload returns the result text, decoded when it holds a JSON object
func responsePayload(result *mcp.CallToolResult) any {
	text := resultText(result)
	var obj map[string]any
	if json.Unmarshal([]byte(text), &obj) == nil {
		return obj
	}
	return text
}

func resultText(result *mcp.CallToolResult) string {
	if result == nil {
		return ""
	}
	for _, c := range result.Content {
		switch tc := c.(type) {
		case mcp.TextContent:
			return tc.Text
		case *mcp.TextContent:
			return tc.Text
		}
	}
	return ""
}
