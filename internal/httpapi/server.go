// Package httpapi serves search, statistics, analysis and proposal
// endpoints over HTTP with a chi router.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/reposcope-mcp/internal/analyzer"
	"github.com/dshills/reposcope-mcp/internal/chunker"
	"github.com/dshills/reposcope-mcp/internal/events"
	"github.com/dshills/reposcope-mcp/internal/indexer"
	"github.com/dshills/reposcope-mcp/internal/ingest"
	"github.com/dshills/reposcope-mcp/internal/logging"
	"github.com/dshills/reposcope-mcp/internal/proposals"
	"github.com/dshills/reposcope-mcp/internal/searchengine"
	"github.com/dshills/reposcope-mcp/pkg/types"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 10 * time.Second

	defaultEventLimit = 50
	maxEventLimit     = 500

	statusOK      = "ok"
	statusSuccess = "success"

	// Trace labels for HTTP activity
	agentName           = "http_client"
	searchTool          = "search_index"
	resolveProposalTool = "resolve_proposal"
)

// ErrMissingDependency is returned by New when a required component is nil
var ErrMissingDependency = errors.New("http api dependency missing")

// Deps are the components behind the routes. Pipeline may be nil, in
// which case POST /api/analysis answers 503.
type Deps struct {
	Registry  *searchengine.Registry
	Ingestor  *ingest.Ingestor
	Sessions  *chunker.Sessions
	Pipeline  *analyzer.Pipeline
	Proposals *proposals.Store
	ReposDir  string
	Trace     *events.Trace
	Logger    *zap.Logger
}

// Server is the HTTP surface
type Server struct {
	deps    Deps
	logger  *zap.Logger
	trace   *events.Trace
	adapter *events.Adapter
	router  chi.Router
}

// New builds the router
func New(deps Deps) (*Server, error) {
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
		trace = events.NewTrace("http", 0)
	}

	s := &Server{
		deps:    deps,
		logger:  logging.OrNop(deps.Logger),
		trace:   trace,
		adapter: events.NewAdapter(),
	}
	s.router = s.routes()
	return s, nil
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/health", s.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/search", s.Search)
		r.Post("/analysis", s.Analyze)
		r.Get("/stats/{folder}", s.Stats)
		r.Get("/files/{folder}", s.Files)
		r.Get("/files/{folder}/content", s.FileContent)
		r.Get("/files/{folder}/tree", s.FileTree)
		r.Get("/chunks/{folder}/{chunk}", s.Chunk)
		r.Get("/events", s.Events)
		r.Route("/proposals", func(r chi.Router) {
			r.Post("/action", s.ProposalAction)
			r.Post("/{id}/{action}", s.ResolveProposal)
		})
	})
	return r
}

// ListenAndServe serves on addr until ctx ends, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx ends
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.logger.Info("http api listening", zap.String("addr", listener.Addr().String()))
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Health reports liveness
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]string{"status": statusOK})
}

// SearchResponse is the body of a successful search
type SearchResponse struct {
	Status  string               `json:"status"`
	Query   string               `json:"query"`
	Results []types.SearchResult `json:"results"`
}

// Search runs a semantic query against one folder. An empty index answers
// 200 with no results.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	data := &SearchRequest{}
	if err := render.Bind(r, data); err != nil {
		_ = render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	s.record(events.RawEvent{Calls: []events.RawCall{{
		Name: searchTool,
		Args: map[string]any{"folder_id": data.FolderID, "query": data.Query, "top_k": data.TopK},
	}}})

	engine, err := s.deps.Registry.Engine(r.Context(), data.FolderID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	results, err := engine.Search(r.Context(), data.Query, data.TopK)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if results == nil {
		results = []types.SearchResult{}
	}
	s.record(events.RawEvent{Responses: []events.RawResponse{{
		Name:     searchTool,
		Response: fmt.Sprintf("Found %d relevant results", len(results)),
	}}})

	render.Status(r, http.StatusOK)
	render.JSON(w, r, SearchResponse{Status: statusSuccess, Query: data.Query, Results: results})
}

// Analyze runs a full repository analysis synchronously
func (s *Server) Analyze(w http.ResponseWriter, r *http.Request) {
	data := &AnalysisRequest{}
	if err := render.Bind(r, data); err != nil {
		_ = render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	if s.deps.Pipeline == nil {
		s.fail(w, r, fmt.Errorf("%w: analysis backend is not configured", ErrUnavailable))
		return
	}

	path := data.Path
	if path == "" {
		path = filepath.Join(s.deps.ReposDir, data.FolderID)
	}
	report, err := s.deps.Pipeline.AnalyzeRepository(r.Context(), data.FolderID, path, s.trace)
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, indexer.ErrNotDirectory) {
		s.fail(w, r, fmt.Errorf("%w: repository checkout: %w", ErrNotFound, err))
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, report)
}

// Stats reports index statistics of one folder
func (s *Server) Stats(w http.ResponseWriter, r *http.Request) {
	folder := chi.URLParam(r, "folder")
	if err := searchengine.ValidateFolderID(folder); err != nil {
		_ = render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	engine, err := s.deps.Registry.Engine(r.Context(), folder)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, engine.Stats())
}

// Files lists the files summarized for one folder
func (s *Server) Files(w http.ResponseWriter, r *http.Request) {
	folder := chi.URLParam(r, "folder")
	if err := searchengine.ValidateFolderID(folder); err != nil {
		_ = render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	ledger, err := s.deps.Ingestor.Ledger(folder)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]any{
		"folder_id": folder,
		"files":     ledger.Files(),
		"chunks":    len(ledger.Chunks),
	})
}

// FileContent returns one file of a checkout, named by the path query parameter
func (s *Server) FileContent(w http.ResponseWriter, r *http.Request) {
	folder := chi.URLParam(r, "folder")
	if err := searchengine.ValidateFolderID(folder); err != nil {
		_ = render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		_ = render.Render(w, r, ErrInvalidRequest(fmt.Errorf("%w: path is required", searchengine.ErrInvalidArgument)))
		return
	}
	content, err := indexer.ReadFile(filepath.Join(s.deps.ReposDir, folder), path)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, content)
}

// FileTree returns the directory tree of a checkout
func (s *Server) FileTree(w http.ResponseWriter, r *http.Request) {
	folder := chi.URLParam(r, "folder")
	if err := searchengine.ValidateFolderID(folder); err != nil {
		_ = render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	tree, err := indexer.Tree(filepath.Join(s.deps.ReposDir, folder))
	if errors.Is(err, indexer.ErrNotDirectory) {
		err = fmt.Errorf("%w: repository checkout: %w", ErrNotFound, err)
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]any{
		"folder_id": folder,
		"tree":      tree,
	})
}

// Chunk returns the raw contents of one chunk
func (s *Server) Chunk(w http.ResponseWriter, r *http.Request) {
	folder := chi.URLParam(r, "folder")
	if err := searchengine.ValidateFolderID(folder); err != nil {
		_ = render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	content := s.deps.Sessions.ReadChunk(folder, chi.URLParam(r, "chunk"))

	switch content.Status {
	case chunker.StatusSuccess:
		render.Status(r, http.StatusOK)
	case chunker.StatusChunkNotFound, chunker.StatusSessionMissing:
		render.Status(r, http.StatusNotFound)
	default:
		render.Status(r, http.StatusInternalServerError)
	}
	render.JSON(w, r, content)
}

// Events returns recent trace records; ?limit= bounds the count
func (s *Server) Events(w http.ResponseWriter, r *http.Request) {
	limit := defaultEventLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n > maxEventLimit {
			_ = render.Render(w, r, ErrInvalidRequest(fmt.Errorf("limit must be between 0 and %d", maxEventLimit)))
			return
		}
		limit = n
	}
	render.Status(r, http.StatusOK)
	render.JSON(w, r, map[string]any{
		"session_id": s.trace.SessionID,
		"dropped":    s.trace.Dropped(),
		"events":     s.trace.Last(limit),
	})
}

// ProposalAction resolves a proposal named in the request body
func (s *Server) ProposalAction(w http.ResponseWriter, r *http.Request) {
	data := &ProposalActionRequest{}
	if err := render.Bind(r, data); err != nil {
		_ = render.Render(w, r, ErrInvalidRequest(err))
		return
	}
	s.resolve(w, r, data.ProposalID, proposals.Action(data.Action))
}

// ResolveProposal resolves the proposal named in the path
func (s *Server) ResolveProposal(w http.ResponseWriter, r *http.Request) {
	s.resolve(w, r, chi.URLParam(r, "id"), proposals.Action(chi.URLParam(r, "action")))
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request, id string, action proposals.Action) {
	s.record(events.RawEvent{Calls: []events.RawCall{{
		Name: resolveProposalTool,
		Args: map[string]any{"proposal_id": id, "action": string(action)},
	}}})
	result, err := s.deps.Proposals.Resolve(id, action)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	s.record(events.RawEvent{Responses: []events.RawResponse{{Name: resolveProposalTool, Response: result.Message}}})
	render.Status(r, http.StatusOK)
	render.JSON(w, r, result)
}

// fail renders err with its mapped status
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	resp := errorResponse(err)
	if resp.HTTPStatusCode >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
	}
	code := resp.AppCode
	if code == "" {
		code = strconv.Itoa(resp.HTTPStatusCode)
	}
	s.record(events.RawEvent{ErrorCode: code, ErrorMessage: r.URL.Path + ": " + err.Error()})
	_ = render.Render(w, r, resp)
}

func (s *Server) record(raw events.RawEvent) {
	s.trace.Add(agentName, s.adapter.Adapt(raw)...)
}

// requestLogger logs every request at debug level
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
