package analyzer

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/reposcope-mcp/internal/chunker"
	"github.com/dshills/reposcope-mcp/internal/events"
	"github.com/dshills/reposcope-mcp/internal/indexer"
	"github.com/dshills/reposcope-mcp/internal/ingest"
	"github.com/dshills/reposcope-mcp/internal/logging"
	"github.com/dshills/reposcope-mcp/internal/observability"
	"github.com/dshills/reposcope-mcp/internal/retry"
	"github.com/dshills/reposcope-mcp/internal/searchengine"
	"github.com/dshills/reposcope-mcp/pkg/types"
)

// Pipeline defaults
const (
	DefaultConcurrency = 5
	DefaultCooldown    = 45 * time.Second
	DefaultMaxAttempts = 4
	DefaultRetryDelay  = 2 * time.Second

	// AgentName attributes pipeline events in a trace
	AgentName = "analyzer"
	toolName  = "analyze_chunk"
)

var (
	// ErrAnalysisInProgress is returned when the folder is already being analyzed
	ErrAnalysisInProgress = errors.New("analysis already in progress")
	// ErrMissingDependency is returned by New when a required collaborator is nil
	ErrMissingDependency = errors.New("analyzer dependency missing")
	// ErrChunkUnavailable is returned when a chunk cannot be reconstructed
	ErrChunkUnavailable = errors.New("chunk content unavailable")
)

// BatchStatus summarizes a batch outcome
type BatchStatus string

const (
	StatusSuccess        BatchStatus = "success"
	StatusPartialSuccess BatchStatus = "partial_success"
	StatusFailure        BatchStatus = "failure"
)

// ChunkFailure records why one chunk was not ingested
type ChunkFailure struct {
	ChunkID string `json:"chunk_id"`
	Error   string `json:"error"`
}

// BatchResult is the outcome of analyzing a set of chunks
type BatchResult struct {
	Folder    string         `json:"folder_id"`
	Status    BatchStatus    `json:"status"`
	Total     int            `json:"total_chunks"`
	Succeeded []string       `json:"succeeded"`
	Failed    []ChunkFailure `json:"failed,omitempty"`
	Documents int            `json:"documents_ingested"`
	Duration  time.Duration  `json:"duration_ns"`
}

// Report is the outcome of a full repository analysis
type Report struct {
	Folder       string       `json:"folder_id"`
	Root         string       `json:"root"`
	FilesIndexed int          `json:"files_indexed"`
	FilesSkipped int          `json:"files_skipped"`
	FilesFailed  int          `json:"files_failed"`
	Chunks       int          `json:"chunks"`
	Batch        *BatchResult `json:"batch"`
}

// Deps are the collaborators a Pipeline drives
type Deps struct {
	Runner   Runner
	Sessions *chunker.Sessions
	Ingestor *ingest.Ingestor
	Registry *searchengine.Registry
	Indexer  *indexer.Indexer
	Chunker  *chunker.Chunker
}

// Options tune a Pipeline. Zero values use the package defaults.
type Options struct {
	Concurrency int
	Cooldown    time.Duration
	RetryDelay  time.Duration
	MaxAttempts int
	Logger      *zap.Logger
}

// Pipeline turns repository chunks into ingested summaries
type Pipeline struct {
	deps    Deps
	opts    Options
	logger  *zap.Logger
	locks   *indexer.FolderLocks
	adapter *events.Adapter
}

// New creates a Pipeline
func New(deps Deps, opts Options) (*Pipeline, error) {
	switch {
	case deps.Runner == nil:
		return nil, fmt.Errorf("%w: runner", ErrMissingDependency)
	case deps.Sessions == nil:
		return nil, fmt.Errorf("%w: sessions", ErrMissingDependency)
	case deps.Ingestor == nil:
		return nil, fmt.Errorf("%w: ingestor", ErrMissingDependency)
	case deps.Registry == nil:
		return nil, fmt.Errorf("%w: registry", ErrMissingDependency)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	if opts.Cooldown <= 0 {
		opts.Cooldown = DefaultCooldown
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = DefaultRetryDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	logger := logging.OrNop(opts.Logger)
	if deps.Indexer == nil {
		deps.Indexer = indexer.New(logger)
	}
	if deps.Chunker == nil {
		c, err := chunker.New(chunker.DefaultLimits(), logger)
		if err != nil {
			return nil, err
		}
		deps.Chunker = c
	}
	return &Pipeline{
		deps:    deps,
		opts:    opts,
		logger:  logger,
		locks:   indexer.NewFolderLocks(),
		adapter: events.NewAdapter(),
	}, nil
}

// AnalyzeRepository scans root, chunks it, persists the session under folder
// and analyzes every chunk. Only one analysis per folder runs at a time.
func (p *Pipeline) AnalyzeRepository(ctx context.Context, folder, root string, trace *events.Trace) (*Report, error) {
	if err := searchengine.ValidateFolderID(folder); err != nil {
		return nil, err
	}
	if !p.locks.TryAcquire(folder) {
		return nil, fmt.Errorf("%w: %s", ErrAnalysisInProgress, folder)
	}
	defer p.locks.Release(folder)

	ctx, span := observability.StartSpan(ctx, "analyzer.AnalyzeRepository",
		attribute.String("folder", folder),
		attribute.String("root", root))
	var err error
	defer func() { observability.EndSpan(span, err) }()

	files, stats, err := p.deps.Indexer.Build(ctx, root, nil)
	if err != nil {
		return nil, fmt.Errorf("scan repository: %w", err)
	}
	chunks := p.deps.Chunker.ChunkFiles(root, files)
	if err = p.deps.Sessions.SaveSession(folder, chunks, files); err != nil {
		return nil, fmt.Errorf("save session: %w", err)
	}

	report := &Report{
		Folder:       folder,
		Root:         root,
		FilesIndexed: stats.FilesIndexed,
		FilesSkipped: stats.FilesSkipped,
		FilesFailed:  stats.FilesFailed,
		Chunks:       len(chunks),
	}
	report.Batch, err = p.analyze(ctx, folder, chunks, trace)
	return report, err
}

// AnalyzeSession analyzes the chunks of a previously saved session
func (p *Pipeline) AnalyzeSession(ctx context.Context, folder string, trace *events.Trace) (*BatchResult, error) {
	chunks, err := p.deps.Sessions.LoadChunks(folder)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", folder, err)
	}
	return p.AnalyzeChunks(ctx, folder, chunks, trace)
}

// AnalyzeChunks summarizes chunks with at most Concurrency workers and
// ingests every summary into folder. A failed chunk never stops its
// siblings; the result lists both sides. The folder's engine is saved once
// at the end. The returned error is non-nil only for cancellation or a
// failed save.
func (p *Pipeline) AnalyzeChunks(ctx context.Context, folder string, chunks []types.Chunk, trace *events.Trace) (*BatchResult, error) {
	if err := searchengine.ValidateFolderID(folder); err != nil {
		return nil, err
	}
	if !p.locks.TryAcquire(folder) {
		return nil, fmt.Errorf("%w: %s", ErrAnalysisInProgress, folder)
	}
	defer p.locks.Release(folder)
	return p.analyze(ctx, folder, chunks, trace)
}

func (p *Pipeline) analyze(ctx context.Context, folder string, chunks []types.Chunk, trace *events.Trace) (*BatchResult, error) {
	start := time.Now()
	result := &BatchResult{Folder: folder, Total: len(chunks), Succeeded: []string{}}

	var mu sync.Mutex
	g := &errgroup.Group{}
	g.SetLimit(p.opts.Concurrency)

	for _, chunk := range chunks {
		if ctx.Err() != nil {
			break
		}
		g.Go(func() error {
			docs, err := p.analyzeChunk(ctx, folder, chunk, trace)
			mu.Lock()
			defer mu.Unlock()
			result.Documents += docs
			if err != nil {
				result.Failed = append(result.Failed, ChunkFailure{ChunkID: chunk.ChunkID, Error: err.Error()})
				return nil
			}
			result.Succeeded = append(result.Succeeded, chunk.ChunkID)
			return nil
		})
	}
	_ = g.Wait()

	// Fill in chunks never started because of cancellation
	if ctx.Err() != nil {
		done := make(map[string]bool, len(chunks))
		for _, id := range result.Succeeded {
			done[id] = true
		}
		for _, f := range result.Failed {
			done[f.ChunkID] = true
		}
		for _, c := range chunks {
			if !done[c.ChunkID] {
				result.Failed = append(result.Failed, ChunkFailure{ChunkID: c.ChunkID, Error: ctx.Err().Error()})
			}
		}
	}

	sort.Strings(result.Succeeded)
	sort.Slice(result.Failed, func(i, j int) bool { return result.Failed[i].ChunkID < result.Failed[j].ChunkID })
	result.Status = batchStatus(len(result.Succeeded), len(result.Failed))
	result.Duration = time.Since(start)

	p.logger.Info("analysis batch finished",
		zap.String("folder", folder),
		zap.String("status", string(result.Status)),
		zap.Int("succeeded", len(result.Succeeded)),
		zap.Int("failed", len(result.Failed)),
		zap.Int("documents", result.Documents),
		zap.Duration("duration", result.Duration))

	if result.Documents > 0 {
		// Persist even when ctx ended so ingested work survives
		saveCtx := context.WithoutCancel(ctx)
		engine, err := p.deps.Registry.Engine(saveCtx, folder)
		if err != nil {
			return result, err
		}
		if err := engine.Save(saveCtx); err != nil {
			return result, fmt.Errorf("save index: %w", err)
		}
	}
	return result, ctx.Err()
}

func batchStatus(succeeded, failed int) BatchStatus {
	switch {
	case failed == 0:
		return StatusSuccess
	case succeeded == 0:
		return StatusFailure
	default:
		return StatusPartialSuccess
	}
}

// analyzeChunk runs one chunk end to end and returns how many summaries it ingested
func (p *Pipeline) analyzeChunk(ctx context.Context, folder string, chunk types.Chunk, trace *events.Trace) (docs int, err error) {
	ctx, span := observability.StartSpan(ctx, "analyzer.AnalyzeChunk",
		attribute.String("folder", folder),
		attribute.String("chunk_id", chunk.ChunkID))
	defer func() { observability.EndSpan(span, err) }()

	log := p.logger.With(zap.String("folder", folder), zap.String("chunk_id", chunk.ChunkID))
	p.emit(trace, events.RawEvent{Calls: []events.RawCall{{
		Name: toolName,
		Args: map[string]any{"folder_id": folder, "chunk_id": chunk.ChunkID},
	}}})
	defer func() {
		if err != nil {
			log.Warn("chunk analysis failed", zap.Error(err))
			p.emit(trace, events.RawEvent{ErrorCode: "CHUNK_FAILED", ErrorMessage: chunk.ChunkID + ": " + err.Error()})
		}
	}()

	content := p.deps.Sessions.ReadChunk(folder, chunk.ChunkID)
	if !content.OK() {
		return 0, fmt.Errorf("%w: %s: %s", ErrChunkUnavailable, content.Status, content.Message)
	}
	if len(content.Files) == 0 {
		return 0, fmt.Errorf("%w: no readable files", ErrChunkUnavailable)
	}
	prompt := BuildPrompt(*content.Chunk, content.Files)

	policy := retry.Policy{
		MaxAttempts: p.opts.MaxAttempts,
		Delay:       p.opts.RetryDelay,
		Cooldown:    p.opts.Cooldown,
		Classify:    retry.Classify,
		OnRetry: func(attempt int, err error, wait time.Duration) {
			log.Warn("model call failed, retrying",
				zap.Int("attempt", attempt),
				zap.Bool("rate_limited", retry.IsRateLimited(err)),
				zap.Duration("wait", wait),
				zap.Error(err))
		},
	}
	resp, err := retry.Do(ctx, policy, func(ctx context.Context) (Response, error) {
		return p.deps.Runner.Run(ctx, prompt)
	})
	if err != nil {
		return 0, fmt.Errorf("run model: %w", err)
	}
	if resp.Usage.TotalTokens > 0 {
		p.emit(trace, events.RawEvent{Usage: &events.RawUsage{
			PromptTokens:     resp.Usage.PromptTokens,
			CandidatesTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}})
	}

	summaries, err := ExtractSummaries(resp.Text)
	if err != nil {
		return 0, err
	}

	for _, s := range summaries {
		if _, err := p.deps.Ingestor.Ingest(ctx, folder, chunk.ChunkID, s); err != nil {
			return docs, fmt.Errorf("ingest summary: %w", err)
		}
		docs++
	}

	p.emit(trace, events.RawEvent{Responses: []events.RawResponse{{
		Name:     toolName,
		Response: fmt.Sprintf("Ingested %d summaries from chunk %s", docs, chunk.ChunkID),
	}}})
	log.Debug("chunk analyzed", zap.Int("summaries", docs))
	return docs, nil
}

func (p *Pipeline) emit(trace *events.Trace, raw events.RawEvent) {
	if trace == nil {
		return
	}
	trace.Add(AgentName, p.adapter.Adapt(raw)...)
}

// Running reports whether an analysis of folder is in progress
func (p *Pipeline) Running(folder string) bool {
	return p.locks.Held(folder)
}
