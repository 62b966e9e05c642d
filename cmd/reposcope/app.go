package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/dshills/reposcope-mcp/internal/analyzer"
	"github.com/dshills/reposcope-mcp/internal/chunker"
	"github.com/dshills/reposcope-mcp/internal/config"
	"github.com/dshills/reposcope-mcp/internal/embedder"
	"github.com/dshills/reposcope-mcp/internal/events"
	"github.com/dshills/reposcope-mcp/internal/httpapi"
	"github.com/dshills/reposcope-mcp/internal/indexer"
	"github.com/dshills/reposcope-mcp/internal/ingest"
	"github.com/dshills/reposcope-mcp/internal/logging"
	"github.com/dshills/reposcope-mcp/internal/mcp"
	"github.com/dshills/reposcope-mcp/internal/observability"
	"github.com/dshills/reposcope-mcp/internal/proposals"
	"github.com/dshills/reposcope-mcp/internal/searchengine"
)

// app holds every long-lived component, wired from one Config
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	tracing   *observability.TracerProvider
	embedder  *embedder.Client
	registry  *searchengine.Registry
	ingestor  *ingest.Ingestor
	sessions  *chunker.Sessions
	pipeline  *analyzer.Pipeline // nil without an analysis API key
	proposals *proposals.Store
	trace     *events.Trace
}

func newApp(ctx context.Context, configPath string) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	for _, w := range cfg.Validate() {
		logger.Warn("config: " + w)
	}

	tp, err := observability.InitTracing(ctx, observability.TracingConfig{
		ServiceName:    "reposcope",
		ServiceVersion: version,
		OTLPEndpoint:   cfg.Tracing.OTLPEndpoint,
		SampleRate:     cfg.Tracing.SampleRate,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	for _, dir := range []string{cfg.ReposDir(), cfg.IndicesDir(), cfg.ChunksDir(), cfg.LedgerDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}

	emb, err := embedder.New(embedder.Config{
		Provider:   cfg.Embedding.Provider,
		APIKey:     cfg.Embedding.APIKey,
		Model:      cfg.Embedding.Model,
		Dimension:  cfg.Embedding.Dimension,
		CacheSize:  cfg.Embedding.CacheSize,
		MaxRetries: cfg.Embedding.MaxRetries,
		RetryDelay: cfg.Embedding.RetryDelay,
	}, logger.Named("embedder"))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	a := &app{
		cfg:      cfg,
		logger:   logger,
		tracing:  tp,
		embedder: emb,
		sessions: chunker.NewSessions(cfg.ChunksDir()),
		trace:    events.NewTrace("reposcope", 0),
	}
	a.registry = searchengine.NewRegistry(cfg.IndicesDir(), emb, logger.Named("search"))
	a.ingestor = ingest.New(cfg.LedgerDir(), a.registry, logger.Named("ingest"))
	a.proposals = proposals.NewStore(proposals.Options{
		TTL:        cfg.Proposals.TTL,
		MaxEntries: cfg.Proposals.MaxEntries,
		Root:       cfg.ReposDir(),
		Logger:     logger.Named("proposals"),
	})

	a.pipeline, err = a.newPipeline()
	if errors.Is(err, analyzer.ErrMissingAPIKey) {
		logger.Warn("analysis disabled: no analysis api key configured")
	} else if err != nil {
		return nil, err
	}

	logger.Info("reposcope initialized",
		zap.String("storage_root", cfg.Storage.Root),
		zap.String("embedding_provider", emb.Provider()),
		zap.String("embedding_model", emb.Model()),
		zap.Int("dimension", emb.Dimension()),
		zap.Bool("analysis_enabled", a.pipeline != nil))
	return a, nil
}

func (a *app) newPipeline() (*analyzer.Pipeline, error) {
	runner, err := analyzer.NewOpenAIRunner(analyzer.RunnerConfig{
		APIKey:  a.cfg.Analysis.APIKey,
		Model:   a.cfg.Analysis.Model,
		BaseURL: a.cfg.Analysis.BaseURL,
		Timeout: a.cfg.Analysis.Timeout,
	})
	if err != nil {
		return nil, err
	}

	chunks, err := chunker.New(chunker.Limits{
		MaxTokens: a.cfg.Chunking.MaxTokens,
		MaxFiles:  a.cfg.Chunking.MaxFiles,
	}, a.logger.Named("chunker"))
	if err != nil {
		return nil, err
	}

	return analyzer.New(analyzer.Deps{
		Runner:   runner,
		Sessions: a.sessions,
		Ingestor: a.ingestor,
		Registry: a.registry,
		Indexer:  indexer.New(a.logger.Named("indexer")),
		Chunker:  chunks,
	}, analyzer.Options{
		Concurrency: a.cfg.Analysis.Concurrency,
		Cooldown:    a.cfg.Analysis.Cooldown,
		MaxAttempts: a.cfg.Analysis.MaxAttempts,
		RetryDelay:  a.cfg.Analysis.RetryDelay,
		Logger:      a.logger.Named("analyzer"),
	})
}

func (a *app) mcpServer() (*mcp.Server, error) {
	return mcp.NewServer(mcp.Deps{
		Registry:  a.registry,
		Ingestor:  a.ingestor,
		Sessions:  a.sessions,
		Pipeline:  a.pipeline,
		Proposals: a.proposals,
		ReposDir:  a.cfg.ReposDir(),
		Trace:     a.trace,
		Logger:    a.logger.Named("mcp"),
	})
}

func (a *app) httpServer() (*httpapi.Server, error) {
	return httpapi.New(httpapi.Deps{
		Registry:  a.registry,
		Ingestor:  a.ingestor,
		Sessions:  a.sessions,
		Pipeline:  a.pipeline,
		Proposals: a.proposals,
		ReposDir:  a.cfg.ReposDir(),
		Trace:     a.trace,
		Logger:    a.logger.Named("http"),
	})
}

// Close saves loaded indices and releases resources
func (a *app) Close(ctx context.Context) {
	ctx = context.WithoutCancel(ctx)
	if err := a.registry.SaveAll(ctx); err != nil {
		a.logger.Error("failed to save indices", zap.Error(err))
	}
	if err := a.embedder.Close(); err != nil {
		a.logger.Warn("failed to close embedder", zap.Error(err))
	}
	if err := a.tracing.Shutdown(ctx); err != nil {
		a.logger.Warn("failed to shut down tracing", zap.Error(err))
	}
	_ = a.logger.Sync()
}
