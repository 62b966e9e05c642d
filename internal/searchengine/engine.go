// Package searchengine combines an embedder, a vector index and a document
// store into a searchable, persistable collection of documents.
//
// One Engine serves one repository. All reads and writes of the index and
// store go through a single mutex, so a search that starts after an upload
// returns always sees that upload. Embedding calls happen outside the lock.
package searchengine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/dshills/reposcope-mcp/internal/docstore"
	"github.com/dshills/reposcope-mcp/internal/embedder"
	"github.com/dshills/reposcope-mcp/internal/logging"
	"github.com/dshills/reposcope-mcp/internal/observability"
	"github.com/dshills/reposcope-mcp/internal/storage"
	"github.com/dshills/reposcope-mcp/internal/vectorindex"
	"github.com/dshills/reposcope-mcp/pkg/types"
)

// Error taxonomy
var (
	// ErrInvalidArgument marks malformed caller input; never retried
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrEmbeddingFailure marks an embedding call that failed after retries
	ErrEmbeddingFailure = errors.New("embedding failure")
	// ErrDimensionMismatch marks a vector whose length differs from the index dimension
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrSearchFailure wraps unexpected errors from the nearest-neighbor search
	ErrSearchFailure = errors.New("search failure")
	// ErrNoStorage is returned by Save and Load on an engine without a directory
	ErrNoStorage = errors.New("engine has no storage directory")
)

// Artifact file names inside an engine directory
const (
	VectorsFile  = "vectors.bin"
	DocStoreFile = "doc_store.db"
)

// Options configures an Engine
type Options struct {
	Dir       string // Artifact directory; empty keeps the engine in memory only
	Dimension int    // Zero uses the embedder's dimension
	Logger    *zap.Logger
}

// Engine is a thread-safe vector search engine over text documents
type Engine struct {
	mu       sync.Mutex
	embedder embedder.Embedder
	index    *vectorindex.Flat
	docs     *docstore.Store
	dim      int
	dir      string
	dirty    bool // Changed since the last Save or Load
	logger   *zap.Logger
}

// New creates an empty engine. Call Load to restore persisted artifacts.
func New(emb embedder.Embedder, opts Options) (*Engine, error) {
	if emb == nil {
		return nil, fmt.Errorf("%w: embedder is required", ErrInvalidArgument)
	}
	dim := opts.Dimension
	if dim == 0 {
		dim = emb.Dimension()
	}
	index, err := vectorindex.NewFlat(dim)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidArgument, err)
	}

	return &Engine{
		embedder: emb,
		index:    index,
		docs:     docstore.New(),
		dim:      dim,
		dir:      opts.Dir,
		logger:   logging.OrNop(opts.Logger),
	}, nil
}

// Dir returns the artifact directory, or "" for an in-memory engine
func (e *Engine) Dir() string {
	return e.dir
}

// Dimension returns the configured vector dimension
func (e *Engine) Dimension() int {
	return e.dim
}

// Upload embeds text as a document and appends it to the index.
// It returns the new internal id; on error the index is unchanged.
func (e *Engine) Upload(ctx context.Context, docID, text string) (id int64, err error) {
	ctx, span := observability.StartSpan(ctx, "searchengine.Upload",
		attribute.String("doc.id", docID),
		attribute.Int("doc.length", len(text)))
	defer func() { observability.EndSpan(span, err) }()

	if docID == "" {
		return 0, fmt.Errorf("%w: document id is required", ErrInvalidArgument)
	}
	if strings.TrimSpace(text) == "" {
		return 0, fmt.Errorf("%w: document text is empty", ErrInvalidArgument)
	}

	vec, err := e.embed(ctx, text, embedder.TaskDocument)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	id, err = e.index.Add(vec)
	if err != nil {
		if errors.Is(err, vectorindex.ErrWrongDimension) {
			return 0, fmt.Errorf("%w: %v", ErrDimensionMismatch, err)
		}
		return 0, fmt.Errorf("%w: %v", ErrEmbeddingFailure, err)
	}
	// Slots are never reused, so the id is always free
	if err := e.docs.Put(docstore.IndexEntry{InternalID: id, ExternalID: docID, Content: text}); err != nil {
		return 0, fmt.Errorf("store document %d: %w", id, err)
	}
	e.dirty = true

	e.logger.Debug("document uploaded", zap.String("doc_id", docID), zap.Int64("internal_id", id))
	return id, nil
}

// Search returns up to topK documents nearest to query, ordered by ascending
// squared L2 distance. Deleted documents are skipped, so fewer than topK
// results may come back. An empty index returns an empty slice.
func (e *Engine) Search(ctx context.Context, query string, topK int) (results []types.SearchResult, err error) {
	ctx, span := observability.StartSpan(ctx, "searchengine.Search",
		attribute.Int("search.top_k", topK))
	defer func() {
		span.SetAttributes(attribute.Int("search.results", len(results)))
		observability.EndSpan(span, err)
	}()

	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidArgument)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: top_k must be positive, got %d", ErrInvalidArgument, topK)
	}

	if e.Size() == 0 {
		e.logger.Warn("search on empty index", zap.String("dir", e.dir))
		return []types.SearchResult{}, nil
	}

	vec, err := e.embed(ctx, query, embedder.TaskQuery)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	neighbors, err := e.index.Search(vec, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSearchFailure, err)
	}

	results = make([]types.SearchResult, 0, len(neighbors))
	for _, n := range neighbors {
		entry, ok := e.docs.Get(n.ID)
		if !ok {
			e.logger.Debug("skipping tombstoned slot", zap.Int64("internal_id", n.ID))
			continue
		}
		results = append(results, types.SearchResult{
			Score:   n.Distance,
			DocID:   entry.ExternalID,
			Content: entry.Content,
		})
	}
	return results, nil
}

// embed calls the embedder and checks the vector length
func (e *Engine) embed(ctx context.Context, text string, mode embedder.TaskMode) ([]float32, error) {
	emb, err := e.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: text, Mode: mode})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", ErrEmbeddingFailure, err)
	}
	if len(emb.Vector) != e.dim {
		return nil, fmt.Errorf("%w: provider returned %d values, index expects %d",
			ErrDimensionMismatch, len(emb.Vector), e.dim)
	}
	return emb.Vector, nil
}

// GetDocumentByID returns the first live document with the given external id
func (e *Engine) GetDocumentByID(docID string) (docstore.IndexEntry, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.docs.FindByExternalID(docID)
}

// DeleteDocument removes the first document with the given external id.
// Its vector slot stays in the index as a tombstone.
func (e *Engine) DeleteDocument(docID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.docs.DeleteByExternalID(docID) {
		return false
	}
	e.dirty = true
	return true
}

// Dirty reports whether the engine has changes not yet saved
func (e *Engine) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// Size returns the number of vector slots, including tombstones
func (e *Engine) Size() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.index.Size()
}

// Stats returns a point-in-time snapshot
func (e *Engine) Stats() types.Stats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return types.Stats{
		TotalDocuments: e.index.Size(),
		Dimension:      e.dim,
		DocStoreSize:   e.docs.Len(),
	}
}

// Save writes vectors.bin and doc_store.db into the engine directory
func (e *Engine) Save(ctx context.Context) error {
	if e.dir == "" {
		return ErrNoStorage
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return fmt.Errorf("create index directory: %w", err)
	}
	if err := e.index.Save(filepath.Join(e.dir, VectorsFile)); err != nil {
		return fmt.Errorf("save vectors: %w", err)
	}

	db, err := storage.NewSQLiteStorage(filepath.Join(e.dir, DocStoreFile))
	if err != nil {
		return fmt.Errorf("open document store: %w", err)
	}
	defer func() { _ = db.Close() }()

	meta := map[string]string{
		storage.MetaDimension:   strconv.Itoa(e.dim),
		storage.MetaProvider:    e.embedder.Provider(),
		storage.MetaModel:       e.embedder.Model(),
		storage.MetaVectorCount: strconv.Itoa(e.index.Size()),
	}
	if err := db.ReplaceDocuments(ctx, e.docs.Entries(), meta); err != nil {
		return fmt.Errorf("save documents: %w", err)
	}
	e.dirty = false

	e.logger.Info("index saved",
		zap.String("dir", e.dir),
		zap.Int("vectors", e.index.Size()),
		zap.Int("documents", e.docs.Len()))
	return nil
}

// Load replaces the engine contents with the artifacts in its directory.
// It returns false, without error, when either artifact is missing.
func (e *Engine) Load(ctx context.Context) (bool, error) {
	if e.dir == "" {
		return false, ErrNoStorage
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	vectorsPath := filepath.Join(e.dir, VectorsFile)
	docsPath := filepath.Join(e.dir, DocStoreFile)
	for _, p := range []string{vectorsPath, docsPath} {
		if _, err := os.Stat(p); errors.Is(err, os.ErrNotExist) {
			return false, nil
		} else if err != nil {
			return false, fmt.Errorf("stat %s: %w", p, err)
		}
	}

	index, err := vectorindex.Load(vectorsPath)
	if err != nil {
		return false, fmt.Errorf("load vectors: %w", err)
	}
	if index.Dimension() != e.dim {
		return false, fmt.Errorf("%w: stored index has dimension %d, engine expects %d",
			ErrDimensionMismatch, index.Dimension(), e.dim)
	}

	db, err := storage.NewSQLiteStorage(docsPath)
	if err != nil {
		return false, fmt.Errorf("open document store: %w", err)
	}
	defer func() { _ = db.Close() }()

	entries, err := db.LoadDocuments(ctx)
	if err != nil {
		return false, fmt.Errorf("load documents: %w", err)
	}
	for _, entry := range entries {
		if entry.InternalID >= int64(index.Size()) {
			return false, fmt.Errorf("document %d points past the %d stored vectors", entry.InternalID, index.Size())
		}
	}
	docs := docstore.New()
	if err := docs.Replace(entries); err != nil {
		return false, fmt.Errorf("load documents: %w", err)
	}

	e.index = index
	e.docs = docs
	e.dirty = false

	e.logger.Info("index loaded",
		zap.String("dir", e.dir),
		zap.Int("vectors", index.Size()),
		zap.Int("documents", docs.Len()))
	return true, nil
}
