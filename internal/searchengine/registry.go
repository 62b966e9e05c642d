package searchengine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/dshills/reposcope-mcp/internal/embedder"
	"github.com/dshills/reposcope-mcp/internal/logging"
)

// validFolderID keeps folder ids usable as single path components
var validFolderID = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// ValidateFolderID rejects ids that are empty or could escape the indices root
func ValidateFolderID(folderID string) error {
	if !validFolderID.MatchString(folderID) {
		return fmt.Errorf("%w: invalid folder id %q", ErrInvalidArgument, folderID)
	}
	return nil
}

// Registry owns one Engine per repository folder, each persisted under root/<folder>
type Registry struct {
	mu       sync.Mutex
	root     string
	embedder embedder.Embedder
	logger   *zap.Logger
	engines  map[string]*Engine
}

// NewRegistry creates a registry storing indices under root
func NewRegistry(root string, emb embedder.Embedder, logger *zap.Logger) *Registry {
	return &Registry{
		root:     root,
		embedder: emb,
		logger:   logging.OrNop(logger),
		engines:  make(map[string]*Engine),
	}
}

// Engine returns the engine for folderID, creating it and loading any
// persisted artifacts on first use
func (r *Registry) Engine(ctx context.Context, folderID string) (*Engine, error) {
	if err := ValidateFolderID(folderID); err != nil {
		return nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.engines[folderID]; ok {
		return e, nil
	}

	e, err := New(r.embedder, Options{
		Dir:    filepath.Join(r.root, folderID),
		Logger: r.logger.With(zap.String("folder", folderID)),
	})
	if err != nil {
		return nil, err
	}
	loaded, err := e.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load index for %s: %w", folderID, err)
	}
	if !loaded {
		r.logger.Debug("starting fresh index", zap.String("folder", folderID))
	}

	r.engines[folderID] = e
	return e, nil
}

// Folders lists folder ids that have a persisted vectors file on disk
func (r *Registry) Folders() ([]string, error) {
	entries, err := os.ReadDir(r.root)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read indices directory: %w", err)
	}

	folders := make([]string, 0, len(entries))
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		if _, err := os.Stat(filepath.Join(r.root, entry.Name(), VectorsFile)); err == nil {
			folders = append(folders, entry.Name())
		}
	}
	sort.Strings(folders)
	return folders, nil
}

// SaveAll saves every engine opened through the registry that has unsaved
// changes. Engines that were only read are left untouched on disk.
func (r *Registry) SaveAll(ctx context.Context) error {
	r.mu.Lock()
	engines := make([]*Engine, 0, len(r.engines))
	for _, e := range r.engines {
		if e.Dirty() {
			engines = append(engines, e)
		}
	}
	r.mu.Unlock()

	var errs []error
	for _, e := range engines {
		if err := e.Save(ctx); err != nil {
			errs = append(errs, fmt.Errorf("save %s: %w", e.Dir(), err))
		}
	}
	return errors.Join(errs...)
}
