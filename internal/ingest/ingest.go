// Package ingest records LLM chunk summaries in a per-folder JSON ledger and
// feeds them into the folder's search engine.
//
// A ledger lives at <dir>/response_<folder>.json:
//
//	{
//	  "folder_id": "...",
//	  "schema_version": 1,
//	  "chunks": {"<chunk id>": {<summary fields>, "internal_id": 3, ...}},
//	  "files_index": {"<file path>": ["<chunk id>", ...]}
//	}
//
// files_index answers which summarized chunks mention a file without scanning
// every chunk.
package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/moby/sys/atomicwriter"
	"go.uber.org/zap"

	"github.com/dshills/reposcope-mcp/internal/logging"
	"github.com/dshills/reposcope-mcp/internal/searchengine"
	"github.com/dshills/reposcope-mcp/pkg/types"
)

// SchemaVersion is written into every ledger
const SchemaVersion = 1

const (
	ledgerPrefix = "response_"
	ledgerSuffix = ".json"
)

var (
	// ErrInvalidSummary is returned for summaries without files or text
	ErrInvalidSummary = errors.New("invalid chunk summary")
	// ErrNoLedger is returned when a folder has no ledger yet
	ErrNoLedger = errors.New("ledger not found")
	// ErrUnsupportedSchema is returned for ledgers written by a newer version
	ErrUnsupportedSchema = errors.New("unsupported ledger schema version")
)

// Entry is one ingested summary
type Entry struct {
	types.ChunkSummary
	InternalID    int64     `json:"internal_id"`
	SourceChunkID string    `json:"source_chunk_id,omitempty"`
	IngestedAt    time.Time `json:"ingested_at"`
}

// Ledger is the on-disk record of a folder's summaries
type Ledger struct {
	FolderID      string              `json:"folder_id"`
	SchemaVersion int                 `json:"schema_version"`
	Chunks        map[string]Entry    `json:"chunks"`
	FilesIndex    map[string][]string `json:"files_index"`
}

func newLedger(folder string) *Ledger {
	return &Ledger{
		FolderID:      folder,
		SchemaVersion: SchemaVersion,
		Chunks:        make(map[string]Entry),
		FilesIndex:    make(map[string][]string),
	}
}

// Files returns the indexed file paths, sorted
func (l *Ledger) Files() []string {
	files := make([]string, 0, len(l.FilesIndex))
	for f := range l.FilesIndex {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// addToIndex appends chunkID under file unless already present
func (l *Ledger) addToIndex(file, chunkID string) {
	for _, id := range l.FilesIndex[file] {
		if id == chunkID {
			return
		}
	}
	l.FilesIndex[file] = append(l.FilesIndex[file], chunkID)
}

// Ingestor writes ledgers and uploads summaries to per-folder engines
type Ingestor struct {
	dir      string
	registry *searchengine.Registry
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates an Ingestor writing ledgers under dir
func New(dir string, registry *searchengine.Registry, logger *zap.Logger) *Ingestor {
	return &Ingestor{
		dir:      dir,
		registry: registry,
		logger:   logging.OrNop(logger),
		locks:    make(map[string]*sync.Mutex),
	}
}

// folderLock serializes ledger read-modify-write cycles per folder
func (in *Ingestor) folderLock(folder string) *sync.Mutex {
	in.mu.Lock()
	defer in.mu.Unlock()
	l, ok := in.locks[folder]
	if !ok {
		l = &sync.Mutex{}
		in.locks[folder] = l
	}
	return l
}

// LedgerPath returns the ledger file of folder
func (in *Ingestor) LedgerPath(folder string) string {
	return filepath.Join(in.dir, ledgerPrefix+folder+ledgerSuffix)
}

// Ingest stores summary under a fresh chunk id, uploads it to the folder's
// engine and records the returned internal id and the files it mentions.
// If the ledger cannot be written the uploaded document is deleted again.
func (in *Ingestor) Ingest(ctx context.Context, folder, sourceChunkID string, summary types.ChunkSummary) (string, error) {
	if err := searchengine.ValidateFolderID(folder); err != nil {
		return "", err
	}
	if err := summary.Validate(); err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidSummary, err)
	}

	engine, err := in.registry.Engine(ctx, folder)
	if err != nil {
		return "", err
	}

	text, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("encode summary: %w", err)
	}

	chunkID := uuid.NewString()
	internalID, err := engine.Upload(ctx, chunkID, string(text))
	if err != nil {
		return "", fmt.Errorf("upload summary: %w", err)
	}

	lock := in.folderLock(folder)
	lock.Lock()
	defer lock.Unlock()

	ledger, err := in.readLedger(folder)
	if errors.Is(err, ErrNoLedger) {
		ledger = newLedger(folder)
	} else if err != nil {
		engine.DeleteDocument(chunkID)
		return "", err
	}

	ledger.Chunks[chunkID] = Entry{
		ChunkSummary:  summary,
		InternalID:    internalID,
		SourceChunkID: sourceChunkID,
		IngestedAt:    time.Now().UTC(),
	}
	for _, file := range summary.MentionedFiles() {
		ledger.addToIndex(file, chunkID)
	}

	if err := in.writeLedger(ledger); err != nil {
		engine.DeleteDocument(chunkID)
		return "", err
	}

	in.logger.Debug("summary ingested",
		zap.String("folder", folder),
		zap.String("chunk_id", chunkID),
		zap.String("source_chunk_id", sourceChunkID),
		zap.Int64("internal_id", internalID))
	return chunkID, nil
}

// Ledger returns the folder's ledger, or ErrNoLedger
func (in *Ingestor) Ledger(folder string) (*Ledger, error) {
	if err := searchengine.ValidateFolderID(folder); err != nil {
		return nil, err
	}
	lock := in.folderLock(folder)
	lock.Lock()
	defer lock.Unlock()
	return in.readLedger(folder)
}

// ChunksForFile returns the ids of chunks whose summary mentions path
func (in *Ingestor) ChunksForFile(folder, path string) ([]string, error) {
	ledger, err := in.Ledger(folder)
	if err != nil {
		return nil, err
	}
	ids := ledger.FilesIndex[path]
	out := make([]string, len(ids))
	copy(out, ids)
	return out, nil
}

// ListLedgers returns the folder ids that have a ledger, sorted
func (in *Ingestor) ListLedgers() ([]string, error) {
	entries, err := os.ReadDir(in.dir)
	if errors.Is(err, os.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger directory: %w", err)
	}

	folders := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, ledgerPrefix) || !strings.HasSuffix(name, ledgerSuffix) {
			continue
		}
		folder := strings.TrimSuffix(strings.TrimPrefix(name, ledgerPrefix), ledgerSuffix)
		if searchengine.ValidateFolderID(folder) == nil {
			folders = append(folders, folder)
		}
	}
	sort.Strings(folders)
	return folders, nil
}

func (in *Ingestor) readLedger(folder string) (*Ledger, error) {
	data, err := os.ReadFile(in.LedgerPath(folder))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNoLedger, folder)
	}
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}

	ledger := newLedger(folder)
	if err := json.Unmarshal(data, ledger); err != nil {
		return nil, fmt.Errorf("decode ledger %s: %w", folder, err)
	}
	if ledger.SchemaVersion > SchemaVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedSchema, ledger.SchemaVersion)
	}
	if ledger.Chunks == nil {
		ledger.Chunks = make(map[string]Entry)
	}
	if ledger.FilesIndex == nil {
		ledger.FilesIndex = make(map[string][]string)
	}
	return ledger, nil
}

func (in *Ingestor) writeLedger(ledger *Ledger) error {
	if err := os.MkdirAll(in.dir, 0o755); err != nil {
		return fmt.Errorf("create ledger directory: %w", err)
	}
	data, err := json.MarshalIndent(ledger, "", "  ")
	if err != nil {
		return fmt.Errorf("encode ledger: %w", err)
	}
	if err := atomicwriter.WriteFile(in.LedgerPath(ledger.FolderID), data, 0o644); err != nil {
		return fmt.Errorf("write ledger: %w", err)
	}
	return nil
}
