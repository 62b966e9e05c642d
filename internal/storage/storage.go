package storage

import (
	"context"

	"github.com/dshills/reposcope-mcp/internal/docstore"
)

// Meta keys written alongside a document snapshot
const (
	MetaDimension   = "dimension"
	MetaProvider    = "provider"
	MetaModel       = "model"
	MetaVectorCount = "vector_count"
)

// Storage persists the document store half of a search index
type Storage interface {
	// ReplaceDocuments atomically swaps the stored snapshot for entries and meta
	ReplaceDocuments(ctx context.Context, entries []docstore.IndexEntry, meta map[string]string) error

	// LoadDocuments returns every stored entry ordered by internal id
	LoadDocuments(ctx context.Context) ([]docstore.IndexEntry, error)

	// CountDocuments returns the number of stored entries
	CountDocuments(ctx context.Context) (int, error)

	// GetMeta returns a snapshot meta value, or ErrNotFound
	GetMeta(ctx context.Context, key string) (string, error)

	Close() error
}
