package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/reposcope-mcp/internal/docstore"
)

func setupTestDB(t *testing.T) *SQLiteStorage {
	t.Helper()
	storage, err := NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NotNil(t, storage)
	t.Cleanup(func() { _ = storage.Close() })
	return storage
}

func TestNewSQLiteStorage(t *testing.T) {
	storage := setupTestDB(t)
	assert.NotNil(t, storage.db)

	count, err := storage.CountDocuments(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestReplaceAndLoadDocuments(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	entries := []docstore.IndexEntry{
		{InternalID: 2, ExternalID: "b", Content: `{"file":"b.go"}`},
		{InternalID: 0, ExternalID: "a", Content: "alpha"},
	}
	meta := map[string]string{MetaDimension: "8", MetaVectorCount: "3"}
	require.NoError(t, storage.ReplaceDocuments(ctx, entries, meta))

	got, err := storage.LoadDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, int64(0), got[0].InternalID)
	assert.Equal(t, "alpha", got[0].Content)
	assert.Equal(t, int64(2), got[1].InternalID)

	dim, err := storage.GetMeta(ctx, MetaDimension)
	require.NoError(t, err)
	assert.Equal(t, "8", dim)

	_, err = storage.GetMeta(ctx, MetaModel)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReplaceDocuments_OverwritesSnapshot(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.ReplaceDocuments(ctx, []docstore.IndexEntry{
		{InternalID: 0, ExternalID: "a"}, {InternalID: 1, ExternalID: "b"},
	}, map[string]string{MetaProvider: "jina"}))

	require.NoError(t, storage.ReplaceDocuments(ctx, []docstore.IndexEntry{
		{InternalID: 1, ExternalID: "b"},
	}, map[string]string{MetaDimension: "4"}))

	count, err := storage.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	_, err = storage.GetMeta(ctx, MetaProvider)
	assert.ErrorIs(t, err, ErrNotFound, "meta is replaced with the snapshot")
}

func TestReplaceDocuments_RollsBackOnError(t *testing.T) {
	storage := setupTestDB(t)
	ctx := context.Background()

	require.NoError(t, storage.ReplaceDocuments(ctx, []docstore.IndexEntry{{InternalID: 0, ExternalID: "keep"}}, nil))

	err := storage.ReplaceDocuments(ctx, []docstore.IndexEntry{
		{InternalID: 5, ExternalID: "x"},
		{InternalID: 5, ExternalID: "dup"},
	}, nil)
	require.Error(t, err)

	got, err := storage.LoadDocuments(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "keep", got[0].ExternalID)
}

func TestFileDatabasePersists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc_store.db")
	ctx := context.Background()

	first, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	require.NoError(t, first.ReplaceDocuments(ctx, []docstore.IndexEntry{{InternalID: 0, ExternalID: "a", Content: "c"}}, nil))
	require.NoError(t, first.Close())

	second, err := NewSQLiteStorage(path)
	require.NoError(t, err)
	defer second.Close()

	got, err := second.LoadDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, []docstore.IndexEntry{{InternalID: 0, ExternalID: "a", Content: "c"}}, got)
}
