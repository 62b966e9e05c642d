package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/reposcope-mcp/internal/embedder"
	"github.com/dshills/reposcope-mcp/internal/searchengine"
	"github.com/dshills/reposcope-mcp/pkg/types"
)

func newTestIngestor(t *testing.T) (*Ingestor, *searchengine.Registry) {
	t.Helper()
	root := t.TempDir()
	reg := searchengine.NewRegistry(filepath.Join(root, "indices"), embedder.NewLocalProvider(8), nil)
	return New(filepath.Join(root, "llm_response"), reg, nil), reg
}

func summary(file string, others ...string) types.ChunkSummary {
	return types.ChunkSummary{
		File:      file,
		Files:     others,
		Purpose:   "handles " + file,
		Summary:   "summary of " + file,
		Functions: []string{"Run"},
	}
}

func TestIngest_WritesLedgerAndUploads(t *testing.T) {
	in, reg := newTestIngestor(t)
	ctx := context.Background()

	id, err := in.Ingest(ctx, "repo", "chunk-1234abcd", summary("api/user.go", "api/user_test.go"))
	require.NoError(t, err)
	require.NotEmpty(t, id)

	ledger, err := in.Ledger("repo")
	require.NoError(t, err)
	assert.Equal(t, "repo", ledger.FolderID)
	assert.Equal(t, SchemaVersion, ledger.SchemaVersion)
	require.Contains(t, ledger.Chunks, id)

	entry := ledger.Chunks[id]
	assert.Equal(t, int64(0), entry.InternalID)
	assert.Equal(t, "chunk-1234abcd", entry.SourceChunkID)
	assert.Equal(t, "api/user.go", entry.File)
	assert.False(t, entry.IngestedAt.IsZero())

	assert.Equal(t, []string{id}, ledger.FilesIndex["api/user.go"])
	assert.Equal(t, []string{id}, ledger.FilesIndex["api/user_test.go"])

	engine, err := reg.Engine(ctx, "repo")
	require.NoError(t, err)
	doc, ok := engine.GetDocumentByID(id)
	require.True(t, ok)
	assert.Equal(t, entry.InternalID, doc.InternalID)

	var uploaded types.ChunkSummary
	require.NoError(t, json.Unmarshal([]byte(doc.Content), &uploaded))
	assert.Equal(t, "summary of api/user.go", uploaded.Summary)
}

func TestIngest_LedgerFileLayout(t *testing.T) {
	in, _ := newTestIngestor(t)
	_, err := in.Ingest(context.Background(), "repo", "", summary("main.go"))
	require.NoError(t, err)

	assert.Equal(t, "response_repo.json", filepath.Base(in.LedgerPath("repo")))
	data, err := os.ReadFile(in.LedgerPath("repo"))
	require.NoError(t, err)

	var raw map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(data, &raw))
	for _, key := range []string{"folder_id", "schema_version", "chunks", "files_index"} {
		assert.Contains(t, raw, key)
	}
}

func TestIngest_ReverseIndexAccumulates(t *testing.T) {
	in, _ := newTestIngestor(t)
	ctx := context.Background()

	first, err := in.Ingest(ctx, "repo", "c1", summary("shared.go", "a.go"))
	require.NoError(t, err)
	second, err := in.Ingest(ctx, "repo", "c2", summary("b.go", "shared.go", "b.go"))
	require.NoError(t, err)

	ids, err := in.ChunksForFile("repo", "shared.go")
	require.NoError(t, err)
	assert.Equal(t, []string{first, second}, ids)

	ids, err = in.ChunksForFile("repo", "b.go")
	require.NoError(t, err)
	assert.Equal(t, []string{second}, ids, "duplicate mentions are indexed once")

	ids, err = in.ChunksForFile("repo", "unknown.go")
	require.NoError(t, err)
	assert.Empty(t, ids)

	ledger, err := in.Ledger("repo")
	require.NoError(t, err)
	assert.Equal(t, []string{"a.go", "b.go", "shared.go"}, ledger.Files())
	assert.Equal(t, int64(1), ledger.Chunks[second].InternalID)
}

func TestIngest_InvalidInput(t *testing.T) {
	in, _ := newTestIngestor(t)
	ctx := context.Background()

	_, err := in.Ingest(ctx, "../escape", "", summary("a.go"))
	assert.ErrorIs(t, err, searchengine.ErrInvalidArgument)

	_, err = in.Ingest(ctx, "repo", "", types.ChunkSummary{Summary: "no files"})
	assert.ErrorIs(t, err, ErrInvalidSummary)
	assert.ErrorIs(t, err, types.ErrSummaryNoFiles)

	_, err = in.Ledger("repo")
	assert.ErrorIs(t, err, ErrNoLedger, "rejected input never creates a ledger")
}

func TestIngest_FoldersAreIsolated(t *testing.T) {
	in, reg := newTestIngestor(t)
	ctx := context.Background()

	_, err := in.Ingest(ctx, "alpha", "", summary("a.go"))
	require.NoError(t, err)
	_, err = in.Ingest(ctx, "beta", "", summary("b.go"))
	require.NoError(t, err)

	folders, err := in.ListLedgers()
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "beta"}, folders)

	alpha, err := reg.Engine(ctx, "alpha")
	require.NoError(t, err)
	assert.Equal(t, 1, alpha.Stats().TotalDocuments)

	ids, err := in.ChunksForFile("alpha", "b.go")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestIngest_ConcurrentWritesSameFolder(t *testing.T) {
	in, reg := newTestIngestor(t)
	ctx := context.Background()

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := in.Ingest(ctx, "repo", fmt.Sprintf("c%d", i), summary(fmt.Sprintf("f%d.go", i), "common.go"))
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	ledger, err := in.Ledger("repo")
	require.NoError(t, err)
	assert.Len(t, ledger.Chunks, n)
	assert.Len(t, ledger.FilesIndex["common.go"], n)

	engine, err := reg.Engine(ctx, "repo")
	require.NoError(t, err)
	assert.Equal(t, n, engine.Stats().TotalDocuments)

	seen := make(map[int64]bool)
	for _, e := range ledger.Chunks {
		assert.False(t, seen[e.InternalID], "internal id %d recorded twice", e.InternalID)
		seen[e.InternalID] = true
	}
}

func TestIngest_CorruptLedgerTombstonesUpload(t *testing.T) {
	in, reg := newTestIngestor(t)
	ctx := context.Background()
	require.NoError(t, os.MkdirAll(filepath.Dir(in.LedgerPath("repo")), 0o755))
	require.NoError(t, os.WriteFile(in.LedgerPath("repo"), []byte("{broken"), 0o644))

	_, err := in.Ingest(ctx, "repo", "", summary("a.go"))
	require.Error(t, err)

	engine, err := reg.Engine(ctx, "repo")
	require.NoError(t, err)
	stats := engine.Stats()
	assert.Equal(t, 1, stats.TotalDocuments)
	assert.Equal(t, 0, stats.DocStoreSize)
}

func TestLedger_UnsupportedSchema(t *testing.T) {
	in, _ := newTestIngestor(t)
	require.NoError(t, os.MkdirAll(filepath.Dir(in.LedgerPath("repo")), 0o755))
	require.NoError(t, os.WriteFile(in.LedgerPath("repo"),
		[]byte(`{"folder_id":"repo","schema_version":99,"chunks":{},"files_index":{}}`), 0o644))

	_, err := in.Ledger("repo")
	assert.ErrorIs(t, err, ErrUnsupportedSchema)
}

func TestListLedgers_Empty(t *testing.T) {
	in, _ := newTestIngestor(t)
	folders, err := in.ListLedgers()
	require.NoError(t, err)
	assert.Empty(t, folders)
}
