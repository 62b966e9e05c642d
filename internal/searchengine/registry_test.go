package searchengine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/reposcope-mcp/internal/embedder"
)

func TestRegistry_PerFolderIsolation(t *testing.T) {
	root := t.TempDir()
	reg := NewRegistry(root, embedder.NewLocalProvider(testDim), nil)
	ctx := context.Background()

	a, err := reg.Engine(ctx, "repo-a")
	require.NoError(t, err)
	b, err := reg.Engine(ctx, "repo-b")
	require.NoError(t, err)

	_, err = a.Upload(ctx, "only-a", "content in a")
	require.NoError(t, err)

	assert.Equal(t, 1, a.Stats().TotalDocuments)
	assert.Equal(t, 0, b.Stats().TotalDocuments)

	again, err := reg.Engine(ctx, "repo-a")
	require.NoError(t, err)
	assert.Same(t, a, again)
}

func TestRegistry_ReloadsFromDisk(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()

	first := NewRegistry(root, embedder.NewLocalProvider(testDim), nil)
	e, err := first.Engine(ctx, "repo")
	require.NoError(t, err)
	_, err = e.Upload(ctx, "doc", "persisted content")
	require.NoError(t, err)
	require.NoError(t, first.SaveAll(ctx))

	folders, err := first.Folders()
	require.NoError(t, err)
	assert.Equal(t, []string{"repo"}, folders)

	second := NewRegistry(root, embedder.NewLocalProvider(testDim), nil)
	reloaded, err := second.Engine(ctx, "repo")
	require.NoError(t, err)
	assert.Equal(t, 1, reloaded.Stats().TotalDocuments)
}

func TestRegistry_FoldersMissingRoot(t *testing.T) {
	reg := NewRegistry(t.TempDir()+"/absent", embedder.NewLocalProvider(testDim), nil)
	folders, err := reg.Folders()
	require.NoError(t, err)
	assert.Empty(t, folders)
}

func TestValidateFolderID(t *testing.T) {
	for _, ok := range []string{"abc", "repo-1", "my_repo.v2", "A1"} {
		assert.NoError(t, ValidateFolderID(ok), ok)
	}
	for _, bad := range []string{"", ".", "..", "../etc", "a/b", `a\b`, "-lead", " space"} {
		assert.ErrorIs(t, ValidateFolderID(bad), ErrInvalidArgument, bad)
	}
}

func TestRegistry_SaveAllSkipsCleanEngines(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	reg := NewRegistry(root, embedder.NewLocalProvider(testDim), nil)

	typo, err := reg.Engine(ctx, "typo")
	require.NoError(t, err)
	results, err := typo.Search(ctx, "anything", 5)
	require.NoError(t, err)
	assert.Empty(t, results)
	assert.False(t, typo.Dirty())

	require.NoError(t, reg.SaveAll(ctx))
	folders, err := reg.Folders()
	require.NoError(t, err)
	assert.Empty(t, folders)
	assert.NoDirExists(t, filepath.Join(root, "typo"))
}

func TestRegistry_DirtyTracking(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	reg := NewRegistry(root, embedder.NewLocalProvider(testDim), nil)

	e, err := reg.Engine(ctx, "repo")
	require.NoError(t, err)
	_, err = e.Upload(ctx, "doc", "some content")
	require.NoError(t, err)
	assert.True(t, e.Dirty())

	require.NoError(t, reg.SaveAll(ctx))
	assert.False(t, e.Dirty())
	info, err := os.Stat(filepath.Join(root, "repo", VectorsFile))
	require.NoError(t, err)

	// A clean engine is not rewritten
	require.NoError(t, os.Chtimes(filepath.Join(root, "repo", VectorsFile), info.ModTime().Add(-time.Hour), info.ModTime().Add(-time.Hour)))
	require.NoError(t, reg.SaveAll(ctx))
	after, err := os.Stat(filepath.Join(root, "repo", VectorsFile))
	require.NoError(t, err)
	assert.Equal(t, info.ModTime().Add(-time.Hour).Unix(), after.ModTime().Unix())

	assert.False(t, e.DeleteDocument("missing"))
	assert.False(t, e.Dirty())
	assert.True(t, e.DeleteDocument("doc"))
	assert.True(t, e.Dirty())

	reloaded, err := e.Load(ctx)
	require.NoError(t, err)
	assert.True(t, reloaded)
	assert.False(t, e.Dirty())
}
