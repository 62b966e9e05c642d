package indexer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveWithin(t *testing.T) {
	root := t.TempDir()
	inside := createTestFile(t, root, "pkg/a.go", "package pkg")
	secret := createTestFile(t, t.TempDir(), "secret.txt", "TOP SECRET")

	require.NoError(t, os.Symlink(secret, filepath.Join(root, "link.txt")))
	require.NoError(t, os.Symlink(filepath.Dir(secret), filepath.Join(root, "outdir")))
	require.NoError(t, os.Symlink(inside, filepath.Join(root, "alias.go")))

	tests := []struct {
		name    string
		path    string
		want    string
		outside bool
	}{
		{name: "relative file", path: "pkg/a.go", want: inside},
		{name: "absolute file", path: inside, want: inside},
		{name: "missing file", path: "pkg/new.go", want: filepath.Join(root, "pkg", "new.go")},
		{name: "missing parent", path: "nope/new.go", want: filepath.Join(root, "nope", "new.go")},
		{name: "symlink staying inside", path: "alias.go", want: filepath.Join(root, "alias.go")},
		{name: "dot dot", path: "../escape.txt", outside: true},
		{name: "absolute outside", path: secret, outside: true},
		{name: "symlinked file", path: "link.txt", outside: true},
		{name: "through symlinked dir", path: "outdir/secret.txt", outside: true},
		{name: "missing file in symlinked dir", path: "outdir/new.txt", outside: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveWithin(root, tt.path)
			if tt.outside {
				assert.ErrorIs(t, err, ErrOutsideRoot)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveWithin_SymlinkedRoot(t *testing.T) {
	real := t.TempDir()
	createTestFile(t, real, "a.go", "package a")
	root := filepath.Join(t.TempDir(), "repo")
	require.NoError(t, os.Symlink(real, root))

	got, err := ResolveWithin(root, "a.go")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a.go"), got)
}
