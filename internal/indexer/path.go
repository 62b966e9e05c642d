package indexer

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideRoot is returned when a path, after following symlinks, leaves its root
var ErrOutsideRoot = errors.New("path is outside the repository root")

// ResolveWithin joins a relative path onto root, or takes an absolute one as
// is, and checks it stays inside root both lexically and after symlinks are
// followed. The returned path is the cleaned lexical one. A missing final
// element is allowed so callers can report not-found themselves.
func ResolveWithin(root, path string) (string, error) {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", fmt.Errorf("invalid root %q: %w", root, err)
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(absRoot, path)
	}
	path = filepath.Clean(path)
	if !contains(absRoot, path) {
		return "", fmt.Errorf("%w: %s", ErrOutsideRoot, path)
	}

	realRoot, err := filepath.EvalSymlinks(absRoot)
	if err != nil {
		return "", fmt.Errorf("resolve root %q: %w", root, err)
	}
	real, err := evalExisting(path)
	if err != nil {
		return "", err
	}
	if !contains(realRoot, real) {
		return "", fmt.Errorf("%w: %s resolves to %s", ErrOutsideRoot, path, real)
	}
	return path, nil
}

// evalExisting follows symlinks in path. When the last element does not
// exist its parent is resolved instead; a missing parent leaves nothing to follow.
func evalExisting(path string) (string, error) {
	real, err := filepath.EvalSymlinks(path)
	if err == nil {
		return real, nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("resolve %q: %w", path, err)
	}

	parent, err := filepath.EvalSymlinks(filepath.Dir(path))
	if errors.Is(err, os.ErrNotExist) {
		return path, nil
	}
	if err != nil {
		return "", fmt.Errorf("resolve %q: %w", filepath.Dir(path), err)
	}
	return filepath.Join(parent, filepath.Base(path)), nil
}

func contains(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
