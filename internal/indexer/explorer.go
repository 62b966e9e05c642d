package indexer

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"
)

// MaxFileSize bounds ReadFile
const MaxFileSize = 100_000

// BinaryPlaceholder replaces content that is not valid UTF-8
const BinaryPlaceholder = "[Binary or non-UTF-8 content cannot be displayed]"

var (
	// ErrFileTooLarge is returned by ReadFile for files over MaxFileSize
	ErrFileTooLarge = errors.New("file too large")
	// ErrNotFile is returned by ReadFile for directories and special files
	ErrNotFile = errors.New("not a regular file")
)

// FileContent is one file read from a repository checkout
type FileContent struct {
	Path    string `json:"path"`
	Size    int64  `json:"size"`
	Binary  bool   `json:"binary"`
	Content string `json:"content"`
}

// ReadFile returns a file under root. The path is confined to root after
// symlinks are followed and the file must be at most MaxFileSize bytes.
func ReadFile(root, rel string) (*FileContent, error) {
	rel = strings.TrimLeft(filepath.FromSlash(strings.TrimSpace(rel)), string(filepath.Separator))
	if rel == "" {
		return nil, fmt.Errorf("%w: empty path", ErrNotFile)
	}
	path, err := ResolveWithin(root, rel)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s", ErrNotFile, rel)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("%w: %s is %d bytes, maximum %d", ErrFileTooLarge, rel, info.Size(), MaxFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	fc := &FileContent{Path: filepath.ToSlash(rel), Size: info.Size(), Content: string(data)}
	if !utf8.Valid(data) {
		fc.Binary = true
		fc.Content = BinaryPlaceholder
	}
	return fc, nil
}

// TreeNode is a file or directory in a repository tree
type TreeNode struct {
	Name     string      `json:"name"`
	Path     string      `json:"path"`
	Type     string      `json:"type"` // "file" or "directory"
	Children []*TreeNode `json:"children,omitempty"`
}

// Tree lists root recursively, directories first then files, each by
// case-insensitive name. Hidden entries, default-ignored names and binary
// extensions are left out. Symlinks are listed but never followed.
func Tree(root string) ([]*TreeNode, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}
	return buildTree(root, root)
}

func buildTree(dir, root string) ([]*TreeNode, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].IsDir() != entries[j].IsDir() {
			return entries[i].IsDir()
		}
		return strings.ToLower(entries[i].Name()) < strings.ToLower(entries[j].Name())
	})

	nodes := make([]*TreeNode, 0, len(entries))
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, ".") || isDefaultIgnored(name, &Config{}) {
			continue
		}
		full := filepath.Join(dir, name)
		rel, err := filepath.Rel(root, full)
		if err != nil {
			return nil, err
		}
		node := &TreeNode{Name: name, Path: filepath.ToSlash(rel), Type: "file"}

		if entry.IsDir() {
			children, err := buildTree(full, root)
			if errors.Is(err, fs.ErrPermission) {
				children = nil
			} else if err != nil {
				return nil, err
			}
			node.Type = "directory"
			node.Children = children
		} else if isBinaryExt(filepath.Ext(name)) {
			continue
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}
