package indexer

import (
	"bufio"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dshills/reposcope-mcp/internal/logging"
	"github.com/dshills/reposcope-mcp/pkg/types"
)

// ErrNotDirectory is returned when the scan root is not a directory
var ErrNotDirectory = errors.New("repository root is not a directory")

// DefaultIgnore lists directory and file names never indexed
var DefaultIgnore = []string{
	".git", ".hg", ".svn", ".idea", ".vscode", ".DS_Store",
	"node_modules", "vendor", "__pycache__", ".venv", "venv", ".tox",
	".mypy_cache", ".pytest_cache", "dist", "build", "target", "coverage",
	".next", ".cache",
}

// BinaryExtensions lists file extensions treated as non-text
var BinaryExtensions = []string{
	".png", ".jpg", ".jpeg", ".gif", ".bmp", ".ico", ".webp", ".svg",
	".pdf", ".zip", ".tar", ".gz", ".tgz", ".bz2", ".xz", ".7z", ".rar",
	".exe", ".dll", ".so", ".dylib", ".a", ".o", ".class", ".jar", ".pyc",
	".woff", ".woff2", ".ttf", ".eot", ".mp3", ".mp4", ".mov", ".avi", ".wav",
	".db", ".sqlite", ".bin", ".lock",
}

var languages = map[string]string{
	".py":   "python",
	".ts":   "typescript",
	".tsx":  "typescript",
	".js":   "javascript",
	".jsx":  "javascript",
	".java": "java",
	".go":   "go",
	".rb":   "ruby",
	".php":  "php",
	".cs":   "csharp",
	".rs":   "rust",
	".html": "html",
	".css":  "css",
	".json": "json",
	".yaml": "yaml",
	".yml":  "yaml",
	".md":   "markdown",
}

// DetectLanguage maps a file extension to a language name, or "unknown"
func DetectLanguage(ext string) string {
	if lang, ok := languages[strings.ToLower(ext)]; ok {
		return lang
	}
	return "unknown"
}

// Indexer scans a repository checkout into FileInfo records
type Indexer struct {
	logger  *zap.Logger
	workers int
}

// Config contains configuration for a scan
type Config struct {
	Workers       int  // Concurrent hashing workers (default: runtime.NumCPU())
	IncludeVendor bool // Index vendor/ and node_modules/ (default: false)
}

// Statistics contains statistics about the scan
type Statistics struct {
	FilesIndexed  int
	FilesSkipped  int
	FilesFailed   int
	Duration      time.Duration
	ErrorMessages []string
}

// New creates a new Indexer instance
func New(logger *zap.Logger) *Indexer {
	return &Indexer{
		logger:  logging.OrNop(logger),
		workers: runtime.NumCPU(),
	}
}

// Build walks root and returns one FileInfo per indexable file, in walk order.
// Files that cannot be read are counted as failed and left out.
func (idx *Indexer) Build(ctx context.Context, root string, config *Config) ([]types.FileInfo, *Statistics, error) {
	if config == nil {
		config = &Config{}
	}
	workers := config.Workers
	if workers <= 0 {
		workers = idx.workers
	}

	startTime := time.Now()
	stats := &Statistics{ErrorMessages: make([]string, 0)}

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, nil, fmt.Errorf("resolve root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, nil, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s", ErrNotDirectory, absRoot)
	}

	patterns := loadGitignore(absRoot)
	paths, skipped, err := discoverFiles(absRoot, patterns, config)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to discover files: %w", err)
	}
	stats.FilesSkipped = skipped

	results := make([]*types.FileInfo, len(paths))
	var (
		failed int32
		mu     sync.Mutex
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, p := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fi, err := describeFile(absRoot, p)
			if err != nil {
				atomic.AddInt32(&failed, 1)
				mu.Lock()
				stats.ErrorMessages = append(stats.ErrorMessages, fmt.Sprintf("%s: %v", p, err))
				mu.Unlock()
				idx.logger.Debug("skipping unreadable file", zap.String("path", p), zap.Error(err))
				return nil
			}
			results[i] = fi
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	files := make([]types.FileInfo, 0, len(results))
	for _, fi := range results {
		if fi != nil {
			files = append(files, *fi)
		}
	}

	stats.FilesIndexed = len(files)
	stats.FilesFailed = int(failed)
	stats.Duration = time.Since(startTime)

	idx.logger.Info("repository scanned",
		zap.String("root", absRoot),
		zap.Int("files", stats.FilesIndexed),
		zap.Int("skipped", stats.FilesSkipped),
		zap.Int("failed", stats.FilesFailed),
		zap.Duration("duration", stats.Duration))
	return files, stats, nil
}

// discoverFiles returns candidate file paths and the number of files filtered out
func discoverFiles(root string, patterns []string, config *Config) ([]string, int, error) {
	var (
		files   []string
		skipped int
	)

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			// Unreadable subtree
			skipped++
			return nil
		}

		name := d.Name()
		if d.IsDir() {
			if path == root {
				return nil
			}
			if isDefaultIgnored(name, config) || matchesIgnore(name, patterns) {
				return filepath.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() ||
			isDefaultIgnored(name, config) ||
			matchesIgnore(name, patterns) ||
			isBinaryExt(filepath.Ext(name)) {
			skipped++
			return nil
		}

		files = append(files, path)
		return nil
	})

	return files, skipped, err
}

func isDefaultIgnored(name string, config *Config) bool {
	if config.IncludeVendor && (name == "vendor" || name == "node_modules") {
		return false
	}
	for _, ignored := range DefaultIgnore {
		if name == ignored {
			return true
		}
	}
	return false
}

func isBinaryExt(ext string) bool {
	ext = strings.ToLower(ext)
	for _, b := range BinaryExtensions {
		if ext == b {
			return true
		}
	}
	return false
}

// loadGitignore reads the root .gitignore, keeping non-empty, non-comment lines
func loadGitignore(root string) []string {
	f, err := os.Open(filepath.Join(root, ".gitignore"))
	if err != nil {
		return nil
	}
	defer func() { _ = f.Close() }()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "!") {
			continue
		}
		line = strings.Trim(line, "/")
		if line != "" {
			patterns = append(patterns, line)
		}
	}
	return patterns
}

// matchesIgnore supports exact names and leading-star suffix patterns such as *.log
func matchesIgnore(name string, patterns []string) bool {
	for _, p := range patterns {
		if name == p {
			return true
		}
		if strings.HasPrefix(p, "*") && strings.HasSuffix(name, strings.TrimLeft(p, "*")) {
			return true
		}
	}
	return false
}

// describeFile hashes the file and counts its lines
func describeFile(root, path string) (*types.FileInfo, error) {
	hash, size, lines, err := computeFileHash(path)
	if err != nil {
		return nil, err
	}
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return nil, err
	}
	ext := filepath.Ext(path)
	return &types.FileInfo{
		Path:         path,
		RelativePath: filepath.ToSlash(rel),
		Size:         size,
		LinesOfCode:  lines,
		Extension:    ext,
		Language:     DetectLanguage(ext),
		Hash:         hash,
	}, nil
}

// computeFileHash returns the sha256 hex digest, size and line count in one read
func computeFileHash(filePath string) (string, int64, int, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", 0, 0, err
	}
	defer func() { _ = file.Close() }()

	hash := sha256.New()
	counter := &lineCounter{}
	size, err := io.Copy(io.MultiWriter(hash, counter), file)
	if err != nil {
		return "", 0, 0, err
	}

	return hex.EncodeToString(hash.Sum(nil)), size, counter.lines(), nil
}

// lineCounter counts lines the way a text editor does: a trailing newline
// does not start a new line
type lineCounter struct {
	newlines int
	last     byte
	seen     bool
}

func (c *lineCounter) Write(p []byte) (int, error) {
	if len(p) > 0 {
		c.newlines += bytes.Count(p, []byte{'\n'})
		c.last = p[len(p)-1]
		c.seen = true
	}
	return len(p), nil
}

func (c *lineCounter) lines() int {
	if !c.seen {
		return 0
	}
	if c.last == '\n' {
		return c.newlines
	}
	return c.newlines + 1
}
