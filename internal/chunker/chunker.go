package chunker

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dshills/reposcope-mcp/internal/logging"
	"github.com/dshills/reposcope-mcp/pkg/types"
)

const (
	// MaxTokensPerChunk is the default token budget of one chunk
	MaxTokensPerChunk = 8000

	// MaxFilesPerChunk is the default file count limit of one chunk
	MaxFilesPerChunk = 10

	// CharsPerToken is the heuristic for estimating tokens (chars/4)
	CharsPerToken = 4

	chunkIDPrefix = "chunk-"
)

// ErrInvalidLimits is returned for non-positive chunk limits
var ErrInvalidLimits = errors.New("invalid chunk limits")

// Limits bounds the size of a chunk
type Limits struct {
	MaxTokens int
	MaxFiles  int
}

// DefaultLimits returns 8000 tokens and 10 files
func DefaultLimits() Limits {
	return Limits{MaxTokens: MaxTokensPerChunk, MaxFiles: MaxFilesPerChunk}
}

// Validate checks that both limits are positive
func (l Limits) Validate() error {
	if l.MaxTokens <= 0 || l.MaxFiles <= 0 {
		return fmt.Errorf("%w: max_tokens=%d max_files=%d", ErrInvalidLimits, l.MaxTokens, l.MaxFiles)
	}
	return nil
}

// Chunker packs repository files into bounded chunks
type Chunker struct {
	limits Limits
	logger *zap.Logger
}

// New creates a new Chunker instance
func New(limits Limits, logger *zap.Logger) (*Chunker, error) {
	if err := limits.Validate(); err != nil {
		return nil, err
	}
	return &Chunker{limits: limits, logger: logging.OrNop(logger)}, nil
}

// Limits returns the configured limits
func (c *Chunker) Limits() Limits {
	return c.limits
}

// EstimateTokens approximates the token count of text as ceil(chars/4), at least 1
func EstimateTokens(text string) int {
	return estimateFromChars(utf8.RuneCountInString(text))
}

func estimateFromChars(n int) int {
	tokens := (n + CharsPerToken - 1) / CharsPerToken
	if tokens < 1 {
		return 1
	}
	return tokens
}

// directoryGroup keeps files of one directory in scan order
type directoryGroup struct {
	dir   string
	files []types.FileInfo
}

// groupByDirectory groups files by the directory of their relative path,
// keeping directories in first-seen order
func groupByDirectory(files []types.FileInfo) []*directoryGroup {
	var groups []*directoryGroup
	byDir := make(map[string]*directoryGroup)
	for _, f := range files {
		dir := path.Dir(filepath.ToSlash(f.RelativePath))
		g, ok := byDir[dir]
		if !ok {
			g = &directoryGroup{dir: dir}
			byDir[dir] = g
			groups = append(groups, g)
		}
		g.files = append(g.files, f)
	}
	return groups
}

// ChunkFiles groups files by directory and greedily packs each group into
// chunks of at most MaxTokens estimated tokens and MaxFiles files. A file
// whose own estimate exceeds MaxTokens is emitted as sequential part chunks
// of MaxTokens*4 characters each. Files that cannot be read are skipped.
func (c *Chunker) ChunkFiles(root string, files []types.FileInfo) []types.Chunk {
	ids := make(map[string]struct{})
	chunks := make([]types.Chunk, 0)

	for _, group := range groupByDirectory(files) {
		var (
			current       []string
			currentTokens int
		)
		seal := func() {
			if len(current) == 0 {
				return
			}
			chunks = append(chunks, types.Chunk{
				ChunkID:       newChunkID(ids),
				Directory:     group.dir,
				Files:         current,
				TokenEstimate: currentTokens,
			})
			current = nil
			currentTokens = 0
		}

		for _, f := range group.files {
			text, err := os.ReadFile(resolvePath(root, f))
			if err != nil {
				c.logger.Debug("skipping unreadable file",
					zap.String("file", f.RelativePath), zap.Error(err))
				continue
			}

			chars := utf8.RuneCount(text)
			est := estimateFromChars(chars)
			if est > c.limits.MaxTokens {
				chunks = append(chunks, c.splitFile(ids, group.dir, f.RelativePath, chars)...)
				continue
			}

			if len(current) > 0 &&
				(currentTokens+est > c.limits.MaxTokens || len(current) >= c.limits.MaxFiles) {
				seal()
			}
			current = append(current, f.RelativePath)
			currentTokens += est
		}
		seal()
	}

	c.logger.Debug("files chunked", zap.Int("files", len(files)), zap.Int("chunks", len(chunks)))
	return chunks
}

// splitFile cuts a file of chars characters into parts of MaxTokens*4 characters
func (c *Chunker) splitFile(ids map[string]struct{}, dir, rel string, chars int) []types.Chunk {
	partSize := c.limits.MaxTokens * CharsPerToken
	parts := make([]types.Chunk, 0, chars/partSize+1)
	for start, part := 0, 1; start < chars; start, part = start+partSize, part+1 {
		end := min(start+partSize, chars)
		parts = append(parts, types.Chunk{
			ChunkID:       newChunkID(ids),
			Directory:     dir,
			Files:         []string{rel},
			TokenEstimate: estimateFromChars(end - start),
			ParentFile:    rel,
			Part:          part,
			Start:         start,
			End:           end,
		})
	}
	return parts
}

// resolvePath joins the relative path onto root, or uses the recorded path when root is empty
func resolvePath(root string, f types.FileInfo) string {
	if root == "" {
		return f.Path
	}
	return filepath.Join(root, filepath.FromSlash(f.RelativePath))
}

// newChunkID returns "chunk-" plus 8 hex characters, unique within ids
func newChunkID(ids map[string]struct{}) string {
	for {
		id := chunkIDPrefix + uuid.NewString()[:8]
		if _, dup := ids[id]; !dup {
			ids[id] = struct{}{}
			return id
		}
	}
}
