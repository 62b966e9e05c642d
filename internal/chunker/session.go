package chunker

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"

	"github.com/moby/sys/atomicwriter"

	"github.com/dshills/reposcope-mcp/pkg/types"
)

// ErrInvalidSession is returned for session ids unusable as file name parts
var ErrInvalidSession = errors.New("invalid session id")

var validSession = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Status of a chunk reconstruction
type Status string

const (
	StatusSuccess        Status = "success"
	StatusChunkNotFound  Status = "chunk_not_found"
	StatusSessionMissing Status = "session_artifact_missing"
	StatusError          Status = "error"
)

// ChunkContent is the result of ReadChunk. Callers branch on Status;
// Files maps relative path to file text and is set only on success.
type ChunkContent struct {
	Status  Status            `json:"status"`
	Message string            `json:"message,omitempty"`
	ChunkID string            `json:"chunk_id"`
	Chunk   *types.Chunk      `json:"chunk,omitempty"`
	Files   map[string]string `json:"files,omitempty"`
	Missing []string          `json:"missing,omitempty"` // Listed files that could not be read
}

// OK reports whether the chunk was reconstructed
func (c ChunkContent) OK() bool {
	return c.Status == StatusSuccess
}

// Sessions persists chunk lists and file indexes, one pair of JSON files per session
type Sessions struct {
	dir string
}

// NewSessions stores session artifacts under dir
func NewSessions(dir string) *Sessions {
	return &Sessions{dir: dir}
}

// ValidateSession rejects ids that could escape the artifact directory
func ValidateSession(session string) error {
	if !validSession.MatchString(session) {
		return fmt.Errorf("%w: %q", ErrInvalidSession, session)
	}
	return nil
}

// ChunksPath returns the chunk list file of a session
func (s *Sessions) ChunksPath(session string) string {
	return filepath.Join(s.dir, "chunk_"+session+".json")
}

// FileIndexPath returns the file index file of a session
func (s *Sessions) FileIndexPath(session string) string {
	return filepath.Join(s.dir, "file_index_"+session+".json")
}

// SaveSession writes the chunk list and file index of a session, replacing any previous run
func (s *Sessions) SaveSession(session string, chunks []types.Chunk, files []types.FileInfo) error {
	if err := ValidateSession(session); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create chunks directory: %w", err)
	}
	if err := writeJSON(s.FileIndexPath(session), files); err != nil {
		return fmt.Errorf("save file index: %w", err)
	}
	if err := writeJSON(s.ChunksPath(session), chunks); err != nil {
		return fmt.Errorf("save chunks: %w", err)
	}
	return nil
}

// LoadChunks reads the chunk list of a session.
// A missing file returns an error satisfying errors.Is(err, os.ErrNotExist).
func (s *Sessions) LoadChunks(session string) ([]types.Chunk, error) {
	if err := ValidateSession(session); err != nil {
		return nil, err
	}
	var chunks []types.Chunk
	if err := readJSON(s.ChunksPath(session), &chunks); err != nil {
		return nil, err
	}
	return chunks, nil
}

// LoadFileIndex reads the file index of a session
func (s *Sessions) LoadFileIndex(session string) ([]types.FileInfo, error) {
	if err := ValidateSession(session); err != nil {
		return nil, err
	}
	var files []types.FileInfo
	if err := readJSON(s.FileIndexPath(session), &files); err != nil {
		return nil, err
	}
	return files, nil
}

// ReadChunk reconstructs the raw text of every file in a chunk. Missing
// artifacts and unknown chunk ids are reported through Status, never as errors.
// A part chunk returns only its character range of the parent file.
func (s *Sessions) ReadChunk(session, chunkID string) ChunkContent {
	result := ChunkContent{ChunkID: chunkID}

	if err := ValidateSession(session); err != nil {
		result.Status = StatusError
		result.Message = err.Error()
		return result
	}

	chunks, err := s.LoadChunks(session)
	if err != nil {
		return artifactFailure(result, "chunk list", session, err)
	}
	files, err := s.LoadFileIndex(session)
	if err != nil {
		return artifactFailure(result, "file index", session, err)
	}

	var chunk *types.Chunk
	for i := range chunks {
		if chunks[i].ChunkID == chunkID {
			chunk = &chunks[i]
			break
		}
	}
	if chunk == nil {
		result.Status = StatusChunkNotFound
		result.Message = fmt.Sprintf("chunk %s not found in session %s", chunkID, session)
		return result
	}

	absPaths := make(map[string]string, len(files))
	for _, f := range files {
		absPaths[f.RelativePath] = f.Path
	}

	result.Chunk = chunk
	result.Files = make(map[string]string, len(chunk.Files))
	for _, rel := range chunk.Files {
		abs, ok := absPaths[rel]
		if !ok {
			result.Missing = append(result.Missing, rel)
			continue
		}
		data, err := os.ReadFile(abs)
		if err != nil {
			result.Missing = append(result.Missing, rel)
			continue
		}
		text := string(data)
		if chunk.IsPart() {
			text = sliceChars(text, chunk.Start, chunk.End)
		}
		result.Files[rel] = text
	}

	result.Status = StatusSuccess
	return result
}

func artifactFailure(result ChunkContent, what, session string, err error) ChunkContent {
	if errors.Is(err, os.ErrNotExist) {
		result.Status = StatusSessionMissing
		result.Message = fmt.Sprintf("%s for session %s not found", what, session)
		return result
	}
	result.Status = StatusError
	result.Message = fmt.Sprintf("read %s for session %s: %v", what, session, err)
	return result
}

// sliceChars returns the characters [start, end) of text, clamped to its length
func sliceChars(text string, start, end int) string {
	runes := []rune(text)
	start = max(0, min(start, len(runes)))
	end = max(start, min(end, len(runes)))
	return string(runes[start:end])
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return atomicwriter.WriteFile(path, data, 0o644)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
