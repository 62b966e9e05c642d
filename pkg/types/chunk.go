package types

import "fmt"

// Chunk is a bounded group of files from one directory, or one slice of a
// single oversized file. Chunks are immutable once created.
type Chunk struct {
	ChunkID       string   `json:"chunk_id"`
	Directory     string   `json:"directory"`
	Files         []string `json:"files"` // Relative paths, in scan order
	TokenEstimate int      `json:"token_estimate"`

	// Set only for slices of an oversized file
	ParentFile string `json:"parent_file,omitempty"`
	Part       int    `json:"part,omitempty"`  // 1-based
	Start      int    `json:"start,omitempty"` // Character offset, inclusive
	End        int    `json:"end,omitempty"`   // Character offset, exclusive
}

// IsPart reports whether the chunk is a slice of a larger file
func (c *Chunk) IsPart() bool {
	return c.ParentFile != ""
}

// Validate checks chunk invariants
func (c *Chunk) Validate() error {
	if c.ChunkID == "" {
		return ErrInvalidChunkID
	}
	if len(c.Files) == 0 {
		return ErrEmptyChunk
	}
	if c.TokenEstimate < 0 {
		return fmt.Errorf("%w: %d", ErrInvalidTokenEstimate, c.TokenEstimate)
	}
	if c.IsPart() {
		if len(c.Files) != 1 || c.Files[0] != c.ParentFile {
			return fmt.Errorf("%w: part chunk must hold only its parent file", ErrInvalidPart)
		}
		if c.Part < 1 || c.Start < 0 || c.End < c.Start {
			return fmt.Errorf("%w: part=%d range=[%d,%d)", ErrInvalidPart, c.Part, c.Start, c.End)
		}
	}
	return nil
}
