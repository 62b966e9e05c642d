package types

import "errors"

// Domain errors for type validation
var (
	// File errors
	ErrEmptyPath         = errors.New("path cannot be empty")
	ErrEmptyRelativePath = errors.New("relative path cannot be empty")
	ErrInvalidSize       = errors.New("size must be >= 0")

	// Chunk errors
	ErrInvalidChunkID       = errors.New("invalid chunk ID")
	ErrEmptyChunk           = errors.New("chunk has no files")
	ErrInvalidTokenEstimate = errors.New("token estimate must be >= 0")
	ErrInvalidPart          = errors.New("invalid chunk part")

	// Summary errors
	ErrSummaryNoFiles = errors.New("summary does not reference any file")
	ErrSummaryEmpty   = errors.New("summary has neither summary nor purpose text")
)
