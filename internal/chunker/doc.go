// Package chunker packs repository files into bounded chunks for LLM analysis.
//
// Files are grouped by directory, directories in the order they first appear
// in the file list. Within a directory, files are added to the current chunk
// until the next file would push the token estimate past MaxTokens or the
// chunk already holds MaxFiles files; the chunk is then sealed and a new one
// started. Chunks never mix directories.
//
// # Basic Usage
//
//	c, err := chunker.New(chunker.DefaultLimits(), logger)
//	if err != nil {
//	    return err
//	}
//	chunks := c.ChunkFiles("/path/to/repo", files)
//
// # Oversized Files
//
// A file whose own estimate exceeds MaxTokens is never packed. It is emitted
// as sequential part chunks of MaxTokens*4 characters, each carrying
// ParentFile, a 1-based Part and its [Start, End) character range.
//
// # Token Estimation
//
// EstimateTokens uses ceil(chars/4) with a floor of 1. It is a sizing
// heuristic, not a tokenizer.
//
// # Sessions
//
// Sessions persists chunk_<session>.json and file_index_<session>.json so
// that ReadChunk can later rebuild a chunk's file text. ReadChunk reports
// missing artifacts and unknown chunk ids through ChunkContent.Status.
package chunker
