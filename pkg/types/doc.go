// Package types provides shared type definitions for the reposcope server.
//
// The types here flow between the file scanner, the chunk pipeline, the
// analysis workers and the search engine:
//
//	files, _ := fileindex.Build(root)          // []types.FileInfo
//	chunks, _ := chunker.ChunkFiles(root, files, chunker.DefaultLimits())
//	summary := types.ChunkSummary{File: "api/server.go", Summary: "..."}
//	results, _ := engine.Search(ctx, "http handlers", 5) // []types.SearchResult
//
// # Scores
//
// SearchResult.Score is a squared Euclidean distance. Lower values are
// better matches; results are always ordered by ascending score.
package types
