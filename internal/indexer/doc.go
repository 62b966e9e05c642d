// Package indexer scans a repository checkout into file records.
//
// A scan walks the tree, skips well-known dependency and build directories,
// binary extensions and names listed in the root .gitignore (exact names and
// leading-star suffix patterns only), then hashes every remaining file
// concurrently.
//
// # Basic Usage
//
//	idx := indexer.New(logger)
//	files, stats, err := idx.Build(ctx, "/path/to/repo", nil)
//	if err != nil {
//	    return err
//	}
//	fmt.Printf("Indexed %d files in %v\n", stats.FilesIndexed, stats.Duration)
//
// Each FileInfo carries the absolute path, the slash-separated path relative
// to the root, size, line count, extension, detected language and the sha256
// hex digest of the content.
//
// # Locking
//
// FolderLocks guards against two analyses of the same folder running at once.
// It never blocks: a caller that fails TryAcquire reports the folder as busy.
package indexer
